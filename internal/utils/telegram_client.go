package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// TelegramClient talks to the Bot API directly. Long polling needs a client
// timeout comfortably above the poll timeout passed to GetUpdates.
type TelegramClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewTelegramClient(token string) *TelegramClient {
	return &TelegramClient{
		baseURL:    "https://api.telegram.org/bot" + token,
		httpClient: &http.Client{Timeout: 40 * time.Second},
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

func (c *TelegramClient) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()

	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !api.OK {
		return fmt.Errorf("%s returned: %s", method, api.Description)
	}
	if result != nil {
		if err := json.Unmarshal(api.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

type TgUser struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	Username     string `json:"username"`
	LanguageCode string `json:"language_code"`
}

type TgChat struct {
	ID int64 `json:"id"`
}

type SuccessfulPayment struct {
	Currency       string `json:"currency"`
	TotalAmount    int64  `json:"total_amount"`
	InvoicePayload string `json:"invoice_payload"`
}

type TgMessage struct {
	MessageID         int                `json:"message_id"`
	From              *TgUser            `json:"from"`
	Chat              TgChat             `json:"chat"`
	Text              string             `json:"text"`
	SuccessfulPayment *SuccessfulPayment `json:"successful_payment"`
}

type PreCheckoutQuery struct {
	ID   string `json:"id"`
	From TgUser `json:"from"`
}

type Update struct {
	UpdateID         int64             `json:"update_id"`
	Message          *TgMessage        `json:"message"`
	PreCheckoutQuery *PreCheckoutQuery `json:"pre_checkout_query"`
}

func (c *TelegramClient) GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]Update, error) {
	params := struct {
		Offset         int64    `json:"offset"`
		Timeout        int      `json:"timeout"`
		AllowedUpdates []string `json:"allowed_updates"`
	}{
		Offset:         offset,
		Timeout:        timeoutSec,
		AllowedUpdates: []string{"message", "pre_checkout_query"},
	}
	var updates []Update
	if err := c.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func (c *TelegramClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	params := struct {
		ChatID int64  `json:"chat_id"`
		Text   string `json:"text"`
	}{ChatID: chatID, Text: text}
	return c.call(ctx, "sendMessage", params, nil)
}

type labeledPrice struct {
	Label  string `json:"label"`
	Amount int64  `json:"amount"`
}

// SendInvoice opens the payment provider's checkout for a single fixed-price
// item. Amount is in minor currency units.
func (c *TelegramClient) SendInvoice(ctx context.Context, chatID int64, title, description, payload, providerToken, currency string, amountMinor int64, label string) error {
	params := struct {
		ChatID        int64          `json:"chat_id"`
		Title         string         `json:"title"`
		Description   string         `json:"description"`
		Payload       string         `json:"payload"`
		ProviderToken string         `json:"provider_token"`
		Currency      string         `json:"currency"`
		Prices        []labeledPrice `json:"prices"`
	}{
		ChatID:        chatID,
		Title:         title,
		Description:   description,
		Payload:       payload,
		ProviderToken: providerToken,
		Currency:      currency,
		Prices:        []labeledPrice{{Label: label, Amount: amountMinor}},
	}
	return c.call(ctx, "sendInvoice", params, nil)
}

// AnswerPreCheckoutQuery must reach Telegram within 10 seconds of the query or
// the payment is aborted on their side.
func (c *TelegramClient) AnswerPreCheckoutQuery(ctx context.Context, queryID string, ok bool) error {
	params := struct {
		PreCheckoutQueryID string `json:"pre_checkout_query_id"`
		OK                 bool   `json:"ok"`
	}{PreCheckoutQueryID: queryID, OK: ok}
	return c.call(ctx, "answerPreCheckoutQuery", params, nil)
}

func (c *TelegramClient) ApproveJoinRequest(ctx context.Context, chatID string, userID int64) error {
	params := struct {
		ChatID string `json:"chat_id"`
		UserID int64  `json:"user_id"`
	}{ChatID: chatID, UserID: userID}
	return c.call(ctx, "approveChatJoinRequest", params, nil)
}

type chatInviteLink struct {
	InviteLink string `json:"invite_link"`
}

func (c *TelegramClient) CreateInviteLink(ctx context.Context, chatID string, memberLimit int, expireAt time.Time) (string, error) {
	params := struct {
		ChatID      string `json:"chat_id"`
		MemberLimit int    `json:"member_limit"`
		ExpireDate  int64  `json:"expire_date"`
	}{ChatID: chatID, MemberLimit: memberLimit, ExpireDate: expireAt.Unix()}
	var link chatInviteLink
	if err := c.call(ctx, "createChatInviteLink", params, &link); err != nil {
		return "", err
	}
	return link.InviteLink, nil
}

func (c *TelegramClient) BanChatMember(ctx context.Context, chatID string, userID int64) error {
	params := struct {
		ChatID string `json:"chat_id"`
		UserID int64  `json:"user_id"`
	}{ChatID: chatID, UserID: userID}
	return c.call(ctx, "banChatMember", params, nil)
}

func (c *TelegramClient) UnbanChatMember(ctx context.Context, chatID string, userID int64) error {
	params := struct {
		ChatID       string `json:"chat_id"`
		UserID       int64  `json:"user_id"`
		OnlyIfBanned bool   `json:"only_if_banned"`
	}{ChatID: chatID, UserID: userID, OnlyIfBanned: true}
	return c.call(ctx, "unbanChatMember", params, nil)
}
