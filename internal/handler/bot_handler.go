package handler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"vip-bot/internal/config"
	"vip-bot/internal/lang"
	"vip-bot/internal/services"
	"vip-bot/internal/utils"
)

const pollTimeoutSec = 25

type SubscriptionService interface {
	Grant(ctx context.Context, userID int64, firstName, username string) (services.AdmissionResult, error)
	Cancel(ctx context.Context, userID int64) error
	Status(ctx context.Context, userID int64) (entitled bool, daysLeft int, err error)
}

// BotAPI is the transport side of the Telegram client.
type BotAPI interface {
	GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]utils.Update, error)
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendInvoice(ctx context.Context, chatID int64, title, description, payload, providerToken, currency string, amountMinor int64, label string) error
	AnswerPreCheckoutQuery(ctx context.Context, queryID string, ok bool) error
}

// BotHandler is the router: each inbound update maps onto exactly one
// subscription operation (or a read), plus the payment acknowledgements.
type BotHandler struct {
	tg  BotAPI
	svc SubscriptionService
	cfg *config.Config
}

func NewBotHandler(tg BotAPI, svc SubscriptionService, cfg *config.Config) *BotHandler {
	return &BotHandler{tg: tg, svc: svc, cfg: cfg}
}

// Run long-polls for updates until ctx is cancelled.
func (h *BotHandler) Run(ctx context.Context) {
	var offset int64
	for {
		select {
		case <-ctx.Done():
			log.Println("[BOT] Shutdown")
			return
		default:
		}

		updates, err := h.tg.GetUpdates(ctx, offset, pollTimeoutSec)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[BOT] getUpdates failed: %v", err)
			time.Sleep(3 * time.Second)
			continue
		}

		for _, u := range updates {
			offset = u.UpdateID + 1
			h.handleUpdate(ctx, u)
		}
	}
}

func (h *BotHandler) handleUpdate(ctx context.Context, u utils.Update) {
	if u.PreCheckoutQuery != nil {
		// No stock or fraud checks in this domain: always approve.
		if err := h.tg.AnswerPreCheckoutQuery(ctx, u.PreCheckoutQuery.ID, true); err != nil {
			log.Printf("[BOT] answer pre-checkout failed: %v", err)
		}
		return
	}

	msg := u.Message
	if msg == nil || msg.From == nil {
		return
	}
	if msg.SuccessfulPayment != nil {
		h.handleSuccessfulPayment(ctx, msg)
		return
	}

	switch command(msg.Text) {
	case "/start", "/help":
		h.handleWelcome(ctx, msg)
	case "/subscribe":
		h.handleSubscribe(ctx, msg)
	case "/status":
		h.handleStatus(ctx, msg)
	case "/cancel":
		h.handleCancel(ctx, msg)
	}
}

func (h *BotHandler) handleWelcome(ctx context.Context, msg *utils.TgMessage) {
	m := lang.Pick(msg.From.LanguageCode)
	h.reply(ctx, msg.Chat.ID, fmt.Sprintf(m.Welcome, h.cfg.SubscriptionPrice, h.cfg.FreeChannel))
}

func (h *BotHandler) handleSubscribe(ctx context.Context, msg *utils.TgMessage) {
	m := lang.Pick(msg.From.LanguageCode)

	entitled, _, err := h.svc.Status(ctx, msg.From.ID)
	if err != nil {
		log.Printf("[BOT] status for %d failed: %v", msg.From.ID, err)
		h.reply(ctx, msg.Chat.ID, m.TryAgain)
		return
	}
	if entitled {
		h.reply(ctx, msg.Chat.ID, m.AlreadySubscribed)
		return
	}

	h.reply(ctx, msg.Chat.ID, fmt.Sprintf(m.Subscribe, h.cfg.SubscriptionPrice, h.cfg.SubscriptionPrice, h.cfg.SubscriptionDays))

	payload := fmt.Sprintf("vip_subscription_%d_%d", msg.From.ID, time.Now().UnixMilli())
	err = h.tg.SendInvoice(ctx, msg.Chat.ID,
		"YallaBets VIP Subscription",
		fmt.Sprintf("Get 10-30 expert picks per week for %d days", h.cfg.SubscriptionDays),
		payload,
		h.cfg.PaymentToken,
		"USD",
		int64(h.cfg.SubscriptionPrice)*100,
		"VIP Subscription",
	)
	if err != nil {
		log.Printf("[BOT] send invoice to %d failed: %v", msg.From.ID, err)
	}
}

func (h *BotHandler) handleStatus(ctx context.Context, msg *utils.TgMessage) {
	m := lang.Pick(msg.From.LanguageCode)

	entitled, daysLeft, err := h.svc.Status(ctx, msg.From.ID)
	if err != nil {
		log.Printf("[BOT] status for %d failed: %v", msg.From.ID, err)
		h.reply(ctx, msg.Chat.ID, m.TryAgain)
		return
	}
	if !entitled {
		h.reply(ctx, msg.Chat.ID, m.NotSubscribed)
		return
	}
	h.reply(ctx, msg.Chat.ID, fmt.Sprintf(m.StatusActive, daysLeft))
}

func (h *BotHandler) handleCancel(ctx context.Context, msg *utils.TgMessage) {
	m := lang.Pick(msg.From.LanguageCode)

	err := h.svc.Cancel(ctx, msg.From.ID)
	switch {
	case errors.Is(err, services.ErrNotSubscribed):
		h.reply(ctx, msg.Chat.ID, m.NotSubscribed)
	case err != nil:
		log.Printf("[BOT] cancel for %d failed: %v", msg.From.ID, err)
		h.reply(ctx, msg.Chat.ID, m.TryAgain)
	default:
		h.reply(ctx, msg.Chat.ID, m.Cancelled)
	}
}

func (h *BotHandler) handleSuccessfulPayment(ctx context.Context, msg *utils.TgMessage) {
	m := lang.Pick(msg.From.LanguageCode)

	res, err := h.svc.Grant(ctx, msg.From.ID, msg.From.FirstName, msg.From.Username)
	switch {
	case errors.Is(err, services.ErrAlreadyActive):
		h.reply(ctx, msg.Chat.ID, m.AlreadySubscribed)
		return
	case err != nil:
		log.Printf("[BOT] grant for %d failed: %v", msg.From.ID, err)
		h.reply(ctx, msg.Chat.ID, m.TryAgain)
		return
	}

	// The entitlement stands even when admission lagged; the user is told the
	// subscription succeeded either way.
	if res.Method == services.AdmissionInvited {
		h.reply(ctx, msg.From.ID, fmt.Sprintf("%s\n\n🔗 Join VIP Channel: %s", m.PaymentSuccess, res.InviteLink))
		return
	}
	h.reply(ctx, msg.Chat.ID, m.PaymentSuccess)
}

func (h *BotHandler) reply(ctx context.Context, chatID int64, text string) {
	if err := h.tg.SendMessage(ctx, chatID, text); err != nil {
		log.Printf("[BOT] send message to %d failed: %v", chatID, err)
	}
}

// command extracts "/cmd" from the first word, dropping any @botname suffix.
func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd := strings.Fields(text)[0]
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i]
	}
	return cmd
}
