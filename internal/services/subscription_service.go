package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"vip-bot/internal/config"
	"vip-bot/internal/models"
)

var (
	ErrAlreadyActive = errors.New("subscription already active")
	ErrNotSubscribed = errors.New("no active subscription")
)

// externalCallTimeout bounds every Telegram membership call so a hung request
// never blocks a user-facing flow or the reconciler batch.
const externalCallTimeout = 10 * time.Second

const statusCacheTTL = 5 * time.Minute

type SubscriberRepository interface {
	Get(ctx context.Context, userID int64) (*models.Subscriber, error)
	UpsertGrant(ctx context.Context, sub *models.Subscriber) error
	ClearEntitlement(ctx context.Context, userID int64) error
	ClearLapsed(ctx context.Context, userID int64, nowMillis int64) (bool, error)
	ListLapsed(ctx context.Context, nowMillis int64) ([]models.Subscriber, error)
	GetAll(ctx context.Context) ([]models.Subscriber, error)
}

// ChannelAPI is the membership side of the Telegram client.
type ChannelAPI interface {
	ApproveJoinRequest(ctx context.Context, chatID string, userID int64) error
	CreateInviteLink(ctx context.Context, chatID string, memberLimit int, expireAt time.Time) (string, error)
	BanChatMember(ctx context.Context, chatID string, userID int64) error
	UnbanChatMember(ctx context.Context, chatID string, userID int64) error
}

type StatusCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type Alerter interface {
	Alert(subject, body string) error
}

// AdmissionMethod records how (or whether) a granted user was admitted to the
// VIP channel in the same turn.
type AdmissionMethod string

const (
	AdmissionApproved AdmissionMethod = "approved"
	AdmissionInvited  AdmissionMethod = "invited"
	AdmissionFailed   AdmissionMethod = "failed"
)

type AdmissionResult struct {
	Method     AdmissionMethod
	InviteLink string
	Err        error
}

// RemovalStep names the half of the ban/unban cycle that failed.
type RemovalStep string

const (
	RemovalBan   RemovalStep = "ban"
	RemovalUnban RemovalStep = "unban"
)

// RemovalResult is the outcome of the revoke-then-restore cycle. Err nil means
// both steps succeeded; otherwise Step names where it stopped.
type RemovalResult struct {
	Step RemovalStep
	Err  error
}

func (r RemovalResult) Partial() bool { return r.Err != nil }

type SubscriptionService struct {
	repo   SubscriberRepository
	tg     ChannelAPI
	cache  StatusCache
	alerts Alerter
	cfg    *config.Config

	// now is swappable so tests can pin the clock.
	now func() time.Time
}

func NewSubscriptionService(repo SubscriberRepository, tg ChannelAPI, cfg *config.Config) *SubscriptionService {
	return &SubscriptionService{
		repo: repo,
		tg:   tg,
		cfg:  cfg,
		now:  time.Now,
	}
}

// WithCache enables the redis-backed status cache. Optional.
func (s *SubscriptionService) WithCache(cache StatusCache) *SubscriptionService {
	s.cache = cache
	return s
}

// WithAlerter enables operator email alerts for membership failures. Optional.
func (s *SubscriptionService) WithAlerter(alerts Alerter) *SubscriptionService {
	s.alerts = alerts
	return s
}

// Grant records a new subscription window and then tries to admit the user to
// the VIP channel. The store write is the authoritative step: admission is
// best-effort and its failure never rolls the grant back. Returns
// ErrAlreadyActive while the user is still entitled.
func (s *SubscriptionService) Grant(ctx context.Context, userID int64, firstName, username string) (AdmissionResult, error) {
	now := s.now()

	current, err := s.repo.Get(ctx, userID)
	if err != nil {
		return AdmissionResult{}, fmt.Errorf("load subscriber %d: %w", userID, err)
	}
	if IsEntitled(current, now) {
		return AdmissionResult{}, ErrAlreadyActive
	}

	sub := &models.Subscriber{
		UserID:          userID,
		Username:        username,
		FirstName:       firstName,
		SubscriptionEnd: now.UnixMilli() + int64(s.cfg.SubscriptionDays)*dayMillis,
		CreatedAt:       now.UnixMilli(),
	}
	if err := s.repo.UpsertGrant(ctx, sub); err != nil {
		return AdmissionResult{}, fmt.Errorf("store grant for %d: %w", userID, err)
	}
	s.invalidateStatus(ctx, userID)

	return s.admit(ctx, userID, now), nil
}

// admit tries join-request approval first, then falls back to a single-use,
// time-boxed invite link. Both attempts share one bounded timeout.
func (s *SubscriptionService) admit(ctx context.Context, userID int64, now time.Time) AdmissionResult {
	ctx, cancel := context.WithTimeout(ctx, externalCallTimeout)
	defer cancel()

	if err := s.tg.ApproveJoinRequest(ctx, s.cfg.VIPChannelID, userID); err == nil {
		return AdmissionResult{Method: AdmissionApproved}
	} else {
		log.Printf("[SUBSCRIPTION] approve join request for %d failed, falling back to invite link: %v", userID, err)
	}

	link, err := s.tg.CreateInviteLink(ctx, s.cfg.VIPChannelID, 1, now.Add(24*time.Hour))
	if err != nil {
		log.Printf("[SUBSCRIPTION] invite link for %d failed: %v", userID, err)
		s.alert("VIP admission failed",
			fmt.Sprintf("user %d is entitled but could not be admitted to %s: %v", userID, s.cfg.VIPChannelID, err))
		return AdmissionResult{Method: AdmissionFailed, Err: err}
	}
	return AdmissionResult{Method: AdmissionInvited, InviteLink: link}
}

// Cancel clears the entitlement and then best-effort removes the user from the
// channel. Returns ErrNotSubscribed when there is nothing to cancel.
func (s *SubscriptionService) Cancel(ctx context.Context, userID int64) error {
	now := s.now()

	current, err := s.repo.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("load subscriber %d: %w", userID, err)
	}
	if !IsEntitled(current, now) {
		return ErrNotSubscribed
	}

	if err := s.repo.ClearEntitlement(ctx, userID); err != nil {
		return fmt.Errorf("clear entitlement for %d: %w", userID, err)
	}
	s.invalidateStatus(ctx, userID)

	if res := s.removeFromChannel(ctx, userID); res.Partial() {
		log.Printf("[SUBSCRIPTION] channel removal for %d stopped at %s: %v", userID, res.Step, res.Err)
		s.alert("VIP removal failed",
			fmt.Sprintf("user %d was revoked locally but the %s call against %s failed: %v", userID, res.Step, s.cfg.VIPChannelID, res.Err))
	}
	return nil
}

// Expire is the operator-side force revoke. Unlike Cancel it carries no
// guard: clearing an absent or already-cleared record is a harmless no-op.
func (s *SubscriptionService) Expire(ctx context.Context, userID int64) error {
	if err := s.repo.ClearEntitlement(ctx, userID); err != nil {
		return fmt.Errorf("clear entitlement for %d: %w", userID, err)
	}
	s.invalidateStatus(ctx, userID)

	if res := s.removeFromChannel(ctx, userID); res.Partial() {
		log.Printf("[SUBSCRIPTION] channel removal for %d stopped at %s: %v", userID, res.Step, res.Err)
	}
	return nil
}

// removeFromChannel force-removes without blacklisting: ban, then immediately
// unban so the user can re-subscribe later.
func (s *SubscriptionService) removeFromChannel(ctx context.Context, userID int64) RemovalResult {
	ctx, cancel := context.WithTimeout(ctx, externalCallTimeout)
	defer cancel()

	if err := s.tg.BanChatMember(ctx, s.cfg.VIPChannelID, userID); err != nil {
		return RemovalResult{Step: RemovalBan, Err: err}
	}
	if err := s.tg.UnbanChatMember(ctx, s.cfg.VIPChannelID, userID); err != nil {
		return RemovalResult{Step: RemovalUnban, Err: err}
	}
	return RemovalResult{}
}

// Status answers "entitled now?" and the rounded-up days remaining. Reads go
// through the cache when one is configured; cache trouble degrades to the
// store, never to an error.
func (s *SubscriptionService) Status(ctx context.Context, userID int64) (bool, int, error) {
	now := s.now()

	if end, ok := s.cachedEnd(ctx, userID); ok {
		sub := &models.Subscriber{UserID: userID, SubscriptionEnd: end}
		if !IsEntitled(sub, now) {
			return false, 0, nil
		}
		return true, DaysRemaining(sub, now), nil
	}

	sub, err := s.repo.Get(ctx, userID)
	if err != nil {
		return false, 0, fmt.Errorf("load subscriber %d: %w", userID, err)
	}
	s.cacheEnd(ctx, userID, sub)

	if !IsEntitled(sub, now) {
		return false, 0, nil
	}
	return true, DaysRemaining(sub, now), nil
}

// ExpireLapsed is one reconciliation pass: every record whose window has
// closed gets expired independently, so one failure cannot abort the batch.
func (s *SubscriptionService) ExpireLapsed(ctx context.Context) {
	now := s.now()

	lapsed, err := s.repo.ListLapsed(ctx, now.UnixMilli())
	if err != nil {
		log.Printf("[SUBSCRIPTION] list lapsed failed: %v", err)
		return
	}

	for _, sub := range lapsed {
		if err := s.expireIfStillLapsed(ctx, sub.UserID, now.UnixMilli()); err != nil {
			log.Printf("[SUBSCRIPTION] expire %d (%s) failed: %v", sub.UserID, sub.Username, err)
			continue
		}
		log.Printf("[SUBSCRIPTION] expired %d (%s)", sub.UserID, sub.Username)
	}
}

// expireIfStillLapsed is the sweep-side revoke. The clear is conditional on
// the window still being lapsed, so a renewal or cancellation that commits
// between the listing snapshot and this call wins: the sweep never zeroes a
// future end date and never removes a user it did not just revoke.
func (s *SubscriptionService) expireIfStillLapsed(ctx context.Context, userID int64, nowMillis int64) error {
	cleared, err := s.repo.ClearLapsed(ctx, userID, nowMillis)
	if err != nil {
		return fmt.Errorf("clear lapsed entitlement for %d: %w", userID, err)
	}
	if !cleared {
		return nil
	}
	s.invalidateStatus(ctx, userID)

	if res := s.removeFromChannel(ctx, userID); res.Partial() {
		log.Printf("[SUBSCRIPTION] channel removal for %d stopped at %s: %v", userID, res.Step, res.Err)
	}
	return nil
}

// ListSubscribers backs the operator API.
func (s *SubscriptionService) ListSubscribers(ctx context.Context) ([]models.Subscriber, error) {
	return s.repo.GetAll(ctx)
}

// GetSubscriber returns nil without error for an unknown user.
func (s *SubscriptionService) GetSubscriber(ctx context.Context, userID int64) (*models.Subscriber, error) {
	return s.repo.Get(ctx, userID)
}

func statusKey(userID int64) string { return fmt.Sprintf("sub:%d", userID) }

func (s *SubscriptionService) cachedEnd(ctx context.Context, userID int64) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	var end int64
	if err := s.cache.Get(ctx, statusKey(userID), &end); err != nil {
		return 0, false
	}
	return end, true
}

func (s *SubscriptionService) cacheEnd(ctx context.Context, userID int64, sub *models.Subscriber) {
	if s.cache == nil {
		return
	}
	var end int64
	if sub != nil {
		end = sub.SubscriptionEnd
	}
	if err := s.cache.Set(ctx, statusKey(userID), end, statusCacheTTL); err != nil {
		log.Printf("[SUBSCRIPTION] cache set for %d failed: %v", userID, err)
	}
}

func (s *SubscriptionService) invalidateStatus(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, statusKey(userID)); err != nil {
		log.Printf("[SUBSCRIPTION] cache invalidate for %d failed: %v", userID, err)
	}
}

func (s *SubscriptionService) alert(subject, body string) {
	if s.alerts == nil {
		return
	}
	if err := s.alerts.Alert(subject, body); err != nil {
		log.Printf("[SUBSCRIPTION] operator alert failed: %v", err)
	}
}
