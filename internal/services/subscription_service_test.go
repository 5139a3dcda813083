package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"vip-bot/internal/config"
	"vip-bot/internal/models"
)

type fakeRepo struct {
	subs      map[int64]*models.Subscriber
	getErr    error
	upsertErr error
	clearErr  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{subs: make(map[int64]*models.Subscriber)}
}

func (r *fakeRepo) Get(_ context.Context, userID int64) (*models.Subscriber, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	sub, ok := r.subs[userID]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

func (r *fakeRepo) UpsertGrant(_ context.Context, sub *models.Subscriber) error {
	if r.upsertErr != nil {
		return r.upsertErr
	}
	cp := *sub
	r.subs[sub.UserID] = &cp
	return nil
}

func (r *fakeRepo) ClearEntitlement(_ context.Context, userID int64) error {
	if r.clearErr != nil {
		return r.clearErr
	}
	if sub, ok := r.subs[userID]; ok {
		sub.SubscriptionEnd = 0
	}
	return nil
}

func (r *fakeRepo) ClearLapsed(_ context.Context, userID int64, nowMillis int64) (bool, error) {
	if r.clearErr != nil {
		return false, r.clearErr
	}
	sub, ok := r.subs[userID]
	if !ok || sub.SubscriptionEnd <= 0 || sub.SubscriptionEnd >= nowMillis {
		return false, nil
	}
	sub.SubscriptionEnd = 0
	return true, nil
}

func (r *fakeRepo) ListLapsed(_ context.Context, nowMillis int64) ([]models.Subscriber, error) {
	var out []models.Subscriber
	for _, sub := range r.subs {
		if sub.SubscriptionEnd > 0 && sub.SubscriptionEnd < nowMillis {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (r *fakeRepo) GetAll(_ context.Context) ([]models.Subscriber, error) {
	var out []models.Subscriber
	for _, sub := range r.subs {
		out = append(out, *sub)
	}
	return out, nil
}

type fakeChannel struct {
	approveErr error
	inviteErr  error
	banErr     error
	unbanErr   error

	approved []int64
	invited  []int64
	banned   []int64
	unbanned []int64
}

func (c *fakeChannel) ApproveJoinRequest(_ context.Context, _ string, userID int64) error {
	if c.approveErr != nil {
		return c.approveErr
	}
	c.approved = append(c.approved, userID)
	return nil
}

func (c *fakeChannel) CreateInviteLink(_ context.Context, _ string, _ int, _ time.Time) (string, error) {
	if c.inviteErr != nil {
		return "", c.inviteErr
	}
	c.invited = append(c.invited, 0)
	return "https://t.me/+invite", nil
}

func (c *fakeChannel) BanChatMember(_ context.Context, _ string, userID int64) error {
	if c.banErr != nil {
		return c.banErr
	}
	c.banned = append(c.banned, userID)
	return nil
}

func (c *fakeChannel) UnbanChatMember(_ context.Context, _ string, userID int64) error {
	if c.unbanErr != nil {
		return c.unbanErr
	}
	c.unbanned = append(c.unbanned, userID)
	return nil
}

type fakeAlerter struct {
	alerts []string
}

func (a *fakeAlerter) Alert(subject, _ string) error {
	a.alerts = append(a.alerts, subject)
	return nil
}

type fakeCache struct {
	values map[string][]byte
}

func newFakeCache() *fakeCache { return &fakeCache{values: make(map[string][]byte)} }

func (c *fakeCache) Get(_ context.Context, key string, dest interface{}) error {
	v, ok := c.values[key]
	if !ok {
		return errors.New("cache miss")
	}
	*(dest.(*int64)) = int64FromBytes(v)
	return nil
}

func (c *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.values[key] = int64ToBytes(value.(int64))
	return nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	delete(c.values, key)
	return nil
}

func int64ToBytes(v int64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

func int64FromBytes(b []byte) int64 {
	var v int64
	for i := 0; i < 8; i++ {
		v |= int64(b[i]) << (8 * i)
	}
	return v
}

func testConfig() *config.Config {
	return &config.Config{
		VIPChannelID:     "-1001234",
		SubscriptionDays: 30,
	}
}

func newTestService(repo *fakeRepo, ch *fakeChannel, now time.Time) *SubscriptionService {
	svc := NewSubscriptionService(repo, ch, testConfig())
	svc.now = func() time.Time { return now }
	return svc
}

func TestGrant_RecordsThirtyDayWindow(t *testing.T) {
	repo := newFakeRepo()
	now := time.UnixMilli(1_000_000)
	svc := newTestService(repo, &fakeChannel{}, now)

	res, err := svc.Grant(context.Background(), 42, "Ali", "ali")
	if err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	if res.Method != AdmissionApproved {
		t.Errorf("admission method = %s, want %s", res.Method, AdmissionApproved)
	}

	sub := repo.subs[42]
	if sub == nil {
		t.Fatal("no record stored")
	}
	wantEnd := now.UnixMilli() + 30*dayMillis
	if sub.SubscriptionEnd != wantEnd {
		t.Errorf("subscription_end = %d, want %d", sub.SubscriptionEnd, wantEnd)
	}
	if sub.CreatedAt != now.UnixMilli() {
		t.Errorf("created_at = %d, want %d", sub.CreatedAt, now.UnixMilli())
	}
}

func TestGrant_RefusedWhileActive(t *testing.T) {
	repo := newFakeRepo()
	ch := &fakeChannel{}
	now := time.UnixMilli(1_000_000)
	svc := newTestService(repo, ch, now)

	if _, err := svc.Grant(context.Background(), 42, "Ali", "ali"); err != nil {
		t.Fatalf("first Grant failed: %v", err)
	}
	_, err := svc.Grant(context.Background(), 42, "Ali", "ali")
	if !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("second Grant err = %v, want ErrAlreadyActive", err)
	}
	if len(ch.approved) != 1 {
		t.Errorf("refused grant must not touch the channel, approvals = %d", len(ch.approved))
	}
}

func TestGrant_SucceedsAfterCancel(t *testing.T) {
	repo := newFakeRepo()
	now := time.UnixMilli(1_000_000)
	svc := newTestService(repo, &fakeChannel{}, now)

	if _, err := svc.Grant(context.Background(), 42, "Ali", "ali"); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	if err := svc.Cancel(context.Background(), 42); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if _, err := svc.Grant(context.Background(), 42, "Ali", "ali"); err != nil {
		t.Fatalf("re-Grant after Cancel failed: %v", err)
	}
}

func TestGrant_RenewalResetsNotStacks(t *testing.T) {
	repo := newFakeRepo()
	now := time.UnixMilli(100 * dayMillis)
	repo.subs[42] = &models.Subscriber{
		UserID:          42,
		SubscriptionEnd: 90 * dayMillis, // lapsed ten days ago
		CreatedAt:       60 * dayMillis,
	}
	svc := newTestService(repo, &fakeChannel{}, now)

	if _, err := svc.Grant(context.Background(), 42, "Ali", "ali"); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	wantEnd := now.UnixMilli() + 30*dayMillis
	if repo.subs[42].SubscriptionEnd != wantEnd {
		t.Errorf("subscription_end = %d, want %d (window from now, no stacking)", repo.subs[42].SubscriptionEnd, wantEnd)
	}
	if repo.subs[42].CreatedAt != now.UnixMilli() {
		t.Errorf("created_at not overwritten on re-grant")
	}
}

func TestGrant_FallsBackToInviteLink(t *testing.T) {
	repo := newFakeRepo()
	ch := &fakeChannel{approveErr: errors.New("no pending join request")}
	svc := newTestService(repo, ch, time.UnixMilli(1_000_000))

	res, err := svc.Grant(context.Background(), 42, "Ali", "ali")
	if err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	if res.Method != AdmissionInvited || res.InviteLink == "" {
		t.Errorf("admission = %+v, want invite link fallback", res)
	}
}

func TestGrant_KeepsEntitlementWhenAdmissionFails(t *testing.T) {
	repo := newFakeRepo()
	ch := &fakeChannel{
		approveErr: errors.New("network down"),
		inviteErr:  errors.New("network down"),
	}
	alerts := &fakeAlerter{}
	now := time.UnixMilli(1_000_000)
	svc := newTestService(repo, ch, now).WithAlerter(alerts)

	res, err := svc.Grant(context.Background(), 42, "Ali", "ali")
	if err != nil {
		t.Fatalf("Grant must not fail on admission trouble: %v", err)
	}
	if res.Method != AdmissionFailed || res.Err == nil {
		t.Errorf("admission = %+v, want failed with cause", res)
	}
	if !IsEntitled(repo.subs[42], now) {
		t.Error("store must still reflect entitlement after admission failure")
	}
	if len(alerts.alerts) != 1 {
		t.Errorf("operator alerts = %d, want 1", len(alerts.alerts))
	}
}

func TestGrant_StoreFailurePropagates(t *testing.T) {
	repo := newFakeRepo()
	repo.upsertErr = errors.New("disk on fire")
	ch := &fakeChannel{}
	svc := newTestService(repo, ch, time.UnixMilli(1_000_000))

	if _, err := svc.Grant(context.Background(), 42, "Ali", "ali"); err == nil {
		t.Fatal("Grant must propagate store failure")
	}
	if len(ch.approved)+len(ch.invited) != 0 {
		t.Error("no external call may happen when the store write failed")
	}
}

func TestCancel_NotSubscribed(t *testing.T) {
	repo := newFakeRepo()
	now := time.UnixMilli(1_000_000)
	svc := newTestService(repo, &fakeChannel{}, now)

	if err := svc.Cancel(context.Background(), 42); !errors.Is(err, ErrNotSubscribed) {
		t.Errorf("Cancel on unknown user = %v, want ErrNotSubscribed", err)
	}

	// Already-cleared record: same refusal, end stays at 0.
	repo.subs[42] = &models.Subscriber{UserID: 42, SubscriptionEnd: 0}
	if err := svc.Cancel(context.Background(), 42); !errors.Is(err, ErrNotSubscribed) {
		t.Errorf("Cancel on cleared user = %v, want ErrNotSubscribed", err)
	}
	if repo.subs[42].SubscriptionEnd != 0 {
		t.Errorf("subscription_end = %d, want 0", repo.subs[42].SubscriptionEnd)
	}
}

func TestCancel_ClearsThenRemoves(t *testing.T) {
	repo := newFakeRepo()
	ch := &fakeChannel{}
	now := time.UnixMilli(1_000_000)
	svc := newTestService(repo, ch, now)

	if _, err := svc.Grant(context.Background(), 42, "Ali", "ali"); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	if err := svc.Cancel(context.Background(), 42); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	if repo.subs[42].SubscriptionEnd != 0 {
		t.Errorf("subscription_end = %d, want 0", repo.subs[42].SubscriptionEnd)
	}
	if len(ch.banned) != 1 || len(ch.unbanned) != 1 {
		t.Errorf("removal cycle = ban %d / unban %d, want 1/1", len(ch.banned), len(ch.unbanned))
	}

	entitled, _, err := svc.Status(context.Background(), 42)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if entitled {
		t.Error("status right after cancel must be not-subscribed")
	}
}

func TestCancel_RemovalFailureIsNotUserFacing(t *testing.T) {
	repo := newFakeRepo()
	ch := &fakeChannel{banErr: errors.New("timeout")}
	alerts := &fakeAlerter{}
	svc := newTestService(repo, ch, time.UnixMilli(1_000_000)).WithAlerter(alerts)

	if _, err := svc.Grant(context.Background(), 42, "Ali", "ali"); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	if err := svc.Cancel(context.Background(), 42); err != nil {
		t.Fatalf("Cancel must succeed despite removal failure: %v", err)
	}
	if repo.subs[42].SubscriptionEnd != 0 {
		t.Error("local revoke is authoritative regardless of the channel call")
	}
	if len(alerts.alerts) != 1 {
		t.Errorf("operator alerts = %d, want 1", len(alerts.alerts))
	}
}

func TestRemoveFromChannel_PartialFailureNamesStep(t *testing.T) {
	svc := newTestService(newFakeRepo(), &fakeChannel{unbanErr: errors.New("boom")}, time.UnixMilli(0))

	res := svc.removeFromChannel(context.Background(), 42)
	if !res.Partial() || res.Step != RemovalUnban {
		t.Errorf("result = %+v, want partial failure at unban", res)
	}

	svc = newTestService(newFakeRepo(), &fakeChannel{}, time.UnixMilli(0))
	if res := svc.removeFromChannel(context.Background(), 42); res.Partial() {
		t.Errorf("result = %+v, want full success", res)
	}
}

func TestExpire_Idempotent(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeChannel{}, time.UnixMilli(1_000_000))

	// User never seen: harmless no-op.
	if err := svc.Expire(context.Background(), 7); err != nil {
		t.Fatalf("Expire on absent user failed: %v", err)
	}

	repo.subs[42] = &models.Subscriber{UserID: 42, SubscriptionEnd: 0}
	if err := svc.Expire(context.Background(), 42); err != nil {
		t.Fatalf("Expire on cleared user failed: %v", err)
	}
	if repo.subs[42].SubscriptionEnd != 0 {
		t.Errorf("subscription_end = %d, want 0", repo.subs[42].SubscriptionEnd)
	}
}

func TestExpireLapsed_SweepAndIdempotence(t *testing.T) {
	repo := newFakeRepo()
	ch := &fakeChannel{}
	now := time.UnixMilli(100 * dayMillis)
	svc := newTestService(repo, ch, now)

	repo.subs[1] = &models.Subscriber{UserID: 1, Username: "lapsed", SubscriptionEnd: 99 * dayMillis}
	repo.subs[2] = &models.Subscriber{UserID: 2, Username: "active", SubscriptionEnd: 130 * dayMillis}

	svc.ExpireLapsed(context.Background())

	if repo.subs[1].SubscriptionEnd != 0 {
		t.Error("lapsed user not cleared")
	}
	if repo.subs[2].SubscriptionEnd != 130*dayMillis {
		t.Error("active user must be untouched by the sweep")
	}
	if len(ch.banned) != 1 || ch.banned[0] != 1 {
		t.Errorf("banned = %v, want just the lapsed user", ch.banned)
	}

	// Second pass with no new grants: no errors, no extra channel calls.
	svc.ExpireLapsed(context.Background())
	if len(ch.banned) != 1 {
		t.Errorf("second sweep re-processed users, bans = %d", len(ch.banned))
	}
	if repo.subs[1].SubscriptionEnd != 0 {
		t.Error("previously expired user must stay expired")
	}
}

// raceRepo commits a write to the listed users after the sweep's listing
// snapshot, standing in for a grant or cancel landing mid-sweep.
type raceRepo struct {
	*fakeRepo
	commitEnd int64
}

func (r *raceRepo) ListLapsed(ctx context.Context, nowMillis int64) ([]models.Subscriber, error) {
	out, err := r.fakeRepo.ListLapsed(ctx, nowMillis)
	for _, sub := range out {
		r.subs[sub.UserID].SubscriptionEnd = r.commitEnd
	}
	return out, err
}

func TestExpireLapsed_RenewalDuringSweepWins(t *testing.T) {
	now := time.UnixMilli(100 * dayMillis)
	renewedEnd := now.UnixMilli() + 30*dayMillis

	repo := &raceRepo{fakeRepo: newFakeRepo(), commitEnd: renewedEnd}
	repo.subs[42] = &models.Subscriber{UserID: 42, Username: "ali", SubscriptionEnd: 99 * dayMillis}
	ch := &fakeChannel{}
	svc := NewSubscriptionService(repo, ch, testConfig())
	svc.now = func() time.Time { return now }

	svc.ExpireLapsed(context.Background())

	if repo.subs[42].SubscriptionEnd != renewedEnd {
		t.Errorf("subscription_end = %d, want %d (renewal committed after listing must survive the sweep)",
			repo.subs[42].SubscriptionEnd, renewedEnd)
	}
	if len(ch.banned) != 0 {
		t.Errorf("banned = %v, the sweep must not remove a user it did not revoke", ch.banned)
	}
}

func TestExpireLapsed_CancelDuringSweepNotRemovedTwice(t *testing.T) {
	now := time.UnixMilli(100 * dayMillis)

	// A manual cancel zeroes the record between listing and expiry.
	repo := &raceRepo{fakeRepo: newFakeRepo(), commitEnd: 0}
	repo.subs[42] = &models.Subscriber{UserID: 42, Username: "ali", SubscriptionEnd: 99 * dayMillis}
	ch := &fakeChannel{}
	svc := NewSubscriptionService(repo, ch, testConfig())
	svc.now = func() time.Time { return now }

	svc.ExpireLapsed(context.Background())

	if repo.subs[42].SubscriptionEnd != 0 {
		t.Errorf("subscription_end = %d, want 0", repo.subs[42].SubscriptionEnd)
	}
	if len(ch.banned) != 0 {
		t.Errorf("banned = %v, cancel already ran the removal cycle", ch.banned)
	}
}

func TestStatus_CacheInvalidatedOnLifecycleWrites(t *testing.T) {
	repo := newFakeRepo()
	cache := newFakeCache()
	now := time.UnixMilli(1_000_000)
	svc := newTestService(repo, &fakeChannel{}, now).WithCache(cache)

	if _, err := svc.Grant(context.Background(), 42, "Ali", "ali"); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}

	entitled, days, err := svc.Status(context.Background(), 42)
	if err != nil || !entitled || days != 30 {
		t.Fatalf("Status = (%v, %d, %v), want (true, 30, nil)", entitled, days, err)
	}
	if len(cache.values) != 1 {
		t.Fatalf("status read did not populate cache")
	}

	if err := svc.Cancel(context.Background(), 42); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	entitled, _, err = svc.Status(context.Background(), 42)
	if err != nil || entitled {
		t.Errorf("Status after Cancel = (%v, %v), want (false, nil)", entitled, err)
	}
}
