package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"patternpals/internal/common"
	"patternpals/internal/dbmysql"
)

// Mock implementations used by the focused unit tests.

type MockAttemptRepository struct {
	mock.Mock
}

func (m *MockAttemptRepository) Create(ctx context.Context, attempt *dbmysql.DeliveryAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *MockAttemptRepository) CreateBatch(ctx context.Context, attempts []*dbmysql.DeliveryAttempt) error {
	args := m.Called(ctx, attempts)
	return args.Error(0)
}

func (m *MockAttemptRepository) ByID(ctx context.Context, id string) (*dbmysql.DeliveryAttempt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dbmysql.DeliveryAttempt), args.Error(1)
}

func (m *MockAttemptRepository) ByNotificationID(ctx context.Context, notificationID string) ([]*dbmysql.DeliveryAttempt, error) {
	args := m.Called(ctx, notificationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*dbmysql.DeliveryAttempt), args.Error(1)
}

func (m *MockAttemptRepository) HasOpen(ctx context.Context, notificationID string) (bool, error) {
	args := m.Called(ctx, notificationID)
	return args.Bool(0), args.Error(1)
}

func (m *MockAttemptRepository) UpdateFrom(ctx context.Context, id string, from []common.DeliveryStatus, updates map[string]interface{}) (bool, error) {
	args := m.Called(ctx, id, from, updates)
	return args.Bool(0), args.Error(1)
}

func (m *MockAttemptRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*dbmysql.DeliveryAttempt, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*dbmysql.DeliveryAttempt), args.Error(1)
}

func (m *MockAttemptRepository) Counts(ctx context.Context) (dbmysql.MetricsCounts, error) {
	args := m.Called(ctx)
	return args.Get(0).(dbmysql.MetricsCounts), args.Error(1)
}

func (m *MockAttemptRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type MockAnalyticsSink struct {
	mock.Mock
}

func (m *MockAnalyticsSink) Insert(ctx context.Context, sample common.DeliverySample) error {
	args := m.Called(ctx, sample)
	return args.Error(0)
}

func (m *MockAnalyticsSink) AverageElapsedMs(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}

// Stateful in-memory fakes used by the orchestrator and scenario tests,
// where the interesting assertions are about the resulting delivery
// state rather than individual repository calls.

type memAttemptRepo struct {
	mu       sync.Mutex
	attempts []*dbmysql.DeliveryAttempt
	byID     map[string]*dbmysql.DeliveryAttempt
	now      func() time.Time
}

func newMemAttemptRepo(clock common.Clock) *memAttemptRepo {
	return &memAttemptRepo{
		byID: make(map[string]*dbmysql.DeliveryAttempt),
		now:  clock.Now,
	}
}

func (r *memAttemptRepo) Create(ctx context.Context, attempt *dbmysql.DeliveryAttempt) error {
	return r.CreateBatch(ctx, []*dbmysql.DeliveryAttempt{attempt})
}

func (r *memAttemptRepo) CreateBatch(_ context.Context, attempts []*dbmysql.DeliveryAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range attempts {
		cp := *a
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = r.now()
		}
		cp.UpdatedAt = r.now()
		stored := &cp
		r.attempts = append(r.attempts, stored)
		r.byID[stored.ID] = stored
	}
	return nil
}

func (r *memAttemptRepo) ByID(_ context.Context, id string) (*dbmysql.DeliveryAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("delivery attempt not found: %s", id)
	}
	cp := *a
	return &cp, nil
}

func (r *memAttemptRepo) ByNotificationID(_ context.Context, notificationID string) ([]*dbmysql.DeliveryAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*dbmysql.DeliveryAttempt
	for _, a := range r.attempts {
		if a.NotificationID == notificationID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memAttemptRepo) HasOpen(_ context.Context, notificationID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.attempts {
		if a.NotificationID != notificationID {
			continue
		}
		switch common.DeliveryStatus(a.Status) {
		case common.StatusPending, common.StatusSent, common.StatusFailed:
			return true, nil
		}
	}
	return false, nil
}

func (r *memAttemptRepo) UpdateFrom(_ context.Context, id string, from []common.DeliveryStatus, updates map[string]interface{}) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return false, nil
	}

	matched := false
	for _, s := range from {
		if a.Status == string(s) {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}

	for key, value := range updates {
		switch key {
		case "status":
			a.Status = value.(string)
		case "error_message":
			if value == nil {
				a.ErrorMessage = nil
			} else {
				msg := value.(string)
				a.ErrorMessage = &msg
			}
		case "next_retry_at":
			if value == nil {
				a.NextRetryAt = nil
			} else if t, ok := value.(*time.Time); ok {
				a.NextRetryAt = t
			}
		case "claimed":
			a.Claimed = value.(bool)
		case "attempt_number":
			a.AttemptNumber = value.(int)
		case "updated_at":
			a.UpdatedAt = value.(time.Time)
		}
	}
	return true, nil
}

func (r *memAttemptRepo) ClaimDue(_ context.Context, now time.Time, limit int) ([]*dbmysql.DeliveryAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	leaseCutoff := now.Add(-dbmysql.ClaimLease)
	var claimed []*dbmysql.DeliveryAttempt
	for _, a := range r.attempts {
		if len(claimed) >= limit {
			break
		}
		if a.Status != string(common.StatusFailed) || a.NextRetryAt == nil {
			continue
		}
		if a.NextRetryAt.After(now) {
			continue
		}
		if a.Claimed && !a.UpdatedAt.Before(leaseCutoff) {
			continue
		}
		a.Claimed = true
		a.UpdatedAt = now
		cp := *a
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

func (r *memAttemptRepo) Counts(_ context.Context) (dbmysql.MetricsCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var counts dbmysql.MetricsCounts
	for _, a := range r.attempts {
		switch common.DeliveryStatus(a.Status) {
		case common.StatusSent:
			counts.TotalSent++
		case common.StatusDelivered:
			counts.TotalSent++
			counts.Delivered++
		case common.StatusFailed, common.StatusExpired:
			counts.Failed++
		}
		if a.AttemptNumber > 1 {
			counts.Retried++
		}
	}
	return counts, nil
}

func (r *memAttemptRepo) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var kept []*dbmysql.DeliveryAttempt
	var purged int64
	for _, a := range r.attempts {
		terminal := a.Status == string(common.StatusDelivered) || a.Status == string(common.StatusExpired)
		if terminal && a.UpdatedAt.Before(cutoff) {
			delete(r.byID, a.ID)
			purged++
			continue
		}
		kept = append(kept, a)
	}
	r.attempts = kept
	return purged, nil
}

type memDeviceRepo struct {
	mu      sync.Mutex
	devices map[string]*dbmysql.DeviceToken
}

func newMemDeviceRepo() *memDeviceRepo {
	return &memDeviceRepo{devices: make(map[string]*dbmysql.DeviceToken)}
}

func deviceKey(userID, deviceID string) string {
	return userID + "|" + deviceID
}

func (r *memDeviceRepo) Register(_ context.Context, userID, deviceID, token string, platform common.Platform) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[deviceKey(userID, deviceID)] = &dbmysql.DeviceToken{
		UserID:   userID,
		DeviceID: deviceID,
		Token:    token,
		Platform: string(platform),
		IsActive: true,
	}
	return nil
}

func (r *memDeviceRepo) Deactivate(_ context.Context, userID, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceKey(userID, deviceID)]
	if !ok {
		return fmt.Errorf("device not found: %s/%s", userID, deviceID)
	}
	d.IsActive = false
	return nil
}

func (r *memDeviceRepo) DeactivateByToken(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.devices {
		if d.Token == token {
			d.IsActive = false
		}
	}
	return nil
}

func (r *memDeviceRepo) ListActive(_ context.Context, userID string) ([]*dbmysql.DeviceToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*dbmysql.DeviceToken
	for key, d := range r.devices {
		if d.IsActive && strings.HasPrefix(key, userID+"|") {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memCriticalRepo struct {
	mu      sync.Mutex
	entries map[string]*dbmysql.CriticalNotification
}

func newMemCriticalRepo() *memCriticalRepo {
	return &memCriticalRepo{entries: make(map[string]*dbmysql.CriticalNotification)}
}

func (r *memCriticalRepo) Store(_ context.Context, userID string, req common.NotificationRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := userID + "|" + req.ID
	if _, exists := r.entries[key]; exists {
		return nil
	}
	entry, err := dbmysql.NewCriticalNotification(userID, req)
	if err != nil {
		return err
	}
	r.entries[key] = entry
	return nil
}

func (r *memCriticalRepo) Drain(_ context.Context, userID string) ([]*dbmysql.CriticalNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*dbmysql.CriticalNotification
	now := time.Now()
	for _, entry := range r.entries {
		if entry.UserID == userID && !entry.Delivered {
			entry.Delivered = true
			entry.DeliveredAt = &now
			cp := *entry
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memCriticalRepo) Ack(_ context.Context, userID string, notificationIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range notificationIDs {
		delete(r.entries, userID+"|"+id)
	}
	return nil
}

func (r *memCriticalRepo) PendingCount(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, entry := range r.entries {
		if entry.UserID == userID && !entry.Delivered {
			count++
		}
	}
	return count, nil
}

// fakeGateway programs per-token outcomes.
type fakeGatewayResult struct {
	accepted bool
	errCode  string
	err      error
}

type fakeGateway struct {
	mu      sync.Mutex
	results map[string]fakeGatewayResult
	calls   map[string]int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		results: make(map[string]fakeGatewayResult),
		calls:   make(map[string]int),
	}
}

func (g *fakeGateway) setResult(token string, result fakeGatewayResult) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.results[token] = result
}

func (g *fakeGateway) callCount(token string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[token]
}

func (g *fakeGateway) Send(_ context.Context, token string, _ common.Platform, _, _ string, _ common.Metadata, _ common.Priority) (bool, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[token]++
	if result, ok := g.results[token]; ok {
		return result.accepted, result.errCode, result.err
	}
	return true, "", nil
}

type fakeWebhookSender struct {
	mu       sync.Mutex
	err      error
	payloads []any
}

func (s *fakeWebhookSender) Send(_ context.Context, _ string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.payloads = append(s.payloads, payload)
	return nil
}

func (s *fakeWebhookSender) sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

// makeAttempt builds a pending push attempt with the connection-request
// policy denormalized on, the shape the orchestrator writes.
func makeAttempt(notificationID, userID string, channel common.Channel) *dbmysql.DeliveryAttempt {
	token := "token-" + userID
	attempt := &dbmysql.DeliveryAttempt{
		ID:              uuid.NewString(),
		NotificationID:  notificationID,
		RecipientUserID: userID,
		Type:            string(common.ConnectionRequestType),
		Title:           "New connection request",
		Body:            "Someone wants to connect",
		Priority:        string(common.PriorityHigh),
		Channel:         string(channel),
		Status:          string(common.StatusPending),
		AttemptNumber:   1,
		MaxRetries:      4,
		BaseDelayMs:     30_000,
	}
	if channel == common.ChannelPush {
		attempt.DeviceToken = &token
		attempt.DevicePlatform = string(common.PlatformIOS)
	}
	return attempt
}

// manualClock lets tests advance retry schedules deterministically.
type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func newManualClock(start time.Time) *manualClock {
	return &manualClock{t: start}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
