package notify

import (
	"context"
	"log"

	"github.com/google/uuid"

	"patternpals/internal/common"
	"patternpals/internal/config"
	"patternpals/internal/dbmysql"
)

// Service is the public face of the delivery engine: submission, device
// registry, critical mailbox and metrics. It owns the background retry
// loop and the analytics collector.
type Service struct {
	router    *Router
	orch      *Orchestrator
	retry     *RetryManager
	tracker   *StatusTracker
	collector *AnalyticsCollector
	attempts  dbmysql.AttemptRepository
	devices   dbmysql.DeviceRepository
	critical  dbmysql.CriticalRepository
	clock     common.Clock

	cancel context.CancelFunc
}

func NewService(
	cfg *config.Config,
	attempts dbmysql.AttemptRepository,
	devices dbmysql.DeviceRepository,
	critical dbmysql.CriticalRepository,
	gateway common.PushGateway,
	webhookSender common.WebhookSender,
	sink common.AnalyticsSink,
) *Service {
	return NewServiceWithClock(cfg, attempts, devices, critical, gateway, webhookSender, sink, common.NewClock())
}

// NewServiceWithClock injects the time source so retry schedules can be
// driven deterministically.
func NewServiceWithClock(
	cfg *config.Config,
	attempts dbmysql.AttemptRepository,
	devices dbmysql.DeviceRepository,
	critical dbmysql.CriticalRepository,
	gateway common.PushGateway,
	webhookSender common.WebhookSender,
	sink common.AnalyticsSink,
	clock common.Clock,
) *Service {
	collector := NewAnalyticsCollector(sink, cfg.Engine.AnalyticsWorkers, cfg.Engine.AnalyticsBuffer)
	tracker := NewStatusTracker(attempts, clock)
	orch := NewOrchestrator(
		attempts, devices, critical,
		gateway, webhookSender, cfg.Webhook.URL,
		tracker, collector, clock,
		cfg.Engine.MaxRetryDelay,
	)
	router := NewRouter(attempts, orch, clock)
	retry := NewRetryManager(
		attempts, tracker, orch, critical, clock,
		cfg.Engine.TickInterval, cfg.Engine.ClaimBatchSize, cfg.Engine.RetentionAge,
	)

	ctx, cancel := context.WithCancel(context.Background())
	go retry.Run(ctx)

	return &Service{
		router:    router,
		orch:      orch,
		retry:     retry,
		tracker:   tracker,
		collector: collector,
		attempts:  attempts,
		devices:   devices,
		critical:  critical,
		clock:     clock,
		cancel:    cancel,
	}
}

// Submit routes one notification request. See Router.Submit.
func (s *Service) Submit(ctx context.Context, req common.NotificationRequest) (bool, error) {
	return s.router.Submit(ctx, req)
}

// SubmitBroadcast fans an announcement out to the given recipients.
func (s *Service) SubmitBroadcast(ctx context.Context, req common.NotificationRequest, recipients []string) (int, error) {
	return s.router.SubmitBroadcast(ctx, req, recipients)
}

// RegisterDevice upserts a device token; re-registration rotates the
// token with last write wins.
func (s *Service) RegisterDevice(ctx context.Context, userID, deviceID, token string, platform common.Platform) error {
	return s.devices.Register(ctx, userID, deviceID, token, platform)
}

// DeactivateDevice soft-deletes a device token. In-flight sends to the
// token are allowed to complete; only future attempts are prevented.
func (s *Service) DeactivateDevice(ctx context.Context, userID, deviceID string) error {
	return s.devices.Deactivate(ctx, userID, deviceID)
}

// DrainCritical returns and marks delivered all pending fallback entries
// for a user. Called once per client-foreground event; the transactional
// mark guarantees two racing drains split the mailbox without overlap.
// Each drained entry is recorded as a delivered in-app attempt so metrics
// reflect eventual delivery through the fallback path.
func (s *Service) DrainCritical(ctx context.Context, userID string) ([]common.NotificationRequest, error) {
	entries, err := s.critical.Drain(ctx, userID)
	if err != nil {
		return nil, err
	}

	requests := make([]common.NotificationRequest, 0, len(entries))
	for _, entry := range entries {
		req, err := entry.Request()
		if err != nil {
			log.Printf("Skipping undecodable critical entry %s/%s: %v", entry.UserID, entry.NotificationID, err)
			continue
		}
		requests = append(requests, req)

		attempt := &dbmysql.DeliveryAttempt{
			ID:              uuid.NewString(),
			NotificationID:  req.ID,
			RecipientUserID: userID,
			Type:            string(req.Type),
			Title:           req.Title,
			Body:            req.Body,
			Data:            req.Data,
			Priority:        string(common.PriorityCritical),
			Channel:         string(common.ChannelInApp),
			Status:          string(common.StatusDelivered),
			AttemptNumber:   1,
		}
		if err := s.attempts.Create(ctx, attempt); err != nil {
			log.Printf("Failed to record fallback delivery for %s: %v", req.ID, err)
		}

		s.collector.Record(common.DeliverySample{
			NotificationID: req.ID,
			UserID:         userID,
			DeliveryMethod: string(common.ChannelInApp),
			Success:        true,
			RecordedAt:     s.clock.Now(),
		})
	}

	return requests, nil
}

// ConfirmDelivered records a delivery confirmation from the gateway or
// the client for one attempt. Best effort; a stale confirmation against
// a terminal attempt is ignored.
func (s *Service) ConfirmDelivered(ctx context.Context, attemptID string) (bool, error) {
	return s.tracker.MarkDelivered(ctx, attemptID)
}

// AttemptsFor returns the full attempt history of one notification.
func (s *Service) AttemptsFor(ctx context.Context, notificationID string) ([]*dbmysql.DeliveryAttempt, error) {
	return s.attempts.ByNotificationID(ctx, notificationID)
}

// AckCritical deletes mailbox entries the client confirmed consuming.
func (s *Service) AckCritical(ctx context.Context, userID string, notificationIDs []string) error {
	return s.critical.Ack(ctx, userID, notificationIDs)
}

// Metrics aggregates delivery counters and the mean delivery latency.
func (s *Service) Metrics(ctx context.Context) (common.MetricsSnapshot, error) {
	counts, err := s.attempts.Counts(ctx)
	if err != nil {
		return common.MetricsSnapshot{}, err
	}

	return common.MetricsSnapshot{
		TotalSent:             counts.TotalSent,
		Delivered:             counts.Delivered,
		Retried:               counts.Retried,
		Failed:                counts.Failed,
		AverageDeliveryTimeMs: s.collector.AverageElapsedMs(ctx),
	}, nil
}

// Tick exposes one retry-queue pass for callers that drive time
// themselves (shutdown drains, tests with a manual clock).
func (s *Service) Tick(ctx context.Context) {
	s.retry.Tick(ctx)
}

// Shutdown stops the retry loop, waits for in-flight sends, and flushes
// the analytics collector.
func (s *Service) Shutdown() {
	s.cancel()
	s.orch.Wait()
	s.collector.Shutdown()
	log.Println("Notification service shutdown complete")
}
