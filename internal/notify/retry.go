package notify

import (
	"context"
	"log"
	"time"

	"patternpals/internal/common"
	"patternpals/internal/dbmysql"
)

// Backoff computes the delay before retry attemptNumber+1:
// base * 2^(attemptNumber-1), capped at max. The sequence is
// non-decreasing and bounded.
func Backoff(base time.Duration, attemptNumber int, max time.Duration) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}
	if base <= 0 {
		base = 30 * time.Second
	}
	if max <= 0 {
		max = 10 * time.Minute
	}

	delay := base
	for i := 1; i < attemptNumber; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// redeliverer re-offers a claimed attempt to the delivery pipeline.
type redeliverer interface {
	Redeliver(ctx context.Context, attempt *dbmysql.DeliveryAttempt)
}

// RetryManager periodically scans the attempt table for due retries. The
// queue is the table itself, so scheduled retries survive restarts. Each
// due attempt is claimed with a check-and-set before it fires, which
// keeps concurrent ticks from processing the same attempt twice.
type RetryManager struct {
	attempts     dbmysql.AttemptRepository
	tracker      *StatusTracker
	orchestrator redeliverer
	critical     dbmysql.CriticalRepository
	clock        common.Clock
	tickInterval time.Duration
	batchSize    int
	retentionAge time.Duration

	lastPurge time.Time
}

func NewRetryManager(
	attempts dbmysql.AttemptRepository,
	tracker *StatusTracker,
	orchestrator redeliverer,
	critical dbmysql.CriticalRepository,
	clock common.Clock,
	tickInterval time.Duration,
	batchSize int,
	retentionAge time.Duration,
) *RetryManager {
	if tickInterval <= 0 {
		tickInterval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &RetryManager{
		attempts:     attempts,
		tracker:      tracker,
		orchestrator: orchestrator,
		critical:     critical,
		clock:        clock,
		tickInterval: tickInterval,
		batchSize:    batchSize,
		retentionAge: retentionAge,
	}
}

// Run ticks until the context is cancelled.
func (m *RetryManager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Tick claims due attempts and re-offers each under its next attempt
// number. Storage errors are logged and left for the next tick; the
// notification is not penalized for a storage hiccup.
func (m *RetryManager) Tick(ctx context.Context) {
	now := m.clock.Now()

	claimed, err := m.attempts.ClaimDue(ctx, now, m.batchSize)
	if err != nil {
		log.Printf("Retry scan failed: %v", err)
	}

	for _, attempt := range claimed {
		if attempt.AttemptNumber >= attempt.MaxRetries {
			// Shouldn't normally be scheduled, but the budget check is
			// re-verified at fire time.
			if _, err := m.tracker.MarkExpired(ctx, attempt.ID, common.ErrExhausted.Error()); err != nil {
				log.Printf("Failed to expire attempt %s: %v", attempt.ID, err)
				m.releaseClaim(ctx, attempt.ID)
				continue
			}
			if attempt.IsCritical {
				if err := m.critical.Store(ctx, attempt.RecipientUserID, attempt.Request()); err != nil {
					log.Printf("Failed to store critical fallback for %s: %v", attempt.NotificationID, err)
				}
			}
			continue
		}

		next := attempt.AttemptNumber + 1
		applied, err := m.tracker.Reoffer(ctx, attempt.ID, next)
		if err != nil {
			log.Printf("Failed to re-offer attempt %s: %v", attempt.ID, err)
			m.releaseClaim(ctx, attempt.ID)
			continue
		}
		if !applied {
			continue
		}

		attempt.AttemptNumber = next
		attempt.Status = string(common.StatusPending)
		attempt.NextRetryAt = nil
		m.orchestrator.Redeliver(ctx, attempt)
	}

	if len(claimed) > 0 {
		log.Printf("Re-offered %d due delivery attempts", len(claimed))
	}

	m.maybePurge(ctx, now)
}

// releaseClaim returns a claimed attempt to the scan after its re-offer
// hit a storage error, so the next tick retries it instead of the row
// staying latched. Best effort: if the release itself fails, the claim
// lease expires the latch.
func (m *RetryManager) releaseClaim(ctx context.Context, attemptID string) {
	_, err := m.attempts.UpdateFrom(ctx, attemptID,
		[]common.DeliveryStatus{common.StatusFailed},
		map[string]interface{}{
			"claimed":    false,
			"updated_at": m.clock.Now(),
		})
	if err != nil {
		log.Printf("Failed to release claim on attempt %s: %v", attemptID, err)
	}
}

// maybePurge runs the age-based retention cleanup at most once per hour.
func (m *RetryManager) maybePurge(ctx context.Context, now time.Time) {
	if m.retentionAge <= 0 || now.Sub(m.lastPurge) < time.Hour {
		return
	}
	m.lastPurge = now

	purged, err := m.attempts.PurgeOlderThan(ctx, now.Add(-m.retentionAge))
	if err != nil {
		log.Printf("Retention purge failed: %v", err)
		return
	}
	if purged > 0 {
		log.Printf("Purged %d delivery attempts past retention", purged)
	}
}
