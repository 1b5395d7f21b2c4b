package notify

import (
	"context"
	"log"
	"time"

	"patternpals/internal/common"
	"patternpals/internal/dbmysql"
)

// StatusTracker is the only writer of an attempt's status, timestamps and
// error message. Every transition is a guarded check-and-set through the
// repository, so states only move forward:
//
//	pending -> sent -> delivered
//	pending|sent -> failed -> pending(attempt+1) -> ... -> expired
type StatusTracker struct {
	attempts dbmysql.AttemptRepository
	clock    common.Clock
}

func NewStatusTracker(attempts dbmysql.AttemptRepository, clock common.Clock) *StatusTracker {
	return &StatusTracker{attempts: attempts, clock: clock}
}

// MarkSent records gateway acceptance. Acceptance does not guarantee the
// device received the message.
func (t *StatusTracker) MarkSent(ctx context.Context, attemptID string) (bool, error) {
	return t.transition(ctx, attemptID,
		[]common.DeliveryStatus{common.StatusPending},
		map[string]interface{}{
			"status":     string(common.StatusSent),
			"updated_at": t.clock.Now(),
		})
}

// MarkDelivered records a delivery confirmation. Webhook and in-app
// channels confirm on accept, so pending is a legal origin.
func (t *StatusTracker) MarkDelivered(ctx context.Context, attemptID string) (bool, error) {
	return t.transition(ctx, attemptID,
		[]common.DeliveryStatus{common.StatusPending, common.StatusSent},
		map[string]interface{}{
			"status":     string(common.StatusDelivered),
			"updated_at": t.clock.Now(),
		})
}

// MarkFailed records a per-attempt failure. A non-nil nextRetryAt puts
// the attempt on the retry queue; permanent outcomes and spent budgets
// go through MarkExpired instead so the lineage terminates.
func (t *StatusTracker) MarkFailed(ctx context.Context, attemptID, errMsg string, nextRetryAt *time.Time) (bool, error) {
	return t.transition(ctx, attemptID,
		[]common.DeliveryStatus{common.StatusPending, common.StatusSent},
		map[string]interface{}{
			"status":        string(common.StatusFailed),
			"error_message": errMsg,
			"next_retry_at": nextRetryAt,
			"claimed":       false,
			"updated_at":    t.clock.Now(),
		})
}

// Reoffer moves a claimed failed attempt back to pending under the next
// attempt number. The attempt number strictly increases within a lineage.
func (t *StatusTracker) Reoffer(ctx context.Context, attemptID string, nextAttemptNumber int) (bool, error) {
	return t.transition(ctx, attemptID,
		[]common.DeliveryStatus{common.StatusFailed},
		map[string]interface{}{
			"status":         string(common.StatusPending),
			"attempt_number": nextAttemptNumber,
			"next_retry_at":  nil,
			"claimed":        false,
			"updated_at":     t.clock.Now(),
		})
}

// MarkExpired closes an attempt whose retry budget is spent.
func (t *StatusTracker) MarkExpired(ctx context.Context, attemptID, errMsg string) (bool, error) {
	return t.transition(ctx, attemptID,
		[]common.DeliveryStatus{common.StatusPending, common.StatusSent, common.StatusFailed},
		map[string]interface{}{
			"status":        string(common.StatusExpired),
			"error_message": errMsg,
			"next_retry_at": nil,
			"claimed":       false,
			"updated_at":    t.clock.Now(),
		})
}

func (t *StatusTracker) transition(
	ctx context.Context,
	attemptID string,
	from []common.DeliveryStatus,
	updates map[string]interface{},
) (bool, error) {
	applied, err := t.attempts.UpdateFrom(ctx, attemptID, from, updates)
	if err != nil {
		return false, err
	}
	if !applied {
		// Guard mismatch: a concurrent writer already moved the attempt
		// past us. Terminal states are never revisited.
		log.Printf("Skipped stale transition for attempt %s to %v", attemptID, updates["status"])
	}
	return applied, nil
}
