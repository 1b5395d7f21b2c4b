package notify

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"patternpals/internal/common"
	"patternpals/internal/dbmysql"
)

// Router is the engine's submission surface. It validates, assigns policy
// by type, deduplicates on the request id, and hands accepted requests to
// the orchestrator. Submission never blocks on network I/O: the only
// synchronous work is persisting the initial attempt rows.
type dispatcher interface {
	Dispatch(ctx context.Context, req common.NotificationRequest, policy Policy) error
}

type Router struct {
	attempts     dbmysql.AttemptRepository
	orchestrator dispatcher
	clock        common.Clock
}

func NewRouter(attempts dbmysql.AttemptRepository, orchestrator dispatcher, clock common.Clock) *Router {
	return &Router{
		attempts:     attempts,
		orchestrator: orchestrator,
		clock:        clock,
	}
}

// Submit accepts or rejects a notification request. A rejected submission
// returns false with an error wrapping ErrValidation or ErrStorage;
// resubmitting an id with a live attempt lineage is an accepted no-op.
func (r *Router) Submit(ctx context.Context, req common.NotificationRequest) (bool, error) {
	if req.RecipientUserID == "" {
		log.Printf("Rejected submission %q: missing recipient", req.ID)
		return false, fmt.Errorf("%w: recipient_user_id is required", common.ErrValidation)
	}
	if req.Type == "" || !req.Type.Valid() {
		log.Printf("Rejected submission %q: unknown type %q", req.ID, req.Type)
		return false, fmt.Errorf("%w: unknown notification type %q", common.ErrValidation, req.Type)
	}
	if req.Priority != "" && req.Priority.Rank() == 0 {
		log.Printf("Rejected submission %q: unknown priority %q", req.ID, req.Priority)
		return false, fmt.Errorf("%w: unknown priority %q", common.ErrValidation, req.Priority)
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = r.clock.Now()
	}

	open, err := r.attempts.HasOpen(ctx, req.ID)
	if err != nil {
		return false, err
	}
	if open {
		// Idempotent resubmission: the lineage already exists.
		log.Printf("Duplicate submission for %s ignored", req.ID)
		return true, nil
	}

	policy := PolicyFor(req.Type)
	if err := r.orchestrator.Dispatch(ctx, req, policy); err != nil {
		return false, err
	}

	return true, nil
}

// SubmitBroadcast fans one announcement out to many recipients, deriving
// a per-recipient notification id so each gets its own attempt lineage.
// Returns how many recipients were accepted.
func (r *Router) SubmitBroadcast(ctx context.Context, req common.NotificationRequest, recipients []string) (int, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	accepted := 0
	var errs []error
	for _, userID := range recipients {
		perUser := req
		perUser.ID = fmt.Sprintf("%s:%s", req.ID, userID)
		perUser.RecipientUserID = userID

		ok, err := r.Submit(ctx, perUser)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			accepted++
		}
	}

	return accepted, errors.Join(errs...)
}
