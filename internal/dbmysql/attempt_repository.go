package dbmysql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"patternpals/internal/common"
)

// ClaimLease bounds how long a claimed retry may sit unprocessed. A scan
// may reclaim a row whose claim is older than the lease, so a tick that
// died between claiming and re-offering cannot strand the attempt.
const ClaimLease = 5 * time.Minute

// MetricsCounts are the attempt-table aggregates behind the metrics endpoint.
type MetricsCounts struct {
	TotalSent int64
	Delivered int64
	Retried   int64
	Failed    int64
}

type AttemptRepository interface {
	Create(ctx context.Context, attempt *DeliveryAttempt) error
	CreateBatch(ctx context.Context, attempts []*DeliveryAttempt) error
	ByID(ctx context.Context, id string) (*DeliveryAttempt, error)
	ByNotificationID(ctx context.Context, notificationID string) ([]*DeliveryAttempt, error)
	HasOpen(ctx context.Context, notificationID string) (bool, error)
	// UpdateFrom applies updates only while the attempt is still in one of
	// the from statuses. Returns false when the guard did not match, which
	// keeps status transitions monotonic under concurrent writers.
	UpdateFrom(ctx context.Context, id string, from []common.DeliveryStatus, updates map[string]interface{}) (bool, error)
	// ClaimDue atomically marks due failed attempts as claimed so that
	// concurrent ticks never re-offer the same attempt twice.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*DeliveryAttempt, error)
	Counts(ctx context.Context) (MetricsCounts, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type attemptRepository struct {
	db *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) AttemptRepository {
	return &attemptRepository{db: db}
}

func (r *attemptRepository) Create(ctx context.Context, attempt *DeliveryAttempt) error {
	if err := r.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return fmt.Errorf("%w: failed to create delivery attempt: %w", common.ErrStorage, err)
	}
	return nil
}

func (r *attemptRepository) CreateBatch(ctx context.Context, attempts []*DeliveryAttempt) error {
	if len(attempts) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(attempts).Error; err != nil {
		return fmt.Errorf("%w: failed to create delivery attempts: %w", common.ErrStorage, err)
	}
	return nil
}

func (r *attemptRepository) ByID(ctx context.Context, id string) (*DeliveryAttempt, error) {
	var attempt DeliveryAttempt

	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&attempt).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("delivery attempt not found: %s", id)
		}
		return nil, fmt.Errorf("%w: failed to get delivery attempt: %w", common.ErrStorage, err)
	}

	return &attempt, nil
}

func (r *attemptRepository) ByNotificationID(ctx context.Context, notificationID string) ([]*DeliveryAttempt, error) {
	var attempts []*DeliveryAttempt

	err := r.db.WithContext(ctx).
		Where("notification_id = ?", notificationID).
		Order("created_at ASC").
		Find(&attempts).Error
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get delivery attempts: %w", common.ErrStorage, err)
	}

	return attempts, nil
}

func (r *attemptRepository) HasOpen(ctx context.Context, notificationID string) (bool, error) {
	var count int64

	err := r.db.WithContext(ctx).
		Model(&DeliveryAttempt{}).
		Where("notification_id = ? AND status IN ?", notificationID,
			[]string{string(common.StatusPending), string(common.StatusSent), string(common.StatusFailed)}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("%w: failed to check open attempts: %w", common.ErrStorage, err)
	}

	return count > 0, nil
}

func (r *attemptRepository) UpdateFrom(
	ctx context.Context,
	id string,
	from []common.DeliveryStatus,
	updates map[string]interface{},
) (bool, error) {
	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}

	result := r.db.WithContext(ctx).
		Model(&DeliveryAttempt{}).
		Where("id = ? AND status IN ?", id, statuses).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("%w: failed to update delivery attempt: %w", common.ErrStorage, result.Error)
	}

	return result.RowsAffected > 0, nil
}

func (r *attemptRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*DeliveryAttempt, error) {
	var candidates []*DeliveryAttempt

	leaseCutoff := now.Add(-ClaimLease)
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ? AND (claimed = ? OR updated_at < ?)",
			string(common.StatusFailed), now, false, leaseCutoff).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("%w: failed to scan due attempts: %w", common.ErrStorage, err)
	}

	// Per-row check-and-set; a candidate lost to a concurrent tick is
	// skipped. The update refreshes updated_at, which restarts the lease.
	claimed := make([]*DeliveryAttempt, 0, len(candidates))
	for _, attempt := range candidates {
		result := r.db.WithContext(ctx).
			Model(&DeliveryAttempt{}).
			Where("id = ? AND status = ? AND (claimed = ? OR updated_at < ?)",
				attempt.ID, string(common.StatusFailed), false, leaseCutoff).
			Update("claimed", true)
		if result.Error != nil {
			return claimed, fmt.Errorf("%w: failed to claim attempt %s: %w", common.ErrStorage, attempt.ID, result.Error)
		}
		if result.RowsAffected > 0 {
			attempt.Claimed = true
			claimed = append(claimed, attempt)
		}
	}

	return claimed, nil
}

func (r *attemptRepository) Counts(ctx context.Context) (MetricsCounts, error) {
	var counts MetricsCounts
	db := r.db.WithContext(ctx).Model(&DeliveryAttempt{})

	err := db.Session(&gorm.Session{}).
		Where("status IN ?", []string{string(common.StatusSent), string(common.StatusDelivered)}).
		Count(&counts.TotalSent).Error
	if err != nil {
		return counts, fmt.Errorf("%w: failed to count sent attempts: %w", common.ErrStorage, err)
	}

	err = db.Session(&gorm.Session{}).
		Where("status = ?", string(common.StatusDelivered)).
		Count(&counts.Delivered).Error
	if err != nil {
		return counts, fmt.Errorf("%w: failed to count delivered attempts: %w", common.ErrStorage, err)
	}

	err = db.Session(&gorm.Session{}).
		Where("attempt_number > ?", 1).
		Count(&counts.Retried).Error
	if err != nil {
		return counts, fmt.Errorf("%w: failed to count retried attempts: %w", common.ErrStorage, err)
	}

	err = db.Session(&gorm.Session{}).
		Where("status IN ?", []string{string(common.StatusFailed), string(common.StatusExpired)}).
		Count(&counts.Failed).Error
	if err != nil {
		return counts, fmt.Errorf("%w: failed to count failed attempts: %w", common.ErrStorage, err)
	}

	return counts, nil
}

func (r *attemptRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]string{string(common.StatusDelivered), string(common.StatusExpired)}, cutoff).
		Delete(&DeliveryAttempt{})
	if result.Error != nil {
		return 0, fmt.Errorf("%w: failed to purge delivery attempts: %w", common.ErrStorage, result.Error)
	}

	return result.RowsAffected, nil
}
