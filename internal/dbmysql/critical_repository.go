package dbmysql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"patternpals/internal/common"
)

type CriticalRepository interface {
	// Store is idempotent on (user_id, notification_id); re-storing the
	// same exhausted request does not duplicate the mailbox entry.
	Store(ctx context.Context, userID string, req common.NotificationRequest) error
	// Drain returns all undelivered entries for the user and marks them
	// delivered in the same transaction, so two racing foreground events
	// split the mailbox without overlap.
	Drain(ctx context.Context, userID string) ([]*CriticalNotification, error)
	// Ack deletes entries the client has confirmed consuming.
	Ack(ctx context.Context, userID string, notificationIDs []string) error
	PendingCount(ctx context.Context, userID string) (int64, error)
}

type criticalRepository struct {
	db *gorm.DB
}

func NewCriticalRepository(db *gorm.DB) CriticalRepository {
	return &criticalRepository{db: db}
}

func (r *criticalRepository) Store(ctx context.Context, userID string, req common.NotificationRequest) error {
	entry, err := NewCriticalNotification(userID, req)
	if err != nil {
		return fmt.Errorf("failed to serialize critical notification: %w", err)
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(entry).Error
	if err != nil {
		return fmt.Errorf("%w: failed to store critical notification: %w", common.ErrStorage, err)
	}

	return nil
}

func (r *criticalRepository) Drain(ctx context.Context, userID string) ([]*CriticalNotification, error) {
	var entries []*CriticalNotification

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND delivered = ?", userID, false).
			Order("created_at ASC").
			Find(&entries).Error
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			return nil
		}

		ids := make([]string, len(entries))
		for i, entry := range entries {
			ids[i] = entry.NotificationID
		}

		now := time.Now()
		err = tx.
			Model(&CriticalNotification{}).
			Where("user_id = ? AND notification_id IN ? AND delivered = ?", userID, ids, false).
			Updates(map[string]interface{}{
				"delivered":    true,
				"delivered_at": &now,
			}).Error
		if err != nil {
			return err
		}

		for _, entry := range entries {
			entry.Delivered = true
			entry.DeliveredAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to drain critical mailbox: %w", common.ErrStorage, err)
	}

	return entries, nil
}

func (r *criticalRepository) Ack(ctx context.Context, userID string, notificationIDs []string) error {
	if len(notificationIDs) == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).
		Where("user_id = ? AND notification_id IN ? AND delivered = ?", userID, notificationIDs, true).
		Delete(&CriticalNotification{})
	if result.Error != nil {
		return fmt.Errorf("%w: failed to ack critical notifications: %w", common.ErrStorage, result.Error)
	}

	return nil
}

func (r *criticalRepository) PendingCount(ctx context.Context, userID string) (int64, error) {
	var count int64

	err := r.db.WithContext(ctx).
		Model(&CriticalNotification{}).
		Where("user_id = ? AND delivered = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count pending critical notifications: %w", common.ErrStorage, err)
	}

	return count, nil
}
