package dbmysql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"patternpals/internal/common"
)

type DeviceRepository interface {
	// Register upserts on (user_id, device_id); re-registering rotates the
	// token, last write wins, and reactivates the device.
	Register(ctx context.Context, userID, deviceID, token string, platform common.Platform) error
	// Deactivate is a soft delete so delivery history stays queryable.
	Deactivate(ctx context.Context, userID, deviceID string) error
	DeactivateByToken(ctx context.Context, token string) error
	ListActive(ctx context.Context, userID string) ([]*DeviceToken, error)
}

type deviceRepository struct {
	db *gorm.DB
}

func NewDeviceRepository(db *gorm.DB) DeviceRepository {
	return &deviceRepository{db: db}
}

func (r *deviceRepository) Register(
	ctx context.Context,
	userID, deviceID, token string,
	platform common.Platform,
) error {
	device := &DeviceToken{
		UserID:   userID,
		DeviceID: deviceID,
		Token:    token,
		Platform: string(platform),
		IsActive: true,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "device_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"token", "platform", "is_active", "updated_at"}),
		}).
		Create(device).Error
	if err != nil {
		return fmt.Errorf("%w: failed to register device: %w", common.ErrStorage, err)
	}

	return nil
}

func (r *deviceRepository) Deactivate(ctx context.Context, userID, deviceID string) error {
	result := r.db.WithContext(ctx).
		Model(&DeviceToken{}).
		Where("user_id = ? AND device_id = ?", userID, deviceID).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("%w: failed to deactivate device: %w", common.ErrStorage, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("device not found: %s/%s", userID, deviceID)
	}

	return nil
}

func (r *deviceRepository) DeactivateByToken(ctx context.Context, token string) error {
	result := r.db.WithContext(ctx).
		Model(&DeviceToken{}).
		Where("token = ?", token).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("%w: failed to deactivate token: %w", common.ErrStorage, result.Error)
	}

	return nil
}

func (r *deviceRepository) ListActive(ctx context.Context, userID string) ([]*DeviceToken, error) {
	var devices []*DeviceToken

	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("updated_at DESC").
		Find(&devices).Error
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list active devices: %w", common.ErrStorage, err)
	}

	return devices, nil
}
