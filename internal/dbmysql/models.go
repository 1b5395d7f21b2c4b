package dbmysql

import (
	"encoding/json"
	"time"

	"patternpals/internal/common"
)

// DeliveryAttempt is one try to deliver a notification through one channel
// to one device. The request payload is denormalized onto the row so a
// retry re-sends identical content, and the policy columns let the retry
// queue survive restarts without consulting in-memory state.
type DeliveryAttempt struct {
	ID              string          `gorm:"primaryKey;size:36"`
	NotificationID  string          `gorm:"not null;index;size:64"`
	RecipientUserID string          `gorm:"not null;index;size:36"`
	Type            string          `gorm:"not null;size:50"`
	Title           string          `gorm:"size:255"`
	Body            string          `gorm:"type:text"`
	Data            common.Metadata `gorm:"type:json"`
	Priority        string          `gorm:"not null;size:10"`
	Channel         string          `gorm:"not null;size:10"`
	DeviceToken     *string         `gorm:"size:255"`
	DevicePlatform  string          `gorm:"size:10"`
	Status          string          `gorm:"not null;default:'pending';size:10;index"`
	AttemptNumber   int             `gorm:"not null;default:1"`
	ErrorMessage    *string         `gorm:"size:512"`
	NextRetryAt     *time.Time      `gorm:"index"`
	Claimed         bool            `gorm:"not null;default:false"`
	MaxRetries      int             `gorm:"not null;default:0"`
	BaseDelayMs     int64           `gorm:"not null;default:0"`
	IsCritical      bool            `gorm:"not null;default:false"`
	CreatedAt       time.Time       `gorm:"autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime"`
}

func (DeliveryAttempt) TableName() string {
	return "delivery_attempts"
}

// Request reconstructs the submitted notification from the attempt row.
func (a *DeliveryAttempt) Request() common.NotificationRequest {
	return common.NotificationRequest{
		ID:              a.NotificationID,
		RecipientUserID: a.RecipientUserID,
		Type:            common.NotificationType(a.Type),
		Title:           a.Title,
		Body:            a.Body,
		Data:            a.Data,
		Priority:        common.Priority(a.Priority),
		CreatedAt:       a.CreatedAt,
	}
}

// DeviceToken maps a user's device to its push token. Unique per
// (user_id, device_id); token rotation is last write wins. Tokens are
// deactivated, never deleted, so delivery history stays explainable.
type DeviceToken struct {
	UserID       string    `gorm:"primaryKey;size:36"`
	DeviceID     string    `gorm:"primaryKey;size:64"`
	Token        string    `gorm:"not null;size:255;index"`
	Platform     string    `gorm:"not null;size:10"`
	IsActive     bool      `gorm:"not null;default:true"`
	RegisteredAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (DeviceToken) TableName() string {
	return "device_tokens"
}

// CriticalNotification is a fallback mailbox entry, created when a
// critical-tier request exhausts its retries without a confirmed delivery.
type CriticalNotification struct {
	UserID         string     `gorm:"primaryKey;size:36"`
	NotificationID string     `gorm:"primaryKey;size:64"`
	Payload        string     `gorm:"type:json;not null"`
	Delivered      bool       `gorm:"not null;default:false;index"`
	CreatedAt      time.Time  `gorm:"autoCreateTime"`
	DeliveredAt    *time.Time
}

func (CriticalNotification) TableName() string {
	return "critical_notifications"
}

// Request deserializes the stored notification payload.
func (c *CriticalNotification) Request() (common.NotificationRequest, error) {
	var req common.NotificationRequest
	err := json.Unmarshal([]byte(c.Payload), &req)
	return req, err
}

// NewCriticalNotification serializes a request into a mailbox entry.
func NewCriticalNotification(userID string, req common.NotificationRequest) (*CriticalNotification, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return &CriticalNotification{
		UserID:         userID,
		NotificationID: req.ID,
		Payload:        string(payload),
	}, nil
}
