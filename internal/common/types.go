package common

import (
	"time"
)

type NotificationType string

const (
	ConnectionRequestType  NotificationType = "connection_request"
	PatternAchievementType NotificationType = "pattern_achievement"
	SessionReminderType    NotificationType = "session_reminder"
	NewMatchType           NotificationType = "new_match"
	UrgentAnnouncementType NotificationType = "urgent_announcement"
	SystemType             NotificationType = "system"
)

// Valid reports whether t is one of the closed set of notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case ConnectionRequestType, PatternAchievementType, SessionReminderType,
		NewMatchType, UrgentAnnouncementType, SystemType:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank orders priorities so they can be compared; unknown values rank lowest.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityNormal:
		return 2
	case PriorityHigh:
		return 3
	case PriorityCritical:
		return 4
	}
	return 0
}

type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusFailed    DeliveryStatus = "failed"
	StatusExpired   DeliveryStatus = "expired"
)

// Terminal reports whether no further transition may leave this status.
// A failed attempt with retry budget left is re-offered under the next
// attempt number, which is a forward transition, not a revisit.
func (s DeliveryStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusExpired
}

type Channel string

const (
	ChannelPush    Channel = "push"
	ChannelWebhook Channel = "webhook"
	ChannelInApp   Channel = "in_app"
)

type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

type Metadata map[string]string

// NotificationRequest is the unit of work submitted to the engine.
// Immutable once submitted; a retry re-sends the same request.
type NotificationRequest struct {
	ID              string           `json:"id"`
	RecipientUserID string           `json:"recipient_user_id"`
	Type            NotificationType `json:"type"`
	Title           string           `json:"title"`
	Body            string           `json:"body"`
	Data            Metadata         `json:"data,omitempty"`
	Priority        Priority         `json:"priority,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// DeliverySample is one analytics observation emitted per dispatch.
type DeliverySample struct {
	NotificationID string    `json:"notification_id" bson:"notification_id"`
	UserID         string    `json:"user_id" bson:"user_id"`
	DeliveryMethod string    `json:"delivery_method" bson:"delivery_method"`
	ElapsedMs      int64     `json:"elapsed_ms" bson:"elapsed_ms"`
	Success        bool      `json:"success" bson:"success"`
	RecordedAt     time.Time `json:"recorded_at" bson:"recorded_at"`
}

// MetricsSnapshot aggregates delivery outcomes for the metrics endpoint.
type MetricsSnapshot struct {
	TotalSent             int64   `json:"total_sent"`
	Delivered             int64   `json:"delivered"`
	Retried               int64   `json:"retried"`
	Failed                int64   `json:"failed"`
	AverageDeliveryTimeMs float64 `json:"average_delivery_time_ms"`
}
