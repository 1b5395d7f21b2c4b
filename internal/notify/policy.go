package notify

import (
	"time"

	"patternpals/internal/common"
)

// Policy is the per-type retry policy resolved at submission time and
// denormalized onto each attempt row.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Critical   bool
}

// defaultPolicies is the closed policy table. Values are tunable
// defaults, not behavioral guarantees.
var defaultPolicies = map[common.NotificationType]Policy{
	common.ConnectionRequestType:  {MaxRetries: 4, BaseDelay: 30 * time.Second},
	common.PatternAchievementType: {MaxRetries: 2, BaseDelay: 30 * time.Second},
	common.SessionReminderType:    {MaxRetries: 3, BaseDelay: 30 * time.Second, Critical: true},
	common.NewMatchType:           {MaxRetries: 2, BaseDelay: 60 * time.Second},
	common.UrgentAnnouncementType: {MaxRetries: 5, BaseDelay: 15 * time.Second, Critical: true},
	common.SystemType:             {MaxRetries: 1, BaseDelay: 30 * time.Second},
}

// defaultPriorities maps each type to the priority used when the caller
// does not supply one.
var defaultPriorities = map[common.NotificationType]common.Priority{
	common.ConnectionRequestType:  common.PriorityHigh,
	common.PatternAchievementType: common.PriorityNormal,
	common.SessionReminderType:    common.PriorityHigh,
	common.NewMatchType:           common.PriorityNormal,
	common.UrgentAnnouncementType: common.PriorityCritical,
	common.SystemType:             common.PriorityLow,
}

// PolicyFor resolves the retry policy for a notification type.
func PolicyFor(t common.NotificationType) Policy {
	if p, ok := defaultPolicies[t]; ok {
		return p
	}
	return Policy{MaxRetries: 1, BaseDelay: 30 * time.Second}
}

// PriorityFor returns the caller-supplied priority when present,
// otherwise the type default.
func PriorityFor(req common.NotificationRequest) common.Priority {
	if req.Priority != "" {
		return req.Priority
	}
	if p, ok := defaultPriorities[req.Type]; ok {
		return p
	}
	return common.PriorityNormal
}

// IsCriticalTier reports whether an exhausted request falls back to the
// critical mailbox: either the type's policy says so or the caller asked
// for critical priority explicitly.
func IsCriticalTier(policy Policy, priority common.Priority) bool {
	return policy.Critical || priority == common.PriorityCritical
}
