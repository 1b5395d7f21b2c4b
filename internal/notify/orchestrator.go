package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"patternpals/internal/common"
	"patternpals/internal/dbmysql"
)

// ReasonNoActiveDevices is recorded on the terminal attempt created when
// a request targets a user with no active device tokens.
const ReasonNoActiveDevices = "no_active_devices"

// WebhookPayload is the JSON body posted on the webhook channel.
type WebhookPayload struct {
	NotificationID  string                  `json:"notificationId"`
	RecipientUserID string                  `json:"recipientUserId"`
	Type            common.NotificationType `json:"type"`
	Title           string                  `json:"title"`
	Body            string                  `json:"body"`
	Data            common.Metadata         `json:"data,omitempty"`
}

// Orchestrator fans a notification out to the recipient's devices and
// channels, records one DeliveryAttempt per target, and drives each
// attempt's outcome through the status tracker. Per-device sends run
// concurrently; one device's failure never blocks another's attempt.
type Orchestrator struct {
	attempts      dbmysql.AttemptRepository
	devices       dbmysql.DeviceRepository
	critical      dbmysql.CriticalRepository
	gateway       common.PushGateway
	webhookSender common.WebhookSender
	webhookURL    string
	tracker       *StatusTracker
	collector     *AnalyticsCollector
	clock         common.Clock
	maxRetryDelay time.Duration

	wg sync.WaitGroup
}

func NewOrchestrator(
	attempts dbmysql.AttemptRepository,
	devices dbmysql.DeviceRepository,
	critical dbmysql.CriticalRepository,
	gateway common.PushGateway,
	webhookSender common.WebhookSender,
	webhookURL string,
	tracker *StatusTracker,
	collector *AnalyticsCollector,
	clock common.Clock,
	maxRetryDelay time.Duration,
) *Orchestrator {
	return &Orchestrator{
		attempts:      attempts,
		devices:       devices,
		critical:      critical,
		gateway:       gateway,
		webhookSender: webhookSender,
		webhookURL:    webhookURL,
		tracker:       tracker,
		collector:     collector,
		clock:         clock,
		maxRetryDelay: maxRetryDelay,
	}
}

// Dispatch persists the initial pending attempts synchronously (a storage
// failure here is fatal to the dispatch, there is nothing to retry if the
// attempt was never recorded) and then launches the gateway sends
// asynchronously. Completion is observed through the status tracker.
func (o *Orchestrator) Dispatch(ctx context.Context, req common.NotificationRequest, policy Policy) error {
	priority := PriorityFor(req)
	criticalTier := IsCriticalTier(policy, priority)

	devices, err := o.devices.ListActive(ctx, req.RecipientUserID)
	if err != nil {
		return err
	}

	if len(devices) == 0 {
		// The webhook channel needs no device token, so a high-tier
		// request still gets its secondary-channel attempt.
		if o.webhookURL != "" && priority.Rank() >= common.PriorityHigh.Rank() {
			return o.dispatchWebhookOnly(ctx, req, policy, priority)
		}
		return o.dispatchWithoutDevices(ctx, req, policy, priority, criticalTier)
	}

	attempts := make([]*dbmysql.DeliveryAttempt, 0, len(devices)+1)
	for _, device := range devices {
		token := device.Token
		attempt := o.newAttempt(req, policy, priority, common.ChannelPush, &token)
		attempt.DevicePlatform = device.Platform
		attempts = append(attempts, attempt)
	}

	if o.webhookURL != "" && priority.Rank() >= common.PriorityHigh.Rank() {
		attempts = append(attempts, o.newAttempt(req, policy, priority, common.ChannelWebhook, nil))
	}

	if err := o.attempts.CreateBatch(ctx, attempts); err != nil {
		return err
	}

	for _, attempt := range attempts {
		o.wg.Add(1)
		go func(a *dbmysql.DeliveryAttempt) {
			defer o.wg.Done()
			// Detached from the submission context: a returned Submit
			// call must not cancel an in-flight gateway send.
			o.send(context.Background(), a)
		}(attempt)
	}

	return nil
}

// Redeliver re-sends a single claimed attempt under its next attempt
// number. Each device's attempt follows its own retry schedule.
func (o *Orchestrator) Redeliver(ctx context.Context, attempt *dbmysql.DeliveryAttempt) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.send(context.Background(), attempt)
	}()
}

// Wait blocks until all in-flight sends have completed.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// dispatchWebhookOnly runs the dispatch with the webhook as the sole
// channel. Failure handling is the regular attempt lifecycle, including
// the critical fallback on expiry.
func (o *Orchestrator) dispatchWebhookOnly(
	ctx context.Context,
	req common.NotificationRequest,
	policy Policy,
	priority common.Priority,
) error {
	attempt := o.newAttempt(req, policy, priority, common.ChannelWebhook, nil)
	if err := o.attempts.Create(ctx, attempt); err != nil {
		return err
	}

	log.Printf("No active devices for user %s, trying webhook channel for %s",
		req.RecipientUserID, req.ID)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.send(context.Background(), attempt)
	}()

	return nil
}

// dispatchWithoutDevices records the terminal no-target attempt; a
// critical-tier request goes straight to the fallback mailbox since
// retrying push with zero targets is pointless.
func (o *Orchestrator) dispatchWithoutDevices(
	ctx context.Context,
	req common.NotificationRequest,
	policy Policy,
	priority common.Priority,
	criticalTier bool,
) error {
	attempt := o.newAttempt(req, policy, priority, common.ChannelPush, nil)
	attempt.Status = string(common.StatusFailed)
	msg := ReasonNoActiveDevices
	attempt.ErrorMessage = &msg

	if err := o.attempts.Create(ctx, attempt); err != nil {
		return err
	}

	if criticalTier {
		if err := o.critical.Store(ctx, req.RecipientUserID, req); err != nil {
			return err
		}
		log.Printf("No active devices for user %s, stored critical fallback for %s",
			req.RecipientUserID, req.ID)
	}

	o.collector.Record(common.DeliverySample{
		NotificationID: req.ID,
		UserID:         req.RecipientUserID,
		DeliveryMethod: string(common.ChannelPush),
		ElapsedMs:      0,
		Success:        false,
		RecordedAt:     o.clock.Now(),
	})

	return nil
}

func (o *Orchestrator) newAttempt(
	req common.NotificationRequest,
	policy Policy,
	priority common.Priority,
	channel common.Channel,
	deviceToken *string,
) *dbmysql.DeliveryAttempt {
	return &dbmysql.DeliveryAttempt{
		ID:              uuid.NewString(),
		NotificationID:  req.ID,
		RecipientUserID: req.RecipientUserID,
		Type:            string(req.Type),
		Title:           req.Title,
		Body:            req.Body,
		Data:            req.Data,
		Priority:        string(priority),
		Channel:         string(channel),
		DeviceToken:     deviceToken,
		Status:          string(common.StatusPending),
		AttemptNumber:   1,
		MaxRetries:      policy.MaxRetries,
		BaseDelayMs:     policy.BaseDelay.Milliseconds(),
		IsCritical:      IsCriticalTier(policy, priority),
	}
}

// send performs one delivery try for one attempt and records the outcome.
func (o *Orchestrator) send(ctx context.Context, attempt *dbmysql.DeliveryAttempt) {
	start := o.clock.Now()
	var success bool

	switch common.Channel(attempt.Channel) {
	case common.ChannelPush:
		success = o.sendPush(ctx, attempt)
	case common.ChannelWebhook:
		success = o.sendWebhook(ctx, attempt)
	case common.ChannelInApp:
		// No network hop: persisting the record is the delivery.
		applied, err := o.tracker.MarkDelivered(ctx, attempt.ID)
		if err != nil {
			log.Printf("Failed to mark in-app attempt %s delivered: %v", attempt.ID, err)
		}
		success = applied && err == nil
	default:
		log.Printf("Unknown channel %q on attempt %s", attempt.Channel, attempt.ID)
	}

	o.collector.Record(common.DeliverySample{
		NotificationID: attempt.NotificationID,
		UserID:         attempt.RecipientUserID,
		DeliveryMethod: attempt.Channel,
		ElapsedMs:      o.clock.Now().Sub(start).Milliseconds(),
		Success:        success,
		RecordedAt:     o.clock.Now(),
	})
}

func (o *Orchestrator) sendPush(ctx context.Context, attempt *dbmysql.DeliveryAttempt) bool {
	if attempt.DeviceToken == nil || *attempt.DeviceToken == "" {
		o.failAttempt(ctx, attempt, "missing device token")
		return false
	}
	if o.gateway == nil {
		o.failAttempt(ctx, attempt, "push gateway unavailable")
		return false
	}

	accepted, errCode, err := o.gateway.Send(ctx,
		*attempt.DeviceToken,
		common.Platform(attempt.DevicePlatform),
		attempt.Title,
		attempt.Body,
		attempt.Data,
		common.Priority(attempt.Priority),
	)
	if accepted {
		if _, err := o.tracker.MarkSent(ctx, attempt.ID); err != nil {
			log.Printf("Failed to mark attempt %s sent: %v", attempt.ID, err)
			return false
		}
		return true
	}

	if errCode == common.ErrCodeInvalidToken {
		// Permanent for this device; the attempt terminates so the
		// lineage can close. Other devices keep their own attempts.
		o.expire(ctx, attempt, errMessage(err))
		if derr := o.devices.DeactivateByToken(ctx, *attempt.DeviceToken); derr != nil {
			log.Printf("Failed to deactivate invalid token: %v", derr)
		} else {
			log.Printf("Deactivated invalid device token for user %s", attempt.RecipientUserID)
		}
		return false
	}

	o.failAttempt(ctx, attempt, errMessage(err))
	return false
}

func (o *Orchestrator) sendWebhook(ctx context.Context, attempt *dbmysql.DeliveryAttempt) bool {
	if o.webhookSender == nil || o.webhookURL == "" {
		o.failAttempt(ctx, attempt, "webhook sender unavailable")
		return false
	}

	payload := WebhookPayload{
		NotificationID:  attempt.NotificationID,
		RecipientUserID: attempt.RecipientUserID,
		Type:            common.NotificationType(attempt.Type),
		Title:           attempt.Title,
		Body:            attempt.Body,
		Data:            attempt.Data,
	}

	err := o.webhookSender.Send(ctx, o.webhookURL, payload)
	if err == nil {
		// Webhook accept is a confirmed hand-off, straight to delivered.
		if _, terr := o.tracker.MarkDelivered(ctx, attempt.ID); terr != nil {
			log.Printf("Failed to mark webhook attempt %s delivered: %v", attempt.ID, terr)
			return false
		}
		return true
	}

	if errors.Is(err, common.ErrPermanent) {
		// Retrying a 4xx endpoint answer cannot succeed; terminate now.
		o.expire(ctx, attempt, err.Error())
		return false
	}

	o.failAttempt(ctx, attempt, err.Error())
	return false
}

// failAttempt handles a transient failure: schedule the next retry while
// budget remains, otherwise expire and, for critical tiers, persist the
// fallback mailbox entry.
func (o *Orchestrator) failAttempt(ctx context.Context, attempt *dbmysql.DeliveryAttempt, errMsg string) {
	if attempt.AttemptNumber < attempt.MaxRetries {
		delay := Backoff(time.Duration(attempt.BaseDelayMs)*time.Millisecond, attempt.AttemptNumber, o.maxRetryDelay)
		nextRetry := o.clock.Now().Add(delay)
		if _, err := o.tracker.MarkFailed(ctx, attempt.ID, errMsg, &nextRetry); err != nil {
			log.Printf("Failed to schedule retry for attempt %s: %v", attempt.ID, err)
		}
		return
	}

	o.expire(ctx, attempt, fmt.Sprintf("%s: %s", common.ErrExhausted, errMsg))
}

// expire closes an attempt for good and, on critical tiers, persists the
// fallback mailbox entry.
func (o *Orchestrator) expire(ctx context.Context, attempt *dbmysql.DeliveryAttempt, errMsg string) {
	if _, err := o.tracker.MarkExpired(ctx, attempt.ID, errMsg); err != nil {
		log.Printf("Failed to expire attempt %s: %v", attempt.ID, err)
		return
	}

	if attempt.IsCritical {
		if err := o.critical.Store(ctx, attempt.RecipientUserID, attempt.Request()); err != nil {
			log.Printf("Failed to store critical fallback for %s: %v", attempt.NotificationID, err)
		}
	}
}

func errMessage(err error) string {
	if err == nil {
		return "gateway rejected send"
	}
	return err.Error()
}
