// Package gateway adapts external delivery providers to the engine's
// narrow interfaces.
package gateway

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"

	"patternpals/internal/common"
)

// fcmSender is the part of the FCM client the gateway uses; the concrete
// *messaging.Client satisfies it.
type fcmSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMGateway sends push messages through Firebase Cloud Messaging.
type FCMGateway struct {
	client fcmSender
}

func NewFCMGateway(client *messaging.Client) *FCMGateway {
	if client == nil {
		return nil
	}
	return &FCMGateway{client: client}
}

func (g *FCMGateway) Send(
	ctx context.Context,
	token string,
	platform common.Platform,
	title, body string,
	data common.Metadata,
	priority common.Priority,
) (bool, string, error) {
	message := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
	}

	if platform == common.PlatformAndroid && priority.Rank() >= common.PriorityHigh.Rank() {
		message.Android = &messaging.AndroidConfig{Priority: "high"}
	}

	_, err := g.client.Send(ctx, message)
	if err == nil {
		return true, "", nil
	}

	if messaging.IsRegistrationTokenNotRegistered(err) || messaging.IsInvalidArgument(err) {
		return false, common.ErrCodeInvalidToken,
			fmt.Errorf("%w: fcm rejected token: %w", common.ErrPermanent, err)
	}

	return false, "", fmt.Errorf("%w: fcm send failed: %w", common.ErrTransient, err)
}
