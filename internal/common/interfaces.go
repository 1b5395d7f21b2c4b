package common

import (
	"context"
)

// PushGateway abstracts the push provider. A rejected send reports a
// gateway error code; the engine only distinguishes ErrCodeInvalidToken,
// which deactivates the offending device token.
type PushGateway interface {
	Send(ctx context.Context, token string, platform Platform, title, body string, data Metadata, priority Priority) (accepted bool, errCode string, err error)
}

// ErrCodeInvalidToken is the one gateway error code the engine interprets.
const ErrCodeInvalidToken = "invalid_token"

// WebhookSender posts a JSON payload to a configured endpoint.
// A non-2xx response is reported as an error.
type WebhookSender interface {
	Send(ctx context.Context, url string, payload any) error
}

// AnalyticsSink stores delivery samples. Implementations may fail; the
// collector isolates those failures from the delivery path.
type AnalyticsSink interface {
	Insert(ctx context.Context, sample DeliverySample) error
	AverageElapsedMs(ctx context.Context) (float64, error)
}
