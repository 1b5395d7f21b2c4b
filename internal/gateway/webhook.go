package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"patternpals/internal/common"
)

// WebhookClient posts JSON payloads to a configured endpoint. Requests
// carry a short-lived HS256 bearer token so receivers can authenticate
// the engine without a shared static header.
type WebhookClient struct {
	client   *http.Client
	secret   []byte
	tokenTTL time.Duration
}

func NewWebhookClient(secret string, tokenTTL, timeout time.Duration) *WebhookClient {
	return &WebhookClient{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
	}
}

func (c *WebhookClient) Send(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal webhook payload: %w", common.ErrPermanent, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: failed to build webhook request: %w", common.ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")

	if len(c.secret) > 0 {
		token, err := c.bearerToken()
		if err != nil {
			return fmt.Errorf("failed to sign webhook token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: webhook request failed: %w", common.ErrTransient, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: webhook endpoint returned %d", common.ErrPermanent, resp.StatusCode)
	default:
		return fmt.Errorf("%w: webhook endpoint returned %d", common.ErrTransient, resp.StatusCode)
	}
}

func (c *WebhookClient) bearerToken() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    "patternpals-notify",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.tokenTTL)),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}
