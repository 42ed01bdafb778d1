package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pagebuilder/api-server/internal/config"
	"github.com/pagebuilder/api-server/internal/models"
	"go.uber.org/zap"
)

const (
	// EventResourcesCreated is the event name sent after a bulk creation.
	EventResourcesCreated = "resources_created"

	userAgent = "PageBuilder-Webhook/1.0"
)

// Payload is the wire body of an outbound notification. It carries no
// secrets: key name only, never the key, and page summaries only.
type Payload struct {
	Event      string                      `json:"event"`
	Timestamp  string                      `json:"timestamp"`
	RequestID  string                      `json:"request_id"`
	APIKeyName string                      `json:"api_key_name"`
	TotalPages int                         `json:"total_pages"`
	Pages      []models.CreatedPageSummary `json:"pages"`
}

// Result describes the terminal outcome of one delivery.
type Result struct {
	Configured bool   `json:"configured"`
	Delivered  bool   `json:"delivered"`
	Attempts   int    `json:"attempts"`
	LastError  string `json:"last_error,omitempty"`
}

// Dispatcher signs and delivers webhook notifications with bounded retry.
type Dispatcher struct {
	url         string
	secret      string
	maxAttempts int
	backoffBase time.Duration
	client      *http.Client
	logger      *zap.Logger
}

func NewDispatcher(cfg config.WebhookConfig, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		url:         cfg.URL,
		secret:      cfg.Secret,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
		client:      &http.Client{Timeout: cfg.Timeout},
		logger:      logger,
	}
}

// Configured reports whether a destination URL is set.
func (d *Dispatcher) Configured() bool {
	return d.url != ""
}

// Deliver builds, signs and posts a notification. A non-2xx status and a
// network error are both retryable; delivery stops at the first 2xx or after
// maxAttempts tries, backing off base*2^n between failures.
func (d *Dispatcher) Deliver(ctx context.Context, keyName string, pages []models.CreatedPageSummary) Result {
	if !d.Configured() {
		return Result{Configured: false}
	}

	payload := Payload{
		Event:      EventResourcesCreated,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		RequestID:  "req_" + uuid.NewString(),
		APIKeyName: keyName,
		TotalPages: len(pages),
		Pages:      pages,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Configured: true, LastError: fmt.Sprintf("failed to marshal payload: %v", err)}
	}

	// The signature covers the exact bytes that go on the wire.
	signature := d.Sign(body)

	res := Result{Configured: true}
	for attempt := 0; attempt < d.maxAttempts; attempt++ {
		res.Attempts = attempt + 1

		if err := d.post(ctx, body, signature); err != nil {
			res.LastError = err.Error()
			d.logger.Warn("webhook delivery attempt failed",
				zap.String("request_id", payload.RequestID),
				zap.Int("attempt", attempt+1),
				zap.Error(err))

			if attempt < d.maxAttempts-1 {
				if err := sleep(ctx, d.backoffBase<<attempt); err != nil {
					res.LastError = err.Error()
					return res
				}
			}
			continue
		}

		res.Delivered = true
		res.LastError = ""
		d.logger.Info("webhook delivered",
			zap.String("request_id", payload.RequestID),
			zap.Int("attempts", res.Attempts),
			zap.Int("total_pages", payload.TotalPages))
		return res
	}

	d.logger.Error("webhook delivery failed",
		zap.String("request_id", payload.RequestID),
		zap.Int("attempts", res.Attempts),
		zap.String("last_error", res.LastError))
	return res
}

func (d *Dispatcher) post(ctx context.Context, body []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signature)
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Sign returns the hex HMAC-SHA256 of the payload bytes under the
// installation secret.
func (d *Dispatcher) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(d.secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the signature over the received bytes and
// compares in constant time. Receivers use this; the dispatcher shares the
// signing routine.
func (d *Dispatcher) VerifySignature(payload []byte, signature string) bool {
	expected := d.Sign(payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func sleep(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
