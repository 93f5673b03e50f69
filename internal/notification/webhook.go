package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// WebhookConfig holds configuration for the webhook listener
type WebhookConfig struct {
	URL            string
	Timeout        time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration
	MaxPayloadSize int64
}

// DefaultConfig returns a default configuration for the webhook listener
func DefaultConfig(url string) WebhookConfig {
	return WebhookConfig{
		URL:            url,
		Timeout:        10 * time.Second,
		RetryAttempts:  3,
		RetryDelay:     time.Second,
		MaxPayloadSize: 1024 * 1024, // 1MB
	}
}

const userAgent = "lab-scheduler-api/1.0"

// permanentError marks failures that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// WebhookListener posts every event as JSON to an external URL.
type WebhookListener struct {
	config WebhookConfig
	client *http.Client
	logger *log.Logger
}

// NewWebhookListener creates a webhook listener.
func NewWebhookListener(config WebhookConfig, logger *log.Logger) *WebhookListener {
	if logger == nil {
		logger = log.Default()
	}
	return &WebhookListener{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
	}
}

// ID identifies the listener by its target URL.
func (w *WebhookListener) ID() string {
	return "webhook:" + w.config.URL
}

// Send delivers the event, retrying transient failures with linear backoff.
func (w *WebhookListener) Send(ctx context.Context, event Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	var lastErr error
	for attempt := 0; attempt <= w.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.config.RetryDelay * time.Duration(attempt)):
			}
			w.logger.Printf("Retrying webhook delivery (attempt %d/%d)", attempt+1, w.config.RetryAttempts+1)
		}

		err := w.sendAttempt(ctx, event)
		if err == nil {
			return nil
		}

		lastErr = err
		w.logger.Printf("Webhook delivery attempt %d failed: %v", attempt+1, err)

		var permanent *permanentError
		if errors.As(err, &permanent) {
			return permanent.err
		}
	}

	return fmt.Errorf("failed to deliver event after %d attempts: %w", w.config.RetryAttempts+1, lastErr)
}

func (w *WebhookListener) sendAttempt(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return &permanentError{fmt.Errorf("failed to marshal event: %w", err)}
	}

	if int64(len(payload)) > w.config.MaxPayloadSize {
		return &permanentError{fmt.Errorf("event payload too large: %d bytes (max %d)", len(payload), w.config.MaxPayloadSize)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(payload))
	if err != nil {
		return &permanentError{fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("webhook returned error status %d: %s", resp.StatusCode, string(body))
	case resp.StatusCode >= 400:
		return &permanentError{fmt.Errorf("webhook rejected event with status %d: %s", resp.StatusCode, string(body))}
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated &&
		resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusNoContent:
		w.logger.Printf("Warning: unexpected status code %d from webhook", resp.StatusCode)
	}

	return nil
}

// IsHealthy checks if the webhook target answers without a server error
func (w *WebhookListener) IsHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, w.config.URL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode < 500
}
