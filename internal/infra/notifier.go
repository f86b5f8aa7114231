package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const notifyQueueSize = 32

// Notification is one webhook message.
type Notification struct {
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Symbol  string    `json:"symbol,omitempty"`
	Time    time.Time `json:"time"`
}

// WebhookNotifier posts notifications to a webhook from a background worker
// so the caller never waits on the network.
type WebhookNotifier struct {
	url    string
	client *http.Client
	queue  chan Notification
	logger *slog.Logger
}

// NewWebhookNotifier creates a notifier for url with a 10-second HTTP timeout.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		queue:  make(chan Notification, notifyQueueSize),
		logger: slog.Default().With("module", "notifier"),
	}
}

// Enqueue schedules n for delivery. It drops n when the queue is full.
func (w *WebhookNotifier) Enqueue(n Notification) bool {
	if w == nil {
		return false
	}
	if n.Time.IsZero() {
		n.Time = time.Now().UTC()
	}
	select {
	case w.queue <- n:
		return true
	default:
		w.logger.Warn("Notification dropped, queue full", slog.String("title", n.Title))
		return false
	}
}

// Run delivers queued notifications until ctx is cancelled. Failures are logged.
func (w *WebhookNotifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-w.queue:
			if err := w.Send(ctx, n); err != nil {
				w.logger.Warn("Webhook delivery failed", slog.String("title", n.Title), slog.Any("error", err))
			}
		}
	}
}

// Send posts n synchronously.
func (w *WebhookNotifier) Send(ctx context.Context, n Notification) error {
	payload := struct {
		Notification
		Content string `json:"content"`
	}{
		Notification: n,
		Content:      fmt.Sprintf("**%s**\n%s", n.Title, n.Message),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
