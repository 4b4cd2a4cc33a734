// Package webhook delivers trend notifications as JSON POST requests.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/wastewater-ingest/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Notifier posts trend notifications to a URL.
type Notifier struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewNotifier creates a webhook notifier.
func NewNotifier(url string, logger *slog.Logger) *Notifier {
	return &Notifier{
		url: url,
		client: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger,
	}
}

// Name returns the sink identifier.
func (n *Notifier) Name() string { return "webhook" }

// Notify posts the notification as JSON. Any status of 400 or above is an error.
func (n *Notifier) Notify(ctx context.Context, note domain.TrendNotification) error {
	data, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("encode trend notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook POST failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	n.logger.Debug("webhook delivered", "run_id", note.RunID, "trends", len(note.Trends))
	return nil
}
