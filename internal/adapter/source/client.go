// Package source downloads the published wastewater CSV.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrFetch marks a failed download. The run that hit it stores nothing.
var ErrFetch = errors.New("fetch source csv")

// Client downloads the CSV with a single GET per call; there is no retry.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a source client. timeout bounds the whole request,
// including reading the body.
func NewClient(url string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Fetch issues the GET and returns the response body for streaming. The
// caller must close it.
func (c *Client) Fetch(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrFetch, err)
	}
	req.Header.Set("Accept", "text/csv")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d: %s", ErrFetch, resp.StatusCode, body)
	}

	c.logger.Debug("source responded",
		"url", c.url,
		"status", resp.StatusCode,
		"content_length", resp.ContentLength,
		"latency", time.Since(start),
	)
	return resp.Body, nil
}
