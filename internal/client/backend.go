// Package client provides the outbound HTTP client for the backend chat service.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"chat-gateway-go/internal/config"
	"chat-gateway-go/internal/metrics"
	"chat-gateway-go/internal/model"
)

// BackendClient sends requests to the backend chat-completion service.
type BackendClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewBackendClient creates a BackendClient with connection pooling and an
// explicit request timeout. The metrics parameter is optional; pass nil to
// disable backend metrics recording.
func NewBackendClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *BackendClient {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Backend.IdleConnections,
		MaxIdleConnsPerHost: cfg.Backend.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &BackendClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
		},
		logger:  logger.With("component", "backend_client"),
		metrics: m,
	}
}

// Post issues one POST with the given headers and body bytes and captures the
// response in full. The body is passed through unchanged; no streaming, no
// retries. The context controls the lifetime of the call: when it is canceled
// (e.g. the client disconnects), the backend request is also canceled.
func (c *BackendClient) Post(ctx context.Context, url string, header http.Header, body []byte) (*model.BackendResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build backend request: %w", err)
	}
	req.Header = header

	c.logger.Debug("backend request",
		"url", url,
		"bytes_in", len(body),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start).Seconds()

	if err != nil {
		if c.metrics != nil {
			c.metrics.BackendDuration.WithLabelValues(metrics.OutcomeError).Observe(duration)
		}
		return nil, fmt.Errorf("backend request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if c.metrics != nil {
			c.metrics.BackendDuration.WithLabelValues(metrics.OutcomeError).Observe(duration)
		}
		return nil, fmt.Errorf("read backend response: %w", err)
	}

	if c.metrics != nil {
		c.metrics.BackendDuration.WithLabelValues(metrics.OutcomeOK).Observe(duration)
		c.metrics.BackendResponses.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	}

	return &model.BackendResponse{
		StatusCode: resp.StatusCode,
		Body:       respBody,
	}, nil
}
