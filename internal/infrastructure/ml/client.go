package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"SignalMonitor/internal/domain"
	"SignalMonitor/internal/infrastructure/llm"
	"SignalMonitor/internal/ports"
)

// Client talks to a self-hosted summarisation service.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.Enricher = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
	}
}

// Name identifies the provider inside the registry.
func (c *Client) Name() string {
	return "service"
}

// Summarize sends the post text and decodes the structured signal. The service
// answers with the same JSON object the chat model produces.
func (c *Client) Summarize(ctx context.Context, text string) (domain.EnrichedSignal, error) {
	if c.endpoint == "" {
		return domain.EnrichedSignal{}, fmt.Errorf("summarisation service url not configured: %w", domain.ErrPermanent)
	}

	payload := map[string]any{
		"text":   text,
		"prompt": llm.SummaryPrompt,
	}

	raw, err := c.post(ctx, "/summarize", payload)
	if err != nil {
		return domain.EnrichedSignal{}, err
	}

	return llm.DecodeSignal(string(raw))
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("do request: %w: %v", domain.ErrTransient, err)
	}

	if resp.StatusCode != http.StatusOK {
		closeErr := resp.Body.Close()
		kind := domain.ErrInvalidResponse
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			kind = domain.ErrQuotaExceeded
		case resp.StatusCode >= http.StatusInternalServerError:
			kind = domain.ErrTransient
		}
		if closeErr != nil {
			return nil, fmt.Errorf("unexpected status %s, close body: %v: %w", resp.Status, closeErr, kind)
		}
		return nil, fmt.Errorf("unexpected status %s: %w", resp.Status, kind)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("read response: %w: %v", domain.ErrTransient, err)
	}

	if err := resp.Body.Close(); err != nil {
		return nil, fmt.Errorf("close response body: %w", err)
	}

	return raw, nil
}
