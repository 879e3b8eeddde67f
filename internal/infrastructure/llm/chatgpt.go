package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"SignalMonitor/internal/config"
	"SignalMonitor/internal/domain"
	"SignalMonitor/internal/ports"
)

// ChatGPTClient implements ports.Enricher backed by OpenAI-compatible APIs.
type ChatGPTClient struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
	limiter      *rate.Limiter
}

var _ ports.Enricher = (*ChatGPTClient)(nil)

// NewChatGPTClient builds a client from configuration.
func NewChatGPTClient(cfg config.ChatGPTConfig) *ChatGPTClient {
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &ChatGPTClient{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Name identifies the provider inside the registry.
func (c *ChatGPTClient) Name() string {
	return "chatgpt"
}

// Summarize asks the model for a structured signal describing text.
func (c *ChatGPTClient) Summarize(ctx context.Context, text string) (domain.EnrichedSignal, error) {
	if c == nil {
		return domain.EnrichedSignal{}, fmt.Errorf("chatgpt client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return domain.EnrichedSignal{}, fmt.Errorf("chatgpt client misconfigured: %w", domain.ErrPermanent)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return domain.EnrichedSignal{}, fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"model":           c.model,
		"temperature":     0.3,
		"response_format": map[string]string{"type": "json_object"},
		"messages": []map[string]string{
			{"role": "system", "content": safePrompt(c.systemPrompt)},
			{"role": "user", "content": "Post text:\n" + text},
		},
	})
	if err != nil {
		return domain.EnrichedSignal{}, fmt.Errorf("marshal chatgpt payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.EnrichedSignal{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.EnrichedSignal{}, ctx.Err()
		}
		return domain.EnrichedSignal{}, fmt.Errorf("chatgpt request: %w: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.EnrichedSignal{}, classifyStatus(resp.StatusCode, resp.Status, strings.TrimSpace(string(payload)))
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return domain.EnrichedSignal{}, fmt.Errorf("decode completion: %w: %v", domain.ErrInvalidResponse, err)
	}
	if len(completion.Choices) == 0 {
		return domain.EnrichedSignal{}, fmt.Errorf("completion has no choices: %w", domain.ErrInvalidResponse)
	}

	return DecodeSignal(completion.Choices[0].Message.Content)
}

func classifyStatus(code int, status, body string) error {
	var kind error
	switch {
	case code == http.StatusTooManyRequests:
		kind = domain.ErrQuotaExceeded
	case code >= http.StatusInternalServerError:
		kind = domain.ErrTransient
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		kind = domain.ErrPermanent
	default:
		kind = domain.ErrInvalidResponse
	}
	return fmt.Errorf("chatgpt error %s: %s: %w", status, body, kind)
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return SummaryPrompt
	}
	return prompt
}
