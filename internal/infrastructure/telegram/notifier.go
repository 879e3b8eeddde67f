package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"SignalMonitor/internal/config"
	"SignalMonitor/internal/domain"
	"SignalMonitor/internal/ports"
)

// MaxMessageLength is the Bot API limit for one message.
const MaxMessageLength = 4096

// errEntities marks a 400 caused by Markdown the Bot API could not parse.
var errEntities = errors.New("unparsable markdown entities")

// Notifier sends alerts to a Telegram chat via bot API.
type Notifier struct {
	apiURL   string
	botToken string
	chatID   string
	client   *http.Client
	limiter  *rate.Limiter
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(cfg config.TelegramConfig) *Notifier {
	apiURL := strings.TrimSuffix(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.telegram.org"
	}
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Limit(2)
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &Notifier{
		apiURL:   apiURL,
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// Send posts a Markdown message, split into chunks when it exceeds the limit.
func (n *Notifier) Send(ctx context.Context, message string) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured: %w", domain.ErrPermanent)
	}

	for _, chunk := range SplitMessage(message, MaxMessageLength) {
		if err := n.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
		err := n.sendChunk(ctx, chunk, true)
		if errors.Is(err, errEntities) {
			// a split can leave an entity unclosed; deliver the chunk as plain text
			err = n.sendChunk(ctx, chunk, false)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (n *Notifier) sendChunk(ctx context.Context, text string, markdown bool) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiURL, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", text)
	if markdown {
		form.Set("parse_mode", "Markdown")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("do request: %w: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	switch {
	case markdown && resp.StatusCode == http.StatusBadRequest && strings.Contains(string(detail), "can't parse entities"):
		return fmt.Errorf("telegram error %s: %w: %w", resp.Status, errEntities, domain.ErrPermanent)
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("telegram error %s: %s: %w", resp.Status, strings.TrimSpace(string(detail)), domain.ErrTransient)
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("telegram error %s: %s: %w", resp.Status, strings.TrimSpace(string(detail)), domain.ErrPermanent)
	default:
		return fmt.Errorf("telegram error: %s", resp.Status)
	}
}

// SplitMessage breaks message into chunks of at most limit bytes on line
// boundaries. A single line longer than limit is cut hard.
func SplitMessage(message string, limit int) []string {
	if len(message) <= limit {
		return []string{message}
	}

	var (
		chunks  []string
		current strings.Builder
	)
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, line := range strings.Split(message, "\n") {
		for len(line) > limit {
			flush()
			cut := safeCut(line, limit)
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}

		extra := len(line)
		if current.Len() > 0 {
			extra++
		}
		if current.Len()+extra > limit {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
	}
	flush()

	return chunks
}

// safeCut backs off so a multi-byte rune is never split.
func safeCut(s string, limit int) int {
	cut := limit
	for cut > 0 && cut < len(s) && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return cut
}
