package twitter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"SignalMonitor/internal/domain"
)

const (
	defaultBaseURL   = "https://x.com"
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// twitterEpochMillis is the custom epoch of snowflake ids.
	twitterEpochMillis = 1288834974657
)

var (
	statusExpr = regexp.MustCompile(`^/(\w+)/status/(\d+)`)

	errLoginRedirect = errors.New("redirected to login")
)

// TimelineScraper reads timeline pages with an authenticated cookie jar and
// extracts posts from the rendered HTML.
type TimelineScraper struct {
	client   *http.Client
	baseURL  string
	maxItems int
}

// NewTimelineScraper wires an HTTP client; baseURL defaults to x.com and
// maxItems to 50.
func NewTimelineScraper(client *http.Client, baseURL string, maxItems int) *TimelineScraper {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	// copy so the redirect policy does not leak into a shared client
	c := *client
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if isLoginPath(req.URL.Path) {
			return errLoginRedirect
		}
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		return nil
	}

	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if maxItems <= 0 {
		maxItems = 50
	}
	return &TimelineScraper{client: &c, baseURL: strings.TrimSuffix(baseURL, "/"), maxItems: maxItems}
}

// FetchTimeline returns the posts visible on the home timeline, oldest first.
func (s *TimelineScraper) FetchTimeline(ctx context.Context, session domain.Session) ([]domain.RawItem, error) {
	return s.FetchPage(ctx, session, "/home")
}

// FetchPage returns the posts rendered on one timeline page, oldest first.
func (s *TimelineScraper) FetchPage(ctx context.Context, session domain.Session, path string) ([]domain.RawItem, error) {
	if len(session.Credentials) == 0 {
		return nil, fmt.Errorf("session has no cookies: %w", domain.ErrAuth)
	}

	doc, err := s.fetchDocument(ctx, session, s.baseURL+path)
	if err != nil {
		return nil, err
	}

	items := s.extractItems(doc)
	domain.SortOldestFirst(items)
	return items, nil
}

func (s *TimelineScraper) fetchDocument(ctx context.Context, session domain.Session, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	for name, value := range session.Credentials {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	if csrf := session.Credentials["ct0"]; csrf != "" {
		req.Header.Set("X-Csrf-Token", csrf)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, errLoginRedirect) {
			return nil, fmt.Errorf("timeline: %w: %v", domain.ErrAuth, err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("timeline request: %w: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("timeline returned %s: %w", resp.Status, domain.ErrAuth)
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return nil, fmt.Errorf("timeline returned %s: %w", resp.Status, domain.ErrTransient)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("timeline returned %s", resp.Status)
	}

	if isLoginPath(resp.Request.URL.Path) {
		return nil, fmt.Errorf("timeline served login page: %w", domain.ErrAuth)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func (s *TimelineScraper) extractItems(doc *goquery.Document) []domain.RawItem {
	var (
		collected []domain.RawItem
		seen      = map[string]struct{}{}
	)

	doc.Find(`article[data-testid="tweet"]`).EachWithBreak(func(_ int, article *goquery.Selection) bool {
		item, ok := parseArticle(article, s.baseURL)
		if !ok {
			return true
		}
		if _, dup := seen[item.ID]; dup {
			return true
		}
		seen[item.ID] = struct{}{}
		collected = append(collected, item)
		return len(collected) < s.maxItems
	})

	return collected
}

func parseArticle(article *goquery.Selection, baseURL string) (domain.RawItem, bool) {
	var handle, id string

	article.Find(`a[href*="/status/"]`).EachWithBreak(func(_ int, link *goquery.Selection) bool {
		href, _ := link.Attr("href")
		if parsed, err := url.Parse(href); err == nil {
			href = parsed.Path
		}
		if m := statusExpr.FindStringSubmatch(href); m != nil {
			handle, id = m[1], m[2]
			return false
		}
		return true
	})
	if id == "" {
		return domain.RawItem{}, false
	}

	text := strings.TrimSpace(article.Find(`div[data-testid="tweetText"]`).First().Text())
	if text == "" {
		text = strings.TrimSpace(article.Find(`div[lang]`).First().Text())
	}

	createdAt, ok := parseTimestamp(article.Find("time[datetime]").First().AttrOr("datetime", ""))
	if !ok {
		createdAt = snowflakeTime(id)
	}

	return domain.RawItem{
		ID:        id,
		Handle:    strings.ToLower(handle),
		CreatedAt: createdAt,
		Text:      text,
		URL:       fmt.Sprintf("%s/%s/status/%s", baseURL, handle, id),
	}, true
}

func parseTimestamp(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false
	}
	return parsed.UTC(), true
}

// snowflakeTime derives the creation time embedded in a post id.
func snowflakeTime(id string) time.Time {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli((n >> 22) + twitterEpochMillis).UTC()
}

func isLoginPath(path string) bool {
	return strings.Contains(path, "/i/flow/login") || strings.Contains(path, "/login")
}
