package twitter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"SignalMonitor/internal/domain"
)

const timelineHTML = `
<main>
  <article data-testid="tweet">
    <a href="/Acme/status/1800000000000000002">link</a>
    <time datetime="2026-01-02T10:00:00.000Z">Jan 2</time>
    <div data-testid="tweetText">Second post $TSLA</div>
  </article>
  <article data-testid="tweet">
    <a href="/Acme/status/1800000000000000001">link</a>
    <time datetime="2026-01-02T09:00:00.000Z">Jan 2</time>
    <div data-testid="tweetText">First post</div>
  </article>
  <article data-testid="tweet">
    <a href="/Acme/status/1800000000000000001">dup</a>
    <div data-testid="tweetText">First post again</div>
  </article>
  <article data-testid="tweet">
    <a href="/settings">no status link</a>
  </article>
</main>`

var activeSession = domain.Session{
	Credentials: map[string]string{"auth_token": "abc", "ct0": "csrf"},
	Status:      domain.SessionActive,
}

func TestParseArticle(t *testing.T) {
	t.Parallel()

	html := `
	<article data-testid="tweet">
	  <a href="https://x.com/Beta/status/1234567890123456789?s=20">link</a>
	  <div lang="en">Fallback text</div>
	</article>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}

	item, ok := parseArticle(doc.Find("article").First(), "https://x.com")
	if !ok {
		t.Fatal("expected article to parse")
	}

	if item.ID != "1234567890123456789" {
		t.Fatalf("unexpected id: %s", item.ID)
	}
	if item.Handle != "beta" {
		t.Fatalf("unexpected handle: %s", item.Handle)
	}
	if item.Text != "Fallback text" {
		t.Fatalf("unexpected text: %s", item.Text)
	}
	if item.URL != "https://x.com/Beta/status/1234567890123456789" {
		t.Fatalf("unexpected url: %s", item.URL)
	}

	want := time.UnixMilli((1234567890123456789 >> 22) + twitterEpochMillis).UTC()
	if !item.CreatedAt.Equal(want) {
		t.Fatalf("expected snowflake time %s, got %s", want, item.CreatedAt)
	}
}

func TestFetchTimelineParsesAndOrders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/home" {
			http.NotFound(w, r)
			return
		}
		if c, err := r.Cookie("auth_token"); err != nil || c.Value != "abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("X-Csrf-Token") != "csrf" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(timelineHTML))
	}))
	defer srv.Close()

	scraper := NewTimelineScraper(srv.Client(), srv.URL, 10)
	items, err := scraper.FetchTimeline(context.Background(), activeSession)
	if err != nil {
		t.Fatalf("FetchTimeline returned error: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ID != "1800000000000000001" || items[1].ID != "1800000000000000002" {
		t.Fatalf("unexpected order: %s, %s", items[0].ID, items[1].ID)
	}
	if items[0].Handle != "acme" {
		t.Fatalf("unexpected handle: %s", items[0].Handle)
	}
	if items[1].Text != "Second post $TSLA" {
		t.Fatalf("unexpected text: %s", items[1].Text)
	}
	if !items[0].CreatedAt.Equal(time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected created_at: %s", items[0].CreatedAt)
	}
}

func TestFetchTimelineMaxItems(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(timelineHTML))
	}))
	defer srv.Close()

	items, err := NewTimelineScraper(srv.Client(), srv.URL, 1).FetchTimeline(context.Background(), activeSession)
	if err != nil {
		t.Fatalf("FetchTimeline returned error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
}

func TestFetchTimelineClassifiesErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name:    "unauthorized",
			handler: func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusUnauthorized) },
			want:    domain.ErrAuth,
		},
		{
			name: "login redirect",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/home" {
					http.Redirect(w, r, "/i/flow/login", http.StatusFound)
					return
				}
				_, _ = w.Write([]byte("login"))
			},
			want: domain.ErrAuth,
		},
		{
			name:    "rate limited",
			handler: func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTooManyRequests) },
			want:    domain.ErrTransient,
		},
		{
			name:    "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadGateway) },
			want:    domain.ErrTransient,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			_, err := NewTimelineScraper(srv.Client(), srv.URL, 0).FetchTimeline(context.Background(), activeSession)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestFetchTimelineWithoutCookies(t *testing.T) {
	t.Parallel()

	_, err := NewTimelineScraper(nil, "http://127.0.0.1:1", 0).FetchTimeline(context.Background(), domain.Session{})
	if !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
}

func TestPageSourceMergesPages(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/home":
			_, _ = w.Write([]byte(timelineHTML))
		case "/i/lists/42":
			_, _ = w.Write([]byte(`<article data-testid="tweet"><a href="/gamma/status/1700000000000000000">x</a><div data-testid="tweetText">list post</div></article>` + timelineHTML))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	source := NewPageSource(NewTimelineScraper(srv.Client(), srv.URL, 10), []string{"/home", "/i/lists/42"}, nil)
	items, err := source.FetchTimeline(context.Background(), activeSession)
	if err != nil {
		t.Fatalf("FetchTimeline returned error: %v", err)
	}

	if len(items) != 3 {
		t.Fatalf("expected 3 merged items, got %d", len(items))
	}
	if items[0].Handle != "gamma" {
		t.Fatalf("expected oldest item first, got %s", items[0].Handle)
	}
}

func TestPageSourcePropagatesAuthErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/home" {
			_, _ = w.Write([]byte(timelineHTML))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	source := NewPageSource(NewTimelineScraper(srv.Client(), srv.URL, 10), []string{"/home", "/i/lists/1"}, nil)
	_, err := source.FetchTimeline(context.Background(), activeSession)
	if !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
}
