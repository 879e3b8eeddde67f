package twitter

import (
	"context"
	"fmt"
	"log/slog"

	"SignalMonitor/internal/domain"
	"SignalMonitor/internal/ports"
)

// PageSource implements TimelineSource over several timeline pages, e.g. the
// home feed plus curated lists.
type PageSource struct {
	scraper *TimelineScraper
	pages   []string
	logger  *slog.Logger
}

var _ ports.TimelineSource = (*PageSource)(nil)

// NewPageSource wires the scraper with config-defined page paths. An empty list
// reads only /home.
func NewPageSource(scraper *TimelineScraper, pages []string, log *slog.Logger) *PageSource {
	if len(pages) == 0 {
		pages = []string{"/home"}
	}
	return &PageSource{
		scraper: scraper,
		pages:   pages,
		logger:  log,
	}
}

// FetchTimeline iterates over configured pages and merges their posts. Any page
// failure fails the whole fetch so an auth error is never masked.
func (s *PageSource) FetchTimeline(ctx context.Context, session domain.Session) ([]domain.RawItem, error) {
	if s.scraper == nil {
		return nil, fmt.Errorf("timeline scraper is not configured")
	}

	s.debug("fetch timeline", "pages", len(s.pages))

	var (
		aggregated []domain.RawItem
		seen       = map[string]struct{}{}
	)
	for _, page := range s.pages {
		results, err := s.scraper.FetchPage(ctx, session, page)
		if err != nil {
			return nil, fmt.Errorf("page %s: %w", page, err)
		}

		for _, item := range results {
			if _, ok := seen[item.ID]; ok {
				continue
			}
			seen[item.ID] = struct{}{}
			aggregated = append(aggregated, item)
		}
		s.debug("page produced items", "page", page, "count", len(results))
	}

	domain.SortOldestFirst(aggregated)
	s.debug("page source done", "total_items", len(aggregated))
	return aggregated, nil
}

func (s *PageSource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
