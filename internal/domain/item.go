package domain

import (
	"sort"
	"time"
)

// RawItem is a post as returned by the source adapter.
type RawItem struct {
	ID        string
	Handle    string
	CreatedAt time.Time
	Text      string
	URL       string
}

// SortOldestFirst orders items by creation time, breaking ties by ID.
func SortOldestFirst(items []RawItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}
