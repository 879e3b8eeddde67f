package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var handleExpr = regexp.MustCompile(`^[a-z0-9_]{1,15}$`)

// TrackedHandle is an account whose posts are monitored.
type TrackedHandle struct {
	Handle    string
	CreatedAt time.Time
}

// NormalizeHandle trims whitespace and a leading "@" and lowercases the handle.
// It returns ErrInvalidHandle when the result is not a valid account name.
func NormalizeHandle(raw string) (string, error) {
	handle := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), "@"))
	if !handleExpr.MatchString(handle) {
		return "", fmt.Errorf("%w: %q", ErrInvalidHandle, raw)
	}
	return handle, nil
}
