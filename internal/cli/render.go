package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"SignalMonitor/internal/domain"
)

func okMark() string {
	return color.New(color.FgGreen).Sprint("✓")
}

func outcomeColor(outcome domain.Outcome) *color.Color {
	switch outcome {
	case domain.OutcomeCompleted:
		return color.New(color.FgGreen)
	case domain.OutcomeSourceFailed, domain.OutcomeAborted:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

func printSummary(w io.Writer, s domain.CycleSummary) {
	fmt.Fprintf(w, "Cycle %s [%s] %s in %s\n", s.ID, s.Trigger,
		outcomeColor(s.Outcome).Sprint(s.Outcome), s.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "  fetched %d, untracked %d, new %d, duplicates %d, retried %d\n",
		s.Fetched, s.Untracked, s.New, s.Duplicates, s.Retried)
	fmt.Fprintf(w, "  enriched %d (fallback %d), dispatched %d, failed %d\n",
		s.Enriched, s.Fallbacks, s.Dispatched, s.Failed)
	if s.Err != "" {
		fmt.Fprintf(w, "  error: %s\n", color.New(color.FgRed).Sprint(s.Err))
	}
}

func printHandles(w io.Writer, handles []domain.TrackedHandle) {
	if len(handles) == 0 {
		fmt.Fprintln(w, "No tracked handles.")
		return
	}
	for _, h := range handles {
		fmt.Fprintf(w, "@%-16s %s\n", h.Handle, color.New(color.FgHiBlack).Sprint(h.CreatedAt.Format(time.RFC3339)))
	}
}

func printSession(w io.Writer, s domain.Session) {
	c := color.New(color.FgYellow)
	switch s.Status {
	case domain.SessionActive:
		c = color.New(color.FgGreen)
	case domain.SessionChallengeRequired:
		c = color.New(color.FgRed)
	}
	fmt.Fprintf(w, "Session: %s\n", c.Sprint(s.Status))
	if !s.LastValidated.IsZero() {
		fmt.Fprintf(w, "  last validated: %s\n", s.LastValidated.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "  cookies: %d\n", len(s.Credentials))
}

func printFailed(w io.Writer, entries []domain.LedgerEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No failed entries.")
		return
	}
	for _, e := range entries {
		state := color.New(color.FgYellow).Sprint("retrying")
		if e.Exhausted {
			state = color.New(color.FgRed).Sprint("exhausted")
		}
		fmt.Fprintf(w, "%s @%s %s attempts=%d %s\n", e.ItemID, e.Handle, state, e.Attempts, e.LastError)
	}
}

func printEntry(w io.Writer, e domain.LedgerEntry) {
	fmt.Fprintf(w, "Item %s @%s\n", e.ItemID, e.Handle)
	fmt.Fprintf(w, "  status: %s (attempts %d, exhausted %t)\n", e.Status, e.Attempts, e.Exhausted)
	fmt.Fprintf(w, "  url: %s\n", e.URL)
	fmt.Fprintf(w, "  fetched: %s\n", e.FetchedAt.Format(time.RFC3339))
	if !e.DispatchedAt.IsZero() {
		fmt.Fprintf(w, "  dispatched: %s\n", e.DispatchedAt.Format(time.RFC3339))
	}
	if e.LastError != "" {
		fmt.Fprintf(w, "  last error: %s\n", e.LastError)
	}
}
