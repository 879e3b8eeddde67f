package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"SignalMonitor/internal/domain"
)

type trackRequest struct {
	Handle string `json:"handle"`
}

type trackResponse struct {
	Handle  string    `json:"handle"`
	AddedAt time.Time `json:"added_at"`
}

type summaryResponse struct {
	ID         string    `json:"id"`
	Trigger    string    `json:"trigger"`
	Outcome    string    `json:"outcome"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Fetched    int       `json:"fetched"`
	Untracked  int       `json:"untracked"`
	New        int       `json:"new"`
	Duplicates int       `json:"duplicates"`
	Retried    int       `json:"retried"`
	Enriched   int       `json:"enriched"`
	Fallbacks  int       `json:"fallbacks"`
	Dispatched int       `json:"dispatched"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
}

type healthResponse struct {
	Status        string           `json:"status"`
	Session       string           `json:"session"`
	LastValidated *time.Time       `json:"last_validated,omitempty"`
	Scheduler     bool             `json:"scheduler_running"`
	LastCycle     *summaryResponse `json:"last_cycle,omitempty"`
	Ledger        map[string]int64 `json:"ledger,omitempty"`
}

type ledgerEntryResponse struct {
	ItemID    string    `json:"item_id"`
	Handle    string    `json:"handle"`
	URL       string    `json:"url"`
	Attempts  int       `json:"attempts"`
	Exhausted bool      `json:"exhausted"`
	LastError string    `json:"last_error"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}

	if s.deps.Sessions != nil {
		session, err := s.deps.Sessions.Status(r.Context())
		if err != nil {
			s.logger.Error("health: session status", "error", err)
			resp.Status = "degraded"
			resp.Session = "unknown"
		} else {
			resp.Session = string(session.Status)
			if !session.LastValidated.IsZero() {
				at := session.LastValidated
				resp.LastValidated = &at
			}
			if session.Status == domain.SessionChallengeRequired {
				resp.Status = "degraded"
			}
		}
	}

	if s.deps.Poller != nil {
		resp.Scheduler = s.deps.Poller.Running()
		if last, ok := s.deps.Poller.LastSummary(); ok {
			sum := toSummary(last)
			resp.LastCycle = &sum
		}
	}

	if s.deps.Ledger != nil {
		counts, err := s.deps.Ledger.Counts(r.Context())
		if err != nil {
			s.logger.Error("health: ledger counts", "error", err)
			resp.Status = "degraded"
		} else {
			resp.Ledger = make(map[string]int64, len(counts))
			for status, n := range counts {
				resp.Ledger[string(status)] = n
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	handles, err := s.deps.Handles.List(r.Context())
	if err != nil {
		s.logger.Error("list tracks", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list handles")
		return
	}

	out := make([]trackResponse, 0, len(handles))
	for _, h := range handles {
		out = append(out, trackResponse{Handle: h.Handle, AddedAt: h.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddTrack(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	handle, err := s.deps.Handles.Add(r.Context(), req.Handle)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, trackResponse{Handle: handle.Handle, AddedAt: handle.CreatedAt})
	case errors.Is(err, domain.ErrInvalidHandle):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("add track", "handle", req.Handle, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to add handle")
	}
}

func (s *Server) handleRemoveTrack(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("handle")

	err := s.deps.Handles.Remove(r.Context(), raw)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, domain.ErrInvalidHandle):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("remove track", "handle", raw, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to remove handle")
	}
}

func (s *Server) handleManualPoll(w http.ResponseWriter, r *http.Request) {
	// a disconnecting client must not cancel the cycle
	summary, err := s.deps.Poller.TriggerNow(context.WithoutCancel(r.Context()))
	if errors.Is(err, domain.ErrCycleInProgress) {
		writeError(w, http.StatusConflict, "a poll cycle is already running")
		return
	}

	resp := toSummary(summary)
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLedgerFailed(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.deps.Ledger.ListFailed(r.Context(), limit)
	if err != nil {
		s.logger.Error("list failed entries", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read ledger")
		return
	}

	out := make([]ledgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, ledgerEntryResponse{
			ItemID:    e.ItemID,
			Handle:    e.Handle,
			URL:       e.URL,
			Attempts:  e.Attempts,
			Exhausted: e.Exhausted,
			LastError: e.LastError,
			UpdatedAt: e.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func toSummary(s domain.CycleSummary) summaryResponse {
	return summaryResponse{
		ID:         s.ID,
		Trigger:    string(s.Trigger),
		Outcome:    string(s.Outcome),
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		Fetched:    s.Fetched,
		Untracked:  s.Untracked,
		New:        s.New,
		Duplicates: s.Duplicates,
		Retried:    s.Retried,
		Enriched:   s.Enriched,
		Fallbacks:  s.Fallbacks,
		Dispatched: s.Dispatched,
		Failed:     s.Failed,
		Error:      s.Err,
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": message})
}
