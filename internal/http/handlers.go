package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	applog "costwatch/internal/log"
	"costwatch/internal/middleware/trace"
)

// manualRunTimeout bounds a triggered run once it is detached from the request.
const manualRunTimeout = 10 * time.Minute

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to encode response", "error", err, "url", r.URL.Path)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{Error: msg, RequestID: trace.GetRequestID(r.Context())})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready.Ping(r.Context()); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", "error", err)
			http.Error(w, "backend unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleSummary always answers 200 for a well-formed id: read failures are
// absorbed by the summarizer and surface as an all-zero summary.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuid.Parse(r.PathValue("id"))
	if err != nil || orgID == uuid.Nil {
		writeError(w, r, http.StatusBadRequest, "invalid organization id")
		return
	}
	writeJSON(w, r, http.StatusOK, s.summaries.Summary(r.Context(), orgID))
}

func (s *Server) handleRunReminders(w http.ResponseWriter, r *http.Request) {
	if s.reminders == nil {
		writeError(w, r, http.StatusNotFound, "reminders are not enabled")
		return
	}
	if s.triggerToken != "" {
		got := r.Header.Get(HeaderReminderToken)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.triggerToken)) != 1 {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Rejected reminder trigger", "reason", "bad token")
			writeError(w, r, http.StatusUnauthorized, "invalid reminder token")
			return
		}
	}
	if !s.runMu.TryLock() {
		writeError(w, r, http.StatusConflict, "a reminder run is already in progress")
		return
	}
	defer s.runMu.Unlock()

	// A client disconnect must not drop the organizations not yet audited.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), manualRunTimeout)
	defer cancel()

	res := s.reminders.Run(ctx)
	s.log.LogReminderRun(r.Context(), "manual", res.Success, res.RemindersSent, res.OrganizationsProcessed, res.OrganizationsFailed)
	status := http.StatusOK
	if !res.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(w, r, status, res)
}
