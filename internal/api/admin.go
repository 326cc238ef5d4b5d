package api

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/recetario/recipe-app/internal/mute"
	"github.com/recetario/recipe-app/internal/report"
)

// handleListReports returns the most recent message reports for review.
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.deps.Reports.ListRecent(r.Context(), 100)
	if err != nil {
		log.Printf("[api] list reports failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not load reports")
		return
	}
	if reports == nil {
		reports = []report.Report{}
	}
	writeJSON(w, http.StatusOK, reports)
}

// handleMute mutes a user in the shared chat room for a duration.
func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req struct {
		Minutes int    `json:"minutes"`
		Reason  string `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	duration := time.Duration(req.Minutes) * time.Minute
	if duration <= 0 {
		duration = mute.DefaultDuration
	}

	if err := s.deps.Mutes.Mute(r.Context(), userID, duration, req.Reason); err != nil {
		log.Printf("[api] mute %s failed: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "internal", "could not mute user")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		UserID  string `json:"user_id"`
		Muted   bool   `json:"muted"`
		Minutes int    `json:"minutes"`
	}{UserID: userID, Muted: true, Minutes: int(duration.Minutes())})
}

// handleUnmute lifts a user's mute early.
func (s *Server) handleUnmute(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := s.deps.Mutes.Unmute(r.Context(), userID); err != nil {
		log.Printf("[api] unmute %s failed: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "internal", "could not unmute user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMuteInfo reports whether a user is muted and for how much longer.
func (s *Server) handleMuteInfo(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	remaining, reason, err := s.deps.Mutes.Info(r.Context(), userID)
	if err != nil {
		log.Printf("[api] mute info %s failed: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "internal", "could not read mute state")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		UserID           string `json:"user_id"`
		Muted            bool   `json:"muted"`
		RemainingSeconds int    `json:"remaining_seconds"`
		Reason           string `json:"reason,omitempty"`
	}{
		UserID:           userID,
		Muted:            remaining > 0,
		RemainingSeconds: int(remaining.Seconds()),
		Reason:           reason,
	})
}
