package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/recetario/recipe-app/internal/chat"
	"github.com/recetario/recipe-app/internal/report"
)

const defaultHistoryLimit = 50

// handleRecentMessages returns the recent chat history in ascending
// creation-time order, for clients that load the room over REST before
// attaching to the WebSocket.
func (s *Server) handleRecentMessages(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > defaultHistoryLimit {
		limit = defaultHistoryLimit
	}

	msgs, err := s.deps.Relay.FetchRecent(r.Context(), limit)
	if err != nil {
		log.Printf("[api] fetch recent messages failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not load messages")
		return
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// handleDeleteMessage hard-deletes a chat message for its author or an
// admin.
func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	err := s.deps.Relay.Delete(r.Context(), sess, chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, chat.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "message not found")
	case errors.Is(err, chat.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "not the message author")
	case err != nil:
		log.Printf("[api] message delete failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not delete message")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleReportMessage records a report against a chat message.
func (s *Server) handleReportMessage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if !report.ValidReason(req.Reason) {
		writeError(w, http.StatusBadRequest, "invalid_reason", "unknown report reason")
		return
	}

	err := s.deps.Reports.Create(r.Context(), &report.Report{
		ReporterID: sess.UserID,
		MessageID:  chi.URLParam(r, "id"),
		Reason:     req.Reason,
	})
	if err != nil {
		log.Printf("[api] report create failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not record report")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
