package api

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleGetFlag returns the current user's value for one flag.
func (s *Server) handleGetFlag(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	name := chi.URLParam(r, "name")

	value, ok, err := s.deps.Flags.Get(r.Context(), sess.UserID, name)
	if err != nil {
		log.Printf("[api] flag get %s failed: %v", name, err)
		writeError(w, http.StatusInternalServerError, "internal", "could not read flag")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "flag not set")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}{Name: name, Value: value})
}

// handleSetFlag stores a flag value for the current user.
func (s *Server) handleSetFlag(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	name := chi.URLParam(r, "name")

	var req struct {
		Value string `json:"value"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	if err := s.deps.Flags.Set(r.Context(), sess.UserID, name, req.Value); err != nil {
		log.Printf("[api] flag set %s failed: %v", name, err)
		writeError(w, http.StatusInternalServerError, "internal", "could not store flag")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRemoveFlag clears a flag for the current user.
func (s *Server) handleRemoveFlag(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	name := chi.URLParam(r, "name")

	if err := s.deps.Flags.Remove(r.Context(), sess.UserID, name); err != nil {
		log.Printf("[api] flag remove %s failed: %v", name, err)
		writeError(w, http.StatusInternalServerError, "internal", "could not remove flag")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
