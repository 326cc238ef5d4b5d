package api

import (
	"errors"
	"log"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/recetario/recipe-app/internal/auth"
	"github.com/recetario/recipe-app/internal/ratelimit"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

func (c credentialsRequest) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Email, validation.Required, is.Email),
		validation.Field(&c.Password, validation.Required, validation.Length(auth.MinPasswordLength, 128)),
	)
}

type tokenResponse struct {
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// handleSignup registers a new account and logs it in.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_credentials_format", err.Error())
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "could not create account")
		return
	}

	user, err := s.deps.Users.Create(r.Context(), req.Email, hash)
	if errors.Is(err, auth.ErrEmailTaken) {
		writeError(w, http.StatusConflict, "email_taken", "email is already registered")
		return
	}
	if err != nil {
		log.Printf("[api] signup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not create account")
		return
	}

	s.issueTokens(w, r, user, req.Remember)
}

// handleLogin authenticates with email and password. Attempts are rate
// limited per IP.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.deps.Limiter != nil {
		allowed, _ := s.deps.Limiter.Allow(r.Context(), clientIP(r), ratelimit.RuleLogin)
		if !allowed {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many login attempts")
			return
		}
	}

	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	user, err := s.deps.Users.GetByEmail(r.Context(), req.Email)
	if err == nil {
		err = auth.CheckPassword(user.PasswordHash, req.Password)
	}
	if err != nil {
		// Same response for unknown email and wrong password.
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "wrong email or password")
		return
	}

	s.issueTokens(w, r, user, req.Remember)
}

// handleRefresh exchanges a refresh token for a fresh access token, sliding
// the refresh session's expiry.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(r, &req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "refresh_token required")
		return
	}

	sess, err := s.deps.Sessions.Get(r.Context(), req.RefreshToken)
	if err != nil {
		log.Printf("[api] refresh lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not refresh session")
		return
	}
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "invalid_token", "unknown or expired refresh token")
		return
	}

	user, err := s.deps.Users.GetByID(r.Context(), sess.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_token", "account no longer exists")
		return
	}

	if err := s.deps.Sessions.Refresh(r.Context(), sess); err != nil {
		log.Printf("[api] refresh extend failed: %v", err)
	}

	access, err := s.deps.Signer.Sign(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "could not issue token")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		UserID:      user.ID,
		Email:       user.Email,
		Role:        user.Role,
		AccessToken: access,
	})
}

// handleLogout deletes the refresh session. The access token simply expires.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(r, &req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "refresh_token required")
		return
	}

	if err := s.deps.Sessions.Delete(r.Context(), req.RefreshToken); err != nil {
		log.Printf("[api] logout failed: %v", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// issueTokens writes the full token pair for a freshly authenticated user.
func (s *Server) issueTokens(w http.ResponseWriter, r *http.Request, user auth.User, remember bool) {
	access, err := s.deps.Signer.Sign(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "could not issue token")
		return
	}

	refresh, err := s.deps.Sessions.Create(r.Context(), user.ID, remember)
	if err != nil {
		log.Printf("[api] refresh session create failed for %s: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "internal", "could not create session")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		UserID:       user.ID,
		Email:        user.Email,
		Role:         user.Role,
		AccessToken:  access,
		RefreshToken: refresh,
	})
}
