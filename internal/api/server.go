// Package api exposes the HTTP surface of the Recetario backend: JSON
// endpoints for auth, recipes, chat history, and moderation, plus the
// WebSocket upgrade, static media, health, and Prometheus metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/recetario/recipe-app/internal/auth"
	"github.com/recetario/recipe-app/internal/chat"
	"github.com/recetario/recipe-app/internal/metrics"
	"github.com/recetario/recipe-app/internal/mute"
	"github.com/recetario/recipe-app/internal/ratelimit"
	"github.com/recetario/recipe-app/internal/recipe"
	"github.com/recetario/recipe-app/internal/report"
)

// UserStore is the user persistence surface the auth handlers need.
// *auth.Users satisfies it.
type UserStore interface {
	Create(ctx context.Context, email, passwordHash string) (auth.User, error)
	GetByEmail(ctx context.Context, email string) (auth.User, error)
	GetByID(ctx context.Context, id string) (auth.User, error)
}

// SessionStore manages refresh sessions. *auth.Sessions satisfies it.
type SessionStore interface {
	Create(ctx context.Context, userID string, remember bool) (string, error)
	Get(ctx context.Context, token string) (*auth.RefreshSession, error)
	Refresh(ctx context.Context, sess *auth.RefreshSession) error
	Delete(ctx context.Context, token string) error
}

// RecipeStore is the recipe persistence surface the recipe handlers need.
// *recipe.Store satisfies it.
type RecipeStore interface {
	Search(ctx context.Context, query string, limit int) ([]recipe.Recipe, error)
	Create(ctx context.Context, authorID string, d recipe.Draft) (recipe.Recipe, error)
	GetByID(ctx context.Context, id string) (recipe.Recipe, error)
	Update(ctx context.Context, id string, d recipe.Draft) error
	Delete(ctx context.Context, id string) error
	AuthorOf(ctx context.Context, id string) (string, error)
	SetImageURL(ctx context.Context, id, url string) error
}

// FlagStore holds per-user feature flags. *flags.Store satisfies it.
type FlagStore interface {
	Get(ctx context.Context, userID, name string) (string, bool, error)
	Set(ctx context.Context, userID, name, value string) error
	Remove(ctx context.Context, userID, name string) error
}

// Deps carries everything the HTTP server needs. WSUpgrade is the WebSocket
// upgrade handler; Health reports feed-subscription health for /health.
type Deps struct {
	Users    UserStore
	Sessions SessionStore
	Signer   *auth.TokenSigner
	Relay    *chat.Relay
	Recipes  RecipeStore
	Photos   PhotoStore
	MediaDir string
	Flags    FlagStore
	Mutes    *mute.Store
	Reports  *report.Store
	Limiter  *ratelimit.Limiter

	WSUpgrade   http.HandlerFunc
	Health      func() error
	Connections func() int
	Uptime      func() time.Duration
}

// Server is the HTTP API server.
type Server struct {
	deps Deps
}

// NewServer creates an API server over the given dependencies.
func NewServer(deps Deps) *Server {
	return &Server{deps: deps}
}

// Router builds the chi routing tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	if s.deps.WSUpgrade != nil {
		r.Get("/ws", s.handleWS)
	}

	if s.deps.MediaDir != "" {
		fs := http.StripPrefix("/media/", http.FileServer(http.Dir(s.deps.MediaDir)))
		r.Get("/media/*", fs.ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", s.handleSignup)
			r.Post("/login", s.handleLogin)
			r.Post("/refresh", s.handleRefresh)
			r.Post("/logout", s.handleLogout)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.withAuth)

			r.Route("/recipes", func(r chi.Router) {
				r.Get("/", s.handleSearchRecipes)
				r.Get("/search", s.handleSearchRecipes)
				r.Post("/", s.handleCreateRecipe)
				r.Get("/{id}", s.handleGetRecipe)
				r.Put("/{id}", s.handleUpdateRecipe)
				r.Delete("/{id}", s.handleDeleteRecipe)
				r.Post("/{id}/photo", s.handleUploadPhoto)
			})

			r.Route("/messages", func(r chi.Router) {
				r.Get("/", s.handleRecentMessages)
				r.Delete("/{id}", s.handleDeleteMessage)
				r.Post("/{id}/report", s.handleReportMessage)
			})

			r.Route("/flags/{name}", func(r chi.Router) {
				r.Get("/", s.handleGetFlag)
				r.Put("/", s.handleSetFlag)
				r.Delete("/", s.handleRemoveFlag)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/reports", s.handleListReports)
				r.Get("/mutes/{userID}", s.handleMuteInfo)
				r.Post("/mutes/{userID}", s.handleMute)
				r.Delete("/mutes/{userID}", s.handleUnmute)
			})
		})
	})

	return r
}

// handleWS throttles WebSocket dials per IP and hands the request to the
// upgrade handler, which performs its own token check.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.deps.Limiter != nil {
		allowed, _ := s.deps.Limiter.Allow(r.Context(), clientIP(r), ratelimit.RuleConnect)
		if !allowed {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many connection attempts")
			return
		}
	}
	s.deps.WSUpgrade(w, r)
}

// handleHealth reports process health. The feed subscriptions degrade the
// status without failing the check, so the process is not restarted for a
// transient broker outage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	var feedErr string
	if s.deps.Health != nil {
		if err := s.deps.Health(); err != nil {
			status = "degraded"
			feedErr = err.Error()
		}
	}

	resp := struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Uptime      string `json:"uptime"`
		FeedError   string `json:"feed_error,omitempty"`
	}{
		Status:    status,
		FeedError: feedErr,
	}
	if s.deps.Connections != nil {
		resp.Connections = s.deps.Connections()
	}
	if s.deps.Uptime != nil {
		resp.Uptime = s.deps.Uptime().Round(time.Second).String()
	}

	writeJSON(w, http.StatusOK, resp)
}
