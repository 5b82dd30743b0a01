// Package gateway exposes the daemon's HTTP surface: health and metrics
// endpoints plus the OAuth authorization-code callback that completes
// the intranet login flow.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campuswatch/campuswatch/internal/intra"
	"github.com/campuswatch/campuswatch/internal/store"
)

// Authorizer completes the OAuth login: exchange the code, then resolve
// the profile behind the resulting personal token.
type Authorizer interface {
	Authorize(ctx context.Context, code string) (string, error)
	GetMe(ctx context.Context, personalToken string) (*intra.Peer, error)
}

// UserStore links a Telegram chat to the intranet login it proved
// ownership of.
type UserStore interface {
	GetUser(ctx context.Context, id int64) (*store.User, error)
	UpsertUser(ctx context.Context, u store.User) error
}

// Gateway is the HTTP server.
type Gateway struct {
	listen string
	auth   Authorizer
	users  UserStore
	logger *slog.Logger
	server *http.Server
}

// New creates a Gateway listening on listen.
func New(listen string, auth Authorizer, users UserStore, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		listen: listen,
		auth:   auth,
		users:  users,
		logger: logger.With("component", "gateway"),
	}
}

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", g.handleHealth())
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/oauth/callback", g.handleCallback())
	return r
}

// Start begins serving in a background goroutine.
func (g *Gateway) Start() error {
	g.server = &http.Server{
		Addr:              g.listen,
		Handler:           g.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		g.logger.Info("gateway listening", "addr", g.listen)
		if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve failed", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	return g.server.Shutdown(ctx)
}

func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

// handleCallback finishes the login flow started from the bot: the
// state parameter carries the Telegram chat ID that requested login.
func (g *Gateway) handleCallback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}

		var chatID int64
		if _, err := fmt.Sscanf(r.URL.Query().Get("state"), "%d", &chatID); err != nil {
			http.Error(w, "invalid state", http.StatusBadRequest)
			return
		}

		token, err := g.auth.Authorize(r.Context(), code)
		if err != nil {
			g.logger.Error("authorization code exchange failed", "error", err)
			http.Error(w, "authorization failed", http.StatusBadGateway)
			return
		}

		me, err := g.auth.GetMe(r.Context(), token)
		if err != nil {
			g.logger.Error("resolving profile failed", "error", err)
			http.Error(w, "authorization failed", http.StatusBadGateway)
			return
		}

		user := store.User{ID: chatID, Login: me.Login, Language: "en"}
		if existing, err := g.users.GetUser(r.Context(), chatID); err == nil && existing != nil {
			// Keep the user's settings, only bind the login.
			user = *existing
			user.Login = me.Login
		}
		if err := g.users.UpsertUser(r.Context(), user); err != nil {
			g.logger.Error("linking user failed", "chat", chatID, "error", err)
			http.Error(w, "authorization failed", http.StatusInternalServerError)
			return
		}

		g.logger.Info("user linked", "chat", chatID, "login", me.Login)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintf(w, "<html><body>Logged in as <b>%s</b>. You can close this tab.</body></html>", me.Login)
	}
}
