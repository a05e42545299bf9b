// Package dashboard serves the operator surface on a secondary port:
// liveness, a journal snapshot, and Prometheus metrics.
package dashboard

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"github.com/crawlpoint/connector/internal/logger"
	"github.com/crawlpoint/connector/pkg/journal"
)

// Config configures the dashboard server.
type Config struct {
	// Port is the listen port.
	Port int

	// Username and PasswordHash (bcrypt) protect /status. An empty hash
	// leaves /status open; meant for loopback-only deployments.
	Username     string
	PasswordHash string
}

// Server is the dashboard HTTP server.
type Server struct {
	server       *http.Server
	cfg          Config
	jnl          *journal.Journal
	shutdownOnce sync.Once
}

// NewServer builds a dashboard server over the given journal.
func NewServer(cfg Config, jnl *journal.Journal) *Server {
	s := &Server{cfg: cfg, jnl: jnl}
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.With(s.basicAuth).Get("/status", s.status)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/sleep", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

// status renders the journal snapshot as JSON.
func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	snap := s.jnl.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		logger.Warn("Status encoding failed", logger.KeyError, err.Error())
	}
}

// basicAuth guards an endpoint with the configured credentials. Without a
// password hash the endpoint stays open.
func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.PasswordHash == "" {
			next.ServeHTTP(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(s.cfg.Username)) != 1 ||
			bcrypt.CompareHashAndPassword([]byte(s.cfg.PasswordHash), []byte(pass)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="connector"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("Dashboard listening", "port", s.cfg.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("dashboard failed: %w", err)
	}
}

// Stop shuts the server down gracefully. Safe to call multiple times.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		logger.Info("Stopping dashboard")
		err = s.server.Shutdown(ctx)
	})
	return err
}
