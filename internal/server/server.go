// Package server is the HTTP front door of the daemon: the webhook
// receiver plus operator endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/pulljoy/internal/dispatch"
	"github.com/roasbeef/pulljoy/internal/event"
)

// WebhookPath is where the git host delivers events.
const WebhookPath = "/receive_github_event"

// Asker processes an event and waits for the outcome.
type Asker interface {
	Ask(ctx context.Context, ev event.Event) fn.Result[dispatch.Receipt]
}

// EventObserver records webhook outcomes.
type EventObserver interface {
	ObserveEvent(kind, result string, elapsed time.Duration)
}

// Config holds the server's collaborators.
type Config struct {
	// Addr is the listen address, e.g. ":3000".
	Addr string

	// WebhookSecret verifies delivery signatures. Empty disables
	// verification.
	WebhookSecret string

	// Events processes decoded events.
	Events Asker

	// Observer records outcomes. Optional.
	Observer EventObserver

	// Deliveries skips redelivered events that were already processed.
	// Optional.
	Deliveries DeliveryLog

	// Metrics serves /metrics. Optional.
	Metrics http.Handler

	// Transitions serves /ws/transitions. Optional.
	Transitions http.Handler
}

// Server serves the webhook and operator endpoints.
type Server struct {
	cfg    Config
	router chi.Router
	srv    *http.Server
}

// New returns a server with all routes registered.
func New(cfg Config) *Server {
	s := &Server{cfg: cfg}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", s.handlePing)
	r.Post(WebhookPath, s.handleWebhook)

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	if cfg.Transitions != nil {
		r.Method(http.MethodGet, "/ws/transitions", cfg.Transitions)
	}

	s.router = r

	return s
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in the background.
// It returns once the listener is bound.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}

	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,

		// Processing an event may clone a repository.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	log.InfoS(context.Background(), "Starting HTTP server",
		"addr", lis.Addr().String())

	go func() {
		err := s.srv.Serve(lis)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.ErrorS(context.Background(), "HTTP server failed",
				err)
		}
	}()

	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}

	return s.srv.Shutdown(ctx)
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("pong"))
}

// requestLogger logs each request with its request ID.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			log.DebugS(r.Context(), "Handled request",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method, "path", r.URL.Path,
				"status", ww.Status(), "bytes", ww.BytesWritten(),
				"elapsed", time.Since(start))
		}()

		next.ServeHTTP(ww, r)
	})
}
