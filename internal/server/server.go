// Package server hosts lesson pages and the live editor engine over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/conneroisu/livecode/internal/config"
	"github.com/conneroisu/livecode/internal/lesson"
	"github.com/conneroisu/livecode/internal/logging"
	"github.com/conneroisu/livecode/internal/monitoring"
	"github.com/conneroisu/livecode/internal/session"
	"github.com/conneroisu/livecode/internal/websocket"
)

// Inbound websocket messages allowed per client per second.
const messagesPerSecond = 50

// Server serves lessons with live editors.
type Server struct {
	config   *config.Config
	store    *lesson.Store
	sessions *session.Manager
	ws       *websocket.Manager
	metrics  *monitoring.Metrics
	creates  *rate.Limiter
	logger   logging.Logger

	serverMutex  sync.RWMutex
	httpServer   *http.Server
	listener     net.Listener
	shutdownOnce sync.Once
}

// New wires a server over a loaded lesson store.
func New(cfg *config.Config, store *lesson.Store, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	metrics := monitoring.NewMetrics()

	opts := session.DefaultOptions()
	opts.Isolation = cfg.Isolation()
	opts.Preflight = cfg.Preflight()
	opts.Feedback = cfg.Session.Feedback
	opts.IdleTimeout = cfg.Session.IdleTimeout
	opts.Metrics = metrics
	opts.Logger = logger
	sessions := session.NewManager(opts)

	s := &Server{
		config:   cfg,
		store:    store,
		sessions: sessions,
		metrics:  metrics,
		creates:  rate.NewLimiter(rate.Limit(cfg.Session.CreateRate), cfg.Session.CreateBurst),
		logger:   logger.WithComponent("server"),
		ws: websocket.NewManager(sessions, websocket.Options{
			AllowedOrigins:    cfg.Server.AllowedOrigins,
			MessagesPerSecond: messagesPerSecond,
			Metrics:           metrics,
			Logger:            logger,
		}),
	}

	metrics.SetLessons(len(store.List()))
	store.OnChange(func(name string) {
		metrics.LessonReloaded()
		metrics.SetLessons(len(store.List()))
		sessions.NotifyReload(name)
	})

	return s
}

// Sessions exposes the session manager.
func (s *Server) Sessions() *session.Manager { return s.sessions }

// Metrics exposes the metrics registry.
func (s *Server) Metrics() *monitoring.Metrics { return s.metrics }

// Handler builds the routed handler with metrics and security headers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern, name string, h http.HandlerFunc) {
		mux.Handle(pattern, s.metrics.Instrument(name, h))
	}

	route("GET /{$}", "index", s.handleIndex)
	route("GET /lessons/{name}", "lesson", s.handleLesson)
	route("GET /static/", "static", s.handleStatic)
	route("GET /ws", "ws", s.ws.HandleWebSocket)
	route("GET /api/lessons", "api_lessons", s.handleLessons)
	route("GET /api/sessions/{id}/editors", "api_editors", s.handleEditors)
	route("GET /health", "health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	return securityHeaders(mux)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.Address(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.config.Lessons.Watch {
		if err := s.store.Watch(ctx, s.config.Lessons.Debounce); err != nil {
			s.logger.Warn(ctx, err, "lesson hot reload disabled")
		}
	}
	go s.sessions.Run(ctx, s.config.Session.ReapInterval)

	s.serverMutex.Lock()
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	s.logger.Info(ctx, "serving lessons", "addr", ln.Addr().String(), "lessons", len(s.store.List()))

	errc := make(chan error, 1)
	go func() { errc <- server.Serve(ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Addr returns the listen address once serving.
func (s *Server) Addr() string {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown closes websocket clients, sessions and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "shutting down server")

		if err := s.ws.Shutdown(ctx); err != nil {
			shutdownErr = err
		}
		s.sessions.Close()

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()
		if server != nil {
			if err := server.Shutdown(ctx); err != nil && shutdownErr == nil {
				shutdownErr = err
			}
		}
	})
	return shutdownErr
}
