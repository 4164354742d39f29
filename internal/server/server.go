// Package server is the HTTP facade over the agent core: run submission,
// task and run status, artifact listing, live log tailing, and the metrics
// snapshot. The core never depends on this package; the server only wraps
// query functions the core already exposes.
package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/agentmx/agentmx/internal/config"
	"github.com/agentmx/agentmx/internal/memory"
	"github.com/agentmx/agentmx/internal/pipeline"
	"github.com/agentmx/agentmx/internal/queue"
	"github.com/agentmx/agentmx/internal/schemas"
)

// Config holds server construction parameters.
type Config struct {
	Port   int
	APIKey string
}

// Server wires the HTTP handlers to the core components.
type Server struct {
	cfg        *config.Config
	queue      queue.Queue
	store      memory.Store
	pipe       *pipeline.Pipeline
	validator  *schemas.Validator
	log        *logrus.Logger
	apiKey     string
	httpServer *http.Server
}

// New builds the server. pipe handles direct runs submitted over HTTP; they
// bypass the task queue but share the memory store with scheduler runs.
func New(cfg *config.Config, srvCfg Config, q queue.Queue, store memory.Store, pipe *pipeline.Pipeline, log *logrus.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		queue:     q,
		store:     store,
		pipe:      pipe,
		validator: schemas.NewValidator(cfg.SchemaDir),
		log:       log,
		apiKey:    srvCfg.APIKey,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", srvCfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // log tailing holds connections open
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler builds the routed and middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /run", s.handleDirectRun)
	mux.HandleFunc("POST /tasks", s.handleEnqueue)
	mux.HandleFunc("GET /tasks", s.handleListTasks)
	mux.HandleFunc("GET /tasks/{id}", s.handleGetTask)
	mux.HandleFunc("GET /runs", s.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /runs/{id}/artifacts", s.handleRunArtifacts)
	mux.HandleFunc("GET /runs/{id}/log", s.handleRunLog)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /scheduler", s.handleSchedulerHealth)
	return s.withLogging(s.withAPIKey(mux))
}

// Start listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.httpServer.Addr).Info("http server starting")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// withAPIKey guards every endpoint except /health with a static X-API-Key
// header. An empty configured key disables the check.
func (s *Server) withAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			s.errorResponse(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging logs one structured line per request.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		}).Info("request handled")
	})
}
