package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/windlass/windlass/pkg/bluegreen"
	"github.com/windlass/windlass/pkg/builder"
	"github.com/windlass/windlass/pkg/deploy"
	"github.com/windlass/windlass/pkg/log"
	"github.com/windlass/windlass/pkg/metrics"
	"github.com/windlass/windlass/pkg/notify"
	"github.com/windlass/windlass/pkg/rollback"
	"github.com/windlass/windlass/pkg/rollout"
	"github.com/windlass/windlass/pkg/storage"
)

// Server is the HTTP API front of the deployment platform
type Server struct {
	store     storage.Store
	builds    *builder.Service
	deploys   *deploy.Service
	rollbacks *rollback.Coordinator
	bluegreen *bluegreen.Manager
	engine    *rollout.Engine
	events    *notify.Broker

	router *mux.Router
	http   *http.Server
	logger zerolog.Logger
}

func NewServer(addr string, store storage.Store, builds *builder.Service, deploys *deploy.Service, rollbacks *rollback.Coordinator, bg *bluegreen.Manager, engine *rollout.Engine, events *notify.Broker) *Server {
	s := &Server{
		store:     store,
		builds:    builds,
		deploys:   deploys,
		rollbacks: rollbacks,
		bluegreen: bg,
		engine:    engine,
		events:    events,
		router:    mux.NewRouter(),
		logger:    log.WithComponent("api"),
	}
	s.routes()
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.Use(s.instrument)

	v1 := s.router.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/projects", s.handleCreateProject).Methods(http.MethodPost)
	v1.HandleFunc("/projects", s.handleListProjects).Methods(http.MethodGet)
	v1.HandleFunc("/projects/{id}", s.handleGetProject).Methods(http.MethodGet)
	v1.HandleFunc("/projects/{id}/environments", s.handleCreateEnvironment).Methods(http.MethodPost)
	v1.HandleFunc("/projects/{id}/environments", s.handleListEnvironments).Methods(http.MethodGet)
	v1.HandleFunc("/projects/{id}/builds", s.handleListBuilds).Methods(http.MethodGet)
	v1.HandleFunc("/projects/{id}/deployments", s.handleListDeployments).Methods(http.MethodGet)
	v1.HandleFunc("/projects/{id}/environments/{env}/deployments/latest", s.handleLatestDeployment).Methods(http.MethodGet)
	v1.HandleFunc("/projects/{id}/environments/{env}/deployments/previous", s.handlePreviousDeployment).Methods(http.MethodGet)

	v1.HandleFunc("/builds", s.handleSubmitBuild).Methods(http.MethodPost)
	v1.HandleFunc("/builds/{id}", s.handleGetBuild).Methods(http.MethodGet)
	v1.HandleFunc("/builds/{id}/cancel", s.handleCancelBuild).Methods(http.MethodPost)

	v1.HandleFunc("/deployments", s.handleCreateDeployment).Methods(http.MethodPost)
	v1.HandleFunc("/deployments/{id}", s.handleGetDeployment).Methods(http.MethodGet)
	v1.HandleFunc("/deployments/{id}/promote", s.handlePromoteCanary).Methods(http.MethodPost)
	v1.HandleFunc("/deployments/{id}/resume", s.handleResumeCanary).Methods(http.MethodPost)

	v1.HandleFunc("/rollback", s.handleRollback).Methods(http.MethodPost)

	v1.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	v1.HandleFunc("/bluegreen", s.handleInitializeBlueGreen).Methods(http.MethodPost)
	v1.HandleFunc("/bluegreen/{id}", s.handleBlueGreenStatus).Methods(http.MethodGet)
	v1.HandleFunc("/bluegreen/{id}/switch", s.handleBlueGreenSwitch).Methods(http.MethodPost)
	v1.HandleFunc("/bluegreen/{id}/rollback", s.handleBlueGreenRollback).Methods(http.MethodPost)
	v1.HandleFunc("/bluegreen/{id}/pause", s.handleBlueGreenPause).Methods(http.MethodPost)
	v1.HandleFunc("/bluegreen/{id}/resume", s.handleBlueGreenResume).Methods(http.MethodPost)

	s.router.HandleFunc("/healthz", metrics.HealthHandler()).Methods(http.MethodGet)
	s.router.HandleFunc("/readyz", metrics.ReadyHandler()).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
}

// Router exposes the handler for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins serving. It blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.http.Addr).Msg("api server listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// instrument records request counts and latency per route
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(sw.status)).Inc()
		timer.ObserveDuration(metrics.APIRequestDuration.WithLabelValues(r.Method))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush lets the event stream write through the wrapper
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
