package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MimeLyc/content-orchestrator/internal/config"
	"github.com/MimeLyc/content-orchestrator/internal/jobs"
	"github.com/MimeLyc/content-orchestrator/internal/service"
)

type runtimeSettingsStore interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

type runtimeSettingsApplier func(next config.RuntimeSettings) error

type taskLister interface {
	List() []*jobs.Task
}

type Server struct {
	store     jobs.Store
	triggers  *service.Triggers
	tasks     taskLister
	settings  runtimeSettingsStore
	apply     runtimeSettingsApplier
	scheduler *service.Scheduler

	streamInterval time.Duration

	router chi.Router
	server *http.Server
}

type Option func(*Server)

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

func WithRuntimeSettingsApplier(apply runtimeSettingsApplier) Option {
	return func(s *Server) {
		s.apply = apply
	}
}

func WithScheduler(scheduler *service.Scheduler) Option {
	return func(s *Server) {
		s.scheduler = scheduler
	}
}

func WithTaskLister(tasks taskLister) Option {
	return func(s *Server) {
		s.tasks = tasks
	}
}

func WithStreamInterval(d time.Duration) Option {
	return func(s *Server) {
		s.streamInterval = d
	}
}

func NewServer(store jobs.Store, triggers *service.Triggers, opts ...Option) *Server {
	s := &Server{
		store:          store,
		triggers:       triggers,
		streamInterval: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Post("/", s.handleCreateJob)
			r.Get("/{id}", s.handleGetJob)
			r.Get("/{id}/stream", s.handleJobStream)
			r.Post("/{id}/run", s.handleRerunJob)
			r.Post("/{id}/cancel", s.handleCancelJob)
		})
		r.Get("/tasks", s.handleListTasks)
		r.Post("/documents/{collection}/{id}/publish", s.handlePublish)
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handleUpdateSettings)
		r.Get("/news/schedule", s.handleSchedule)
		r.Post("/news/run", s.handleRunNews)
	})

	s.router = r
}
