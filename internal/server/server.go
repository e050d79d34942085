// Package server provides the HTTP API for somnia.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hyperjump/somnia/internal/config"
	"github.com/hyperjump/somnia/internal/models"
	"github.com/hyperjump/somnia/internal/search"
	"github.com/hyperjump/somnia/internal/storage"
	"go.uber.org/zap"
)

// OwnerHeader carries the caller's owner ID, set by the upstream auth proxy.
const OwnerHeader = "X-Owner-ID"

// Pipeline runs analyze and weekly synthesis requests.
type Pipeline interface {
	Analyze(ctx context.Context, entryID string) (*models.Analysis, error)
	WeeklySynthesis(ctx context.Context, ownerID string) (*models.WeeklyReport, error)
}

// Searcher answers keyword and similarity queries.
type Searcher interface {
	Search(ctx context.Context, ownerID, query string, limit int, fuzzy bool) (*search.Response, error)
	Similar(ctx context.Context, ownerID, entryID string, limit int) ([]*search.Hit, error)
	KeywordDocCount() (uint64, error)
	VectorIndexSize() int
}

// EntryIndexer keeps the search indices in sync with entry writes.
type EntryIndexer interface {
	Refresh(ctx context.Context, id string) error
	RemoveEntry(ctx context.Context, id string) error
}

// InboxService manages the watched inbox directories.
type InboxService interface {
	Directories() []string
	AddDirectory(path string, scanExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the somnia API.
type Server struct {
	storage  storage.Storage
	pipeline Pipeline
	engine   Searcher
	indexer  EntryIndexer
	config   *config.Config
	logger   *zap.Logger

	inbox      InboxService
	configPath string
	configMu   sync.Mutex

	server *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithInbox enables the inbox directory endpoints. When configPath is set,
// directory changes are written back to the config file.
func WithInbox(inbox InboxService, configPath string) Option {
	return func(s *Server) {
		s.inbox = inbox
		s.configPath = configPath
	}
}

// NewServer creates a server with the given dependencies.
func NewServer(store storage.Storage, p Pipeline, engine Searcher, idx EntryIndexer, cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		storage:  store,
		pipeline: p,
		engine:   engine,
		indexer:  idx,
		config:   cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.Server.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", OwnerHeader, "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)

		r.Route("/inbox/directories", func(r chi.Router) {
			r.Get("/", s.handleInboxList)
			r.Post("/", s.handleInboxAdd)
			r.Delete("/", s.handleInboxRemove)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireOwner)
			r.Route("/entries", func(r chi.Router) {
				r.Get("/", s.handleListEntries)
				r.Post("/", s.handleCreateEntry)
				r.Get("/search", s.handleSearch)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetEntry)
					r.Put("/", s.handleUpdateEntry)
					r.Delete("/", s.handleDeleteEntry)
					r.Post("/analyze", s.handleAnalyze)
					r.Get("/analysis", s.handleGetAnalysis)
					r.Get("/analyses", s.handleListAnalyses)
					r.Get("/similar", s.handleSimilar)
				})
			})
			r.Get("/synthesis/weekly", s.handleWeekly)
		})
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
