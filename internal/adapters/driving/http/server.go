package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/custodia-labs/redline-core/internal/core/ports/driven"
	"github.com/custodia-labs/redline-core/internal/core/ports/driving"
)

// shutdownTimeout bounds how long Start waits for in-flight requests
// after a stop signal.
const shutdownTimeout = 30 * time.Second

// Pinger is the health probe each backing dependency exposes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the REST surface: documents, edit jobs, versions, settings
// and queue administration. Handlers live in handlers.go; this file
// owns routing, middleware and lifecycle.
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	logger     *slog.Logger

	documentService driving.DocumentService
	jobService      driving.JobService
	settingsService driving.SettingsService

	// Health probes. redisClient is nil when running postgres-only.
	taskQueue    driven.TaskQueue
	db           Pinger
	redisClient  Pinger
	contentStore Pinger
}

// Config carries the listen address and CORS settings for the API server.
type Config struct {
	Host           string
	Port           int
	Version        string
	AllowedOrigins []string
}

// DefaultConfig listens on all interfaces at 8080 with open CORS.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		Version:        "dev",
		AllowedOrigins: []string{"*"},
	}
}

// NewServer wires the services and health probes into a routed HTTP server.
func NewServer(
	cfg Config,
	documentService driving.DocumentService,
	jobService driving.JobService,
	settingsService driving.SettingsService,
	taskQueue driven.TaskQueue,
	db Pinger,
	redisClient Pinger, // can be nil
	contentStore Pinger,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:          http.NewServeMux(),
		version:         cfg.Version,
		logger:          logger,
		documentService: documentService,
		jobService:      jobService,
		settingsService: settingsService,
		taskQueue:       taskQueue,
		db:              db,
		redisClient:     redisClient,
		contentStore:    contentStore,
	}
	s.routes()

	s.httpServer = &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		// Recovery sits outermost so panics anywhere below still
		// produce a logged 500.
		Handler: chain(s.router,
			recovery(logger),
			requestLogging(logger),
			cors(cfg.AllowedOrigins),
		),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// routes registers every endpoint on the mux.
func (s *Server) routes() {
	// Liveness
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /version", s.handleVersion)

	// Documents and their version ledger
	s.router.HandleFunc("POST /api/v1/documents", s.handleUploadDocument)
	s.router.HandleFunc("GET /api/v1/documents", s.handleListDocuments)
	s.router.HandleFunc("GET /api/v1/documents/{id}", s.handleGetDocument)
	s.router.HandleFunc("DELETE /api/v1/documents/{id}", s.handleDeleteDocument)
	s.router.HandleFunc("GET /api/v1/documents/{id}/versions", s.handleListVersions)
	s.router.HandleFunc("GET /api/v1/documents/{id}/versions/{number}", s.handleGetVersion)

	// Edit pipeline: submit, inspect, decide
	s.router.HandleFunc("POST /api/v1/documents/{id}/edits", s.handleSubmitEdit)
	s.router.HandleFunc("GET /api/v1/jobs", s.handleListJobs)
	s.router.HandleFunc("GET /api/v1/jobs/{id}", s.handleGetJob)
	s.router.HandleFunc("GET /api/v1/jobs/{id}/preview", s.handlePreviewJob)
	s.router.HandleFunc("POST /api/v1/jobs/{id}/apply", s.handleApplyJob)
	s.router.HandleFunc("POST /api/v1/jobs/{id}/reject", s.handleRejectJob)
	s.router.HandleFunc("POST /api/v1/jobs/{id}/cancel", s.handleCancelJob)

	// Operations
	s.router.HandleFunc("GET /api/v1/queue/stats", s.handleQueueStats)
	s.router.HandleFunc("GET /api/v1/settings", s.handleGetSettings)
	s.router.HandleFunc("PUT /api/v1/settings", s.handleUpdateSettings)
	s.router.HandleFunc("GET /api/v1/settings/collaborator", s.handleGetCollaboratorStatus)
	s.router.HandleFunc("PUT /api/v1/settings/collaborator", s.handleUpdateCollaborator)
	s.router.HandleFunc("POST /api/v1/settings/collaborator/test", s.handleTestCollaborator)
}

// Start serves until SIGINT/SIGTERM or a listen failure, then drains
// in-flight requests for up to shutdownTimeout.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}
	s.logger.Info("shutting down http server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	s.logger.Info("http server stopped")
	return nil
}

// Stop shuts the server down without waiting for a signal.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
