// Package server exposes the classifier over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/crimson-sun/mailclass/internal/model"
)

const defaultShutdownTimeout = 10 * time.Second

// Classifier is what the HTTP surface needs from the engine.
type Classifier interface {
	Classify(ctx context.Context, text string) (model.Result, error)
	ClassifyBatch(ctx context.Context, texts []string) ([]model.Result, error)
	Ready() bool
	DefaultIdentifier() string
}

// NewRouter builds the gin engine with middleware and routes.
func NewRouter(c Classifier, logger *slog.Logger) *gin.Engine {
	router := gin.New()

	router.Use(RequestID())
	router.Use(Logger(logger))
	router.Use(Recovery(logger))

	h := &handler{classifier: c}

	router.GET("/", h.index)
	router.GET("/health", h.health)
	router.GET("/ready", h.ready)

	v1 := router.Group("/api/v1")
	v1.Use(limitBody(maxBodyBytes))
	{
		v1.POST("/classify", h.classify)
		v1.POST("/classify/batch", h.classifyBatch)
		v1.GET("/labels", h.labels)
	}

	return router
}

// Server runs the router on an address until its context ends.
type Server struct {
	srv             *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// New creates a Server listening on addr. A non-positive shutdownTimeout
// means 10s.
func New(addr string, c Classifier, logger *slog.Logger, shutdownTimeout time.Duration) *Server {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(c, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: shutdownTimeout,
		logger:          logger,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server: listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("server: shutting down", "timeout", s.shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
