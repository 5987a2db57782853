package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wayfarer-erp/backend/internal/api/middleware"
	"github.com/wayfarer-erp/backend/internal/api/routes"
	"github.com/wayfarer-erp/backend/internal/config"
	"github.com/wayfarer-erp/backend/internal/logger"
)

// Server wraps the HTTP engine and shared dependencies for easier testing.
type Server struct {
	Engine *gin.Engine
	cfg    config.Config
	onStop []func(context.Context) error
}

// New wires up the HTTP router and registers versioned routes.
func New(deps routes.Deps) (*Server, error) {
	cfg := deps.Config
	gin.SetMode(gin.ReleaseMode)
	if cfg.Environment == "development" {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(),
		middleware.Recovery(cfg.Debug),
		middleware.SecurityHeaders(middleware.SecurityHeadersConfig{IsDevelopment: cfg.Environment == "development"}),
	)

	if err := routes.Register(router, deps); err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	return &Server{Engine: router, cfg: cfg}, nil
}

// OnStop registers fn to run, in registration order, after the HTTP server
// has drained during Run's shutdown.
func (s *Server) OnStop(fn func(context.Context) error) {
	s.onStop = append(s.onStop, fn)
}

// Run starts the HTTP server with proper shutdown semantics.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", s.cfg.HTTPPort),
		Handler:           s.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	var runErr error
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			runErr = fmt.Errorf("graceful shutdown: %w", err)
		}
		return errors.Join(runErr, s.stop(shutdownCtx))
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(runErr, s.stop(stopCtx))
}

func (s *Server) stop(ctx context.Context) error {
	var errs []error
	for _, fn := range s.onStop {
		if err := fn(ctx); err != nil {
			logger.Log().WithError(err).Warn("shutdown hook failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
