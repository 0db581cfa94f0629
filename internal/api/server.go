// Package api exposes the HTTP control surface: health, scan triggers,
// scan status and history.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/castsync/castsync/internal/config"
	"github.com/castsync/castsync/internal/history"
	"github.com/castsync/castsync/internal/people"
	"github.com/castsync/castsync/internal/scheduler"
)

// Server handles HTTP requests for the castsync API.
type Server struct {
	echo   *echo.Echo
	cfg    *config.Config
	logger zerolog.Logger

	scans     *people.Service
	store     *history.Store
	scheduler *scheduler.Scheduler
}

// NewServer creates the API server and wires its routes.
func NewServer(cfg *config.Config, scans *people.Service, store *history.Store,
	sched *scheduler.Scheduler, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		cfg:       cfg,
		logger:    logger.With().Str("component", "api").Logger(),
		scans:     scans,
		store:     store,
		scheduler: sched,
	}

	e.Use(middleware.Recover())
	e.Use(s.requestLogger())

	s.registerRoutes()
	return s
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Msg("Request")
			return nil
		},
	})
}

func (s *Server) registerRoutes() {
	v1 := s.echo.Group("/api/v1")

	v1.GET("/health", s.health)
	v1.POST("/scan", s.triggerScan)
	v1.POST("/scan/item/:serverName/:itemID", s.scanItem)
	v1.GET("/scan/status", s.scanStatus)
	v1.GET("/scan/history", s.scanHistory)
	v1.GET("/tasks", s.listTasks)
}

// Start begins listening on the configured address. Blocks until shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.logger.Info().Str("addr", addr).Msg("API server listening")

	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}
