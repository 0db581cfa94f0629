package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/castsync/castsync/internal/config"
	"github.com/castsync/castsync/internal/history"
	"github.com/castsync/castsync/internal/people"
)

// health returns service liveness and version.
// GET /api/v1/health
func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": config.Version,
	})
}

// triggerScan starts a full library scan in the background.
// POST /api/v1/scan
func (s *Server) triggerScan(c echo.Context) error {
	if s.scans.Status().Running {
		return echo.NewHTTPError(http.StatusConflict, "a scan is already running")
	}

	// The scan outlives the request, so it runs detached from its context.
	go func() {
		if err := s.scans.Scan(context.Background(), "manual"); err != nil &&
			!errors.Is(err, people.ErrScanRunning) {
			s.logger.Error().Err(err).Msg("Manual scan failed")
		}
	}()

	return c.JSON(http.StatusAccepted, map[string]string{"status": "started"})
}

// scanItem reconciles a single item, for webhook-style integrations that
// fire when an item is added to the server.
// POST /api/v1/scan/item/:serverName/:itemID
func (s *Server) scanItem(c echo.Context) error {
	serverName := c.Param("serverName")
	itemID := c.Param("itemID")

	err := s.scans.ScanItem(c.Request().Context(), serverName, itemID)
	switch {
	case errors.Is(err, people.ErrServerNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "unknown media server")
	case errors.Is(err, people.ErrItemNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "item not found")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "completed"})
}

// scanStatus reports whether a scan is running and its live counters.
// GET /api/v1/scan/status
func (s *Server) scanStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.scans.Status())
}

// scanHistory lists recent scan runs, newest first.
// GET /api/v1/scan/history
func (s *Server) scanHistory(c echo.Context) error {
	limit := 20
	if l := c.QueryParam("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = v
		}
	}

	runs, err := s.store.ListRecent(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if runs == nil {
		runs = []history.Run{}
	}
	return c.JSON(http.StatusOK, runs)
}

// listTasks returns the scheduled background tasks.
// GET /api/v1/tasks
func (s *Server) listTasks(c echo.Context) error {
	return c.JSON(http.StatusOK, s.scheduler.ListTasks())
}
