package people

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/castsync/castsync/internal/history"
	"github.com/castsync/castsync/internal/mediaserver"
)

// Scan errors.
var (
	ErrScanRunning    = errors.New("a scan is already running")
	ErrNoServers      = errors.New("no media servers configured")
	ErrServerNotFound = errors.New("media server not found")
	ErrItemNotFound   = errors.New("item not found")
)

// Recorder persists scan run records. It is optional on the service.
type Recorder interface {
	RecordStart(ctx context.Context, run *history.Run) error
	RecordFinish(ctx context.Context, run *history.Run) error
}

// Service drives full-library scans across the configured media servers.
type Service struct {
	engine   *Engine
	gateways []mediaserver.Gateway
	recorder Recorder
	logger   zerolog.Logger

	mu      sync.Mutex
	running bool
	lastRun *history.Run
}

// NewService creates a scan service over the given gateways.
func NewService(engine *Engine, gateways []mediaserver.Gateway, recorder Recorder, log zerolog.Logger) *Service {
	return &Service{
		engine:   engine,
		gateways: gateways,
		recorder: recorder,
		logger:   log.With().Str("component", "scan").Logger(),
	}
}

// Status reports whether a scan is in flight, the live counters, and the
// last finished run if any.
type Status struct {
	Running bool         `json:"running"`
	Current Snapshot     `json:"current"`
	LastRun *history.Run `json:"lastRun,omitempty"`
}

// Status returns the current scan state.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running: s.running,
		Current: s.engine.Stats().Snapshot(),
		LastRun: s.lastRun,
	}
}

func (s *Service) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *Service) finish(run *history.Run) {
	s.mu.Lock()
	s.running = false
	s.lastRun = run
	s.mu.Unlock()
}

// Scan walks every library on every configured server and reconciles the
// people lists of all movies and series found. Only one scan runs at a
// time; a second call while one is in flight returns ErrScanRunning.
func (s *Service) Scan(ctx context.Context, trigger string) error {
	if len(s.gateways) == 0 {
		return ErrNoServers
	}
	if !s.begin() {
		return ErrScanRunning
	}

	run := history.NewRun(trigger)
	s.engine.Stats().Reset()
	s.engine.Cache().Clear()

	if s.recorder != nil {
		if err := s.recorder.RecordStart(ctx, run); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to record scan start")
		}
	}

	s.logger.Info().Str("trigger", trigger).Str("runId", run.ID).Msg("Library scan started")
	start := time.Now()

	err := s.scanAll(ctx)

	snap := s.engine.Stats().Snapshot()
	run.Items = snap.Items
	run.PeopleUpdated = snap.PeopleUpdated
	run.ImagesUploaded = snap.ImagesUploaded
	run.Errors = snap.Errors
	now := time.Now().UTC()
	run.FinishedAt = &now

	switch {
	case err != nil:
		run.Status = history.StatusFailed
		run.Message = err.Error()
	case s.engine.Stopped() || ctx.Err() != nil:
		run.Status = history.StatusCancelled
	default:
		run.Status = history.StatusCompleted
	}

	if s.recorder != nil {
		if recErr := s.recorder.RecordFinish(context.WithoutCancel(ctx), run); recErr != nil {
			s.logger.Warn().Err(recErr).Msg("Failed to record scan finish")
		}
	}
	s.finish(run)

	s.logger.Info().
		Str("status", run.Status).
		Int64("items", run.Items).
		Int64("peopleUpdated", run.PeopleUpdated).
		Int64("imagesUploaded", run.ImagesUploaded).
		Int64("errors", run.Errors).
		Dur("duration", time.Since(start)).
		Msg("Library scan finished")

	return err
}

func (s *Service) scanAll(ctx context.Context) error {
	interval := s.engine.cfg.CacheClearInterval
	processed := 0

	for _, gw := range s.gateways {
		if s.engine.Stopped() || ctx.Err() != nil {
			return nil
		}

		log := s.logger.With().Str("server", gw.Name()).Logger()
		if err := gw.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("Media server unreachable, skipping")
			continue
		}

		libraries, err := gw.GetLibraries(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to list libraries, skipping server")
			continue
		}

		for _, lib := range libraries {
			if s.engine.Stopped() || ctx.Err() != nil {
				return nil
			}

			items, err := gw.GetItems(ctx, lib.ID, mediaserver.LibraryItemTypes)
			if err != nil {
				log.Warn().Err(err).Str("library", lib.Name).Msg("Failed to list library items")
				continue
			}
			log.Info().Str("library", lib.Name).Int("items", len(items)).Msg("Scanning library")

			for i := range items {
				if s.engine.Stopped() || ctx.Err() != nil {
					return nil
				}
				if items[i].ID == "" {
					continue
				}

				full, err := gw.GetItem(ctx, items[i].ID)
				if err != nil {
					log.Warn().Err(err).Str("itemId", items[i].ID).Msg("Failed to fetch item")
					s.engine.stats.Errors.Add(1)
					continue
				}
				if err := s.engine.ReconcileItem(ctx, gw, full); err != nil {
					log.Warn().Err(err).Str("item", full.Name).Msg("Item reconciliation failed")
				}

				processed++
				if interval > 0 && processed%interval == 0 {
					s.engine.Cache().Clear()
				}
			}
		}

		// Cached catalog entries rarely carry across servers.
		s.engine.Cache().Clear()
	}
	return nil
}

// ScanItem reconciles a single item on the named server. It is intended
// for webhook-style triggers that fire when an item is added or updated.
func (s *Service) ScanItem(ctx context.Context, serverName, itemID string) error {
	var gw mediaserver.Gateway
	for _, g := range s.gateways {
		if g.Name() == serverName {
			gw = g
			break
		}
	}
	if gw == nil {
		return ErrServerNotFound
	}

	item, err := gw.GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, mediaserver.ErrNotFound) {
			return ErrItemNotFound
		}
		return err
	}
	return s.engine.ReconcileItem(ctx, gw, item)
}
