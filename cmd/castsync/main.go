package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/castsync/castsync/internal/api"
	"github.com/castsync/castsync/internal/config"
	"github.com/castsync/castsync/internal/database"
	"github.com/castsync/castsync/internal/history"
	"github.com/castsync/castsync/internal/imagefetch"
	"github.com/castsync/castsync/internal/logger"
	"github.com/castsync/castsync/internal/mediaserver"
	"github.com/castsync/castsync/internal/mediaserver/emby"
	"github.com/castsync/castsync/internal/mediaserver/jellyfin"
	"github.com/castsync/castsync/internal/metadata/douban"
	"github.com/castsync/castsync/internal/metadata/tmdb"
	"github.com/castsync/castsync/internal/people"
	"github.com/castsync/castsync/internal/scheduler"
)

func main() {
	// A local .env is a convenience for development; absence is fine.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer log.Close()

	log.Info().
		Str("version", config.Version).
		Int("mediaServers", len(cfg.Servers)).
		Msg("Starting castsync")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	if err := run(cfg, log.Logger); err != nil {
		log.Fatal().Err(err).Msg("castsync exited with error")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	gateways, err := buildGateways(cfg, log)
	if err != nil {
		return err
	}

	primary := tmdb.NewClient(cfg.TMDB, log)
	secondary := douban.NewClient(cfg.Douban, log)
	images := imagefetch.New(log)

	engine := people.NewEngine(primary, secondary, images,
		people.NewCache(), cfg.Scrape, cfg.Douban.Pace(), log)

	store := history.NewStore(db.Conn())
	scans := people.NewService(engine, gateways, store, log)

	sched, err := scheduler.New(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	if cfg.Scheduler.Cron != "" {
		err := sched.RegisterTask(scheduler.TaskConfig{
			ID:          "library-scan",
			Name:        "Library Scan",
			Description: "Reconcile person metadata across all media servers",
			Cron:        cfg.Scheduler.Cron,
			RunOnStart:  cfg.Scheduler.RunOnStart,
			Func: func(ctx context.Context) error {
				return scans.Scan(ctx, "scheduled")
			},
		})
		if err != nil {
			return fmt.Errorf("failed to register scan task: %w", err)
		}
	}
	sched.Start()

	server := api.NewServer(cfg, scans, store, sched, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	engine.Stop()
	if err := sched.Stop(); err != nil {
		log.Warn().Err(err).Msg("Scheduler shutdown failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Server shutdown failed")
	}

	return nil
}

func buildGateways(cfg *config.Config, log zerolog.Logger) ([]mediaserver.Gateway, error) {
	gateways := make([]mediaserver.Gateway, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		switch s.Type {
		case mediaserver.ServerTypeEmby:
			gateways = append(gateways, emby.NewClient(s.Name, s.URL, s.APIKey, s.UserID, log))
		case mediaserver.ServerTypeJellyfin:
			gateways = append(gateways, jellyfin.NewClient(s.Name, s.URL, s.APIKey, s.UserID, log))
		default:
			return nil, fmt.Errorf("unknown media server type %q for %q", s.Type, s.Name)
		}
	}
	return gateways, nil
}
