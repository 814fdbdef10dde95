package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fieldtrack/config"
	"fieldtrack/internal/archive"
	"fieldtrack/internal/ingest"
	"fieldtrack/internal/live"
	"fieldtrack/internal/metrics"
	"fieldtrack/internal/server"
	"fieldtrack/internal/store"
	"fieldtrack/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	migrate := flag.Bool("migrate", false, "Create the database schema and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Fieldtrack.Name,
		"version": cfg.Fieldtrack.Version,
	}).Info("starting fieldtrack")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connectCtx, connectCancel := context.WithTimeout(ctx, 15*time.Second)
	db, err := store.New(connectCtx, cfg.Database)
	connectCancel()
	if err != nil {
		log.WithError(err).Error("failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	if *migrate {
		if err := db.Migrate(ctx); err != nil {
			log.WithError(err).Error("migration failed")
			os.Exit(1)
		}
		log.Info("database schema ready")
		return
	}

	processor, err := ingest.NewProcessor(cfg.Ingest)
	if err != nil {
		log.WithError(err).Error("failed to create ingest processor")
		os.Exit(1)
	}

	srv := server.NewServer(cfg, db, processor)

	var hub *live.Hub
	if cfg.Live.Enabled {
		hub = live.NewHub(cfg.Live)
		if err := hub.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start live hub")
			os.Exit(1)
		}
		srv.SetBroadcaster(hub, hub)
	} else {
		log.WithComponent("main").Info("live streaming disabled")
	}

	var archiver *archive.Archiver
	if cfg.Archive.Enabled {
		archiver, err = archive.NewArchiver(cfg.Archive)
		if err != nil {
			log.WithError(err).Error("failed to create archiver")
			os.Exit(1)
		}
		if err := archiver.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start archiver")
			os.Exit(1)
		}
		srv.SetArchiver(archiver)
	} else {
		log.WithComponent("main").Info("S3 archive disabled; skipping archiver")
	}

	if cfg.Metrics.Enabled {
		publisher, err := metrics.NewPublisher(cfg.Metrics)
		if err != nil {
			log.WithError(err).Warn("metrics publisher unavailable")
		} else {
			publisher.Start(ctx)
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Run(ctx); err != nil {
			log.WithError(err).Error("http server failed")
			cancel()
		}
	}()

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown")
	cancel()

	if archiver != nil {
		log.Info("stopping archiver")
		archiver.Stop()
	}
	if hub != nil {
		log.Info("stopping live hub")
		hub.Stop()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("fieldtrack stopped")
}
