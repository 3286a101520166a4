package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/backyardfi/vaultledger/internal/config"
	"github.com/backyardfi/vaultledger/internal/database"
	"github.com/backyardfi/vaultledger/internal/logger"
	"github.com/backyardfi/vaultledger/internal/scheduler"
	"github.com/backyardfi/vaultledger/internal/services"
	"github.com/backyardfi/vaultledger/internal/store"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Parse command-line arguments
	envFile := flag.String("envFile", ".env", "Path to .env file")
	runNow := flag.Bool("runNow", false, "Run one ingestion cycle immediately on startup")
	flag.Parse()

	// Load environment variables from the specified file
	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("No .env file found at %s, using environment variables", *envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog := logger.New(cfg.LogLevel)

	db, err := database.Connect(cfg)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to connect to database")
	}

	st := store.NewGorm(db)
	ingestor := services.NewIngestor(st, zlog, cfg.IngestInterval, cfg.IngestConcurrency)

	sources := []services.MetricsSource{
		services.NewKaminoClient(cfg.KaminoBaseURL),
		services.NewJupiterClient(cfg.JupiterBaseURL),
	}

	sched := scheduler.New(st, ingestor, sources, zlog)
	if err := sched.Start(cfg.IngestCron); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	if *runNow {
		go func() {
			if err := sched.RunOnce(context.Background()); err != nil {
				zlog.Error().Err(err).Msg("Initial ingestion cycle failed")
			}
		}()
	}

	// Expose prometheus metrics
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		addr := ":" + cfg.MetricsPort
		zlog.Info().Str("addr", addr).Msg("Serving metrics")
		if err := http.ListenAndServe(addr, nil); err != nil {
			zlog.Error().Err(err).Msg("Metrics server stopped")
		}
	}()

	zlog.Info().
		Str("ingest_cron", cfg.IngestCron).
		Dur("ingest_interval", cfg.IngestInterval).
		Msg("vaultledger started")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	zlog.Info().Msg("Shutting down...")
	sched.Stop()
}
