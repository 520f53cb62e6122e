package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"honeytrack-collector/internal/api"
	"honeytrack-collector/internal/collector"
	"honeytrack-collector/internal/config"
	"honeytrack-collector/internal/geo"
	"honeytrack-collector/internal/ingest"
	applog "honeytrack-collector/internal/logging"
	"honeytrack-collector/internal/metrics"
	"honeytrack-collector/internal/scoring"
	"honeytrack-collector/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("CRITICAL: configuration invalid: %v", err)
	}

	if err := applog.Init(cfg.LogDir); err != nil {
		log.Printf("Warning: could not initialize file logger: %v", err)
	}
	defer applog.Close()

	applog.Info("honeytrack collector starting")

	// Model artifacts are loaded fail-fast: a collector that cannot score is
	// not a collector worth running (§6).
	supervised, err := scoring.LoadSupervised(cfg.Models.SupervisedPath)
	if err != nil {
		applog.Error("failed to load supervised artifact", applog.F("error", err.Error()))
		os.Exit(2)
	}
	unsupervised, err := scoring.LoadUnsupervised(cfg.Models.UnsupervisedPath)
	if err != nil {
		applog.Error("failed to load unsupervised artifact", applog.F("error", err.Error()))
		os.Exit(2)
	}
	secondary, err := scoring.LoadSecondary(cfg.Models.SecondaryPath)
	if err != nil {
		applog.Error("failed to load secondary artifact", applog.F("error", err.Error()))
		os.Exit(2)
	}
	applog.Info("model artifacts loaded",
		applog.F("supervised", cfg.Models.SupervisedPath),
		applog.F("unsupervised", cfg.Models.UnsupervisedPath),
		applog.F("secondary", cfg.Models.SecondaryPath))

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		applog.Error("failed to open store", applog.F("error", err.Error()))
		os.Exit(3)
	}
	defer st.Close()
	applog.Info("store opened", applog.F("path", cfg.DBPath))

	reg := metrics.NewRegistry()

	geoCfg := geo.Config{
		Timeout:       time.Duration(cfg.Geo.TimeoutMS) * time.Millisecond,
		Concurrency:   cfg.Geo.Concurrency,
		CacheSize:     cfg.Geo.CacheSize,
		PositiveTTL:   cfg.Geo.PositiveTTL,
		NegativeTTL:   cfg.Geo.NegativeTTL,
		SemaphoreWait: 500 * time.Millisecond,
	}

	var geoReader geo.Reader
	mmReader, err := geo.OpenMaxMindReader(cfg.Geo.DBPath)
	if err != nil {
		applog.Warn("geoip database unavailable, enrichment degrades to unresolved", applog.F("error", err.Error()))
	} else {
		geoReader = mmReader
		defer mmReader.Close()
	}
	enricher := geo.NewEnricher(geoReader, geoCfg)

	ensemble := scoring.NewEnsemble(supervised, unsupervised, secondary, cfg, reg)

	col := collector.New(cfg, st, enricher, ensemble, reg)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
		Output:     os.Stdout,
	}))
	app.Use(cors.New())

	ingestHandler := ingest.NewHandler(col)
	app.Post("/ingest", ingestHandler.Handle)
	app.Post("/log", ingestHandler.Handle)

	api.NewHandler(col).Register(app)

	go func() {
		applog.Info("listening", applog.F("address", cfg.BindAddress))
		if err := app.Listen(cfg.BindAddress); err != nil {
			applog.Error("server stopped", applog.F("error", err.Error()))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	applog.Info("shutting down")
	_ = app.Shutdown()
	col.AwaitInFlight(10 * time.Second)
	applog.Info("shutdown complete")
}
