package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wayfarer-erp/backend/internal/api/routes"
	"github.com/wayfarer-erp/backend/internal/cerberus"
	"github.com/wayfarer-erp/backend/internal/config"
	"github.com/wayfarer-erp/backend/internal/database"
	"github.com/wayfarer-erp/backend/internal/logger"
	"github.com/wayfarer-erp/backend/internal/metrics"
	"github.com/wayfarer-erp/backend/internal/ratelimit"
	"github.com/wayfarer-erp/backend/internal/security"
	"github.com/wayfarer-erp/backend/internal/server"
	"github.com/wayfarer-erp/backend/internal/services"
	"github.com/wayfarer-erp/backend/internal/threat"
	"github.com/wayfarer-erp/backend/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, "wayfarer.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	mw := io.MultiWriter(os.Stdout, rotator)
	log.SetOutput(mw)
	logger.Init(cfg.Debug, mw)

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}
	eventStore := services.NewSecurityEventService(db)

	// Handle CLI commands
	if len(os.Args) > 1 && os.Args[1] == "list-events" {
		limit := 20
		if len(os.Args) == 3 {
			if limit, err = strconv.Atoi(os.Args[2]); err != nil {
				log.Fatalf("Usage: %s list-events [limit]", os.Args[0])
			}
		}
		events, err := eventStore.List(services.EventFilter{Limit: limit})
		if err != nil {
			log.Fatalf("list events: %v", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(events); err != nil {
			log.Fatalf("encode events: %v", err)
		}
		return
	}

	logger.Log().WithField("version", version.Full()).Infof("initializing %s backend", version.Name)

	// Decision and event records go to their own NDJSON file.
	sink := logger.NewAsyncSink(&lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, "security.ndjson"),
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     90,
		Compress:   true,
	}, cfg.Security.SinkBuffer)

	notifier, err := services.NewNotificationService(cfg.Security.NotifyURL, cfg.Security.NotifyEvery)
	if err != nil {
		log.Fatalf("notifications: %v", err)
	}
	targets := []security.Target{
		{Name: "security_log", Sink: security.LogSink(sink)},
		{Name: "security_db", Sink: eventStore},
	}
	if notifier.Enabled() {
		targets = append(targets, security.Target{Name: "notify", MinSeverity: threat.SeverityMedium, Sink: notifier})
	}
	dispatcher := security.NewDispatcher(cfg.Security.SinkBuffer, targets...)

	tracker := security.NewTracker(security.Config{
		FailedAuthThreshold:   cfg.Security.FailedAuthThreshold,
		SuspiciousIPThreshold: cfg.Security.SuspiciousIPThreshold,
		MaxRecords:            cfg.Security.MaxRecords,
		RecordTTL:             cfg.Security.RecordTTL,
		MaxReasons:            cfg.Security.MaxReasons,
	}, dispatcher)
	cerb := cerberus.New(cfg.Security, tracker, threat.NewScanner())
	profiles := routes.NewProfiles(cfg.Security, cerb.LimitCallback(), ratelimit.WithSink(sink))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	srv, err := server.New(routes.Deps{
		Config:   cfg,
		Cerberus: cerb,
		Profiles: profiles,
		Events:   eventStore,
		Gatherer: registry,
	})
	if err != nil {
		log.Fatalf("build server: %v", err)
	}

	sweeper := ratelimit.NewSweeper(cfg.Security.SweepInterval, profiles)
	sweeper.AddJob(func() {
		if n := tracker.Prune(); n > 0 {
			logger.Component("security").WithField("removed", n).Debug("pruned idle tracker records")
		}
	})
	if cfg.Security.EventRetention > 0 {
		sweeper.AddJob(func() {
			if _, err := eventStore.Purge(time.Now().Add(-cfg.Security.EventRetention)); err != nil {
				logger.Component("security").WithError(err).Warn("purge security events")
			}
		})
	}
	if err := sweeper.Start(); err != nil {
		log.Fatalf("start sweeper: %v", err)
	}

	srv.OnStop(sweeper.Stop)
	srv.OnStop(func(context.Context) error {
		dispatcher.Close()
		sink.Close()
		return nil
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Log().WithField("port", cfg.HTTPPort).Infof("starting %s backend", version.Name)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
