package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/liamcoop/dmn/config"
	"github.com/liamcoop/dmn/feel"
	"github.com/liamcoop/dmn/internal/logger"
	"github.com/liamcoop/dmn/metrics"
	"github.com/liamcoop/dmn/modelfile"
	"github.com/liamcoop/dmn/multitenantengine"
	"github.com/liamcoop/dmn/recorder"
	"github.com/liamcoop/dmn/rules"
)

// DefaultTenant holds the models loaded from the models directory
const DefaultTenant = "default"

func main() {
	configPath := flag.String("config", os.Getenv("DMN_CONFIG"), "path to the YAML config file")
	flag.Parse()

	if err := logger.Setup(logger.OptionsFromEnv("dmn-server")); err != nil {
		logger.Warn("logging setup degraded", "error", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Fatal("server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = logger.Shutdown(shutdownCtx)
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Logger

	var (
		collector *metrics.Collector
		registry  *prometheus.Registry
	)
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		collector = metrics.NewCollector(cfg.Metrics, registry)
	}

	rec, err := recorder.Open(ctx, cfg.Recorder, cfg.Settings, log)
	if err != nil {
		return fmt.Errorf("failed to open recorder: %w", err)
	}
	defer rec.Close()

	var results ResultQuerier
	if q, ok := rec.(ResultQuerier); ok {
		results = q
	}

	var engineRecorder rules.ResultRecorder = rec
	var interpOpts []feel.Option
	interpOpts = append(interpOpts,
		feel.WithLogger(log),
		feel.WithTracing(cfg.Settings.EnableLexerLogging, cfg.Settings.EnableExecutionLogging),
	)
	engineOpts := []rules.EngineOption{}
	if collector != nil {
		engineRecorder = recorder.Instrument(rec, collector)
		interpOpts = append(interpOpts, collector.InterpreterOption())
		engineOpts = append(engineOpts, rules.WithMetrics(collector))
	}
	engineOpts = append(engineOpts, rules.WithRecorder(engineRecorder))

	manager := multitenantengine.NewManager(
		multitenantengine.WithEngineOptions(engineOpts...),
		multitenantengine.WithInterpreterOptions(interpOpts...),
		multitenantengine.WithParseCacheSize(cfg.Settings.ParseCacheSize),
		multitenantengine.WithLogger(log),
	)
	if err := manager.CreateTenant(DefaultTenant, nil); err != nil {
		return fmt.Errorf("failed to create default tenant: %w", err)
	}

	watcher := modelfile.NewWatcher(cfg.Models.Dir, tenantTarget{manager: manager, tenantID: DefaultTenant},
		cfg.Models.WatchDebounce, log)
	if err := watcher.Reload(); err != nil {
		// broken files are skipped; the rest of the directory is served
		log.Error("failed to load some models", "dir", cfg.Models.Dir, "error", err)
	}
	if cfg.Models.Watch {
		go func() {
			if err := watcher.Watch(ctx); err != nil {
				log.Error("model watcher stopped", "error", err)
			}
		}()
	}

	scheduler := recorder.NewScheduler(rec, cfg.Recorder.RetentionSchedule, cfg.Recorder.RetentionDays)
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start retention scheduler: %w", err)
	}
	defer scheduler.Stop()

	server := NewServer(manager, ServerOptions{
		Results:        results,
		Registry:       registry,
		RequestTimeout: cfg.Server.RequestTimeout,
		Logger:         log,
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Server.Port, "recorder", cfg.Recorder.Backend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed to start: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", "error", err)
	}
	log.Info("server stopped")
	return nil
}

// tenantTarget applies reloaded models to a tenant's current engine. The
// engine is looked up on every call since updating the tenant's functions
// replaces it.
type tenantTarget struct {
	manager  *multitenantengine.Manager
	tenantID string
}

func (t tenantTarget) PutModel(m *rules.DecisionModel) error {
	engine, err := t.manager.GetEngine(t.tenantID)
	if err != nil {
		return err
	}
	return engine.PutModel(m)
}

func (t tenantTarget) DeleteModel(id string) error {
	engine, err := t.manager.GetEngine(t.tenantID)
	if err != nil {
		return err
	}
	return engine.DeleteModel(id)
}

var _ modelfile.Target = tenantTarget{}

