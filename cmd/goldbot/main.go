package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"goldbot/internal/config"
	"goldbot/internal/engine"
	"goldbot/internal/httpapi"
	"goldbot/internal/journal"
	"goldbot/internal/metrics"
	"goldbot/internal/parser"
	"goldbot/internal/rules"
	"goldbot/internal/source"
	"goldbot/internal/state"
	"goldbot/internal/util"
	"goldbot/internal/venue"
	"goldbot/internal/watcher"
)

func main() {
	cfgPath := "config/goldbot.yaml"
	if p := os.Getenv("GOLDBOT_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Venue.
	var v venue.Venue
	switch cfg.Venue.Mode {
	case "alpaca":
		v = venue.NewAlpaca(
			cfg.Venue.Alpaca.APIKey,
			cfg.Venue.Alpaca.APISecret,
			cfg.Venue.Alpaca.BaseURL,
			cfg.Venue.Alpaca.DataURL,
			cfg.Venue.Alpaca.RateLimitPerMin,
		)
	default:
		v = venue.NewSimulator()
	}
	logger.Info("venue ready", "venue", v.Name(), "symbol", cfg.Trading.Symbol)

	// For a live venue, prove connectivity before consuming messages.
	if cfg.Venue.Mode == "alpaca" {
		err := util.Retry(ctx, 5, time.Second, func() error {
			_, err := v.GetTick(ctx, cfg.Trading.Symbol)
			return err
		})
		if err != nil {
			log.Fatalf("venue unreachable: %v", err)
		}
	}

	// Journal.
	var rec journal.Recorder = journal.Nop{}
	if cfg.Storage.SQLitePath != "" {
		j, err := journal.New(cfg.Storage.SQLitePath, cfg.Storage.ParquetDir)
		if err != nil {
			log.Fatalf("failed to open journal: %v", err)
		}
		defer j.Close()
		rec = j
	}

	// State and services.
	store := state.NewStore(cfg.Trading.MaxSplits, cfg.Trading.VolumePerSplit, logger)
	tol := rules.Tolerances{
		BuyUp:     cfg.Rules.BuyUp,
		BuyDown:   cfg.Rules.BuyDown,
		SellUp:    cfg.Rules.SellUp,
		SellDown:  cfg.Rules.SellDown,
		HardDrift: cfg.Rules.HardDrift,
	}

	mgmtParser := parser.NewManagementParser()
	signals := engine.NewSignalService(store, v, parser.NewSignalParser(cfg.Trading.Symbol), rec, engine.SignalConfig{
		Symbol:           cfg.Trading.Symbol,
		Tolerances:       tol,
		EditWindow:       cfg.Messages.EditWindow(),
		MaxParseAttempts: cfg.Messages.MaxParseAttempts,
	}, logger)
	mgmt := engine.NewManagementService(store, mgmtParser, rec, cfg.Trading.CloseBuffer, logger)
	eng := engine.NewEngine(parser.NewClassifier(cfg.Trading.Symbol, mgmtParser), signals, mgmt, logger)

	// Watchers.
	interval := cfg.Trading.PollInterval()
	pendingW := watcher.NewPendingWatcher(store, v, rec, cfg.Trading.Symbol, interval, cfg.Trading.PendingTimeout(), logger)
	applier := watcher.NewManagementApplier(store, v, rec, cfg.Trading.Symbol, interval, cfg.Trading.MinStopDistance, logger)
	positionW := watcher.NewPositionWatcher(store, v, rec, cfg.Trading.Symbol, interval, logger)

	var wg sync.WaitGroup
	for _, run := range []func(context.Context){pendingW.Run, applier.Run, positionW.Run} {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(run)
	}

	// Metrics and status listener.
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		httpapi.NewStatusServer(store, v.Name(), cfg.Trading.Symbol, logger).RegisterRoutes(mux)
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics listener failed", "err", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			srv.Shutdown(shutdownCtx)
		}()
		logger.Info("metrics listening", "addr", cfg.Metrics.Addr)
	}

	// Message stream. Blocks until shutdown.
	bridge := source.NewBridge(cfg.Source.BridgeURL, cfg.Source.Reconnect(), eng.HandleMessage, logger)
	logger.Info("consuming messages", "bridge", cfg.Source.BridgeURL)
	if err := bridge.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("bridge stopped", "err", err)
	}

	wg.Wait()
	logger.Info("shutdown complete")
}
