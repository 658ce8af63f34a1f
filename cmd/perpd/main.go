package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/perpbook/params"
	"github.com/uhyunpark/perpbook/pkg/app/core/ids"
	"github.com/uhyunpark/perpbook/pkg/app/core/market"
	"github.com/uhyunpark/perpbook/pkg/app/perp"
	"github.com/uhyunpark/perpbook/pkg/metrics"
	"github.com/uhyunpark/perpbook/pkg/storage"
	"github.com/uhyunpark/perpbook/pkg/util"
)

// Usage:
//
//	perpd [script.jsonl | -]
//
// With a script argument the commands are replayed and the node exits.
// Without one it serves metrics and, with ENABLE_TXGEN=true, feeds
// synthetic load until interrupted.
func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	var logger *zap.Logger
	var err error
	if cfg.Log.File == "" {
		logger, err = util.NewLogger(cfg.Log.Level)
	} else {
		logger, err = util.NewLoggerWithFile(cfg.Log.File, cfg.Log.Level)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Log.File, "level", cfg.Log.Level)

	// ---- Storage ----
	backend, closeBackend, err := openBackend(cfg.Storage)
	if err != nil {
		sugar.Fatalw("storage_open_failed", "backend", cfg.Storage.Backend, "err", err)
	}
	defer closeBackend()

	var journal storage.Journal = storage.NewNopWAL()
	if cfg.Storage.JournalFile != "" {
		fw, err := storage.NewFileWAL(cfg.Storage.JournalFile)
		if err != nil {
			sugar.Fatalw("journal_open_failed", "file", cfg.Storage.JournalFile, "err", err)
		}
		journal = fw
	}
	defer journal.Close()

	// ---- Metrics ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		sugar.Infow("metrics_server_starting", "addr", cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Errorw("metrics_server_failed", "err", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	// ---- Engine ----
	registry := market.NewRegistry(backend, logger, m)
	restored, err := registry.Restore()
	if err != nil {
		sugar.Fatalw("restore_failed", "err", err)
	}
	sugar.Infow("node_starting", "backend", cfg.Storage.Backend, "books_restored", restored)

	app := perp.NewApp(registry, journal, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 {
		replay(ctx, app, os.Args[1], sugar)
		logStateHash(registry, sugar)
		return
	}

	// ---- Command Feeder (optional) ----
	// Enable with: ENABLE_TXGEN=true TXGEN_MODE=default|high
	if !cfg.Feeder.Enabled {
		sugar.Info("txgen_disabled - serving metrics only")
		<-ctx.Done()
		return
	}

	runCtx := ctx
	if cfg.Feeder.Duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.Feeder.Duration)
		defer cancel()
	}
	feed(runCtx, app, cfg, logger)
	logStateHash(registry, sugar)
}

func openBackend(cfg params.Storage) (market.Backend, func(), error) {
	switch cfg.Backend {
	case "pebble":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, nil, err
		}
		ps, err := storage.NewPebbleStore(cfg.DataDir, storage.TunedPebbleOptions())
		if err != nil {
			return nil, nil, err
		}
		return ps, func() { _ = ps.Close() }, nil
	case "memory", "":
		return storage.NewMemory(), func() {}, nil
	default:
		return nil, nil, errors.New("unknown storage backend: " + cfg.Backend)
	}
}

func replay(ctx context.Context, app *perp.App, path string, sugar *zap.SugaredLogger) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			sugar.Fatalw("script_open_failed", "path", path, "err", err)
		}
		defer f.Close()
		r = f
	}

	start := time.Now()
	stats, err := app.Run(ctx, r)
	if err != nil {
		sugar.Errorw("replay_failed", "path", path, "err", err)
	}
	sugar.Infow("replay_done",
		"applied", stats.Applied,
		"rejected", stats.Rejected,
		"trades", stats.Trades,
		"elapsed", time.Since(start).Round(time.Millisecond))
}

// feed creates the demo book if needed and runs the synthetic feeder until ctx ends.
func feed(ctx context.Context, app *perp.App, cfg params.Config, logger *zap.Logger) {
	sugar := logger.Sugar()
	inst := ids.InstrumentIDFromString("BTC")
	mark := decimal.NewFromInt(50_000)

	err := app.Registry().CreateBook(inst, mark, cfg.Market.DefaultMinMargin, cfg.Market.DefaultMaxLeverage)
	if err != nil && !errors.Is(err, market.ErrBookExists) {
		sugar.Fatalw("create_book_failed", "instrument", inst, "err", err)
	}
	if book, err := app.Registry().Book(inst); err == nil {
		mark = book.MarkPrice()
	}

	var feederCfg perp.TxFeederConfig
	switch cfg.Feeder.Mode {
	case "high":
		feederCfg = perp.HighLoadConfig()
	default:
		feederCfg = perp.DefaultFeederConfig()
	}
	sugar.Infow("txgen_enabled", "mode", cfg.Feeder.Mode, "batch_size", feederCfg.BatchSize, "interval", feederCfg.Interval)

	gen := perp.NewTxGenerator(feederCfg.NumTraders,
		map[ids.InstrumentID]decimal.Decimal{inst: mark},
		cfg.Market.DefaultMaxLeverage.IntPart(),
		feederCfg.Seed)
	<-perp.StartTxFeeder(ctx, app, gen, feederCfg, logger)
}

func logStateHash(registry *market.Registry, sugar *zap.SugaredLogger) {
	h, err := registry.StateHash()
	if err != nil {
		sugar.Errorw("state_hash_failed", "err", err)
		return
	}
	sugar.Infow("state_hash", "books", len(registry.Instruments()), "hash", h.Hex())
}
