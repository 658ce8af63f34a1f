package perp

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// TxFeederConfig controls synthetic command generation
type TxFeederConfig struct {
	BatchSize  int           // commands per batch
	Interval   time.Duration // how often to generate a batch
	NumTraders int           // simulated traders
	Seed       int64
}

// DefaultFeederConfig returns reasonable defaults for local runs
func DefaultFeederConfig() TxFeederConfig {
	return TxFeederConfig{
		BatchSize:  10,
		Interval:   100 * time.Millisecond,
		NumTraders: 50,
		Seed:       time.Now().UnixNano(),
	}
}

// HighLoadConfig returns config for stress testing
func HighLoadConfig() TxFeederConfig {
	return TxFeederConfig{
		BatchSize:  100,
		Interval:   10 * time.Millisecond,
		NumTraders: 200,
		Seed:       time.Now().UnixNano(),
	}
}

// StartTxFeeder submits generated batches to app and flushes them every
// Interval until ctx is cancelled or the journal fails.
// The returned channel is closed with the final stats once the feeder stops.
func StartTxFeeder(ctx context.Context, app *App, gen *TxGenerator, cfg TxFeederConfig, logger *zap.Logger) <-chan Stats {
	if logger == nil {
		logger = zap.NewNop()
	}
	done := make(chan Stats, 1)

	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		var stats Stats
		start := time.Now()
		lastReport := start
		logger.Info("feeder_started",
			zap.Int("batch_size", cfg.BatchSize),
			zap.Duration("interval", cfg.Interval),
			zap.Int("traders", cfg.NumTraders))

		for {
			select {
			case <-ctx.Done():
				elapsed := time.Since(start)
				logger.Info("feeder_stopped",
					zap.Int("applied", stats.Applied),
					zap.Int("rejected", stats.Rejected),
					zap.Int("trades", stats.Trades),
					zap.Duration("elapsed", elapsed.Round(time.Second)))
				done <- stats
				close(done)
				return

			case <-ticker.C:
				for _, cmd := range gen.GenerateBatch(cfg.BatchSize) {
					line, err := json.Marshal(cmd)
					if err != nil {
						stats.Rejected++
						continue
					}
					app.Submit(line)
				}
				batch, err := app.Flush(0)
				stats.Add(batch)
				if err != nil {
					logger.Error("feeder_aborted", zap.Error(err))
					done <- stats
					close(done)
					return
				}

				if time.Since(lastReport) >= 10*time.Second {
					lastReport = time.Now()
					elapsed := time.Since(start).Seconds()
					logger.Info("feeder_stats",
						zap.Int("applied", stats.Applied),
						zap.Int("rejected", stats.Rejected),
						zap.Int("trades", stats.Trades),
						zap.Float64("cmds_per_sec", float64(stats.Applied+stats.Rejected)/elapsed))
				}
			}
		}
	}()

	return done
}
