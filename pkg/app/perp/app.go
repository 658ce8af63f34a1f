// Package perp applies engine commands to a market registry: one at a time
// from a JSON-lines script, a journal, or the synthetic feeder.
package perp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/uhyunpark/perpbook/pkg/app/core/ids"
	"github.com/uhyunpark/perpbook/pkg/app/core/market"
	"github.com/uhyunpark/perpbook/pkg/app/core/mempool"
	"github.com/uhyunpark/perpbook/pkg/app/core/orderbook"
	"github.com/uhyunpark/perpbook/pkg/storage"
)

// Result is what a command produced.
type Result struct {
	Trades     []orderbook.Trade
	Liquidated []ids.TraderID
	Cancelled  *orderbook.Order
}

// Stats summarizes a Run or Flush.
type Stats struct {
	Applied  int
	Rejected int
	Trades   int
}

func (s *Stats) Add(o Stats) {
	s.Applied += o.Applied
	s.Rejected += o.Rejected
	s.Trades += o.Trades
}

// App serializes commands onto a registry and journals the accepted ones.
// Commands arrive either directly through Apply or queued with Submit and
// applied in mempool order by Flush.
type App struct {
	mu       sync.Mutex
	registry *market.Registry
	journal  storage.Journal
	pool     *mempool.Mempool
	logger   *zap.Logger
}

// NewApp wires reg to journal. journal and logger may be nil.
func NewApp(reg *market.Registry, journal storage.Journal, logger *zap.Logger) *App {
	if journal == nil {
		journal = storage.NewNopWAL()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{registry: reg, journal: journal, pool: mempool.NewMempool(), logger: logger}
}

// Submit queues a raw command line for the next Flush.
func (a *App) Submit(line []byte) { a.pool.PushRaw(line) }

// Pending returns the number of queued commands.
func (a *App) Pending() int { return a.pool.Len() }

// Flush applies up to maxBytes of queued commands (all of them when
// maxBytes <= 0): book setup and risk ticks first, then cancels, then orders.
func (a *App) Flush(maxBytes int64) (Stats, error) {
	var stats Stats
	for _, line := range a.pool.Select(maxBytes) {
		if err := a.applyLine(line, &stats); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (a *App) Registry() *market.Registry { return a.registry }

// Apply executes cmd and journals it if it succeeded. An order without a
// timestamp is stamped from the registry clock first, so the journal replays
// with the original order and trade times. A journal failure is returned
// after the command took effect.
func (a *App) Apply(cmd Command) (Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cmd.Op == OpOrder && cmd.Timestamp == 0 {
		cmd.Timestamp = a.registry.Clock.Now().UnixMilli()
	}

	res, err := a.apply(cmd)
	if err != nil {
		return Result{}, err
	}

	line, err := json.Marshal(cmd)
	if err != nil {
		return res, &journalError{fmt.Errorf("encode entry: %w", err)}
	}
	if err := a.journal.Append(line); err != nil {
		return res, &journalError{err}
	}
	return res, nil
}

func (a *App) apply(cmd Command) (Result, error) {
	var res Result
	switch cmd.Op {
	case OpCreate:
		return res, a.registry.CreateBook(cmd.Instrument, cmd.Price, cmd.MinMargin, cmd.MaxLeverage)

	case OpOrder:
		trades, err := a.registry.PlaceOrder(cmd.Instrument, cmd.Order(), cmd.Margin)
		if err != nil {
			return res, err
		}
		for _, tr := range trades {
			a.logger.Debug("fill",
				zap.Stringer("instrument", cmd.Instrument),
				zap.Uint64("trade_id", tr.ID),
				zap.Stringer("taker", tr.TakerTrader),
				zap.Stringer("maker", tr.MakerTrader),
				zap.String("price", tr.Price.String()),
				zap.String("size", tr.Size.String()))
		}
		res.Trades = trades

	case OpCancel:
		o, err := a.registry.CancelOrder(cmd.Instrument, cmd.OrderID)
		if err != nil {
			return res, err
		}
		res.Cancelled = &o

	case OpMark:
		liquidated, err := a.registry.UpdateMarkPrice(cmd.Instrument, cmd.Price)
		if err != nil {
			return res, err
		}
		res.Liquidated = liquidated

	case OpFunding:
		return res, a.registry.UpdateFundingRate(cmd.Instrument)

	default:
		return res, fmt.Errorf("unknown op %q", cmd.Op)
	}
	return res, nil
}

// Run applies every command read from r until EOF or ctx is done. Rejected
// commands are logged and counted; only read errors and journal failures
// stop the run.
func (a *App) Run(ctx context.Context, r io.Reader) (Stats, error) {
	var stats Stats
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := a.applyLine(line, &stats); err != nil {
			return stats, err
		}
	}
	if err := sc.Err(); err != nil {
		return stats, fmt.Errorf("read commands: %w", err)
	}
	return stats, nil
}

// applyLine parses and applies one command, counting the outcome in stats.
// Only a journal failure is returned.
func (a *App) applyLine(line []byte, stats *Stats) error {
	cmd, err := ParseCommand(line)
	if err != nil {
		a.logger.Warn("bad_command", zap.ByteString("line", line), zap.Error(err))
		stats.Rejected++
		return nil
	}

	res, err := a.Apply(cmd)
	if err != nil {
		if isJournalErr(err) {
			return err
		}
		a.logger.Debug("command_rejected",
			zap.String("op", string(cmd.Op)),
			zap.Stringer("instrument", cmd.Instrument),
			zap.Error(err))
		stats.Rejected++
		return nil
	}
	stats.Applied++
	stats.Trades += len(res.Trades)
	return nil
}

func isJournalErr(err error) bool {
	var je *journalError
	return errors.As(err, &je)
}

type journalError struct{ err error }

func (e *journalError) Error() string { return "journal: " + e.err.Error() }
func (e *journalError) Unwrap() error { return e.err }
