// Package market maps instrument ids to their books and is the entry point
// for every book operation.
package market

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/perpbook/pkg/app/core/ids"
	"github.com/uhyunpark/perpbook/pkg/app/core/orderbook"
	"github.com/uhyunpark/perpbook/pkg/metrics"
	"github.com/uhyunpark/perpbook/pkg/util"
)

var (
	ErrBookNotFound = errors.New("book not found")
	ErrBookExists   = errors.New("book already exists")
)

// Backend hands out one substrate per instrument and remembers which
// instruments have books.
type Backend interface {
	OpenBook(id ids.InstrumentID) (orderbook.Substrate, error)
	Instruments() ([]ids.InstrumentID, error)
}

// Registry manages books by instrument id. The map is guarded by an RWMutex;
// the books themselves are not, so callers serialize operations per
// instrument.
type Registry struct {
	mu      sync.RWMutex
	books   map[ids.InstrumentID]*orderbook.Book
	backend Backend

	logger  *zap.Logger
	metrics *metrics.Metrics

	// Clock is handed to every book created or restored afterwards.
	Clock util.Clock
}

// NewRegistry creates an empty registry on backend. logger and m may be nil.
func NewRegistry(backend Backend, logger *zap.Logger, m *metrics.Metrics) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		books:   make(map[ids.InstrumentID]*orderbook.Book),
		backend: backend,
		logger:  logger,
		metrics: m,
		Clock:   util.RealClock{},
	}
}

// CreateBook registers a new book for id.
// Returns ErrBookExists if id already has a book, in memory or in the backend.
func (r *Registry) CreateBook(id ids.InstrumentID, markPrice, minMargin, maxLeverage decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.books[id]; exists {
		return fmt.Errorf("%w: %s", ErrBookExists, id)
	}

	sub, err := r.backend.OpenBook(id)
	if err != nil {
		return fmt.Errorf("open substrate for %s: %w", id, err)
	}
	book, err := orderbook.NewBook(sub, orderbook.Params{
		MarkPrice:   markPrice,
		MinMargin:   minMargin,
		MaxLeverage: maxLeverage,
	})
	if errors.Is(err, orderbook.ErrBookInitialized) {
		return fmt.Errorf("%w: %s", ErrBookExists, id)
	}
	if err != nil {
		return fmt.Errorf("create book %s: %w", id, err)
	}

	r.attach(id, book)
	r.metrics.SetMarkPrice(id, markPrice)
	r.logger.Info("book_created",
		zap.Stringer("instrument", id),
		zap.String("mark_price", markPrice.String()),
		zap.String("min_margin", minMargin.String()),
		zap.String("max_leverage", maxLeverage.String()))
	return nil
}

// Restore loads every book the backend holds that is not registered yet and
// returns how many were loaded.
func (r *Registry) Restore() (int, error) {
	insts, err := r.backend.Instruments()
	if err != nil {
		return 0, fmt.Errorf("list instruments: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	restored := 0
	for _, id := range insts {
		if _, exists := r.books[id]; exists {
			continue
		}
		sub, err := r.backend.OpenBook(id)
		if err != nil {
			return restored, fmt.Errorf("open substrate for %s: %w", id, err)
		}
		book, err := orderbook.LoadBook(sub)
		if err != nil {
			return restored, fmt.Errorf("load book %s: %w", id, err)
		}
		r.attach(id, book)
		r.metrics.SetMarkPrice(id, book.MarkPrice())
		r.metrics.SetFundingRate(id, book.FundingRate())
		restored++
	}

	if restored > 0 {
		r.logger.Info("books_restored", zap.Int("count", restored))
	}
	return restored, nil
}

// attach must be called with r.mu held.
func (r *Registry) attach(id ids.InstrumentID, book *orderbook.Book) {
	book.Logger = r.logger.With(zap.Stringer("instrument", id))
	book.Clock = r.Clock
	r.books[id] = book
	r.metrics.SetBooks(len(r.books))
}

// Book returns the book for id or ErrBookNotFound.
func (r *Registry) Book(id ids.InstrumentID) (*orderbook.Book, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	book, ok := r.books[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBookNotFound, id)
	}
	return book, nil
}

// Instruments returns the registered instrument ids in byte order.
func (r *Registry) Instruments() []ids.InstrumentID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ids.InstrumentID, 0, len(r.books))
	for id := range r.books {
		out = append(out, id)
	}
	ids.SortInstruments(out)
	return out
}

// PlaceOrder routes o to the book for id.
func (r *Registry) PlaceOrder(id ids.InstrumentID, o orderbook.Order, availableMargin decimal.Decimal) ([]orderbook.Trade, error) {
	book, err := r.Book(id)
	if err != nil {
		return nil, err
	}

	trades, err := book.PlaceOrder(o, availableMargin)
	if err != nil {
		r.metrics.OrderResult(id, rejectReason(err))
		return nil, err
	}
	r.metrics.OrderResult(id, "accepted")
	for _, tr := range trades {
		r.metrics.Fill(id, tr.Size)
	}
	return trades, nil
}

// CancelOrder removes a resting order from the book for id.
func (r *Registry) CancelOrder(id ids.InstrumentID, orderID uint64) (orderbook.Order, error) {
	book, err := r.Book(id)
	if err != nil {
		return orderbook.Order{}, err
	}
	return book.CancelOrder(orderID)
}

// UpdateMarkPrice sets the mark price of id and returns the liquidated traders.
func (r *Registry) UpdateMarkPrice(id ids.InstrumentID, markPrice decimal.Decimal) ([]ids.TraderID, error) {
	book, err := r.Book(id)
	if err != nil {
		return nil, err
	}
	liquidated, err := book.UpdateMarkPrice(markPrice)
	if err != nil {
		return nil, err
	}
	r.metrics.SetMarkPrice(id, markPrice)
	r.metrics.Liquidated(id, len(liquidated))
	return liquidated, nil
}

// UpdateFundingRate runs one funding tick on the book for id.
func (r *Registry) UpdateFundingRate(id ids.InstrumentID) error {
	book, err := r.Book(id)
	if err != nil {
		return err
	}
	if err := book.UpdateFundingRate(); err != nil {
		return err
	}
	r.metrics.SetFundingRate(id, book.FundingRate())
	return nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, orderbook.ErrInvalidPrice):
		return "invalid_price"
	case errors.Is(err, orderbook.ErrInvalidSize):
		return "invalid_size"
	case errors.Is(err, orderbook.ErrInvalidLeverage):
		return "invalid_leverage"
	case errors.Is(err, orderbook.ErrExceedsMaxLeverage):
		return "exceeds_max_leverage"
	case errors.Is(err, orderbook.ErrInsufficientMargin):
		return "insufficient_margin"
	default:
		return "error"
	}
}

// StateHash computes a deterministic keccak256 hash over every registered book.
//
// Books are hashed in instrument order:
//  1. Instrument id
//  2. Mark price, funding rate, min margin, max leverage, next id
//  3. Bid levels (high to low) then ask levels (low to high), price and size
//  4. Positions in trader order: size, entry price, margin
func (r *Registry) StateHash() (common.Hash, error) {
	var buf bytes.Buffer
	for _, id := range r.Instruments() {
		book, err := r.Book(id)
		if err != nil {
			return common.Hash{}, err
		}
		if err := writeBook(&buf, id, book); err != nil {
			return common.Hash{}, fmt.Errorf("hash book %s: %w", id, err)
		}
	}
	return crypto.Keccak256Hash(buf.Bytes()), nil
}

func writeBook(buf *bytes.Buffer, id ids.InstrumentID, book *orderbook.Book) error {
	buf.Write(id[:])

	st := book.State()
	fmt.Fprintf(buf, "|%s|%s|%s|%s|%d", st.MarkPrice, st.FundingRate, st.MinMargin, st.MaxLeverage, st.NextID)

	bids, err := book.BidLevels()
	if err != nil {
		return err
	}
	asks, err := book.AskLevels()
	if err != nil {
		return err
	}
	for _, levels := range [][]orderbook.PriceLevel{bids, asks} {
		buf.WriteString("|L")
		for _, lvl := range levels {
			fmt.Fprintf(buf, "|%s:%s", lvl.Price, lvl.Size)
		}
	}

	positions, err := book.Positions()
	if err != nil {
		return err
	}
	traders := make([]ids.TraderID, 0, len(positions))
	for t := range positions {
		traders = append(traders, t)
	}
	sort.Slice(traders, func(i, j int) bool { return bytes.Compare(traders[i][:], traders[j][:]) < 0 })
	buf.WriteString("|P")
	for _, t := range traders {
		p := positions[t]
		fmt.Fprintf(buf, "|%s:%s:%s:%s", t, p.Size, p.EntryPrice, p.Margin)
	}
	return nil
}
