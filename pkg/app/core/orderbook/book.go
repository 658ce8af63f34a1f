// Package orderbook implements the per-instrument perpetual book: price-time
// matching, position updates on every fill, mark-price liquidation and funding.
//
// A Book is a single-writer state machine. It takes no locks and starts no
// goroutines; callers serialize operations per instrument. Every mutating call
// runs inside one substrate transaction and either commits as a whole or
// leaves the book untouched.
package orderbook

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/perpbook/pkg/util"
)

// Params are the creation parameters of a book.
type Params struct {
	MarkPrice   decimal.Decimal
	MinMargin   decimal.Decimal
	MaxLeverage decimal.Decimal
}

// Validate checks parameter sanity
func (p Params) Validate() error {
	if !p.MarkPrice.IsPositive() {
		return fmt.Errorf("mark price must be positive: %s", p.MarkPrice)
	}
	if p.MinMargin.IsNegative() {
		return fmt.Errorf("min margin cannot be negative: %s", p.MinMargin)
	}
	if !p.MaxLeverage.IsPositive() {
		return fmt.Errorf("max leverage must be positive: %s", p.MaxLeverage)
	}
	return nil
}

// Book is the order book, positions and risk state of one instrument.
// Logger and Clock may be replaced before first use.
type Book struct {
	sub   Substrate
	state State

	Logger *zap.Logger
	Clock  util.Clock
}

// NewBook initializes a fresh book on sub. Fails if sub already holds a book.
func NewBook(sub Substrate, p Params) (*Book, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid book params: %w", err)
	}

	b := newBook(sub)
	tx, err := sub.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin txn: %w", err)
	}
	defer tx.Discard()

	if _, ok, err := tx.State(); err != nil {
		return nil, fmt.Errorf("load book state: %w", err)
	} else if ok {
		return nil, ErrBookInitialized
	}

	st := State{
		MarkPrice:   p.MarkPrice,
		FundingRate: decimal.Zero,
		MinMargin:   p.MinMargin,
		MaxLeverage: p.MaxLeverage,
		NextID:      1,
	}
	if err := tx.SetState(st); err != nil {
		return nil, fmt.Errorf("save book state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	b.state = st
	return b, nil
}

// LoadBook reopens a book previously created on sub.
func LoadBook(sub Substrate) (*Book, error) {
	b := newBook(sub)
	err := b.view(func(tx Txn) error {
		st, ok, err := tx.State()
		if err != nil {
			return fmt.Errorf("load book state: %w", err)
		}
		if !ok {
			return fmt.Errorf("book state not found")
		}
		b.state = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func newBook(sub Substrate) *Book {
	return &Book{
		sub:    sub,
		Logger: zap.NewNop(),
		Clock:  util.RealClock{},
	}
}

// MarkPrice returns the current mark price
func (b *Book) MarkPrice() decimal.Decimal { return b.state.MarkPrice }

// FundingRate returns the rate set by the last funding tick
func (b *Book) FundingRate() decimal.Decimal { return b.state.FundingRate }

// MinMargin returns the minimum required margin per order
func (b *Book) MinMargin() decimal.Decimal { return b.state.MinMargin }

// MaxLeverage returns the maximum leverage per order
func (b *Book) MaxLeverage() decimal.Decimal { return b.state.MaxLeverage }

// State returns a copy of the book's scalar state.
func (b *Book) State() State { return b.state }

// update runs fn against a working copy of the state inside one transaction.
// The book's state is replaced only when the transaction commits.
func (b *Book) update(fn func(tx Txn, st *State) error) error {
	tx, err := b.sub.Begin()
	if err != nil {
		return fmt.Errorf("begin txn: %w", err)
	}
	defer tx.Discard()

	st := b.state
	if err := fn(tx, &st); err != nil {
		return err
	}
	if err := tx.SetState(st); err != nil {
		return fmt.Errorf("save book state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	b.state = st
	return nil
}

// view runs a read-only fn; nothing it writes is committed.
func (b *Book) view(fn func(tx Txn) error) error {
	tx, err := b.sub.Begin()
	if err != nil {
		return fmt.Errorf("begin txn: %w", err)
	}
	defer tx.Discard()
	return fn(tx)
}
