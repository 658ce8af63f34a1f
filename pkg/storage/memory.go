package storage

import (
	"errors"
	"slices"
	"sync"

	"github.com/tidwall/btree"

	"github.com/uhyunpark/perpbook/pkg/app/core/account"
	"github.com/uhyunpark/perpbook/pkg/app/core/ids"
	"github.com/uhyunpark/perpbook/pkg/app/core/market"
	"github.com/uhyunpark/perpbook/pkg/app/core/orderbook"
	"github.com/uhyunpark/perpbook/pkg/app/core/price"
)

// Memory is an in-process backend. Each book keeps its levels and positions
// in B-tree maps; a transaction works on copy-on-write clones and Commit
// swaps them in.
type Memory struct {
	mu    sync.Mutex
	books map[ids.InstrumentID]*memBook
}

func NewMemory() *Memory {
	return &Memory{books: make(map[ids.InstrumentID]*memBook)}
}

// OpenBook returns the substrate for inst, creating an empty one on first use.
func (m *Memory) OpenBook(inst ids.InstrumentID) (orderbook.Substrate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[inst]
	if !ok {
		b = &memBook{data: newMemData()}
		m.books[inst] = b
	}
	return b, nil
}

// Instruments lists every instrument with a committed book state, sorted by id.
func (m *Memory) Instruments() ([]ids.InstrumentID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ids.InstrumentID
	for inst, b := range m.books {
		b.mu.Lock()
		has := b.data.state != nil
		b.mu.Unlock()
		if has {
			out = append(out, inst)
		}
	}
	ids.SortInstruments(out)
	return out, nil
}

// memData is one committed snapshot of a book. Positions are keyed by the
// trader id's integer form, which sorts like its bytes.
type memData struct {
	state     *orderbook.State
	bids      *btree.Map[price.Key, []orderbook.Order]
	asks      *btree.Map[price.Key, []orderbook.Order]
	positions *btree.Map[uint64, account.Position]
	trades    []orderbook.Trade
}

func newMemData() *memData {
	return &memData{
		bids:      btree.NewMap[price.Key, []orderbook.Order](32),
		asks:      btree.NewMap[price.Key, []orderbook.Order](32),
		positions: btree.NewMap[uint64, account.Position](32),
	}
}

func (d *memData) clone() *memData {
	c := &memData{
		bids:      d.bids.Copy(),
		asks:      d.asks.Copy(),
		positions: d.positions.Copy(),
		trades:    slices.Clip(d.trades),
	}
	if d.state != nil {
		st := *d.state
		c.state = &st
	}
	return c
}

type memBook struct {
	mu   sync.Mutex
	data *memData
}

func (b *memBook) Begin() (orderbook.Txn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &memTxn{book: b, data: b.data.clone()}, nil
}

type memTxn struct {
	book *memBook
	data *memData
	done bool
}

func (t *memTxn) side(s orderbook.Side) *btree.Map[price.Key, []orderbook.Order] {
	if s == orderbook.Long {
		return t.data.bids
	}
	return t.data.asks
}

func (t *memTxn) State() (orderbook.State, bool, error) {
	if t.data.state == nil {
		return orderbook.State{}, false, nil
	}
	return *t.data.state, true, nil
}

func (t *memTxn) SetState(st orderbook.State) error {
	t.data.state = &st
	return nil
}

func (t *memTxn) Level(side orderbook.Side, key price.Key) ([]orderbook.Order, error) {
	orders, _ := t.side(side).Get(key)
	return orders, nil
}

func (t *memTxn) SetLevel(side orderbook.Side, key price.Key, orders []orderbook.Order) error {
	t.side(side).Set(key, slices.Clone(orders))
	return nil
}

func (t *memTxn) DeleteLevel(side orderbook.Side, key price.Key) error {
	t.side(side).Delete(key)
	return nil
}

func (t *memTxn) Levels(side orderbook.Side, fn func(price.Key, []orderbook.Order) bool) error {
	if side == orderbook.Long {
		t.data.bids.Reverse(fn)
		return nil
	}
	t.data.asks.Scan(fn)
	return nil
}

func (t *memTxn) Position(trader ids.TraderID) (account.Position, bool, error) {
	pos, ok := t.data.positions.Get(trader.Uint64())
	return pos, ok, nil
}

func (t *memTxn) SetPosition(trader ids.TraderID, pos account.Position) error {
	t.data.positions.Set(trader.Uint64(), pos)
	return nil
}

func (t *memTxn) DeletePosition(trader ids.TraderID) error {
	t.data.positions.Delete(trader.Uint64())
	return nil
}

func (t *memTxn) Positions(fn func(ids.TraderID, account.Position) bool) error {
	t.data.positions.Scan(func(k uint64, pos account.Position) bool {
		return fn(ids.TraderIDFromUint64(k), pos)
	})
	return nil
}

func (t *memTxn) AppendTrade(tr orderbook.Trade) error {
	t.data.trades = append(t.data.trades, tr)
	return nil
}

func (t *memTxn) Trades(reverse bool, fn func(orderbook.Trade) bool) error {
	trades := t.data.trades
	if !reverse {
		for _, tr := range trades {
			if !fn(tr) {
				return nil
			}
		}
		return nil
	}
	for i := len(trades) - 1; i >= 0; i-- {
		if !fn(trades[i]) {
			return nil
		}
	}
	return nil
}

func (t *memTxn) Commit() error {
	if t.done {
		return errors.New("transaction already finished")
	}
	t.done = true
	t.book.mu.Lock()
	t.book.data = t.data
	t.book.mu.Unlock()
	return nil
}

func (t *memTxn) Discard() { t.done = true }

var _ market.Backend = (*Memory)(nil)
