package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/perpbook/pkg/app/core/account"
	"github.com/uhyunpark/perpbook/pkg/app/core/ids"
	"github.com/uhyunpark/perpbook/pkg/app/core/market"
	"github.com/uhyunpark/perpbook/pkg/app/core/orderbook"
	"github.com/uhyunpark/perpbook/pkg/app/core/price"
)

// PebbleStore keeps every book in one Pebble database, one key prefix per
// instrument. Each book transaction is an indexed batch committed with
// pebble.Sync.
type PebbleStore struct {
	db *pebble.DB
}

// TunedPebbleOptions returns options for a long-running node: a 128MB block
// cache, 64MB memtables and eager L0 compaction.
func TunedPebbleOptions() *pebble.Options {
	return &pebble.Options{
		Cache:                    pebble.NewCache(128 << 20),
		MemTableSize:             64 << 20,
		MaxConcurrentCompactions: func() int { return 3 },
		L0CompactionThreshold:    2,
		L0StopWritesThreshold:    12,
		LBaseMaxBytes:            64 << 20,
		MaxOpenFiles:             1000,
		BytesPerSync:             512 << 10,
	}
}

// NewPebbleStore opens (or creates) the database at path. opts may be nil.
func NewPebbleStore(path string, opts *pebble.Options) (*PebbleStore, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// OpenBook returns the substrate for inst. Nothing is written until the
// book is created through it.
func (s *PebbleStore) OpenBook(inst ids.InstrumentID) (orderbook.Substrate, error) {
	return &pebbleBook{db: s.db, inst: inst}, nil
}

// Instruments lists every instrument with a persisted book, sorted by id.
func (s *PebbleStore) Instruments() ([]ids.InstrumentID, error) {
	prefix := []byte(prefixState)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	var out []ids.InstrumentID
	for iter.First(); iter.Valid(); iter.Next() {
		raw := strings.TrimPrefix(string(iter.Key()), prefixState)
		inst, err := ids.ParseInstrumentID(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt state key %q: %w", iter.Key(), err)
		}
		out = append(out, inst)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	ids.SortInstruments(out)
	return out, nil
}

type pebbleBook struct {
	db   *pebble.DB
	inst ids.InstrumentID
}

func (b *pebbleBook) Begin() (orderbook.Txn, error) {
	return &pebbleTxn{batch: b.db.NewIndexedBatch(), inst: b.inst}, nil
}

// pebbleTxn reads through its own batch, so a transaction sees its writes.
type pebbleTxn struct {
	batch *pebble.Batch
	inst  ids.InstrumentID
	done  bool
}

// get decodes the value at key into v, ok=false when the key is absent.
func (t *pebbleTxn) get(key []byte, v any) (bool, error) {
	data, closer, err := t.batch.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %q: %w", key, err)
	}
	defer closer.Close()
	if err := decodeValue(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %q: %w", key, err)
	}
	return true, nil
}

func (t *pebbleTxn) set(key []byte, v any) error {
	data, err := encodeValue(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %q: %w", key, err)
	}
	if err := t.batch.Set(key, data, nil); err != nil {
		return fmt.Errorf("failed to set %q: %w", key, err)
	}
	return nil
}

func (t *pebbleTxn) del(key []byte) error {
	if err := t.batch.Delete(key, nil); err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

// scan visits every entry under prefix, last key first when reverse is set.
func (t *pebbleTxn) scan(prefix []byte, reverse bool, fn func(key, value []byte) (bool, error)) error {
	iter, err := t.batch.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	valid := iter.First()
	step := iter.Next
	if reverse {
		valid = iter.Last()
		step = iter.Prev
	}
	for ; valid; valid = step() {
		more, err := fn(iter.Key()[len(prefix):], iter.Value())
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return iter.Error()
}

func (t *pebbleTxn) State() (orderbook.State, bool, error) {
	var st orderbook.State
	ok, err := t.get(stateKey(t.inst), &st)
	return st, ok, err
}

func (t *pebbleTxn) SetState(st orderbook.State) error {
	return t.set(stateKey(t.inst), st)
}

func (t *pebbleTxn) Level(side orderbook.Side, key price.Key) ([]orderbook.Order, error) {
	var orders []orderbook.Order
	if _, err := t.get(levelKey(t.inst, side, key), &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (t *pebbleTxn) SetLevel(side orderbook.Side, key price.Key, orders []orderbook.Order) error {
	return t.set(levelKey(t.inst, side, key), orders)
}

func (t *pebbleTxn) DeleteLevel(side orderbook.Side, key price.Key) error {
	return t.del(levelKey(t.inst, side, key))
}

// Levels walks asks forward and bids backward so both come out best-first.
func (t *pebbleTxn) Levels(side orderbook.Side, fn func(price.Key, []orderbook.Order) bool) error {
	return t.scan(levelPrefix(t.inst, side), side == orderbook.Long, func(k, v []byte) (bool, error) {
		key, err := price.KeyFromBytes(k)
		if err != nil {
			return false, fmt.Errorf("corrupt level key: %w", err)
		}
		var orders []orderbook.Order
		if err := decodeValue(v, &orders); err != nil {
			return false, fmt.Errorf("failed to unmarshal level %s: %w", key, err)
		}
		return fn(key, orders), nil
	})
}

func (t *pebbleTxn) Position(trader ids.TraderID) (account.Position, bool, error) {
	var pos account.Position
	ok, err := t.get(positionKey(t.inst, trader), &pos)
	return pos, ok, err
}

func (t *pebbleTxn) SetPosition(trader ids.TraderID, pos account.Position) error {
	return t.set(positionKey(t.inst, trader), pos)
}

func (t *pebbleTxn) DeletePosition(trader ids.TraderID) error {
	return t.del(positionKey(t.inst, trader))
}

func (t *pebbleTxn) Positions(fn func(ids.TraderID, account.Position) bool) error {
	return t.scan(positionPrefix(t.inst), false, func(k, v []byte) (bool, error) {
		var trader ids.TraderID
		if len(k) != len(trader) {
			return false, fmt.Errorf("corrupt position key %x", k)
		}
		copy(trader[:], k)
		var pos account.Position
		if err := decodeValue(v, &pos); err != nil {
			return false, fmt.Errorf("failed to unmarshal position %s: %w", trader, err)
		}
		return fn(trader, pos), nil
	})
}

func (t *pebbleTxn) AppendTrade(tr orderbook.Trade) error {
	return t.set(tradeKey(t.inst, tr.ID), tr)
}

func (t *pebbleTxn) Trades(reverse bool, fn func(orderbook.Trade) bool) error {
	return t.scan(tradePrefix(t.inst), reverse, func(_, v []byte) (bool, error) {
		var tr orderbook.Trade
		if err := decodeValue(v, &tr); err != nil {
			return false, fmt.Errorf("failed to unmarshal trade: %w", err)
		}
		return fn(tr), nil
	})
}

func (t *pebbleTxn) Commit() error {
	if t.done {
		return errors.New("transaction already finished")
	}
	t.done = true
	defer t.batch.Close()
	if err := t.batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func (t *pebbleTxn) Discard() {
	if t.done {
		return
	}
	t.done = true
	_ = t.batch.Close()
}

var _ market.Backend = (*PebbleStore)(nil)
