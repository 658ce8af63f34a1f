package orderbook

import (
	"github.com/uhyunpark/perpbook/pkg/app/core/account"
	"github.com/uhyunpark/perpbook/pkg/app/core/ids"
	"github.com/uhyunpark/perpbook/pkg/app/core/price"
)

// Substrate is the keyed storage a Book runs on: one per instrument.
// The book never touches storage outside a Txn.
type Substrate interface {
	Begin() (Txn, error)
}

// Txn is a consistent view of one book's collections. Writes become visible
// to other transactions only after Commit; Discard drops them. Discard after
// Commit is a no-op, so callers may always defer it.
//
// Level slices returned by a Txn may be shared with the store and must be
// treated as read-only; write changes back with SetLevel.
type Txn interface {
	// State returns the persisted book state, ok=false if none was saved yet.
	State() (st State, ok bool, err error)
	SetState(st State) error

	// Level returns the orders resting at key on side, nil if the level is absent.
	Level(side Side, key price.Key) ([]Order, error)
	SetLevel(side Side, key price.Key, orders []Order) error
	DeleteLevel(side Side, key price.Key) error
	// Levels visits side best-first: bids high to low, asks low to high.
	// Return false from fn to stop.
	Levels(side Side, fn func(key price.Key, orders []Order) bool) error

	Position(trader ids.TraderID) (pos account.Position, ok bool, err error)
	SetPosition(trader ids.TraderID, pos account.Position) error
	DeletePosition(trader ids.TraderID) error
	// Positions visits every position in a stable order. fn must not write.
	Positions(fn func(trader ids.TraderID, pos account.Position) bool) error

	AppendTrade(tr Trade) error
	// Trades visits the trade log, oldest first unless reverse is set.
	Trades(reverse bool, fn func(tr Trade) bool) error

	Commit() error
	Discard()
}
