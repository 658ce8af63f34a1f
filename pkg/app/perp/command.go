package perp

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/perpbook/pkg/app/core/ids"
	"github.com/uhyunpark/perpbook/pkg/app/core/orderbook"
)

// Op names a command kind.
type Op string

const (
	OpCreate  Op = "create"  // create a book
	OpOrder   Op = "order"   // place an order
	OpCancel  Op = "cancel"  // cancel a resting order
	OpMark    Op = "mark"    // set the mark price
	OpFunding Op = "funding" // run a funding tick
)

// Command is one JSON line of a script or journal, e.g.
//
//	{"op":"create","instrument":"0x42544300","price":"100","min_margin":"10","max_leverage":"10"}
//	{"op":"order","instrument":"0x42544300","trader":"0x0000000000000001","side":"long","price":"100","size":"10","leverage":"5","margin":"1000"}
//	{"op":"mark","instrument":"0x42544300","price":"90"}
type Command struct {
	Op         Op               `json:"op"`
	Instrument ids.InstrumentID `json:"instrument"`

	Trader   ids.TraderID        `json:"trader"`
	Side     orderbook.Side      `json:"side,omitempty"`
	Type     orderbook.OrderType `json:"type,omitempty"`
	Price    decimal.Decimal     `json:"price"`
	Size     decimal.Decimal     `json:"size"`
	Leverage decimal.Decimal     `json:"leverage"`
	Margin   decimal.Decimal     `json:"margin"`

	OrderID   uint64 `json:"order_id,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"` // order time, unix ms; stamped on apply when zero

	MinMargin   decimal.Decimal `json:"min_margin"`
	MaxLeverage decimal.Decimal `json:"max_leverage"`
}

// ParseCommand decodes one command line.
func ParseCommand(line []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(line, &cmd); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	switch cmd.Op {
	case OpCreate, OpOrder, OpCancel, OpMark, OpFunding:
		return cmd, nil
	default:
		return Command{}, fmt.Errorf("unknown op %q", cmd.Op)
	}
}

// Order builds the order carried by an OpOrder command.
func (c Command) Order() orderbook.Order {
	o := orderbook.NewOrder(c.Trader, c.Price, c.Size, c.Side, c.Type, c.Leverage)
	o.Timestamp = c.Timestamp
	return o
}
