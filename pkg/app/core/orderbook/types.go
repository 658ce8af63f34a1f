package orderbook

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/perpbook/pkg/app/core/ids"
)

// Side is the direction of an order: Long buys, Short sells.
type Side int8

const (
	Long  Side = 1
	Short Side = -1
)

// Opposite returns the side an order of s matches against.
func (s Side) Opposite() Side { return -s }

// Sign returns +1 for Long and -1 for Short as a decimal multiplier.
func (s Side) Sign() decimal.Decimal { return decimal.NewFromInt(int64(s)) }

func (s Side) String() string {
	switch s {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "unknown"
	}
}

func (s Side) MarshalText() ([]byte, error) {
	if s != Long && s != Short {
		return nil, fmt.Errorf("invalid side: %d", s)
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "long", "buy":
		*s = Long
	case "short", "sell":
		*s = Short
	default:
		return fmt.Errorf("invalid side: %q", b)
	}
	return nil
}

// OrderType selects whether unmatched size may rest on the book.
type OrderType int8

const (
	Limit  OrderType = iota // remainder rests at the limit price
	Market                  // remainder is dropped
)

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "limit"
	case Market:
		return "market"
	default:
		return "unknown"
	}
}

func (t OrderType) MarshalText() ([]byte, error) {
	if t != Limit && t != Market {
		return nil, fmt.Errorf("invalid order type: %d", t)
	}
	return []byte(t.String()), nil
}

func (t *OrderType) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "limit", "gtc":
		*t = Limit
	case "market":
		*t = Market
	default:
		return fmt.Errorf("invalid order type: %q", b)
	}
	return nil
}

// Order is an incoming or resting order. The book assigns ID; only Size
// changes while the order rests (it is consumed by fills).
type Order struct {
	ID        uint64          `json:"id"`
	Trader    ids.TraderID    `json:"trader"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	Side      Side            `json:"side"`
	Type      OrderType       `json:"type"`
	Leverage  decimal.Decimal `json:"leverage"`
	Timestamp int64           `json:"timestamp"` // unix milliseconds
}

// NewOrder builds an order; ID and Timestamp are filled in by the book.
func NewOrder(trader ids.TraderID, price, size decimal.Decimal, side Side, typ OrderType, leverage decimal.Decimal) Order {
	return Order{
		Trader:   trader,
		Price:    price,
		Size:     size,
		Side:     side,
		Type:     typ,
		Leverage: leverage,
	}
}

// RequiredMargin returns price × size / leverage.
func (o Order) RequiredMargin() decimal.Decimal {
	return o.Price.Mul(o.Size).Div(o.Leverage)
}

// Trade is an executed fill between a taker and a resting maker order.
// Price is always the maker's (resting) price.
type Trade struct {
	ID           uint64          `json:"id"`
	MakerOrderID uint64          `json:"maker_order_id"`
	TakerOrderID uint64          `json:"taker_order_id"`
	Price        decimal.Decimal `json:"price"`
	Size         decimal.Decimal `json:"size"`
	Timestamp    int64           `json:"timestamp"`

	MakerTrader ids.TraderID `json:"maker_trader"`
	TakerTrader ids.TraderID `json:"taker_trader"`
	TakerSide   Side         `json:"taker_side"`
}

// PriceLevel aggregates the resting size at one price.
type PriceLevel struct {
	Price  decimal.Decimal `json:"price"`
	Size   decimal.Decimal `json:"size"`
	Orders int             `json:"orders"`
}

// State holds the scalar fields of a book. It is persisted through the
// substrate alongside the collections so a book can be reloaded.
type State struct {
	MarkPrice   decimal.Decimal `json:"mark_price"`
	FundingRate decimal.Decimal `json:"funding_rate"`
	MinMargin   decimal.Decimal `json:"min_margin"`
	MaxLeverage decimal.Decimal `json:"max_leverage"`
	NextID      uint64          `json:"next_id"`
}

// nextID hands out the next id from the book's shared order/trade counter.
func (s *State) nextID() uint64 {
	id := s.NextID
	s.NextID++
	return id
}
