package orderbook

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/perpbook/pkg/app/core/price"
)

// PlaceOrder validates o, matches it by price-time priority against the
// opposite side and returns the trades in execution order.
//
// Each fill is priced at the resting order and updates both traders'
// positions; the maker side is charged the same availableMargin as the taker
// because the book does not track per-trader balances. A Limit remainder rests
// on the taker's side at its normalized price, behind existing orders there.
// A Market remainder is dropped.
func (b *Book) PlaceOrder(o Order, availableMargin decimal.Decimal) ([]Trade, error) {
	if err := b.validateOrder(o, availableMargin); err != nil {
		return nil, err
	}
	if o.Timestamp == 0 {
		o.Timestamp = b.Clock.Now().UnixMilli()
	}

	var trades []Trade
	err := b.update(func(tx Txn, st *State) error {
		o.ID = st.nextID()
		limit := price.KeyOf(o.Price)
		o.Price = limit.Decimal()

		m := &matcher{tx: tx, st: st, taker: &o, margin: availableMargin}
		if err := m.run(limit); err != nil {
			return err
		}

		if o.Type == Limit && o.Size.IsPositive() {
			if err := rest(tx, o, limit); err != nil {
				return err
			}
		}
		trades = m.trades
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.Logger.Debug("order_placed",
		zap.Uint64("order_id", o.ID),
		zap.Stringer("trader", o.Trader),
		zap.Stringer("side", o.Side),
		zap.Stringer("type", o.Type),
		zap.Int("fills", len(trades)),
		zap.String("remaining", o.Size.String()))
	return trades, nil
}

// matcher carries one taker through the opposite side of the book.
// taker.Size is the remaining size and shrinks with every fill.
type matcher struct {
	tx     Txn
	st     *State
	taker  *Order
	margin decimal.Decimal
	trades []Trade
}

func (m *matcher) run(limit price.Key) error {
	opp := m.taker.Side.Opposite()
	for m.taker.Size.IsPositive() {
		key, level, ok, err := bestLevel(m.tx, opp)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if m.taker.Type == Limit && !crosses(m.taker.Side, key, limit) {
			break
		}
		if err := m.fillLevel(opp, key, level); err != nil {
			return err
		}
	}
	return nil
}

// fillLevel walks one level in time priority, then writes the survivors back
// (or deletes the level) as a single unit.
func (m *matcher) fillLevel(side Side, key price.Key, level []Order) error {
	fillPrice := key.Decimal()
	working := make([]Order, len(level))
	copy(working, level)

	for i := range working {
		maker := &working[i]
		if !maker.Size.IsPositive() {
			continue
		}

		size := decimal.Min(m.taker.Size, maker.Size)
		m.trades = append(m.trades, Trade{
			ID:           m.st.nextID(),
			MakerOrderID: maker.ID,
			TakerOrderID: m.taker.ID,
			Price:        fillPrice,
			Size:         size,
			Timestamp:    m.taker.Timestamp,
			MakerTrader:  maker.Trader,
			TakerTrader:  m.taker.Trader,
			TakerSide:    m.taker.Side,
		})
		if err := m.tx.AppendTrade(m.trades[len(m.trades)-1]); err != nil {
			return fmt.Errorf("append trade: %w", err)
		}

		if err := updatePosition(m.tx, m.st.MarkPrice, m.taker.Trader, size.Mul(m.taker.Side.Sign()), fillPrice, m.taker.Leverage, m.margin); err != nil {
			return err
		}
		if err := updatePosition(m.tx, m.st.MarkPrice, maker.Trader, size.Mul(side.Sign()), fillPrice, maker.Leverage, m.margin); err != nil {
			return err
		}

		maker.Size = maker.Size.Sub(size)
		m.taker.Size = m.taker.Size.Sub(size)
		if m.taker.Size.IsZero() {
			break
		}
	}

	survivors := make([]Order, 0, len(working))
	for _, o := range working {
		if o.Size.IsPositive() {
			survivors = append(survivors, o)
		}
	}
	if len(survivors) == 0 {
		if err := m.tx.DeleteLevel(side, key); err != nil {
			return fmt.Errorf("delete level %s: %w", key, err)
		}
		return nil
	}
	if err := m.tx.SetLevel(side, key, survivors); err != nil {
		return fmt.Errorf("write level %s: %w", key, err)
	}
	return nil
}

// bestLevel returns the best level on side holding at least one order with
// nonzero size.
func bestLevel(tx Txn, side Side) (price.Key, []Order, bool, error) {
	var (
		bestKey    price.Key
		bestOrders []Order
		found      bool
	)
	err := tx.Levels(side, func(key price.Key, orders []Order) bool {
		for _, o := range orders {
			if o.Size.IsPositive() {
				bestKey, bestOrders, found = key, orders, true
				return false
			}
		}
		return true
	})
	if err != nil {
		return 0, nil, false, fmt.Errorf("scan %s levels: %w", side, err)
	}
	return bestKey, bestOrders, found, nil
}

// crosses reports whether a taker on side with limit may trade at level.
func crosses(side Side, level, limit price.Key) bool {
	if side == Long {
		return level <= limit
	}
	return level >= limit
}

// rest appends o behind any orders already resting at key on o's side.
func rest(tx Txn, o Order, key price.Key) error {
	level, err := tx.Level(o.Side, key)
	if err != nil {
		return fmt.Errorf("read level %s: %w", key, err)
	}
	next := make([]Order, 0, len(level)+1)
	next = append(next, level...)
	next = append(next, o)
	if err := tx.SetLevel(o.Side, key, next); err != nil {
		return fmt.Errorf("write level %s: %w", key, err)
	}
	return nil
}
