package orderbook

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/perpbook/pkg/app/core/account"
	"github.com/uhyunpark/perpbook/pkg/app/core/ids"
	"github.com/uhyunpark/perpbook/pkg/app/core/price"
)

// CancelOrder removes a resting order and returns it as it stood.
func (b *Book) CancelOrder(orderID uint64) (Order, error) {
	var cancelled Order
	err := b.update(func(tx Txn, _ *State) error {
		for _, side := range []Side{Long, Short} {
			var (
				key   price.Key
				level []Order
				idx   = -1
			)
			err := tx.Levels(side, func(k price.Key, orders []Order) bool {
				for i, o := range orders {
					if o.ID == orderID {
						key, level, idx = k, orders, i
						return false
					}
				}
				return true
			})
			if err != nil {
				return fmt.Errorf("scan %s levels: %w", side, err)
			}
			if idx < 0 {
				continue
			}

			cancelled = level[idx]
			remaining := make([]Order, 0, len(level)-1)
			remaining = append(remaining, level[:idx]...)
			remaining = append(remaining, level[idx+1:]...)
			if len(remaining) == 0 {
				return tx.DeleteLevel(side, key)
			}
			return tx.SetLevel(side, key, remaining)
		}
		return fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
	})
	if err != nil {
		return Order{}, err
	}

	b.Logger.Debug("order_cancelled",
		zap.Uint64("order_id", cancelled.ID),
		zap.Stringer("trader", cancelled.Trader))
	return cancelled, nil
}

// BidLevels returns aggregated bid depth, highest price first.
func (b *Book) BidLevels() ([]PriceLevel, error) { return b.depth(Long) }

// AskLevels returns aggregated ask depth, lowest price first.
func (b *Book) AskLevels() ([]PriceLevel, error) { return b.depth(Short) }

func (b *Book) depth(side Side) ([]PriceLevel, error) {
	var levels []PriceLevel
	err := b.view(func(tx Txn) error {
		return tx.Levels(side, func(key price.Key, orders []Order) bool {
			lvl := PriceLevel{Price: key.Decimal(), Size: decimal.Zero}
			for _, o := range orders {
				if o.Size.IsPositive() {
					lvl.Size = lvl.Size.Add(o.Size)
					lvl.Orders++
				}
			}
			if lvl.Orders > 0 {
				levels = append(levels, lvl)
			}
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("read %s depth: %w", side, err)
	}
	return levels, nil
}

// BestBid returns the highest resting bid; ok is false on an empty side.
func (b *Book) BestBid() (decimal.Decimal, bool, error) { return b.best(Long) }

// BestAsk returns the lowest resting ask; ok is false on an empty side.
func (b *Book) BestAsk() (decimal.Decimal, bool, error) { return b.best(Short) }

func (b *Book) best(side Side) (decimal.Decimal, bool, error) {
	var (
		key price.Key
		ok  bool
	)
	err := b.view(func(tx Txn) error {
		var err error
		key, _, ok, err = bestLevel(tx, side)
		return err
	})
	if err != nil || !ok {
		return decimal.Zero, false, err
	}
	return key.Decimal(), true, nil
}

// MidPrice returns (bestBid + bestAsk) / 2, or the one side present, or
// the mark price for an empty book.
func (b *Book) MidPrice() (decimal.Decimal, error) {
	bid, hasBid, err := b.BestBid()
	if err != nil {
		return decimal.Zero, err
	}
	ask, hasAsk, err := b.BestAsk()
	if err != nil {
		return decimal.Zero, err
	}
	switch {
	case hasBid && hasAsk:
		return bid.Add(ask).Div(decimal.NewFromInt(2)), nil
	case hasBid:
		return bid, nil
	case hasAsk:
		return ask, nil
	default:
		return b.state.MarkPrice, nil
	}
}

// LastPrice returns the price of the most recent trade, ok=false if none.
func (b *Book) LastPrice() (decimal.Decimal, bool, error) {
	trades, err := b.RecentTrades(1)
	if err != nil || len(trades) == 0 {
		return decimal.Zero, false, err
	}
	return trades[0].Price, true, nil
}

// Trades returns the full trade log in execution order.
func (b *Book) Trades() ([]Trade, error) {
	var trades []Trade
	err := b.view(func(tx Txn) error {
		return tx.Trades(false, func(tr Trade) bool {
			trades = append(trades, tr)
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("read trades: %w", err)
	}
	return trades, nil
}

// RecentTrades returns up to n trades, newest first.
func (b *Book) RecentTrades(n int) ([]Trade, error) {
	if n <= 0 {
		return nil, nil
	}
	trades := make([]Trade, 0, n)
	err := b.view(func(tx Txn) error {
		return tx.Trades(true, func(tr Trade) bool {
			trades = append(trades, tr)
			return len(trades) < n
		})
	})
	if err != nil {
		return nil, fmt.Errorf("read trades: %w", err)
	}
	return trades, nil
}

// OpenOrders returns trader's resting orders, bids first, each side best-first.
func (b *Book) OpenOrders(trader ids.TraderID) ([]Order, error) {
	var open []Order
	err := b.view(func(tx Txn) error {
		for _, side := range []Side{Long, Short} {
			err := tx.Levels(side, func(_ price.Key, orders []Order) bool {
				for _, o := range orders {
					if o.Trader == trader && o.Size.IsPositive() {
						open = append(open, o)
					}
				}
				return true
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read open orders: %w", err)
	}
	return open, nil
}

// Position returns trader's position or ErrPositionNotFound.
func (b *Book) Position(trader ids.TraderID) (account.Position, error) {
	var (
		pos account.Position
		ok  bool
	)
	err := b.view(func(tx Txn) error {
		var err error
		pos, ok, err = tx.Position(trader)
		return err
	})
	if err != nil {
		return account.Position{}, fmt.Errorf("read position %s: %w", trader, err)
	}
	if !ok {
		return account.Position{}, fmt.Errorf("%w: %s", ErrPositionNotFound, trader)
	}
	return pos, nil
}

// Positions returns every open position keyed by trader.
func (b *Book) Positions() (map[ids.TraderID]account.Position, error) {
	out := make(map[ids.TraderID]account.Position)
	err := b.view(func(tx Txn) error {
		return tx.Positions(func(trader ids.TraderID, pos account.Position) bool {
			out[trader] = pos
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}
	return out, nil
}
