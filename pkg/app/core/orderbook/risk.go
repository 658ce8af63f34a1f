package orderbook

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/perpbook/pkg/app/core/account"
	"github.com/uhyunpark/perpbook/pkg/app/core/ids"
	"github.com/uhyunpark/perpbook/pkg/app/core/price"
)

// fundingRateCap scales the long/short imbalance into a funding rate,
// bounding it to ±1% per tick.
var fundingRateCap = decimal.New(1, -2)

// validateOrder performs all pre-trade checks. It reads only the book's
// committed state and never mutates anything.
//
// Required margin = price × size / leverage, accepted when
// MinMargin <= required <= availableMargin.
func (b *Book) validateOrder(o Order, availableMargin decimal.Decimal) error {
	if o.Side != Long && o.Side != Short {
		return fmt.Errorf("invalid side: %d", o.Side)
	}
	if o.Type != Limit && o.Type != Market {
		return fmt.Errorf("invalid order type: %d", o.Type)
	}
	if !price.Valid(o.Price) {
		return fmt.Errorf("%w: %s", ErrInvalidPrice, o.Price)
	}
	if !o.Size.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidSize, o.Size)
	}
	if !o.Leverage.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidLeverage, o.Leverage)
	}
	if o.Leverage.GreaterThan(b.state.MaxLeverage) {
		return fmt.Errorf("%w: %s > %s", ErrExceedsMaxLeverage, o.Leverage, b.state.MaxLeverage)
	}

	required := o.RequiredMargin()
	if required.LessThan(b.state.MinMargin) {
		return fmt.Errorf("%w: required %s below minimum %s", ErrInsufficientMargin, required, b.state.MinMargin)
	}
	if required.GreaterThan(availableMargin) {
		return fmt.Errorf("%w: required %s, available %s", ErrInsufficientMargin, required, availableMargin)
	}
	return nil
}

// updatePosition applies one fill to trader's position, creating a flat
// position first if the trader has none.
func updatePosition(tx Txn, markPrice decimal.Decimal, trader ids.TraderID, sizeDelta, fillPrice, leverage, margin decimal.Decimal) error {
	pos, _, err := tx.Position(trader)
	if err != nil {
		return fmt.Errorf("load position %s: %w", trader, err)
	}
	pos.Apply(sizeDelta, fillPrice, leverage, margin, markPrice)
	if err := tx.SetPosition(trader, pos); err != nil {
		return fmt.Errorf("save position %s: %w", trader, err)
	}
	return nil
}

type positionEntry struct {
	trader ids.TraderID
	pos    account.Position
}

func loadPositions(tx Txn) ([]positionEntry, error) {
	var entries []positionEntry
	err := tx.Positions(func(trader ids.TraderID, pos account.Position) bool {
		entries = append(entries, positionEntry{trader: trader, pos: pos})
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("scan positions: %w", err)
	}
	return entries, nil
}

// UpdateMarkPrice sets the mark price, refreshes every position's PnL and
// removes the positions that reached their liquidation price. The removed
// traders are returned for the caller to settle.
func (b *Book) UpdateMarkPrice(markPrice decimal.Decimal) ([]ids.TraderID, error) {
	if !markPrice.IsPositive() {
		return nil, fmt.Errorf("%w: mark %s", ErrInvalidPrice, markPrice)
	}

	var liquidated []ids.TraderID
	err := b.update(func(tx Txn, st *State) error {
		st.MarkPrice = markPrice

		entries, err := loadPositions(tx)
		if err != nil {
			return err
		}
		for _, e := range entries {
			e.pos.RefreshPnL(markPrice)
			if e.pos.ShouldLiquidate(markPrice) {
				liquidated = append(liquidated, e.trader)
				continue
			}
			if err := tx.SetPosition(e.trader, e.pos); err != nil {
				return fmt.Errorf("save position %s: %w", e.trader, err)
			}
		}

		for _, trader := range liquidated {
			if err := tx.DeletePosition(trader); err != nil {
				return fmt.Errorf("remove position %s: %w", trader, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, trader := range liquidated {
		b.Logger.Info("position_liquidated",
			zap.Stringer("trader", trader),
			zap.String("mark_price", markPrice.String()))
	}
	return liquidated, nil
}

// UpdateFundingRate recomputes the funding rate from the open-interest
// imbalance and settles it against every position's margin:
//
//	rate    = (longs - shorts) / (longs + shorts) × 0.01
//	margin -= size × markPrice × rate
//
// With no open interest the rate keeps its previous value and no margin moves.
func (b *Book) UpdateFundingRate() error {
	var changed bool
	err := b.update(func(tx Txn, st *State) error {
		entries, err := loadPositions(tx)
		if err != nil {
			return err
		}

		longs, shorts := decimal.Zero, decimal.Zero
		for _, e := range entries {
			if e.pos.IsLong() {
				longs = longs.Add(e.pos.Size)
			} else {
				shorts = shorts.Add(e.pos.Size.Abs())
			}
		}
		total := longs.Add(shorts)
		if total.IsZero() {
			return nil
		}

		st.FundingRate = longs.Sub(shorts).Div(total).Mul(fundingRateCap)
		for _, e := range entries {
			e.pos.Margin = e.pos.Margin.Sub(e.pos.FundingPayment(st.MarkPrice, st.FundingRate))
			if err := tx.SetPosition(e.trader, e.pos); err != nil {
				return fmt.Errorf("save position %s: %w", e.trader, err)
			}
		}
		changed = true
		return nil
	})
	if err != nil {
		return err
	}

	if changed {
		b.Logger.Info("funding_settled",
			zap.String("funding_rate", b.state.FundingRate.String()),
			zap.String("mark_price", b.state.MarkPrice.String()))
	}
	return nil
}
