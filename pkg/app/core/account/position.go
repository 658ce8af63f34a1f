package account

import (
	"github.com/shopspring/decimal"
)

// Position represents one trader's leveraged perpetual position in one instrument.
type Position struct {
	// Signed size: +ve = long, -ve = short
	Size decimal.Decimal `json:"size"`

	// Size-weighted average entry price
	// newEntry = (oldEntry × |oldSize| + fillPrice × |fillSize|) / (|oldSize| + |fillSize|)
	EntryPrice decimal.Decimal `json:"entry_price"`

	// Leverage and margin of the fill that last opened or increased the position
	Leverage decimal.Decimal `json:"leverage"`
	Margin   decimal.Decimal `json:"margin"`

	// Mark price at which the position is forcibly closed
	LiquidationPrice decimal.Decimal `json:"liquidation_price"`

	// (markPrice - entryPrice) × size, refreshed on fills and mark updates
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// LiquidationPrice returns entry × (1 - 1/leverage) for a long position
// and entry × (1 + 1/leverage) for a short one.
func LiquidationPrice(entry, leverage decimal.Decimal, long bool) decimal.Decimal {
	step := decimal.NewFromInt(1).Div(leverage)
	if long {
		return entry.Mul(decimal.NewFromInt(1).Sub(step))
	}
	return entry.Mul(decimal.NewFromInt(1).Add(step))
}

// Apply folds a fill of sizeDelta (signed) at fillPrice into the position.
//
// A fill that shrinks |size| only changes the size and refreshes PnL; entry
// price, leverage, margin and liquidation price are left as they were.
// Any other fill (open, increase, flip) recomputes the weighted entry price,
// takes this fill's leverage and margin, and recomputes the liquidation price.
func (p *Position) Apply(sizeDelta, fillPrice, leverage, margin, markPrice decimal.Decimal) {
	oldSize := p.Size
	newSize := oldSize.Add(sizeDelta)

	if newSize.Abs().LessThan(oldSize.Abs()) {
		p.Size = newSize
		p.RefreshPnL(markPrice)
		return
	}

	entry := fillPrice
	if !oldSize.IsZero() {
		absOld := oldSize.Abs()
		absDelta := sizeDelta.Abs()
		entry = p.EntryPrice.Mul(absOld).Add(fillPrice.Mul(absDelta)).Div(absOld.Add(absDelta))
	}

	p.Size = newSize
	p.EntryPrice = entry
	p.Leverage = leverage
	p.Margin = margin
	p.LiquidationPrice = LiquidationPrice(entry, leverage, newSize.IsPositive())
	p.RefreshPnL(markPrice)
}

// RefreshPnL recomputes unrealized PnL against markPrice.
// Shorts carry a negative size, so they profit when the mark falls.
func (p *Position) RefreshPnL(markPrice decimal.Decimal) {
	p.UnrealizedPnL = markPrice.Sub(p.EntryPrice).Mul(p.Size)
}

// ShouldLiquidate reports whether markPrice has reached the liquidation price.
// Flat positions are never liquidatable.
func (p Position) ShouldLiquidate(markPrice decimal.Decimal) bool {
	switch {
	case p.Size.IsPositive():
		return markPrice.LessThanOrEqual(p.LiquidationPrice)
	case p.Size.IsNegative():
		return markPrice.GreaterThanOrEqual(p.LiquidationPrice)
	default:
		return false
	}
}

// IsLong returns true if position is long (size > 0)
func (p Position) IsLong() bool { return p.Size.IsPositive() }

// IsShort returns true if position is short (size < 0)
func (p Position) IsShort() bool { return p.Size.IsNegative() }

// IsFlat returns true if the position has zero size
func (p Position) IsFlat() bool { return p.Size.IsZero() }

// Notional returns |size| × price
func (p Position) Notional(price decimal.Decimal) decimal.Decimal {
	return p.Size.Abs().Mul(price)
}

// FundingPayment returns size × markPrice × rate, the amount debited from
// margin on a funding tick. Negative values are credits.
func (p Position) FundingPayment(markPrice, rate decimal.Decimal) decimal.Decimal {
	return p.Size.Mul(markPrice).Mul(rate)
}
