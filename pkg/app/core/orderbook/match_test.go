package orderbook_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/perpbook/pkg/app/core/ids"
	"github.com/uhyunpark/perpbook/pkg/app/core/orderbook"
)

// TestEndToEndScenario: a resting long is taken by a short market order.
func TestEndToEndScenario(t *testing.T) {
	eachSubstrate(t, "100", "1", "20", func(t *testing.T, book *orderbook.Book) {
		// A: long limit 10 @ 100, 10x → required margin 100×10/10 = 100
		trades, err := book.PlaceOrder(limit(traderA, orderbook.Long, "100", "10", "10"), d("100"))
		require.NoError(t, err)
		assert.Empty(t, trades)

		bids, err := book.BidLevels()
		require.NoError(t, err)
		require.Len(t, bids, 1)
		requireDecimal(t, "100", bids[0].Price)
		requireDecimal(t, "10", bids[0].Size)

		// B: short market 10, 10x, margin 100
		trades, err = book.PlaceOrder(market(traderB, orderbook.Short, "100", "10", "10"), d("100"))
		require.NoError(t, err)
		require.Len(t, trades, 1)
		requireDecimal(t, "100", trades[0].Price)
		requireDecimal(t, "10", trades[0].Size)
		assert.Equal(t, traderA, trades[0].MakerTrader)
		assert.Equal(t, traderB, trades[0].TakerTrader)
		assert.Equal(t, orderbook.Short, trades[0].TakerSide)

		posA, err := book.Position(traderA)
		require.NoError(t, err)
		requireDecimal(t, "10", posA.Size)
		requireDecimal(t, "100", posA.EntryPrice)
		requireDecimal(t, "90", posA.LiquidationPrice) // 100 × (1 - 1/10)

		posB, err := book.Position(traderB)
		require.NoError(t, err)
		requireDecimal(t, "-10", posB.Size)
		requireDecimal(t, "100", posB.EntryPrice)
		requireDecimal(t, "110", posB.LiquidationPrice) // 100 × (1 + 1/10)

		bids, err = book.BidLevels()
		require.NoError(t, err)
		assert.Empty(t, bids)
	})
}

// TestPartialFillRestsOnTakerSide: ask 5 @ 101, long limit 8 @ 101 fills 5
// and rests the remaining 3 as a bid at 101.
func TestPartialFillRestsOnTakerSide(t *testing.T) {
	eachSubstrate(t, "100", "1", "20", func(t *testing.T, book *orderbook.Book) {
		place(t, book, limit(traderA, orderbook.Short, "101", "5", "10"))
		trades := place(t, book, limit(traderB, orderbook.Long, "101", "8", "10"))

		require.Len(t, trades, 1)
		requireDecimal(t, "5", trades[0].Size)
		requireDecimal(t, "101", trades[0].Price)

		asks, err := book.AskLevels()
		require.NoError(t, err)
		assert.Empty(t, asks)

		bids, err := book.BidLevels()
		require.NoError(t, err)
		require.Len(t, bids, 1)
		requireDecimal(t, "101", bids[0].Price)
		requireDecimal(t, "3", bids[0].Size)

		open, err := book.OpenOrders(traderB)
		require.NoError(t, err)
		require.Len(t, open, 1)
		requireDecimal(t, "3", open[0].Size)
		assert.Equal(t, orderbook.Long, open[0].Side)
	})
}

// TestPriceTimePriority: O1 is filled completely before O2 at the same price.
func TestPriceTimePriority(t *testing.T) {
	eachSubstrate(t, "100", "1", "20", func(t *testing.T, book *orderbook.Book) {
		place(t, book, limit(traderA, orderbook.Short, "100", "4", "10")) // O1
		place(t, book, limit(traderB, orderbook.Short, "100", "4", "10")) // O2

		// 5 = all of O1 (4) + 1 of O2
		trades := place(t, book, limit(traderC, orderbook.Long, "100", "5", "10"))
		require.Len(t, trades, 2)
		assert.Equal(t, traderA, trades[0].MakerTrader)
		requireDecimal(t, "4", trades[0].Size)
		assert.Equal(t, traderB, trades[1].MakerTrader)
		requireDecimal(t, "1", trades[1].Size)

		asks, err := book.AskLevels()
		require.NoError(t, err)
		require.Len(t, asks, 1)
		requireDecimal(t, "3", asks[0].Size)
		assert.Equal(t, 1, asks[0].Orders)
	})
}

// TestBestPriceFirst walks asks from the lowest price up and fills at each
// resting price.
func TestBestPriceFirst(t *testing.T) {
	eachSubstrate(t, "100", "0.5", "20", func(t *testing.T, book *orderbook.Book) {
		// 9.5 sorts after 10 as a string; numerically it is the best ask.
		place(t, book, limit(traderA, orderbook.Short, "10", "1", "10"))
		place(t, book, limit(traderA, orderbook.Short, "9.5", "1", "10"))
		place(t, book, limit(traderA, orderbook.Short, "100", "1", "10"))

		trades := place(t, book, limit(traderB, orderbook.Long, "50", "5", "10"))
		require.Len(t, trades, 2)
		requireDecimal(t, "9.5", trades[0].Price)
		requireDecimal(t, "10", trades[1].Price)

		// 3 remaining rest as a bid at 50 since 100 does not cross
		bid, ok, err := book.BestBid()
		require.NoError(t, err)
		require.True(t, ok)
		requireDecimal(t, "50", bid)

		ask, ok, err := book.BestAsk()
		require.NoError(t, err)
		require.True(t, ok)
		requireDecimal(t, "100", ask)
	})
}

func TestBidsMatchHighestFirst(t *testing.T) {
	book := newTestBook(t, "100", "1", "20")

	place(t, book, limit(traderA, orderbook.Long, "99", "1", "10"))
	place(t, book, limit(traderA, orderbook.Long, "101", "1", "10"))
	place(t, book, limit(traderA, orderbook.Long, "100", "1", "10"))

	trades := place(t, book, market(traderB, orderbook.Short, "100", "2", "10"))
	require.Len(t, trades, 2)
	requireDecimal(t, "101", trades[0].Price)
	requireDecimal(t, "100", trades[1].Price)
}

func TestMarketRemainderIsDropped(t *testing.T) {
	book := newTestBook(t, "100", "1", "20")

	place(t, book, limit(traderA, orderbook.Short, "100", "2", "10"))
	trades := place(t, book, market(traderB, orderbook.Long, "100", "5", "10"))
	require.Len(t, trades, 1)
	requireDecimal(t, "2", trades[0].Size)

	bids, err := book.BidLevels()
	require.NoError(t, err)
	assert.Empty(t, bids)
	asks, err := book.AskLevels()
	require.NoError(t, err)
	assert.Empty(t, asks)

	// empty book: market order produces nothing and leaves no trace
	trades = place(t, book, market(traderC, orderbook.Short, "100", "1", "10"))
	assert.Empty(t, trades)
}

func TestLimitDoesNotCross(t *testing.T) {
	book := newTestBook(t, "100", "1", "20")

	place(t, book, limit(traderA, orderbook.Short, "101", "1", "10"))
	trades := place(t, book, limit(traderB, orderbook.Long, "100.99999999", "1", "10"))
	assert.Empty(t, trades)

	mid, err := book.MidPrice()
	require.NoError(t, err)
	requireDecimal(t, "100.999999995", mid)
}

// TestPriceNormalization: prices equal after rounding to 8 places share a level.
func TestPriceNormalization(t *testing.T) {
	book := newTestBook(t, "100", "1", "20")

	place(t, book, limit(traderA, orderbook.Long, "100.000000001", "1", "10"))
	place(t, book, limit(traderB, orderbook.Long, "100", "2", "10"))

	bids, err := book.BidLevels()
	require.NoError(t, err)
	require.Len(t, bids, 1)
	requireDecimal(t, "100", bids[0].Price)
	requireDecimal(t, "3", bids[0].Size)
	assert.Equal(t, 2, bids[0].Orders)
}

// TestIDsAndTimestamps: order and trade ids come from one counter starting
// at 1; trades carry the taker's timestamp.
func TestIDsAndTimestamps(t *testing.T) {
	book := newTestBook(t, "100", "1", "20")

	place(t, book, limit(traderA, orderbook.Short, "100", "1", "10")) // order 1
	place(t, book, limit(traderA, orderbook.Short, "100", "1", "10")) // order 2
	trades := place(t, book, limit(traderB, orderbook.Long, "100", "2", "10"))

	// taker is order 3; trades 4 and 5
	require.Len(t, trades, 2)
	assert.Equal(t, uint64(1), trades[0].MakerOrderID)
	assert.Equal(t, uint64(2), trades[1].MakerOrderID)
	assert.Equal(t, uint64(3), trades[0].TakerOrderID)
	assert.Equal(t, uint64(4), trades[0].ID)
	assert.Equal(t, uint64(5), trades[1].ID)
	assert.Equal(t, int64(1_700_000_000_000), trades[0].Timestamp)
	assert.Equal(t, uint64(6), book.State().NextID)
}

// TestSignedTradeSizesMatchPositions: summing each trader's signed fills
// reproduces their position size.
func TestSignedTradeSizesMatchPositions(t *testing.T) {
	eachSubstrate(t, "100", "1", "20", func(t *testing.T, book *orderbook.Book) {
		traders := []ids.TraderID{traderA, traderB, traderC}

		script := []orderbook.Order{
			limit(traderA, orderbook.Short, "101", "3", "5"),
			limit(traderB, orderbook.Short, "100", "2", "5"),
			limit(traderC, orderbook.Long, "101", "4", "5"),
			limit(traderA, orderbook.Long, "99", "6", "5"),
			market(traderB, orderbook.Short, "99", "5", "5"),
			limit(traderC, orderbook.Short, "98", "3", "5"),
			market(traderA, orderbook.Long, "101", "2", "5"),
		}
		for _, o := range script {
			place(t, book, o)
		}

		all, err := book.Trades()
		require.NoError(t, err)
		require.NotEmpty(t, all)

		sums := map[ids.TraderID]string{}
		for _, trader := range traders {
			sum := d("0")
			for _, tr := range all {
				if tr.TakerTrader == trader {
					sum = sum.Add(tr.Size.Mul(tr.TakerSide.Sign()))
				}
				if tr.MakerTrader == trader {
					sum = sum.Add(tr.Size.Mul(tr.TakerSide.Opposite().Sign()))
				}
			}
			sums[trader] = sum.String()
		}

		positions, err := book.Positions()
		require.NoError(t, err)
		for _, trader := range traders {
			pos, ok := positions[trader]
			if !ok {
				requireDecimal(t, "0", d(sums[trader]), trader)
				continue
			}
			requireDecimal(t, sums[trader], pos.Size, trader)
		}
	})
}

func TestSelfTradeUpdatesOnePosition(t *testing.T) {
	book := newTestBook(t, "100", "1", "20")

	place(t, book, limit(traderA, orderbook.Short, "100", "2", "10"))
	trades := place(t, book, limit(traderA, orderbook.Long, "100", "2", "10"))
	require.Len(t, trades, 1)

	// taker +2 then maker -2 → flat, kept in the map
	pos, err := book.Position(traderA)
	require.NoError(t, err)
	assert.True(t, pos.IsFlat())
}
