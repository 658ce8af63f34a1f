package orderbook_test

import (
	"testing"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/perpbook/pkg/app/core/ids"
	"github.com/uhyunpark/perpbook/pkg/app/core/orderbook"
	"github.com/uhyunpark/perpbook/pkg/storage"
	"github.com/uhyunpark/perpbook/pkg/util"
)

var (
	traderA = ids.TraderIDFromUint64(0xA)
	traderB = ids.TraderIDFromUint64(0xB)
	traderC = ids.TraderIDFromUint64(0xC)

	btc = ids.InstrumentIDFromString("BTC")
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type substrateCase struct {
	name string
	open func(t testing.TB) orderbook.Substrate
}

var substrates = []substrateCase{
	{"memory", func(t testing.TB) orderbook.Substrate {
		sub, err := storage.NewMemory().OpenBook(btc)
		require.NoError(t, err)
		return sub
	}},
	{"pebble", func(t testing.TB) orderbook.Substrate {
		ps, err := storage.NewPebbleStore("", &pebble.Options{FS: vfs.NewMem()})
		require.NoError(t, err)
		t.Cleanup(func() { ps.Close() })
		sub, err := ps.OpenBook(btc)
		require.NoError(t, err)
		return sub
	}},
}

// newTestBook creates a book on a fresh in-memory substrate.
func newTestBook(t *testing.T, mark, minMargin, maxLeverage string) *orderbook.Book {
	t.Helper()
	return newTestBookOn(t, substrates[0].open(t), mark, minMargin, maxLeverage)
}

// eachSubstrate runs fn once per substrate implementation with a fresh book.
func eachSubstrate(t *testing.T, mark, minMargin, maxLeverage string, fn func(t *testing.T, book *orderbook.Book)) {
	for _, sc := range substrates {
		t.Run(sc.name, func(t *testing.T) {
			fn(t, newTestBookOn(t, sc.open(t), mark, minMargin, maxLeverage))
		})
	}
}

func newTestBookOn(t testing.TB, sub orderbook.Substrate, mark, minMargin, maxLeverage string) *orderbook.Book {
	t.Helper()

	book, err := orderbook.NewBook(sub, orderbook.Params{
		MarkPrice:   d(mark),
		MinMargin:   d(minMargin),
		MaxLeverage: d(maxLeverage),
	})
	require.NoError(t, err)
	book.Clock = util.NewFixedClock(time.UnixMilli(1_700_000_000_000))
	return book
}

func limit(trader ids.TraderID, side orderbook.Side, price, size, leverage string) orderbook.Order {
	return orderbook.NewOrder(trader, d(price), d(size), side, orderbook.Limit, d(leverage))
}

func market(trader ids.TraderID, side orderbook.Side, price, size, leverage string) orderbook.Order {
	return orderbook.NewOrder(trader, d(price), d(size), side, orderbook.Market, d(leverage))
}

// place submits o with a margin comfortably above what it needs.
func place(t *testing.T, book *orderbook.Book, o orderbook.Order) []orderbook.Trade {
	t.Helper()
	trades, err := book.PlaceOrder(o, o.RequiredMargin().Mul(decimal.NewFromInt(2)))
	require.NoError(t, err)
	return trades
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, d(want).Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}
