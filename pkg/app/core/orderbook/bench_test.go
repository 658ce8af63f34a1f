package orderbook_test

import (
	"fmt"
	"testing"

	"github.com/uhyunpark/perpbook/pkg/app/core/ids"
	"github.com/uhyunpark/perpbook/pkg/app/core/orderbook"
)

// seedDepth rests 100 bid levels below 900 and 100 ask levels above 1100.
func seedDepth(b *testing.B, book *orderbook.Book) {
	b.Helper()
	maker := ids.TraderIDFromUint64(0xD)
	for i := 0; i < 100; i++ {
		bid := limit(maker, orderbook.Long, fmt.Sprint(900-i), "100", "10")
		ask := limit(maker, orderbook.Short, fmt.Sprint(1100+i), "100", "10")
		for _, o := range []orderbook.Order{bid, ask} {
			if _, err := book.PlaceOrder(o, o.RequiredMargin()); err != nil {
				b.Fatal(err)
			}
		}
	}
}

// BenchmarkPlaceOrder alternates a resting short and a long that fills it,
// so every other call runs a match with two position updates.
func BenchmarkPlaceOrder(b *testing.B) {
	for _, sc := range substrates {
		b.Run(sc.name, func(b *testing.B) {
			book := newTestBookOn(b, sc.open(b), "1000", "1", "20")
			seedDepth(b, book)

			short := limit(traderA, orderbook.Short, "1000", "1", "10")
			long := limit(traderB, orderbook.Long, "1000", "1", "10")
			margin := short.RequiredMargin()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				o := short
				if i%2 == 1 {
					o = long
				}
				if _, err := book.PlaceOrder(o, margin); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkCancelOrder rests one bid per iteration and times only its cancel.
func BenchmarkCancelOrder(b *testing.B) {
	for _, sc := range substrates {
		b.Run(sc.name, func(b *testing.B) {
			book := newTestBookOn(b, sc.open(b), "1000", "1", "20")

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				b.StopTimer()
				o := limit(traderA, orderbook.Long, fmt.Sprint(1+i%1000), "1", "1")
				if _, err := book.PlaceOrder(o, o.RequiredMargin()); err != nil {
					b.Fatal(err)
				}
				id := book.State().NextID - 1
				b.StartTimer()

				if _, err := book.CancelOrder(id); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
