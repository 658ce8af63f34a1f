package storage

import (
	"fmt"

	"github.com/uhyunpark/perpbook/pkg/app/core/ids"
	"github.com/uhyunpark/perpbook/pkg/app/core/orderbook"
	"github.com/uhyunpark/perpbook/pkg/app/core/price"
)

// Key schema for Pebble storage. Every book lives under its own instrument
// prefix, so instruments never share a key range:
//
//	state:{inst}               → orderbook.State
//	bid:{inst}:{price bytes}   → []orderbook.Order
//	ask:{inst}:{price bytes}   → []orderbook.Order
//	pos:{inst}:{trader bytes}  → account.Position
//	trade:{inst}:{tradeID}     → orderbook.Trade
//
// Price bytes are price.Key.Bytes(), whose byte order equals numeric order, so
// the lowest ask is the first key under ask: and the highest bid the last
// key under bid:. Trade ids are zero-padded (20 digits) for lexicographic
// sorting.
const (
	prefixState    = "state:"
	prefixBid      = "bid:"
	prefixAsk      = "ask:"
	prefixPosition = "pos:"
	prefixTrade    = "trade:"
)

// stateKey returns the key for a book's scalar state
func stateKey(inst ids.InstrumentID) []byte {
	return []byte(prefixState + inst.String())
}

// levelPrefix returns the prefix for all levels of one side of a book
// Format: "bid:{inst}:" or "ask:{inst}:"
func levelPrefix(inst ids.InstrumentID, side orderbook.Side) []byte {
	p := prefixAsk
	if side == orderbook.Long {
		p = prefixBid
	}
	return []byte(fmt.Sprintf("%s%s:", p, inst))
}

func levelKey(inst ids.InstrumentID, side orderbook.Side, key price.Key) []byte {
	return append(levelPrefix(inst, side), key.Bytes()...)
}

// positionPrefix returns the prefix for all positions of a book
// Format: "pos:{inst}:"
func positionPrefix(inst ids.InstrumentID) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixPosition, inst))
}

func positionKey(inst ids.InstrumentID, trader ids.TraderID) []byte {
	return append(positionPrefix(inst), trader[:]...)
}

// tradePrefix returns the prefix for a book's trade log
// Format: "trade:{inst}:"
func tradePrefix(inst ids.InstrumentID) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTrade, inst))
}

func tradeKey(inst ids.InstrumentID, tradeID uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", tradePrefix(inst), tradeID))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
