// Package mempool queues raw command lines between producers and the
// applier and releases them in a fixed priority order.
package mempool

import (
	"encoding/json"
	"sync"
)

// TxType classifies commands into ordering buckets.
type TxType int

const (
	TxNonOrder TxType = iota // create, mark, funding
	TxCancel
	TxOrder
)

// ClassifyRaw classifies a raw command by its JSON "op" field:
//
//	{"op":"cancel", ...}                   -> TxCancel
//	{"op":"create"|"mark"|"funding", ...}  -> TxNonOrder
//
// Orders, unknown ops and malformed lines fall into TxOrder so that the
// applier sees and rejects them in arrival order.
func ClassifyRaw(b []byte) TxType {
	if len(b) == 0 || b[0] != '{' {
		return TxOrder
	}

	var envelope struct {
		Op string `json:"op"`
	}
	if err := json.Unmarshal(b, &envelope); err != nil {
		return TxOrder
	}

	switch envelope.Op {
	case "cancel":
		return TxCancel
	case "create", "mark", "funding":
		return TxNonOrder
	default:
		return TxOrder
	}
}

// Mempool maintains three FIFO queues: (1) non-order, (2) cancel, (3) orders.
// Book setup and risk ticks therefore land before cancels, and cancels before
// the orders queued alongside them.
type Mempool struct {
	mu       sync.Mutex
	nonOrder [][]byte
	cancel   [][]byte
	orders   [][]byte
}

func NewMempool() *Mempool {
	return &Mempool{}
}

// PushRaw classifies and enqueues a copy of b.
func (m *Mempool) PushRaw(b []byte) {
	cp := append([]byte(nil), b...)
	m.mu.Lock()
	defer m.mu.Unlock()
	switch ClassifyRaw(b) {
	case TxNonOrder:
		m.nonOrder = append(m.nonOrder, cp)
	case TxCancel:
		m.cancel = append(m.cancel, cp)
	default:
		m.orders = append(m.orders, cp)
	}
}

// Select removes and returns up to maxBytes worth of commands in priority
// order. maxBytes <= 0 takes everything.
func (m *Mempool) Select(maxBytes int64) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out [][]byte
	var used int64
	full := false

	pull := func(q *[][]byte) {
		for len(*q) > 0 && !full {
			tx := (*q)[0]
			n := int64(len(tx))
			if maxBytes > 0 && used+n > maxBytes {
				full = true
				return
			}
			out = append(out, tx)
			used += n
			*q = (*q)[1:]
		}
	}

	pull(&m.nonOrder)
	pull(&m.cancel)
	pull(&m.orders)

	return out
}

// Len returns total pending commands.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nonOrder) + len(m.cancel) + len(m.orders)
}
