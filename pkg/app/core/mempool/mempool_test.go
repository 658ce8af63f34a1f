package mempool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyRaw(t *testing.T) {
	tests := []struct {
		name     string
		tx       string
		expected TxType
	}{
		{"order", `{"op":"order","instrument":"0x42544300"}`, TxOrder},
		{"cancel", `{"op":"cancel","order_id":3}`, TxCancel},
		{"create", `{"op":"create","price":"100"}`, TxNonOrder},
		{"mark", `{"op":"mark","price":"90"}`, TxNonOrder},
		{"funding", `{"op":"funding"}`, TxNonOrder},
		{"unknown op", `{"op":"teleport"}`, TxOrder},
		{"invalid JSON", `{"op": "cancel"`, TxOrder},
		{"not JSON", "C:BTC:1", TxOrder},
		{"empty", "", TxOrder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyRaw([]byte(tt.tx)))
		})
	}
}

func TestSelectOrdering(t *testing.T) {
	m := NewMempool()

	order1 := `{"op":"order","size":"1"}`
	order2 := `{"op":"order","size":"2"}`
	cancel1 := `{"op":"cancel","order_id":1}`
	mark := `{"op":"mark","price":"90"}`
	cancel2 := `{"op":"cancel","order_id":2}`

	for _, tx := range []string{order1, cancel1, order2, mark, cancel2} {
		m.PushRaw([]byte(tx))
	}
	assert.Equal(t, 5, m.Len())

	var got []string
	for _, tx := range m.Select(0) {
		got = append(got, string(tx))
	}
	assert.Equal(t, []string{mark, cancel1, cancel2, order1, order2}, got)
	assert.Equal(t, 0, m.Len())
}

func TestSelectMaxBytes(t *testing.T) {
	m := NewMempool()
	big := `{"op":"cancel","order_id":1000000}`
	small := `{"op":"order"}`
	m.PushRaw([]byte(big))
	m.PushRaw([]byte(small))

	// the cancel does not fit; nothing behind it is taken either
	out := m.Select(int64(len(big) - 1))
	assert.Empty(t, out)
	assert.Equal(t, 2, m.Len())

	out = m.Select(int64(len(big)))
	assert.Len(t, out, 1)
	assert.Equal(t, big, string(out[0]))
	assert.Equal(t, 1, m.Len())
}

func TestPushCopiesInput(t *testing.T) {
	m := NewMempool()
	buf := []byte(`{"op":"funding"}`)
	m.PushRaw(buf)
	buf[2] = 'X'

	out := m.Select(0)
	assert.Equal(t, `{"op":"funding"}`, string(out[0]))
}
