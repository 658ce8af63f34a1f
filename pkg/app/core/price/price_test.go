package price

import (
	"bytes"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyOfRounds(t *testing.T) {
	tests := []struct {
		in   string
		want Key
	}{
		{"1", 100_000_000},
		{"100.5", 10_050_000_000},
		{"0.00000001", 1},
		{"0.000000014", 1},
		{"0.000000015", 2}, // half away from zero
		{"99.999999999", 10_000_000_000},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, KeyOf(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestEqualAfterRoundingSameKey(t *testing.T) {
	a := KeyOf(decimal.RequireFromString("100.000000001"))
	b := KeyOf(decimal.RequireFromString("100"))
	assert.Equal(t, a, b)
	assert.Equal(t, 0, a.Compare(b))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(decimal.RequireFromString("0.00000001")))
	assert.True(t, Valid(Max))
	assert.False(t, Valid(decimal.Zero))
	assert.False(t, Valid(decimal.RequireFromString("-1")))
	assert.False(t, Valid(decimal.RequireFromString("0.000000004")))
	assert.False(t, Valid(Max.Add(decimal.New(1, -Decimals))))
}

func TestDecimalRoundTrip(t *testing.T) {
	for _, s := range []string{"1", "0.5", "12345.6789", "0.00000001"} {
		d := decimal.RequireFromString(s)
		assert.True(t, d.Equal(KeyOf(d).Decimal()), s)
	}
	assert.Equal(t, "101.25", KeyOf(decimal.RequireFromString("101.25")).String())
}

// TestBytesPreserveOrder: sorting encoded keys as bytes gives numeric order,
// including across digit-count boundaries where string order breaks.
func TestBytesPreserveOrder(t *testing.T) {
	keys := []Key{KeyOf(decimal.RequireFromString("10")), 1, -5, 0, KeyOf(decimal.RequireFromString("9.5")), 1 << 40, -1 << 40}
	encoded := make([][]byte, len(keys))
	for i, k := range keys {
		encoded[i] = k.Bytes()
		require.Len(t, encoded[i], KeySize)
	}

	sort.Slice(encoded, func(i, j int) bool { return bytes.Compare(encoded[i], encoded[j]) < 0 })
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for i := range keys {
		got, err := KeyFromBytes(encoded[i])
		require.NoError(t, err)
		assert.Equal(t, keys[i], got)
	}

	_, err := KeyFromBytes([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestFromFloat(t *testing.T) {
	assert.True(t, decimal.RequireFromString("0.1").Equal(FromFloat(0.1)))
	assert.Equal(t, KeyOf(decimal.RequireFromString("100.1")), KeyOf(FromFloat(100.1)))
}
