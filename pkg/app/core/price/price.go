// Package price canonicalizes prices into fixed-precision keys.
//
// A Key is the price rounded to Decimals places and expressed as an integer
// count of 1e-8 units, so keys compare numerically with plain integer
// comparison. Bytes() yields an encoding whose byte order matches that
// numeric order, which is what ordered key-value stores need.
package price

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Decimals is the number of decimal places kept by the codec.
const Decimals = 8

// KeySize is the length of the encoded key in bytes.
const KeySize = 8

// Key is a canonical price: the price in units of 10^-Decimals.
type Key int64

var (
	// Max is the largest price representable as a Key.
	Max = decimal.New(math.MaxInt64, -Decimals)

	scale = decimal.New(1, Decimals)
)

// Normalize rounds d to Decimals places (half away from zero).
func Normalize(d decimal.Decimal) decimal.Decimal {
	return d.Round(Decimals)
}

// Valid reports whether d is positive after rounding and fits in a Key.
func Valid(d decimal.Decimal) bool {
	n := Normalize(d)
	return n.IsPositive() && n.LessThanOrEqual(Max)
}

// KeyOf returns the canonical key for d. Prices that round to the same
// value produce identical keys. d must satisfy Valid.
func KeyOf(d decimal.Decimal) Key {
	return Key(Normalize(d).Mul(scale).IntPart())
}

// FromFloat converts a float price into its canonical decimal form.
func FromFloat(f float64) decimal.Decimal {
	return Normalize(decimal.NewFromFloat(f))
}

// Decimal decodes the key back into a price.
func (k Key) Decimal() decimal.Decimal {
	return decimal.New(int64(k), -Decimals)
}

// Compare returns -1, 0 or +1.
func (k Key) Compare(other Key) int {
	switch {
	case k < other:
		return -1
	case k > other:
		return 1
	default:
		return 0
	}
}

func (k Key) String() string { return k.Decimal().String() }

// Bytes encodes the key big-endian with the sign bit flipped, so that
// bytes.Compare on encoded keys agrees with numeric order.
func (k Key) Bytes() []byte {
	var b [KeySize]byte
	binary.BigEndian.PutUint64(b[:], uint64(k)^(1<<63))
	return b[:]
}

// KeyFromBytes is the inverse of Key.Bytes.
func KeyFromBytes(b []byte) (Key, error) {
	if len(b) != KeySize {
		return 0, fmt.Errorf("invalid price key length: %d", len(b))
	}
	return Key(binary.BigEndian.Uint64(b) ^ (1 << 63)), nil
}
