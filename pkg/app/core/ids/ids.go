// Package ids defines the fixed-width opaque identifiers used by the engine.
// Both identifiers render as 0x-prefixed hex and round-trip through JSON and text.
package ids

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// TraderID identifies a trader (8 bytes).
type TraderID [8]byte

// InstrumentID identifies a traded instrument (4 bytes).
type InstrumentID [4]byte

// TraderIDFromUint64 builds a TraderID from its big-endian integer form.
func TraderIDFromUint64(n uint64) TraderID {
	var t TraderID
	binary.BigEndian.PutUint64(t[:], n)
	return t
}

// Uint64 returns the big-endian integer form of the id.
func (t TraderID) Uint64() uint64 { return binary.BigEndian.Uint64(t[:]) }

func (t TraderID) String() string { return hexutil.Encode(t[:]) }

func (t TraderID) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TraderID) UnmarshalText(b []byte) error {
	parsed, err := ParseTraderID(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTraderID decodes a hex trader id, with or without the 0x prefix.
func ParseTraderID(s string) (TraderID, error) {
	var t TraderID
	if err := decodeFixed(s, t[:]); err != nil {
		return TraderID{}, fmt.Errorf("invalid trader id %q: %w", s, err)
	}
	return t, nil
}

// InstrumentIDFromString packs up to four ASCII characters into an id,
// e.g. "BTC" -> 0x42544300.
func InstrumentIDFromString(sym string) InstrumentID {
	var id InstrumentID
	copy(id[:], sym)
	return id
}

func (i InstrumentID) String() string { return hexutil.Encode(i[:]) }

func (i InstrumentID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

func (i *InstrumentID) UnmarshalText(b []byte) error {
	parsed, err := ParseInstrumentID(string(b))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// SortInstruments sorts s in byte order.
func SortInstruments(s []InstrumentID) {
	sort.Slice(s, func(i, j int) bool { return bytes.Compare(s[i][:], s[j][:]) < 0 })
}

// ParseInstrumentID decodes a hex instrument id, with or without the 0x prefix.
func ParseInstrumentID(s string) (InstrumentID, error) {
	var id InstrumentID
	if err := decodeFixed(s, id[:]); err != nil {
		return InstrumentID{}, fmt.Errorf("invalid instrument id %q: %w", s, err)
	}
	return id, nil
}

func decodeFixed(s string, dst []byte) error {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return err
	}
	if len(b) != len(dst) {
		return fmt.Errorf("want %d bytes, got %d", len(dst), len(b))
	}
	copy(dst, b)
	return nil
}
