// Package bitfield implements the peer-protocol bitfield: a bit-per-piece
// map, MSB-first within each byte, as sent in the BEP 3 "bitfield" message
// and used locally to track which pieces this client has.
package bitfield

import (
	"github.com/willf/bitset"
)

// Bitfield is a fixed-length, MSB-first bit-per-piece map.
type Bitfield struct {
	set *bitset.BitSet
	len uint32
}

// New returns a Bitfield with n bits, all clear.
func New(n uint32) *Bitfield {
	return &Bitfield{set: bitset.New(uint(n)), len: n}
}

// NewBytes builds a Bitfield from the wire representation (MSB-first per
// byte), validating its length against the expected piece count. The
// number of bytes must equal ceil(n/8); excess high bits in the last byte
// must be zero, mirroring real clients' validation of peer-sent bitfields.
func NewBytes(b []byte, n uint32) (*Bitfield, error) {
	if uint32(len(b)) != numBytes(n) {
		return nil, errInvalidLength{got: len(b), want: int(numBytes(n))}
	}
	if n%8 != 0 && len(b) > 0 {
		mask := byte(0xff) >> (n % 8)
		if b[len(b)-1]&mask != 0 {
			return nil, errSpareBits{}
		}
	}
	bf := New(n)
	for i := uint32(0); i < n; i++ {
		byteIndex := i / 8
		bitIndex := 7 - (i % 8)
		if b[byteIndex]&(1<<bitIndex) != 0 {
			bf.Set(i)
		}
	}
	return bf, nil
}

type errInvalidLength struct{ got, want int }

func (e errInvalidLength) Error() string {
	return "bitfield: invalid length"
}

type errSpareBits struct{}

func (e errSpareBits) Error() string {
	return "bitfield: spare bits in last byte are not zero"
}

func numBytes(n uint32) uint32 {
	return (n + 7) / 8
}

// Len returns the number of bits (pieces) tracked.
func (bf *Bitfield) Len() uint32 { return bf.len }

// Set marks bit i as present.
func (bf *Bitfield) Set(i uint32) { bf.set.Set(uint(i)) }

// Clear marks bit i as absent.
func (bf *Bitfield) Clear(i uint32) { bf.set.Clear(uint(i)) }

// Test reports whether bit i is set.
func (bf *Bitfield) Test(i uint32) bool { return bf.set.Test(uint(i)) }

// All reports whether every bit is set.
func (bf *Bitfield) All() bool {
	return bf.set.Count() == uint(bf.len)
}

// Count returns the number of set bits.
func (bf *Bitfield) Count() uint32 { return uint32(bf.set.Count()) }

// Bytes renders the bitfield in MSB-first wire form, ceil(len/8) bytes.
func (bf *Bitfield) Bytes() []byte {
	out := make([]byte, numBytes(bf.len))
	for i := uint32(0); i < bf.len; i++ {
		if bf.Test(i) {
			byteIndex := i / 8
			bitIndex := 7 - (i % 8)
			out[byteIndex] |= 1 << bitIndex
		}
	}
	return out
}
