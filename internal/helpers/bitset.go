package helpers

import (
	"bytes"
	"math/bits"
	"strings"
)

// Each entry point gets one bit. A module's bit set says which entry points
// can reach it through static imports, and two modules with equal bit sets
// belong in the same chunk.
type BitSet struct {
	entries []byte
}

func NewBitSet(bitCount uint) BitSet {
	return BitSet{make([]byte, (bitCount+7)/8)}
}

func (bs BitSet) HasBit(bit uint) bool {
	return (bs.entries[bit/8] & (1 << (bit & 7))) != 0
}

func (bs BitSet) SetBit(bit uint) {
	bs.entries[bit/8] |= 1 << (bit & 7)
}

func (bs BitSet) Equals(other BitSet) bool {
	return bytes.Equal(bs.entries, other.entries)
}

func (bs BitSet) Clone() BitSet {
	return BitSet{append([]byte{}, bs.entries...)}
}

// Both sets must have been created with the same bit count
func (bs BitSet) Union(other BitSet) {
	for i, b := range other.entries {
		bs.entries[i] |= b
	}
}

func (bs BitSet) IsEmpty() bool {
	for _, b := range bs.entries {
		if b != 0 {
			return false
		}
	}
	return true
}

func (bs BitSet) Count() int {
	count := 0
	for _, b := range bs.entries {
		count += bits.OnesCount8(b)
	}
	return count
}

func (bs BitSet) SymmetricDifferenceCount(other BitSet) int {
	count := 0
	for i, b := range bs.entries {
		count += bits.OnesCount8(b ^ other.entries[i])
	}
	return count
}

// Returns the indices of the set bits in ascending order
func (bs BitSet) Ones() []uint {
	var ones []uint
	for i, b := range bs.entries {
		for b != 0 {
			bit := uint(bits.TrailingZeros8(b))
			ones = append(ones, uint(i)*8+bit)
			b &= b - 1
		}
	}
	return ones
}

// Use this as a map key. It's not meant to be readable.
func (bs BitSet) String() string {
	return string(bs.entries)
}

// Renders the set for debugging as a string of zeros and ones, with the bit
// for the first entry point on the left
func (bs BitSet) Bits() string {
	sb := strings.Builder{}
	for bit := uint(0); bit < uint(len(bs.entries))*8; bit++ {
		if bs.HasBit(bit) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}
