package model

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// DefaultBlockWidth is the number of message bytes carried by one Block.
const DefaultBlockWidth = 2

// Block is the fixed-width unit of data stored on a disk.
//
// A Block holds exactly the configured block width of raw bytes. Two
// characters of a message map onto one Block with the default width.
//
// # Holes
//
// A nil Block is a hole: a position that was never written or that was
// erased. Holes travel through the read path unchanged and are only turned
// into zero-valued proxies by the parity codec.
//
// # Wire Form
//
// On the journal a Block is written as uppercase hexadecimal, two
// characters per byte, so the encoded width never varies for one store.
//
// # Numeric Value
//
// Where the parity rules speak of the value of a block (for example the
// placeholder value 0x01), the Block is read as a big-endian unsigned
// integer of its bytes.
type Block []byte

// IsHole reports whether b marks a position with no stored data.
func (b Block) IsHole() bool {
	return b == nil
}

// Width returns the number of bytes in b. Holes have width zero.
func (b Block) Width() int {
	return len(b)
}

// Clone returns a copy of b that shares no memory with it. Holes stay holes.
func (b Block) Clone() Block {
	if b == nil {
		return nil
	}
	out := make(Block, len(b))
	copy(out, b)
	return out
}

// Equal reports whether a and b hold the same bytes. A hole only equals a
// hole.
func (b Block) Equal(other Block) bool {
	if b.IsHole() || other.IsHole() {
		return b.IsHole() && other.IsHole()
	}
	return bytes.Equal(b, other)
}

// Hex returns the journal form of b. Holes encode as the empty string.
func (b Block) Hex() string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// String implements fmt.Stringer.
func (b Block) String() string {
	if b.IsHole() {
		return "<hole>"
	}
	return b.Hex()
}

// ParseHex decodes the journal form of a block. Both cases are accepted.
func ParseHex(s string) (Block, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: block %q: %v", ErrInvalidInput, s, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty block", ErrInvalidInput)
	}
	return Block(raw), nil
}

// ZeroBlock returns a block of the given width with every byte set to zero.
func ZeroBlock(width int) Block {
	return make(Block, width)
}
