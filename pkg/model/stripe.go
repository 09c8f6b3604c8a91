package model

// Stripe is the on-disk layout unit for one logical address.
//
// A Stripe is the ordered sequence
//
//	[data_0 … data_{k-1}, parity]
//
// with exactly one parity block, always last. The parity block is the XOR
// of all data blocks, with the placeholder block folded in when k is odd.
// The width of a stripe is therefore always k+1 regardless of the parity
// of k.
//
// # Offsets
//
// Block i of the stripe at address a lives at the flat disk offset
//
//	a*width + i
//
// Write, read and erase all use this single mapping.
type Stripe []Block

// Width returns the number of blocks in s, parity included.
func (s Stripe) Width() int {
	return len(s)
}

// Data returns the data blocks of s (everything except the trailing parity).
func (s Stripe) Data() []Block {
	if len(s) == 0 {
		return nil
	}
	return s[:len(s)-1]
}

// Parity returns the trailing parity block of s, or nil for an empty stripe.
func (s Stripe) Parity() Block {
	if len(s) == 0 {
		return nil
	}
	return s[len(s)-1]
}

// Holes returns the indices of s that hold no data.
func (s Stripe) Holes() []int {
	var holes []int
	for i, b := range s {
		if b.IsHole() {
			holes = append(holes, i)
		}
	}
	return holes
}

// Clone returns a deep copy of s.
func (s Stripe) Clone() Stripe {
	if s == nil {
		return nil
	}
	out := make(Stripe, len(s))
	for i, b := range s {
		out[i] = b.Clone()
	}
	return out
}

// Offset maps a stripe-relative block index onto a flat disk offset.
func Offset(address, width, index int) int {
	return address*width + index
}
