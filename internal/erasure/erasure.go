package erasure

import (
	"errors"
	"fmt"

	"github.com/i5heu/stripestore/internal/chunker"
	"github.com/i5heu/stripestore/pkg/model"
	rs "github.com/klauspost/reedsolomon"
)

// Decoded is the outcome of decoding one stripe.
type Decoded struct {
	// Data is the concatenated data blocks with trailing zero padding
	// stripped.
	Data []byte
	// Mismatch is set when the stored parity did not match the parity
	// recomputed from the data blocks.
	Mismatch bool
	// Recovered lists the data positions that were rebuilt from parity.
	Recovered []int
}

// Placeholder returns the block of integer value 1 that is folded into the
// parity of stripes with an odd number of data blocks.
func Placeholder(width int) model.Block {
	b := model.ZeroBlock(width)
	if width > 0 {
		b[width-1] = 0x01
	}
	return b
}

// Xor folds blocks with bitwise XOR. Holes are folded as zero-valued
// proxies; at least one block must carry data to fix the width.
func Xor(blocks ...model.Block) (model.Block, error) {
	if len(blocks) == 0 {
		return nil, fmt.Errorf("%w: xor over empty block sequence", model.ErrInvalidInput)
	}

	width := 0
	for _, b := range blocks {
		if !b.IsHole() {
			width = b.Width()
			break
		}
	}
	if width == 0 {
		return nil, fmt.Errorf("%w: xor over holes only", model.ErrInvalidInput)
	}
	return fold(width, blocks)
}

func fold(width int, blocks []model.Block) (model.Block, error) {
	out := model.ZeroBlock(width)
	for i, b := range blocks {
		if b.IsHole() {
			continue
		}
		if b.Width() != width {
			return nil, fmt.Errorf("%w: block %d has width %d, want %d", model.ErrInvalidInput, i, b.Width(), width)
		}
		for j := range out {
			out[j] ^= b[j]
		}
	}
	return out, nil
}

// dataShards returns the number of encoder data shards for k data blocks:
// k, plus one for the placeholder when k is odd.
func dataShards(k int) int {
	if k%2 == 1 {
		return k + 1
	}
	return k
}

// newEncoder returns a single-parity encoder whose parity shard is the plain
// XOR of the data shards.
func newEncoder(k int) (rs.Encoder, error) {
	enc, err := rs.New(dataShards(k), 1, rs.WithFastOneParityMatrix())
	if err != nil {
		return nil, fmt.Errorf("erasure: new encoder: %w", err)
	}
	return enc, nil
}

// shards lays out data as encoder shards followed by the parity shard.
// Holes become zero blocks when zeroHoles is set and stay nil otherwise.
func shards(width int, data []model.Block, parity model.Block, zeroHoles bool) ([][]byte, error) {
	out := make([][]byte, 0, dataShards(len(data))+1)
	for i, b := range data {
		switch {
		case b.IsHole() && zeroHoles:
			b = model.ZeroBlock(width)
		case b.IsHole():
		case b.Width() != width:
			return nil, fmt.Errorf("%w: block %d has width %d, want %d", model.ErrInvalidInput, i, b.Width(), width)
		default:
			b = b.Clone()
		}
		out = append(out, b)
	}
	if len(data)%2 == 1 {
		out = append(out, Placeholder(width))
	}
	if parity.IsHole() && zeroHoles {
		parity = model.ZeroBlock(width)
	}
	if !parity.IsHole() && parity.Width() != width {
		return nil, fmt.Errorf("%w: parity has width %d, want %d", model.ErrInvalidInput, parity.Width(), width)
	}
	return append(out, parity.Clone()), nil
}

// EncodeStripe appends the parity block to data.
//
// With an even number of data blocks the parity is their XOR. With an odd
// number the placeholder block takes part in the parity as an extra data
// shard but is not stored, so the stripe is always k+1 wide. The asymmetry
// is part of the on-disk format.
func EncodeStripe(data []model.Block) (model.Stripe, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: stripe needs at least one data block", model.ErrInvalidInput)
	}
	for i, b := range data {
		if b.IsHole() {
			return nil, fmt.Errorf("%w: data block %d is a hole", model.ErrInvalidInput, i)
		}
	}

	width := data[0].Width()
	sh, err := shards(width, data, model.ZeroBlock(width), false)
	if err != nil {
		return nil, fmt.Errorf("erasure: encode stripe: %w", err)
	}
	enc, err := newEncoder(len(data))
	if err != nil {
		return nil, err
	}
	if err := enc.Encode(sh); err != nil {
		return nil, fmt.Errorf("erasure: encode shards: %w", err)
	}

	stripe := make(model.Stripe, 0, len(data)+1)
	for i := range data {
		stripe = append(stripe, model.Block(sh[i]))
	}
	return append(stripe, model.Block(sh[len(sh)-1])), nil
}

// calculated recomputes the parity over the data blocks of s, holes as zero.
func calculated(width int, s model.Stripe) (model.Block, error) {
	data := s.Data()
	if len(data)%2 == 1 {
		withPlaceholder := make([]model.Block, 0, len(data)+1)
		withPlaceholder = append(withPlaceholder, data...)
		data = append(withPlaceholder, Placeholder(width))
	}
	return fold(width, data)
}

func stripeWidth(s model.Stripe) (int, error) {
	if s.Width() < 2 {
		return 0, fmt.Errorf("%w: stripe of %d blocks has no data", model.ErrInvalidInput, s.Width())
	}
	for _, b := range s {
		if !b.IsHole() {
			return b.Width(), nil
		}
	}
	return 0, fmt.Errorf("%w: stripe holds holes only", model.ErrInvalidInput)
}

// Verify recomputes the parity of s and compares it with the stored one.
// Data holes count as zero blocks. A missing parity block never verifies.
func Verify(s model.Stripe) (bool, error) {
	width, err := stripeWidth(s)
	if err != nil {
		return false, err
	}
	if s.Parity().IsHole() {
		return false, nil
	}

	sh, err := shards(width, s.Data(), s.Parity(), true)
	if err != nil {
		return false, err
	}
	enc, err := newEncoder(len(s.Data()))
	if err != nil {
		return false, err
	}
	ok, err := enc.Verify(sh)
	if err != nil {
		return false, fmt.Errorf("erasure: verify shards: %w", err)
	}
	return ok, nil
}

// Recover fills every data hole of s with parity XOR calculated, where
// calculated is the parity recomputed with the holes as zero proxies.
//
// A single data hole under an intact parity block is rebuilt by the
// encoder. With two or more holes the same folded value goes into every
// hole; the result is defined but wrong. A missing parity block is folded
// as zero and the data positions come back as read.
func Recover(s model.Stripe) ([]model.Block, []int, error) {
	width, err := stripeWidth(s)
	if err != nil {
		return nil, nil, err
	}

	data := s.Data()
	var holes []int
	for i, b := range data {
		if b.IsHole() {
			holes = append(holes, i)
		}
	}

	if len(holes) == 1 && !s.Parity().IsHole() {
		out, err := reconstruct(width, s)
		if err != nil {
			return nil, nil, err
		}
		return out, holes, nil
	}

	calc, err := calculated(width, s)
	if err != nil {
		return nil, nil, err
	}
	fix, err := fold(width, []model.Block{s.Parity(), calc})
	if err != nil {
		return nil, nil, err
	}

	out := make([]model.Block, len(data))
	for i, b := range data {
		if b.IsHole() {
			out[i] = fix.Clone()
			continue
		}
		out[i] = b.Clone()
	}
	return out, holes, nil
}

func reconstruct(width int, s model.Stripe) ([]model.Block, error) {
	data := s.Data()
	sh, err := shards(width, data, s.Parity(), false)
	if err != nil {
		return nil, err
	}
	enc, err := newEncoder(len(data))
	if err != nil {
		return nil, err
	}
	if err := enc.ReconstructData(sh); err != nil {
		if errors.Is(err, rs.ErrTooFewShards) {
			return nil, fmt.Errorf("%w: %v", model.ErrInsufficientRedundancy, err)
		}
		return nil, fmt.Errorf("erasure: reconstruct: %w", err)
	}

	out := make([]model.Block, len(data))
	for i := range data {
		out[i] = model.Block(sh[i])
	}
	return out, nil
}

// DecodeStripe verifies s and returns its data. On a parity mismatch the
// stripe goes through Recover and the result is flagged.
func DecodeStripe(s model.Stripe) (Decoded, error) {
	ok, err := Verify(s)
	if err != nil {
		return Decoded{}, fmt.Errorf("erasure: verify: %w", err)
	}

	data, recovered, err := Recover(s)
	if err != nil {
		return Decoded{}, fmt.Errorf("erasure: recover: %w", err)
	}

	return Decoded{
		Data:      chunker.Join(data),
		Mismatch:  !ok,
		Recovered: recovered,
	}, nil
}
