package chunker

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	boxochunker "github.com/ipfs/boxo/chunker"

	"github.com/i5heu/stripestore/pkg/model"
)

// Chunker splits a stream of data into fixed-width blocks.
type Chunker interface {
	// Next returns the next block of data.
	// It returns io.EOF when there are no more blocks.
	Next() (model.Block, error)
}

// NewChunker creates a Chunker that cuts r into blocks of exactly width
// bytes using the size splitter from boxo/chunker. The final short group is
// right-padded with zero bytes.
func NewChunker(r io.Reader, width int) Chunker {
	return &boxoChunkerWrapper{
		splitter: boxochunker.NewSizeSplitter(r, int64(width)),
		width:    width,
	}
}

type boxoChunkerWrapper struct {
	splitter boxochunker.Splitter
	width    int
}

func (c *boxoChunkerWrapper) Next() (model.Block, error) {
	data, err := c.splitter.NextBytes()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, io.EOF
	}

	// the splitter may hand out pooled buffers
	block := make(model.Block, c.width)
	copy(block, data)
	return block, nil
}

// Split cuts message into consecutive blocks of width bytes. A final group
// shorter than width is padded with zero bytes, so a one byte message still
// yields one block.
func Split(message []byte, width int) ([]model.Block, error) {
	if width < 1 {
		return nil, fmt.Errorf("%w: block width must be > 0, got %d", model.ErrInvalidInput, width)
	}
	if len(message) == 0 {
		return nil, fmt.Errorf("%w: empty message", model.ErrInvalidInput)
	}

	c := NewChunker(bytes.NewReader(message), width)
	blocks := make([]model.Block, 0, (len(message)+width-1)/width)
	for {
		block, err := c.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("chunker: split message: %w", err)
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

// Join concatenates blocks and strips trailing zero padding. Holes are
// skipped.
func Join(blocks []model.Block) []byte {
	var buf bytes.Buffer
	for _, b := range blocks {
		buf.Write(b)
	}
	return bytes.TrimRight(buf.Bytes(), "\x00")
}
