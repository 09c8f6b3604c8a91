package stripestore

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/i5heu/stripestore/pkg/model"
)

// Layout selects how the blocks of a stripe are placed on the disks.
type Layout string

const (
	// LayoutMirror writes the full stripe to every disk.
	LayoutMirror Layout = "mirror"
	// LayoutStripe writes stripe block i to disk i only.
	LayoutStripe Layout = "stripe"
)

// ParseLayout maps a layout name onto a Layout. The empty name selects
// LayoutMirror.
func ParseLayout(name string) (Layout, error) {
	switch Layout(strings.ToLower(strings.TrimSpace(name))) {
	case "", LayoutMirror:
		return LayoutMirror, nil
	case LayoutStripe:
		return LayoutStripe, nil
	}
	return "", fmt.Errorf("%w: unknown layout %q", model.ErrInvalidInput, name)
}

// Defaults of the stock protocol: 14 byte messages in 2 byte blocks give 7
// data blocks plus parity, one stripe block per disk over 8 disks, and 64
// addresses.
const (
	DefaultDisks       = 8
	DefaultMessageSize = 14
	DefaultAddresses   = 64
)

// Config configures a Store. Zero values select the defaults above.
type Config struct {
	// Disks is the number of backing disks. It must equal the stripe width,
	// the number of data blocks of a message plus one.
	Disks int
	// MessageSize is the exact byte length every written message must have.
	MessageSize int
	// BlockWidth is the number of message bytes per block.
	BlockWidth int
	// Addresses is the number of stripe slots; valid addresses are
	// [0, Addresses).
	Addresses int
	// Layout selects mirror or stripe placement.
	Layout Layout

	// TextJournalDir, when set, receives one <diskID>.txt mirror per disk.
	TextJournalDir string
	// BadgerDir, when set, holds the replayable journal of every disk.
	BadgerDir string
	// Replay rebuilds the disks from the badger journal in New.
	Replay bool
	// MinimumFreeGB is a free-space threshold checked on the journal
	// directories. Zero disables the check.
	MinimumFreeGB int

	// Logger is an optional structured logger. If nil, logging.Logger is used.
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.Disks == 0 {
		c.Disks = DefaultDisks
	}
	if c.MessageSize == 0 {
		c.MessageSize = DefaultMessageSize
	}
	if c.BlockWidth == 0 {
		c.BlockWidth = model.DefaultBlockWidth
	}
	if c.Addresses == 0 {
		c.Addresses = DefaultAddresses
	}
	if c.Layout == "" {
		c.Layout = LayoutMirror
	}
}

// DataBlocks returns the number of data blocks one message splits into.
func (c Config) DataBlocks() int {
	if c.BlockWidth <= 0 {
		return 0
	}
	return (c.MessageSize + c.BlockWidth - 1) / c.BlockWidth
}

// StripeWidth returns the number of blocks per stripe, parity included.
func (c Config) StripeWidth() int {
	return c.DataBlocks() + 1
}

func (c Config) validate() error {
	if c.MessageSize < 1 || c.BlockWidth < 1 || c.Addresses < 1 {
		return fmt.Errorf("%w: message size, block width and addresses must be positive", model.ErrInvalidInput)
	}
	if _, err := ParseLayout(string(c.Layout)); err != nil {
		return err
	}
	if c.Disks != c.StripeWidth() {
		return fmt.Errorf("%w: %d disks for a stripe width of %d", model.ErrInvalidInput, c.Disks, c.StripeWidth())
	}
	return nil
}
