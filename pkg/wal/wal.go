// Package wal defines the append-only journal that mirrors disk mutations.
package wal

import (
	"fmt"

	"github.com/i5heu/stripestore/pkg/model"
)

// Op identifies the disk mutation a Record describes.
type Op uint8

const (
	// OpWrite stores Block at Offset.
	OpWrite Op = 1
	// OpErase punches a hole at Offset.
	OpErase Op = 2
)

func (o Op) String() string {
	switch o {
	case OpWrite:
		return "write"
	case OpErase:
		return "erase"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// Record is one journaled disk mutation.
type Record struct {
	Op     Op
	Offset int
	// Block is nil for OpErase.
	Block model.Block
}

// Journal is the append-only mirror of one disk.
//
// A Journal is written on every mutation of its disk. Reads never consult
// it; only replay on startup does, and only for journals that can be read
// back.
type Journal interface {
	// Append records one mutation.
	Append(rec Record) error

	// Close releases the journal's resources.
	Close() error
}

// Replayer is implemented by journals that can return their records.
type Replayer interface {
	// Records returns every record in append order.
	Records() ([]Record, error)
}
