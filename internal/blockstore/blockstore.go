// Package blockstore provides the per-disk block store of stripestore.
package blockstore

import (
	"log/slog"
	"sync"

	journals "github.com/i5heu/stripestore/internal/wal"
	"github.com/i5heu/stripestore/pkg/logging"
	"github.com/i5heu/stripestore/pkg/model"
	"github.com/i5heu/stripestore/pkg/wal"
)

// Disk is one identified backing store: an ordered, growable sequence of
// blocks addressed by flat offset. Positions never written or erased are
// holes. Every mutation is mirrored to the disk's journal; reads only use
// the in-memory sequence.
type Disk struct {
	mu      sync.RWMutex
	id      string
	blocks  []model.Block
	journal wal.Journal
	log     *slog.Logger

	reads  uint64
	writes uint64
	erases uint64
}

// DiskStats is a snapshot of a disk's counters.
type DiskStats struct {
	ID     string
	Length int
	Holes  int
	Reads  uint64
	Writes uint64
	Erases uint64
}

// NewDisk creates an empty disk. A nil journal drops records; a nil logger
// uses logging.Logger.
func NewDisk(id string, journal wal.Journal, log *slog.Logger) *Disk {
	if journal == nil {
		journal = journals.Discard
	}
	if log == nil {
		log = logging.Logger
	}
	return &Disk{
		id:      id,
		journal: journal,
		log:     log,
	}
}

// ID returns the disk identity, e.g. "disk0".
func (d *Disk) ID() string {
	return d.id
}

// Len returns the current length of the block sequence, holes included.
func (d *Disk) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.blocks)
}

// WriteBlock stores block at offset, growing the sequence with holes when
// offset lies beyond its end. WriteBlock never fails: a journal error is
// logged and the in-memory write stands.
func (d *Disk) WriteBlock(block model.Block, offset int) {
	if offset < 0 {
		d.log.Error("write at negative offset ignored", "disk", d.id, "offset", offset)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.extend(offset)
	d.blocks[offset] = block.Clone()
	d.writes++

	d.append(wal.Record{Op: wal.OpWrite, Offset: offset, Block: block})
}

// ReadBlock returns a copy of the block at offset, or nil when offset is
// outside the sequence or the position is a hole.
func (d *Disk) ReadBlock(offset int) model.Block {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.reads++
	if offset < 0 || offset >= len(d.blocks) {
		return nil
	}
	return d.blocks[offset].Clone()
}

// EraseBlock turns the position at offset into a hole. The length of the
// sequence does not change; offsets beyond it are ignored.
func (d *Disk) EraseBlock(offset int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if offset < 0 || offset >= len(d.blocks) {
		return
	}
	d.blocks[offset] = nil
	d.erases++

	d.append(wal.Record{Op: wal.OpErase, Offset: offset})
}

// Restore applies journal records to the in-memory sequence without
// journaling them again.
func (d *Disk) Restore(records []wal.Record) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, rec := range records {
		if rec.Offset < 0 {
			continue
		}
		switch rec.Op {
		case wal.OpWrite:
			d.extend(rec.Offset)
			d.blocks[rec.Offset] = rec.Block.Clone()
		case wal.OpErase:
			if rec.Offset < len(d.blocks) {
				d.blocks[rec.Offset] = nil
			}
		}
	}

	d.log.Debug("disk restored from journal",
		"disk", d.id,
		"records", len(records),
		"length", len(d.blocks))
}

// Stats returns a snapshot of the disk's counters.
func (d *Disk) Stats() DiskStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	holes := 0
	for _, b := range d.blocks {
		if b.IsHole() {
			holes++
		}
	}
	return DiskStats{
		ID:     d.id,
		Length: len(d.blocks),
		Holes:  holes,
		Reads:  d.reads,
		Writes: d.writes,
		Erases: d.erases,
	}
}

// Journal returns the disk's journal.
func (d *Disk) Journal() wal.Journal {
	return d.journal
}

// Close closes the disk's journal.
func (d *Disk) Close() error {
	return d.journal.Close()
}

// extend grows the sequence with holes up to and including offset.
// Caller holds d.mu.
func (d *Disk) extend(offset int) {
	for len(d.blocks) <= offset {
		d.blocks = append(d.blocks, nil)
	}
}

// append mirrors rec to the journal. Caller holds d.mu.
func (d *Disk) append(rec wal.Record) {
	if err := d.journal.Append(rec); err != nil {
		d.log.Error("journal append failed",
			"disk", d.id,
			"op", rec.Op.String(),
			"offset", rec.Offset,
			"error", err)
	}
}
