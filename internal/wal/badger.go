package wal

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/i5heu/stripestore/pkg/model"
	"github.com/i5heu/stripestore/pkg/wal"
)

const prefixJournal = "journal:"

// record field numbers on the wire
const (
	fieldOp     protowire.Number = 1
	fieldOffset protowire.Number = 2
	fieldBlock  protowire.Number = 3
)

// BadgerJournal keeps the records of one disk in a shared BadgerDB. Keys
// are journal:<diskID>:<seq> with a big-endian sequence number, so prefix
// iteration yields append order. The sequence resumes after a reopen.
type BadgerJournal struct {
	mu     sync.Mutex
	db     *badger.DB
	prefix []byte
	seq    uint64
}

// NewBadgerJournal opens the journal of diskID in db. The db stays owned by
// the caller; Close does not close it.
func NewBadgerJournal(db *badger.DB, diskID string) (*BadgerJournal, error) {
	j := &BadgerJournal{
		db:     db,
		prefix: []byte(prefixJournal + diskID + ":"),
	}
	if err := j.loadSeq(); err != nil {
		return nil, fmt.Errorf("journal %s: %w", diskID, err)
	}
	return j, nil
}

func (j *BadgerJournal) loadSeq() error {
	return j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(j.prefix); it.ValidForPrefix(j.prefix); it.Next() {
			key := it.Item().Key()
			if len(key) != len(j.prefix)+8 {
				return fmt.Errorf("malformed journal key %q", key)
			}
			j.seq = binary.BigEndian.Uint64(key[len(j.prefix):]) + 1
		}
		return nil
	})
}

func (j *BadgerJournal) key(seq uint64) []byte {
	key := make([]byte, len(j.prefix)+8)
	copy(key, j.prefix)
	binary.BigEndian.PutUint64(key[len(j.prefix):], seq)
	return key
}

// Append persists rec under the next sequence number.
func (j *BadgerJournal) Append(rec wal.Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	key := j.key(j.seq)
	err := j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, encodeRecord(rec))
	})
	if err != nil {
		return fmt.Errorf("persist record: %w", err)
	}
	j.seq++
	return nil
}

// Records returns every record of the disk in append order.
func (j *BadgerJournal) Records() ([]wal.Record, error) {
	var records []wal.Record
	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(j.prefix); it.ValidForPrefix(j.prefix); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				rec, err := decodeRecord(v)
				if err != nil {
					return err
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return records, nil
}

// Len returns the number of records appended so far.
func (j *BadgerJournal) Len() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq
}

// Close is a no-op; the BadgerDB belongs to the caller.
func (j *BadgerJournal) Close() error {
	return nil
}

func encodeRecord(rec wal.Record) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldOp, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(rec.Op))
	b = protowire.AppendTag(b, fieldOffset, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(rec.Offset))
	if rec.Block != nil {
		b = protowire.AppendTag(b, fieldBlock, protowire.BytesType)
		b = protowire.AppendBytes(b, rec.Block)
	}
	return b
}

func decodeRecord(b []byte) (wal.Record, error) {
	var rec wal.Record
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return wal.Record{}, fmt.Errorf("decode record tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldOp && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return wal.Record{}, fmt.Errorf("decode op: %w", protowire.ParseError(n))
			}
			rec.Op = wal.Op(v)
			b = b[n:]
		case num == fieldOffset && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return wal.Record{}, fmt.Errorf("decode offset: %w", protowire.ParseError(n))
			}
			rec.Offset = int(v)
			b = b[n:]
		case num == fieldBlock && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return wal.Record{}, fmt.Errorf("decode block: %w", protowire.ParseError(n))
			}
			rec.Block = model.Block(v).Clone()
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return wal.Record{}, fmt.Errorf("skip field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if rec.Op != wal.OpWrite && rec.Op != wal.OpErase {
		return wal.Record{}, fmt.Errorf("unknown journal op %d", rec.Op)
	}
	return rec, nil
}

var (
	_ wal.Journal  = (*BadgerJournal)(nil)
	_ wal.Replayer = (*BadgerJournal)(nil)
)
