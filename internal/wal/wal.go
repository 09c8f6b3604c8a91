// Package wal provides journal implementations for stripestore disks.
package wal

import (
	"errors"

	"github.com/i5heu/stripestore/pkg/wal"
)

// Discard is a journal that drops every record.
var Discard wal.Journal = discard{}

type discard struct{}

func (discard) Append(wal.Record) error { return nil }
func (discard) Close() error            { return nil }

// Tee fans every record out to all journals. Append and Close visit every
// journal and join their errors.
func Tee(journals ...wal.Journal) wal.Journal {
	var kept []wal.Journal
	for _, j := range journals {
		if j != nil {
			kept = append(kept, j)
		}
	}
	switch len(kept) {
	case 0:
		return Discard
	case 1:
		return kept[0]
	}
	return tee(kept)
}

type tee []wal.Journal

func (t tee) Append(rec wal.Record) error {
	var err error
	for _, j := range t {
		err = errors.Join(err, j.Append(rec))
	}
	return err
}

func (t tee) Close() error {
	var err error
	for _, j := range t {
		err = errors.Join(err, j.Close())
	}
	return err
}

// Records returns the records of the first journal that can replay them.
func (t tee) Records() ([]wal.Record, error) {
	for _, j := range t {
		if r, ok := j.(wal.Replayer); ok {
			return r.Records()
		}
	}
	return nil, nil
}

var _ wal.Replayer = tee(nil)
