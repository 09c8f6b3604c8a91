package wal

import (
	"errors"
	"os"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i5heu/stripestore/pkg/model"
	"github.com/i5heu/stripestore/pkg/wal"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestTextJournal_LineFormat(t *testing.T) {
	dir := t.TempDir()
	j, err := NewTextJournal(dir, "disk3")
	require.NoError(t, err)

	require.NoError(t, j.Append(wal.Record{Op: wal.OpWrite, Offset: 0, Block: model.Block("HE")}))
	require.NoError(t, j.Append(wal.Record{Op: wal.OpErase, Offset: 0}))
	require.NoError(t, j.Append(wal.Record{Op: wal.OpWrite, Offset: 9, Block: model.Block{0x00, 0xab}}))
	require.NoError(t, j.Close())

	raw, err := os.ReadFile(TextJournalPath(dir, "disk3"))
	require.NoError(t, err)
	assert.Equal(t, "4845\n00AB\n", string(raw))

	blocks, err := ReadTextJournal(j.Path())
	require.NoError(t, err)
	assert.Equal(t, []model.Block{model.Block("HE"), {0x00, 0xab}}, blocks)
}

func TestTextJournal_AppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		j, err := NewTextJournal(dir, "disk0")
		require.NoError(t, err)
		require.NoError(t, j.Append(wal.Record{Op: wal.OpWrite, Block: model.Block("ab")}))
		require.NoError(t, j.Close())
	}

	blocks, err := ReadTextJournal(TextJournalPath(dir, "disk0"))
	require.NoError(t, err)
	assert.Len(t, blocks, 2)
}

func TestTextJournal_AppendAfterClose(t *testing.T) {
	j, err := NewTextJournal(t.TempDir(), "disk0")
	require.NoError(t, err)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())
	assert.Error(t, j.Append(wal.Record{Op: wal.OpWrite, Block: model.Block("ab")}))
}

func TestBadgerJournal_DisksAreIsolated(t *testing.T) {
	db := openTestDB(t)

	j1, err := NewBadgerJournal(db, "disk1")
	require.NoError(t, err)
	j10, err := NewBadgerJournal(db, "disk10")
	require.NoError(t, err)

	require.NoError(t, j1.Append(wal.Record{Op: wal.OpWrite, Offset: 1, Block: model.Block("aa")}))
	require.NoError(t, j10.Append(wal.Record{Op: wal.OpWrite, Offset: 2, Block: model.Block("bb")}))
	require.NoError(t, j10.Append(wal.Record{Op: wal.OpErase, Offset: 2}))

	r1, err := j1.Records()
	require.NoError(t, err)
	require.Len(t, r1, 1)
	assert.Equal(t, 1, r1[0].Offset)

	r10, err := j10.Records()
	require.NoError(t, err)
	require.Len(t, r10, 2)
	assert.Equal(t, wal.OpErase, r10[1].Op)
	assert.True(t, r10[1].Block.IsHole())
}

func TestRecordCodec(t *testing.T) {
	rec := wal.Record{Op: wal.OpWrite, Offset: 300, Block: model.Block{0x01, 0x02}}
	got, err := decodeRecord(encodeRecord(rec))
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = decodeRecord([]byte{0xff})
	assert.Error(t, err)

	_, err = decodeRecord(nil)
	assert.Error(t, err)
}

type failingJournal struct{ err error }

func (f failingJournal) Append(wal.Record) error { return f.err }
func (f failingJournal) Close() error            { return f.err }

func TestTee(t *testing.T) {
	db := openTestDB(t)
	bj, err := NewBadgerJournal(db, "disk0")
	require.NoError(t, err)
	tj, err := NewTextJournal(t.TempDir(), "disk0")
	require.NoError(t, err)

	j := Tee(tj, nil, bj)
	require.NoError(t, j.Append(wal.Record{Op: wal.OpWrite, Block: model.Block("zz")}))

	replayer, ok := j.(wal.Replayer)
	require.True(t, ok)
	records, err := replayer.Records()
	require.NoError(t, err)
	assert.Len(t, records, 1)
	require.NoError(t, j.Close())

	boom := errors.New("boom")
	failing := Tee(Discard, failingJournal{err: boom})
	assert.ErrorIs(t, failing.Append(wal.Record{Op: wal.OpErase}), boom)

	assert.Equal(t, Discard, Tee())
	assert.Equal(t, wal.Journal(bj), Tee(nil, bj))
}
