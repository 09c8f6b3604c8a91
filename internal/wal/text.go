package wal

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/i5heu/stripestore/pkg/model"
	"github.com/i5heu/stripestore/pkg/wal"
)

// TextJournal is the plain text mirror of one disk: one file per disk, one
// uppercase hex block per line, in write order. Erase records leave no line.
type TextJournal struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *bufio.Writer
}

// TextJournalPath returns the file a disk's text journal lives in.
func TextJournalPath(dir, diskID string) string {
	return filepath.Join(dir, diskID+".txt")
}

// NewTextJournal opens (creating if needed) the text journal of diskID under
// dir. Existing lines are kept and new ones appended.
func NewTextJournal(dir, diskID string) (*TextJournal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	path := TextJournalPath(dir, diskID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open text journal %s: %w", path, err)
	}
	return &TextJournal{path: path, f: f, w: bufio.NewWriter(f)}, nil
}

// Path returns the journal's file path.
func (j *TextJournal) Path() string {
	return j.path
}

// Append writes the hex form of a write record as one line.
func (j *TextJournal) Append(rec wal.Record) error {
	if rec.Op != wal.OpWrite {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.f == nil {
		return fmt.Errorf("text journal %s: closed", j.path)
	}
	if _, err := j.w.WriteString(rec.Block.Hex() + "\n"); err != nil {
		return fmt.Errorf("append %s: %w", j.path, err)
	}
	if err := j.w.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", j.path, err)
	}
	return nil
}

// Close flushes and closes the journal file.
func (j *TextJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.f == nil {
		return nil
	}
	flushErr := j.w.Flush()
	closeErr := j.f.Close()
	j.f = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// ReadTextJournal returns the blocks recorded in a text journal file, in
// write order.
func ReadTextJournal(path string) ([]model.Block, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var blocks []model.Block
	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		if scanner.Text() == "" {
			continue
		}
		b, err := model.ParseHex(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		blocks = append(blocks, b)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return blocks, nil
}

var _ wal.Journal = (*TextJournal)(nil)
