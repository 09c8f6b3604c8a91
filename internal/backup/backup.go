// Package backup provides xz-compressed archives of the disk journals: the
// text journals of a directory and, when given, the badger journal.
package backup

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ulikunitz/xz"

	"github.com/i5heu/stripestore/internal/wal"
	"github.com/i5heu/stripestore/pkg/backup"
	"github.com/i5heu/stripestore/pkg/logging"
)

const (
	journalExt = ".txt"
	// dbEntry is the archive entry holding the badger backup stream.
	dbEntry = "journal.badger"
	// maxPendingWrites bounds the batches of a badger load.
	maxPendingWrites = 256
)

// DefaultBackupManager archives the *.txt journals of one directory and the
// badger journal database.
type DefaultBackupManager struct {
	mu     sync.Mutex
	dir    string
	db     *badger.DB
	log    *slog.Logger
	status backup.BackupStatus
}

// NewBackupManager creates a manager for the text journals under dir and
// the journal database db. A nil db limits the archive to text journals.
func NewBackupManager(dir string, db *badger.DB, log *slog.Logger) *DefaultBackupManager {
	if log == nil {
		log = logging.Logger
	}
	return &DefaultBackupManager{dir: dir, db: db, log: log}
}

func (m *DefaultBackupManager) journals() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("backup: list %s: %w", m.dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), journalExt) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// BackupData writes an xz-compressed tar of every text journal, followed by
// the full badger backup stream when a database is attached.
func (m *DefaultBackupManager) BackupData(
	ctx context.Context,
	writer io.Writer,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.status.BackupInProgress = true
	defer func() {
		m.status.BackupInProgress = false
	}()

	names, err := m.journals()
	if err != nil {
		return err
	}

	xw, err := xz.NewWriter(writer)
	if err != nil {
		return fmt.Errorf("backup: xz writer: %w", err)
	}
	tw := tar.NewWriter(xw)

	var size int64
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := addFile(tw, filepath.Join(m.dir, name), name)
		if err != nil {
			return err
		}
		size += n
	}

	if m.db != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := m.addDB(tw)
		if err != nil {
			return err
		}
		size += n
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("backup: close tar: %w", err)
	}
	if err := xw.Close(); err != nil {
		return fmt.Errorf("backup: close xz: %w", err)
	}

	m.status.LastBackup = time.Now().Unix()
	m.status.LastBackupSize = size
	m.status.LastBackupFiles = len(names)
	m.status.LastBackupJournalDB = m.db != nil
	m.log.Info("journals backed up",
		"dir", m.dir,
		"files", len(names),
		"journal_db", m.db != nil,
		"bytes", size)
	return nil
}

func (m *DefaultBackupManager) addDB(tw *tar.Writer) (int64, error) {
	var buf bytes.Buffer
	if _, err := m.db.Backup(&buf, 0); err != nil {
		return 0, fmt.Errorf("backup: journal db: %w", err)
	}
	hdr := &tar.Header{
		Name:    dbEntry,
		Mode:    0o600,
		Size:    int64(buf.Len()),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return 0, fmt.Errorf("backup: header %s: %w", dbEntry, err)
	}
	n, err := io.Copy(tw, &buf)
	if err != nil {
		return 0, fmt.Errorf("backup: copy %s: %w", dbEntry, err)
	}
	return n, nil
}

func addFile(tw *tar.Writer, path, name string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("backup: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("backup: stat %s: %w", path, err)
	}
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return 0, fmt.Errorf("backup: header %s: %w", name, err)
	}
	n, err := io.Copy(tw, f)
	if err != nil {
		return 0, fmt.Errorf("backup: copy %s: %w", name, err)
	}
	return n, nil
}

// RestoreData unpacks an archive written by BackupData into the journal
// directory, replacing journals of the same name. Every restored journal
// must parse as a text journal. A badger entry replaces the whole content
// of the attached database; without a database it is an error.
func (m *DefaultBackupManager) RestoreData(
	ctx context.Context,
	reader io.Reader,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	xr, err := xz.NewReader(reader)
	if err != nil {
		return fmt.Errorf("backup: xz reader: %w", err)
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("backup: mkdir %s: %w", m.dir, err)
	}

	tr := tar.NewReader(xr)
	restored := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("backup: read archive: %w", err)
		}

		if hdr.Name == dbEntry {
			if err := m.loadDB(tr); err != nil {
				return err
			}
			restored++
			continue
		}

		name := filepath.Base(hdr.Name)
		if name != hdr.Name || !strings.HasSuffix(name, journalExt) {
			return fmt.Errorf("backup: unexpected archive entry %q", hdr.Name)
		}
		path := filepath.Join(m.dir, name)
		if err := writeFile(path, tr); err != nil {
			return err
		}
		if _, err := wal.ReadTextJournal(path); err != nil {
			return fmt.Errorf("backup: restored journal invalid: %w", err)
		}
		restored++
	}

	m.log.Info("journals restored",
		"dir", m.dir,
		"entries", restored)
	return nil
}

func (m *DefaultBackupManager) loadDB(r io.Reader) error {
	if m.db == nil {
		return errors.New("backup: archive holds a journal db but none is attached")
	}
	if err := m.db.DropAll(); err != nil {
		return fmt.Errorf("backup: clear journal db: %w", err)
	}
	if err := m.db.Load(r, maxPendingWrites); err != nil {
		return fmt.Errorf("backup: load journal db: %w", err)
	}
	return nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("backup: create %s: %w", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("backup: write %s: %w", path, err)
	}
	return f.Close()
}

// GetBackupStatus returns the current backup status.
func (m *DefaultBackupManager) GetBackupStatus(
	ctx context.Context,
) (backup.BackupStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, nil
}

// Ensure DefaultBackupManager implements the BackupManager interface.
var _ backup.BackupManager = (*DefaultBackupManager)(nil)
