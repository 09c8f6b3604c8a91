// Package backup defines interfaces for journal backup operations in
// stripestore.
package backup

import (
	"context"
	"io"
)

// BackupManager archives and restores the journals of a store.
type BackupManager interface {
	// BackupData writes an archive of every disk journal to writer.
	BackupData(ctx context.Context, writer io.Writer) error

	// RestoreData unpacks an archive produced by BackupData.
	RestoreData(ctx context.Context, reader io.Reader) error

	// GetBackupStatus returns the current backup status.
	GetBackupStatus(ctx context.Context) (BackupStatus, error)
}

// BackupStatus represents the status of backup operations.
type BackupStatus struct {
	// LastBackup is the Unix timestamp of the last successful backup.
	LastBackup int64

	// LastBackupSize is the uncompressed size of the last backup in bytes.
	LastBackupSize int64

	// LastBackupFiles is the number of journals in the last backup.
	LastBackupFiles int

	// LastBackupJournalDB reports whether the last backup carried the
	// badger journal.
	LastBackupJournalDB bool

	// BackupInProgress indicates if a backup is currently running.
	BackupInProgress bool
}
