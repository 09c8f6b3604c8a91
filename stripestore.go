/*
Package stripestore is a small erasure-coded block store.

A fixed-size message is split into fixed-width blocks, one XOR parity block
is appended and the resulting stripe is placed on a set of disks. A read
reconstructs the message even when one block of the stripe is missing.
*/
package stripestore

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/i5heu/stripestore/internal/blockstore"
	"github.com/i5heu/stripestore/internal/chunker"
	"github.com/i5heu/stripestore/internal/erasure"
	"github.com/i5heu/stripestore/internal/keyValStore"
	journals "github.com/i5heu/stripestore/internal/wal"
	"github.com/i5heu/stripestore/pkg/logging"
	"github.com/i5heu/stripestore/pkg/model"
	"github.com/i5heu/stripestore/pkg/wal"
)

var (
	ErrInvalidInput           = model.ErrInvalidInput
	ErrInsufficientRedundancy = model.ErrInsufficientRedundancy
	ErrClosed                 = errors.New("stripestore: store closed")
)

// Store is the stripe controller. It owns its disks and, when configured,
// the journal database behind them. A Store serializes its operations.
type Store struct {
	mu     sync.Mutex
	log    *slog.Logger
	config Config
	width  int

	disks []*blockstore.Disk
	kv    *keyValStore.KeyValStore

	closed    bool
	closeOnce sync.Once
}

// ReadResult describes one read in detail.
type ReadResult struct {
	// Message is the reconstructed message, trailing zero padding stripped.
	Message string
	// Mismatch is set when the stored parity disagreed with the data read;
	// the message then went through best-effort recovery.
	Mismatch bool
	// Recovered lists the stripe positions rebuilt from parity.
	Recovered []int
	// Holes lists the stripe positions whose disk returned no data.
	Holes []int
}

// New constructs a Store with freshly opened disks. With Replay set and a
// BadgerDir configured the disks are rebuilt from their journals first.
func New(conf Config) (*Store, error) {
	conf.applyDefaults()
	if conf.Logger == nil {
		conf.Logger = logging.Logger
	}
	if err := conf.validate(); err != nil {
		return nil, err
	}

	s := &Store{
		log:    conf.Logger,
		config: conf,
		width:  conf.StripeWidth(),
	}

	if conf.TextJournalDir != "" {
		if err := os.MkdirAll(conf.TextJournalDir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", conf.TextJournalDir, err)
		}
		if err := keyValStore.CheckFreeSpace(conf.TextJournalDir, conf.MinimumFreeGB); err != nil {
			return nil, fmt.Errorf("text journal: %w", err)
		}
	}

	if conf.BadgerDir != "" {
		kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
			Paths:            []string{conf.BadgerDir},
			MinimumFreeSpace: conf.MinimumFreeGB,
			Logger:           logging.Logrus(conf.Logger),
		})
		if err != nil {
			return nil, fmt.Errorf("open journal store: %w", err)
		}
		s.kv = kv
	}

	for i := 0; i < conf.Disks; i++ {
		disk, err := s.openDisk(fmt.Sprintf("disk%d", i))
		if err != nil {
			closeErr := s.Close()
			return nil, errors.Join(err, closeErr)
		}
		s.disks = append(s.disks, disk)
	}

	s.log.Info("stripestore ready",
		"disks", conf.Disks,
		"layout", conf.Layout,
		"stripe_width", s.width,
		"addresses", conf.Addresses)
	return s, nil
}

func (s *Store) openDisk(id string) (*blockstore.Disk, error) {
	var parts []wal.Journal
	attrs := []any{"disk", id}

	if s.config.TextJournalDir != "" {
		tj, err := journals.NewTextJournal(s.config.TextJournalDir, id)
		if err != nil {
			return nil, err
		}
		parts = append(parts, tj)
		attrs = append(attrs, "text_journal", tj.Path())
	}

	if s.kv != nil {
		bj, err := journals.NewBadgerJournal(s.kv.DB(), id)
		if err != nil {
			_ = journals.Tee(parts...).Close()
			return nil, err
		}
		parts = append(parts, bj)
		attrs = append(attrs, "journal_seq", bj.Len())
	}

	disk := blockstore.NewDisk(id, journals.Tee(parts...), s.log)

	if r, ok := disk.Journal().(wal.Replayer); ok && s.config.Replay {
		records, err := r.Records()
		if err != nil {
			_ = disk.Close()
			return nil, fmt.Errorf("replay %s: %w", id, err)
		}
		disk.Restore(records)
		attrs = append(attrs, "replayed", len(records))
	}

	s.log.Debug("disk opened", attrs...)
	return disk, nil
}

func (s *Store) checkAddress(address int) error {
	if address < 0 || address >= s.config.Addresses {
		return fmt.Errorf("%w: address %d outside [0, %d]", ErrInvalidInput, address, s.config.Addresses-1)
	}
	return nil
}

func (s *Store) offset(address, index int) int {
	return model.Offset(address, s.width, index)
}

// Write splits message into blocks, appends parity and places the stripe at
// address. The message must be exactly Config.MessageSize bytes long.
func (s *Store) Write(message string, address int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := s.checkAddress(address); err != nil {
		return err
	}
	if len(message) != s.config.MessageSize {
		return fmt.Errorf("%w: message is %d bytes, want %d", ErrInvalidInput, len(message), s.config.MessageSize)
	}

	blocks, err := chunker.Split([]byte(message), s.config.BlockWidth)
	if err != nil {
		return err
	}
	stripe, err := erasure.EncodeStripe(blocks)
	if err != nil {
		return err
	}

	for d, disk := range s.disks {
		for i, block := range stripe {
			if s.config.Layout == LayoutStripe && i != d {
				continue
			}
			disk.WriteBlock(block, s.offset(address, i))
		}
	}

	s.log.Info("message written",
		"address", address,
		"parity", stripe.Parity().Hex())
	return nil
}

// Read returns the message stored at address.
func (s *Store) Read(address int) (string, error) {
	res, err := s.ReadStripe(address)
	if err != nil {
		return "", err
	}
	return res.Message, nil
}

// ReadStripe reads stripe block i from disk i and decodes the stripe. More
// than one hole fails with ErrInsufficientRedundancy; a single hole is
// rebuilt from parity.
func (s *Store) ReadStripe(address int) (ReadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ReadResult{}, ErrClosed
	}
	if err := s.checkAddress(address); err != nil {
		return ReadResult{}, err
	}

	stripe := make(model.Stripe, s.width)
	for i, disk := range s.disks {
		stripe[i] = disk.ReadBlock(s.offset(address, i))
	}

	holes := stripe.Holes()
	if len(holes) > 1 {
		s.log.Warn("not enough data to recover the message",
			"address", address,
			"holes", len(holes))
		return ReadResult{Holes: holes}, fmt.Errorf("%w: %d of %d disks returned no data for address %d",
			ErrInsufficientRedundancy, len(holes), len(s.disks), address)
	}

	decoded, err := erasure.DecodeStripe(stripe)
	if err != nil {
		return ReadResult{Holes: holes}, fmt.Errorf("decode address %d: %w", address, err)
	}

	if decoded.Mismatch {
		s.log.Warn("redundancy does not match; recovery may not be complete",
			"address", address,
			"holes", holes,
			"recovered", decoded.Recovered)
	}
	for _, i := range decoded.Recovered {
		s.log.Info("recovered missing block",
			"address", address,
			"index", i,
			"disk", s.disks[i].ID())
	}

	return ReadResult{
		Message:   string(decoded.Data),
		Mismatch:  decoded.Mismatch,
		Recovered: decoded.Recovered,
		Holes:     holes,
	}, nil
}

// Erase punches holes over the whole stripe range of address on every
// disk. Erasing an unwritten or already erased address is a no-op.
func (s *Store) Erase(address int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := s.checkAddress(address); err != nil {
		return err
	}

	for _, disk := range s.disks {
		for i := 0; i < s.width; i++ {
			disk.EraseBlock(s.offset(address, i))
		}
	}

	s.log.Info("data erased", "address", address)
	return nil
}

// Disks returns the store's disks in stripe order.
func (s *Store) Disks() []*blockstore.Disk {
	out := make([]*blockstore.Disk, len(s.disks))
	copy(out, s.disks)
	return out
}

// Stats returns a snapshot of every disk's counters.
func (s *Store) Stats() []blockstore.DiskStats {
	stats := make([]blockstore.DiskStats, 0, len(s.disks))
	for _, d := range s.disks {
		stats = append(stats, d.Stats())
	}
	return stats
}

// StripeWidth returns the number of blocks per stripe, parity included.
func (s *Store) StripeWidth() int {
	return s.width
}

// Layout returns the configured block placement.
func (s *Store) Layout() Layout {
	return s.config.Layout
}

// Close closes every disk journal and the journal store. Close is
// idempotent.
func (s *Store) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed = true

		for _, d := range s.disks {
			if err := d.Close(); err != nil {
				closeErr = errors.Join(closeErr, fmt.Errorf("close %s: %w", d.ID(), err))
			}
		}
		if s.kv != nil {
			if err := s.kv.Close(); err != nil {
				closeErr = errors.Join(closeErr, fmt.Errorf("close journal store: %w", err))
			}
		}
	})
	return closeErr
}
