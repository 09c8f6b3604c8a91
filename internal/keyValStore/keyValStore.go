package keyValStore

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

type StoreConfig struct {
	Paths            []string // at the moment only the first path is used
	MinimumFreeSpace int      // in GB
	Logger           *logrus.Logger
}

// KeyValStore owns the BadgerDB that backs the disk journals.
type KeyValStore struct {
	config   StoreConfig
	log      *logrus.Logger
	badgerDB *badger.DB
}

func NewKeyValStore(config StoreConfig) (*KeyValStore, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	err := config.checkConfig()
	if err != nil {
		return nil, fmt.Errorf("error checking config for KeyValStore: %w", err)
	}

	opts := badger.DefaultOptions(config.Paths[0])
	opts.Logger = nil
	opts.ValueLogFileSize = 1024 * 1024 * 64
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("error opening badger at %s: %w", config.Paths[0], err)
	}

	if err := displayDiskUsage(config.Logger, config.Paths); err != nil {
		db.Close()
		return nil, err
	}

	return &KeyValStore{
		config:   config,
		log:      config.Logger,
		badgerDB: db,
	}, nil
}

// DB returns the underlying BadgerDB.
func (k *KeyValStore) DB() *badger.DB {
	return k.badgerDB
}

func (k *KeyValStore) Close() error {
	if err := k.Clean(); err != nil {
		k.log.WithError(err).Warn("journal store cleanup failed")
	}
	return k.badgerDB.Close()
}

func (k *KeyValStore) Clean() error {
	err := k.badgerDB.Sync()
	if err != nil {
		return fmt.Errorf("error syncing db: %w", err)
	}

	err = k.badgerDB.RunValueLogGC(0.5)
	if err != nil && err != badger.ErrNoRewrite {
		return fmt.Errorf("error cleaning db: %w", err)
	}

	return nil
}
