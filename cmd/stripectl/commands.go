package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/i5heu/stripestore"
	"github.com/i5heu/stripestore/internal/backup"
	"github.com/i5heu/stripestore/internal/config"
	"github.com/i5heu/stripestore/internal/keyValStore"
	"github.com/i5heu/stripestore/pkg/logging"
)

type options struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "stripestore",
		Short:         "Write, read and erase parity-protected messages across disks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "stripestore.yaml", "path to the YAML config")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		newWriteCmd(opts),
		newReadCmd(opts),
		newEraseCmd(opts),
		newInspectCmd(opts),
		newBackupCmd(opts),
		newRestoreCmd(opts),
	)
	return root
}

func loadConfig(opts *options) (config.Config, error) {
	conf, err := config.GetConfig(opts.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if opts.logLevel != "" {
		conf.LogLevel = opts.logLevel
	}
	return conf, nil
}

func openStore(opts *options) (*stripestore.Store, config.Config, error) {
	conf, err := loadConfig(opts)
	if err != nil {
		return nil, config.Config{}, err
	}
	layout, err := stripestore.ParseLayout(conf.Layout)
	if err != nil {
		return nil, config.Config{}, err
	}

	store, err := stripestore.New(stripestore.Config{
		Disks:          conf.Disks,
		MessageSize:    conf.MessageSize,
		BlockWidth:     conf.BlockWidth,
		Addresses:      conf.Addresses,
		Layout:         layout,
		TextJournalDir: conf.Journal.TextDir,
		BadgerDir:      conf.Journal.BadgerDir,
		Replay:         conf.Replay(),
		MinimumFreeGB:  conf.MinimumFreeGB,
		Logger:         logging.New(conf.LogLevel),
	})
	if err != nil {
		return nil, config.Config{}, err
	}
	return store, conf, nil
}

// openBackupManager attaches the configured text journal directory and, when
// one is configured, the badger journal. The returned close func releases
// the journal database.
func openBackupManager(conf config.Config) (*backup.DefaultBackupManager, func() error, error) {
	log := logging.New(conf.LogLevel)
	if conf.Journal.BadgerDir == "" {
		return backup.NewBackupManager(conf.Journal.TextDir, nil, log), func() error { return nil }, nil
	}
	kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
		Paths:            []string{conf.Journal.BadgerDir},
		MinimumFreeSpace: conf.MinimumFreeGB,
		Logger:           logging.Logrus(log),
	})
	if err != nil {
		return nil, nil, err
	}
	return backup.NewBackupManager(conf.Journal.TextDir, kv.DB(), log), kv.Close, nil
}

func parseAddress(arg string, conf config.Config) (int, error) {
	address, err := strconv.Atoi(arg)
	if err != nil || address < 0 || address >= conf.Addresses {
		return 0, fmt.Errorf("invalid address %q: enter a value between 0 and %d", arg, conf.Addresses-1)
	}
	return address, nil
}

func newWriteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "write <address> <message>",
		Short: "Write a message to an address",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, conf, err := openStore(opts)
			if err != nil {
				return err
			}
			defer store.Close()

			address, err := parseAddress(args[0], conf)
			if err != nil {
				return err
			}
			if len(args[1]) != conf.MessageSize {
				return fmt.Errorf("message must be exactly %d bytes long, got %d", conf.MessageSize, len(args[1]))
			}
			if err := store.Write(args[1], address); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Message written successfully to address %d!\n", address)
			return nil
		},
	}
}

func newReadCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "read <address>",
		Short: "Read and reconstruct the message at an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, conf, err := openStore(opts)
			if err != nil {
				return err
			}
			defer store.Close()

			address, err := parseAddress(args[0], conf)
			if err != nil {
				return err
			}
			res, err := store.ReadStripe(address)
			if errors.Is(err, stripestore.ErrInsufficientRedundancy) {
				fmt.Fprintln(cmd.OutOrStdout(), "Not enough data to recover the message.")
				return nil
			}
			if err != nil {
				return err
			}
			if res.Mismatch {
				fmt.Fprintln(cmd.OutOrStdout(), "Redundancy does not match; recovery may not be complete.")
			}
			for _, i := range res.Recovered {
				fmt.Fprintf(cmd.OutOrStdout(), "Recovered missing block at index %d\n", i)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recovered message: %s\n", res.Message)
			return nil
		},
	}
}

func newEraseCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "erase <address>",
		Short: "Erase the stripe at an address on every disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, conf, err := openStore(opts)
			if err != nil {
				return err
			}
			defer store.Close()

			address, err := parseAddress(args[0], conf)
			if err != nil {
				return err
			}
			if err := store.Erase(address); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Data erased successfully from address %d!\n", address)
			return nil
		},
	}
}

func newInspectCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Show per-disk block counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(opts)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Layout: %s, stripe width: %d\n", store.Layout(), store.StripeWidth())
			for _, st := range store.Stats() {
				fmt.Fprintf(out, "%-8s blocks: %4d  holes: %4d\n", st.ID, st.Length, st.Holes)
			}
			return nil
		},
	}
}

func newBackupCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "backup <file>",
		Short: "Archive the disk journals into an xz file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(opts)
			if err != nil {
				return err
			}
			m, closeDB, err := openBackupManager(conf)
			if err != nil {
				return err
			}
			defer closeDB()

			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			if err := m.BackupData(context.Background(), f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			status, _ := m.GetBackupStatus(context.Background())
			fmt.Fprintf(cmd.OutOrStdout(), "Backed up %d journals (%d bytes, journal db: %t) to %s\n",
				status.LastBackupFiles, status.LastBackupSize, status.LastBackupJournalDB, args[0])
			return nil
		},
	}
}

func newRestoreCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <file>",
		Short: "Restore the disk journals from an xz archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(opts)
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			m, closeDB, err := openBackupManager(conf)
			if err != nil {
				return err
			}
			if err := m.RestoreData(context.Background(), f); err != nil {
				closeDB()
				return err
			}
			if err := closeDB(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored journals into %s\n", conf.Journal.TextDir)
			return nil
		},
	}
}
