package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/railpay/paymentsd/internal/core/engine"
	"github.com/railpay/paymentsd/internal/storage"
	"github.com/railpay/paymentsd/internal/storage/statestore"
)

// snapshotCmd works directly on the state database while the daemon is
// stopped, for inspection and maintenance.
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Inspect and maintain stored engine snapshots",
	Long: `Operate on the state database offline. The database is opened
with the configured backend and path; run these commands while the
server is stopped.`,
}

var snapshotFull bool

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotListCmd, snapshotShowCmd, snapshotPruneCmd)

	snapshotShowCmd.Flags().BoolVar(&snapshotFull, "full", false, "dump the complete snapshot instead of a summary")
}

// openStateStore opens the configured database and returns the store
// plus a close function.
func openStateStore() (*statestore.Store, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	manager, err := storage.OpenManager(cfg.Database.Backend, cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open state database: %w", err)
	}
	db, err := manager.OpenDB("state")
	if err != nil {
		manager.Close()
		return nil, nil, fmt.Errorf("open state database: %w", err)
	}
	return statestore.New(db, cfg.Database.CompressionThreshold), func() { manager.Close() }, nil
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored snapshot epochs",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeStore, err := openStateStore()
		if err != nil {
			return err
		}
		defer closeStore()

		epochs, err := store.Epochs(context.Background())
		if err != nil {
			return err
		}
		if len(epochs) == 0 {
			fmt.Println("No snapshots stored")
			return nil
		}
		for _, epoch := range epochs {
			fmt.Println(epoch)
		}
		return nil
	},
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show [epoch]",
	Short: "Show a stored snapshot (latest when no epoch is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeStore, err := openStateStore()
		if err != nil {
			return err
		}
		defer closeStore()

		ctx := context.Background()
		snap, epoch, err := loadRequested(ctx, store, args)
		if err != nil {
			return err
		}

		if snapshotFull {
			out, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}

		fmt.Printf("Epoch:        %d\n", epoch)
		fmt.Printf("Next rail ID: %d\n", snap.NextRailID)
		fmt.Printf("Total burned: %s\n", snap.TotalBurned)
		fmt.Printf("Accounts:     %d\n", len(snap.Accounts))
		fmt.Printf("Approvals:    %d\n", len(snap.Approvals))
		fmt.Printf("Rails:        %d\n", len(snap.Rails))
		fmt.Printf("Fee buckets:  %d\n", len(snap.Fees))
		fmt.Printf("Auctions:     %d\n", len(snap.Auctions))
		return nil
	},
}

func loadRequested(ctx context.Context, store *statestore.Store, args []string) (snap *engine.Snapshot, epoch uint64, err error) {
	if len(args) == 0 {
		return store.LoadLatest(ctx)
	}
	epoch, err = strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid epoch: %w", err)
	}
	snap, err = store.Load(ctx, epoch)
	return snap, epoch, err
}

var snapshotPruneCmd = &cobra.Command{
	Use:   "prune <keep>",
	Short: "Delete all but the newest snapshots",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keep, err := strconv.Atoi(args[0])
		if err != nil || keep < 1 {
			return fmt.Errorf("keep must be a positive integer")
		}

		store, closeStore, err := openStateStore()
		if err != nil {
			return err
		}
		defer closeStore()

		ctx := context.Background()
		before, err := store.Epochs(ctx)
		if err != nil {
			return err
		}
		if err := store.Prune(ctx, keep); err != nil {
			return err
		}
		after, err := store.Epochs(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Pruned %d snapshots, %d remaining\n", len(before)-len(after), len(after))
		return nil
	},
}
