package lock

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/ValentinKolb/dStats/cmd/util"
	"github.com/ValentinKolb/dStats/lib/lockmgr"
	"github.com/ValentinKolb/dStats/lib/runtime"
	"github.com/spf13/cobra"
)

var (
	locks lockmgr.ILockManager

	// LockCommands represents the lock command group
	LockCommands = &cobra.Command{
		Use:   "lock",
		Short: "Inspect and repair locks, most notably the writer lease",
		Long: util.WrapString(fmt.Sprintf(
			"Acquire and release locks of the lock manager. Without a key both commands act on the writer lease %s that every ingestion run holds. A lease left behind by a crashed run can be released with the owner id printed by acquire or logged by ingest.",
			runtime.WriterLockKey)),
		PersistentPreRunE:  openLocks,
		PersistentPostRunE: closeLocks,
	}

	acquireCmd = &cobra.Command{
		Use:     "acquire [key]",
		Short:   "Acquire a lock and print its owner id",
		Example: "  dstats lock acquire\n  dstats lock acquire reports:nightly",
		Args:    cobra.MaximumNArgs(1),
		RunE:    runAcquire,
	}

	releaseCmd = &cobra.Command{
		Use:     "release [ownerID] [key]",
		Short:   "Release a lock held by ownerID",
		Long:    "Release a lock using the hex owner id returned by acquire. The lock is only released if the owner id matches.",
		Example: "  dstats lock release 3f2a...\n  dstats lock release 3f2a... reports:nightly",
		Args:    cobra.RangeArgs(1, 2),
		RunE:    runRelease,
	}
)

func init() {
	cobra.OnInitialize(util.InitClientConfig)

	LockCommands.AddCommand(acquireCmd)
	LockCommands.AddCommand(releaseCmd)

	util.SetupStoreFlags(LockCommands)
}

func openLocks(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	locks, err = util.OpenLockManager()
	return err
}

func closeLocks(_ *cobra.Command, _ []string) error {
	if c, ok := locks.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// lockKey returns the key given at position i or the writer lease
func lockKey(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return runtime.WriterLockKey
}

func runAcquire(_ *cobra.Command, args []string) error {
	key := lockKey(args, 0)

	acquired, ownerID, err := locks.AcquireLock(key)
	if err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !acquired {
		fmt.Printf("key=%s, acquired=false\n", key)
		return nil
	}
	fmt.Printf("key=%s, acquired=true, ownerId=%s\n", key, hex.EncodeToString(ownerID))
	return nil
}

func runRelease(_ *cobra.Command, args []string) error {
	key := lockKey(args, 1)

	ownerID, err := hex.DecodeString(args[0])
	if err != nil {
		return fmt.Errorf("invalid owner ID format: %w", err)
	}

	released, err := locks.ReleaseLock(key, ownerID)
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	fmt.Printf("key=%s, released=%v\n", key, released)
	return nil
}
