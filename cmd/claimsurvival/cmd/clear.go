package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/claimsurvival/internal/lock"
	"github.com/dbsmedya/claimsurvival/internal/session"
)

var clearSession sessionFlags

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every working key of a session",
	Long: `Clear deletes every key listed in a session's index, then the index
itself. Clearing a session that does not exist is a no-op. A session held
by a locked analysis run is left alone.

Example:
  claimsurvival clear --config claimsurvival.yaml --user 7 --chart 3`,
	RunE: runClear,
}

func init() {
	clearSession.bind(clearCmd)

	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, args []string) error {
	ns, err := clearSession.namespace()
	if err != nil {
		return err
	}

	cfg, err := loadConfig(false, false)
	if err != nil {
		return err
	}

	ctx := context.Background()
	manager, err := connectStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer manager.Close()

	l := lock.NewSessionLock(manager.Client, ns.LockKey(), cfg.LockLease())
	if err := l.AcquireOrFail(ctx); err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			return fmt.Errorf("session %s is being analyzed by another run, not clearing", ns)
		}
		return err
	}
	defer func() { _, _ = l.ReleaseLock(context.Background()) }()

	n, err := session.NewStore(manager.Client, cfg.TTL()).Clear(ctx, ns)
	if err != nil {
		return err
	}

	fmt.Fprintf(outputWriter, "Cleared %d keys from session %s\n", n, ns)
	return nil
}
