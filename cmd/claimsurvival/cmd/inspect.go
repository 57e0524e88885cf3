package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/dbsmedya/claimsurvival/internal/lock"
	"github.com/dbsmedya/claimsurvival/internal/session"
)

var inspectSession sessionFlags

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "List the live working keys of a session",
	Long: `Inspect lists every key in a session's index with its type, cardinality
and remaining time to live, and reports whether the session is locked.

Example:
  claimsurvival inspect --config claimsurvival.yaml --user 7 --chart 3`,
	RunE: runInspect,
}

func init() {
	inspectSession.bind(inspectCmd)

	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	ns, err := inspectSession.namespace()
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

	entries, err := session.NewStore(manager.Client, cfg.TTL()).Inspect(ctx, ns)
	if err != nil {
		return err
	}
	locked, err := lock.IsLocked(ctx, manager.Client, ns.LockKey())
	if err != nil {
		return err
	}

	printInspection(ns, entries, locked)
	return nil
}

func printInspection(ns session.Namespace, entries []session.Entry, locked bool) {
	printHeader("Session: %s", ns)
	if locked {
		fmt.Fprintf(outputWriter, "  %s\n", color.Yellow.Sprint("locked by a running analysis"))
	}

	fmt.Fprintln(outputWriter)
	if len(entries) == 0 {
		fmt.Fprintln(outputWriter, "  (no working keys)")
		return
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	printSection(fmt.Sprintf("Working keys (%d)", len(entries)))
	rows := make([][2]string, len(entries))
	for i, e := range entries {
		rows[i] = [2]string{e.Key, fmt.Sprintf("%-5s size=%-6d ttl=%s", e.Type, e.Size, e.TTL)}
	}
	printRows(rows)
}
