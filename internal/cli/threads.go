package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/midodimori/langrepl/internal/config"
	"github.com/midodimori/langrepl/internal/thread"
)

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "Manage conversation threads",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var threadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List threads by most recent activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		threads, err := store.ListThreads()
		if err != nil {
			return err
		}
		if len(threads) == 0 {
			fmt.Println("No threads yet.")
			return nil
		}
		for _, th := range threads {
			last, _ := store.LatestSeq(th.ID)
			line := fmt.Sprintf("%s  %2d checkpoints  last active %s",
				th.ID, last, th.LastActivity.Local().Format(time.DateTime))
			if th.ParentID != "" {
				line += color.YellowString("  (branched from %s)", shortID(th.ParentID))
			}
			fmt.Println(line)
		}
		return nil
	},
}

var threadsDeleteCmd = &cobra.Command{
	Use:   "delete <thread-id>",
	Short: "Delete a thread and its history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.DeleteThread(args[0]); err != nil {
			return err
		}
		fmt.Println(color.GreenString("Deleted thread %s", args[0]))
		return nil
	},
}

var threadsBranchCmd = &cobra.Command{
	Use:   "branch <thread-id>",
	Short: "Branch a thread at one of its human turns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		mgr := thread.NewManager(store, nil)

		turns, err := mgr.HumanTurns(args[0])
		if err != nil {
			return err
		}
		if len(turns) == 0 {
			fmt.Println("Thread has no human turns to branch from.")
			return nil
		}

		turnFlag, _ := cmd.Flags().GetInt("turn")
		if turnFlag < 0 {
			for i, turn := range turns {
				fmt.Printf("%2d: %s\n", i, truncate(turn.Content, 80))
			}
			fmt.Println("\nRe-run with --turn N to branch at a turn.")
			return nil
		}
		if turnFlag >= len(turns) {
			return fmt.Errorf("turn %d out of range (thread has %d human turns)", turnFlag, len(turns))
		}

		id, err := mgr.Branch(args[0], turns[turnFlag])
		if err != nil {
			return err
		}
		fmt.Println(color.GreenString("Branched into new thread %s", id))
		return nil
	},
}

func openStore() (*thread.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return thread.NewStore(cfg.DatabasePath())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func init() {
	threadsBranchCmd.Flags().Int("turn", -1, "human turn index to branch at (see listing)")
	threadsCmd.AddCommand(threadsListCmd)
	threadsCmd.AddCommand(threadsDeleteCmd)
	threadsCmd.AddCommand(threadsBranchCmd)
}
