package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/midodimori/langrepl/internal/approval"
	"github.com/midodimori/langrepl/internal/config"
	"github.com/midodimori/langrepl/internal/thread"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Record human turns against a durable thread",
	Long: "Opens (or resumes) a thread and commits each input line as a " +
		"checkpointed human turn. The reasoning backend named by --agent " +
		"drives steps between turns; without one, turns are recorded only.",
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if model, _ := cmd.Flags().GetString("model"); model != "" {
		cfg.Model.Name = model
	}

	modeFlag, _ := cmd.Flags().GetString("approval-mode")
	if modeFlag == "" {
		modeFlag = cfg.Approval.Mode
	}
	if _, err := approval.ParseMode(modeFlag); err != nil {
		return err
	}

	if agentName, _ := cmd.Flags().GetString("agent"); agentName != "" {
		cat, err := config.LoadCatalog(cfg.Paths.AgentsFile)
		if err != nil {
			return err
		}
		if _, ok := cat.Agent(agentName); !ok {
			return fmt.Errorf("agent %q not found in catalog", agentName)
		}
	}

	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		return err
	}
	store, err := thread.NewStore(cfg.DatabasePath())
	if err != nil {
		return err
	}
	defer store.Close()
	mgr := thread.NewManager(store, nil)

	resume, _ := cmd.Flags().GetBool("resume")
	var cp *thread.Checkpoint
	if resume || cfg.Session.ResumeLast {
		if cp, err = mgr.ResumeLast(); err != nil {
			return err
		}
	} else {
		id, err := mgr.NewThread()
		if err != nil {
			return err
		}
		cp = &thread.Checkpoint{ThreadID: id}
	}

	printHeader("")
	fmt.Printf("Thread %s at checkpoint %d (mode: %s)\n", cp.ThreadID, cp.Seq, modeFlag)
	fmt.Println("Type a message, /clear for a fresh thread, /quit to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case line == "/clear":
			id, err := mgr.Clear()
			if err != nil {
				return err
			}
			fmt.Println(color.GreenString("Started fresh thread %s", id))
			continue
		}

		next := mgr.Current()
		next.Seq++
		next.Messages = append(next.Messages, thread.Message{Role: "user", Content: line, Timestamp: time.Now()})
		if err := mgr.Append(next); err != nil {
			return err
		}
		fmt.Printf("committed checkpoint %d\n", next.Seq)
	}
}

func init() {
	chatCmd.Flags().String("approval-mode", "", "semi-active, active, or aggressive")
	chatCmd.Flags().Bool("resume", false, "resume the most recent thread")
	chatCmd.Flags().String("agent", "", "agent catalog entry to run")
	chatCmd.Flags().String("model", "", "override the configured model")
	rootCmd.AddCommand(chatCmd)
}
