// Package cli implements the langrepl command tree.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/midodimori/langrepl/internal/cli.version=1.2.3"
	version = "0.3.0"
	logo    = "\n" +
		" _                                      _\n" +
		"| | __ _ _ __   __ _ _ __ ___ _ __ | |\n" +
		"| |/ _` | '_ \\ / _` | '__/ _ \\ '_ \\| |\n" +
		"| | (_| | | | | (_| | | |  __/ |_) | |\n" +
		"|_|\\__,_|_| |_|\\__, |_|  \\___| .__/|_|\n" +
		"               |___/         |_|\n"
)

var rootCmd = &cobra.Command{
	Use:   "langrepl",
	Short: "langrepl - conversational agent with durable threads",
	Long:  color.CyanString(logo) + "\nDurable, branchable conversation threads with rule-driven tool approval.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")
	cobra.OnInitialize(setupLogging)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(threadsCmd)
	rootCmd.AddCommand(policyCmd)
}

func setupLogging() {
	level := slog.LevelInfo
	if v, err := rootCmd.PersistentFlags().GetBool("verbose"); err == nil && v {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("langrepl Version")
		fmt.Printf("Version: %s\n", version)
	},
}
