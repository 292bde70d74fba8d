package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath string
	dataDir    string
	logLevel   string

	// RootCmd is the root command for axiom
	RootCmd = &cobra.Command{
		Use:   "axiom",
		Short: "Manage Minecraft server packages",
		Long: `axiom installs, updates and runs PaperMC server packages.

Each package is a named server with its own directory, its own server
build and its own settings in Axiom.toml. Servers run as background
processes; console commands reach them through a per-package command
channel instead of a terminal multiplexer.

Quick Start:
  1. axiom new survival --accept-eula
  2. axiom start survival
  3. axiom send survival say hello
  4. axiom stop survival

Examples:
  # Create a package on an exact version and build
  axiom new creative 1.21.1 132

  # Move a package to the newest stable build
  axiom update survival

  # See what is running
  axiom status

  # Follow a server's console output
  axiom logs survival -f`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "axiom: Minecraft server package manager")
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), "Run 'axiom new <name>' to create your first server.")
			fmt.Fprintln(cmd.OutOrStdout(), "Run 'axiom --help' for the full reference.")
			return nil
		},
	}
)

func init() {
	// Global flags
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ~/.config/axiom/config.toml)")
	RootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default: ~/.local/share/axiom)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")

	// Enable cobra's built-in suggestion feature for unknown subcommands
	RootCmd.SuggestionsMinimumDistance = 2
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context, which ends log following and abandons downloads cleanly.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return RootCmd.ExecuteContext(ctx)
}
