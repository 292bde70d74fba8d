// Command axiom-console runs a server with its standard input fed from the
// package's command channel. axiom launches it in place of the server when a
// package's launcher.console is "wrapper":
//
//	axiom-console --pipe DATA_DIR/pipes/NAME -- java -jar paper.jar --nogui
//
// It exits with the server's exit code.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nicdgonzalez/axiom/internal/console"
	"github.com/nicdgonzalez/axiom/internal/logging"
)

var (
	flagPipe     string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:           "axiom-console --pipe PATH -- COMMAND [ARGS...]",
	Short:         "Feed a command channel into a server's standard input",
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

// exitError carries the server's exit code out of RunE.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("server exited with status %d", e.code) }

func init() {
	rootCmd.Flags().StringVar(&flagPipe, "pipe", os.Getenv("AXIOM_PIPE"), "Command channel endpoint")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "info", "Log level: debug, info, warn or error")
}

func run(cmd *cobra.Command, args []string) error {
	if flagPipe == "" {
		return fmt.Errorf("--pipe is required")
	}
	logger, err := logging.New(logging.Options{Level: flagLogLevel, Writer: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}

	w, err := console.New(console.Options{
		Pipe:   flagPipe,
		Argv:   args,
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
		Logger: logger,
	})
	if err != nil {
		return err
	}
	code, err := w.Run(context.Background())
	if err != nil {
		return err
	}
	if code != 0 {
		return exitError{code}
	}
	return nil
}

func main() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	if e, ok := err.(exitError); ok {
		os.Exit(e.code)
	}
	fmt.Fprintf(os.Stderr, "axiom-console: %v\n", err)
	os.Exit(1)
}
