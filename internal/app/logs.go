package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nicdgonzalez/axiom/internal/watcher"
)

var (
	logsFlagLines  int
	logsFlagFollow bool
)

var logsCmd = &cobra.Command{
	Use:   "logs NAME",
	Short: "Show a server's console output",
	Example: `  axiom logs survival
  axiom logs survival -n 100 -f`,
	Args: cobra.ExactArgs(1),
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().IntVarP(&logsFlagLines, "lines", "n", 20, "Number of trailing lines to show")
	logsCmd.Flags().BoolVarP(&logsFlagFollow, "follow", "f", false, "Keep printing new output until interrupted")

	RootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	return e.logs(cmd.Context(), args[0], logsFlagLines, logsFlagFollow)
}

func (e *env) logs(ctx context.Context, name string, n int, follow bool) error {
	pkg, err := e.packages.Get(name)
	if err != nil {
		return err
	}

	path := e.sup.LogPath(pkg.Name)
	lines, err := watcher.Tail(path, n)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s has no console output yet; start it with 'axiom start %s'", pkg.Name, pkg.Name)
	}
	if err != nil {
		return err
	}
	for _, line := range lines {
		fmt.Fprintln(e.out, line)
	}

	if !follow {
		return nil
	}
	return watcher.Follow(ctx, path, -1, e.out)
}
