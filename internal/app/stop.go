package app

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nicdgonzalez/axiom/internal/output"
)

var stopFlagTimeout time.Duration

var stopCmd = &cobra.Command{
	Use:   "stop NAME",
	Short: "Stop a running server",
	Long: `Ask a server to shut down and wait for it to exit.

The "stop" console command is sent over the command channel so the world is
saved; when the server does not read the channel it gets SIGTERM instead.
A server still running after --timeout is killed.`,
	Example: `  axiom stop survival
  axiom stop survival --timeout 2m`,
	Args: cobra.ExactArgs(1),
	RunE: runStop,
}

func init() {
	stopCmd.Flags().DurationVarP(&stopFlagTimeout, "timeout", "t", 0, "How long to wait before killing the server (default: stop_timeout from config)")

	RootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	timeout := stopFlagTimeout
	if timeout <= 0 {
		timeout = e.cfg.StopTimeout.Duration
	}
	return e.stop(cmd.Context(), args[0], timeout)
}

func (e *env) stop(ctx context.Context, name string, timeout time.Duration) error {
	pkg, err := e.packages.Get(name)
	if err != nil {
		return err
	}

	spinner := output.NewSpinner("Stopping " + pkg.Name).WithTimeout(timeout)
	spinner.SetWriter(e.errOut)
	spinner.Start()
	res, err := e.sup.Stop(ctx, pkg.Name, timeout)
	spinner.Stop()
	if err != nil {
		return err
	}

	switch {
	case res.Forced:
		fmt.Fprintf(e.out, "%s did not stop within %s and was killed (pid %d)\n", pkg.Name, timeout, res.PID)
	case res.Graceful:
		fmt.Fprintf(e.out, "%s stopped\n", pkg.Name)
	default:
		fmt.Fprintf(e.out, "%s stopped after SIGTERM (the command channel had no listener)\n", pkg.Name)
	}
	return nil
}
