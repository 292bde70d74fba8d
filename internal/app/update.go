package app

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nicdgonzalez/axiom/internal/output"
	"github.com/nicdgonzalez/axiom/internal/resolve"
)

var (
	updateFlagExperimental bool
	updateFlagDowngrade    bool
	updateFlagOffline      bool
	updateFlagTimeout      time.Duration
)

var updateCmd = &cobra.Command{
	Use:   "update NAME [VERSION [BUILD]]",
	Short: "Move a package to another server build",
	Long: `Replace the server build a package runs.

Without VERSION the package moves to the newest build of the newest version
with a stable build. A package already on an experimental build may move to
other builds of the same version without --allow-experimental.

Moving to an older version needs --allow-downgrade: worlds saved by a newer
version may not load in an older one. A lower build of the same version is
always allowed.

The new build is downloaded next to the current one and the package switches
only once the download is verified. The server must be stopped.`,
	Example: `  # Newest stable build
  axiom update survival

  # Pin a build
  axiom update survival 1.21.3 80`,
	Args: cobra.RangeArgs(1, 3),
	RunE: runUpdate,
}

func init() {
	updateCmd.Flags().BoolVarP(&updateFlagExperimental, "allow-experimental", "e", false, "Allow experimental builds")
	updateCmd.Flags().BoolVarP(&updateFlagDowngrade, "allow-downgrade", "d", false, "Allow moving to an older version")
	updateCmd.Flags().BoolVar(&updateFlagOffline, "offline", false, "Resolve from the version cache without querying the PaperMC API")
	updateCmd.Flags().DurationVarP(&updateFlagTimeout, "timeout", "t", 0, "Give up after this long (default: no limit)")

	RootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	req, err := parseTargetArgs(args[1:])
	if err != nil {
		return err
	}
	req.AllowExperimental = updateFlagExperimental
	req.AllowDowngrade = updateFlagDowngrade

	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	if updateFlagTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, updateFlagTimeout)
		defer cancel()
	}
	return e.update(ctx, args[0], req, updateFlagOffline)
}

func (e *env) update(ctx context.Context, name string, req resolve.Request, offline bool) error {
	pkg, err := e.packages.Get(name)
	if err != nil {
		return err
	}
	current := pkg.Target
	req.Current = &current

	target, err := e.resolveTarget(ctx, req, !offline)
	if err != nil {
		return err
	}
	if target.Version == current.Version && target.Build == current.Build {
		fmt.Fprintf(e.out, "%s is already on %s\n", pkg.Name, describeTarget(current))
		return nil
	}

	bar := output.NewByteProgress(target.FileName)
	bar.SetWriter(e.errOut)
	before, after, err := e.packages.UpdateTarget(ctx, pkg.Name, target, bar.Update)
	if err != nil {
		return err
	}
	bar.Finish()

	fmt.Fprintf(e.out, "Updated %s: %s -> %s\n", after.Name, describeTarget(before.Target), describeTarget(after.Target))
	return nil
}
