package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nicdgonzalez/axiom/internal/manifest"
	"github.com/nicdgonzalez/axiom/internal/output"
	"github.com/nicdgonzalez/axiom/internal/packages"
	"github.com/nicdgonzalez/axiom/internal/resolve"
)

var (
	newFlagExperimental bool
	newFlagRefresh      bool
	newFlagAcceptEULA   bool
	newFlagMemory       string
)

var newCmd = &cobra.Command{
	Use:   "new NAME [VERSION [BUILD]]",
	Short: "Create a server package",
	Long: `Create a new server package and download its server build.

Without VERSION the newest version with a stable build is used. Without
BUILD the newest build of the version allowed by --allow-experimental is
used. Version data is taken from the local cache when available; pass
--refresh to ask the PaperMC API again.

The package name is normalized: "My World" and "my-world" are the same
package.`,
	Example: `  # Newest stable server
  axiom new survival --accept-eula

  # A specific version and build with 8G of memory
  axiom new creative 1.21.1 132 --memory 8G`,
	Args: cobra.RangeArgs(1, 3),
	RunE: runNew,
}

func init() {
	newCmd.Flags().BoolVarP(&newFlagExperimental, "allow-experimental", "e", false, "Allow experimental builds")
	newCmd.Flags().BoolVar(&newFlagRefresh, "refresh", false, "Query the PaperMC API instead of the version cache")
	newCmd.Flags().BoolVar(&newFlagAcceptEULA, "accept-eula", false, "Accept the Minecraft EULA (https://aka.ms/MinecraftEULA)")
	newCmd.Flags().StringVar(&newFlagMemory, "memory", "", "JVM heap size, e.g. 4G (default from Axiom.toml defaults)")

	RootCmd.AddCommand(newCmd)
}

type newOptions struct {
	Refresh    bool
	AcceptEULA bool
	Memory     string
}

func runNew(cmd *cobra.Command, args []string) error {
	req, err := parseTargetArgs(args[1:])
	if err != nil {
		return err
	}
	req.AllowExperimental = newFlagExperimental

	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	return e.create(cmd.Context(), args[0], req, newOptions{
		Refresh:    newFlagRefresh,
		AcceptEULA: newFlagAcceptEULA,
		Memory:     newFlagMemory,
	})
}

func (e *env) create(ctx context.Context, name string, req resolve.Request, opts newOptions) error {
	name, err := packages.Normalize(name)
	if err != nil {
		return err
	}
	// Fail before touching the network when the name is taken.
	if _, err := e.packages.Get(name); err == nil {
		return fmt.Errorf("%w: %s", packages.ErrNameAlreadyExists, name)
	} else if !errors.Is(err, packages.ErrNotFound) {
		return err
	}

	m := manifest.Default()
	if opts.Memory != "" {
		m.Launcher.Memory = opts.Memory
	}
	if err := m.Validate(); err != nil {
		return err
	}

	target, err := e.resolveTarget(ctx, req, opts.Refresh)
	if err != nil {
		return err
	}

	bar := output.NewByteProgress(target.FileName)
	bar.SetWriter(e.errOut)
	pkg, err := e.packages.Create(ctx, name, target, bar.Update)
	if err != nil {
		return err
	}
	bar.Finish()

	if err := manifest.Save(pkg.Root, m); err != nil {
		return err
	}
	if opts.AcceptEULA {
		if err := manifest.AcceptEULA(packages.ServerDir(pkg.Root)); err != nil {
			return err
		}
	}

	fmt.Fprintf(e.out, "Created %s on Paper %s\n", pkg.Name, describeTarget(pkg.Target))
	fmt.Fprintf(e.out, "  root:     %s\n", pkg.Root)
	fmt.Fprintf(e.out, "  settings: %s\n", manifest.Path(pkg.Root))
	if !opts.AcceptEULA {
		fmt.Fprintf(e.out, "\nStart it with: axiom start %s --accept-eula\n", pkg.Name)
	} else {
		fmt.Fprintf(e.out, "\nStart it with: axiom start %s\n", pkg.Name)
	}
	return nil
}
