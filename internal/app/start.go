package app

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nicdgonzalez/axiom/internal/manifest"
	"github.com/nicdgonzalez/axiom/internal/output"
	"github.com/nicdgonzalez/axiom/internal/packages"
	"github.com/nicdgonzalez/axiom/internal/store"
	"github.com/nicdgonzalez/axiom/internal/supervisor"
)

var startFlagAcceptEULA bool

var startCmd = &cobra.Command{
	Use:   "start NAME",
	Short: "Start a server in the background",
	Long: `Start a package's server as a background process.

server.properties is regenerated from the [properties] table of Axiom.toml
before launch. The command returns once the server has stayed up for the
start grace period; its console output goes to the log shown by
'axiom logs'.`,
	Example: `  axiom start survival
  axiom start survival --accept-eula`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVar(&startFlagAcceptEULA, "accept-eula", false, "Accept the Minecraft EULA (https://aka.ms/MinecraftEULA)")

	RootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	return e.start(cmd.Context(), args[0], startFlagAcceptEULA)
}

func (e *env) start(ctx context.Context, name string, acceptEULA bool) error {
	// The lock keeps a concurrent start or an update from racing the launch.
	return e.packages.Hold(name, func(pkg *store.Package) error {
		return e.launch(ctx, pkg, acceptEULA)
	})
}

func (e *env) launch(ctx context.Context, pkg *store.Package, acceptEULA bool) error {
	m, err := manifest.Load(pkg.Root)
	if err != nil {
		return err
	}

	serverDir := packages.ServerDir(pkg.Root)
	if err := os.MkdirAll(serverDir, 0o755); err != nil {
		return fmt.Errorf("failed to create server directory: %w", err)
	}
	if acceptEULA {
		if err := manifest.AcceptEULA(serverDir); err != nil {
			return err
		}
	}
	accepted, err := manifest.EULAAccepted(serverDir)
	if err != nil {
		return err
	}
	if !accepted {
		return fmt.Errorf("%w: %s", manifest.ErrEULANotAccepted, pkg.Name)
	}
	if err := manifest.WriteProperties(serverDir, m.Properties); err != nil {
		return err
	}

	spinner := output.NewSpinner("Starting " + pkg.Name).WithTimeout(0)
	spinner.SetWriter(e.errOut)
	spinner.Start()
	inst, err := e.sup.Start(ctx, launchSpec(pkg, m))
	spinner.Stop()
	if err != nil {
		return err
	}

	fmt.Fprintf(e.out, "%s is running (pid %d) on Paper %s\n", pkg.Name, inst.PID, describeTarget(pkg.Target))
	fmt.Fprintf(e.out, "  console log: %s\n", inst.Log)
	fmt.Fprintf(e.out, "  commands:    axiom send %s <command>\n", pkg.Name)
	return nil
}

// launchSpec describes how to run pkg with the launcher settings of m.
func launchSpec(pkg *store.Package, m manifest.Manifest) supervisor.LaunchSpec {
	return supervisor.LaunchSpec{
		Package:  pkg.Name,
		Binary:   pkg.BinaryPath,
		WorkDir:  packages.ServerDir(pkg.Root),
		Java:     m.Launcher.Java,
		Memory:   m.Launcher.Memory,
		JavaArgs: m.Launcher.JavaArgs,
		GameArgs: m.Launcher.GameArgs,
		Wrapper:  m.Launcher.Console == manifest.ConsoleWrapper,
	}
}
