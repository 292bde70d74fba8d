package app

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/nicdgonzalez/axiom/internal/output"
	"github.com/nicdgonzalez/axiom/internal/resolve"
	"github.com/nicdgonzalez/axiom/internal/store"
)

var (
	versionsFlagRefresh bool
	versionsFlagBuilds  string
	versionsFlagOutput  string
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List server versions and builds",
	Long: `List the server versions PaperMC publishes.

The list comes from the local cache; --refresh asks the PaperMC API again.
Build details are shown for versions whose builds were fetched before, or
for one version with --builds.`,
	Example: `  axiom versions --refresh
  axiom versions --builds 1.21.3`,
	Args: cobra.NoArgs,
	RunE: runVersions,
}

func init() {
	versionsCmd.Flags().BoolVar(&versionsFlagRefresh, "refresh", false, "Query the PaperMC API instead of the cache")
	versionsCmd.Flags().StringVar(&versionsFlagBuilds, "builds", "", "List the builds of VERSION")
	versionsCmd.Flags().StringVarP(&versionsFlagOutput, "output", "o", "table", "Output format: table, json or yaml")

	RootCmd.AddCommand(versionsCmd)
}

func runVersions(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(versionsFlagOutput)
	if err != nil {
		return err
	}
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	if versionsFlagBuilds != "" {
		return e.builds(cmd.Context(), versionsFlagBuilds, versionsFlagRefresh, format)
	}
	return e.versions(cmd.Context(), versionsFlagRefresh, format)
}

func (e *env) versions(ctx context.Context, refresh bool, format output.Format) error {
	listing, err := e.catalog.Versions(ctx, refresh)
	if err != nil {
		return err
	}
	if listing.Stale {
		fmt.Fprintln(e.errOut, "warning: the PaperMC API is unreachable, showing cached versions")
	}

	rows := make([]output.VersionRow, 0, len(listing.Versions))
	for _, v := range listing.Versions {
		row := output.VersionRow{Version: v}
		builds, _, err := e.store.LoadBuilds(v)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return err
		default:
			row.Loaded = true
			row.Builds = len(builds)
			for _, b := range builds {
				row.LatestBuild = max(row.LatestBuild, b.Number)
				if b.Stable() {
					row.LatestStable = max(row.LatestStable, b.Number)
				}
			}
		}
		rows = append(rows, row)
	}
	return output.Write(e.out, format, rows, func() string { return output.RenderVersionTable(rows) })
}

func (e *env) builds(ctx context.Context, version string, refresh bool, format output.Format) error {
	listing, err := e.catalog.Versions(ctx, refresh)
	if err != nil {
		return err
	}
	if !slices.Contains(listing.Versions, version) {
		return fmt.Errorf("%w: %s", resolve.ErrUnknownVersion, version)
	}

	result, err := e.catalog.Builds(ctx, version, refresh)
	if err != nil {
		return err
	}
	if result.Stale {
		fmt.Fprintln(e.errOut, "warning: the PaperMC API is unreachable, showing cached builds")
	}

	rows := make([]output.BuildRow, 0, len(result.Builds))
	for _, b := range result.Builds {
		rows = append(rows, output.BuildRow{
			Number:   b.Number,
			Channel:  string(b.Channel),
			FileName: b.FileName,
			SHA256:   b.SHA256,
		})
	}
	return output.Write(e.out, format, rows, func() string { return output.RenderBuildTable(version, rows) })
}
