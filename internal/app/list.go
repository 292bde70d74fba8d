package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nicdgonzalez/axiom/internal/output"
	"github.com/nicdgonzalez/axiom/internal/store"
)

var listFlagOutput string

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List installed packages",
	Example: `  axiom list
  axiom list -o json`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVarP(&listFlagOutput, "output", "o", "table", "Output format: table, json or yaml")

	RootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(listFlagOutput)
	if err != nil {
		return err
	}
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	return e.list(format)
}

func (e *env) list(format output.Format) error {
	pkgs, err := e.packages.List()
	if err != nil {
		return err
	}

	rows := make([]output.PackageRow, 0, len(pkgs))
	for _, pkg := range pkgs {
		rows = append(rows, e.packageRow(pkg))
	}
	if err := output.Write(e.out, format, rows, func() string { return output.RenderPackageTable(rows) }); err != nil {
		return err
	}

	pending, err := e.packages.PendingDeletions()
	if err != nil {
		e.log.Warn().Err(err).Msg("failed to list pending deletions")
		return nil
	}
	for _, p := range pending {
		fmt.Fprintf(e.errOut, "warning: deletion of %s did not finish; run 'axiom delete %s' again\n", p.Name, p.Name)
	}
	return nil
}

func (e *env) packageRow(pkg *store.Package) output.PackageRow {
	row := output.PackageRow{
		Name:         pkg.Name,
		Version:      pkg.Target.Version,
		Build:        pkg.Target.Build,
		Experimental: pkg.Target.Experimental(),
		State:        "unknown",
		Root:         pkg.Root,
		CreatedAt:    pkg.CreatedAt,
		UpdatedAt:    pkg.UpdatedAt,
	}
	if st, err := e.sup.Status(pkg.Name); err == nil {
		row.State = string(st.State)
	} else {
		e.log.Warn().Err(err).Str("package", pkg.Name).Msg("failed to read server state")
	}
	if fi, err := os.Stat(pkg.BinaryPath); err == nil {
		row.SizeBytes = fi.Size()
	}
	return row
}
