package app

import (
	"github.com/spf13/cobra"

	"github.com/nicdgonzalez/axiom/internal/output"
	"github.com/nicdgonzalez/axiom/internal/store"
)

var statusFlagOutput string

var statusCmd = &cobra.Command{
	Use:   "status [NAME]",
	Short: "Show whether servers are running",
	Long: `Show the state of one package's server, or of every package.

The state is checked against the running processes each time, so a server
that crashed is reported as stopped.`,
	Example: `  axiom status
  axiom status survival -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusFlagOutput, "output", "o", "table", "Output format: table, json or yaml")

	RootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusFlagOutput)
	if err != nil {
		return err
	}
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	name := ""
	if len(args) == 1 {
		name = args[0]
	}
	return e.status(name, format)
}

func (e *env) status(name string, format output.Format) error {
	var pkgs []*store.Package
	if name != "" {
		pkg, err := e.packages.Get(name)
		if err != nil {
			return err
		}
		pkgs = []*store.Package{pkg}
	} else {
		all, err := e.packages.List()
		if err != nil {
			return err
		}
		pkgs = all
	}

	rows := make([]output.StatusRow, 0, len(pkgs))
	for _, pkg := range pkgs {
		st, err := e.sup.Status(pkg.Name)
		if err != nil {
			return err
		}
		row := output.StatusRow{
			Name:   pkg.Name,
			State:  string(st.State),
			Since:  st.Since,
			Target: pkg.Target.String(),
		}
		if st.Instance != nil {
			row.PID = st.Instance.PID
			row.Endpoint = st.Instance.Endpoint
		}
		rows = append(rows, row)
	}
	return output.Write(e.out, format, rows, func() string { return output.RenderStatusTable(rows) })
}
