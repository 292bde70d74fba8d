package app

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/nicdgonzalez/axiom/internal/packages"
)

var deleteFlagYes bool

var deleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a package and its directory",
	Long: `Delete a package: its record, its server builds and its world data.

The server must be stopped. If the directory cannot be fully removed the
deletion stays pending and running the same command again finishes it.`,
	Example: `  axiom delete creative
  axiom delete creative --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteFlagYes, "yes", "y", false, "Skip the confirmation prompt")

	RootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	interactive := isatty.IsTerminal(os.Stdin.Fd())
	return e.delete(args[0], deleteFlagYes, cmd.InOrStdin(), interactive)
}

func (e *env) delete(name string, yes bool, in io.Reader, interactive bool) error {
	name, err := packages.Normalize(name)
	if err != nil {
		return err
	}
	if !yes {
		if !interactive {
			return fmt.Errorf("refusing to delete %s without --yes when stdin is not a terminal", name)
		}
		if !confirmDelete(e.out, in, name) {
			fmt.Fprintln(e.out, "Deletion cancelled.")
			return nil
		}
	}

	if err := e.packages.Delete(name); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Deleted %s\n", name)
	return nil
}

// confirmDelete asks for the package name to be typed back, since the
// world data goes with it.
func confirmDelete(w io.Writer, in io.Reader, name string) bool {
	fmt.Fprintf(w, "This permanently deletes %s and its worlds.\n", name)
	fmt.Fprintf(w, "Type the package name to confirm (or press Enter to cancel): ")
	response, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && response == "" {
		return false
	}
	return strings.TrimSpace(response) == name
}
