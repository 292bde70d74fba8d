package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nicdgonzalez/axiom/internal/channel"
)

var sendCmd = &cobra.Command{
	Use:     "send NAME COMMAND...",
	Aliases: []string{"send-command"},
	Short:   "Send a console command to a running server",
	Long: `Send a console command to a running server over its command channel.

The words after NAME are joined into one command line. With "-" as the only
command, one command per line is read from standard input and delivered in
order.`,
	Example: `  axiom send survival say Restarting in 5 minutes
  printf 'save-all\nsay saved\n' | axiom send survival -`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSend,
}

func init() {
	RootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	lines := []string{strings.Join(args[1:], " ")}
	if len(args) == 2 && args[1] == "-" {
		var err error
		if lines, err = readCommands(cmd.InOrStdin()); err != nil {
			return err
		}
	}

	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	return e.send(cmd.Context(), args[0], lines)
}

// readCommands returns the non-blank lines of r.
func readCommands(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, channel.MaxLine), channel.MaxLine)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read commands: %w", err)
	}
	return lines, nil
}

func (e *env) send(ctx context.Context, name string, lines []string) error {
	pkg, err := e.packages.Get(name)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return fmt.Errorf("%w: no commands to send to %s", channel.ErrInvalidCommand, pkg.Name)
	}
	for _, line := range lines {
		if err := channel.Validate(line); err != nil {
			return err
		}
	}

	sent, err := channel.SendAll(ctx, e.sup.Endpoint(pkg.Name), lines)
	if err != nil {
		if sent > 0 {
			return fmt.Errorf("sent %d of %d commands to %s: %w", sent, len(lines), pkg.Name, err)
		}
		return fmt.Errorf("%s: %w", pkg.Name, err)
	}
	if sent == 1 {
		fmt.Fprintf(e.out, "Sent to %s: %s\n", pkg.Name, lines[0])
	} else {
		fmt.Fprintf(e.out, "Sent %d commands to %s\n", sent, pkg.Name)
	}
	return nil
}
