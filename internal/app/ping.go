package app

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nicdgonzalez/axiom/internal/manifest"
	"github.com/nicdgonzalez/axiom/internal/output"
	"github.com/nicdgonzalez/axiom/internal/packages"
	"github.com/nicdgonzalez/axiom/internal/ping"
)

var (
	pingFlagPort    int
	pingFlagTimeout time.Duration
	pingFlagOutput  string
)

var pingCmd = &cobra.Command{
	Use:   "ping [HOST[:PORT] | NAME]",
	Short: "Query a server's MOTD, player count and version",
	Long: `Query a Minecraft server with the server list ping.

The target is a host (default 127.0.0.1) or the name of a local package,
in which case its server-port from Axiom.toml is used.`,
	Example: `  axiom ping
  axiom ping survival
  axiom ping play.example.com --port 25566`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPing,
}

func init() {
	pingCmd.Flags().IntVarP(&pingFlagPort, "port", "p", 0, "Server port (default 25565)")
	pingCmd.Flags().DurationVar(&pingFlagTimeout, "timeout", 5*time.Second, "Give up after this long")
	pingCmd.Flags().StringVarP(&pingFlagOutput, "output", "o", "table", "Output format: table, json or yaml")

	RootCmd.AddCommand(pingCmd)
}

func runPing(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(pingFlagOutput)
	if err != nil {
		return err
	}
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	target := ""
	if len(args) == 1 {
		target = args[0]
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), pingFlagTimeout)
	defer cancel()
	return e.ping(ctx, target, pingFlagPort, format)
}

func (e *env) ping(ctx context.Context, target string, port int, format output.Format) error {
	host, port := e.pingAddress(target, port)

	res, err := ping.Ping(ctx, host, port)
	if err != nil {
		return err
	}
	return output.Write(e.out, format, res, func() string {
		var sb strings.Builder
		fmt.Fprintf(&sb, "MOTD: %s\n", res.MOTD)
		fmt.Fprintf(&sb, "Players Online: %d/%d\n", res.PlayersOnline, res.PlayersMax)
		fmt.Fprintf(&sb, "Version: %s (protocol %d)\n", res.Version, res.Protocol)
		fmt.Fprintf(&sb, "Latency: %s\n", res.Latency.Round(time.Millisecond))
		return sb.String()
	})
}

// pingAddress works out where target lives. A package name maps to the
// loopback address and the package's configured port.
func (e *env) pingAddress(target string, port int) (string, int) {
	host := "127.0.0.1"
	found := 0

	if target != "" {
		host = target
		if h, p, err := net.SplitHostPort(target); err == nil {
			host = h
			found, _ = strconv.Atoi(p)
		} else if name, err := packages.Normalize(target); err == nil {
			if pkg, err := e.packages.Get(name); err == nil {
				host, found = serverAddress(pkg.Root)
			}
		}
	}

	switch {
	case port > 0:
		return host, port
	case found > 0:
		return host, found
	default:
		return host, ping.DefaultPort
	}
}

// serverAddress reads server-ip and server-port from a package's manifest.
func serverAddress(root string) (string, int) {
	host := "127.0.0.1"
	m, err := manifest.Load(root)
	if err != nil {
		return host, 0
	}
	if ip, ok := m.Properties["server-ip"].(string); ok && ip != "" {
		host = ip
	}
	if p, ok := m.Properties["server-port"].(int64); ok {
		return host, int(p)
	}
	return host, 0
}
