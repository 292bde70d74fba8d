// Package console runs a server process with its standard input fed from a
// command channel endpoint, for servers that have no plugin reading the
// endpoint themselves.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/nicdgonzalez/axiom/internal/channel"
)

// Options configures a Wrapper.
type Options struct {
	// Pipe is the command channel endpoint to read.
	Pipe string
	// Argv is the server command line.
	Argv   []string
	Stdout io.Writer
	Stderr io.Writer
	Logger zerolog.Logger
}

// Wrapper owns the endpoint's read end and the server process.
type Wrapper struct {
	argv     []string
	stdout   io.Writer
	stderr   io.Writer
	listener *channel.Listener
	log      zerolog.Logger
}

// New attaches to the endpoint. Commands sent after New returns are queued
// until Run starts the server.
func New(opts Options) (*Wrapper, error) {
	if len(opts.Argv) == 0 {
		return nil, errors.New("no server command given")
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	l, err := channel.Listen(opts.Pipe, opts.Logger)
	if err != nil {
		return nil, err
	}
	return &Wrapper{
		argv:     opts.Argv,
		stdout:   opts.Stdout,
		stderr:   opts.Stderr,
		listener: l,
		log:      opts.Logger.With().Str("component", "console").Logger(),
	}, nil
}

// Run starts the server, forwards commands and termination signals to it and
// returns its exit code once it exits.
func (w *Wrapper) Run(ctx context.Context) (int, error) {
	defer w.listener.Close()

	cmd := exec.Command(w.argv[0], w.argv[1:]...)
	cmd.Stdout = w.stdout
	cmd.Stderr = w.stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return 1, fmt.Errorf("failed to attach server stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return 1, fmt.Errorf("failed to start %s: %w", w.argv[0], err)
	}
	w.log.Debug().Int("pid", cmd.Process.Pid).Strs("argv", w.argv).Msg("server started")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string, 16)
	go func() {
		if err := w.listener.Run(runCtx, lines); err != nil {
			w.log.Error().Err(err).Msg("command channel failed")
		}
	}()

	// Lines are written by this goroutine alone so they never interleave.
	go func() {
		for line := range lines {
			if _, err := io.WriteString(stdin, line+"\n"); err != nil {
				w.log.Warn().Err(err).Str("command", line).Msg("server stdin closed, dropping command")
				continue
			}
			w.log.Debug().Str("command", line).Msg("command forwarded")
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigs)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	for {
		select {
		case sig := <-sigs:
			w.log.Debug().Str("signal", sig.String()).Msg("forwarding signal")
			cmd.Process.Signal(sig) //nolint:errcheck
		case err := <-done:
			cancel()
			stdin.Close()
			return exitCode(err)
		}
	}
}

// exitCode converts a Wait result to a shell-style exit status.
func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return 1, err
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal()), nil
	}
	return exitErr.ExitCode(), nil
}
