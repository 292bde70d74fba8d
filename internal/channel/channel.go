// Package channel implements the console command channel of a running
// server: a named pipe with one long-lived reader (the listener inside the
// server) and short-lived writers that open it, write one line and close it.
//
// Writes of at most PIPE_BUF bytes to a pipe are atomic, so lines from
// concurrent writers never interleave. The endpoint carries no
// authentication; anyone able to open the path can issue commands, and the
// endpoint is created mode 0600 inside a 0700 directory for that reason.
package channel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sys/unix"
)

// MaxLine is the largest command accepted, including its newline.
const MaxLine = 4096

var (
	// ErrNoListener is returned when no reader has the endpoint open.
	ErrNoListener = errors.New("no listener on command channel")

	ErrLineTooLong     = errors.New("command too long")
	ErrInvalidCommand  = errors.New("invalid command")
	ErrNotAnEndpoint   = errors.New("path is not a command channel endpoint")
	errReaderReopening = errors.New("reader not attached")
)

// CreateEndpoint makes the named pipe at path. An existing pipe is reused.
func CreateEndpoint(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create endpoint directory: %w", err)
	}

	if fi, err := os.Lstat(path); err == nil {
		if fi.Mode()&os.ModeNamedPipe != 0 {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrNotAnEndpoint, path)
	}

	if err := unix.Mkfifo(path, 0o600); err != nil && !errors.Is(err, unix.EEXIST) {
		return fmt.Errorf("failed to create endpoint %s: %w", path, err)
	}
	return nil
}

// RemoveEndpoint deletes the named pipe at path and its listener lock.
func RemoveEndpoint(path string) error {
	for _, p := range []string{path, lockPath(path)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove endpoint %s: %w", p, err)
		}
	}
	return nil
}

// Sender is one open write end of an endpoint.
type Sender struct {
	f *os.File
}

// OpenOptions tunes how long Open waits for a reader that is between opens.
type OpenOptions struct {
	Attempts int
	Interval time.Duration
}

var defaultOpen = OpenOptions{Attempts: 5, Interval: 20 * time.Millisecond}

// Open opens path for writing. It fails with ErrNoListener when no reader is
// attached, after briefly retrying in case the reader is reopening its end.
func Open(ctx context.Context, path string) (*Sender, error) {
	return OpenWith(ctx, path, defaultOpen)
}

// OpenWith is Open with explicit retry settings.
func OpenWith(ctx context.Context, path string, opts OpenOptions) (*Sender, error) {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}

	op := func() (*os.File, error) {
		fd, err := unix.Open(path, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
		switch {
		case errors.Is(err, unix.ENXIO):
			return nil, errReaderReopening
		case errors.Is(err, unix.ENOENT):
			return nil, backoff.Permanent(fmt.Errorf("%w: %s does not exist", ErrNoListener, path))
		case err != nil:
			return nil, backoff.Permanent(fmt.Errorf("failed to open %s: %w", path, err))
		}

		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			unix.Close(fd)
			return nil, backoff.Permanent(fmt.Errorf("failed to stat %s: %w", path, err))
		}
		if st.Mode&unix.S_IFMT != unix.S_IFIFO {
			unix.Close(fd)
			return nil, backoff.Permanent(fmt.Errorf("%w: %s", ErrNotAnEndpoint, path))
		}

		// Blocking writes from here on; a full pipe waits for the reader.
		if err := unix.SetNonblock(fd, false); err != nil {
			unix.Close(fd)
			return nil, backoff.Permanent(fmt.Errorf("failed to configure %s: %w", path, err))
		}
		return os.NewFile(uintptr(fd), path), nil
	}

	f, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(opts.Interval)),
		backoff.WithMaxTries(uint(opts.Attempts)),
	)
	if errors.Is(err, errReaderReopening) {
		return nil, fmt.Errorf("%w: %s", ErrNoListener, path)
	}
	if err != nil {
		return nil, err
	}
	return &Sender{f: f}, nil
}

// Send writes one command line.
func (s *Sender) Send(line string) error {
	if err := Validate(line); err != nil {
		return err
	}
	buf := []byte(line + "\n")
	n, err := s.f.Write(buf)
	if errors.Is(err, unix.EPIPE) {
		return fmt.Errorf("%w: listener went away", ErrNoListener)
	}
	if err != nil {
		return fmt.Errorf("failed to write command: %w", err)
	}
	if n != len(buf) {
		return fmt.Errorf("failed to write command: short write (%d of %d bytes)", n, len(buf))
	}
	return nil
}

// Close releases the write end.
func (s *Sender) Close() error {
	return s.f.Close()
}

// Validate checks that line can travel as a single atomic message.
func Validate(line string) error {
	if strings.TrimSpace(line) == "" {
		return fmt.Errorf("%w: empty command", ErrInvalidCommand)
	}
	if strings.ContainsAny(line, "\r\n") {
		return fmt.Errorf("%w: command contains a line break", ErrInvalidCommand)
	}
	if len(line)+1 > MaxLine {
		return fmt.Errorf("%w: %d bytes, limit is %d", ErrLineTooLong, len(line), MaxLine-1)
	}
	return nil
}

// Send opens path, writes line and closes it again.
func Send(ctx context.Context, path, line string) error {
	if err := Validate(line); err != nil {
		return err
	}
	s, err := Open(ctx, path)
	if err != nil {
		return err
	}
	if err := s.Send(line); err != nil {
		s.Close()
		return err
	}
	return s.Close()
}

// SendAll sends lines in order, reopening the endpoint for each one so other
// writers are never starved. It stops at the first failure and reports how
// many lines were delivered.
func SendAll(ctx context.Context, path string, lines []string) (int, error) {
	for i, line := range lines {
		if err := Send(ctx, path, line); err != nil {
			return i, err
		}
	}
	return len(lines), nil
}
