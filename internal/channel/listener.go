package channel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// ErrListenerAttached is returned by Listen when another reader already
// holds the endpoint.
var ErrListenerAttached = errors.New("command channel already has a listener")

// Listener owns the read end of an endpoint for the lifetime of the process
// it serves. It only reads; executing the received lines is left to whoever
// consumes Run's output channel, so commands can be dispatched on the host's
// own thread.
type Listener struct {
	path string
	f    *os.File
	lock *os.File
	log  zerolog.Logger

	closeOnce sync.Once
}

// Listen opens the endpoint at path for reading. The endpoint is opened
// read-write so the listener never sees end-of-file between writers.
// Only one listener may hold an endpoint; a second one fails with
// ErrListenerAttached.
func Listen(path string, logger zerolog.Logger) (*Listener, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open endpoint: %w", err)
	}
	if fi.Mode()&os.ModeNamedPipe == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotAnEndpoint, path)
	}

	lock, err := os.OpenFile(lockPath(path), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open endpoint lock: %w", err)
	}
	if err := unix.Flock(int(lock.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		lock.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrListenerAttached, path)
		}
		return nil, fmt.Errorf("failed to lock endpoint %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		lock.Close()
		return nil, fmt.Errorf("failed to open endpoint: %w", err)
	}
	return &Listener{
		path: path,
		f:    f,
		lock: lock,
		log:  logger.With().Str("component", "listener").Str("endpoint", path).Logger(),
	}, nil
}

// Run reads newline-delimited commands and delivers each one to out in the
// order received, until ctx is cancelled or Close is called. out is closed
// when Run returns.
func (l *Listener) Run(ctx context.Context, out chan<- string) error {
	defer close(out)

	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	scanner := bufio.NewScanner(l.f)
	scanner.Buffer(make([]byte, 0, MaxLine), MaxLine)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		select {
		case out <- line:
		case <-ctx.Done():
			return nil
		}
	}

	err := scanner.Err()
	if err == nil || errors.Is(err, os.ErrClosed) {
		return nil
	}
	if errors.Is(err, bufio.ErrTooLong) {
		l.log.Error().Msg("command exceeded the line limit, listener stopped")
	}
	return fmt.Errorf("failed to read endpoint %s: %w", l.path, err)
}

// Close releases the read end. Writers see ErrNoListener afterwards.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.f.Close()
		l.lock.Close()
	})
	return err
}

// lockPath is the file a listener locks to claim the endpoint at path.
func lockPath(path string) string {
	return path + ".lock"
}
