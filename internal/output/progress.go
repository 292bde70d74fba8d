package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

// writerIsTTY returns true if the given writer exposes an Fd() method
// (e.g. *os.File) and that fd is a terminal. Falls back to false for
// plain io.Writer values such as *bytes.Buffer.
func writerIsTTY(w io.Writer) bool {
	type fder interface {
		Fd() uintptr
	}
	if f, ok := w.(fder); ok {
		return isatty.IsTerminal(f.Fd())
	}
	return false
}

// ByteProgress displays download progress.
// Example: [=========>          ]  45% 24 MiB / 53 MiB paper-1.21.3-10.jar
//
// Its Update method matches download.Progress so it can be passed straight
// to the installer.
type ByteProgress struct {
	description string
	width       int
	written     int64
	total       int64
	lastDraw    time.Time
	mu          sync.Mutex
	writer      io.Writer
}

// NewByteProgress creates a progress display writing to stderr.
func NewByteProgress(description string) *ByteProgress {
	return &ByteProgress{
		description: description,
		width:       30,
		writer:      os.Stderr,
	}
}

// SetWriter sets the output writer (useful for testing).
func (p *ByteProgress) SetWriter(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writer = w
}

// Update records progress. total is -1 when the size is unknown.
func (p *ByteProgress) Update(written, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.written = written
	p.total = total
	if !writerIsTTY(p.writer) {
		return
	}
	// Redraw at most ten times a second.
	if time.Since(p.lastDraw) < 100*time.Millisecond {
		return
	}
	p.lastDraw = time.Now()
	fmt.Fprintf(p.writer, "\r%s", p.line())
}

// Finish prints the final state and moves to a new line.
func (p *ByteProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.total > 0 {
		p.written = p.total
	}
	if writerIsTTY(p.writer) {
		fmt.Fprintf(p.writer, "\r%s\n", p.line())
		return
	}
	// Non-TTY: a single summary line.
	fmt.Fprintf(p.writer, "Downloaded %s (%s)\n", p.description, humanize.IBytes(uint64(p.written)))
}

// line renders the bar (must be called with lock held).
func (p *ByteProgress) line() string {
	if p.total <= 0 {
		return fmt.Sprintf("%s %s", humanize.IBytes(uint64(p.written)), p.description)
	}

	percentage := int(p.written * 100 / p.total)
	filled := int(p.written * int64(p.width) / p.total)

	var bar strings.Builder
	bar.WriteString("[")
	for i := 0; i < p.width; i++ {
		switch {
		case i < filled-1:
			bar.WriteString("=")
		case i == filled-1:
			bar.WriteString(">")
		default:
			bar.WriteString(" ")
		}
	}
	bar.WriteString("]")

	return fmt.Sprintf("%s %3d%% %s / %s %s", bar.String(), percentage,
		humanize.IBytes(uint64(p.written)), humanize.IBytes(uint64(p.total)), p.description)
}

// Spinner displays an animated spinner with a message.
// Example: |  Waiting for survival to stop (12s remaining)
type Spinner struct {
	message    string
	running    bool
	chars      []string
	mu         sync.Mutex
	writer     io.Writer
	ticker     *time.Ticker
	done       chan struct{}
	timeout    time.Duration
	startTime  time.Time
	showTiming bool
}

// NewSpinner creates a new spinner with a message.
// If the writer is not a TTY, the animation goroutine is skipped and the
// message is printed once so that log output is not cluttered.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		message: message,
		chars:   []string{"|", "/", "-", "\\"},
		writer:  os.Stderr,
		done:    make(chan struct{}),
	}
}

// WithTimeout makes the spinner show the time left before timeout, or the
// elapsed time when timeout is zero. Call it before Start.
func (s *Spinner) WithTimeout(timeout time.Duration) *Spinner {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = timeout
	s.showTiming = true
	return s
}

// SetWriter sets the output writer (useful for testing).
func (s *Spinner) SetWriter(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer = w
}

// Start begins the spinner animation.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.startTime = time.Now()

	if !writerIsTTY(s.writer) {
		fmt.Fprintf(s.writer, "%s...\n", s.message)
		return
	}

	s.ticker = time.NewTicker(100 * time.Millisecond)
	go func() {
		idx := 0
		for {
			select {
			case <-s.ticker.C:
				s.mu.Lock()
				if !s.running {
					s.mu.Unlock()
					return
				}
				fmt.Fprintf(s.writer, "\r%s  %s", s.chars[idx], s.formatMessage())
				idx = (idx + 1) % len(s.chars)
				s.mu.Unlock()
			case <-s.done:
				return
			}
		}
	}()
}

// formatMessage must be called with lock held.
func (s *Spinner) formatMessage() string {
	if !s.showTiming {
		return s.message
	}
	elapsed := time.Since(s.startTime)
	if s.timeout > 0 {
		remaining := max(s.timeout-elapsed, 0)
		return fmt.Sprintf("%s (%ds remaining)", s.message, int(remaining.Seconds()))
	}
	return fmt.Sprintf("%s (%ds elapsed)", s.message, int(elapsed.Seconds()))
}

// Stop stops the spinner animation and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.done)

	if writerIsTTY(s.writer) {
		fmt.Fprintf(s.writer, "\r%s\r", strings.Repeat(" ", len(s.formatMessage())+4))
	}
}

// StopWithMessage stops the spinner and displays a final message.
func (s *Spinner) StopWithMessage(message string) {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.writer, message)
}
