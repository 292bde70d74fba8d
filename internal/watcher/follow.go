package watcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// pollInterval backs up fsnotify on filesystems that drop events.
const pollInterval = time.Second

// Tail returns up to n trailing lines of the file at path.
func Tail(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if n <= 0 {
		return nil, nil
	}

	ring := make([]string, 0, n)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(ring) == n {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ring, nil
}

// Follow copies everything appended to path into w until ctx is cancelled.
// Reading starts at offset, or at the current end when offset is negative.
func Follow(ctx context.Context, path string, offset int64, w io.Writer) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	// Watch the directory so a rotated or recreated log is noticed.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	t := &tailer{path: path, w: w}
	if err := t.open(offset); err != nil {
		return err
	}
	defer t.close()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				// A new file took the old one's place; read it from the start.
				if err := t.open(0); err != nil {
					return err
				}
			}
			if err := t.drain(); err != nil {
				return err
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", path, err)
		case <-ticker.C:
			if err := t.drain(); err != nil {
				return err
			}
		}
	}
}

type tailer struct {
	path string
	w    io.Writer
	f    *os.File
	pos  int64
}

func (t *tailer) open(offset int64) error {
	t.close()
	f, err := os.Open(t.path)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	whence := io.SeekStart
	if offset < 0 {
		offset, whence = 0, io.SeekEnd
	}
	pos, err := f.Seek(offset, whence)
	if err != nil {
		f.Close()
		return fmt.Errorf("seek log: %w", err)
	}
	t.f, t.pos = f, pos
	return t.drain()
}

// drain copies any unread bytes, starting over when the file shrank.
func (t *tailer) drain() error {
	if t.f == nil {
		return nil
	}
	fi, err := t.f.Stat()
	if err != nil {
		return fmt.Errorf("stat log: %w", err)
	}
	if fi.Size() < t.pos {
		if _, err := t.f.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("seek log: %w", err)
		}
		t.pos = 0
	}
	n, err := io.Copy(t.w, t.f)
	t.pos += n
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read log: %w", err)
	}
	return nil
}

func (t *tailer) close() {
	if t.f != nil {
		t.f.Close()
		t.f = nil
	}
}
