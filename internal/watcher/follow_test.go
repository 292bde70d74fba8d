package watcher

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a bytes.Buffer safe for one writer and one reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, buf *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(buf.String(), want) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("output %q never contained %q", buf.String(), want)
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	f.WriteString(line + "\n")
}

func TestTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	for i := 1; i <= 5; i++ {
		appendLine(t, path, strings.Repeat("x", i))
	}

	lines, err := Tail(path, 2)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if len(lines) != 2 || lines[0] != "xxxx" || lines[1] != "xxxxx" {
		t.Errorf("Tail() = %v, want last two lines", lines)
	}

	all, _ := Tail(path, 100)
	if len(all) != 5 {
		t.Errorf("Tail(100) returned %d lines, want 5", len(all))
	}

	if _, err := Tail(filepath.Join(t.TempDir(), "missing.log"), 3); !os.IsNotExist(err) {
		t.Errorf("Tail(missing) error = %v, want not-exist", err)
	}
}

func TestFollowFromEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	appendLine(t, path, "old line")

	ctx, cancel := context.WithCancel(context.Background())
	buf := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- Follow(ctx, path, -1, buf) }()

	time.Sleep(100 * time.Millisecond)
	appendLine(t, path, "Done (3.2s)! For help, type \"help\"")
	waitFor(t, buf, "Done (3.2s)!")

	if strings.Contains(buf.String(), "old line") {
		t.Error("Follow(-1) replayed existing content")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Follow() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Follow() did not return after cancel")
	}
}

func TestFollowHandlesTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	appendLine(t, path, "a fairly long first line of output")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	buf := &syncBuffer{}
	go Follow(ctx, path, 0, buf)
	waitFor(t, buf, "first line")

	if err := os.Truncate(path, 0); err != nil {
		t.Fatal(err)
	}
	appendLine(t, path, "fresh")
	waitFor(t, buf, "fresh")
}
