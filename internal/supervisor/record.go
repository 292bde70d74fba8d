package supervisor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nicdgonzalez/axiom/internal/fsutil"
)

// State is the lifecycle state of a package's server process.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// Instance is the runtime record of a live server process. It is kept in
// run/<name>.json while the process exists so any later axiom invocation can
// find it.
type Instance struct {
	Package   string    `json:"package"`
	ID        string    `json:"instance_id"`
	PID       int       `json:"pid"`
	State     State     `json:"state"`
	StartedAt time.Time `json:"started_at"`
	Endpoint  string    `json:"endpoint"`
	Binary    string    `json:"binary"`
	Log       string    `json:"log"`
}

func readRecord(path string) (*Instance, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read runtime record: %w", err)
	}

	var inst Instance
	if err := json.Unmarshal(data, &inst); err != nil {
		// A torn or foreign file says nothing about a live process.
		return nil, nil
	}
	return &inst, nil
}

func writeRecord(path string, inst *Instance) error {
	data, err := json.MarshalIndent(inst, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode runtime record: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write runtime record: %w", err)
	}
	return nil
}

// alive reports whether inst's process still exists and is the one that was
// launched, not an unrelated process that reused the PID.
func alive(inst *Instance) bool {
	if inst.PID <= 0 {
		return false
	}
	if err := unix.Kill(inst.PID, 0); err != nil && !errors.Is(err, unix.EPERM) {
		return false
	}
	if zombie(inst.PID) {
		return false
	}

	env, err := os.ReadFile(fmt.Sprintf("/proc/%d/environ", inst.PID))
	if err != nil || inst.ID == "" {
		// Without /proc access the signal check is the best available answer.
		return true
	}
	return strings.Contains(string(env), "AXIOM_INSTANCE="+inst.ID+"\x00")
}

// zombie reports whether pid has exited but not been reaped.
func zombie(pid int) bool {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	s := string(data)
	i := strings.LastIndexByte(s, ')')
	if i < 0 || i+2 >= len(s) {
		return false
	}
	return s[i+2] == 'Z'
}
