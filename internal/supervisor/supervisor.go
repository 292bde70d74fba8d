// Package supervisor starts and stops package servers as detached background
// processes and answers whether they are running.
//
// axiom has no daemon: each invocation starts, inspects or stops a server and
// exits. What links invocations together is the runtime record in
// run/<name>.json, which is reconciled against the OS process table on every
// read so a crashed server is never reported as running.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/nicdgonzalez/axiom/internal/channel"
)

var (
	ErrAlreadyRunning = errors.New("server is already running")
	ErrBinaryMissing  = errors.New("server binary is missing")
	ErrLaunchFailed   = errors.New("server failed to start")
	ErrNotRunning     = errors.New("server is not running")
)

// StopCommand is the console command asking the server to shut down.
const StopCommand = "stop"

// Options configures a Supervisor.
type Options struct {
	RunDir   string
	PipesDir string
	// Grace is how long a new process must stay alive to count as started.
	Grace time.Duration
	// Poll is the interval between liveness checks while stopping.
	Poll time.Duration
	// KillWait bounds the wait for exit after the forced kill.
	KillWait time.Duration
	// Wrapper is the console wrapper executable for wrapped launches.
	Wrapper string
	Logger  zerolog.Logger
}

// Supervisor manages server processes.
type Supervisor struct {
	runDir   string
	pipesDir string
	grace    time.Duration
	poll     time.Duration
	killWait time.Duration
	wrapper  string
	log      zerolog.Logger
}

// New creates a Supervisor.
func New(opts Options) *Supervisor {
	if opts.Grace <= 0 {
		opts.Grace = 3 * time.Second
	}
	if opts.Poll <= 0 {
		opts.Poll = 250 * time.Millisecond
	}
	if opts.KillWait <= 0 {
		opts.KillWait = 5 * time.Second
	}
	if opts.Wrapper == "" {
		opts.Wrapper = "axiom-console"
	}
	return &Supervisor{
		runDir:   opts.RunDir,
		pipesDir: opts.PipesDir,
		grace:    opts.Grace,
		poll:     opts.Poll,
		killWait: opts.KillWait,
		wrapper:  opts.Wrapper,
		log:      opts.Logger.With().Str("component", "supervisor").Logger(),
	}
}

// Endpoint returns the command channel path of a package.
func (s *Supervisor) Endpoint(name string) string {
	return filepath.Join(s.pipesDir, name)
}

// LogPath returns where a package's console output is captured.
func (s *Supervisor) LogPath(name string) string {
	return filepath.Join(s.runDir, name+".log")
}

func (s *Supervisor) recordPath(name string) string {
	return filepath.Join(s.runDir, name+".json")
}

// Status is the observed state of a package's server.
type Status struct {
	State    State
	Since    time.Time
	Instance *Instance
}

// Running reports whether a live process exists, whatever its phase.
func (st Status) Running() bool {
	return st.State != StateStopped
}

// Status returns the current state of the package's server. It never waits:
// the runtime record is checked against the process table and discarded when
// the process is gone.
func (s *Supervisor) Status(name string) (Status, error) {
	inst, err := readRecord(s.recordPath(name))
	if err != nil {
		return Status{}, err
	}
	if inst == nil {
		return Status{State: StateStopped}, nil
	}
	if !alive(inst) {
		s.log.Debug().Str("package", name).Int("pid", inst.PID).Msg("discarding stale runtime record")
		s.release(name, inst.Endpoint)
		return Status{State: StateStopped}, nil
	}
	return Status{State: inst.State, Since: inst.StartedAt, Instance: inst}, nil
}

// Start launches the server described by spec and waits out the grace period.
// The returned instance is Running.
func (s *Supervisor) Start(ctx context.Context, spec LaunchSpec) (*Instance, error) {
	name := spec.Package
	log := s.log.With().Str("package", name).Logger()

	st, err := s.Status(name)
	if err != nil {
		return nil, err
	}
	if st.Running() {
		return nil, fmt.Errorf("%w: %s (pid %d)", ErrAlreadyRunning, name, st.Instance.PID)
	}

	if spec.Binary == "" {
		return nil, fmt.Errorf("%w: %s has no installed target", ErrBinaryMissing, name)
	}
	if fi, err := os.Stat(spec.Binary); err != nil || fi.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrBinaryMissing, spec.Binary)
	}

	if err := os.MkdirAll(s.runDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	endpoint := s.Endpoint(name)
	if err := channel.CreateEndpoint(endpoint); err != nil {
		return nil, err
	}

	logPath := s.LogPath(name)
	logF, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		s.release(name, endpoint)
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer logF.Close()

	inst := &Instance{
		Package:  name,
		ID:       uuid.NewString(),
		State:    StateStarting,
		Endpoint: endpoint,
		Binary:   spec.Binary,
		Log:      logPath,
	}
	fmt.Fprintf(logF, "--- axiom: starting %s (instance %s) at %s ---\n", name, inst.ID, time.Now().Format(time.RFC3339))

	argv := spec.argv(endpoint, s.wrapper)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = spec.WorkDir
	cmd.Env = append(os.Environ(),
		"AXIOM_PACKAGE="+name,
		"AXIOM_PIPE="+endpoint,
		"AXIOM_INSTANCE="+inst.ID,
	)
	cmd.Stdin = nil
	cmd.Stdout = logF
	cmd.Stderr = logF
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // own session and process group, detached from the terminal
	}

	if err := cmd.Start(); err != nil {
		s.release(name, endpoint)
		return nil, fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}
	inst.PID = cmd.Process.Pid
	inst.StartedAt = time.Now().UTC()

	// Reap the child if this process outlives it.
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	if err := writeRecord(s.recordPath(name), inst); err != nil {
		unix.Kill(-inst.PID, unix.SIGKILL) //nolint:errcheck
		s.release(name, endpoint)
		return nil, err
	}
	log.Debug().Int("pid", inst.PID).Strs("argv", argv).Msg("process spawned")

	timer := time.NewTimer(s.grace)
	defer timer.Stop()

	select {
	case err := <-exited:
		s.release(name, endpoint)
		return nil, fmt.Errorf("%w: exited during startup (%v); see %s", ErrLaunchFailed, exitReason(err), logPath)
	case <-ctx.Done():
		unix.Kill(-inst.PID, unix.SIGKILL) //nolint:errcheck
		s.release(name, endpoint)
		return nil, ctx.Err()
	case <-timer.C:
	}

	inst.State = StateRunning
	if err := writeRecord(s.recordPath(name), inst); err != nil {
		return nil, err
	}
	log.Info().Int("pid", inst.PID).Str("instance", inst.ID).Msg("server running")
	return inst, nil
}

// StopResult describes how a server was brought down.
type StopResult struct {
	PID int
	// Graceful is set when the stop command was delivered over the channel.
	Graceful bool
	// Forced is set when the process had to be killed.
	Forced bool
}

// Stop asks the server to shut down and waits up to timeout for it to exit,
// then kills its process group. The runtime record and the command channel
// endpoint are released however the process ended.
func (s *Supervisor) Stop(ctx context.Context, name string, timeout time.Duration) (StopResult, error) {
	st, err := s.Status(name)
	if err != nil {
		return StopResult{}, err
	}
	if !st.Running() {
		s.release(name, s.Endpoint(name))
		return StopResult{}, fmt.Errorf("%w: %s", ErrNotRunning, name)
	}

	inst := st.Instance
	defer s.release(name, inst.Endpoint)
	log := s.log.With().Str("package", name).Int("pid", inst.PID).Logger()
	result := StopResult{PID: inst.PID}

	inst.State = StateStopping
	if err := writeRecord(s.recordPath(name), inst); err != nil {
		log.Warn().Err(err).Msg("failed to mark server as stopping")
	}

	if err := channel.Send(ctx, inst.Endpoint, StopCommand); err != nil {
		log.Warn().Err(err).Msg("stop command not delivered, sending SIGTERM")
		if err := unix.Kill(-inst.PID, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
			log.Warn().Err(err).Msg("failed to signal process group")
		}
	} else {
		result.Graceful = true
	}

	if s.waitExit(ctx, inst, timeout) {
		log.Info().Msg("server stopped")
		return result, nil
	}

	log.Warn().Dur("timeout", timeout).Msg("server did not stop in time, killing")
	result.Forced = true
	if err := unix.Kill(-inst.PID, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return result, fmt.Errorf("failed to kill server: %w", err)
	}
	if !s.waitExit(context.Background(), inst, s.killWait) {
		return result, fmt.Errorf("server %s (pid %d) survived SIGKILL", name, inst.PID)
	}
	return result, nil
}

// waitExit polls until the process is gone, timeout passes or ctx ends.
func (s *Supervisor) waitExit(ctx context.Context, inst *Instance, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		if !alive(inst) {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return !alive(inst)
		case <-ticker.C:
		}
	}
}

// release removes the runtime record and the endpoint.
func (s *Supervisor) release(name, endpoint string) {
	if err := os.Remove(s.recordPath(name)); err != nil && !os.IsNotExist(err) {
		s.log.Warn().Err(err).Str("package", name).Msg("failed to remove runtime record")
	}
	if endpoint == "" {
		endpoint = s.Endpoint(name)
	}
	if err := channel.RemoveEndpoint(endpoint); err != nil {
		s.log.Warn().Err(err).Str("package", name).Msg("failed to remove command endpoint")
	}
}

func exitReason(err error) string {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ProcessState.String()
	}
	if err == nil {
		return "exit status 0"
	}
	return err.Error()
}
