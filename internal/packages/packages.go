// Package packages manages installed game-server packages: their records,
// their directories and the artifact each one runs.
//
// Operations on the same package name are serialized with an advisory file
// lock, so concurrent axiom invocations cannot interleave an update with a
// delete. Different names never contend.
package packages

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/nicdgonzalez/axiom/internal/download"
	"github.com/nicdgonzalez/axiom/internal/paper"
	"github.com/nicdgonzalez/axiom/internal/store"
)

var (
	ErrNameAlreadyExists = errors.New("package already exists")
	ErrNotFound          = errors.New("package not found")
	// ErrPartialDelete means the record is gone but the package directory
	// could not be fully removed. Deleting the same name again retries.
	ErrPartialDelete = errors.New("package partially deleted")
)

// Installer places a target's artifact into a directory.
type Installer interface {
	FetchAndInstall(ctx context.Context, target paper.Target, destDir string, progress download.Progress) (string, error)
}

// Options configures a Manager.
type Options struct {
	Store      *store.Store
	Installer  Installer
	ServersDir string
	LocksDir   string
	Logger     zerolog.Logger
	// InUse, when set, is consulted under the package lock before an update
	// or delete and aborts it by returning an error.
	InUse func(name string) error
}

// Manager implements the package operations.
type Manager struct {
	store      *store.Store
	installer  Installer
	serversDir string
	locksDir   string
	inUse      func(string) error
	log        zerolog.Logger

	now       func() time.Time
	removeAll func(string) error
}

// New creates a Manager.
func New(opts Options) *Manager {
	return &Manager{
		store:      opts.Store,
		installer:  opts.Installer,
		serversDir: opts.ServersDir,
		locksDir:   opts.LocksDir,
		inUse:      opts.InUse,
		log:        opts.Logger.With().Str("component", "packages").Logger(),
		now:        time.Now,
		removeAll:  os.RemoveAll,
	}
}

// Root returns the directory of the package called name (already normalized).
func (m *Manager) Root(name string) string {
	return filepath.Join(m.serversDir, name)
}

// JarsDir returns where the artifacts of a package root live.
func JarsDir(root string) string {
	return filepath.Join(root, "jars")
}

// ServerDir returns the server's working directory inside a package root.
func ServerDir(root string) string {
	return filepath.Join(root, "server")
}

// Create installs target into a new package called name.
func (m *Manager) Create(ctx context.Context, name string, target paper.Target, progress download.Progress) (*store.Package, error) {
	name, err := Normalize(name)
	if err != nil {
		return nil, err
	}
	unlock, err := m.lock(name)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := m.store.GetPackage(name); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrNameAlreadyExists, name)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	// A previous delete of this name may have left its directory behind.
	if pending, err := m.store.GetPendingDeletion(name); err == nil {
		if err := m.finishDelete(pending); err != nil {
			return nil, err
		}
	}

	root := m.Root(name)
	_, statErr := os.Stat(root)
	fresh := os.IsNotExist(statErr)
	if err := os.MkdirAll(ServerDir(root), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create package directory: %w", err)
	}

	binary, err := m.installer.FetchAndInstall(ctx, target, JarsDir(root), progress)
	if err != nil {
		if fresh {
			m.removeAll(root) //nolint:errcheck
		}
		return nil, err
	}

	now := m.now().UTC()
	pkg := &store.Package{
		Name:       name,
		Target:     target,
		Root:       root,
		BinaryPath: binary,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.store.InsertPackage(pkg); err != nil {
		if fresh {
			m.removeAll(root) //nolint:errcheck
		}
		if errors.Is(err, store.ErrExists) {
			return nil, fmt.Errorf("%w: %s", ErrNameAlreadyExists, name)
		}
		return nil, err
	}

	m.log.Info().Str("package", name).Str("target", target.String()).Msg("package created")
	return pkg, nil
}

// Get returns the package called name.
func (m *Manager) Get(name string) (*store.Package, error) {
	name, err := Normalize(name)
	if err != nil {
		return nil, err
	}
	pkg, err := m.store.GetPackage(name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return pkg, err
}

// Hold runs fn with the package's record while holding its per-name lock,
// so fn never overlaps a create, update or delete of the same package. The
// record is read after the lock is taken.
func (m *Manager) Hold(name string, fn func(pkg *store.Package) error) error {
	name, err := Normalize(name)
	if err != nil {
		return err
	}
	unlock, err := m.lock(name)
	if err != nil {
		return err
	}
	defer unlock()

	pkg, err := m.Get(name)
	if err != nil {
		return err
	}
	return fn(pkg)
}

// List returns every package ordered by name.
func (m *Manager) List() ([]*store.Package, error) {
	return m.store.ListPackages()
}

// UpdateTarget installs target for the package and then swaps the record.
// The new artifact is downloaded next to the old one and the old one is
// removed only after the record points at the new one, so a crash at any
// point leaves the recorded artifact intact. It returns the record as it was
// before and after the update.
func (m *Manager) UpdateTarget(ctx context.Context, name string, target paper.Target, progress download.Progress) (before, after *store.Package, err error) {
	name, err = Normalize(name)
	if err != nil {
		return nil, nil, err
	}
	unlock, err := m.lock(name)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	current, err := m.store.GetPackage(name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, nil, err
	}
	if err := m.checkInUse(name); err != nil {
		return nil, nil, err
	}

	if err := m.reconcile(current); err != nil {
		m.log.Warn().Err(err).Str("package", name).Msg("failed to clean up stale artifacts")
	}

	binary, err := m.installer.FetchAndInstall(ctx, target, JarsDir(current.Root), progress)
	if err != nil {
		return nil, nil, err
	}

	before, err = m.store.SwapTarget(name, target, binary, m.now())
	if err != nil {
		// The record still points at the old artifact, which was not touched.
		if binary != current.BinaryPath {
			os.Remove(binary)
		}
		return nil, nil, err
	}

	if before.BinaryPath != binary {
		if err := os.Remove(before.BinaryPath); err != nil && !os.IsNotExist(err) {
			m.log.Warn().Err(err).Str("path", before.BinaryPath).Msg("failed to remove previous artifact")
		}
	}

	after, err = m.store.GetPackage(name)
	if err != nil {
		return nil, nil, err
	}
	m.log.Info().Str("package", name).Str("from", before.Target.String()).Str("to", target.String()).Msg("package updated")
	return before, after, nil
}

// Delete removes the record of the package and then its directory. If the
// directory cannot be fully removed ErrPartialDelete is returned and the
// deletion stays pending; calling Delete again retries it.
func (m *Manager) Delete(name string) error {
	name, err := Normalize(name)
	if err != nil {
		return err
	}
	unlock, err := m.lock(name)
	if err != nil {
		return err
	}
	defer unlock()

	if err := m.checkInUse(name); err != nil {
		return err
	}

	pending, err := m.store.DeletePackage(name, m.now())
	if errors.Is(err, store.ErrNotFound) {
		pending, err = m.store.GetPendingDeletion(name)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		if err != nil {
			return err
		}
		m.log.Info().Str("package", name).Msg("retrying pending deletion")
	} else if err != nil {
		return err
	}

	return m.finishDelete(pending)
}

// PendingDeletions lists deletions whose directory removal has not completed.
func (m *Manager) PendingDeletions() ([]*store.PendingDeletion, error) {
	return m.store.ListPendingDeletions()
}

func (m *Manager) finishDelete(pending *store.PendingDeletion) error {
	if err := m.removeAll(pending.Root); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPartialDelete, pending.Name, err)
	}
	if err := m.store.ClearPendingDeletion(pending.Name); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPartialDelete, pending.Name, err)
	}
	m.log.Info().Str("package", pending.Name).Str("root", pending.Root).Msg("package deleted")
	return nil
}

// Reconcile removes artifacts and partial downloads of the package that the
// record does not reference.
func (m *Manager) Reconcile(name string) error {
	name, err := Normalize(name)
	if err != nil {
		return err
	}
	unlock, err := m.lock(name)
	if err != nil {
		return err
	}
	defer unlock()

	pkg, err := m.store.GetPackage(name)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return err
	}
	return m.reconcile(pkg)
}

func (m *Manager) reconcile(pkg *store.Package) error {
	dir := JarsDir(pkg.Root)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	keep := filepath.Base(pkg.BinaryPath)
	var errs []error
	for _, e := range entries {
		if e.IsDir() || e.Name() == keep {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
			continue
		}
		m.log.Debug().Str("path", path).Msg("removed unreferenced artifact")
	}
	return errors.Join(errs...)
}

func (m *Manager) checkInUse(name string) error {
	if m.inUse == nil {
		return nil
	}
	return m.inUse(name)
}

// lock takes the exclusive per-name lock, blocking until it is free.
func (m *Manager) lock(name string) (func(), error) {
	if err := os.MkdirAll(m.locksDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(m.locksDir, name+".lock"), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock for %s: %w", name, err)
	}
	fd := int(f.Fd())
	for {
		err = unix.Flock(fd, unix.LOCK_EX)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to lock %s: %w", name, err)
	}
	return func() {
		unix.Flock(fd, unix.LOCK_UN) //nolint:errcheck
		f.Close()
	}, nil
}
