package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/nicdgonzalez/axiom/internal/paper"
)

// Columns are always named explicitly so rows written by a newer axiom with
// extra columns still load.
const packageColumns = `name, version, build, channel, file_name, url, sha256, root, binary_path, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPackage(row rowScanner) (*Package, error) {
	var pkg Package
	var channel, createdAt, updatedAt string

	err := row.Scan(
		&pkg.Name,
		&pkg.Target.Version,
		&pkg.Target.Build,
		&channel,
		&pkg.Target.FileName,
		&pkg.Target.URL,
		&pkg.Target.SHA256,
		&pkg.Root,
		&pkg.BinaryPath,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	pkg.Target.Channel = paper.Channel(channel)

	if pkg.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at for %s: %w", pkg.Name, err)
	}
	if pkg.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at for %s: %w", pkg.Name, err)
	}
	return &pkg, nil
}

// Package operations

// InsertPackage inserts a new package record. It fails with ErrExists when
// a package with the same name (case-insensitively) is already recorded.
func (s *Store) InsertPackage(pkg *Package) error {
	query := `INSERT INTO packages (` + packageColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.Exec(query,
		pkg.Name,
		pkg.Target.Version,
		pkg.Target.Build,
		string(pkg.Target.Channel),
		pkg.Target.FileName,
		pkg.Target.URL,
		pkg.Target.SHA256,
		pkg.Root,
		pkg.BinaryPath,
		pkg.CreatedAt.UTC().Format(time.RFC3339Nano),
		pkg.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert package %s: %w", pkg.Name, classify(err))
	}
	return nil
}

// GetPackage retrieves a package by name.
func (s *Store) GetPackage(name string) (*Package, error) {
	query := `SELECT ` + packageColumns + ` FROM packages WHERE name = ?`

	pkg, err := scanPackage(s.db.QueryRow(query, name))
	if err != nil {
		return nil, fmt.Errorf("failed to get package %s: %w", name, classify(err))
	}
	return pkg, nil
}

// ListPackages returns all packages ordered by name.
func (s *Store) ListPackages() ([]*Package, error) {
	query := `SELECT ` + packageColumns + ` FROM packages ORDER BY name`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", classify(err))
	}
	defer rows.Close()

	var packages []*Package
	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan package: %w", err)
		}
		packages = append(packages, pkg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}
	return packages, nil
}

// SwapTarget replaces the installed target of name in a single transaction
// and returns the record as it was before the swap.
func (s *Store) SwapTarget(name string, target paper.Target, binaryPath string, at time.Time) (*Package, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	old, err := scanPackage(tx.QueryRow(`SELECT `+packageColumns+` FROM packages WHERE name = ?`, name))
	if err != nil {
		return nil, fmt.Errorf("failed to get package %s: %w", name, classify(err))
	}

	_, err = tx.Exec(`
		UPDATE packages
		SET version = ?, build = ?, channel = ?, file_name = ?, url = ?, sha256 = ?, binary_path = ?, updated_at = ?
		WHERE name = ?`,
		target.Version,
		target.Build,
		string(target.Channel),
		target.FileName,
		target.URL,
		target.SHA256,
		binaryPath,
		at.UTC().Format(time.RFC3339Nano),
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update package %s: %w", name, classify(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update of %s: %w", name, err)
	}
	return old, nil
}

// DeletePackage removes the record of name and, in the same transaction,
// records a pending deletion of its root so a failed filesystem cleanup is
// never forgotten.
func (s *Store) DeletePackage(name string, at time.Time) (*PendingDeletion, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var pending PendingDeletion
	err = tx.QueryRow(`SELECT name, root FROM packages WHERE name = ?`, name).Scan(&pending.Name, &pending.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to get package %s: %w", name, classify(err))
	}
	pending.RequestedAt = at.UTC()

	if _, err := tx.Exec(`DELETE FROM packages WHERE name = ?`, name); err != nil {
		return nil, fmt.Errorf("failed to delete package %s: %w", name, err)
	}
	_, err = tx.Exec(`INSERT OR REPLACE INTO pending_deletions (name, root, requested_at) VALUES (?, ?, ?)`,
		pending.Name, pending.Root, pending.RequestedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("failed to record pending deletion of %s: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit deletion of %s: %w", name, err)
	}
	return &pending, nil
}

// GetPendingDeletion returns the pending deletion recorded for name.
func (s *Store) GetPendingDeletion(name string) (*PendingDeletion, error) {
	var pending PendingDeletion
	var requestedAt string

	err := s.db.QueryRow(`SELECT name, root, requested_at FROM pending_deletions WHERE name = ?`, name).
		Scan(&pending.Name, &pending.Root, &requestedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending deletion %s: %w", name, classify(err))
	}
	if pending.RequestedAt, err = time.Parse(time.RFC3339Nano, requestedAt); err != nil {
		return nil, fmt.Errorf("failed to parse requested_at for %s: %w", name, err)
	}
	return &pending, nil
}

// ListPendingDeletions returns every deletion whose filesystem step has not
// completed yet.
func (s *Store) ListPendingDeletions() ([]*PendingDeletion, error) {
	rows, err := s.db.Query(`SELECT name, root, requested_at FROM pending_deletions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending deletions: %w", classify(err))
	}
	defer rows.Close()

	var out []*PendingDeletion
	for rows.Next() {
		var p PendingDeletion
		var requestedAt string
		if err := rows.Scan(&p.Name, &p.Root, &requestedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending deletion: %w", err)
		}
		if p.RequestedAt, err = time.Parse(time.RFC3339Nano, requestedAt); err != nil {
			return nil, fmt.Errorf("failed to parse requested_at for %s: %w", p.Name, err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// ClearPendingDeletion forgets a pending deletion once its root is gone.
func (s *Store) ClearPendingDeletion(name string) error {
	if _, err := s.db.Exec(`DELETE FROM pending_deletions WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to clear pending deletion %s: %w", name, classify(err))
	}
	return nil
}

// nullTime parses an optional RFC3339 column.
func nullTime(ns sql.NullString) (time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, ns.String)
}
