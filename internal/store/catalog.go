package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/nicdgonzalez/axiom/internal/paper"
)

// Catalog cache operations. Entries are only ever replaced by a newer
// fetch; nothing here expires them by age.

// SaveVersions replaces the cached version list. Order is preserved.
func (s *Store) SaveVersions(versions []string, at time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM catalog_versions`); err != nil {
		return fmt.Errorf("failed to clear cached versions: %w", classify(err))
	}

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalog_versions (version, position, fetched_at) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare version insert: %w", err)
	}
	defer stmt.Close()

	stamp := at.UTC().Format(time.RFC3339Nano)
	for i, v := range versions {
		if _, err := stmt.Exec(v, i, stamp); err != nil {
			return fmt.Errorf("failed to cache version %s: %w", v, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cached versions: %w", err)
	}
	return nil
}

// LoadVersions returns the cached version list in oracle order and when it
// was fetched. It returns ErrNotFound when nothing has been cached yet.
func (s *Store) LoadVersions() ([]string, time.Time, error) {
	rows, err := s.db.Query(`SELECT version, fetched_at FROM catalog_versions ORDER BY position`)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to load cached versions: %w", classify(err))
	}
	defer rows.Close()

	var versions []string
	var fetched sql.NullString
	for rows.Next() {
		var v string
		if err := rows.Scan(&v, &fetched); err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to scan cached version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to load cached versions: %w", err)
	}
	if len(versions) == 0 {
		return nil, time.Time{}, ErrNotFound
	}

	at, err := nullTime(fetched)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to parse fetched_at: %w", err)
	}
	return versions, at, nil
}

// SaveBuilds replaces the cached builds of version.
func (s *Store) SaveBuilds(version string, builds []paper.Build, at time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM catalog_builds WHERE version = ?`, version); err != nil {
		return fmt.Errorf("failed to clear cached builds of %s: %w", version, classify(err))
	}

	stamp := at.UTC().Format(time.RFC3339Nano)
	for _, b := range builds {
		_, err := tx.Exec(`
			INSERT OR REPLACE INTO catalog_builds (version, build, channel, file_name, url, sha256, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			version, b.Number, string(b.Channel), b.FileName, b.URL, b.SHA256, stamp)
		if err != nil {
			return fmt.Errorf("failed to cache build %s#%d: %w", version, b.Number, err)
		}
	}

	// Recorded separately so a version with zero builds still counts as cached.
	_, err = tx.Exec(`INSERT OR REPLACE INTO catalog_fetches (version, fetched_at) VALUES (?, ?)`, version, stamp)
	if err != nil {
		return fmt.Errorf("failed to record fetch of %s: %w", version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cached builds of %s: %w", version, err)
	}
	return nil
}

// LoadBuilds returns the cached builds of version ordered by build number.
// It returns ErrNotFound when the version's builds were never fetched.
func (s *Store) LoadBuilds(version string) ([]paper.Build, time.Time, error) {
	var fetched string
	err := s.db.QueryRow(`SELECT fetched_at FROM catalog_fetches WHERE version = ?`, version).Scan(&fetched)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to load cached builds of %s: %w", version, classify(err))
	}
	at, err := time.Parse(time.RFC3339Nano, fetched)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to parse fetched_at: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT build, channel, file_name, url, sha256
		FROM catalog_builds
		WHERE version = ?
		ORDER BY build`, version)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to load cached builds of %s: %w", version, classify(err))
	}
	defer rows.Close()

	var builds []paper.Build
	for rows.Next() {
		b := paper.Build{Version: version}
		var channel string
		if err := rows.Scan(&b.Number, &channel, &b.FileName, &b.URL, &b.SHA256); err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to scan cached build: %w", err)
		}
		b.Channel = paper.Channel(channel)
		builds = append(builds, b)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to load cached builds of %s: %w", version, err)
	}
	return builds, at, nil
}
