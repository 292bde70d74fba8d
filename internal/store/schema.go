package store

const schema = `
CREATE TABLE IF NOT EXISTS packages (
    name TEXT PRIMARY KEY COLLATE NOCASE,
    version TEXT NOT NULL,
    build INTEGER NOT NULL,
    channel TEXT NOT NULL,
    file_name TEXT NOT NULL,
    url TEXT NOT NULL,
    sha256 TEXT NOT NULL DEFAULT '',
    root TEXT NOT NULL,
    binary_path TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS pending_deletions (
    name TEXT PRIMARY KEY COLLATE NOCASE,
    root TEXT NOT NULL,
    requested_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS catalog_versions (
    version TEXT PRIMARY KEY,
    position INTEGER NOT NULL,
    fetched_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS catalog_builds (
    version TEXT NOT NULL,
    build INTEGER NOT NULL,
    channel TEXT NOT NULL,
    file_name TEXT NOT NULL,
    url TEXT NOT NULL,
    sha256 TEXT NOT NULL DEFAULT '',
    fetched_at TIMESTAMP NOT NULL,
    PRIMARY KEY (version, build)
);

CREATE TABLE IF NOT EXISTS catalog_fetches (
    version TEXT PRIMARY KEY,
    fetched_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_catalog_versions_position ON catalog_versions(position);
`
