package store

import (
	"time"

	"github.com/nicdgonzalez/axiom/internal/paper"
)

// Package is the persisted record of an installed game server.
type Package struct {
	Name       string
	Target     paper.Target
	Root       string
	BinaryPath string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PendingDeletion records a package whose record was removed but whose
// filesystem root may still exist.
type PendingDeletion struct {
	Name        string
	Root        string
	RequestedAt time.Time
}
