// Package catalog answers version and build questions from a persistent
// cache, asking the upstream oracle only on a miss or an explicit refresh.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/nicdgonzalez/axiom/internal/paper"
	"github.com/nicdgonzalez/axiom/internal/resolve"
	"github.com/nicdgonzalez/axiom/internal/store"
)

// Oracle is the upstream source of truth.
type Oracle interface {
	Versions(ctx context.Context) ([]string, error)
	Builds(ctx context.Context, version string) ([]paper.Build, error)
}

// Cache persists oracle answers. It is implemented by *store.Store.
type Cache interface {
	SaveVersions(versions []string, at time.Time) error
	LoadVersions() ([]string, time.Time, error)
	SaveBuilds(version string, builds []paper.Build, at time.Time) error
	LoadBuilds(version string) ([]paper.Build, time.Time, error)
}

// Versions is a version list and where it came from.
type Versions struct {
	Versions  []string
	FetchedAt time.Time
	// Cached is set when the answer came from the cache.
	Cached bool
	// Stale is set when a refresh was needed but the oracle was unreachable,
	// so an older cached answer was used instead.
	Stale bool
}

// Builds is a build list for one version and where it came from.
type Builds struct {
	Version   string
	Builds    []paper.Build
	FetchedAt time.Time
	Cached    bool
	Stale     bool
}

// Catalog combines an Oracle with a Cache.
type Catalog struct {
	oracle Oracle
	cache  Cache
	log    zerolog.Logger
	now    func() time.Time
}

// New creates a Catalog.
func New(oracle Oracle, cache Cache, logger zerolog.Logger) *Catalog {
	return &Catalog{
		oracle: oracle,
		cache:  cache,
		log:    logger.With().Str("component", "catalog").Logger(),
		now:    time.Now,
	}
}

// Versions lists known versions. Without refresh a cached list is returned
// as is and the oracle is not contacted.
func (c *Catalog) Versions(ctx context.Context, refresh bool) (Versions, error) {
	cached, at, cacheErr := c.cache.LoadVersions()
	hit := cacheErr == nil
	if cacheErr != nil && !errors.Is(cacheErr, store.ErrNotFound) {
		c.log.Warn().Err(cacheErr).Msg("version cache unreadable")
	}
	if hit && !refresh {
		return Versions{Versions: cached, FetchedAt: at, Cached: true}, nil
	}

	versions, err := c.oracle.Versions(ctx)
	if err != nil {
		if hit {
			c.log.Warn().Err(err).Time("cached_at", at).Msg("using cached version list")
			return Versions{Versions: cached, FetchedAt: at, Cached: true, Stale: true}, nil
		}
		return Versions{}, fmt.Errorf("failed to list versions: %w", err)
	}

	now := c.now()
	if err := c.cache.SaveVersions(versions, now); err != nil {
		c.log.Warn().Err(err).Msg("failed to cache version list")
	}
	return Versions{Versions: versions, FetchedAt: now}, nil
}

// Builds lists the builds of version with the same cache rules as Versions.
func (c *Catalog) Builds(ctx context.Context, version string, refresh bool) (Builds, error) {
	cached, at, cacheErr := c.cache.LoadBuilds(version)
	hit := cacheErr == nil
	if cacheErr != nil && !errors.Is(cacheErr, store.ErrNotFound) {
		c.log.Warn().Err(cacheErr).Str("version", version).Msg("build cache unreadable")
	}
	if hit && !refresh {
		return Builds{Version: version, Builds: cached, FetchedAt: at, Cached: true}, nil
	}

	builds, err := c.oracle.Builds(ctx, version)
	if err != nil {
		if hit && !errors.Is(err, paper.ErrNotFound) {
			c.log.Warn().Err(err).Str("version", version).Time("cached_at", at).Msg("using cached build list")
			return Builds{Version: version, Builds: cached, FetchedAt: at, Cached: true, Stale: true}, nil
		}
		return Builds{}, fmt.Errorf("failed to list builds of %s: %w", version, err)
	}

	sort.SliceStable(builds, func(i, j int) bool { return builds[i].Number < builds[j].Number })

	now := c.now()
	if err := c.cache.SaveBuilds(version, builds, now); err != nil {
		c.log.Warn().Err(err).Str("version", version).Msg("failed to cache build list")
	}
	return Builds{Version: version, Builds: builds, FetchedAt: now}, nil
}

// Load gathers the catalog state needed to resolve req. Only the versions the
// resolver can actually pick have their builds loaded, newest first, so an
// offline resolve works as soon as those versions were seen once.
func (c *Catalog) Load(ctx context.Context, req resolve.Request, refresh bool) (*Snapshot, error) {
	listing, err := c.Versions(ctx, refresh)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		versions: listing.Versions,
		builds:   make(map[string][]paper.Build),
		Stale:    listing.Stale,
	}

	load := func(v string) ([]paper.Build, error) {
		b, err := c.Builds(ctx, v, refresh)
		if err != nil {
			return nil, err
		}
		snap.builds[v] = b.Builds
		snap.Stale = snap.Stale || b.Stale
		return b.Builds, nil
	}

	if req.Version != "" {
		for _, v := range listing.Versions {
			if v == req.Version {
				if _, err := load(v); err != nil {
					return nil, err
				}
				break
			}
		}
		return snap, nil
	}

	ordered := append([]string(nil), listing.Versions...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return paper.CompareVersions(ordered[i], ordered[j]) < 0
	})
	for i := len(ordered) - 1; i >= 0; i-- {
		builds, err := load(ordered[i])
		if err != nil {
			return nil, err
		}
		if stop(builds, req.AllowExperimental) {
			break
		}
	}
	return snap, nil
}

func stop(builds []paper.Build, allowExp bool) bool {
	for _, b := range builds {
		if allowExp || b.Stable() {
			return true
		}
	}
	return false
}

// Snapshot is the resolver's view of the catalog.
type Snapshot struct {
	versions []string
	builds   map[string][]paper.Build
	// Stale reports that part of the snapshot came from the cache because
	// the oracle was unreachable during a refresh.
	Stale bool
}

func (s *Snapshot) Versions() []string { return s.versions }

func (s *Snapshot) Builds(version string) ([]paper.Build, bool) {
	b, ok := s.builds[version]
	return b, ok
}
