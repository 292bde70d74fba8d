package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/nicdgonzalez/axiom/internal/paper"
	"github.com/nicdgonzalez/axiom/internal/resolve"
	"github.com/nicdgonzalez/axiom/internal/store"
)

type fakeOracle struct {
	versions     []string
	builds       map[string][]paper.Build
	down         bool
	versionCalls int
	buildCalls   map[string]int
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{
		versions: []string{"1.20.6", "1.21.1", "1.21.3", "1.21.4"},
		builds: map[string][]paper.Build{
			"1.20.6": {{Version: "1.20.6", Number: 151, Channel: paper.ChannelDefault}},
			"1.21.1": {{Version: "1.21.1", Number: 130, Channel: paper.ChannelDefault}},
			"1.21.3": {
				{Version: "1.21.3", Number: 11, Channel: paper.ChannelExperimental},
				{Version: "1.21.3", Number: 10, Channel: paper.ChannelDefault},
			},
			"1.21.4": {{Version: "1.21.4", Number: 2, Channel: paper.ChannelExperimental}},
		},
		buildCalls: map[string]int{},
	}
}

func (f *fakeOracle) Versions(ctx context.Context) ([]string, error) {
	f.versionCalls++
	if f.down {
		return nil, fmt.Errorf("%w: connection refused", paper.ErrUpstreamUnavailable)
	}
	return f.versions, nil
}

func (f *fakeOracle) Builds(ctx context.Context, v string) ([]paper.Build, error) {
	f.buildCalls[v]++
	if f.down {
		return nil, fmt.Errorf("%w: connection refused", paper.ErrUpstreamUnavailable)
	}
	b, ok := f.builds[v]
	if !ok {
		return nil, fmt.Errorf("%w: %s", paper.ErrNotFound, v)
	}
	return append([]paper.Build(nil), b...), nil
}

func newTestCatalog(t *testing.T) (*Catalog, *fakeOracle) {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New() failed: %v", err)
	}
	if err := s.CreateSchema(); err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	oracle := newFakeOracle()
	return New(oracle, s, zerolog.Nop()), oracle
}

func TestVersionsCachesAndServesOffline(t *testing.T) {
	cat, oracle := newTestCatalog(t)
	ctx := context.Background()

	first, err := cat.Versions(ctx, false)
	if err != nil {
		t.Fatalf("Versions() error = %v", err)
	}
	if first.Cached {
		t.Error("first Versions() should come from the oracle")
	}

	oracle.down = true
	second, err := cat.Versions(ctx, false)
	if err != nil {
		t.Fatalf("Versions() offline error = %v", err)
	}
	if !second.Cached || second.Stale {
		t.Errorf("offline Versions() Cached=%v Stale=%v, want cached and not stale", second.Cached, second.Stale)
	}
	if oracle.versionCalls != 1 {
		t.Errorf("oracle called %d times, want 1", oracle.versionCalls)
	}
}

func TestVersionsRefreshFallsBackToStaleCache(t *testing.T) {
	cat, oracle := newTestCatalog(t)
	ctx := context.Background()

	if _, err := cat.Versions(ctx, false); err != nil {
		t.Fatalf("Versions() error = %v", err)
	}

	oracle.down = true
	got, err := cat.Versions(ctx, true)
	if err != nil {
		t.Fatalf("Versions(refresh) error = %v", err)
	}
	if !got.Stale {
		t.Error("Versions(refresh) with oracle down should be stale")
	}
	if len(got.Versions) != 4 {
		t.Errorf("Versions(refresh) = %v, want cached list", got.Versions)
	}
}

func TestVersionsWithoutCacheOrOracle(t *testing.T) {
	cat, oracle := newTestCatalog(t)
	oracle.down = true

	_, err := cat.Versions(context.Background(), false)
	if !errors.Is(err, paper.ErrUpstreamUnavailable) {
		t.Errorf("Versions() error = %v, want ErrUpstreamUnavailable", err)
	}
}

func TestBuildsSortedAndCached(t *testing.T) {
	cat, oracle := newTestCatalog(t)
	ctx := context.Background()

	got, err := cat.Builds(ctx, "1.21.3", false)
	if err != nil {
		t.Fatalf("Builds() error = %v", err)
	}
	if len(got.Builds) != 2 || got.Builds[0].Number != 10 || got.Builds[1].Number != 11 {
		t.Errorf("Builds() = %+v, want builds 10, 11", got.Builds)
	}

	if _, err := cat.Builds(ctx, "1.21.3", false); err != nil {
		t.Fatalf("Builds() second call error = %v", err)
	}
	if oracle.buildCalls["1.21.3"] != 1 {
		t.Errorf("oracle asked for 1.21.3 builds %d times, want 1", oracle.buildCalls["1.21.3"])
	}

	if _, err := cat.Builds(ctx, "1.21.3", true); err != nil {
		t.Fatalf("Builds(refresh) error = %v", err)
	}
	if oracle.buildCalls["1.21.3"] != 2 {
		t.Errorf("refresh should query the oracle again, calls = %d", oracle.buildCalls["1.21.3"])
	}
}

func TestLoadLatestStopsAtFirstStableVersion(t *testing.T) {
	cat, oracle := newTestCatalog(t)

	snap, err := cat.Load(context.Background(), resolve.Request{}, false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// 1.21.4 has no stable build, 1.21.3 does; older versions stay untouched.
	if oracle.buildCalls["1.21.4"] != 1 || oracle.buildCalls["1.21.3"] != 1 {
		t.Errorf("build calls = %v, want 1.21.4 and 1.21.3 once", oracle.buildCalls)
	}
	if oracle.buildCalls["1.21.1"] != 0 || oracle.buildCalls["1.20.6"] != 0 {
		t.Errorf("build calls = %v, older versions should not be fetched", oracle.buildCalls)
	}

	target, err := resolve.Resolve(snap, resolve.Request{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if target.Version != "1.21.3" || target.Build != 10 {
		t.Errorf("Resolve() = %s, want 1.21.3 (#10)", target)
	}
}

func TestLoadExplicitVersionOffline(t *testing.T) {
	cat, oracle := newTestCatalog(t)
	ctx := context.Background()
	req := resolve.Request{Version: "1.21.1"}

	if _, err := cat.Load(ctx, req, false); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	oracle.down = true
	snap, err := cat.Load(ctx, req, false)
	if err != nil {
		t.Fatalf("Load() offline error = %v", err)
	}
	target, err := resolve.Resolve(snap, req)
	if err != nil {
		t.Fatalf("Resolve() offline error = %v", err)
	}
	if target.Build != 130 {
		t.Errorf("Resolve() offline = %s, want build 130", target)
	}
}

func TestLoadUnknownVersionDoesNotFetchBuilds(t *testing.T) {
	cat, oracle := newTestCatalog(t)
	req := resolve.Request{Version: "9.9"}

	snap, err := cat.Load(context.Background(), req, false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if oracle.buildCalls["9.9"] != 0 {
		t.Error("builds of an unknown version should not be requested")
	}
	if _, err := resolve.Resolve(snap, req); !errors.Is(err, resolve.ErrUnknownVersion) {
		t.Errorf("Resolve() error = %v, want ErrUnknownVersion", err)
	}
}
