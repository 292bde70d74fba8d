package app

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/nicdgonzalez/axiom/internal/channel"
	"github.com/nicdgonzalez/axiom/internal/config"
	"github.com/nicdgonzalez/axiom/internal/manifest"
	"github.com/nicdgonzalez/axiom/internal/output"
	"github.com/nicdgonzalez/axiom/internal/packages"
	"github.com/nicdgonzalez/axiom/internal/resolve"
	"github.com/nicdgonzalez/axiom/internal/ping"
)

type fakeBuild struct {
	number  int
	channel string
}

// fakeOracle serves the PaperMC v2 API for a fixed catalog.
type fakeOracle struct {
	versions []string
	builds   map[string][]fakeBuild
	requests atomic.Int64
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{
		versions: []string{"1.21.1", "1.21.3", "1.21.4"},
		builds: map[string][]fakeBuild{
			"1.21.1": {{132, "default"}},
			"1.21.3": {{80, "default"}, {82, "default"}},
			"1.21.4": {{3, "experimental"}},
		},
	}
}

func jarContent(version string, build int) []byte {
	return []byte(fmt.Sprintf("paper %s build %d", version, build))
}

func (o *fakeOracle) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	o.requests.Add(1)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /projects/paper", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"project_id": "paper", "versions": o.versions})
	})
	mux.HandleFunc("GET /projects/paper/versions/{v}/builds", func(w http.ResponseWriter, r *http.Request) {
		v := r.PathValue("v")
		builds, ok := o.builds[v]
		if !ok {
			http.NotFound(w, r)
			return
		}
		var out []map[string]any
		for _, b := range builds {
			sum := sha256.Sum256(jarContent(v, b.number))
			out = append(out, map[string]any{
				"build":   b.number,
				"channel": b.channel,
				"downloads": map[string]any{"application": map[string]any{
					"name":   fmt.Sprintf("paper-%s-%d.jar", v, b.number),
					"sha256": hex.EncodeToString(sum[:]),
				}},
			})
		}
		json.NewEncoder(w).Encode(map[string]any{"builds": out})
	})
	mux.HandleFunc("GET /projects/paper/versions/{v}/builds/{n}/downloads/{file}", func(w http.ResponseWriter, r *http.Request) {
		var n int
		fmt.Sscan(r.PathValue("n"), &n)
		w.Write(jarContent(r.PathValue("v"), n))
	})
	mux.ServeHTTP(w, r)
}

type testEnv struct {
	*env
	oracle *fakeOracle
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	oracle := newFakeOracle()
	srv := httptest.NewServer(oracle)
	t.Cleanup(srv.Close)

	cfg, err := config.Default()
	if err != nil {
		t.Fatal(err)
	}
	cfg.DataDir = t.TempDir()
	cfg.APIURL = srv.URL
	cfg.Retries = 0
	cfg.ConsoleWrapper = "/bin/false"

	var stdout, stderr bytes.Buffer
	e, err := openEnv(cfg, zerolog.Nop(), &stdout, &stderr)
	if err != nil {
		t.Fatalf("openEnv() error = %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return &testEnv{env: e, oracle: oracle, stdout: &stdout, stderr: &stderr}
}

func TestCreateLatestStable(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	if err := e.create(ctx, "My World", resolve.Request{}, newOptions{AcceptEULA: true, Memory: "6G"}); err != nil {
		t.Fatalf("create() error = %v", err)
	}
	if !strings.Contains(e.stdout.String(), "Created my-world on Paper 1.21.3 (#82)") {
		t.Errorf("create() output = %q", e.stdout.String())
	}

	pkg, err := e.packages.Get("my-world")
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(pkg.BinaryPath)
	if err != nil || !bytes.Equal(data, jarContent("1.21.3", 82)) {
		t.Errorf("installed artifact = %q, %v", data, err)
	}

	m, err := manifest.Load(pkg.Root)
	if err != nil {
		t.Fatal(err)
	}
	if m.Launcher.Memory != "6G" {
		t.Errorf("manifest memory = %s, want 6G", m.Launcher.Memory)
	}
	if ok, _ := manifest.EULAAccepted(packages.ServerDir(pkg.Root)); !ok {
		t.Error("EULA not accepted despite AcceptEULA")
	}

	err = e.create(ctx, "my-world", resolve.Request{}, newOptions{})
	if !errors.Is(err, packages.ErrNameAlreadyExists) || ExitCode(err) != ExitPolicy {
		t.Errorf("second create() error = %v, want ErrNameAlreadyExists", err)
	}
}

func TestCreateRejectsInvalidMemoryBeforeDownload(t *testing.T) {
	e := newTestEnv(t)

	if err := e.create(context.Background(), "survival", resolve.Request{}, newOptions{Memory: "lots"}); err == nil {
		t.Fatal("create() with invalid memory error = nil")
	}
	if n := e.oracle.requests.Load(); n != 0 {
		t.Errorf("oracle contacted %d times for an invalid request", n)
	}
	if _, err := e.packages.Get("survival"); !errors.Is(err, packages.ErrNotFound) {
		t.Errorf("package exists after failed create: %v", err)
	}
}

func TestCreateExperimentalPolicy(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	err := e.create(ctx, "snapshot", resolve.Request{Version: "1.21.4"}, newOptions{})
	if !errors.Is(err, resolve.ErrExperimentalRejected) {
		t.Fatalf("create() error = %v, want ErrExperimentalRejected", err)
	}

	err = e.create(ctx, "snapshot", resolve.Request{Version: "1.21.4", AllowExperimental: true}, newOptions{})
	if err != nil {
		t.Fatalf("create() with AllowExperimental error = %v", err)
	}
	pkg, _ := e.packages.Get("snapshot")
	if pkg.Target.Build != 3 || !pkg.Target.Experimental() {
		t.Errorf("target = %+v, want experimental build 3", pkg.Target)
	}
}

func TestUpdateFlow(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	if err := e.create(ctx, "survival", resolve.Request{}, newOptions{}); err != nil {
		t.Fatal(err)
	}
	before, _ := e.packages.Get("survival")

	e.stdout.Reset()
	if err := e.update(ctx, "survival", resolve.Request{}, false); err != nil {
		t.Fatalf("update() error = %v", err)
	}
	if !strings.Contains(e.stdout.String(), "already on 1.21.3 (#82)") {
		t.Errorf("update() output = %q", e.stdout.String())
	}

	// Same version, lower build: not a downgrade.
	if err := e.update(ctx, "survival", resolve.Request{Version: "1.21.3", Build: 80}, false); err != nil {
		t.Fatalf("update() to build 80 error = %v", err)
	}
	if _, err := os.Stat(before.BinaryPath); !os.IsNotExist(err) {
		t.Error("previous artifact not removed after update")
	}

	err := e.update(ctx, "survival", resolve.Request{Version: "1.21.1"}, false)
	if !errors.Is(err, resolve.ErrDowngradeRejected) || ExitCode(err) != ExitPolicy {
		t.Fatalf("update() to 1.21.1 error = %v, want ErrDowngradeRejected", err)
	}

	e.stdout.Reset()
	if err := e.update(ctx, "survival", resolve.Request{Version: "1.21.1", AllowDowngrade: true}, false); err != nil {
		t.Fatalf("update() with AllowDowngrade error = %v", err)
	}
	if !strings.Contains(e.stdout.String(), "1.21.3 (#80) -> 1.21.1 (#132)") {
		t.Errorf("update() output = %q", e.stdout.String())
	}

	if err := e.update(ctx, "missing", resolve.Request{}, false); !errors.Is(err, packages.ErrNotFound) {
		t.Errorf("update() of missing package error = %v", err)
	}
}

func TestUpdateOfflineUsesCache(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	if err := e.create(ctx, "survival", resolve.Request{}, newOptions{}); err != nil {
		t.Fatal(err)
	}
	seen := e.oracle.requests.Load()

	if err := e.update(ctx, "survival", resolve.Request{Version: "1.21.3", Build: 82}, true); err != nil {
		t.Fatalf("offline update() error = %v", err)
	}
	if n := e.oracle.requests.Load(); n != seen {
		t.Errorf("offline update contacted the oracle %d times", n-seen)
	}
}

func TestDelete(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	if err := e.create(ctx, "creative", resolve.Request{}, newOptions{}); err != nil {
		t.Fatal(err)
	}
	pkg, _ := e.packages.Get("creative")

	if err := e.delete("creative", false, strings.NewReader(""), false); err == nil {
		t.Fatal("delete() without --yes on a non-terminal error = nil")
	}

	e.stdout.Reset()
	if err := e.delete("creative", false, strings.NewReader("nope\n"), true); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(e.stdout.String(), "cancelled") {
		t.Errorf("delete() output = %q, want cancellation", e.stdout.String())
	}
	if _, err := e.packages.Get("creative"); err != nil {
		t.Fatal("package deleted despite a wrong confirmation")
	}

	if err := e.delete("Creative", false, strings.NewReader("creative\n"), true); err != nil {
		t.Fatalf("delete() error = %v", err)
	}
	if _, err := os.Stat(pkg.Root); !os.IsNotExist(err) {
		t.Error("package root still exists")
	}
	if err := e.delete("creative", true, nil, false); !errors.Is(err, packages.ErrNotFound) {
		t.Errorf("second delete() error = %v, want ErrNotFound", err)
	}
}

func TestListAndStatus(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	if err := e.create(ctx, "survival", resolve.Request{}, newOptions{}); err != nil {
		t.Fatal(err)
	}

	e.stdout.Reset()
	if err := e.list(output.FormatJSON); err != nil {
		t.Fatal(err)
	}
	var rows []output.PackageRow
	if err := json.Unmarshal(e.stdout.Bytes(), &rows); err != nil {
		t.Fatalf("list json: %v\n%s", err, e.stdout.String())
	}
	if len(rows) != 1 || rows[0].Name != "survival" || rows[0].State != "stopped" || rows[0].SizeBytes == 0 {
		t.Errorf("list rows = %+v", rows)
	}

	e.stdout.Reset()
	if err := e.status("", output.FormatTable); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(e.stdout.String(), "survival") || !strings.Contains(e.stdout.String(), "stopped") {
		t.Errorf("status output = %q", e.stdout.String())
	}

	if err := e.status("missing", output.FormatTable); !errors.Is(err, packages.ErrNotFound) {
		t.Errorf("status(missing) error = %v", err)
	}
}

func TestVersionsAndBuilds(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	if err := e.create(ctx, "survival", resolve.Request{}, newOptions{}); err != nil {
		t.Fatal(err)
	}

	e.stdout.Reset()
	if err := e.versions(ctx, false, output.FormatJSON); err != nil {
		t.Fatal(err)
	}
	var rows []output.VersionRow
	if err := json.Unmarshal(e.stdout.Bytes(), &rows); err != nil {
		t.Fatal(err)
	}
	byVersion := map[string]output.VersionRow{}
	for _, r := range rows {
		byVersion[r.Version] = r
	}
	if r := byVersion["1.21.3"]; !r.Loaded || r.LatestStable != 82 || r.Builds != 2 {
		t.Errorf("1.21.3 row = %+v", r)
	}
	if r := byVersion["1.21.4"]; !r.Loaded || r.LatestStable != 0 || r.LatestBuild != 3 {
		t.Errorf("1.21.4 row = %+v", r)
	}
	if byVersion["1.21.1"].Loaded {
		t.Error("1.21.1 builds should not have been fetched")
	}

	e.stdout.Reset()
	if err := e.builds(ctx, "1.21.1", false, output.FormatTable); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(e.stdout.String(), "#132") {
		t.Errorf("builds output = %q", e.stdout.String())
	}

	if err := e.builds(ctx, "9.9.9", false, output.FormatTable); !errors.Is(err, resolve.ErrUnknownVersion) {
		t.Errorf("builds(9.9.9) error = %v, want ErrUnknownVersion", err)
	}
}

func TestStartRequiresEULA(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	if err := e.create(ctx, "survival", resolve.Request{}, newOptions{}); err != nil {
		t.Fatal(err)
	}
	err := e.start(ctx, "survival", false)
	if !errors.Is(err, manifest.ErrEULANotAccepted) || ExitCode(err) != ExitPolicy {
		t.Fatalf("start() error = %v, want ErrEULANotAccepted", err)
	}
	if st, _ := e.sup.Status("survival"); st.Running() {
		t.Error("server started without an accepted EULA")
	}
}

func TestSendWithoutListener(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	if err := e.create(ctx, "survival", resolve.Request{}, newOptions{}); err != nil {
		t.Fatal(err)
	}
	err := e.send(ctx, "survival", []string{"say hi"})
	if !errors.Is(err, channel.ErrNoListener) || ExitCode(err) != ExitProcess {
		t.Errorf("send() error = %v, want ErrNoListener", err)
	}
	if err := e.send(ctx, "survival", []string{"say\nhi"}); !errors.Is(err, channel.ErrInvalidCommand) {
		t.Errorf("send() multi-line error = %v, want ErrInvalidCommand", err)
	}
}

func TestSendDeliversToListener(t *testing.T) {
	e := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := e.create(ctx, "survival", resolve.Request{}, newOptions{}); err != nil {
		t.Fatal(err)
	}
	endpoint := e.sup.Endpoint("survival")
	if err := channel.CreateEndpoint(endpoint); err != nil {
		t.Fatal(err)
	}
	l, err := channel.Listen(endpoint, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	lines := make(chan string, 8)
	go l.Run(ctx, lines)

	if err := e.send(ctx, "survival", []string{"save-all", "say done"}); err != nil {
		t.Fatalf("send() error = %v", err)
	}
	for _, want := range []string{"save-all", "say done"} {
		if got := <-lines; got != want {
			t.Errorf("listener got %q, want %q", got, want)
		}
	}
	if !strings.Contains(e.stdout.String(), "Sent 2 commands to survival") {
		t.Errorf("send() output = %q", e.stdout.String())
	}
}

func TestSendNothing(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	if err := e.create(ctx, "survival", resolve.Request{}, newOptions{}); err != nil {
		t.Fatal(err)
	}
	lines, err := readCommands(strings.NewReader("\n   \n"))
	if err != nil {
		t.Fatal(err)
	}
	if err := e.send(ctx, "survival", lines); !errors.Is(err, channel.ErrInvalidCommand) {
		t.Errorf("send() with blank input error = %v, want ErrInvalidCommand", err)
	}
	if strings.Contains(e.stdout.String(), "Sent") {
		t.Errorf("send() reported success: %q", e.stdout.String())
	}
}

func TestReadCommands(t *testing.T) {
	lines, err := readCommands(strings.NewReader("save-all\n\n  say hi  \n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 || lines[0] != "save-all" || lines[1] != "say hi" {
		t.Errorf("readCommands() = %q", lines)
	}
}

func TestLogs(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	if err := e.create(ctx, "survival", resolve.Request{}, newOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := e.logs(ctx, "survival", 10, false); err == nil {
		t.Error("logs() before any start error = nil")
	}

	path := e.sup.LogPath("survival")
	os.MkdirAll(filepath.Dir(path), 0o755)
	os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0o644)

	e.stdout.Reset()
	if err := e.logs(ctx, "survival", 2, false); err != nil {
		t.Fatal(err)
	}
	if got := e.stdout.String(); got != "two\nthree\n" {
		t.Errorf("logs() = %q", got)
	}
}

func TestLaunchSpec(t *testing.T) {
	e := newTestEnv(t)
	if err := e.create(context.Background(), "survival", resolve.Request{}, newOptions{}); err != nil {
		t.Fatal(err)
	}
	pkg, _ := e.packages.Get("survival")

	m := manifest.Default()
	m.Launcher.Memory = "8G"
	m.Launcher.Console = manifest.ConsoleWrapper
	spec := launchSpec(pkg, m)

	if spec.Package != "survival" || spec.Binary != pkg.BinaryPath || spec.Memory != "8G" || !spec.Wrapper {
		t.Errorf("launchSpec() = %+v", spec)
	}
	if spec.WorkDir != packages.ServerDir(pkg.Root) {
		t.Errorf("WorkDir = %s", spec.WorkDir)
	}
}

func TestPingAddress(t *testing.T) {
	e := newTestEnv(t)
	if err := e.create(context.Background(), "survival", resolve.Request{}, newOptions{}); err != nil {
		t.Fatal(err)
	}
	pkg, _ := e.packages.Get("survival")
	m := manifest.Default()
	m.Properties = map[string]any{"server-port": int64(25570)}
	if err := manifest.Save(pkg.Root, m); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		target   string
		port     int
		wantHost string
		wantPort int
	}{
		{"", 0, "127.0.0.1", ping.DefaultPort},
		{"", 30000, "127.0.0.1", 30000},
		{"survival", 0, "127.0.0.1", 25570},
		{"play.example.com:1234", 0, "play.example.com", 1234},
		{"play.example.com", 0, "play.example.com", ping.DefaultPort},
	}
	for _, tt := range tests {
		host, port := e.pingAddress(tt.target, tt.port)
		if host != tt.wantHost || port != tt.wantPort {
			t.Errorf("pingAddress(%q, %d) = %s:%d, want %s:%d", tt.target, tt.port, host, port, tt.wantHost, tt.wantPort)
		}
	}
}
