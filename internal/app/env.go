package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nicdgonzalez/axiom/internal/catalog"
	"github.com/nicdgonzalez/axiom/internal/config"
	"github.com/nicdgonzalez/axiom/internal/download"
	"github.com/nicdgonzalez/axiom/internal/logging"
	"github.com/nicdgonzalez/axiom/internal/packages"
	"github.com/nicdgonzalez/axiom/internal/paper"
	"github.com/nicdgonzalez/axiom/internal/store"
	"github.com/nicdgonzalez/axiom/internal/supervisor"
)

// env wires the components one command invocation needs.
type env struct {
	cfg      config.Config
	log      zerolog.Logger
	store    *store.Store
	oracle   *paper.Client
	catalog  *catalog.Catalog
	packages *packages.Manager
	sup      *supervisor.Supervisor

	out    io.Writer
	errOut io.Writer
}

// loadConfig reads the configuration and applies the global flags.
func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to locate config file: %w", err)
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

// setup builds the env for cmd. The caller must Close it.
func setup(cmd *cobra.Command) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Writer: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}
	return openEnv(cfg, logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

func openEnv(cfg config.Config, logger zerolog.Logger, out, errOut io.Writer) (*env, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, err
	}

	oracle := paper.NewClient(paper.Options{
		BaseURL:         cfg.APIURL,
		Project:         cfg.Project,
		Timeout:         cfg.HTTPTimeout.Duration,
		DownloadTimeout: cfg.DownloadTimeout.Duration,
		Retries:         cfg.Retries,
		Logger:          logger,
	})

	e := &env{
		cfg:     cfg,
		log:     logger,
		store:   st,
		oracle:  oracle,
		catalog: catalog.New(oracle, st, logger),
		sup: supervisor.New(supervisor.Options{
			RunDir:   cfg.RunDir(),
			PipesDir: cfg.PipesDir(),
			Grace:    cfg.StartGrace.Duration,
			Wrapper:  wrapperPath(cfg),
			Logger:   logger,
		}),
		out:    out,
		errOut: errOut,
	}
	e.packages = packages.New(packages.Options{
		Store:      st,
		Installer:  download.New(oracle, logger),
		ServersDir: cfg.ServersDir(),
		LocksDir:   cfg.LocksDir(),
		Logger:     logger,
		InUse:      e.refuseRunning,
	})
	return e, nil
}

func (e *env) Close() error {
	return e.store.Close()
}

// refuseRunning keeps update and delete away from a live server.
func (e *env) refuseRunning(name string) error {
	st, err := e.sup.Status(name)
	if err != nil {
		return err
	}
	if st.Running() {
		return fmt.Errorf("%w: %s (pid %d); stop it first", supervisor.ErrAlreadyRunning, name, st.Instance.PID)
	}
	return nil
}

// wrapperPath finds axiom-console: the configured path, the executable next
// to this one, or a PATH lookup at launch time.
func wrapperPath(cfg config.Config) string {
	if cfg.ConsoleWrapper != "" {
		return cfg.ConsoleWrapper
	}
	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), "axiom-console")
		if _, err := os.Stat(sibling); err == nil {
			return sibling
		}
	}
	return "axiom-console"
}
