package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/evanschultz/pmforge/internal/adapters/storage/sqlite"
	"github.com/evanschultz/pmforge/internal/app"
	"github.com/evanschultz/pmforge/internal/config"
	"github.com/evanschultz/pmforge/internal/metrics"
	"github.com/evanschultz/pmforge/internal/platform"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// run executes one CLI invocation.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	return fang.Execute(ctx, root, fang.WithVersion(version))
}

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	dbPath     string
	dataDir    string
	appName    string
	devMode    bool

	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{stdout: stdout, stderr: stderr, now: time.Now}

	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("PMFORGE_DEV_MODE"); ok {
		defaultDevMode = envDev
	}
	defaultApp := platform.DefaultAppName
	if envApp := strings.TrimSpace(os.Getenv("PMFORGE_APP_NAME")); envApp != "" {
		defaultApp = envApp
	}

	root := &cobra.Command{
		Use:           "pmforge",
		Short:         "Turn project artifacts into requirements, schedules, costs and risk registers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config TOML")
	flags.StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&opts.dataDir, "data-dir", "", "root directory for generated artifacts")
	flags.StringVar(&opts.appName, "app", defaultApp, "application name for config/data path resolution")
	flags.BoolVar(&opts.devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")

	root.AddCommand(
		newPathsCommand(opts),
		newVersionCommand(opts),
		newProjectCommand(opts),
		newIngestCommand(opts),
		newGenerateCommand(opts),
		newReplanCommand(opts),
		newReportCommand(opts),
		newShowCommand(opts),
		newServeCommand(opts),
		newExportCommand(opts),
		newImportCommand(opts),
	)
	return root
}

// resolved is the outcome of path, env, and config resolution.
type resolved struct {
	paths      platform.Paths
	configPath string
	cfg        config.Config
}

func (o *rootOptions) resolve() (resolved, error) {
	paths, err := platform.DefaultPathsWithOptions(platform.Options{
		AppName: o.appName,
		DevMode: o.devMode,
	})
	if err != nil {
		return resolved{}, err
	}

	configPath := firstNonEmpty(o.configPath, os.Getenv("PMFORGE_CONFIG"), paths.ConfigPath)
	dataDir := firstNonEmpty(o.dataDir, os.Getenv("PMFORGE_DATA_DIR"))
	dataOverridden := dataDir != ""
	if dataOverridden {
		paths = platform.ForDataDir(configPath, dataDir, filepath.Base(paths.DataDir))
	}
	paths.ConfigPath = configPath
	dbPath := firstNonEmpty(o.dbPath, os.Getenv("PMFORGE_DB_PATH"))
	dbOverridden := dbPath != ""
	if dbOverridden {
		paths.DBPath = dbPath
	}

	cfg, err := config.Load(configPath, config.Default(paths.DBPath, paths.DataDir))
	if err != nil {
		return resolved{}, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}
	if dataOverridden {
		cfg.Data.Dir = dataDir
	}
	return resolved{paths: paths, configPath: configPath, cfg: cfg}, nil
}

// session is an opened runtime: logger, repository, metrics, and the application service.
type session struct {
	resolved
	logger  *runtimeLogger
	repo    *sqlite.Repository
	metrics *metrics.Metrics
	svc     *app.Service
}

func (o *rootOptions) open(command string) (*session, error) {
	res, err := o.resolve()
	if err != nil {
		return nil, err
	}
	logger, err := newRuntimeLogger(o.stderr, o.appName, o.devMode, res.cfg.Logging, o.now)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	logger.Info("startup configuration resolved", "app", o.appName, "dev_mode", o.devMode, "command", command)
	logger.Debug("runtime paths resolved", "config_path", res.configPath, "data_dir", res.cfg.Data.Dir, "db_path", res.cfg.Database.Path)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	if err := os.MkdirAll(filepath.Dir(res.cfg.Database.Path), 0o755); err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	repo, err := sqlite.Open(res.cfg.Database.Path)
	if err != nil {
		logger.Error("sqlite open failed", "db_path", res.cfg.Database.Path, "err", err)
		_ = logger.Close()
		return nil, fmt.Errorf("open sqlite repository: %w", err)
	}
	logger.Info("sqlite repository ready", "db_path", res.cfg.Database.Path, "migrations", "ensured")

	m := metrics.New()
	svc, err := newAppService(res.cfg, repo, uuid.NewString, o.now, logger.Component(), m)
	if err != nil {
		_ = repo.Close()
		_ = logger.Close()
		return nil, err
	}
	logger.Debug("application service initialized", "llm_provider", res.cfg.LLM.Provider, "outputs_dir", res.cfg.OutputsDir())
	return &session{resolved: res, logger: logger, repo: repo, metrics: m, svc: svc}, nil
}

func (s *session) Close() {
	if err := s.repo.Close(); err != nil {
		s.logger.Warn("sqlite close failed", "db_path", s.cfg.Database.Path, "err", err)
	}
	_ = s.logger.Close()
}

// withSession opens a session for the duration of fn and logs the command flow around it.
func (o *rootOptions) withSession(command string, fn func(*session) error) error {
	s, err := o.open(command)
	if err != nil {
		return err
	}
	defer s.Close()
	s.logger.Info("command flow start", "command", command)
	if err := fn(s); err != nil {
		s.logger.Error("command flow failed", "command", command, "err", err)
		return fmt.Errorf("run %s command: %w", command, err)
	}
	s.logger.Info("command flow complete", "command", command)
	return nil
}

func newPathsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config, data, and database paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := opts.resolve()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "app: %s\n", opts.appName)
			_, _ = fmt.Fprintf(out, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(out, "config: %s\n", res.configPath)
			_, _ = fmt.Fprintf(out, "data_dir: %s\n", res.cfg.Data.Dir)
			_, _ = fmt.Fprintf(out, "outputs: %s\n", res.cfg.OutputsDir())
			_, _ = fmt.Fprintf(out, "db: %s\n", res.cfg.Database.Path)
			return nil
		},
	}
}

func newVersionCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", opts.appName, version)
			return err
		},
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// parseBoolEnv reads a boolean env var; ok is false when unset or unparsable.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
