package cli

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/mdstats/internal/config"
	"github.com/roach88/mdstats/internal/ir"
	"github.com/roach88/mdstats/internal/mongostore"
	"github.com/roach88/mdstats/internal/queryir"
	"github.com/roach88/mdstats/internal/store"
	"github.com/roach88/mdstats/internal/summary"
)

// Backend is a document store the CLI can open: summary reads plus
// writes, health checks and shutdown.
type Backend interface {
	Values(ctx context.Context, collection string, filter queryir.Node, field string) ([]ir.IRValue, error)
	Find(ctx context.Context, collection string, filter queryir.Node, exclude []string) iter.Seq2[ir.IRObject, error]
	Insert(ctx context.Context, collection string, docs ...ir.IRObject) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Backend = (*store.Store)(nil)
	_ Backend = (*mongostore.Store)(nil)
)

// newFormatter creates the output formatter for a command.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// newLogger creates the command logger: text on w, Debug with --verbose.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

// loadConfig reads --config (or the defaults) and applies flag overrides.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg := config.Default()
	if opts.ConfigFile != "" {
		loaded, err := config.Load(opts.ConfigFile, opts.ConfigExpandEnv)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if opts.Database != "" {
		cfg.Store.Driver = config.DriverSQLite
		cfg.Store.Path = opts.Database
	}
	if opts.Environment != "" {
		cfg.Environment = opts.Environment
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openBackend opens the store the config selects.
func openBackend(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.Store.Driver {
	case config.DriverMongo:
		return mongostore.Open(ctx, cfg.Store.URI, cfg.Store.Database)
	case config.DriverSQLite:
		return store.Open(cfg.Store.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// newService wires a summary service over backend.
func newService(cfg *config.Config, backend Backend, logger *slog.Logger) (*summary.Service, error) {
	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}
	return summary.New(summary.Options{
		Catalog:              catalog,
		Backend:              backend,
		BaseFilter:           cfg.BaseFilter(),
		Projects:             cfg.ProjectsCollection(),
		MaxConcurrentLookups: cfg.Query.MaxConcurrentLookups,
		Logger:               logger,
	})
}

// session is the config, backend and service one command runs with.
type session struct {
	cfg     *config.Config
	backend Backend
	service *summary.Service
	logger  *slog.Logger
}

// openSession loads config, opens the backend and builds the service.
// Failures are reported through f; the returned error is an ExitError.
func openSession(ctx context.Context, opts *RootOptions, f *OutputFormatter) (*session, error) {
	logger := newLogger(opts, f.GetErrWriter())

	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, reportError(f, ErrCodeConfig, ExitCommandError, "failed to load config", err)
	}

	logger.Debug("opening store", "driver", cfg.Store.Driver, "path", cfg.Store.Path)
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, reportError(f, ErrCodeStore, ExitCommandError, "failed to open store", err)
	}

	svc, err := newService(cfg, backend, logger)
	if err != nil {
		backend.Close()
		return nil, reportError(f, ErrCodeConfig, ExitCommandError, "invalid reference catalog", err)
	}
	return &session{cfg: cfg, backend: backend, service: svc, logger: logger}, nil
}

func (s *session) Close() {
	if err := s.backend.Close(); err != nil {
		s.logger.Error("error closing store", "error", err)
	}
}

// commandContext returns the command's context, or Background when unset.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
