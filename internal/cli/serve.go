package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/roach88/mdstats/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve project summaries over HTTP",
		Long: `Start the HTTP server.

Routes:
  GET /projects/summary?query=F&query=G   project summary
  GET /ready                              store health
  GET /metrics                            Prometheus metrics

Example:
  mdstats serve --db ./mdstats.db --listen :8000
  mdstats serve --config mdstats.yaml --config.expand-env`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides server.listen_address)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	sess, err := openSession(ctx, opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	defer sess.Close()

	go func() {
		select {
		case sig := <-sigChan:
			sess.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	addr := sess.cfg.Server.ListenAddress
	if opts.Listen != "" {
		addr = opts.Listen
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	h := server.NewHandler(sess.service, sess.backend.Ping, server.Config{}, sess.logger, reg)
	srv := server.New(addr, h, sess.logger)

	if err := srv.Run(ctx); err != nil {
		return reportError(formatter, ErrCodeGeneric, ExitCommandError, "server error", err)
	}
	return nil
}
