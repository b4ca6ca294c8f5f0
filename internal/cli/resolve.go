package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/roach88/mdstats/internal/ir"
	"github.com/roach88/mdstats/internal/queryir"
	"github.com/roach88/mdstats/internal/summary"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	Queries []string
	Host    string
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the resolved projects filter",
		Long: `Build the projects filter for the given fragments, resolving reference
fields against the reference collections, and print it as JSON.

The filter is not run against the projects collection.

Example:
  mdstats resolve --db ./mdstats.db --query '{"references.ligands.name": "aspirin"}'`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(opts, cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Queries, "query", "q", nil, "JSON query fragment (repeatable)")
	cmd.Flags().StringVar(&opts.Host, "host", "", "request host for collection restriction")

	return cmd
}

func runResolve(opts *ResolveOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	sess, err := openSession(ctx, opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	defer sess.Close()

	filter, err := sess.service.Filter(ctx, summary.Request{Queries: opts.Queries, Host: opts.Host})
	if err != nil {
		code, exit := queryErrorCode(err)
		return reportError(formatter, code, exit, "resolve failed", err)
	}

	rendered, err := queryir.Render(filter)
	if err != nil {
		return reportError(formatter, ErrCodeGeneric, ExitCommandError, "render failed", err)
	}
	data, err := ir.MarshalCanonical(rendered)
	if err != nil {
		return reportError(formatter, ErrCodeGeneric, ExitCommandError, "render failed", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(json.RawMessage(data))
	}
	return formatter.Success(string(data))
}
