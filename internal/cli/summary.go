package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/mdstats/internal/metrics"
	"github.com/roach88/mdstats/internal/summary"
)

// SummaryOptions holds flags for the summary command.
type SummaryOptions struct {
	*RootOptions
	Queries []string
	Host    string
}

// NewSummaryCommand creates the summary command.
func NewSummaryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SummaryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize the projects matching a filter",
		Long: `Compute project, run, time, frame, file and analysis totals over the
projects matching every --query fragment.

Example:
  mdstats summary --db ./mdstats.db
  mdstats summary --db ./mdstats.db --query '{"references.proteins.name": "BRCA1"}'
  mdstats summary --config mdstats.yaml --host mdposit.example.org --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSummary(opts, cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Queries, "query", "q", nil, "JSON query fragment (repeatable)")
	cmd.Flags().StringVar(&opts.Host, "host", "", "request host for collection restriction")

	return cmd
}

func runSummary(opts *SummaryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	sess, err := openSession(ctx, opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	defer sess.Close()

	sum, err := sess.service.Summarize(ctx, summary.Request{Queries: opts.Queries, Host: opts.Host})
	if err != nil {
		code, exit := queryErrorCode(err)
		return reportError(formatter, code, exit, "summary failed", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(sum)
	}
	return formatter.Success(formatSummary(sum))
}

// formatSummary renders a summary as aligned text lines.
func formatSummary(s metrics.Summary) string {
	return fmt.Sprintf(
		"projectsCount: %d\nmdCount:       %d\ntotalTime:     %g\ntotalFrames:   %g\ntotalFiles:    %d\ntotalAnalyses: %d",
		s.ProjectsCount, s.MDCount, s.TotalTime, s.TotalFrames, s.TotalFiles, s.TotalAnalyses)
}
