package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/mdstats/internal/store"
)

// LoadOptions holds flags for the load command.
type LoadOptions struct {
	*RootOptions
	Collection string
}

// LoadResult is the load command's output.
type LoadResult struct {
	Collection string `json:"collection"`
	Documents  int    `json:"documents"`
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "load <file>",
		Short: "Load documents into a collection",
		Long: `Insert documents from a JSON array or newline-delimited JSON file into a
collection. Documents whose _id already exists replace the stored copy.

Example:
  mdstats load --db ./mdstats.db --collection projects projects.json
  mdstats load --db ./mdstats.db --collection references proteins.ndjson`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Collection, "collection", "", "collection name (required)")
	_ = cmd.MarkFlagRequired("collection")

	return cmd
}

func runLoad(opts *LoadOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	f, err := os.Open(path)
	if err != nil {
		return reportError(formatter, ErrCodeInput, ExitCommandError, "failed to open input", err)
	}
	defer f.Close()

	docs, err := store.ReadDocuments(f)
	if err != nil {
		return reportError(formatter, ErrCodeInput, ExitCommandError, "failed to read "+path, err)
	}

	sess, err := openSession(ctx, opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	defer sess.Close()

	collection := sess.cfg.Collection(opts.Collection)
	n, err := sess.backend.Insert(ctx, collection, docs...)
	if err != nil {
		return reportError(formatter, ErrCodeStore, ExitCommandError, "failed to insert documents", err)
	}
	sess.logger.Info("documents loaded", "collection", collection, "documents", n)

	if formatter.Format == "json" {
		return formatter.Success(LoadResult{Collection: collection, Documents: n})
	}
	return formatter.Success(formatLoad(collection, n))
}

func formatLoad(collection string, n int) string {
	if n == 1 {
		return "Loaded 1 document into " + collection
	}
	return fmt.Sprintf("Loaded %d documents into %s", n, collection)
}
