package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	ConfigFile      string
	ConfigExpandEnv bool

	// Overrides applied on top of the config file.
	Database    string
	Environment string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the mdstats CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "mdstats",
		Short: "mdstats - molecular dynamics project statistics",
		Long: `Summarize molecular dynamics projects.

Filters are JSON query fragments over the projects collection. Fields named
references.<reference>.<field> are resolved against the reference
collections (proteins, ligands) before the projects are queried.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().BoolVar(&opts.ConfigExpandEnv, "config.expand-env", false, "expand ${VAR} references in the config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides store.path)")
	cmd.PersistentFlags().StringVar(&opts.Environment, "env", "", "deployment environment (overrides environment)")

	// Add subcommands
	cmd.AddCommand(NewSummaryCommand(opts))
	cmd.AddCommand(NewResolveCommand(opts))
	cmd.AddCommand(NewLoadCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
