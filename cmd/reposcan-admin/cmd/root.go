// Package cmd implements the reposcan-admin commands.
package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var version = "dev"

// Global flags
var flagOutput string

// NewRootCommand builds the command tree. Tests build a fresh tree per case.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "reposcan-admin",
		Short: "RepoScan administration CLI",
		Long: `reposcan-admin inspects the plan catalog and manages the database schema.

Plan commands read the tables compiled into this binary, so they show
exactly what a server built from the same source enforces.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flagOutput, "output", "o", outputTable, "Output format: table, json, yaml")

	root.AddCommand(newVersionCommand())
	root.AddCommand(newPlansCommand())
	root.AddCommand(newMigrateCommand())
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

// SetVersion sets the CLI version from build flags.
func SetVersion(v string) {
	version = v
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show CLI version",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "reposcan-admin version %s\n", version)
			fmt.Fprintf(out, "  Go:       %s\n", runtime.Version())
			fmt.Fprintf(out, "  OS/Arch:  %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
