// Package cli wires the cobra command tree. Commands build an app handle
// from the config file and hand off to the core.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	appLog "icalarchive/internal/log"
)

// RootOptions holds flags shared by all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

// NewRootCommand creates the icalarchive root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "icalarchive",
		Short: "Archive remote calendar feeds and serve filtered views of them",
		Long: `icalarchive pulls events from remote ICS feeds into a permanent,
write-once archive, and serves derived feeds filtered by per-output
rules, manual hiding, and series groupings.

Events never leave the archive, even after they disappear upstream.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if opts.Verbose {
				appLog.SetLevel(appLog.LevelDebug)
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "config.yaml", "path to config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewFetchCommand(opts))
	cmd.AddCommand(NewComposeCommand(opts))

	return cmd
}

// Execute runs the CLI.
func Execute() error {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}
