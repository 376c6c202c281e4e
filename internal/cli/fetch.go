package cli

import (
	"context"
	"sort"

	"github.com/spf13/cobra"

	"icalarchive/internal/app"
	appLog "icalarchive/internal/log"
)

// NewFetchCommand creates the fetch command: one fetch+merge cycle for
// one source, or for all of them.
func NewFetchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch [source]",
		Short: "Fetch and merge one source, or all sources when omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(rootOpts.ConfigPath)
			if err != nil {
				return err
			}

			if len(args) == 1 {
				return a.FetchSource(cmd.Context(), args[0])
			}
			return fetchAll(cmd.Context(), a)
		},
	}
}

// fetchAll cycles every enabled source. Failures are logged per source
// and never block the others; the command fails if any source failed.
func fetchAll(ctx context.Context, a *app.App) error {
	cfg, err := a.Config.Load()
	if err != nil {
		return err
	}

	names := make([]string, 0, len(cfg.Sources))
	for name := range cfg.Sources {
		names = append(names, name)
	}
	sort.Strings(names)

	var firstErr error
	for _, name := range names {
		if err := a.FetchSource(ctx, name); err != nil {
			appLog.Error("source cycle failed", err, "source", name)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
