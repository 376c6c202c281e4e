package cli

import (
	"os"

	"github.com/spf13/cobra"

	"icalarchive/internal/app"
)

// NewComposeCommand creates the compose command: print one output's
// derived feed to stdout.
func NewComposeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compose <output>",
		Short: "Compose an output feed and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			a, err := app.New(rootOpts.ConfigPath)
			if err != nil {
				return err
			}

			feed, err := a.OutputFeed(args[0])
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(feed)
			return err
		},
	}
}
