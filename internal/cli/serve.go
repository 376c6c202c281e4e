package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"icalarchive/internal/app"
	appLog "icalarchive/internal/log"
	"icalarchive/internal/web"
)

// NewServeCommand creates the serve command: scheduler plus HTTP server
// until interrupted.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the fetch scheduler and HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe(rootOpts, listen)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config)")
	return cmd
}

func runServe(rootOpts *RootOptions, listenOverride string) error {
	a, err := app.New(rootOpts.ConfigPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", rootOpts.ConfigPath)
		return err
	}
	if rootOpts.Verbose {
		appLog.SetLevel(appLog.LevelDebug)
	}

	cfg, err := a.Config.Load()
	if err != nil {
		return err
	}
	listen := cfg.Listen
	if listenOverride != "" {
		listen = listenOverride
	}

	appLog.Info("icalarchive starting",
		"listen", listen,
		"data_dir", cfg.DataDir,
		"source_count", len(cfg.Sources),
		"output_count", len(cfg.Outputs),
		"rule_count", len(cfg.Rules),
	)

	// Root context canceled on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	a.Sched.Start()
	defer a.Sched.Stop()
	if err := a.ScheduleAll(); err != nil {
		return err
	}

	srv := web.NewServer(a, cfg.BasicAuth)
	err = srv.Serve(ctx, listen)

	appLog.Info("icalarchive exiting")
	return err
}
