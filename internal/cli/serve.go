package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/roach88/cadence/internal/httpapi"
	"github.com/roach88/cadence/internal/jobs"
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
		Short: "Run the HTTP API, background worker and horizon job",
		Long: `Serve the scheduling API over HTTP.

In async mode the background worker materializes occurrences after the
request returns. Series left pending by a previous run are picked up on
start. The horizon job extends unbounded series on the materialize.refresh
schedule.

Example:
  cadence serve --config ./cadence.yaml
  cadence serve --listen :9090 --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides http.listen)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			a.log.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	workerDone := make(chan error, 1)
	go func() { workerDone <- a.engine.Run(ctx) }()

	if n, err := a.engine.ResumeJobs(ctx); err != nil {
		a.log.Error("resume jobs failed", "error", err, "resumed", n)
	}

	if spec := a.cfg.Materialize.Refresh; spec != "" {
		sched, err := jobs.New(a.engine, spec, a.loc, jobs.WithLogger(a.log.With("component", "jobs")))
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid refresh schedule", err)
		}
		sched.Start()
		defer func() {
			stopCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
			defer stop()
			if err := sched.Stop(stopCtx); err != nil {
				a.log.Warn("horizon job still running at shutdown", "error", err)
			}
		}()
	}

	listen := opts.Listen
	if listen == "" {
		listen = a.cfg.HTTP.Listen
	}
	if !opts.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := httpapi.New(a.engine,
		httpapi.WithLogger(a.log.With("component", "http")),
		httpapi.WithAllowOrigins(a.cfg.HTTP.AllowOrigins),
		httpapi.WithAccessLog(cmd.ErrOrStderr()),
	)

	fmt.Fprintf(cmd.OutOrStdout(), "cadence listening on %s (materialize=%s)\n", listen, a.engine.Mode())
	serveErr := srv.ListenAndServe(ctx, listen)
	cancel()

	if err := <-workerDone; err != nil && !errors.Is(err, context.Canceled) {
		a.log.Error("worker stopped with error", "error", err)
	}
	if serveErr != nil {
		return WrapExitError(ExitCommandError, "http server failed", serveErr)
	}
	a.log.Info("stopped gracefully")
	return nil
}
