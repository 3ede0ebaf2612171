package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"todox/internal/app"
)

const stopTimeout = 10 * time.Second

func newRunCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the reminder daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), *cfgPath, app.Options{
				Stdout: cmd.OutOrStdout(),
				Stdin:  cmd.InOrStdin(),
			})
		},
	}
}

func runDaemon(parent context.Context, cfgPath string, o app.Options) error {
	if parent == nil {
		parent = context.Background()
	}
	a, err := app.New(cfgPath, o)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background(), app.StopFatalError)
		return fmt.Errorf("start: %w", err)
	}

	var reason app.StopReason
	select {
	case s := <-sig:
		reason = app.StopSIGTERM
		if s == os.Interrupt {
			reason = app.StopSIGINT
		}
	case <-a.Done():
		reason = app.StopFatalError
	case <-parent.Done():
		reason = app.StopAppStop
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	if reason == app.StopFatalError {
		if err := a.Err(); err != nil {
			return err
		}
	}
	return nil
}
