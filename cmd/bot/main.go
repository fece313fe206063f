package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "FATAL:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "psirt-report-bot",
		Short:         "Replies to PSIRT report requests with an advisory summary and the report file",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newServeCmd(), newMigrateCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process pending report requests once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.pipeline.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("run %s aborted: %w", summary.RunID, err)
			}
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	var noHTTP bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Poll for pending requests on a schedule and accept webhook triggers",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(true)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.serve(cmd.Context(), !noHTTP)
		},
	}
	cmd.Flags().BoolVar(&noHTTP, "no-http", false, "Disable the webhook, health and metrics server")
	return cmd
}
