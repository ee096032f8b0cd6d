package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/voxdesk/internal/app"
	"github.com/dshills/voxdesk/internal/bridge"
)

func newRunCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <command> [args...]",
		Short: "Run one backend command and print its output as JSON lines",
		Long: `Run passes its arguments verbatim to the backend command script and
writes every output line to stdout as a JSON object. The backend service is
not started.

Flags after the command name belong to the backend, not to voxdesk.`,
		Example: `  voxdesk run list --path ./media
  voxdesk run search "hello world" --type sentence
  voxdesk run download https://example.com/video --output ./media`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sink := bridge.NewJSONLSink(cmd.OutOrStdout())
			application, err := newApp(ctx, *opts, false, app.WithEmitter(sink))
			if err != nil {
				return err
			}
			defer application.Shutdown()

			res, err := application.RunCommand(ctx, args)
			if err != nil {
				return err
			}
			switch {
			case res.ExitCode > 0:
				return &exitError{code: res.ExitCode}
			case res.ExitCode < 0:
				return &exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().SetInterspersed(false)
	return cmd
}
