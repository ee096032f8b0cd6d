package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newDoctorCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Show where and how the backend would be started",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := newApp(cmd.Context(), *opts, false)
			if err != nil {
				return err
			}
			defer application.Shutdown()

			cfg := application.Config()
			l := application.Launcher()
			out := cmd.OutOrStdout()

			configPath := cfg.Path
			if configPath == "" {
				configPath = "(defaults)"
			}
			fmt.Fprintf(out, "config:        %s\n", configPath)
			fmt.Fprintf(out, "project root:  %s\n", l.Root())
			fmt.Fprintf(out, "strategy:      %s\n", l.Strategy())
			fmt.Fprintf(out, "service:       %s\n", l.ServiceCommand())
			fmt.Fprintf(out, "commands:      %s\n", l.ScriptCommand(nil))

			script := cfg.Backend.Script
			if !filepath.IsAbs(script) {
				script = filepath.Join(l.Root(), script)
			}
			if _, err := os.Stat(script); err != nil {
				fmt.Fprintf(out, "warning:       command script not found: %s\n", script)
			}
			return nil
		},
	}
}
