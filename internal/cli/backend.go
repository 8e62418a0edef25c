package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/interteks/loomtrack/internal/app"
)

func newBackendCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backend",
		Short: "Show which storage backend would be used and check it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			report, err := app.ProbeBackend(cmd.Context(), cfg)
			out := cmd.OutOrStdout()
			if report.Active != "" {
				fmt.Fprintf(out, "requested: %s\nselected:  %s\nactive:    %s\n", report.Requested, report.Selected, report.Active)
				if report.FellBack {
					fmt.Fprintln(out, "fallback:  yes (relational backend unreachable)")
				}
			}
			if err != nil {
				return fmt.Errorf("backend check failed: %w", err)
			}
			fmt.Fprintln(out, "status:    ok")
			return nil
		},
	}
}
