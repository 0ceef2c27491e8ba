package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kubilitics/kubilitics-metrics/internal/app"
	"github.com/kubilitics/kubilitics-metrics/internal/audit"
)

func newCleanupCmd(a *cliApp) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete metrics older than --days",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withApp(cmd.Context(), func(built *app.App) error {
				if !cmd.Flags().Changed("days") {
					days = built.Config.Collection.RetentionDays
				}
				deleted, err := built.Collector.CleanupOldMetrics(cmd.Context(), days)
				a.audit(cmd.Context(), built, audit.NewEvent(audit.EventRetentionDelete).
					WithMetadata("days", days).
					WithMetadata("deleted", deleted).
					WithError(err))
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "deleted %d points older than %d days from %s\n", deleted, days, built.Backend.Name())
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "retention in days")
	return cmd
}
