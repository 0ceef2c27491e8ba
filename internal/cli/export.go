package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kubilitics/kubilitics-metrics/internal/analytics"
	"github.com/kubilitics/kubilitics-metrics/internal/app"
	"github.com/kubilitics/kubilitics-metrics/internal/audit"
)

func newExportCmd(a *cliApp) *cobra.Command {
	var (
		measurements []string
		tags         string
		timeRange    string
		format       string
		output       string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export raw metrics as JSON or CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseTagsFlag(tags)
			if err != nil {
				return err
			}
			return a.withApp(cmd.Context(), func(built *app.App) error {
				start, end, warnings := built.Analytics.TimeRange(timeRange)
				for _, w := range warnings {
					fmt.Fprintln(a.stderr, "warning:", w)
				}
				result, err := built.Analytics.Export(cmd.Context(), analytics.ExportRequest{
					Measurements: measurements,
					Tags:         filter,
					Start:        start,
					End:          end,
					Format:       format,
				})
				a.audit(cmd.Context(), built, audit.NewEvent(audit.EventExport).
					WithMetadata("measurements", measurements).
					WithMetadata("format", format).
					WithMetadata("points", result.TotalPoints).
					WithError(err))
				if err != nil {
					return err
				}

				out := a.stdout
				if output != "" && output != "-" {
					f, err := os.Create(output)
					if err != nil {
						return fmt.Errorf("create %s: %w", output, err)
					}
					defer f.Close()
					out = f
				}
				if result.Format == analytics.FormatCSV {
					_, err = io.WriteString(out, result.CombinedCSV())
					return err
				}
				return encodeJSON(out, result)
			})
		},
	}
	cmd.Flags().StringSliceVarP(&measurements, "measurement", "m", nil, "measurement to export (repeatable)")
	cmd.Flags().StringVar(&tags, "tags", "", `tag filter as JSON, e.g. '{"service_id":"abc"}'`)
	cmd.Flags().StringVar(&timeRange, "range", "7d", "time range ending now (e.g. 24h, 7d, 2w)")
	cmd.Flags().StringVarP(&format, "format", "f", analytics.FormatJSON, "output format: json | csv")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	_ = cmd.MarkFlagRequired("measurement")
	return cmd
}
