package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kubilitics/kubilitics-metrics/internal/analytics"
	"github.com/kubilitics/kubilitics-metrics/internal/app"
	"github.com/kubilitics/kubilitics-metrics/internal/models"
)

func newTrendCmd(a *cliApp) *cobra.Command {
	var (
		measurement string
		field       string
		tags        string
		timeRange   string
		granularity string
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Show the trend of one field over a time range",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseTagsFlag(tags)
			if err != nil {
				return err
			}
			return a.withApp(cmd.Context(), func(built *app.App) error {
				start, end, warnings := built.Analytics.TimeRange(timeRange)
				interval, gw := built.Analytics.Granularity(granularity)
				for _, w := range append(warnings, gw...) {
					fmt.Fprintln(a.stderr, "warning:", w)
				}

				buckets := built.Analytics.Aggregate(cmd.Context(), analytics.AggregateQuery{
					Measurement: measurement,
					Tags:        filter,
					Field:       field,
					Start:       start,
					End:         end,
					Interval:    interval,
				})
				result, err := analytics.Trend(buckets)
				if errors.Is(err, analytics.ErrInsufficientData) {
					fmt.Fprintf(a.stdout, "%s.%s: %s (%d buckets)\n", measurement, field, analytics.InsufficientData, len(buckets))
					return nil
				}
				if err != nil {
					return err
				}
				if asJSON {
					return a.printJSON(map[string]interface{}{"trend": result, "buckets": buckets})
				}
				fmt.Fprintf(a.stdout, "%s.%s over %s (%d buckets of %s)\n", measurement, field, timeRange, len(buckets), interval)
				fmt.Fprintf(a.stdout, "  direction: %s\n  slope:     %.4f\n  current:   %.2f\n  average:   %.2f\n  min/max:   %.2f / %.2f\n  stddev:    %.4f\n",
					result.Direction, result.Slope, result.Current, result.Average, result.Min, result.Max, result.StdDev)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&measurement, "measurement", "m", "", "measurement to analyse")
	cmd.Flags().StringVar(&field, "field", "", "field to analyse")
	cmd.Flags().StringVar(&tags, "tags", "", "tag filter as JSON")
	cmd.Flags().StringVar(&timeRange, "range", "24h", "time range ending now")
	cmd.Flags().StringVar(&granularity, "granularity", "1h", "bucket width (e.g. 5m, 1h, 1d)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("measurement")
	_ = cmd.MarkFlagRequired("field")
	return cmd
}

func parseTagsFlag(raw string) (models.TagFilter, error) {
	if raw == "" {
		return nil, nil
	}
	var filter models.TagFilter
	if err := json.Unmarshal([]byte(raw), &filter); err != nil {
		return nil, fmt.Errorf("--tags must be a JSON object of strings: %w", err)
	}
	return filter, nil
}
