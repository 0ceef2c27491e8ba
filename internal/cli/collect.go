package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kubilitics/kubilitics-metrics/internal/app"
	"github.com/kubilitics/kubilitics-metrics/internal/collector"
	"github.com/kubilitics/kubilitics-metrics/internal/scheduler"
)

func newCollectCmd(a *cliApp) *cobra.Command {
	var (
		continuous   bool
		interval     time.Duration
		measurements []string
	)
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect one snapshot, or keep collecting with --continuous",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withApp(cmd.Context(), func(built *app.App) error {
				if !continuous {
					summary := built.Collector.Collect(cmd.Context(), collector.CollectOptions{Measurements: measurements})
					if err := a.printJSON(summary); err != nil {
						return err
					}
					if !summary.Success {
						return fmt.Errorf("collection failed: %v", summary.Errors)
					}
					return nil
				}
				if interval <= 0 {
					interval = built.Config.Collection.Interval()
				}
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				return a.collectContinuously(ctx, built, interval, measurements)
			})
		},
	}
	cmd.Flags().BoolVar(&continuous, "continuous", false, "keep collecting until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", 0, "collection interval in continuous mode (default from config)")
	cmd.Flags().StringSliceVar(&measurements, "measurements", nil, "only collect these measurements")
	return cmd
}

// collectContinuously runs a first collection at once and then one per
// interval on the scheduler until ctx ends.
func (a *cliApp) collectContinuously(ctx context.Context, built *app.App, interval time.Duration, measurements []string) error {
	sched := scheduler.New(built.Logger)
	job := scheduler.CollectionJob(built.Collector, interval, measurements)
	if err := sched.Add(job); err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "collecting every %s, press Ctrl+C to stop\n", interval)
	if err := sched.Trigger(ctx, scheduler.JobCollect); err != nil {
		fmt.Fprintf(a.stderr, "collection failed: %v\n", err)
	}
	if err := sched.Start(); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), interval)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		return err
	}
	for _, st := range sched.Status() {
		fmt.Fprintf(a.stdout, "%s: %d runs, %d failed\n", st.Name, st.Runs, st.Failures)
	}
	return nil
}
