package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kubilitics/kubilitics-metrics/internal/app"
	"github.com/kubilitics/kubilitics-metrics/internal/audit"
)

type cliApp struct {
	configPath string
	stdout     io.Writer
	stderr     io.Writer

	// build constructs the components; tests replace it.
	build func(ctx context.Context, configPath string) (*app.App, error)
}

// NewRootCommand returns the metricsctl command tree.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithIO(os.Stdout, os.Stderr)
}

// NewRootCommandWithIO is NewRootCommand with explicit output streams.
func NewRootCommandWithIO(out, errOut io.Writer) *cobra.Command {
	return newRootCommand(&cliApp{stdout: out, stderr: errOut, build: buildApp})
}

func newRootCommand(a *cliApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "metricsctl",
		Short:         "Collect, retain and analyse cluster metrics",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to the metrics config file (default /etc/kubilitics/metrics.yaml)")

	cmd.AddCommand(
		newCollectCmd(a),
		newCleanupCmd(a),
		newExportCmd(a),
		newTrendCmd(a),
	)
	return cmd
}

func buildApp(ctx context.Context, configPath string) (*app.App, error) {
	cfg, err := app.LoadConfig(ctx, configPath)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

// withApp builds the components, runs fn and releases them.
func (a *cliApp) withApp(ctx context.Context, fn func(*app.App) error) error {
	built, err := a.build(ctx, a.configPath)
	if err != nil {
		return err
	}
	defer built.Close()
	return fn(built)
}

func (a *cliApp) audit(ctx context.Context, built *app.App, event *audit.Event) {
	if built.Audit == nil {
		return
	}
	if err := built.Audit.Log(ctx, event.WithActor("cli", "")); err != nil {
		fmt.Fprintln(a.stderr, "warning: audit log failed:", err)
	}
}

func (a *cliApp) printJSON(v interface{}) error {
	return encodeJSON(a.stdout, v)
}

func encodeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
