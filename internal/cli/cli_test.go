package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-metrics/internal/analytics"
	"github.com/kubilitics/kubilitics-metrics/internal/app"
	"github.com/kubilitics/kubilitics-metrics/internal/collector"
	"github.com/kubilitics/kubilitics-metrics/internal/config"
	"github.com/kubilitics/kubilitics-metrics/internal/dashboard"
	"github.com/kubilitics/kubilitics-metrics/internal/models"
	"github.com/kubilitics/kubilitics-metrics/internal/observer"
	"github.com/kubilitics/kubilitics-metrics/internal/storage/sqlstore"
)

type fakeObserver struct{}

func (fakeObserver) System(ctx context.Context) (observer.SystemSnapshot, error) {
	return observer.SystemSnapshot{Containers: observer.ContainerCounts{Total: 2, Running: 2}}, nil
}

func (fakeObserver) Services(ctx context.Context) ([]observer.ServiceDescriptor, error) {
	return nil, nil
}

func (fakeObserver) Nodes(ctx context.Context) ([]observer.NodeDescriptor, error) {
	return nil, nil
}

// testCLI shares one sqlite file across command invocations.
func testCLI(t *testing.T) (*cliApp, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "metrics.db")
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	a := &cliApp{
		stdout: out,
		stderr: errOut,
		build: func(ctx context.Context, _ string) (*app.App, error) {
			store, err := sqlstore.New(ctx, sqlstore.Config{Driver: sqlstore.DriverSQLite, DSN: dbPath}, nil)
			if err != nil {
				return nil, err
			}
			col := collector.New(fakeObserver{}, store, collector.Config{}, nil)
			return &app.App{
				Config:     config.DefaultConfig(),
				Logger:     zap.NewNop(),
				Backend:    store,
				Collector:  col,
				Analytics:  analytics.NewEngine(col, analytics.Options{}, nil),
				Dashboards: dashboard.NewBuilder(col, nil),
			}, nil
		},
	}
	return a, out, errOut
}

func run(t *testing.T, a *cliApp, args ...string) error {
	t.Helper()
	cmd := newRootCommand(a)
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestCollectOnce(t *testing.T) {
	a, out, _ := testCLI(t)
	require.NoError(t, run(t, a, "collect"))
	assert.Contains(t, out.String(), `"success": true`)
}

func TestCollectUnknownMeasurementFails(t *testing.T) {
	a, _, _ := testCLI(t)
	assert.Error(t, run(t, a, "collect", "--measurements", "bogus"))
}

func TestCollectContinuousStopsOnCancel(t *testing.T) {
	a, out, _ := testCLI(t)
	cmd := newRootCommand(a)
	cmd.SetArgs([]string{"collect", "--continuous", "--interval", "1s"})

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	require.NoError(t, cmd.ExecuteContext(ctx))
	assert.Contains(t, out.String(), "collecting every 1s")
	assert.Contains(t, out.String(), "collect:")
}

func TestCleanup(t *testing.T) {
	a, out, _ := testCLI(t)
	require.NoError(t, run(t, a, "collect"))
	require.NoError(t, run(t, a, "cleanup", "--days", "7"))
	assert.Contains(t, out.String(), "deleted 0 points older than 7 days")

	assert.Error(t, run(t, a, "cleanup", "--days", "0"))
}

func TestExportCSVToFile(t *testing.T) {
	a, _, _ := testCLI(t)
	require.NoError(t, run(t, a, "collect"))

	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, run(t, a, "export", "-m", models.MeasurementSystemContainers, "--format", "csv", "-o", path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# "+models.MeasurementSystemContainers))
}

func TestExportRequiresMeasurement(t *testing.T) {
	a, _, _ := testCLI(t)
	assert.Error(t, run(t, a, "export"))
}

func TestExportBadTags(t *testing.T) {
	a, _, _ := testCLI(t)
	assert.Error(t, run(t, a, "export", "-m", "x", "--tags", "{"))
}

func TestTrendInsufficientData(t *testing.T) {
	a, out, errOut := testCLI(t)
	require.NoError(t, run(t, a, "collect"))
	require.NoError(t, run(t, a, "trend", "-m", models.MeasurementSystemContainers, "--field", "value", "--range", "1h", "--granularity", "bogus"))
	assert.Contains(t, out.String(), analytics.InsufficientData)
	assert.Contains(t, errOut.String(), "warning:")
}
