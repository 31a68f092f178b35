package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/agency-erp/internal/app"
	"github.com/odyssey-erp/agency-erp/internal/orders"
	"github.com/odyssey-erp/agency-erp/jobs"
)

type fakeJobs struct {
	triggered []string
	by        string
	closed    bool
}

func (f *fakeJobs) Trigger(ctx context.Context, name, requestedBy string) (*asynq.TaskInfo, error) {
	f.triggered = append(f.triggered, name)
	f.by = requestedBy
	return &asynq.TaskInfo{ID: "t-1", Type: name, Queue: jobs.QueueDefault}, nil
}

func (f *fakeJobs) InspectQueue(ctx context.Context) (jobs.QueueStats, error) {
	return jobs.QueueStats{Queue: jobs.QueueDefault, Pending: 3, Retry: 1}, nil
}

func (f *fakeJobs) Close() error {
	f.closed = true
	return nil
}

type fakeReconciler struct {
	drift []orders.Drift
}

func (f fakeReconciler) Reconcile(ctx context.Context) ([]orders.Drift, error) {
	return f.drift, nil
}

func testRuntime(j *fakeJobs, drift []orders.Drift) Runtime {
	return Runtime{
		LoadConfig: func() (*app.Config, error) { return &app.Config{}, nil },
		Jobs:       func(*app.Config) (JobsAPI, error) { return j, nil },
		Reconciler: func(context.Context, *app.Config) (jobs.Reconciler, func(), error) {
			return fakeReconciler{drift: drift}, nil, nil
		},
		Migrate: func(context.Context, *app.Config) ([]string, error) {
			return []string{"0001_orders.sql"}, nil
		},
	}
}

func run(t *testing.T, rt Runtime, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand(rt)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestReconcileEnqueuesByDefault(t *testing.T) {
	j := &fakeJobs{}
	out, err := run(t, testRuntime(j, nil), "reconcile", "--requested-by", "ana")
	require.NoError(t, err)
	require.Equal(t, []string{jobs.TaskOrdersReconcile}, j.triggered)
	require.Equal(t, "ana", j.by)
	require.True(t, j.closed)
	require.Contains(t, out, "id=t-1")
}

func TestReconcileNowPrintsDrift(t *testing.T) {
	drift := []orders.Drift{{
		OrderID: 42,
		Stored:  orders.PaymentStatusPending,
		Derived: orders.PaymentStatusPaid,
		Total:   decimal.RequireFromString("116"),
		Paid:    decimal.RequireFromString("116"),
	}}
	out, err := run(t, testRuntime(&fakeJobs{}, drift), "reconcile", "--now")
	require.NoError(t, err)
	require.Contains(t, out, "ORDER")
	require.Contains(t, out, "42")
	require.Contains(t, out, "116.00")

	out, err = run(t, testRuntime(&fakeJobs{}, nil), "reconcile", "--now")
	require.NoError(t, err)
	require.Contains(t, out, "no drift")
}

func TestQueueCommands(t *testing.T) {
	j := &fakeJobs{}
	out, err := run(t, testRuntime(j, nil), "queue", "stats")
	require.NoError(t, err)
	require.Contains(t, out, "pending=3")
	require.Contains(t, out, "retry=1")

	_, err = run(t, testRuntime(j, nil), "queue", "cleanup")
	require.NoError(t, err)
	require.Equal(t, []string{jobs.TaskIdempotencyCleanup}, j.triggered)
}

func TestMigrateAndConfigErrors(t *testing.T) {
	out, err := run(t, testRuntime(&fakeJobs{}, nil), "migrate")
	require.NoError(t, err)
	require.Contains(t, out, "applied 0001_orders.sql")

	rt := testRuntime(&fakeJobs{}, nil)
	rt.LoadConfig = func() (*app.Config, error) { return nil, errors.New("boom") }
	_, err = run(t, rt, "queue", "stats")
	require.Error(t, err)
}

func TestJobsCLIRejectsUnknownJob(t *testing.T) {
	c := &JobsCLI{client: jobs.NewClient(asynq.RedisClientOpt{Addr: "127.0.0.1:0"})}
	defer c.Close()
	_, err := c.Trigger(context.Background(), "unknown", "cli")
	require.Error(t, err)
}
