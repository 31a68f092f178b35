package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/agency-erp/internal/jobs"
	"github.com/odyssey-erp/agency-erp/internal/orders"
)

// Reconciler reports orders whose payment status drifted from their ledger.
type Reconciler interface {
	Reconcile(ctx context.Context) ([]orders.Drift, error)
}

// ReconcileJob runs the payment status reconciliation scan.
type ReconcileJob struct {
	Orders  Reconciler
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewReconcileJob wires dependencies for the reconciliation handler.
func NewReconcileJob(reconciler Reconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileJob {
	return &ReconcileJob{Orders: reconciler, Logger: logger, Metrics: metrics}
}

// Handle processes TaskOrdersReconcile tasks.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Orders == nil {
		return errors.New("orders reconcile: handler not configured")
	}
	var payload ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskOrdersReconcile)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("requested_by", payload.RequestedBy))
	start := time.Now()
	logger.Info("starting payment reconciliation")

	drifts, err := j.Orders.Reconcile(ctx)
	if err != nil {
		logger.Error("reconciliation failed", slog.Any("error", err))
		return err
	}

	mismatched, overpaid := 0, 0
	for _, d := range drifts {
		if d.Overpaid {
			overpaid++
		}
		if d.Stored != d.Derived {
			mismatched++
		}
		logger.Warn("payment status drift",
			slog.Int64("order_id", d.OrderID),
			slog.String("stored", string(d.Stored)),
			slog.String("derived", string(d.Derived)),
			slog.String("total", d.Total.StringFixed(2)),
			slog.String("paid", d.Paid.StringFixed(2)),
			slog.Bool("overpaid", d.Overpaid),
		)
	}
	j.Metrics.SetDrift(mismatched, overpaid)

	logger.Info("completed payment reconciliation",
		slog.Int("drifted", len(drifts)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *ReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
