package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/agency-erp/internal/app"
	"github.com/odyssey-erp/agency-erp/internal/orders"
	"github.com/odyssey-erp/agency-erp/internal/platform/db"
	"github.com/odyssey-erp/agency-erp/internal/shared"
	"github.com/odyssey-erp/agency-erp/jobs"
	"github.com/odyssey-erp/agency-erp/migrations"
)

// Runtime holds the factories the commands use to reach their backends.
type Runtime struct {
	LoadConfig func() (*app.Config, error)
	Jobs       func(cfg *app.Config) (JobsAPI, error)
	Reconciler func(ctx context.Context, cfg *app.Config) (jobs.Reconciler, func(), error)
	Migrate    func(ctx context.Context, cfg *app.Config) ([]string, error)
}

// DefaultRuntime connects to the configured PostgreSQL and Redis.
func DefaultRuntime() Runtime {
	return Runtime{
		LoadConfig: app.LoadConfig,
		Jobs: func(cfg *app.Config) (JobsAPI, error) {
			return NewJobsCLI(cfg.AsynqRedis()), nil
		},
		Reconciler: func(ctx context.Context, cfg *app.Config) (jobs.Reconciler, func(), error) {
			pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 2})
			if err != nil {
				return nil, nil, err
			}
			svc := orders.NewService(orders.NewRepository(pool), cfg.Order,
				shared.NewAuditLogger(pool), shared.NewIdempotencyStore(pool), nil, app.NewLogger(cfg))
			return svc, pool.Close, nil
		},
		Migrate: func(ctx context.Context, cfg *app.Config) ([]string, error) {
			pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 1})
			if err != nil {
				return nil, err
			}
			defer pool.Close()
			return migrations.Apply(ctx, pool)
		},
	}
}

// NewRootCommand assembles the agencyctl command tree.
func NewRootCommand(rt Runtime) *cobra.Command {
	root := &cobra.Command{
		Use:           "agencyctl",
		Short:         "Operational helpers for supplier orders",
		SilenceUsage: true,
	}
	root.AddCommand(newReconcileCommand(rt), newQueueCommand(rt), newMigrateCommand(rt))
	return root
}

func newReconcileCommand(rt Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Scan supplier orders for payment status drift",
		Example: `  # enqueue a run on the worker
  agencyctl reconcile

  # run in-process and print the drift report
  agencyctl reconcile --now`,
		RunE: func(cmd *cobra.Command, args []string) error {
			now, _ := cmd.Flags().GetBool("now")
			requestedBy, _ := cmd.Flags().GetString("requested-by")
			cfg, err := rt.LoadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if !now {
				client, err := rt.Jobs(cfg)
				if err != nil {
					return err
				}
				defer client.Close()
				info, err := client.Trigger(ctx, jobs.TaskOrdersReconcile, requestedBy)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
				return nil
			}

			reconciler, closeFn, err := rt.Reconciler(ctx, cfg)
			if err != nil {
				return err
			}
			if closeFn != nil {
				defer closeFn()
			}
			drift, err := reconciler.Reconcile(ctx)
			if err != nil {
				return err
			}
			if len(drift) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no drift")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ORDER\tSTORED\tDERIVED\tTOTAL\tPAID\tOVERPAID")
			for _, d := range drift {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%t\n", d.OrderID, d.Stored, d.Derived,
					d.Total.StringFixed(2), d.Paid.StringFixed(2), d.Overpaid)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Bool("now", false, "Run the scan in-process instead of enqueueing it")
	cmd.Flags().String("requested-by", "cli", "Name recorded on the enqueued task")
	return cmd
}

func newQueueCommand(rt Runtime) *cobra.Command {
	queue := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the background job queue",
	}
	queue.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print default queue counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rt.LoadConfig()
			if err != nil {
				return err
			}
			client, err := rt.Jobs(cfg)
			if err != nil {
				return err
			}
			defer client.Close()
			stats, err := client.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
			return nil
		},
	})
	queue.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Enqueue an idempotency key cleanup",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rt.LoadConfig()
			if err != nil {
				return err
			}
			client, err := rt.Jobs(cfg)
			if err != nil {
				return err
			}
			defer client.Close()
			info, err := client.Trigger(cmd.Context(), jobs.TaskIdempotencyCleanup, "cli")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	})
	return queue
}

func newMigrateCommand(rt Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rt.LoadConfig()
			if err != nil {
				return err
			}
			applied, err := rt.Migrate(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		},
	}
}
