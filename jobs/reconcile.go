package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/dokan-khata/dokan-khata/internal/ledger"
)

// Reconciler repairs running dues that have drifted from the transaction
// history. Drift should never occur since ledger writes are transactional,
// but the nightly run keeps a crashed or manually-edited database honest.
type Reconciler struct {
	service *ledger.Service
	logger  *slog.Logger
}

// NewReconciler constructs a Reconciler instance.
func NewReconciler(service *ledger.Service, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{service: service, logger: logger}
}

// HandleTask processes TaskLedgerReconcile tasks.
func (r *Reconciler) HandleTask(ctx context.Context, t *asynq.Task) error {
	var payload LedgerReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.CustomerID != "" {
		_, err := r.service.RecomputeBalance(ctx, payload.CustomerID)
		return err
	}
	return r.ReconcileAll(ctx)
}

// ReconcileAll recomputes the balance of every customer. Individual failures
// are logged and skipped so one bad row cannot stall the rest of the run.
func (r *Reconciler) ReconcileAll(ctx context.Context) error {
	customers, err := r.service.ListCustomers(ctx)
	if err != nil {
		return err
	}
	failed := 0
	for _, c := range customers {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := r.service.RecomputeBalance(ctx, c.ID); err != nil {
			failed++
			r.logger.Error("reconcile customer",
				slog.String("customer_id", c.ID),
				slog.Any("error", err))
		}
	}
	r.logger.Info("ledger reconcile finished",
		slog.Int("customers", len(customers)),
		slog.Int("failed", failed))
	return nil
}
