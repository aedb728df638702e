package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerReconcile recomputes running dues from transaction history.
	TaskLedgerReconcile = "ledger:reconcile"
)

// LedgerReconcilePayload scopes a reconcile run. An empty CustomerID means
// every customer in the shop.
type LedgerReconcilePayload struct {
	CustomerID string `json:"customer_id,omitempty"`
}

// NewLedgerReconcileTask constructs an Asynq task for balance reconciliation.
func NewLedgerReconcileTask(payload LedgerReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerReconcile, data, asynq.Queue(QueueDefault)), nil
}
