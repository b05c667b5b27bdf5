package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBalanceWarmup pre-populates balance report caches per tenant.
	TaskBalanceWarmup = "balances:warmup"
	// TaskStockReconcile re-runs ledger sync for recently touched documents.
	TaskStockReconcile = "stock:reconcile"
)

// BalanceWarmupPayload carries scheduling metadata for the warmup sweep.
type BalanceWarmupPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewBalanceWarmupTask constructs an Asynq task for the balance warmup.
func NewBalanceWarmupTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(BalanceWarmupPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBalanceWarmup, body, asynq.Queue(QueueDefault)), nil
}

// StockReconcilePayload bounds how far back the sweep looks.
type StockReconcilePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
	WindowHours  int       `json:"window_hours"`
}

// NewStockReconcileTask constructs an Asynq task for the reconcile sweep.
func NewStockReconcileTask(at time.Time, windowHours int) (*asynq.Task, error) {
	if windowHours <= 0 {
		windowHours = 24
	}
	body, err := json.Marshal(StockReconcilePayload{ScheduledFor: at, WindowHours: windowHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockReconcile, body, asynq.Queue(QueueDefault)), nil
}
