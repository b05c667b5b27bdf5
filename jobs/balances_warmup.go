package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/balances"
)

// BalanceWarmupJob pre-populates balance report caches for active tenants.
type BalanceWarmupJob struct {
	Balances *balances.Service
	Pool     *pgxpool.Pool
	Logger   *slog.Logger
	clock    func() time.Time
}

// NewBalanceWarmupJob wires dependencies for the warmup handler.
func NewBalanceWarmupJob(svc *balances.Service, pool *pgxpool.Pool, logger *slog.Logger) *BalanceWarmupJob {
	return &BalanceWarmupJob{
		Balances: svc,
		Pool:     pool,
		Logger:   logger,
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// Handle processes balance warmup tasks.
func (j *BalanceWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Balances == nil {
		return errors.New("balance warmup: handler not configured")
	}
	var payload BalanceWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	logger := j.logger()
	logger.Info("starting balance warmup")

	tenants, err := j.fetchTenants(ctx)
	if err != nil {
		logger.Error("load warmup tenants", slog.Any("error", err))
		return err
	}
	if len(tenants) == 0 {
		logger.Info("no tenants discovered for warmup")
		return nil
	}

	now := j.clock()
	for _, tenantID := range tenants {
		tenantCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
		_, err := j.Balances.GetReport(tenantCtx, tenantID, 0, now)
		cancel()
		if err != nil {
			logger.Error("warm tenant", slog.Int64("tenant_id", tenantID), slog.Any("error", err))
			return err
		}
	}

	logger.Info("completed balance warmup", slog.Int("tenants", len(tenants)), slog.Duration("duration", time.Since(now)))
	return nil
}

func (j *BalanceWarmupJob) fetchTenants(ctx context.Context) ([]int64, error) {
	if j.Pool == nil {
		return nil, errors.New("balance warmup: pool not configured")
	}
	rows, err := j.Pool.Query(ctx, `SELECT DISTINCT tenant_id FROM documents ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}

func (j *BalanceWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskBalanceWarmup))
	}
	return slog.Default().With(slog.String("job", TaskBalanceWarmup))
}
