package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/documents"
	"github.com/meridian-erp/meridian-erp/internal/stockledger"
)

// StockReconcileJob re-runs ledger synchronization for validated documents
// touched inside the sweep window, healing lines the request-time sync
// skipped on transient failures.
type StockReconcileJob struct {
	Documents *documents.Repository
	Stock     *stockledger.Service
	Pool      *pgxpool.Pool
	Logger    *slog.Logger
}

// NewStockReconcileJob wires dependencies for the reconcile handler.
func NewStockReconcileJob(docs *documents.Repository, stock *stockledger.Service, pool *pgxpool.Pool, logger *slog.Logger) *StockReconcileJob {
	return &StockReconcileJob{Documents: docs, Stock: stock, Pool: pool, Logger: logger}
}

// Handle processes reconcile sweep tasks.
func (j *StockReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Documents == nil || j.Stock == nil {
		return errors.New("stock reconcile: handler not configured")
	}
	var payload StockReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.WindowHours <= 0 {
		payload.WindowHours = 24
	}

	logger := j.logger()
	start := time.Now()

	refs, err := j.fetchRecent(ctx, payload.WindowHours)
	if err != nil {
		logger.Error("load reconcile candidates", slog.Any("error", err))
		return err
	}

	reconciled := 0
	for _, ref := range refs {
		doc, err := j.Documents.Get(ctx, ref.tenantID, ref.id)
		if err != nil {
			logger.Error("reload document", slog.Int64("document_id", ref.id), slog.Any("error", err))
			continue
		}
		if err := j.Stock.SyncForDocument(ctx, doc, nil); err != nil {
			logger.Error("reconcile document", slog.Int64("document_id", ref.id), slog.Any("error", err))
			continue
		}
		reconciled++
	}

	logger.Info("completed stock reconcile sweep",
		slog.Int("candidates", len(refs)),
		slog.Int("reconciled", reconciled),
		slog.Duration("duration", time.Since(start)))
	return nil
}

type documentRef struct {
	tenantID int64
	id       int64
}

func (j *StockReconcileJob) fetchRecent(ctx context.Context, windowHours int) ([]documentRef, error) {
	if j.Pool == nil {
		return nil, errors.New("stock reconcile: pool not configured")
	}
	kinds := []string{
		string(documents.KindSalesInvoice),
		string(documents.KindDeliveryNote),
		string(documents.KindPurchaseInvoice),
		string(documents.KindGoodsReceipt),
		string(documents.KindReturnNote),
	}
	query := fmt.Sprintf(`
		SELECT tenant_id, id FROM documents
		WHERE status = 'VALIDATED' AND kind = ANY($1)
		  AND updated_at > NOW() - INTERVAL '%d hours'
		ORDER BY tenant_id, id`, windowHours)

	rows, err := j.Pool.Query(ctx, query, kinds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []documentRef
	for rows.Next() {
		var ref documentRef
		if err := rows.Scan(&ref.tenantID, &ref.id); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (j *StockReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStockReconcile))
	}
	return slog.Default().With(slog.String("job", TaskStockReconcile))
}
