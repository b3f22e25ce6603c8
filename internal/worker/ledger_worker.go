package worker

import (
	"context"
	"fmt"
	"time"

	"committee/internal/amqp"
	"committee/internal/core"
	"committee/internal/ledger"
	"committee/internal/log"
)

// Exporter mirrors a recorded change somewhere outside the ledger.
type Exporter interface {
	ExportPayment(ctx context.Context, eventID string, change core.PaymentChange) (string, error)
}

// LedgerWorker records payment status events and forwards them to the
// spreadsheet export when one is configured.
type LedgerWorker struct {
	ledger    *ledger.Store
	exporter  Exporter
	batchSize int
	logger    *log.Logger
}

func NewLedgerWorker(store *ledger.Store, exporter Exporter, batchSize int) *LedgerWorker {
	if batchSize < 1 {
		batchSize = 10
	}
	return &LedgerWorker{
		ledger:    store,
		exporter:  exporter,
		batchSize: batchSize,
		logger:    log.Default(log.ComponentWorker),
	}
}

// HandlePaymentStatus processes a single payment status message from AMQP.
// Only a ledger failure is returned, so the message is requeued; export
// failures are left to ProcessPendingExports.
func (w *LedgerWorker) HandlePaymentStatus(ctx context.Context, msg *amqp.PaymentStatusMessage) error {
	inserted, err := w.ledger.Record(ctx, msg.EventID, msg.PaymentChange)
	if err != nil {
		return fmt.Errorf("record payment event: %w", err)
	}
	if !inserted || w.exporter == nil {
		return nil
	}

	entry, err := w.ledger.Get(ctx, msg.EventID)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to load recorded event", "event_id", msg.EventID, log.FieldError, err)
		return nil
	}
	if err := w.export(ctx, entry); err != nil {
		w.logger.WarnContext(ctx, "Export failed, will retry", "event_id", msg.EventID, log.FieldError, err)
	}
	return nil
}

// PaymentChanged records a change directly, for deployments without the
// event feed. It satisfies matrix.Notifier.
func (w *LedgerWorker) PaymentChanged(ctx context.Context, change core.PaymentChange) error {
	return w.HandlePaymentStatus(ctx, amqp.NewPaymentStatusMessage(change))
}

// Run sweeps pending exports every interval until ctx is done.
func (w *LedgerWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ProcessPendingExports(ctx); err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "Pending export sweep failed", log.FieldError, err)
			}
		}
	}
}

// ProcessPendingExports exports entries that have not reached the
// spreadsheet yet. This is a backup for failed or missed exports.
func (w *LedgerWorker) ProcessPendingExports(ctx context.Context) (int, error) {
	return w.processPending(ctx, w.batchSize)
}

// StartupExportCheck clears a larger backlog when the worker starts.
func (w *LedgerWorker) StartupExportCheck(ctx context.Context) (int, error) {
	n, err := w.processPending(ctx, w.batchSize*5)
	if err != nil {
		return n, fmt.Errorf("startup export check: %w", err)
	}
	w.logger.InfoContext(ctx, "Startup export check completed", log.FieldCount, n)
	return n, nil
}

func (w *LedgerWorker) processPending(ctx context.Context, limit int) (int, error) {
	if w.exporter == nil {
		return 0, nil
	}
	pending, err := w.ledger.PendingExport(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("get pending exports: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	w.logger.InfoContext(ctx, "Processing pending exports", log.FieldCount, len(pending))

	exported := 0
	for _, entry := range pending {
		if ctx.Err() != nil {
			return exported, ctx.Err()
		}
		if err := w.export(ctx, entry); err != nil {
			w.logger.ErrorContext(ctx, "Failed to export payment event", "event_id", entry.EventID, log.FieldError, err)
			continue
		}
		exported++
	}
	return exported, nil
}

func (w *LedgerWorker) export(ctx context.Context, entry ledger.Entry) error {
	ref, err := w.exporter.ExportPayment(ctx, entry.EventID, entry.PaymentChange)
	if err != nil {
		return err
	}
	if err := w.ledger.MarkExported(ctx, entry.ID); err != nil {
		// The row is in the sheet; a later sweep may export it again.
		w.logger.ErrorContext(ctx, "Failed to mark as exported", "event_id", entry.EventID, log.FieldError, err)
	}
	w.logger.DebugContext(ctx, "Payment event exported", "event_id", entry.EventID, "range", ref)
	return nil
}
