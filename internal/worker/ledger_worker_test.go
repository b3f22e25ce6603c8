package worker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"committee/internal/amqp"
	"committee/internal/core"
	"committee/internal/ledger"
)

type fakeExporter struct {
	mu   sync.Mutex
	rows []string
	fail bool
}

func (f *fakeExporter) ExportPayment(ctx context.Context, eventID string, change core.PaymentChange) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errors.New("quota exceeded")
	}
	f.rows = append(f.rows, eventID)
	return "Payments!A2:G2", nil
}

func (f *fakeExporter) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func openLedger(t *testing.T) *ledger.Store {
	t.Helper()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func message(eventID string) *amqp.PaymentStatusMessage {
	return &amqp.PaymentStatusMessage{
		EventID: eventID,
		PaymentChange: core.PaymentChange{
			PayerID:    "p",
			ReceiverID: "r",
			Month:      "May",
			Paid:       true,
			Source:     core.SourceAuto,
			At:         time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC),
		},
		Timestamp: time.Now(),
	}
}

func TestLedgerWorker_HandlePaymentStatus(t *testing.T) {
	store := openLedger(t)
	exporter := &fakeExporter{}
	w := NewLedgerWorker(store, exporter, 10)
	ctx := context.Background()

	if err := w.HandlePaymentStatus(ctx, message("evt-1")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	// redelivery
	if err := w.HandlePaymentStatus(ctx, message("evt-1")); err != nil {
		t.Fatalf("handle redelivery: %v", err)
	}

	if len(exporter.rows) != 1 {
		t.Fatalf("exported %d rows, want 1", len(exporter.rows))
	}
	entry, err := store.Get(ctx, "evt-1")
	if err != nil || !entry.Exported() {
		t.Fatalf("entry not exported: %+v err=%v", entry, err)
	}
}

func TestLedgerWorker_ExportFailureIsRetried(t *testing.T) {
	store := openLedger(t)
	exporter := &fakeExporter{fail: true}
	w := NewLedgerWorker(store, exporter, 10)
	ctx := context.Background()

	if err := w.HandlePaymentStatus(ctx, message("evt-1")); err != nil {
		t.Fatalf("export failure must not requeue the message: %v", err)
	}
	if n, err := w.ProcessPendingExports(ctx); err != nil || n != 0 {
		t.Fatalf("pending with failing exporter: n=%d err=%v", n, err)
	}

	exporter.setFail(false)
	n, err := w.StartupExportCheck(ctx)
	if err != nil || n != 1 {
		t.Fatalf("startup check: n=%d err=%v", n, err)
	}
	if n, _ := w.ProcessPendingExports(ctx); n != 0 {
		t.Fatalf("entry exported twice")
	}
}

func TestLedgerWorker_WithoutExporter(t *testing.T) {
	store := openLedger(t)
	w := NewLedgerWorker(store, nil, 10)
	ctx := context.Background()

	if err := w.HandlePaymentStatus(ctx, message("evt-1")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if n, err := w.ProcessPendingExports(ctx); err != nil || n != 0 {
		t.Fatalf("pending without exporter: n=%d err=%v", n, err)
	}
	if _, err := store.Get(ctx, "evt-1"); err != nil {
		t.Fatalf("event not recorded: %v", err)
	}
}

func TestLedgerWorker_InvalidEventIsRequeued(t *testing.T) {
	store := openLedger(t)
	w := NewLedgerWorker(store, nil, 10)

	msg := message("")
	if err := w.HandlePaymentStatus(context.Background(), msg); err == nil {
		t.Fatal("expected ledger error for empty event id")
	}
}

func TestLedgerWorker_PaymentChanged(t *testing.T) {
	store := openLedger(t)
	exporter := &fakeExporter{}
	w := NewLedgerWorker(store, exporter, 10)
	ctx := context.Background()

	change := message("").PaymentChange
	change.Source = core.SourceManual
	if err := w.PaymentChanged(ctx, change); err != nil {
		t.Fatalf("payment changed: %v", err)
	}

	entries, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 1 || entries[0].Source != core.SourceManual || entries[0].EventID == "" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if len(exporter.rows) != 1 {
		t.Errorf("exported %d rows, want 1", len(exporter.rows))
	}
}
