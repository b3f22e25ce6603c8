// Package ledger keeps an audit trail of payment status changes in SQLite.
// The member directory stays the system of record; the ledger only answers
// "who changed which flag, and when".
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"committee/internal/core"
	"committee/internal/log"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

// ErrEmptyEventID is returned when an event has no id to deduplicate on.
var ErrEmptyEventID = errors.New("empty event id")

// Entry is one recorded payment status change.
type Entry struct {
	ID      int64
	EventID string
	core.PaymentChange
	RecordedAt time.Time
	// ExportedAt is zero until the entry reached the spreadsheet export.
	ExportedAt time.Time
}

// Exported reports whether the entry was exported.
func (e Entry) Exported() bool {
	return !e.ExportedAt.IsZero()
}

type Store struct {
	db      *sql.DB
	queries *Queries
	logger  *log.Logger
	now     func() time.Time
}

// Open creates the database file if needed and applies migrations.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{
		db:      db,
		queries: New(db),
		logger:  log.Default(log.ComponentLedger),
		now:     time.Now,
	}
	s.logger.Debug("Ledger schema ready", "path", dbPath, "version", version)
	return s, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Record stores a change under eventID. Recording the same event id twice is
// a no-op and reports false.
func (s *Store) Record(ctx context.Context, eventID string, c core.PaymentChange) (bool, error) {
	if eventID == "" {
		return false, ErrEmptyEventID
	}
	if c.PayerID == "" || c.ReceiverID == "" {
		return false, fmt.Errorf("record payment event: missing payer or receiver")
	}
	if !core.EntryMonths.Contains(c.Month) {
		return false, fmt.Errorf("record payment event: %w", core.ErrInvalidMonth)
	}
	source := c.Source
	if source == "" {
		source = core.SourceManual
	}
	changedAt := c.At
	if changedAt.IsZero() {
		changedAt = s.now()
	}

	n, err := s.queries.InsertPaymentEvent(ctx, InsertPaymentEventParams{
		EventID:    eventID,
		PayerID:    c.PayerID,
		ReceiverID: c.ReceiverID,
		Month:      string(c.Month),
		Paid:       c.Paid,
		Source:     string(source),
		ChangedAt:  changedAt.UTC().Format(timeLayout),
		RecordedAt: s.now().UTC().Format(timeLayout),
	})
	if err != nil {
		return false, fmt.Errorf("insert payment event: %w", err)
	}

	if n == 0 {
		s.logger.DebugContext(ctx, "Payment event already recorded", "event_id", eventID)
		return false, nil
	}
	s.logger.InfoContext(ctx, "Payment event recorded",
		append(log.NewFields().WithPayment(c.PayerID, string(c.Month), c.ReceiverID).WithOperation(log.OpRecord).ToSlice(),
			log.FieldPaid, c.Paid,
			log.FieldSource, string(source))...)
	return true, nil
}

// Get returns the entry recorded under eventID.
func (s *Store) Get(ctx context.Context, eventID string) (Entry, error) {
	row, err := s.queries.GetPaymentEventByEventID(ctx, eventID)
	if err != nil {
		return Entry{}, fmt.Errorf("get payment event %s: %w", eventID, err)
	}
	return toEntry(row)
}

// Recent returns the latest entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.queries.ListRecentPaymentEvents(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list recent payment events: %w", err)
	}
	return toEntries(rows)
}

// ForMonth returns every entry of month in recording order.
func (s *Store) ForMonth(ctx context.Context, month core.Month) ([]Entry, error) {
	rows, err := s.queries.ListPaymentEventsByMonth(ctx, string(month))
	if err != nil {
		return nil, fmt.Errorf("list payment events for %s: %w", month, err)
	}
	return toEntries(rows)
}

// PendingExport returns up to limit entries not exported yet, oldest first.
func (s *Store) PendingExport(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.queries.ListPendingExport(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list pending export: %w", err)
	}
	return toEntries(rows)
}

// MarkExported flags an entry as exported.
func (s *Store) MarkExported(ctx context.Context, id int64) error {
	n, err := s.queries.MarkExported(ctx, s.now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("mark payment event exported: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("mark payment event exported: %w", sql.ErrNoRows)
	}
	return nil
}

func toEntries(rows []PaymentEvent) ([]Entry, error) {
	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		e, err := toEntry(r)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func toEntry(r PaymentEvent) (Entry, error) {
	changedAt, err := time.Parse(timeLayout, r.ChangedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parse changed_at of event %d: %w", r.ID, err)
	}
	recordedAt, err := time.Parse(timeLayout, r.RecordedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parse recorded_at of event %d: %w", r.ID, err)
	}
	e := Entry{
		ID:      r.ID,
		EventID: r.EventID,
		PaymentChange: core.PaymentChange{
			PayerID:    r.PayerID,
			ReceiverID: r.ReceiverID,
			Month:      core.Month(r.Month),
			Paid:       r.Paid,
			Source:     core.ChangeSource(r.Source),
			At:         changedAt,
		},
		RecordedAt: recordedAt,
	}
	if r.ExportedAt.Valid {
		if e.ExportedAt, err = time.Parse(timeLayout, r.ExportedAt.String); err != nil {
			return Entry{}, fmt.Errorf("parse exported_at of event %d: %w", r.ID, err)
		}
	}
	return e, nil
}
