package ledger

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// PaymentEvent is a row of payment_events.
type PaymentEvent struct {
	ID         int64
	EventID    string
	PayerID    string
	ReceiverID string
	Month      string
	Paid       bool
	Source     string
	ChangedAt  string
	RecordedAt string
	ExportedAt sql.NullString
}

const paymentEventColumns = `id, event_id, payer_id, receiver_id, month, paid, source, changed_at, recorded_at, exported_at`

const insertPaymentEvent = `
INSERT INTO payment_events (event_id, payer_id, receiver_id, month, paid, source, changed_at, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (event_id) DO NOTHING
`

type InsertPaymentEventParams struct {
	EventID    string
	PayerID    string
	ReceiverID string
	Month      string
	Paid       bool
	Source     string
	ChangedAt  string
	RecordedAt string
}

// InsertPaymentEvent returns the number of rows written: 0 when the event id
// was already recorded.
func (q *Queries) InsertPaymentEvent(ctx context.Context, arg InsertPaymentEventParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertPaymentEvent,
		arg.EventID,
		arg.PayerID,
		arg.ReceiverID,
		arg.Month,
		arg.Paid,
		arg.Source,
		arg.ChangedAt,
		arg.RecordedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getPaymentEventByEventID = `SELECT ` + paymentEventColumns + ` FROM payment_events WHERE event_id = ?`

func (q *Queries) GetPaymentEventByEventID(ctx context.Context, eventID string) (PaymentEvent, error) {
	row := q.db.QueryRowContext(ctx, getPaymentEventByEventID, eventID)
	var i PaymentEvent
	err := scanPaymentEvent(row, &i)
	return i, err
}

const listRecentPaymentEvents = `SELECT ` + paymentEventColumns + ` FROM payment_events ORDER BY id DESC LIMIT ?`

func (q *Queries) ListRecentPaymentEvents(ctx context.Context, limit int64) ([]PaymentEvent, error) {
	return q.list(ctx, listRecentPaymentEvents, limit)
}

const listPaymentEventsByMonth = `SELECT ` + paymentEventColumns + ` FROM payment_events WHERE month = ? ORDER BY id`

func (q *Queries) ListPaymentEventsByMonth(ctx context.Context, month string) ([]PaymentEvent, error) {
	return q.list(ctx, listPaymentEventsByMonth, month)
}

const listPendingExport = `SELECT ` + paymentEventColumns + ` FROM payment_events WHERE exported_at IS NULL ORDER BY id LIMIT ?`

func (q *Queries) ListPendingExport(ctx context.Context, limit int64) ([]PaymentEvent, error) {
	return q.list(ctx, listPendingExport, limit)
}

const markExported = `UPDATE payment_events SET exported_at = ? WHERE id = ?`

func (q *Queries) MarkExported(ctx context.Context, exportedAt string, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, markExported, exportedAt, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) list(ctx context.Context, query string, args ...interface{}) ([]PaymentEvent, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PaymentEvent
	for rows.Next() {
		var i PaymentEvent
		if err := scanPaymentEvent(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPaymentEvent(s scanner, i *PaymentEvent) error {
	return s.Scan(
		&i.ID,
		&i.EventID,
		&i.PayerID,
		&i.ReceiverID,
		&i.Month,
		&i.Paid,
		&i.Source,
		&i.ChangedAt,
		&i.RecordedAt,
		&i.ExportedAt,
	)
}
