package matrix

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"committee/internal/core"
	"committee/internal/directory"
	"committee/internal/log"
	"committee/internal/metrics"
)

// Errors surfaced to the viewer. The cause is wrapped alongside.
var (
	ErrLoadMembers         = errors.New("failed to load users")
	ErrUpdatePaymentStatus = errors.New("failed to update payment status")
)

// Notifier receives every payment flag change that reached the directory.
type Notifier interface {
	PaymentChanged(ctx context.Context, change core.PaymentChange) error
}

// Config bounds automatic reconciliation.
type Config struct {
	// MaxBatch caps the pairs applied per run; the rest wait for the next run. 0 means no cap.
	MaxBatch int
	// Concurrency is the number of directory calls in flight. 1 applies pairs strictly in order.
	Concurrency int
}

// DefaultConfig applies at most 200 pairs per run, one directory call at a time.
func DefaultConfig() Config {
	return Config{
		MaxBatch:    200,
		Concurrency: 1,
	}
}

// ReconcileResult counts what one reconciliation run did.
type ReconcileResult struct {
	Planned   int
	Applied   int
	Failed    int
	Deferred  int // over MaxBatch, left for the next run
	Cancelled int // not attempted because the month changed or the caller gave up
	// Stale is set when the month selection changed while the batch ran.
	Stale bool
}

// Engine runs the schedule operations of a Session against the directory.
type Engine struct {
	dir      directory.Directory
	cfg      Config
	notifier Notifier
	logger   *log.Logger
	now      func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l.WithComponent(log.ComponentMatrix) }
}

// WithClock replaces time.Now for change timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(dir directory.Directory, cfg Config, opts ...Option) *Engine {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxBatch < 0 {
		cfg.MaxBatch = 0
	}
	e := &Engine{
		dir:    dir,
		cfg:    cfg,
		logger: log.Default(log.ComponentMatrix),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load fetches the roster into the session and reconciles it. On failure
// the previous snapshot is kept.
func (e *Engine) Load(ctx context.Context, s *Session) (ReconcileResult, error) {
	members, err := e.dir.ListMembers(ctx)
	if err != nil {
		e.logger.ErrorContext(ctx, "Roster fetch failed", log.FieldOperation, log.OpList, log.FieldError, err)
		return ReconcileResult{}, fmt.Errorf("%w: %w", ErrLoadMembers, err)
	}
	s.SetMembers(members)
	return e.Reconcile(ctx, s), nil
}

// Toggle sets one payment flag through the directory. Only a confirmed
// update is written to the snapshot, after which the session is reconciled.
func (e *Engine) Toggle(ctx context.Context, s *Session, payerID, receiverID string, month core.Month, paid bool) (ReconcileResult, error) {
	fields := log.NewFields().WithPayment(payerID, string(month), receiverID).WithOperation(log.OpToggle)

	if !s.hasMember(payerID) {
		metrics.PaymentToggles.WithLabelValues(metrics.OutcomeFailure).Inc()
		e.logger.WarnContext(ctx, "Toggle for unknown payer", fields.ToSlice()...)
		return ReconcileResult{}, fmt.Errorf("%w: %w", ErrUpdatePaymentStatus, directory.ErrMemberNotFound)
	}
	if err := e.dir.SetPaymentStatus(ctx, payerID, month, receiverID, paid); err != nil {
		metrics.PaymentToggles.WithLabelValues(metrics.OutcomeFailure).Inc()
		e.logger.ErrorContext(ctx, "Payment status update failed", fields.WithError(err).ToSlice()...)
		return ReconcileResult{}, fmt.Errorf("%w: %w", ErrUpdatePaymentStatus, err)
	}
	metrics.PaymentToggles.WithLabelValues(metrics.OutcomeSuccess).Inc()

	s.applyStatus(payerID, month, receiverID, paid)
	e.notify(ctx, core.PaymentChange{
		PayerID:    payerID,
		ReceiverID: receiverID,
		Month:      month,
		Paid:       paid,
		Source:     core.SourceManual,
		At:         e.now(),
	})
	return e.Reconcile(ctx, s), nil
}

type outcome int

const (
	outcomeCancelled outcome = iota
	outcomeApplied
	outcomeFailed
)

// Reconcile auto-marks the planned pairs as paid. Failures are logged and
// skipped. Applied pairs are merged into the snapshot in plan order.
func (e *Engine) Reconcile(ctx context.Context, s *Session) ReconcileResult {
	b := s.planBatch(ctx, e.cfg.MaxBatch)
	defer b.release()

	res := ReconcileResult{
		Planned:  b.planned,
		Deferred: b.planned - len(b.pairs),
	}
	metrics.ReconcilePairs.WithLabelValues(metrics.ReconcilePlanned).Add(float64(res.Planned))
	metrics.ReconcilePairs.WithLabelValues(metrics.ReconcileDeferred).Add(float64(res.Deferred))
	if len(b.pairs) == 0 {
		return res
	}

	outcomes := make([]outcome, len(b.pairs))
	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for i, p := range b.pairs {
		g.Go(func() error {
			if b.err() != nil {
				return nil
			}
			err := e.dir.SetPaymentStatus(b.ctx, p.PayerID, p.Month, p.ReceiverID, true)
			switch {
			case err == nil:
				outcomes[i] = outcomeApplied
			case b.err() != nil:
				outcomes[i] = outcomeCancelled
			default:
				outcomes[i] = outcomeFailed
				e.logger.ErrorContext(ctx, "Auto payment status update failed",
					log.NewFields().WithPayment(p.PayerID, string(p.Month), p.ReceiverID).
						WithOperation(log.OpReconcile).WithError(err).ToSlice()...)
			}
			return nil
		})
	}
	_ = g.Wait()

	var unattempted []Pair
	for i, p := range b.pairs {
		switch outcomes[i] {
		case outcomeApplied:
			res.Applied++
			// Keys carry the month, so merging stays correct after a month change.
			s.applyStatus(p.PayerID, p.Month, p.ReceiverID, true)
			e.notify(ctx, core.PaymentChange{
				PayerID:    p.PayerID,
				ReceiverID: p.ReceiverID,
				Month:      p.Month,
				Paid:       true,
				Source:     core.SourceAuto,
				At:         e.now(),
			})
		case outcomeFailed:
			res.Failed++
		case outcomeCancelled:
			res.Cancelled++
			unattempted = append(unattempted, p)
		}
	}
	s.unmark(b.generation, unattempted)

	if s.Generation() != b.generation {
		res.Stale = true
		metrics.StaleBatches.Inc()
		e.logger.WarnContext(ctx, "Reconciliation finished after month change",
			log.FieldGeneration, b.generation,
			"applied", res.Applied,
			"cancelled", res.Cancelled)
	}

	metrics.ReconcilePairs.WithLabelValues(metrics.ReconcileApplied).Add(float64(res.Applied))
	metrics.ReconcilePairs.WithLabelValues(metrics.ReconcileFailed).Add(float64(res.Failed))
	e.logger.InfoContext(ctx, "Reconciliation completed",
		log.FieldOperation, log.OpReconcile,
		"planned", res.Planned,
		"applied", res.Applied,
		"failed", res.Failed,
		"deferred", res.Deferred,
		"cancelled", res.Cancelled)
	return res
}

func (e *Engine) notify(ctx context.Context, change core.PaymentChange) {
	if e.notifier == nil {
		return
	}
	err := e.notifier.PaymentChanged(ctx, change)
	metrics.EventsPublished.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		e.logger.WarnContext(ctx, "Payment change notification failed",
			log.NewFields().WithPayment(change.PayerID, string(change.Month), change.ReceiverID).
				WithOperation(log.OpPublish).WithError(err).ToSlice()...)
	}
}
