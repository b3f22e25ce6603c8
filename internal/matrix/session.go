package matrix

import (
	"context"
	"sync"

	"committee/internal/core"
)

// Session is one viewer's state: the roster snapshot, the selected month and
// the pairs already reconciled for that month. The reconciled set is reset
// whenever the month changes.
type Session struct {
	mu         sync.Mutex
	members    []core.Member
	loaded     bool
	month      core.Month
	reconciled map[string]struct{}
	generation uint64
	// genCtx is cancelled when the generation ends.
	genCtx    context.Context
	genCancel context.CancelFunc
}

func NewSession() *Session {
	genCtx, genCancel := context.WithCancel(context.Background())
	return &Session{
		month:      core.DefaultScheduleMonth,
		reconciled: make(map[string]struct{}),
		genCtx:     genCtx,
		genCancel:  genCancel,
	}
}

// Month returns the selected month.
func (s *Session) Month() core.Month {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.month
}

// Generation changes every time a different month is selected.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// SelectMonth switches the session to month. Selecting a different month
// clears the reconciled set and cancels any reconciliation still running
// for the previous one. Selecting the current month is a no-op.
func (s *Session) SelectMonth(month core.Month) error {
	if !core.ScheduleMonths.Contains(month) {
		return core.ErrInvalidMonth
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if month == s.month {
		return nil
	}
	s.month = month
	s.reconciled = make(map[string]struct{})
	s.generation++
	s.genCancel()
	s.genCtx, s.genCancel = context.WithCancel(context.Background())
	return nil
}

// Members returns a copy of the snapshot.
func (s *Session) Members() []core.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMembers(s.members)
}

// Loaded reports whether a roster has been stored yet.
func (s *Session) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// SetMembers replaces the snapshot.
func (s *Session) SetMembers(members []core.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members = cloneMembers(members)
	s.loaded = true
}

// Reconciled reports whether the pair key was already handled this month.
func (s *Session) Reconciled(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.reconciled[key]
	return ok
}

// View builds the matrix for the current snapshot and month.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return BuildView(s.members, s.month)
}

// applyStatus flips exactly one payment key in the snapshot.
func (s *Session) applyStatus(payerID string, month core.Month, receiverID string, paid bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.members {
		if m.ID == payerID {
			s.members[i] = m.WithPaymentStatus(month, receiverID, paid)
			return
		}
	}
}

func (s *Session) hasMember(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := core.FindMember(s.members, id)
	return ok
}

// batch is a planned reconciliation run bound to one generation.
type batch struct {
	pairs      []Pair
	planned    int
	generation uint64
	ctx        context.Context
	release    func()
	gen        context.Context
}

// err reports whether the batch should stop. The generation is checked
// directly since AfterFunc cancels ctx asynchronously.
func (b batch) err() error {
	if err := b.gen.Err(); err != nil {
		return err
	}
	return b.ctx.Err()
}

// planBatch plans against the snapshot and marks at most limit pairs as
// reconciled. Pairs past limit stay unmarked for the next run. The batch
// context ends with the caller's context or with the generation.
func (s *Session) planBatch(ctx context.Context, limit int) batch {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := DeriveRows(s.members, s.month)
	plan := PlanReconcile(s.members, rows, s.month, func(key string) bool {
		_, ok := s.reconciled[key]
		return ok
	})
	pairs := plan
	if limit > 0 && len(pairs) > limit {
		pairs = pairs[:limit]
	}
	for _, p := range pairs {
		s.reconciled[p.Key()] = struct{}{}
	}

	bctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.genCtx, cancel)
	return batch{
		pairs:      pairs,
		planned:    len(plan),
		generation: s.generation,
		ctx:        bctx,
		gen:        s.genCtx,
		release: func() {
			stop()
			cancel()
		},
	}
}

// unmark forgets pairs that were never attempted, so a later run of the
// same generation picks them up again.
func (s *Session) unmark(generation uint64, pairs []Pair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != generation {
		return
	}
	for _, p := range pairs {
		delete(s.reconciled, p.Key())
	}
}

func cloneMembers(in []core.Member) []core.Member {
	if in == nil {
		return nil
	}
	out := make([]core.Member, len(in))
	for i, m := range in {
		out[i] = m.Clone()
	}
	return out
}
