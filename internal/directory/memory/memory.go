package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"committee/internal/core"
	"committee/internal/directory"
)

var _ directory.Directory = (*Store)(nil)

// Store is an in-process member directory used for local development and tests.
type Store struct {
	mu      sync.Mutex
	members []core.Member
}

func New(members []core.Member) *Store {
	s := &Store{}
	for _, m := range members {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		s.members = append(s.members, m.Clone())
	}
	return s
}

// NewFromFiles seeds the store from base/members.json when present.
func NewFromFiles(base string) *Store {
	return New(readMembers(filepath.Join(base, "members.json")))
}

// ListMembers returns a deep copy of the roster.
func (s *Store) ListMembers(_ context.Context) ([]core.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Member, len(s.members))
	for i, m := range s.members {
		out[i] = m.Clone()
	}
	return out, nil
}

func (s *Store) CreateMember(_ context.Context, m core.Member) error {
	if err := m.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m = m.Clone()
	m.ID = uuid.NewString()
	s.members = append(s.members, m)
	return nil
}

// UpdateMember keeps the stored payment status; only form fields change.
func (s *Store) UpdateMember(_ context.Context, m core.Member) error {
	if err := m.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(m.ID)
	if i < 0 {
		return fmt.Errorf("update %s: %w", m.ID, directory.ErrMemberNotFound)
	}
	updated := m.Clone()
	updated.PaymentStatus = s.members[i].PaymentStatus
	s.members[i] = updated
	return nil
}

func (s *Store) SetPaymentStatus(_ context.Context, payerID string, month core.Month, receiverID string, paid bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(payerID)
	if i < 0 {
		return fmt.Errorf("payment status for %s: %w", payerID, directory.ErrMemberNotFound)
	}
	s.members[i] = s.members[i].WithPaymentStatus(month, receiverID, paid)
	return nil
}

func (s *Store) indexOf(id string) int {
	for i, m := range s.members {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func readMembers(path string) []core.Member {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var members []core.Member
	if err := json.Unmarshal(data, &members); err != nil {
		return nil
	}
	return members
}
