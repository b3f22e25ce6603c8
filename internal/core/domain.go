package core

import (
	"errors"
	"strings"
)

const (
	RoleAdmin Role = "Admin"
	RoleUser  Role = "User"
)

type (
	Role string

	// Month is a month label as stored by the directory service ("May", "Aug", ...).
	Month string

	Member struct {
		ID            string  `json:"_id,omitempty"`
		Name          string  `json:"name"`
		BankName      string  `json:"bankName"`
		BankAccountNo string  `json:"bankAccountNo"`
		Role          Role    `json:"userType"`
		Contribution  float64 `json:"contribution,omitempty"` // Amount entered on the member form
		// Contributions[i] belongs to ReceivableMonths[i].
		Contributions    []float64       `json:"contributions"`
		ReceivableMonths []Month         `json:"receivableMonths"`
		PaymentStatus    map[string]bool `json:"paymentStatus,omitempty"`
	}
)

var (
	ErrEmptyName          = errors.New("empty name")
	ErrEmptyBankName      = errors.New("empty bank name")
	ErrEmptyBankAccount   = errors.New("empty bank account number")
	ErrInvalidRole        = errors.New("invalid user type")
	ErrInvalidMonth       = errors.New("invalid month")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrMisalignedSchedule = errors.New("contributions and receivable months differ in length")
)

// ParseRole accepts the two role tags; anything else is an error.
func ParseRole(s string) (Role, error) {
	switch Role(strings.TrimSpace(s)) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleUser:
		return RoleUser, nil
	}
	return "", ErrInvalidRole
}

// PaymentKey builds the composite key used in Member.PaymentStatus.
func PaymentKey(month Month, receiverID string) string {
	return string(month) + "_" + receiverID
}

// ContributionAt returns the amount recorded at index i, or 0 when absent.
func (m Member) ContributionAt(i int) float64 {
	if i < 0 || i >= len(m.Contributions) {
		return 0
	}
	return m.Contributions[i]
}

// TotalContributed sums the whole contribution history.
func (m Member) TotalContributed() float64 {
	var sum float64
	for _, c := range m.Contributions {
		sum += c
	}
	return sum
}

// ReceivesIn reports whether month appears in the member's receiving schedule.
func (m Member) ReceivesIn(month Month) bool {
	for _, rm := range m.ReceivableMonths {
		if rm == month {
			return true
		}
	}
	return false
}

// HasPaid reports whether the member has paid receiverID for month.
func (m Member) HasPaid(month Month, receiverID string) bool {
	return m.PaymentStatus[PaymentKey(month, receiverID)]
}

// WithPaymentStatus returns a copy of m with exactly one payment key set.
func (m Member) WithPaymentStatus(month Month, receiverID string, paid bool) Member {
	status := make(map[string]bool, len(m.PaymentStatus)+1)
	for k, v := range m.PaymentStatus {
		status[k] = v
	}
	status[PaymentKey(month, receiverID)] = paid
	m.PaymentStatus = status
	return m
}

// Clone returns a deep copy so snapshots never share slices or maps.
func (m Member) Clone() Member {
	out := m
	out.Contributions = append([]float64(nil), m.Contributions...)
	out.ReceivableMonths = append([]Month(nil), m.ReceivableMonths...)
	if m.PaymentStatus != nil {
		out.PaymentStatus = make(map[string]bool, len(m.PaymentStatus))
		for k, v := range m.PaymentStatus {
			out.PaymentStatus[k] = v
		}
	}
	return out
}

// Validate performs the basic required-field checks of the member form.
func (m Member) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return ErrEmptyName
	}
	if len(m.Name) > 100 {
		return errors.New("name too long (max 100 characters)")
	}
	if strings.TrimSpace(m.BankName) == "" {
		return ErrEmptyBankName
	}
	if strings.TrimSpace(m.BankAccountNo) == "" {
		return ErrEmptyBankAccount
	}
	if _, err := ParseRole(string(m.Role)); err != nil {
		return err
	}
	for _, month := range m.ReceivableMonths {
		if !EntryMonths.Contains(month) {
			return ErrInvalidMonth
		}
	}
	if m.Contribution < 0 {
		return ErrInvalidAmount
	}
	for _, c := range m.Contributions {
		if c < 0 {
			return ErrInvalidAmount
		}
	}
	if len(m.Contributions) != len(m.ReceivableMonths) {
		return ErrMisalignedSchedule
	}
	return nil
}

// ExpandContribution fills Contributions with the single form amount, one
// entry per receivable month, keeping the two sequences index-aligned.
func (m Member) ExpandContribution() Member {
	m.Contributions = make([]float64, len(m.ReceivableMonths))
	for i := range m.Contributions {
		m.Contributions[i] = m.Contribution
	}
	return m
}

// FindMember returns the member with the given id.
func FindMember(members []Member, id string) (Member, bool) {
	for _, m := range members {
		if m.ID == id {
			return m, true
		}
	}
	return Member{}, false
}
