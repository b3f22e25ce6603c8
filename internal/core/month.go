package core

import "strings"

// Months is a positional enumeration. Order is the schedule order, not lexical.
type Months []Month

var (
	// ScheduleMonths are the months shown on the contribution schedule.
	ScheduleMonths = Months{"May", "June", "July", "Aug", "Sep", "Oct", "Nov"}

	// EntryMonths are the months offered when entering a member's schedule.
	EntryMonths = Months{"Jan", "Feb", "March", "April", "May", "June", "July", "Aug", "Sep", "Oct", "Nov", "Dec"}

	monthLabels = map[Month]string{
		"Jan": "January", "Feb": "February", "March": "March", "April": "April",
		"May": "May", "June": "June", "July": "July", "Aug": "August",
		"Sep": "September", "Oct": "October", "Nov": "November", "Dec": "December",
	}
)

// DefaultScheduleMonth is selected when no valid month is requested.
const DefaultScheduleMonth Month = "May"

// Index returns the position of m, or -1.
func (ms Months) Index(m Month) int {
	for i, v := range ms {
		if v == m {
			return i
		}
	}
	return -1
}

func (ms Months) Contains(m Month) bool {
	return ms.Index(m) >= 0
}

// Parse trims s and checks it against the enumeration.
func (ms Months) Parse(s string) (Month, error) {
	m := Month(strings.TrimSpace(s))
	if !ms.Contains(m) {
		return "", ErrInvalidMonth
	}
	return m, nil
}

// Label is the long display name ("Aug" -> "August").
func (m Month) Label() string {
	if l, ok := monthLabels[m]; ok {
		return l
	}
	return string(m)
}

func (m Month) String() string {
	return string(m)
}
