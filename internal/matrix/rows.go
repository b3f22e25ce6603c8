// Package matrix derives the monthly contribution schedule from a roster
// snapshot: who receives in a month, how much they collected, and which
// payment flags can be marked automatically.
package matrix

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"committee/internal/core"
)

// DisplayRow is one receiver occurrence for the selected month.
type DisplayRow struct {
	Member       core.Member
	Month        core.Month
	Contribution float64
	// Index is the position of Month in the member's schedule.
	Index int
}

// Receivable is the amount the receiver collects over the whole schedule.
func (r DisplayRow) Receivable() float64 {
	return r.Contribution * float64(len(core.ScheduleMonths))
}

// DeriveRows emits one row per (member, schedule index) whose month equals
// selected, drops months outside core.ScheduleMonths and orders the result
// by month position, then by name.
func DeriveRows(members []core.Member, selected core.Month) []DisplayRow {
	var rows []DisplayRow
	for _, m := range members {
		for i, month := range m.ReceivableMonths {
			if month != selected {
				continue
			}
			rows = append(rows, DisplayRow{
				Member:       m,
				Month:        month,
				Contribution: m.ContributionAt(i),
				Index:        i,
			})
		}
	}

	valid := rows[:0]
	for _, r := range rows {
		if core.ScheduleMonths.Contains(r.Month) {
			valid = append(valid, r)
		}
	}
	rows = valid

	// Collators keep internal buffers; one per call.
	col := collate.New(language.English)
	sort.SliceStable(rows, func(i, j int) bool {
		mi, mj := core.ScheduleMonths.Index(rows[i].Month), core.ScheduleMonths.Index(rows[j].Month)
		if mi != mj {
			return mi < mj
		}
		return col.CompareString(rows[i].Member.Name, rows[j].Member.Name) < 0
	})
	return rows
}
