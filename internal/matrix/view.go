package matrix

import "committee/internal/core"

// Cell is one payer's status towards a row's receiver.
type Cell struct {
	PayerID   string
	PayerName string
	Paid      bool
	// Scheduled is true when the payer also receives in the row's month.
	Scheduled bool
}

// Settled is what the schedule shows as green.
func (c Cell) Settled() bool {
	return c.Paid || c.Scheduled
}

type RowView struct {
	DisplayRow
	Total float64
	Cells []Cell
}

// View is the full schedule for one month.
type View struct {
	Month     core.Month
	Receivers int
	Rows      []RowView
}

// BuildView derives rows, totals and payer cells for selected.
func BuildView(members []core.Member, selected core.Month) View {
	rows := DeriveRows(members, selected)
	v := View{
		Month:     selected,
		Receivers: ReceiverCount(members, selected),
		Rows:      make([]RowView, 0, len(rows)),
	}
	for _, row := range rows {
		rv := RowView{
			DisplayRow: row,
			Total:      RowTotal(row, members, selected),
			Cells:      make([]Cell, 0, len(members)),
		}
		for _, payer := range members {
			rv.Cells = append(rv.Cells, Cell{
				PayerID:   payer.ID,
				PayerName: payer.Name,
				Paid:      payer.HasPaid(selected, row.Member.ID),
				Scheduled: payer.ReceivesIn(row.Month),
			})
		}
		v.Rows = append(v.Rows, rv)
	}
	return v
}
