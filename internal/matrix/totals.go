package matrix

import "committee/internal/core"

// ReceiverCount is the number of members scheduled to receive in month.
// A member listing the month twice still counts once.
func ReceiverCount(members []core.Member, month core.Month) int {
	n := 0
	for _, m := range members {
		if m.ReceivesIn(month) {
			n++
		}
	}
	return n
}

// RowTotal is what the row's receiver has collected for selected: every
// member flagged as having paid them adds their full contribution history
// divided by the number of receivers that month.
//
// With no scheduled receivers the pool has nobody to be split among and the
// total is 0.
func RowTotal(row DisplayRow, members []core.Member, selected core.Month) float64 {
	receivers := ReceiverCount(members, selected)
	if receivers == 0 {
		return 0
	}
	var total float64
	for _, payer := range members {
		if payer.HasPaid(selected, row.Member.ID) {
			total += payer.TotalContributed() / float64(receivers)
		}
	}
	return total
}
