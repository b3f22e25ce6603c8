package matrix

import "committee/internal/core"

// Pair is a payment flag to mark: PayerID paid ReceiverID for Month.
type Pair struct {
	PayerID    string
	ReceiverID string
	Month      core.Month
}

// Key identifies the pair inside a reconciliation session.
func (p Pair) Key() string {
	return p.PayerID + "_" + core.PaymentKey(p.Month, p.ReceiverID)
}

// PlanReconcile lists the pairs to auto-mark as paid. A payer who is also
// scheduled to receive in the row's month counts as settled with every
// receiver of that month. Pairs already flagged, pairs for which done
// returns true and repeats within the plan are skipped. Order follows rows,
// then members.
func PlanReconcile(members []core.Member, rows []DisplayRow, selected core.Month, done func(key string) bool) []Pair {
	var plan []Pair
	planned := make(map[string]struct{})
	for _, row := range rows {
		for _, payer := range members {
			if !payer.ReceivesIn(row.Month) || payer.HasPaid(selected, row.Member.ID) {
				continue
			}
			p := Pair{PayerID: payer.ID, ReceiverID: row.Member.ID, Month: selected}
			key := p.Key()
			if _, dup := planned[key]; dup {
				continue
			}
			if done != nil && done(key) {
				continue
			}
			planned[key] = struct{}{}
			plan = append(plan, p)
		}
	}
	return plan
}
