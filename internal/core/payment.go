package core

import "time"

const (
	SourceManual ChangeSource = "manual"
	SourceAuto   ChangeSource = "auto"
)

// ChangeSource tells whether a payment flag was set by a person or by reconciliation.
type ChangeSource string

// PaymentChange records one applied payment-status update.
type PaymentChange struct {
	PayerID    string       `json:"payerId"`
	ReceiverID string       `json:"receiverId"`
	Month      Month        `json:"month"`
	Paid       bool         `json:"paid"`
	Source     ChangeSource `json:"source"`
	At         time.Time    `json:"at"`
}
