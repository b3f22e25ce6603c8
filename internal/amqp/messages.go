package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"committee/internal/core"
)

// ErrInvalidMessage is returned for payloads that decode but miss required fields.
var ErrInvalidMessage = errors.New("invalid payment status message")

// PaymentStatusMessage announces one payment flag change confirmed by the
// member directory. EventID lets consumers drop redeliveries.
type PaymentStatusMessage struct {
	EventID string `json:"eventId"`
	core.PaymentChange
	Timestamp time.Time `json:"timestamp"`
}

// NewPaymentStatusMessage wraps change with a fresh event id.
func NewPaymentStatusMessage(change core.PaymentChange) *PaymentStatusMessage {
	now := time.Now()
	if change.At.IsZero() {
		change.At = now
	}
	return &PaymentStatusMessage{
		EventID:       uuid.NewString(),
		PaymentChange: change,
		Timestamp:     now,
	}
}

// Validate checks the fields every consumer relies on.
func (m *PaymentStatusMessage) Validate() error {
	switch {
	case m.EventID == "":
		return ErrInvalidMessage
	case m.PayerID == "" || m.ReceiverID == "":
		return ErrInvalidMessage
	case !core.EntryMonths.Contains(m.Month):
		return ErrInvalidMessage
	case m.Source != core.SourceManual && m.Source != core.SourceAuto:
		return ErrInvalidMessage
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *PaymentStatusMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// PaymentStatusMessageFromJSON decodes and validates a message.
func PaymentStatusMessageFromJSON(data []byte) (*PaymentStatusMessage, error) {
	var msg PaymentStatusMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
