package model

import (
	"encoding/json"
	"time"
)

// Transaction event states forwarded by the payment proxy. Only completed
// incoming transactions ever move money here.
const (
	EventStatePending   = "pending"
	EventStateCompleted = "completed"
	EventStateDeclined  = "declined"
	EventStateFailed    = "failed"
	EventStateReverted  = "reverted"
)

const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// TransactionEvent is the normalized payload the ingress proxy forwards for
// every transaction notification it receives from the banking provider.
// Delivery is at-least-once; the reconciliation handler must tolerate
// duplicates.
type TransactionEvent struct {
	TransactionID    string    `json:"transaction_id"`
	State            string    `json:"state"`
	Direction        string    `json:"direction"`
	Amount           int64     `json:"amount"`
	Currency         string    `json:"currency"`
	Reference        string    `json:"reference"`
	CounterpartyName string    `json:"counterparty_name,omitempty"`
	OccurredAt       time.Time `json:"occurred_at,omitempty"`
}

func (event *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(event)
}

// IsSettledIncoming reports whether the event represents money actually
// arriving. Everything else is acknowledged and ignored.
func (event *TransactionEvent) IsSettledIncoming() bool {
	return event.State == EventStateCompleted && event.Direction != DirectionOut
}

// SettledAt returns the settlement time of the event, falling back to now
// for feeds that omit the timestamp.
func (event *TransactionEvent) SettledAt() time.Time {
	if event.OccurredAt.IsZero() {
		return time.Now()
	}
	return event.OccurredAt
}
