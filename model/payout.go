package model

import (
	"encoding/json"
	"time"
)

// Per-item payout outcomes recorded in the run summary.
const (
	PayoutOutcomeReleased = "released"
	PayoutOutcomeFailed   = "failed"
	PayoutOutcomeSkipped  = "skipped"
)

// PayoutItem is one transfer in a payout batch: an eligible escrow joined
// with the provider's resolved bank details.
type PayoutItem struct {
	EscrowID   string `json:"escrow_id"`
	OrderID    string `json:"order_id"`
	ProviderID string `json:"provider_id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	IBAN       string `json:"iban"`
	BIC        string `json:"bic,omitempty"`
	Name       string `json:"name"`
	Reference  string `json:"reference,omitempty"`
}

// PayoutItemResult is the gateway's verdict on a single batch item.
type PayoutItemResult struct {
	EscrowID  string `json:"escrow_id"`
	OrderID   string `json:"order_id,omitempty"`
	Success   bool   `json:"success"`
	PaymentID string `json:"payment_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// PayoutRunItem is the audited outcome of one candidate escrow in a run,
// including candidates that never reached the gateway.
type PayoutRunItem struct {
	EscrowID string `json:"escrow_id"`
	Outcome  string `json:"outcome"`
	Reason   string `json:"reason,omitempty"`
}

// PayoutRunSummary is the persisted audit record of a batch run.
type PayoutRunSummary struct {
	RunID     string          `json:"run_id"`
	Source    string          `json:"source"`
	Processed int             `json:"processed"`
	Released  int             `json:"released"`
	Failed    int             `json:"failed"`
	Skipped   int             `json:"skipped"`
	Items     []PayoutRunItem `json:"items"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   time.Time       `json:"ended_at"`
}

func (summary *PayoutRunSummary) ToJSON() ([]byte, error) {
	return json.Marshal(summary)
}

// LegacyEscrowPayment is the pre-migration escrow record shape. Amounts in
// this table are sometimes whole euros instead of cents; NormalizedAmount
// settles that before the row enters a batch.
type LegacyEscrowPayment struct {
	ID         int64     `json:"-"`
	OrderID    string    `json:"order_id"`
	ProviderID string    `json:"provider_id"`
	Amount     int64     `json:"amount"`
	AmountUnit string    `json:"amount_unit"`
	Currency   string    `json:"currency"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// NormalizedAmount returns the amount in minor units regardless of how the
// legacy row stored it.
func (p *LegacyEscrowPayment) NormalizedAmount() int64 {
	if p.AmountUnit == "major" {
		return p.Amount * 100
	}
	return p.Amount
}
