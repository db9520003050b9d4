package model

import (
	"time"

	"github.com/taskilo/escrow/model"
)

// Escrow action verbs accepted on POST /escrows.
const (
	ActionCreate       = "create"
	ActionHold         = "hold"
	ActionRelease      = "release"
	ActionEarlyRelease = "early-release"
	ActionRefund       = "refund"
	ActionDispute      = "dispute"
)

// EscrowRequest is the single lifecycle request body. The action verb
// selects what happens; create opens a new escrow, every other verb applies
// a transition to escrow_id.
type EscrowRequest struct {
	Action           string                 `json:"action"`
	EscrowID         string                 `json:"escrow_id,omitempty"`
	BuyerID          string                 `json:"buyer_id,omitempty"`
	ProviderID       string                 `json:"provider_id,omitempty"`
	Amount           int64                  `json:"amount,omitempty"`
	Currency         string                 `json:"currency,omitempty"`
	OrderID          string                 `json:"order_id,omitempty"`
	TempDraftID      string                 `json:"temp_draft_id,omitempty"`
	ClearingDays     int                    `json:"clearing_days,omitempty"`
	CounterpartyName string                 `json:"counterparty_name,omitempty"`
	WithCheckout     bool                   `json:"with_checkout,omitempty"`
	PaymentID        string                 `json:"payment_id,omitempty"`
	Reason           string                 `json:"reason,omitempty"`
	MetaData         map[string]interface{} `json:"meta_data,omitempty"`
}

type CreateJobDraft struct {
	BuyerID    string                 `json:"buyer_id"`
	ProviderID string                 `json:"provider_id"`
	Title      string                 `json:"title"`
	Amount     int64                  `json:"amount"`
	Currency   string                 `json:"currency"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

type CreateProvider struct {
	ProviderID  string                 `json:"provider_id,omitempty"`
	DisplayName string                 `json:"display_name"`
	Profile     map[string]interface{} `json:"profile,omitempty"`
}

// IngestTransaction is the payload the payment proxy posts for every
// transaction notification.
type IngestTransaction struct {
	TransactionID    string    `json:"transaction_id"`
	State            string    `json:"state"`
	Direction        string    `json:"direction"`
	Amount           int64     `json:"amount"`
	Currency         string    `json:"currency"`
	Reference        string    `json:"reference"`
	CounterpartyName string    `json:"counterparty_name,omitempty"`
	OccurredAt       time.Time `json:"occurred_at,omitempty"`
}

type RunPayout struct {
	RunID string `json:"run_id,omitempty"`
	Async bool   `json:"async,omitempty"`
}

func (e *EscrowRequest) ToEscrow() *model.Escrow {
	return &model.Escrow{
		BuyerID:          e.BuyerID,
		ProviderID:       e.ProviderID,
		Amount:           e.Amount,
		Currency:         e.Currency,
		OrderID:          e.OrderID,
		TempDraftID:      e.TempDraftID,
		ClearingDays:     e.ClearingDays,
		CounterpartyName: e.CounterpartyName,
		MetaData:         e.MetaData,
	}
}

func (d *CreateJobDraft) ToJobDraft() *model.JobDraft {
	return &model.JobDraft{
		BuyerID:    d.BuyerID,
		ProviderID: d.ProviderID,
		Title:      d.Title,
		Amount:     d.Amount,
		Currency:   d.Currency,
		Payload:    d.Payload,
	}
}

func (p *CreateProvider) ToProvider() *model.Provider {
	return &model.Provider{
		ProviderID:  p.ProviderID,
		DisplayName: p.DisplayName,
		Profile:     p.Profile,
	}
}

func (t *IngestTransaction) ToTransactionEvent() *model.TransactionEvent {
	return &model.TransactionEvent{
		TransactionID:    t.TransactionID,
		State:            t.State,
		Direction:        t.Direction,
		Amount:           t.Amount,
		Currency:         t.Currency,
		Reference:        t.Reference,
		CounterpartyName: t.CounterpartyName,
		OccurredAt:       t.OccurredAt,
	}
}
