package model

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taskilo/escrow/model"
)

func TestValidateEscrowRequest(t *testing.T) {
	create := func(mutate func(*EscrowRequest)) EscrowRequest {
		req := EscrowRequest{
			Action:     ActionCreate,
			BuyerID:    "usr_1",
			ProviderID: "prv_1",
			Amount:     10000,
			Currency:   "EUR",
			OrderID:    "ord_1",
		}
		mutate(&req)
		return req
	}

	tests := []struct {
		name    string
		req     EscrowRequest
		wantErr bool
	}{
		{"create with order", create(func(*EscrowRequest) {}), false},
		{"create with draft", create(func(r *EscrowRequest) { r.OrderID = ""; r.TempDraftID = "drft_1" }), false},
		{"create with order and draft together", create(func(r *EscrowRequest) { r.TempDraftID = "drft_1" }), true},
		{"create missing buyer", create(func(r *EscrowRequest) { r.BuyerID = "" }), true},
		{"create zero amount", create(func(r *EscrowRequest) { r.Amount = 0 }), true},
		{"create negative amount", create(func(r *EscrowRequest) { r.Amount = -5 }), true},
		{"create bad currency code", create(func(r *EscrowRequest) { r.Currency = "EURO" }), true},
		{"release", EscrowRequest{Action: ActionRelease, EscrowID: "esc_1"}, false},
		{"early release", EscrowRequest{Action: ActionEarlyRelease, EscrowID: "esc_1"}, false},
		{"refund without reason", EscrowRequest{Action: ActionRefund, EscrowID: "esc_1"}, false},
		{"release without escrow id", EscrowRequest{Action: ActionRelease}, true},
		{"hold with payment id", EscrowRequest{Action: ActionHold, EscrowID: "esc_1", PaymentID: "pay_1"}, false},
		{"hold without payment id", EscrowRequest{Action: ActionHold, EscrowID: "esc_1"}, true},
		{"dispute with reason", EscrowRequest{Action: ActionDispute, EscrowID: "esc_1", Reason: "work not delivered"}, false},
		{"dispute without reason", EscrowRequest{Action: ActionDispute, EscrowID: "esc_1"}, true},
		{"unknown verb", EscrowRequest{Action: "approve", EscrowID: "esc_1"}, true},
		{"empty verb", EscrowRequest{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.ValidateEscrowRequest()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateCreateJobDraft(t *testing.T) {
	valid := CreateJobDraft{BuyerID: "usr_1", ProviderID: "prv_1", Title: "Garden work", Amount: 5000, Currency: "EUR"}
	assert.NoError(t, valid.ValidateCreateJobDraft())

	missingTitle := valid
	missingTitle.Title = ""
	assert.Error(t, missingTitle.ValidateCreateJobDraft())

	zeroAmount := valid
	zeroAmount.Amount = 0
	assert.Error(t, zeroAmount.ValidateCreateJobDraft())
}

func TestValidateCreateProvider(t *testing.T) {
	assert.NoError(t, (&CreateProvider{DisplayName: "Max Mustermann"}).ValidateCreateProvider())
	assert.Error(t, (&CreateProvider{}).ValidateCreateProvider())
}

func TestValidateIngestTransaction(t *testing.T) {
	valid := IngestTransaction{
		TransactionID: "txn_1",
		State:         model.EventStateCompleted,
		Direction:     model.DirectionIn,
		Amount:        10000,
		Currency:      "EUR",
		Reference:     "ESC-12345678",
	}

	tests := []struct {
		name    string
		mutate  func(*IngestTransaction)
		wantErr bool
	}{
		{"valid", func(*IngestTransaction) {}, false},
		{"pending state", func(i *IngestTransaction) { i.State = model.EventStatePending }, false},
		{"outgoing", func(i *IngestTransaction) { i.Direction = model.DirectionOut }, false},
		{"unknown state", func(i *IngestTransaction) { i.State = "settledish" }, true},
		{"unknown direction", func(i *IngestTransaction) { i.Direction = "sideways" }, true},
		{"missing transaction id", func(i *IngestTransaction) { i.TransactionID = "" }, true},
		{"zero amount", func(i *IngestTransaction) { i.Amount = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ingest := valid
			tt.mutate(&ingest)
			err := ingest.ValidateIngestTransaction()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
