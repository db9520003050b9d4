package model

import (
	"encoding/json"
	"time"
)

// Draft statuses. A draft converts to an order exactly once; the conversion
// happens in the same SQL transaction as the escrow hold.
const (
	DraftStatusOpen      = "open"
	DraftStatusConverted = "converted"
	DraftStatusExpired   = "expired"
)

const (
	PaymentStatusUnpaid = "unpaid"
	PaymentStatusPaid   = "paid"
)

// JobDraft is the pre-payment shape of a booking. It becomes an Order when
// the buyer's funds land.
type JobDraft struct {
	ID               int64                  `json:"-"`
	DraftID          string                 `json:"draft_id"`
	BuyerID          string                 `json:"buyer_id"`
	ProviderID       string                 `json:"provider_id"`
	Title            string                 `json:"title"`
	Amount           int64                  `json:"amount"`
	Currency         string                 `json:"currency"`
	Status           string                 `json:"status"`
	ConvertedOrderID string                 `json:"converted_order_id,omitempty"`
	Payload          map[string]interface{} `json:"payload,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

type Order struct {
	ID            int64      `json:"-"`
	OrderID       string     `json:"order_id"`
	DraftID       string     `json:"draft_id,omitempty"`
	BuyerID       string     `json:"buyer_id"`
	ProviderID    string     `json:"provider_id"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	PaymentStatus string     `json:"payment_status"`
	PaymentID     string     `json:"payment_id,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (order *Order) ToJSON() ([]byte, error) {
	return json.Marshal(order)
}
