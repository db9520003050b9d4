package model

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Escrow lifecycle statuses. Transitions are guarded by CanTransition and
// applied with a compare-and-set update, so a row can never skip a state
// or leave a terminal one.
const (
	StatusCreated  = "created"
	StatusHeld     = "held"
	StatusReleased = "released"
	StatusRefunded = "refunded"
	StatusDisputed = "disputed"
)

// legalTransitions is the full transition table of the escrow state machine.
// released and refunded are terminal.
var legalTransitions = map[string][]string{
	StatusCreated:  {StatusHeld, StatusRefunded},
	StatusHeld:     {StatusReleased, StatusRefunded, StatusDisputed},
	StatusDisputed: {StatusReleased, StatusRefunded},
	StatusReleased: {},
	StatusRefunded: {},
}

// paymentReferencePattern matches the structured token buyers put in their
// bank transfer reference. Banks mangle casing and surrounding text, so the
// match is case-insensitive and positional anywhere in the string.
var paymentReferencePattern = regexp.MustCompile(`(?i)(ESC-\d{8})`)

type Escrow struct {
	ID               int64                  `json:"-"`
	EscrowID         string                 `json:"escrow_id"`
	OrderID          string                 `json:"order_id,omitempty"`
	BuyerID          string                 `json:"buyer_id"`
	ProviderID       string                 `json:"provider_id"`
	Amount           int64                  `json:"amount"`
	Currency         string                 `json:"currency"`
	Status           string                 `json:"status"`
	PaymentReference string                 `json:"payment_reference"`
	PaymentID        string                 `json:"payment_id,omitempty"`
	CounterpartyName string                 `json:"counterparty_name,omitempty"`
	ClearingDays     int                    `json:"clearing_days"`
	ClearingEndsAt   *time.Time             `json:"clearing_ends_at,omitempty"`
	TempDraftID      string                 `json:"temp_draft_id,omitempty"`
	FinalOrderID     string                 `json:"final_order_id,omitempty"`
	ReviewReason     string                 `json:"review_reason,omitempty"`
	PayoutFailure    string                 `json:"payout_failure,omitempty"`
	DisputeReason    string                 `json:"dispute_reason,omitempty"`
	RefundReason     string                 `json:"refund_reason,omitempty"`
	RefundPaymentID  string                 `json:"refund_payment_id,omitempty"`
	MetaData         map[string]interface{} `json:"meta_data,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	PaidAt           *time.Time             `json:"paid_at,omitempty"`
	ReleasedAt       *time.Time             `json:"released_at,omitempty"`
	RefundedAt       *time.Time             `json:"refunded_at,omitempty"`
	DisputedAt       *time.Time             `json:"disputed_at,omitempty"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

func (escrow *Escrow) ToJSON() ([]byte, error) {
	return json.Marshal(escrow)
}

// CanTransition reports whether moving from the escrow's current status to
// target is legal.
func (escrow *Escrow) CanTransition(target string) bool {
	return CanTransition(escrow.Status, target)
}

// CanTransition reports whether from -> to is a legal lifecycle transition.
func CanTransition(from, to string) bool {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func IsTerminal(status string) bool {
	return len(legalTransitions[status]) == 0 && (status == StatusReleased || status == StatusRefunded)
}

// IsHeldOrBeyond reports whether funds have already been received for this
// status. Used as the idempotency guard for webhook redelivery.
func IsHeldOrBeyond(status string) bool {
	switch status {
	case StatusHeld, StatusReleased, StatusRefunded, StatusDisputed:
		return true
	}
	return false
}

// GenerateUUIDWithSuffix generates a UUID with a given module name as a suffix.
// This is useful for creating unique identifiers with context-specific prefixes.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New() // Generate a new UUID.
	uuidStr := id.String()
	idWithSuffix := fmt.Sprintf("%s_%s", module, uuidStr) // Append the module as a suffix to the UUID.
	return idWithSuffix
}

// GeneratePaymentReference produces the ESC-XXXXXXXX token a buyer must put
// in their bank transfer reference. Derived from a fresh UUID so collisions
// are left to the unique index on the escrows table to catch.
func GeneratePaymentReference() string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(uuid.New().String()))
	return fmt.Sprintf("ESC-%08d", h.Sum32()%100000000)
}

// ExtractPaymentReference pulls the first ESC-XXXXXXXX token out of a free
// text bank transfer reference. Returns the token upper-cased, or "" when
// none is present.
func ExtractPaymentReference(reference string) string {
	match := paymentReferencePattern.FindString(reference)
	if match == "" {
		return ""
	}
	return "ESC-" + match[4:]
}

// EscrowSummary aggregates a party's escrows per status.
type EscrowSummary struct {
	Status      string `json:"status"`
	Count       int64  `json:"count"`
	TotalAmount int64  `json:"total_amount"`
}

// Actor roles resolved by the API middleware from trusted platform headers.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Actor identifies the caller of a lifecycle operation. The platform gateway
// owns authentication; this engine only enforces authorization rules.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
