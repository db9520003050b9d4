/*
Copyright 2025 Taskilo Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package escrow

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/taskilo/escrow/database"
	"github.com/taskilo/escrow/internal/apierror"
	"github.com/taskilo/escrow/model"
)

// nameDriftThreshold is the normalized levenshtein distance above which a
// payer name is considered to drift from the expected one. Banks truncate
// and reorder names, so small distances are normal.
const nameDriftThreshold = 0.4

// ReconciliationResult is the acknowledgement returned to the transaction
// feed. The feed redelivers until it gets an acknowledgement, so every
// outcome short of an internal failure acknowledges receipt.
type ReconciliationResult struct {
	Received  bool   `json:"received"`
	Processed bool   `json:"processed"`
	EscrowID  string `json:"escrow_id,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// ProcessTransactionEvent matches an incoming bank transaction against an
// escrow and, on a settled incoming transfer, moves the escrow to held and
// converts its draft to a real order. The whole flow is idempotent: a
// redelivered event for an already held escrow acknowledges without side
// effects.
func (e *Engine) ProcessTransactionEvent(ctx context.Context, event *model.TransactionEvent) (*ReconciliationResult, error) {
	ctx, span := tracer.Start(ctx, "Reconciling transaction event")
	defer span.End()

	if !event.IsSettledIncoming() {
		return &ReconciliationResult{Received: true, Reason: "not a settled incoming transfer"}, nil
	}

	escrow, err := e.matchEscrow(ctx, event)
	if err != nil {
		if apiErr, ok := err.(apierror.APIError); ok && apiErr.Code == apierror.ErrNotFound {
			logrus.Warnf("no escrow matches transaction %s (reference %q)", event.TransactionID, event.Reference)
			return &ReconciliationResult{Received: true, Reason: "no matching escrow"}, nil
		}
		return nil, err
	}

	if model.IsHeldOrBeyond(escrow.Status) {
		return &ReconciliationResult{
			Received: true,
			EscrowID: escrow.EscrowID,
			OrderID:  ackOrderID(escrow),
			Reason:   "duplicate delivery",
		}, nil
	}

	reviewReasons := []string{}

	expected := decimal.NewFromInt(escrow.Amount)
	got := decimal.NewFromInt(event.Amount)
	diff := got.Sub(expected).Abs()
	tolerance := expected.Mul(decimal.NewFromFloat(e.config.EscrowPolicy.AmountTolerancePercent)).Div(decimal.NewFromInt(100))
	if diff.GreaterThan(tolerance) {
		// the money is already on the account, so the escrow holds anyway;
		// the mismatch goes on the row for an operator to settle up
		reviewReasons = append(reviewReasons, fmt.Sprintf("amount mismatch: got %d, expected %d", event.Amount, escrow.Amount))
	} else if !diff.IsZero() {
		reviewReasons = append(reviewReasons, fmt.Sprintf("amount drift within tolerance: got %d, expected %d", event.Amount, escrow.Amount))
	}

	if drifted(escrow.CounterpartyName, event.CounterpartyName) {
		reviewReasons = append(reviewReasons, fmt.Sprintf("counterparty name drift: got %q, expected %q", event.CounterpartyName, escrow.CounterpartyName))
	}

	paidAt := event.SettledAt()
	clearingEnds := paidAt.Add(clearingWindow(escrow.ClearingDays))
	held, err := e.datasource.HoldEscrowAndConvertDraft(ctx, database.HoldParams{
		EscrowID:         escrow.EscrowID,
		PaymentID:        event.TransactionID,
		CounterpartyName: event.CounterpartyName,
		ReviewReason:     strings.Join(reviewReasons, "; "),
		PaidAt:           paidAt,
		ClearingEndsAt:   clearingEnds,
	})
	if err != nil {
		if apiErr, ok := err.(apierror.APIError); ok && apiErr.Code == apierror.ErrConflict && held != nil {
			return &ReconciliationResult{
				Received: true,
				EscrowID: held.EscrowID,
				OrderID:  ackOrderID(held),
				Reason:   "duplicate delivery",
			}, nil
		}
		return nil, err
	}

	e.pushOrderPaid(ctx, held, event.TransactionID)
	e.emitWebhook(ctx, held)
	return &ReconciliationResult{
		Received:  true,
		Processed: true,
		EscrowID:  held.EscrowID,
		OrderID:   ackOrderID(held),
	}, nil
}

// ackOrderID picks the order to report back: the one the draft just
// materialized into, or the one the escrow was opened against.
func ackOrderID(escrow *model.Escrow) string {
	if escrow.FinalOrderID != "" {
		return escrow.FinalOrderID
	}
	return escrow.OrderID
}

// matchEscrow resolves the escrow an event pays into. The structured
// ESC-XXXXXXXX token in the transfer reference is authoritative; failing
// that, the raw reference is tried as an escrow ID, which covers gateway
// checkouts that carry our own identifier.
func (e *Engine) matchEscrow(ctx context.Context, event *model.TransactionEvent) (*model.Escrow, error) {
	if token := model.ExtractPaymentReference(event.Reference); token != "" {
		escrow, err := e.datasource.GetEscrowByReference(ctx, token)
		if err == nil {
			return escrow, nil
		}
		if apiErr, ok := err.(apierror.APIError); !ok || apiErr.Code != apierror.ErrNotFound {
			return nil, err
		}
	}
	return e.datasource.GetEscrow(ctx, strings.TrimSpace(event.Reference))
}

// drifted compares the expected payer name against the observed one with a
// normalized edit distance. An empty expected name can never drift.
func drifted(expected, observed string) bool {
	expected = strings.ToLower(strings.TrimSpace(expected))
	observed = strings.ToLower(strings.TrimSpace(observed))
	if expected == "" || observed == "" || expected == observed {
		return false
	}
	distance := levenshtein.DistanceForStrings([]rune(expected), []rune(observed), levenshtein.DefaultOptions)
	longest := len([]rune(expected))
	if l := len([]rune(observed)); l > longest {
		longest = l
	}
	return float64(distance)/float64(longest) > nameDriftThreshold
}
