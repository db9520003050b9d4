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
	"time"

	"github.com/sirupsen/logrus"

	"github.com/taskilo/escrow/database"
	"github.com/taskilo/escrow/internal/apierror"
	"github.com/taskilo/escrow/model"
)

// CreateEscrow validates and persists a new escrow in status created. The
// caller must be the buyer themselves or an admin. When withCheckout is set
// a hosted payment session is created on the gateway, pre-filled with the
// escrow's payment reference.
func (e *Engine) CreateEscrow(ctx context.Context, actor model.Actor, escrow *model.Escrow, withCheckout bool) (*model.Escrow, *CheckoutSession, error) {
	ctx, span := tracer.Start(ctx, "Creating escrow")
	defer span.End()

	if !actor.IsAdmin() && actor.ID != escrow.BuyerID {
		return nil, nil, apierror.NewAPIError(apierror.ErrForbidden, "Only the buyer or an admin can open an escrow", nil)
	}
	if escrow.BuyerID == "" || escrow.ProviderID == "" {
		return nil, nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Buyer and provider are required", nil)
	}
	if escrow.Amount <= 0 {
		return nil, nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Amount must be a positive number of minor units", nil)
	}
	if escrow.Currency == "" {
		return nil, nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Currency is required", nil)
	}

	if _, err := e.datasource.GetProvider(ctx, escrow.ProviderID); err != nil {
		return nil, nil, err
	}

	escrow.EscrowID = model.GenerateUUIDWithSuffix("esc")
	escrow.PaymentReference = model.GeneratePaymentReference()
	escrow.Status = model.StatusCreated
	if escrow.ClearingDays <= 0 {
		escrow.ClearingDays = e.config.EscrowPolicy.DefaultClearingDays
	}

	persisted, err := e.datasource.CreateEscrow(ctx, escrow)
	if err != nil {
		return nil, nil, err
	}
	e.emitWebhook(ctx, persisted)

	var session *CheckoutSession
	if withCheckout {
		session, err = e.gateway.CreateCheckoutSession(ctx, persisted)
		if err != nil {
			// the escrow stands; the buyer can still pay by manual transfer
			logrus.Errorf("checkout session for %s failed: %v", persisted.EscrowID, err)
			return persisted, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Escrow created but checkout session failed", err)
		}
	}
	return persisted, session, nil
}

// MarkAsHeld moves an escrow to held outside the reconciliation flow, for
// manually matched transfers. Admin only. A repeated call on an already held
// escrow returns the current row unchanged.
func (e *Engine) MarkAsHeld(ctx context.Context, actor model.Actor, escrowID, paymentID, counterpartyName string) (*model.Escrow, error) {
	ctx, span := tracer.Start(ctx, "Marking escrow as held")
	defer span.End()

	if !actor.IsAdmin() {
		return nil, apierror.NewAPIError(apierror.ErrForbidden, "Only admins can mark an escrow as held", nil)
	}

	escrow, err := e.datasource.GetEscrow(ctx, escrowID)
	if err != nil {
		return nil, err
	}

	paidAt := time.Now()
	clearingEnds := paidAt.Add(clearingWindow(escrow.ClearingDays))
	held, err := e.datasource.HoldEscrowAndConvertDraft(ctx, database.HoldParams{
		EscrowID:         escrowID,
		PaymentID:        paymentID,
		CounterpartyName: counterpartyName,
		PaidAt:           paidAt,
		ClearingEndsAt:   clearingEnds,
	})
	if err != nil {
		if apiErr, ok := err.(apierror.APIError); ok && apiErr.Code == apierror.ErrConflict && held != nil {
			return held, nil
		}
		return nil, err
	}
	e.pushOrderPaid(ctx, held, paymentID)
	e.emitWebhook(ctx, held)
	return held, nil
}

// Release pays the held amount out to the provider and marks the escrow
// released. Admin only; legal from held and from disputed (dispute resolved
// in the provider's favour).
func (e *Engine) Release(ctx context.Context, actor model.Actor, escrowID string) (*model.Escrow, error) {
	ctx, span := tracer.Start(ctx, "Releasing escrow")
	defer span.End()

	if !actor.IsAdmin() {
		return nil, apierror.NewAPIError(apierror.ErrForbidden, "Only admins can release an escrow", nil)
	}
	return e.payoutAndRelease(ctx, escrowID, []string{model.StatusHeld, model.StatusDisputed})
}

// EarlyRelease lets the buyer hand the funds to the provider before the
// clearing period ends, for example on confirmed delivery. Legal from held
// only.
func (e *Engine) EarlyRelease(ctx context.Context, actor model.Actor, escrowID string) (*model.Escrow, error) {
	ctx, span := tracer.Start(ctx, "Early releasing escrow")
	defer span.End()

	escrow, err := e.datasource.GetEscrow(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.ID != escrow.BuyerID {
		return nil, apierror.NewAPIError(apierror.ErrForbidden, "Only the buyer can release early", nil)
	}
	return e.payoutAndRelease(ctx, escrowID, []string{model.StatusHeld})
}

// payoutAndRelease sends the gateway payout and then applies the release
// transition. The payout happens first: a failed transfer must leave the
// escrow held, with the failure recorded for the operators.
func (e *Engine) payoutAndRelease(ctx context.Context, escrowID string, from []string) (*model.Escrow, error) {
	escrow, err := e.datasource.GetEscrow(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if !escrow.CanTransition(model.StatusReleased) || !containsStatus(from, escrow.Status) {
		return nil, invalidStateError(escrow, model.StatusReleased)
	}

	provider, err := e.datasource.GetProvider(ctx, escrow.ProviderID)
	if err != nil {
		return nil, err
	}
	account, ok := provider.ResolveBankAccount()
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest,
			fmt.Sprintf("Provider '%s' has no usable bank details", escrow.ProviderID), nil)
	}

	result, err := e.gateway.Payout(ctx, model.PayoutItem{
		EscrowID:   escrow.EscrowID,
		OrderID:    escrow.OrderID,
		ProviderID: escrow.ProviderID,
		Amount:     escrow.Amount,
		Currency:   escrow.Currency,
		IBAN:       account.IBAN,
		BIC:        account.BIC,
		Name:       account.Name,
		Reference:  escrow.PaymentReference,
	})
	if err != nil {
		if dbErr := e.datasource.SetEscrowPayoutFailure(ctx, escrow.EscrowID, err.Error()); dbErr != nil {
			logrus.Error("failed to record payout failure: ", dbErr)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Payout to provider failed", err)
	}

	released, err := e.datasource.ReleaseEscrow(ctx, escrow.EscrowID, result.PaymentID, from)
	if err != nil {
		return nil, err
	}
	e.emitWebhook(ctx, released)
	return released, nil
}

// Refund returns the held amount to the buyer. The buyer can refund a held
// escrow; admins can additionally refund a created escrow (expired, never
// funded) and resolve a dispute in the buyer's favour.
func (e *Engine) Refund(ctx context.Context, actor model.Actor, escrowID, reason string) (*model.Escrow, error) {
	ctx, span := tracer.Start(ctx, "Refunding escrow")
	defer span.End()

	escrow, err := e.datasource.GetEscrow(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.ID != escrow.BuyerID {
		return nil, apierror.NewAPIError(apierror.ErrForbidden, "Only the buyer or an admin can refund an escrow", nil)
	}

	from := []string{model.StatusHeld}
	if actor.IsAdmin() {
		from = []string{model.StatusCreated, model.StatusHeld, model.StatusDisputed}
	}
	if !containsStatus(from, escrow.Status) || !escrow.CanTransition(model.StatusRefunded) {
		return nil, invalidStateError(escrow, model.StatusRefunded)
	}

	// a created escrow was never funded, so there is nothing to reverse
	var refundID string
	if escrow.PaymentID != "" {
		result, err := e.gateway.Refund(ctx, escrow.PaymentID, escrow.Amount, escrow.Currency, reason)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Refund to buyer failed", err)
		}
		refundID = result.RefundID
	}

	refunded, err := e.datasource.RefundEscrow(ctx, escrow.EscrowID, refundID, reason, from)
	if err != nil {
		return nil, err
	}
	e.emitWebhook(ctx, refunded)
	return refunded, nil
}

// Dispute freezes a held escrow until an admin resolves it by releasing or
// refunding. Either side of the escrow can raise it.
func (e *Engine) Dispute(ctx context.Context, actor model.Actor, escrowID, reason string) (*model.Escrow, error) {
	ctx, span := tracer.Start(ctx, "Disputing escrow")
	defer span.End()

	escrow, err := e.datasource.GetEscrow(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.ID != escrow.BuyerID && actor.ID != escrow.ProviderID {
		return nil, apierror.NewAPIError(apierror.ErrForbidden, "Only a party to the escrow can raise a dispute", nil)
	}

	disputed, err := e.datasource.DisputeEscrow(ctx, escrow.EscrowID, reason)
	if err != nil {
		return nil, err
	}
	e.emitWebhook(ctx, disputed)
	return disputed, nil
}

// GetEscrow returns a single escrow. Only its parties and admins can see it.
func (e *Engine) GetEscrow(ctx context.Context, actor model.Actor, escrowID string) (*model.Escrow, error) {
	escrow, err := e.datasource.GetEscrow(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.ID != escrow.BuyerID && actor.ID != escrow.ProviderID {
		return nil, apierror.NewAPIError(apierror.ErrForbidden, "Not a party to this escrow", nil)
	}
	return escrow, nil
}

// GetEscrowsByOrder lists the escrows of an order, filtered down to the
// caller's own rows unless they are an admin.
func (e *Engine) GetEscrowsByOrder(ctx context.Context, actor model.Actor, orderID string) ([]*model.Escrow, error) {
	escrows, err := e.datasource.GetEscrowsByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() {
		return escrows, nil
	}
	visible := make([]*model.Escrow, 0, len(escrows))
	for _, escrow := range escrows {
		if actor.ID == escrow.BuyerID || actor.ID == escrow.ProviderID {
			visible = append(visible, escrow)
		}
	}
	return visible, nil
}

func (e *Engine) GetEscrowsByBuyer(ctx context.Context, actor model.Actor, buyerID string) ([]*model.Escrow, error) {
	if !actor.IsAdmin() && actor.ID != buyerID {
		return nil, apierror.NewAPIError(apierror.ErrForbidden, "Cannot list another buyer's escrows", nil)
	}
	return e.datasource.GetEscrowsByBuyer(ctx, buyerID)
}

func (e *Engine) GetEscrowsByProvider(ctx context.Context, actor model.Actor, providerID string) ([]*model.Escrow, error) {
	if !actor.IsAdmin() && actor.ID != providerID {
		return nil, apierror.NewAPIError(apierror.ErrForbidden, "Cannot list another provider's escrows", nil)
	}
	return e.datasource.GetEscrowsByProvider(ctx, providerID)
}

// GetPendingEscrows lists a provider's held escrows still inside their
// clearing window, i.e. money earned but not yet paid out.
func (e *Engine) GetPendingEscrows(ctx context.Context, actor model.Actor, providerID string) ([]*model.Escrow, error) {
	if !actor.IsAdmin() && actor.ID != providerID {
		return nil, apierror.NewAPIError(apierror.ErrForbidden, "Cannot list another provider's escrows", nil)
	}
	return e.datasource.GetPendingEscrows(ctx, providerID)
}

// GetProviderSummary aggregates a provider's escrows per status.
func (e *Engine) GetProviderSummary(ctx context.Context, actor model.Actor, providerID string) ([]model.EscrowSummary, error) {
	if !actor.IsAdmin() && actor.ID != providerID {
		return nil, apierror.NewAPIError(apierror.ErrForbidden, "Cannot view another provider's summary", nil)
	}
	return e.datasource.GetEscrowSummary(ctx, providerID)
}

// GetPayoutRuns returns recent payout batch summaries. Admin only.
func (e *Engine) GetPayoutRuns(ctx context.Context, actor model.Actor, limit int) ([]*model.PayoutRunSummary, error) {
	if !actor.IsAdmin() {
		return nil, apierror.NewAPIError(apierror.ErrForbidden, "Only admins can view payout runs", nil)
	}
	if limit <= 0 {
		limit = 20
	}
	return e.datasource.GetPayoutRuns(ctx, limit)
}

// CreateJobDraft stores a provisional job ahead of payment. The draft is
// converted to a real order the moment its escrow is funded.
func (e *Engine) CreateJobDraft(ctx context.Context, actor model.Actor, draft *model.JobDraft) (*model.JobDraft, error) {
	if !actor.IsAdmin() && actor.ID != draft.BuyerID {
		return nil, apierror.NewAPIError(apierror.ErrForbidden, "Only the buyer or an admin can create a draft", nil)
	}
	if draft.DraftID == "" {
		draft.DraftID = model.GenerateUUIDWithSuffix("drft")
	}
	draft.Status = model.DraftStatusOpen
	return e.datasource.CreateJobDraft(ctx, draft)
}

// CreateProvider registers a payee profile synced from the platform.
func (e *Engine) CreateProvider(ctx context.Context, actor model.Actor, provider *model.Provider) (*model.Provider, error) {
	if !actor.IsAdmin() {
		return nil, apierror.NewAPIError(apierror.ErrForbidden, "Only admins can register providers", nil)
	}
	if provider.ProviderID == "" {
		provider.ProviderID = model.GenerateUUIDWithSuffix("prv")
	}
	return e.datasource.CreateProvider(ctx, provider)
}

// pushOrderPaid flips the payment status of a pre-existing order after its
// escrow holds the money. The hold has already committed, so a failure here
// is logged for the operators instead of surfacing.
func (e *Engine) pushOrderPaid(ctx context.Context, escrow *model.Escrow, paymentID string) {
	if escrow.OrderID == "" || escrow.OrderID == escrow.FinalOrderID {
		// draft-converted orders are born paid
		return
	}
	if escrow.PaidAt == nil {
		return
	}
	if err := e.datasource.MarkOrderPaid(ctx, escrow.OrderID, paymentID, *escrow.PaidAt); err != nil {
		logrus.Errorf("payment status push to order %s failed: %v", escrow.OrderID, err)
	}
}

// emitWebhook queues the status webhook for an escrow. Delivery is
// best-effort; a queue failure never fails the transition that caused it.
func (e *Engine) emitWebhook(ctx context.Context, escrow *model.Escrow) {
	if err := e.SendWebhook(ctx, escrow); err != nil {
		logrus.Error("failed to queue webhook: ", err)
	}
}

func clearingWindow(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}

func containsStatus(statuses []string, status string) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func invalidStateError(escrow *model.Escrow, target string) error {
	return apierror.NewAPIError(apierror.ErrInvalidState,
		fmt.Sprintf("Escrow '%s' cannot move from '%s' to '%s'", escrow.EscrowID, escrow.Status, target),
		map[string]string{"current_status": escrow.Status})
}
