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
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/taskilo/escrow/internal/apierror"
	redlock "github.com/taskilo/escrow/internal/lock"
	"github.com/taskilo/escrow/internal/notification"
	"github.com/taskilo/escrow/model"
)

const (
	payoutLockKey     = "escrow:payout:run"
	payoutLockTimeout = 30 * time.Minute
)

// payoutCandidate pairs a submitted gateway item with where it came from,
// so the per-item settlement knows which table to update.
type payoutCandidate struct {
	item   model.PayoutItem
	legacy bool
}

// payoutSource is one place payout-eligible records come from. Sources are
// tried in order and the first one that finds any rows wins; the legacy
// table only serves runs where the escrow table has nothing cleared.
type payoutSource struct {
	name    string
	collect func(ctx context.Context, summary *model.PayoutRunSummary, now time.Time) (int, []payoutCandidate, error)
}

func (e *Engine) payoutSources() []payoutSource {
	return []payoutSource{
		{name: "primary", collect: e.collectEscrowCandidates},
		{name: "legacy", collect: e.collectLegacyCandidates},
	}
}

// RunPayoutBatch executes one payout run: find payout-eligible records
// (cleared escrows, falling back to the legacy table), resolve bank details,
// submit everything to the gateway in a single batch call and settle each
// item by its own outcome. A redis lock guarantees a single concurrent run;
// the scheduler and the admin endpoint both funnel through here.
func (e *Engine) RunPayoutBatch(ctx context.Context, runID string) (*model.PayoutRunSummary, error) {
	ctx, span := tracer.Start(ctx, "Running payout batch")
	defer span.End()

	if runID == "" {
		runID = model.GenerateUUIDWithSuffix("run")
	}

	locker := redlock.NewLocker(e.redis, payoutLockKey, runID)
	if err := locker.Lock(ctx, payoutLockTimeout); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrConflict, "A payout run is already in progress", err)
	}
	defer func() {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Error("failed to release payout run lock: ", err)
		}
	}()

	summary := &model.PayoutRunSummary{
		RunID:     runID,
		StartedAt: time.Now(),
	}

	var candidates []payoutCandidate
	summary.Source = "none"
	for _, source := range e.payoutSources() {
		found, collected, err := source.collect(ctx, summary, summary.StartedAt)
		if err != nil {
			return nil, err
		}
		if found == 0 {
			continue
		}
		summary.Source = source.name
		candidates = collected
		break
	}

	if len(candidates) == 0 {
		summary.EndedAt = time.Now()
		e.recordRun(ctx, summary)
		return summary, nil
	}

	items := make([]model.PayoutItem, len(candidates))
	for i, candidate := range candidates {
		items[i] = candidate.item
	}

	// one batch call, never retried: a replay could double-pay the items
	// that already went through
	results, err := e.gateway.PayoutBatch(ctx, items)
	if err != nil {
		// nothing went out, so every candidate failed the same way and the
		// run still leaves an audit record; the next scheduled run retries
		notification.NotifyError(fmt.Errorf("payout batch %s failed: %w", runID, err))
		failure := model.PayoutItemResult{Error: fmt.Sprintf("batch submission failed: %v", err)}
		for _, candidate := range candidates {
			e.settlePayoutItem(ctx, summary, candidate, failure)
		}
		summary.EndedAt = time.Now()
		e.recordRun(ctx, summary)
		return summary, nil
	}

	byEscrow := make(map[string]model.PayoutItemResult, len(results))
	byOrder := make(map[string]model.PayoutItemResult, len(results))
	for _, result := range results {
		if result.EscrowID != "" {
			byEscrow[result.EscrowID] = result
		}
		if result.OrderID != "" {
			byOrder[result.OrderID] = result
		}
	}

	for _, candidate := range candidates {
		result, ok := byEscrow[candidate.item.EscrowID]
		if candidate.legacy {
			result, ok = byOrder[candidate.item.OrderID]
		}
		if !ok {
			// the gateway accepted the batch but reported nothing for this
			// item, which an operator has to reconcile by hand
			result = model.PayoutItemResult{Error: "no result returned by gateway"}
		}
		e.settlePayoutItem(ctx, summary, candidate, result)
	}

	summary.EndedAt = time.Now()
	e.recordRun(ctx, summary)
	return summary, nil
}

// collectEscrowCandidates pulls cleared escrows from the escrows table.
// Rows that cannot be paid (no bank details, broken provider) are recorded
// as skipped and stay held for the next run.
func (e *Engine) collectEscrowCandidates(ctx context.Context, summary *model.PayoutRunSummary, now time.Time) (int, []payoutCandidate, error) {
	eligible, err := e.datasource.GetPayoutEligibleEscrows(ctx, now)
	if err != nil {
		return 0, nil, err
	}
	var candidates []payoutCandidate
	for _, escrow := range eligible {
		item, reason := e.buildEscrowPayoutItem(ctx, escrow)
		if reason != "" {
			e.skipItem(ctx, summary, escrow.EscrowID, reason)
			continue
		}
		candidates = append(candidates, payoutCandidate{item: item})
	}
	return len(eligible), candidates, nil
}

// collectLegacyCandidates pulls pre-engine payment rows still marked ready
// for payout.
func (e *Engine) collectLegacyCandidates(ctx context.Context, summary *model.PayoutRunSummary, _ time.Time) (int, []payoutCandidate, error) {
	legacy, err := e.datasource.GetLegacyPayoutCandidates(ctx)
	if err != nil {
		return 0, nil, err
	}
	var candidates []payoutCandidate
	for _, payment := range legacy {
		item, reason := e.buildLegacyPayoutItem(ctx, payment)
		if reason != "" {
			e.skipItem(ctx, summary, payment.OrderID, reason)
			continue
		}
		candidates = append(candidates, payoutCandidate{item: item, legacy: true})
	}
	return len(legacy), candidates, nil
}

// buildEscrowPayoutItem resolves the provider's bank details for a cleared
// escrow. A non-empty reason means the escrow must be skipped this run.
func (e *Engine) buildEscrowPayoutItem(ctx context.Context, escrow *model.Escrow) (model.PayoutItem, string) {
	provider, err := e.datasource.GetProvider(ctx, escrow.ProviderID)
	if err != nil {
		return model.PayoutItem{}, fmt.Sprintf("provider lookup failed: %v", err)
	}
	account, ok := provider.ResolveBankAccount()
	if !ok {
		return model.PayoutItem{}, "no usable bank details"
	}
	return model.PayoutItem{
		EscrowID:   escrow.EscrowID,
		OrderID:    escrow.OrderID,
		ProviderID: escrow.ProviderID,
		Amount:     escrow.Amount,
		Currency:   escrow.Currency,
		IBAN:       account.IBAN,
		BIC:        account.BIC,
		Name:       account.Name,
		Reference:  escrow.PaymentReference,
	}, ""
}

// buildLegacyPayoutItem does the same for a pre-engine payment row. Legacy
// amounts are sometimes stored in major units and get normalized here.
func (e *Engine) buildLegacyPayoutItem(ctx context.Context, payment *model.LegacyEscrowPayment) (model.PayoutItem, string) {
	provider, err := e.datasource.GetProvider(ctx, payment.ProviderID)
	if err != nil {
		return model.PayoutItem{}, fmt.Sprintf("provider lookup failed: %v", err)
	}
	account, ok := provider.ResolveBankAccount()
	if !ok {
		return model.PayoutItem{}, "no usable bank details"
	}
	return model.PayoutItem{
		OrderID:    payment.OrderID,
		ProviderID: payment.ProviderID,
		Amount:     payment.NormalizedAmount(),
		Currency:   payment.Currency,
		IBAN:       account.IBAN,
		BIC:        account.BIC,
		Name:       account.Name,
		Reference:  payment.OrderID,
	}, ""
}

// settlePayoutItem applies one gateway outcome: a released escrow, a settled
// legacy payment, or a recorded failure. A failure of one item never stops
// the others.
func (e *Engine) settlePayoutItem(ctx context.Context, summary *model.PayoutRunSummary, candidate payoutCandidate, result model.PayoutItemResult) {
	id := candidate.item.EscrowID
	if candidate.legacy {
		id = candidate.item.OrderID
	}

	if !result.Success {
		if !candidate.legacy {
			if err := e.datasource.SetEscrowPayoutFailure(ctx, candidate.item.EscrowID, result.Error); err != nil {
				logrus.Error("failed to record payout failure: ", err)
			}
		}
		summary.Failed++
		summary.Processed++
		summary.Items = append(summary.Items, model.PayoutRunItem{EscrowID: id, Outcome: model.PayoutOutcomeFailed, Reason: result.Error})
		return
	}

	if candidate.legacy {
		if err := e.datasource.MarkLegacyPaymentPaid(ctx, candidate.item.OrderID, result.PaymentID); err != nil {
			logrus.Error("failed to settle legacy payment: ", err)
			summary.Failed++
			summary.Processed++
			summary.Items = append(summary.Items, model.PayoutRunItem{EscrowID: id, Outcome: model.PayoutOutcomeFailed, Reason: err.Error()})
			return
		}
	} else {
		released, err := e.datasource.ReleaseEscrow(ctx, candidate.item.EscrowID, result.PaymentID, []string{model.StatusHeld})
		if err != nil {
			// the escrow moved (for example into dispute) between selection
			// and settlement; the money went out, so this needs an operator
			logrus.Errorf("escrow %s paid but not released: %v", candidate.item.EscrowID, err)
			notification.NotifyError(fmt.Errorf("escrow %s paid but not released: %w", candidate.item.EscrowID, err))
			if flagErr := e.datasource.FlagEscrowForReview(ctx, candidate.item.EscrowID, "paid but not released: "+err.Error()); flagErr != nil {
				logrus.Error("failed to flag escrow for review: ", flagErr)
			}
			summary.Failed++
			summary.Processed++
			summary.Items = append(summary.Items, model.PayoutRunItem{EscrowID: id, Outcome: model.PayoutOutcomeFailed, Reason: err.Error()})
			return
		}
		e.emitWebhook(ctx, released)
	}

	summary.Released++
	summary.Processed++
	summary.Items = append(summary.Items, model.PayoutRunItem{EscrowID: id, Outcome: model.PayoutOutcomeReleased})
}

func (e *Engine) skipItem(ctx context.Context, summary *model.PayoutRunSummary, id, reason string) {
	logrus.Warnf("skipping payout for %s: %s", id, reason)
	summary.Skipped++
	summary.Processed++
	summary.Items = append(summary.Items, model.PayoutRunItem{EscrowID: id, Outcome: model.PayoutOutcomeSkipped, Reason: reason})
}

func (e *Engine) recordRun(ctx context.Context, summary *model.PayoutRunSummary) {
	if err := e.datasource.RecordPayoutRun(ctx, summary); err != nil {
		logrus.Error("failed to record payout run: ", err)
	}
}

// QueuePayoutRun hands an on-demand run to the background worker instead of
// blocking the caller on the whole batch. The worker funnels into
// RunPayoutBatch, so a queued run behaves exactly like a scheduled one.
func (e *Engine) QueuePayoutRun(ctx context.Context, runID string) (string, error) {
	if runID == "" {
		runID = model.GenerateUUIDWithSuffix("run")
	}
	if e.queue.PayoutRunQueued(runID) {
		return "", apierror.NewAPIError(apierror.ErrConflict, "Payout run is already queued", nil)
	}
	if err := e.queue.QueuePayoutRun(ctx, runID); err != nil {
		return "", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to queue payout run", err)
	}
	return runID, nil
}

// ProcessPayoutTask is the asynq handler behind the payout queue. The
// scheduler enqueues it on its cron and the admin endpoint on demand.
func (e *Engine) ProcessPayoutTask(ctx context.Context, task *asynq.Task) error {
	var payload struct {
		RunID string `json:"run_id"`
	}
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			logrus.Errorf("invalid payout task payload: %v", err)
			return err
		}
	}

	summary, err := e.RunPayoutBatch(ctx, payload.RunID)
	if err != nil {
		if apiErr, ok := err.(apierror.APIError); ok && apiErr.Code == apierror.ErrConflict {
			logrus.Warn("payout run already in progress, skipping")
			return nil
		}
		return err
	}
	logrus.Infof("payout run %s: %d released, %d failed, %d skipped",
		summary.RunID, summary.Released, summary.Failed, summary.Skipped)
	return nil
}
