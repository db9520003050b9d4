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
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/taskilo/escrow/database/mocks"
	"github.com/taskilo/escrow/internal/apierror"
	"github.com/taskilo/escrow/model"
)

func newPayoutTestEngine(t *testing.T) (*Engine, *mocks.MockDataSource, *MockGateway, *miniredis.Miniredis) {
	t.Helper()
	engine, datasource, gateway := newTestEngine(t)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	engine.redis = redis.NewClient(&redis.Options{Addr: mr.Addr()})

	return engine, datasource, gateway, mr
}

func clearedEscrow(id string) *model.Escrow {
	past := time.Now().Add(-time.Hour)
	escrow := heldEscrow()
	escrow.EscrowID = id
	escrow.ClearingEndsAt = &past
	return escrow
}

func TestRunPayoutBatchPrimarySource(t *testing.T) {
	engine, datasource, gateway, _ := newPayoutTestEngine(t)
	ctx := context.Background()

	primary := clearedEscrow("esc_1")
	noBank := clearedEscrow("esc_2")
	noBank.ProviderID = "prv_nobank"

	datasource.On("GetPayoutEligibleEscrows", mock.Anything, mock.Anything).
		Return([]*model.Escrow{primary, noBank}, nil)
	datasource.On("GetProvider", mock.Anything, provider.ID).Return(providerWithBank(), nil)
	datasource.On("GetProvider", mock.Anything, "prv_nobank").
		Return(&model.Provider{ProviderID: "prv_nobank", DisplayName: "No Bank Ltd"}, nil)

	gateway.On("PayoutBatch", mock.Anything, mock.MatchedBy(func(items []model.PayoutItem) bool {
		// the escrow without bank details never reaches the gateway
		return len(items) == 1 && items[0].EscrowID == "esc_1"
	})).Return([]model.PayoutItemResult{
		{EscrowID: "esc_1", Success: true, PaymentID: "pay_1"},
	}, nil)

	released := clearedEscrow("esc_1")
	released.Status = model.StatusReleased
	datasource.On("ReleaseEscrow", mock.Anything, "esc_1", "pay_1", []string{model.StatusHeld}).
		Return(released, nil)
	datasource.On("RecordPayoutRun", mock.Anything, mock.Anything).Return(nil)

	summary, err := engine.RunPayoutBatch(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "primary", summary.Source)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Released)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)
	// the escrow table had rows, so the legacy table is never consulted
	datasource.AssertNotCalled(t, "GetLegacyPayoutCandidates", mock.Anything)
	datasource.AssertExpectations(t)
	gateway.AssertExpectations(t)
}

func TestRunPayoutBatchLegacyFallback(t *testing.T) {
	engine, datasource, gateway, _ := newPayoutTestEngine(t)
	ctx := context.Background()

	legacy := &model.LegacyEscrowPayment{
		OrderID:    "ord_legacy",
		ProviderID: provider.ID,
		Amount:     80,
		AmountUnit: "major",
		Currency:   "EUR",
		Status:     "ready_for_payout",
	}

	datasource.On("GetPayoutEligibleEscrows", mock.Anything, mock.Anything).
		Return([]*model.Escrow{}, nil)
	datasource.On("GetLegacyPayoutCandidates", mock.Anything).
		Return([]*model.LegacyEscrowPayment{legacy}, nil)
	datasource.On("GetProvider", mock.Anything, provider.ID).Return(providerWithBank(), nil)

	gateway.On("PayoutBatch", mock.Anything, mock.MatchedBy(func(items []model.PayoutItem) bool {
		// the legacy amount arrives normalized to minor units
		return len(items) == 1 && items[0].OrderID == "ord_legacy" && items[0].Amount == 8000
	})).Return([]model.PayoutItemResult{
		{OrderID: "ord_legacy", Success: true, PaymentID: "pay_2"},
	}, nil)

	datasource.On("MarkLegacyPaymentPaid", mock.Anything, "ord_legacy", "pay_2").Return(nil)
	datasource.On("RecordPayoutRun", mock.Anything, mock.Anything).Return(nil)

	summary, err := engine.RunPayoutBatch(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "legacy", summary.Source)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Released)
	datasource.AssertExpectations(t)
	gateway.AssertExpectations(t)
}

func TestRunPayoutBatchPartialFailure(t *testing.T) {
	engine, datasource, gateway, _ := newPayoutTestEngine(t)
	ctx := context.Background()

	first := clearedEscrow("esc_1")
	second := clearedEscrow("esc_2")

	datasource.On("GetPayoutEligibleEscrows", mock.Anything, mock.Anything).
		Return([]*model.Escrow{first, second}, nil)
	datasource.On("GetProvider", mock.Anything, provider.ID).Return(providerWithBank(), nil)

	gateway.On("PayoutBatch", mock.Anything, mock.Anything).Return([]model.PayoutItemResult{
		{EscrowID: "esc_1", Success: true, PaymentID: "pay_1"},
		{EscrowID: "esc_2", Success: false, Error: "account closed"},
	}, nil)

	released := clearedEscrow("esc_1")
	released.Status = model.StatusReleased
	datasource.On("ReleaseEscrow", mock.Anything, "esc_1", "pay_1", []string{model.StatusHeld}).
		Return(released, nil)
	datasource.On("SetEscrowPayoutFailure", mock.Anything, "esc_2", "account closed").Return(nil)
	datasource.On("RecordPayoutRun", mock.Anything, mock.Anything).Return(nil)

	summary, err := engine.RunPayoutBatch(ctx, "run_test")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Released)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, "primary", summary.Source)
	datasource.AssertNotCalled(t, "ReleaseEscrow", mock.Anything, "esc_2", mock.Anything, mock.Anything)
	datasource.AssertExpectations(t)
}

func TestRunPayoutBatchLockHeld(t *testing.T) {
	engine, _, _, mr := newPayoutTestEngine(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(payoutLockKey, "another_run"))

	_, err := engine.RunPayoutBatch(ctx, "run_test")
	require.Error(t, err)
	assert.Equal(t, apierror.ErrConflict, err.(apierror.APIError).Code)
}

func TestRunPayoutBatchReleasesLock(t *testing.T) {
	engine, datasource, _, _ := newPayoutTestEngine(t)
	ctx := context.Background()

	datasource.On("GetPayoutEligibleEscrows", mock.Anything, mock.Anything).Return([]*model.Escrow{}, nil)
	datasource.On("GetLegacyPayoutCandidates", mock.Anything).Return([]*model.LegacyEscrowPayment{}, nil)
	datasource.On("RecordPayoutRun", mock.Anything, mock.Anything).Return(nil)

	_, err := engine.RunPayoutBatch(ctx, "run_a")
	require.NoError(t, err)
	_, err = engine.RunPayoutBatch(ctx, "run_b")
	require.NoError(t, err)
}

func TestRunPayoutBatchNoCandidates(t *testing.T) {
	engine, datasource, gateway, _ := newPayoutTestEngine(t)
	ctx := context.Background()

	datasource.On("GetPayoutEligibleEscrows", mock.Anything, mock.Anything).Return([]*model.Escrow{}, nil)
	datasource.On("GetLegacyPayoutCandidates", mock.Anything).Return([]*model.LegacyEscrowPayment{}, nil)
	datasource.On("RecordPayoutRun", mock.Anything, mock.MatchedBy(func(summary *model.PayoutRunSummary) bool {
		return summary.Processed == 0 && summary.Source == "none"
	})).Return(nil)

	summary, err := engine.RunPayoutBatch(ctx, "run_test")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Processed)
	gateway.AssertNotCalled(t, "PayoutBatch", mock.Anything, mock.Anything)
	datasource.AssertExpectations(t)
}

func TestRunPayoutBatchResultsOutOfOrder(t *testing.T) {
	engine, datasource, gateway, _ := newPayoutTestEngine(t)
	ctx := context.Background()

	first := clearedEscrow("esc_1")
	second := clearedEscrow("esc_2")

	datasource.On("GetPayoutEligibleEscrows", mock.Anything, mock.Anything).
		Return([]*model.Escrow{first, second}, nil)
	datasource.On("GetProvider", mock.Anything, provider.ID).Return(providerWithBank(), nil)

	// results come back in a different order than the items were submitted
	gateway.On("PayoutBatch", mock.Anything, mock.Anything).Return([]model.PayoutItemResult{
		{EscrowID: "esc_2", Success: false, Error: "account closed"},
		{EscrowID: "esc_1", Success: true, PaymentID: "pay_1"},
	}, nil)

	released := clearedEscrow("esc_1")
	released.Status = model.StatusReleased
	datasource.On("ReleaseEscrow", mock.Anything, "esc_1", "pay_1", []string{model.StatusHeld}).
		Return(released, nil)
	datasource.On("SetEscrowPayoutFailure", mock.Anything, "esc_2", "account closed").Return(nil)
	datasource.On("RecordPayoutRun", mock.Anything, mock.Anything).Return(nil)

	summary, err := engine.RunPayoutBatch(ctx, "run_test")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Released)
	assert.Equal(t, 1, summary.Failed)
	datasource.AssertNotCalled(t, "ReleaseEscrow", mock.Anything, "esc_2", mock.Anything, mock.Anything)
	datasource.AssertExpectations(t)
}

func TestRunPayoutBatchMissingResult(t *testing.T) {
	engine, datasource, gateway, _ := newPayoutTestEngine(t)
	ctx := context.Background()

	first := clearedEscrow("esc_1")
	second := clearedEscrow("esc_2")

	datasource.On("GetPayoutEligibleEscrows", mock.Anything, mock.Anything).
		Return([]*model.Escrow{first, second}, nil)
	datasource.On("GetProvider", mock.Anything, provider.ID).Return(providerWithBank(), nil)

	// the gateway reports nothing for esc_2
	gateway.On("PayoutBatch", mock.Anything, mock.Anything).Return([]model.PayoutItemResult{
		{EscrowID: "esc_1", Success: true, PaymentID: "pay_1"},
	}, nil)

	released := clearedEscrow("esc_1")
	released.Status = model.StatusReleased
	datasource.On("ReleaseEscrow", mock.Anything, "esc_1", "pay_1", []string{model.StatusHeld}).
		Return(released, nil)
	datasource.On("SetEscrowPayoutFailure", mock.Anything, "esc_2", "no result returned by gateway").Return(nil)
	datasource.On("RecordPayoutRun", mock.Anything, mock.Anything).Return(nil)

	summary, err := engine.RunPayoutBatch(ctx, "run_test")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Released)
	assert.Equal(t, 1, summary.Failed)
	datasource.AssertExpectations(t)
}

func TestRunPayoutBatchSubmissionFailure(t *testing.T) {
	engine, datasource, gateway, _ := newPayoutTestEngine(t)
	ctx := context.Background()

	datasource.On("GetPayoutEligibleEscrows", mock.Anything, mock.Anything).
		Return([]*model.Escrow{clearedEscrow("esc_1"), clearedEscrow("esc_2")}, nil)
	datasource.On("GetProvider", mock.Anything, provider.ID).Return(providerWithBank(), nil)
	gateway.On("PayoutBatch", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	// every submitted candidate gets a failure record and the run is audited
	datasource.On("SetEscrowPayoutFailure", mock.Anything, "esc_1", mock.MatchedBy(func(reason string) bool {
		return assert.Contains(t, reason, "batch submission failed")
	})).Return(nil)
	datasource.On("SetEscrowPayoutFailure", mock.Anything, "esc_2", mock.MatchedBy(func(reason string) bool {
		return assert.Contains(t, reason, "batch submission failed")
	})).Return(nil)
	datasource.On("RecordPayoutRun", mock.Anything, mock.MatchedBy(func(summary *model.PayoutRunSummary) bool {
		return summary.Failed == 2 && summary.Released == 0
	})).Return(nil)

	summary, err := engine.RunPayoutBatch(ctx, "run_test")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 2, summary.Processed)
	datasource.AssertNotCalled(t, "ReleaseEscrow", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	datasource.AssertExpectations(t)
}
