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
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/taskilo/escrow/database"
	"github.com/taskilo/escrow/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Escrow methods

func (m *MockDataSource) CreateEscrow(ctx context.Context, escrow *model.Escrow) (*model.Escrow, error) {
	args := m.Called(ctx, escrow)
	return args.Get(0).(*model.Escrow), args.Error(1)
}

func (m *MockDataSource) GetEscrow(ctx context.Context, id string) (*model.Escrow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Escrow), args.Error(1)
}

func (m *MockDataSource) GetEscrowByReference(ctx context.Context, reference string) (*model.Escrow, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Escrow), args.Error(1)
}

func (m *MockDataSource) GetEscrowsByOrder(ctx context.Context, orderID string) ([]*model.Escrow, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).([]*model.Escrow), args.Error(1)
}

func (m *MockDataSource) GetEscrowsByBuyer(ctx context.Context, buyerID string) ([]*model.Escrow, error) {
	args := m.Called(ctx, buyerID)
	return args.Get(0).([]*model.Escrow), args.Error(1)
}

func (m *MockDataSource) GetEscrowsByProvider(ctx context.Context, providerID string) ([]*model.Escrow, error) {
	args := m.Called(ctx, providerID)
	return args.Get(0).([]*model.Escrow), args.Error(1)
}

func (m *MockDataSource) GetPendingEscrows(ctx context.Context, providerID string) ([]*model.Escrow, error) {
	args := m.Called(ctx, providerID)
	return args.Get(0).([]*model.Escrow), args.Error(1)
}

func (m *MockDataSource) GetEscrowSummary(ctx context.Context, providerID string) ([]model.EscrowSummary, error) {
	args := m.Called(ctx, providerID)
	return args.Get(0).([]model.EscrowSummary), args.Error(1)
}

func (m *MockDataSource) HoldEscrowAndConvertDraft(ctx context.Context, hold database.HoldParams) (*model.Escrow, error) {
	args := m.Called(ctx, hold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Escrow), args.Error(1)
}

func (m *MockDataSource) ReleaseEscrow(ctx context.Context, id string, paymentID string, from []string) (*model.Escrow, error) {
	args := m.Called(ctx, id, paymentID, from)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Escrow), args.Error(1)
}

func (m *MockDataSource) RefundEscrow(ctx context.Context, id, paymentID, reason string, from []string) (*model.Escrow, error) {
	args := m.Called(ctx, id, paymentID, reason, from)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Escrow), args.Error(1)
}

func (m *MockDataSource) DisputeEscrow(ctx context.Context, id, reason string) (*model.Escrow, error) {
	args := m.Called(ctx, id, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Escrow), args.Error(1)
}

func (m *MockDataSource) FlagEscrowForReview(ctx context.Context, id, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

func (m *MockDataSource) SetEscrowPayoutFailure(ctx context.Context, id, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

// Order methods

func (m *MockDataSource) CreateJobDraft(ctx context.Context, draft *model.JobDraft) (*model.JobDraft, error) {
	args := m.Called(ctx, draft)
	return args.Get(0).(*model.JobDraft), args.Error(1)
}

func (m *MockDataSource) GetJobDraft(ctx context.Context, id string) (*model.JobDraft, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.JobDraft), args.Error(1)
}

func (m *MockDataSource) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockDataSource) MarkOrderPaid(ctx context.Context, orderID, paymentID string, paidAt time.Time) error {
	args := m.Called(ctx, orderID, paymentID, paidAt)
	return args.Error(0)
}

// Provider methods

func (m *MockDataSource) CreateProvider(ctx context.Context, provider *model.Provider) (*model.Provider, error) {
	args := m.Called(ctx, provider)
	return args.Get(0).(*model.Provider), args.Error(1)
}

func (m *MockDataSource) GetProvider(ctx context.Context, id string) (*model.Provider, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Provider), args.Error(1)
}

// Payout methods

func (m *MockDataSource) GetPayoutEligibleEscrows(ctx context.Context, asOf time.Time) ([]*model.Escrow, error) {
	args := m.Called(ctx, asOf)
	return args.Get(0).([]*model.Escrow), args.Error(1)
}

func (m *MockDataSource) GetLegacyPayoutCandidates(ctx context.Context) ([]*model.LegacyEscrowPayment, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*model.LegacyEscrowPayment), args.Error(1)
}

func (m *MockDataSource) MarkLegacyPaymentPaid(ctx context.Context, orderID, paymentID string) error {
	args := m.Called(ctx, orderID, paymentID)
	return args.Error(0)
}

func (m *MockDataSource) RecordPayoutRun(ctx context.Context, summary *model.PayoutRunSummary) error {
	args := m.Called(ctx, summary)
	return args.Error(0)
}

func (m *MockDataSource) GetPayoutRuns(ctx context.Context, limit int) ([]*model.PayoutRunSummary, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]*model.PayoutRunSummary), args.Error(1)
}
