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

	"github.com/stretchr/testify/mock"

	"github.com/taskilo/escrow/model"
)

// MockGateway is a mock implementation of the PaymentGateway interface.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateCheckoutSession(ctx context.Context, escrow *model.Escrow) (*CheckoutSession, error) {
	args := m.Called(ctx, escrow)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CheckoutSession), args.Error(1)
}

func (m *MockGateway) Payout(ctx context.Context, item model.PayoutItem) (*PayoutResult, error) {
	args := m.Called(ctx, item)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PayoutResult), args.Error(1)
}

func (m *MockGateway) Refund(ctx context.Context, paymentID string, amount int64, currency, reason string) (*RefundResult, error) {
	args := m.Called(ctx, paymentID, amount, currency, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RefundResult), args.Error(1)
}

func (m *MockGateway) PayoutBatch(ctx context.Context, items []model.PayoutItem) ([]model.PayoutItemResult, error) {
	args := m.Called(ctx, items)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PayoutItemResult), args.Error(1)
}
