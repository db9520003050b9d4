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
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskilo/escrow/config"
	"github.com/taskilo/escrow/model"
)

func newTestGateway() *GatewayClient {
	return NewGatewayClient(&config.Configuration{
		Gateway: config.GatewayConfig{
			Url:         "https://gateway.test",
			ApiKey:      "sk_test",
			TimeoutSec:  5,
			MaxRetrySec: 1,
		},
	})
}

func TestCreateCheckoutSession(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	var gotAuth, gotIdempotency string
	httpmock.RegisterResponder("POST", "https://gateway.test/checkout/sessions",
		func(req *http.Request) (*http.Response, error) {
			gotAuth = req.Header.Get("Authorization")
			gotIdempotency = req.Header.Get("Idempotency-Key")
			return httpmock.NewJsonResponse(200, map[string]string{
				"session_id": "cs_1",
				"url":        "https://pay.example.com/cs_1",
			})
		})

	gateway := newTestGateway()
	session, err := gateway.CreateCheckoutSession(context.Background(), &model.Escrow{
		EscrowID:         "esc_1",
		Amount:           10000,
		Currency:         "EUR",
		PaymentReference: "ESC-12345678",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_1", session.SessionID)
	assert.Equal(t, "Bearer sk_test", gotAuth)
	assert.NotEmpty(t, gotIdempotency)
}

func TestPayoutRetriesTransientFailure(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	calls := 0
	httpmock.RegisterResponder("POST", "https://gateway.test/payouts",
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return httpmock.NewJsonResponse(503, map[string]string{"error": "try later"})
			}
			return httpmock.NewJsonResponse(200, map[string]string{"payment_id": "pay_1"})
		})

	gateway := newTestGateway()
	result, err := gateway.Payout(context.Background(), model.PayoutItem{EscrowID: "esc_1", Amount: 10000})
	require.NoError(t, err)
	assert.Equal(t, "pay_1", result.PaymentID)
	assert.GreaterOrEqual(t, calls, 2)
}

func TestPayoutBatchIsNeverRetried(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	calls := 0
	httpmock.RegisterResponder("POST", "https://gateway.test/payouts/batch",
		func(req *http.Request) (*http.Response, error) {
			calls++
			return httpmock.NewJsonResponse(500, map[string]string{"error": "boom"})
		})

	gateway := newTestGateway()
	_, err := gateway.PayoutBatch(context.Background(), []model.PayoutItem{{EscrowID: "esc_1"}})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPayoutBatchResultCountMismatch(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://gateway.test/payouts/batch",
		httpmock.NewStringResponder(200, `{"results":[{"escrow_id":"esc_1","success":true}]}`))

	gateway := newTestGateway()
	_, err := gateway.PayoutBatch(context.Background(), []model.PayoutItem{
		{EscrowID: "esc_1"}, {EscrowID: "esc_2"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 results for 2 payout items")
}

func TestPayoutBatchDecodesResults(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://gateway.test/payouts/batch",
		httpmock.NewStringResponder(200, `{"results":[
			{"escrow_id":"esc_1","success":true,"payment_id":"pay_1"},
			{"escrow_id":"esc_2","success":false,"error":"account closed"}
		]}`))

	gateway := newTestGateway()
	results, err := gateway.PayoutBatch(context.Background(), []model.PayoutItem{
		{EscrowID: "esc_1"}, {EscrowID: "esc_2"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.Equal(t, "pay_1", results[0].PaymentID)
	assert.False(t, results[1].Success)
	assert.Equal(t, "account closed", results[1].Error)
}

func TestRefundSendsPaymentDetails(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	var got map[string]interface{}
	httpmock.RegisterResponder("POST", "https://gateway.test/refunds",
		func(req *http.Request) (*http.Response, error) {
			if err := json.NewDecoder(req.Body).Decode(&got); err != nil {
				return httpmock.NewStringResponse(400, "bad body"), nil
			}
			return httpmock.NewJsonResponse(200, map[string]string{"refund_id": "rf_1"})
		})

	gateway := newTestGateway()
	result, err := gateway.Refund(context.Background(), "txn_in_1", 10000, "EUR", "order cancelled")
	require.NoError(t, err)
	assert.Equal(t, "rf_1", result.RefundID)
	assert.Equal(t, "txn_in_1", got["payment_id"])
	assert.Equal(t, float64(10000), got["amount"])
	assert.Equal(t, "order cancelled", got["reason"])
}
