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
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/taskilo/escrow/config"
	"github.com/taskilo/escrow/internal/request"
	"github.com/taskilo/escrow/model"
)

// CheckoutSession is a hosted payment page created on the gateway for a
// buyer to fund an escrow.
type CheckoutSession struct {
	SessionID string `json:"session_id"`
	Url       string `json:"url"`
}

// PayoutResult is the gateway's acknowledgement of a single outbound payment.
type PayoutResult struct {
	PaymentID string `json:"payment_id"`
}

// RefundResult is the gateway's acknowledgement of a refund.
type RefundResult struct {
	RefundID string `json:"refund_id"`
}

// PaymentGateway abstracts the trusted payment proxy that fronts the banking
// provider. All money movement goes through it; the engine never talks to
// the bank directly.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, escrow *model.Escrow) (*CheckoutSession, error)
	Payout(ctx context.Context, item model.PayoutItem) (*PayoutResult, error)
	Refund(ctx context.Context, paymentID string, amount int64, currency, reason string) (*RefundResult, error)
	PayoutBatch(ctx context.Context, items []model.PayoutItem) ([]model.PayoutItemResult, error)
}

// GatewayClient implements PaymentGateway against the HTTP proxy configured
// under gateway in the config file.
type GatewayClient struct {
	baseURL     string
	apiKey      string
	timeout     time.Duration
	maxRetry    time.Duration
	checkoutURL string
}

// NewGatewayClient creates a gateway client from the loaded configuration.
func NewGatewayClient(conf *config.Configuration) *GatewayClient {
	return &GatewayClient{
		baseURL:     conf.Gateway.Url,
		apiKey:      conf.Gateway.ApiKey,
		timeout:     time.Duration(conf.Gateway.TimeoutSec) * time.Second,
		maxRetry:    time.Duration(conf.Gateway.MaxRetrySec) * time.Second,
		checkoutURL: conf.Gateway.CheckoutReturn,
	}
}

// post sends one JSON request to the gateway and decodes the response into
// out. A non-2XX status is returned as an error carrying the gateway's own
// error message when it sent one.
func (g *GatewayClient) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := request.ToJsonReq(body)
	if err != nil {
		return errors.Wrap(err, "failed to encode gateway request")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", g.baseURL+path, payload)
	if err != nil {
		return errors.Wrap(err, "failed to create gateway request")
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Idempotency-Key", request.IdempotencyKey())

	resp, err := request.Call(req, out)
	if err != nil {
		if resp != nil && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
			return errors.Wrapf(err, "gateway returned status %d for %s", resp.StatusCode, path)
		}
		return errors.Wrapf(err, "gateway call to %s failed", path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("gateway returned status %d for %s", resp.StatusCode, path)
	}
	return nil
}

// postWithRetry retries transient gateway failures with exponential backoff.
// Only used for calls where the Idempotency-Key makes a replay safe.
func (g *GatewayClient) postWithRetry(ctx context.Context, path string, body interface{}, out interface{}) error {
	operation := func() error {
		return g.post(ctx, path, body, out)
	}
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = g.maxRetry
	return backoff.Retry(operation, backoff.WithContext(expBackoff, ctx))
}

// CreateCheckoutSession asks the gateway for a hosted payment page carrying
// the escrow's payment reference, so the inbound transfer can be matched
// back to the escrow.
func (g *GatewayClient) CreateCheckoutSession(ctx context.Context, escrow *model.Escrow) (*CheckoutSession, error) {
	body := map[string]interface{}{
		"amount":     escrow.Amount,
		"currency":   escrow.Currency,
		"reference":  escrow.PaymentReference,
		"return_url": g.checkoutURL,
		"metadata": map[string]string{
			"escrow_id": escrow.EscrowID,
		},
	}
	var session CheckoutSession
	if err := g.postWithRetry(ctx, "/checkout/sessions", body, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Payout sends a single outbound payment to a provider's bank account.
func (g *GatewayClient) Payout(ctx context.Context, item model.PayoutItem) (*PayoutResult, error) {
	var result PayoutResult
	if err := g.postWithRetry(ctx, "/payouts", item, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Refund reverses an inbound payment back to the buyer.
func (g *GatewayClient) Refund(ctx context.Context, paymentID string, amount int64, currency, reason string) (*RefundResult, error) {
	body := map[string]interface{}{
		"payment_id": paymentID,
		"amount":     amount,
		"currency":   currency,
		"reason":     reason,
	}
	var result RefundResult
	if err := g.postWithRetry(ctx, "/refunds", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PayoutBatch submits all items of a payout run in one call. The call is
// made exactly once: a retry here could double-pay providers whose items
// already succeeded, so transient failures surface to the caller instead.
// Results carry the escrow or order ID they belong to and may come back in
// any order; the caller matches them to its items by identity.
func (g *GatewayClient) PayoutBatch(ctx context.Context, items []model.PayoutItem) ([]model.PayoutItemResult, error) {
	body := map[string]interface{}{
		"items": items,
	}
	var response struct {
		Results []model.PayoutItemResult `json:"results"`
	}
	if err := g.post(ctx, "/payouts/batch", body, &response); err != nil {
		return nil, err
	}
	return response.Results, nil
}
