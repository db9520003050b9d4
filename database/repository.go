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

package database

import (
	"context"
	"time"

	"github.com/taskilo/escrow/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	escrow   // Interface for escrow lifecycle operations
	order    // Interface for draft and order operations
	provider // Interface for provider profile operations
	payout   // Interface for payout batch operations
}

// escrow defines methods for the escrow lifecycle.
type escrow interface {
	CreateEscrow(ctx context.Context, escrow *model.Escrow) (*model.Escrow, error)                         // Records a new escrow in status created
	GetEscrow(ctx context.Context, id string) (*model.Escrow, error)                                       // Retrieves an escrow by ID
	GetEscrowByReference(ctx context.Context, reference string) (*model.Escrow, error)                     // Retrieves an escrow by payment reference
	GetEscrowsByOrder(ctx context.Context, orderID string) ([]*model.Escrow, error)                        // Retrieves escrows attached to an order
	GetEscrowsByBuyer(ctx context.Context, buyerID string) ([]*model.Escrow, error)                        // Retrieves a buyer's escrows
	GetEscrowsByProvider(ctx context.Context, providerID string) ([]*model.Escrow, error)                  // Retrieves a provider's escrows
	GetPendingEscrows(ctx context.Context, providerID string) ([]*model.Escrow, error)                     // Retrieves held escrows ordered by clearing end
	GetEscrowSummary(ctx context.Context, providerID string) ([]model.EscrowSummary, error)                // Aggregates a provider's escrows per status
	HoldEscrowAndConvertDraft(ctx context.Context, hold HoldParams) (*model.Escrow, error)                 // Atomically moves created -> held and materializes the draft
	ReleaseEscrow(ctx context.Context, id string, paymentID string, from []string) (*model.Escrow, error)  // Compare-and-set to released with a gateway payment ID
	RefundEscrow(ctx context.Context, id, paymentID, reason string, from []string) (*model.Escrow, error)  // Compare-and-set to refunded
	DisputeEscrow(ctx context.Context, id, reason string) (*model.Escrow, error)                           // Compare-and-set held -> disputed
	FlagEscrowForReview(ctx context.Context, id, reason string) error                                      // Annotates an escrow for manual review
	SetEscrowPayoutFailure(ctx context.Context, id, reason string) error                                   // Records the last payout failure reason
}

// order defines methods for job drafts and the orders they convert into.
type order interface {
	CreateJobDraft(ctx context.Context, draft *model.JobDraft) (*model.JobDraft, error)   // Records a new job draft
	GetJobDraft(ctx context.Context, id string) (*model.JobDraft, error)                  // Retrieves a draft by ID
	GetOrder(ctx context.Context, id string) (*model.Order, error)                        // Retrieves an order by ID
	MarkOrderPaid(ctx context.Context, orderID, paymentID string, paidAt time.Time) error // Pushes the paid status onto an order after a hold
}

// provider defines methods for provider payout profiles.
type provider interface {
	CreateProvider(ctx context.Context, provider *model.Provider) (*model.Provider, error) // Records a provider profile
	GetProvider(ctx context.Context, id string) (*model.Provider, error)                   // Retrieves a provider profile by ID
}

// payout defines methods backing the scheduled payout batch.
type payout interface {
	GetPayoutEligibleEscrows(ctx context.Context, asOf time.Time) ([]*model.Escrow, error)       // Held escrows whose clearing period has ended
	GetLegacyPayoutCandidates(ctx context.Context) ([]*model.LegacyEscrowPayment, error)         // Pre-migration rows still awaiting payout
	MarkLegacyPaymentPaid(ctx context.Context, orderID, paymentID string) error                  // Settles a legacy row after a successful transfer
	RecordPayoutRun(ctx context.Context, summary *model.PayoutRunSummary) error                  // Persists the audit record of a batch run
	GetPayoutRuns(ctx context.Context, limit int) ([]*model.PayoutRunSummary, error)             // Retrieves recent batch run summaries
}

// HoldParams carries everything the created -> held transition stamps onto
// the escrow row inside a single SQL transaction.
type HoldParams struct {
	EscrowID         string
	PaymentID        string
	CounterpartyName string
	ReviewReason     string
	PaidAt           time.Time
	ClearingEndsAt   time.Time
}
