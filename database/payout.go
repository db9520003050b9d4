package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/taskilo/escrow/internal/apierror"
	"github.com/taskilo/escrow/model"
)

// GetPayoutEligibleEscrows returns held escrows whose clearing period has
// ended, oldest first so long-waiting providers go out in the same batch.
func (d Datasource) GetPayoutEligibleEscrows(ctx context.Context, asOf time.Time) ([]*model.Escrow, error) {
	ctx, span := otel.Tracer("escrow.database").Start(ctx, "Fetching payout eligible escrows")
	defer span.End()

	return d.queryEscrows(ctx, `WHERE status = 'held' AND clearing_ends_at IS NOT NULL AND clearing_ends_at <= $1 ORDER BY clearing_ends_at ASC`, asOf)
}

func (d Datasource) GetLegacyPayoutCandidates(ctx context.Context) ([]*model.LegacyEscrowPayment, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT order_id, provider_id, amount, amount_unit, currency, status, created_at
		FROM legacy_escrow_payments
		WHERE status = 'ready_for_payout'
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve legacy payout candidates", err)
	}
	defer rows.Close()

	var payments []*model.LegacyEscrowPayment
	for rows.Next() {
		payment := &model.LegacyEscrowPayment{}
		err = rows.Scan(&payment.OrderID, &payment.ProviderID, &payment.Amount, &payment.AmountUnit,
			&payment.Currency, &payment.Status, &payment.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan legacy payment", err)
		}
		payments = append(payments, payment)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over legacy payments", err)
	}
	return payments, nil
}

func (d Datasource) MarkLegacyPaymentPaid(ctx context.Context, orderID, paymentID string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE legacy_escrow_payments
		SET status = 'paid_out', payment_id = $2
		WHERE order_id = $1 AND status = 'ready_for_payout'
	`, orderID, paymentID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to settle legacy payment", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Legacy payment for order '%s' not awaiting payout", orderID), nil)
	}
	return nil
}

func (d Datasource) RecordPayoutRun(ctx context.Context, summary *model.PayoutRunSummary) error {
	itemsJSON, err := json.Marshal(summary.Items)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal payout run items", err)
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO payout_runs(run_id, source, processed, released, failed, skipped, items, started_at, ended_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, summary.RunID, summary.Source, summary.Processed, summary.Released, summary.Failed, summary.Skipped,
		itemsJSON, summary.StartedAt, summary.EndedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record payout run", err)
	}
	return nil
}

func (d Datasource) GetPayoutRuns(ctx context.Context, limit int) ([]*model.PayoutRunSummary, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT run_id, source, processed, released, failed, skipped, items, started_at, ended_at
		FROM payout_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve payout runs", err)
	}
	defer rows.Close()

	var summaries []*model.PayoutRunSummary
	for rows.Next() {
		summary := &model.PayoutRunSummary{}
		var itemsJSON []byte
		err = rows.Scan(&summary.RunID, &summary.Source, &summary.Processed, &summary.Released,
			&summary.Failed, &summary.Skipped, &itemsJSON, &summary.StartedAt, &summary.EndedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan payout run", err)
		}
		if len(itemsJSON) > 0 {
			if err := json.Unmarshal(itemsJSON, &summary.Items); err != nil {
				return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal payout run items", err)
			}
		}
		summaries = append(summaries, summary)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over payout runs", err)
	}
	return summaries, nil
}
