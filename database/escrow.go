package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/lib/pq"
	"github.com/taskilo/escrow/internal/apierror"
	"github.com/taskilo/escrow/model"
)

const escrowColumns = `escrow_id, order_id, buyer_id, provider_id, amount, currency, status, payment_reference,
	payment_id, counterparty_name, clearing_days, clearing_ends_at, temp_draft_id, final_order_id,
	review_reason, payout_failure, dispute_reason, refund_reason, refund_payment_id, meta_data,
	created_at, paid_at, released_at, refunded_at, disputed_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanEscrow maps one escrows row onto the model. Nullable columns come back
// through sql.Null wrappers so pre-hold rows scan cleanly.
func scanEscrow(row rowScanner) (*model.Escrow, error) {
	escrow := &model.Escrow{}
	var (
		orderID, paymentID, counterparty             sql.NullString
		tempDraftID, finalOrderID                    sql.NullString
		reviewReason, payoutFailure                  sql.NullString
		disputeReason, refundReason, refundPaymentID sql.NullString
		clearingEndsAt, paidAt                       sql.NullTime
		releasedAt, refundedAt, disputedAt           sql.NullTime
		metaDataJSON                                 []byte
	)

	err := row.Scan(
		&escrow.EscrowID, &orderID, &escrow.BuyerID, &escrow.ProviderID, &escrow.Amount,
		&escrow.Currency, &escrow.Status, &escrow.PaymentReference, &paymentID, &counterparty,
		&escrow.ClearingDays, &clearingEndsAt, &tempDraftID, &finalOrderID, &reviewReason,
		&payoutFailure, &disputeReason, &refundReason, &refundPaymentID, &metaDataJSON,
		&escrow.CreatedAt, &paidAt, &releasedAt, &refundedAt, &disputedAt, &escrow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	escrow.OrderID = orderID.String
	escrow.PaymentID = paymentID.String
	escrow.CounterpartyName = counterparty.String
	escrow.TempDraftID = tempDraftID.String
	escrow.FinalOrderID = finalOrderID.String
	escrow.ReviewReason = reviewReason.String
	escrow.PayoutFailure = payoutFailure.String
	escrow.DisputeReason = disputeReason.String
	escrow.RefundReason = refundReason.String
	escrow.RefundPaymentID = refundPaymentID.String
	if clearingEndsAt.Valid {
		escrow.ClearingEndsAt = &clearingEndsAt.Time
	}
	if paidAt.Valid {
		escrow.PaidAt = &paidAt.Time
	}
	if releasedAt.Valid {
		escrow.ReleasedAt = &releasedAt.Time
	}
	if refundedAt.Valid {
		escrow.RefundedAt = &refundedAt.Time
	}
	if disputedAt.Valid {
		escrow.DisputedAt = &disputedAt.Time
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &escrow.MetaData); err != nil {
			return nil, err
		}
	}
	return escrow, nil
}

func (d Datasource) CreateEscrow(ctx context.Context, escrow *model.Escrow) (*model.Escrow, error) {
	ctx, span := otel.Tracer("escrow.database").Start(ctx, "Saving escrow to db")
	defer span.End()

	metaDataJSON, err := json.Marshal(escrow.MetaData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	escrow.CreatedAt = time.Now()
	escrow.UpdatedAt = escrow.CreatedAt

	_, err = d.Conn.ExecContext(ctx,
		`INSERT INTO escrows(escrow_id,order_id,buyer_id,provider_id,amount,currency,status,payment_reference,temp_draft_id,clearing_days,meta_data,created_at,updated_at)
		 VALUES ($1,NULLIF($2,''),$3,$4,$5,$6,$7,$8,NULLIF($9,''),$10,$11,$12,$13)`,
		escrow.EscrowID, escrow.OrderID, escrow.BuyerID, escrow.ProviderID, escrow.Amount, escrow.Currency,
		escrow.Status, escrow.PaymentReference, escrow.TempDraftID, escrow.ClearingDays, metaDataJSON,
		escrow.CreatedAt, escrow.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, apierror.NewAPIError(apierror.ErrConflict, "Escrow with this payment reference already exists", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record escrow", err)
	}

	return escrow, nil
}

func (d Datasource) GetEscrow(ctx context.Context, id string) (*model.Escrow, error) {
	row := d.Conn.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM escrows WHERE escrow_id = $1
	`, escrowColumns), id)

	escrow, err := scanEscrow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Escrow with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve escrow", err)
	}
	return escrow, nil
}

func (d Datasource) GetEscrowByReference(ctx context.Context, reference string) (*model.Escrow, error) {
	ctx, span := otel.Tracer("escrow.database").Start(ctx, "Getting escrow from db by payment reference")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM escrows WHERE payment_reference = $1
	`, escrowColumns), reference)

	escrow, err := scanEscrow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Escrow with reference '%s' not found", reference), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve escrow", err)
	}
	return escrow, nil
}

func (d Datasource) queryEscrows(ctx context.Context, where string, args ...interface{}) ([]*model.Escrow, error) {
	rows, err := d.Conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM escrows %s
	`, escrowColumns, where), args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve escrows", err)
	}
	defer rows.Close()

	var escrows []*model.Escrow
	for rows.Next() {
		escrow, err := scanEscrow(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan escrow data", err)
		}
		escrows = append(escrows, escrow)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over escrows", err)
	}
	return escrows, nil
}

func (d Datasource) GetEscrowsByOrder(ctx context.Context, orderID string) ([]*model.Escrow, error) {
	return d.queryEscrows(ctx, `WHERE order_id = $1 OR final_order_id = $1 ORDER BY created_at DESC`, orderID)
}

func (d Datasource) GetEscrowsByBuyer(ctx context.Context, buyerID string) ([]*model.Escrow, error) {
	return d.queryEscrows(ctx, `WHERE buyer_id = $1 ORDER BY created_at DESC`, buyerID)
}

func (d Datasource) GetEscrowsByProvider(ctx context.Context, providerID string) ([]*model.Escrow, error) {
	return d.queryEscrows(ctx, `WHERE provider_id = $1 ORDER BY created_at DESC`, providerID)
}

func (d Datasource) GetPendingEscrows(ctx context.Context, providerID string) ([]*model.Escrow, error) {
	return d.queryEscrows(ctx, `WHERE provider_id = $1 AND status = 'held' ORDER BY clearing_ends_at ASC`, providerID)
}

func (d Datasource) GetEscrowSummary(ctx context.Context, providerID string) ([]model.EscrowSummary, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(amount), 0)
		FROM escrows
		WHERE provider_id = $1
		GROUP BY status
	`, providerID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve escrow summary", err)
	}
	defer rows.Close()

	var summaries []model.EscrowSummary
	for rows.Next() {
		var summary model.EscrowSummary
		if err := rows.Scan(&summary.Status, &summary.Count, &summary.TotalAmount); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan escrow summary", err)
		}
		summaries = append(summaries, summary)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over escrow summary", err)
	}
	return summaries, nil
}

// invalidTransitionError re-reads the row after a compare-and-set matched
// nothing, so the caller learns whether the escrow is missing or just in the
// wrong state.
func (d Datasource) invalidTransitionError(ctx context.Context, id, target string) error {
	current, err := d.GetEscrow(ctx, id)
	if err != nil {
		return err
	}
	return apierror.NewAPIError(apierror.ErrInvalidState,
		fmt.Sprintf("Escrow '%s' cannot move to '%s' from status '%s'", id, target, current.Status),
		map[string]string{"current_status": current.Status})
}

func (d Datasource) ReleaseEscrow(ctx context.Context, id string, paymentID string, from []string) (*model.Escrow, error) {
	ctx, span := otel.Tracer("escrow.database").Start(ctx, "Releasing escrow")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE escrows
		SET status = 'released', payment_id = $3, released_at = NOW(), payout_failure = NULL, updated_at = NOW()
		WHERE escrow_id = $1 AND status = ANY($2)
	`, id, pq.Array(from), paymentID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to release escrow", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return nil, d.invalidTransitionError(ctx, id, model.StatusReleased)
	}
	return d.GetEscrow(ctx, id)
}

func (d Datasource) RefundEscrow(ctx context.Context, id, paymentID, reason string, from []string) (*model.Escrow, error) {
	ctx, span := otel.Tracer("escrow.database").Start(ctx, "Refunding escrow")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE escrows
		SET status = 'refunded', refund_payment_id = NULLIF($3,''), refund_reason = NULLIF($4,''), refunded_at = NOW(), updated_at = NOW()
		WHERE escrow_id = $1 AND status = ANY($2)
	`, id, pq.Array(from), paymentID, reason)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to refund escrow", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return nil, d.invalidTransitionError(ctx, id, model.StatusRefunded)
	}
	return d.GetEscrow(ctx, id)
}

func (d Datasource) DisputeEscrow(ctx context.Context, id, reason string) (*model.Escrow, error) {
	ctx, span := otel.Tracer("escrow.database").Start(ctx, "Disputing escrow")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE escrows
		SET status = 'disputed', dispute_reason = $2, disputed_at = NOW(), updated_at = NOW()
		WHERE escrow_id = $1 AND status = 'held'
	`, id, reason)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to dispute escrow", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return nil, d.invalidTransitionError(ctx, id, model.StatusDisputed)
	}
	return d.GetEscrow(ctx, id)
}

func (d Datasource) FlagEscrowForReview(ctx context.Context, id, reason string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE escrows SET review_reason = $2, updated_at = NOW() WHERE escrow_id = $1
	`, id, reason)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to flag escrow for review", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Escrow with ID '%s' not found", id), nil)
	}
	return nil
}

func (d Datasource) SetEscrowPayoutFailure(ctx context.Context, id, reason string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE escrows SET payout_failure = $2, updated_at = NOW() WHERE escrow_id = $1
	`, id, reason)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record payout failure", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Escrow with ID '%s' not found", id), nil)
	}
	return nil
}

// HoldEscrowAndConvertDraft moves an escrow from created to held and, when a
// draft is attached, materializes the order in the same SQL transaction. The
// status update is the idempotency anchor: a redelivered webhook matches
// zero rows and no side effect runs twice.
func (d Datasource) HoldEscrowAndConvertDraft(ctx context.Context, hold HoldParams) (*model.Escrow, error) {
	ctx, span := otel.Tracer("escrow.database").Start(ctx, "Holding escrow and converting draft")
	defer span.End()

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE escrows
		SET status = 'held', payment_id = $2, counterparty_name = NULLIF($3,''), review_reason = NULLIF($4,''),
		    paid_at = $5, clearing_ends_at = $6, updated_at = NOW()
		WHERE escrow_id = $1 AND status = 'created'
	`, hold.EscrowID, hold.PaymentID, hold.CounterpartyName, hold.ReviewReason, hold.PaidAt, hold.ClearingEndsAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to hold escrow", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		_ = tx.Rollback()
		current, err := d.GetEscrow(ctx, hold.EscrowID)
		if err != nil {
			return nil, err
		}
		if model.IsHeldOrBeyond(current.Status) {
			return current, apierror.NewAPIError(apierror.ErrConflict,
				fmt.Sprintf("Escrow '%s' already holds funds", hold.EscrowID),
				map[string]string{"current_status": current.Status})
		}
		return nil, apierror.NewAPIError(apierror.ErrInvalidState,
			fmt.Sprintf("Escrow '%s' cannot move to 'held' from status '%s'", hold.EscrowID, current.Status),
			map[string]string{"current_status": current.Status})
	}

	var tempDraftID sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT temp_draft_id FROM escrows WHERE escrow_id = $1`, hold.EscrowID).Scan(&tempDraftID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read escrow draft link", err)
	}

	if tempDraftID.Valid && tempDraftID.String != "" {
		orderID, err := convertDraftTx(ctx, tx, tempDraftID.String, hold)
		if err != nil {
			return nil, err
		}
		if orderID != "" {
			_, err = tx.ExecContext(ctx, `
				UPDATE escrows SET order_id = $2, final_order_id = $2, updated_at = NOW()
				WHERE escrow_id = $1 AND final_order_id IS NULL
			`, hold.EscrowID, orderID)
			if err != nil {
				return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to link order to escrow", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit hold transaction", err)
	}

	return d.GetEscrow(ctx, hold.EscrowID)
}

// convertDraftTx converts an open draft into an order. A draft that already
// converted hands back its existing order id so redelivery can never create
// a second order.
func convertDraftTx(ctx context.Context, tx *sql.Tx, draftID string, hold HoldParams) (string, error) {
	var status string
	var convertedOrderID sql.NullString
	var buyerID, providerID, currency string
	var amount int64
	err := tx.QueryRowContext(ctx, `
		SELECT status, converted_order_id, buyer_id, provider_id, amount, currency
		FROM job_drafts WHERE draft_id = $1 FOR UPDATE
	`, draftID).Scan(&status, &convertedOrderID, &buyerID, &providerID, &amount, &currency)
	if err != nil {
		if err == sql.ErrNoRows {
			// draft purged out-of-band, the hold still stands
			return "", nil
		}
		return "", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read job draft", err)
	}

	if status == model.DraftStatusConverted {
		return convertedOrderID.String, nil
	}
	if status != model.DraftStatusOpen {
		return "", nil
	}

	orderID := model.GenerateUUIDWithSuffix("ord")
	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders(order_id, draft_id, buyer_id, provider_id, amount, currency, status, payment_status, payment_id, paid_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'active', 'paid', $7, $8, NOW(), NOW())
	`, orderID, draftID, buyerID, providerID, amount, currency, hold.PaymentID, hold.PaidAt)
	if err != nil {
		return "", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create order from draft", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE job_drafts SET status = 'converted', converted_order_id = $2, updated_at = NOW()
		WHERE draft_id = $1
	`, draftID, orderID)
	if err != nil {
		return "", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark draft converted", err)
	}

	return orderID, nil
}
