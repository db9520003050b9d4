package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskilo/escrow/internal/apierror"
	"github.com/taskilo/escrow/model"
)

func (d Datasource) CreateJobDraft(ctx context.Context, draft *model.JobDraft) (*model.JobDraft, error) {
	payloadJSON, err := json.Marshal(draft.Payload)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal draft payload", err)
	}

	draft.CreatedAt = time.Now()
	draft.UpdatedAt = draft.CreatedAt
	if draft.Status == "" {
		draft.Status = model.DraftStatusOpen
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO job_drafts(draft_id, buyer_id, provider_id, title, amount, currency, status, payload, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, draft.DraftID, draft.BuyerID, draft.ProviderID, draft.Title, draft.Amount, draft.Currency,
		draft.Status, payloadJSON, draft.CreatedAt, draft.UpdatedAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record job draft", err)
	}
	return draft, nil
}

func (d Datasource) GetJobDraft(ctx context.Context, id string) (*model.JobDraft, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT draft_id, buyer_id, provider_id, title, amount, currency, status, converted_order_id, payload, created_at, updated_at
		FROM job_drafts WHERE draft_id = $1
	`, id)

	draft := &model.JobDraft{}
	var convertedOrderID sql.NullString
	var title sql.NullString
	var payloadJSON []byte
	err := row.Scan(&draft.DraftID, &draft.BuyerID, &draft.ProviderID, &title, &draft.Amount,
		&draft.Currency, &draft.Status, &convertedOrderID, &payloadJSON, &draft.CreatedAt, &draft.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Job draft with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve job draft", err)
	}
	draft.Title = title.String
	draft.ConvertedOrderID = convertedOrderID.String
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &draft.Payload); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal draft payload", err)
		}
	}
	return draft, nil
}

// MarkOrderPaid flips an order's payment status once its escrow holds the
// money. Already-paid orders match zero rows, so a redelivered event cannot
// overwrite the first payment.
func (d Datasource) MarkOrderPaid(ctx context.Context, orderID, paymentID string, paidAt time.Time) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = 'paid', payment_id = $2, paid_at = $3, updated_at = NOW()
		WHERE order_id = $1 AND payment_status = 'unpaid'
	`, orderID, paymentID, paidAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark order paid", err)
	}
	return nil
}

func (d Datasource) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT order_id, draft_id, buyer_id, provider_id, amount, currency, status, payment_status, payment_id, paid_at, created_at, updated_at
		FROM orders WHERE order_id = $1
	`, id)

	order := &model.Order{}
	var draftID, paymentID sql.NullString
	var paidAt sql.NullTime
	err := row.Scan(&order.OrderID, &draftID, &order.BuyerID, &order.ProviderID, &order.Amount,
		&order.Currency, &order.Status, &order.PaymentStatus, &paymentID, &paidAt, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Order with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve order", err)
	}
	order.DraftID = draftID.String
	order.PaymentID = paymentID.String
	if paidAt.Valid {
		order.PaidAt = &paidAt.Time
	}
	return order, nil
}
