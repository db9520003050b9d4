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
package model

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/taskilo/escrow/model"
)

func (e *EscrowRequest) ValidateEscrowRequest() error {
	create := e.Action == ActionCreate
	return validation.ValidateStruct(e,
		validation.Field(&e.Action, validation.Required, validation.In(
			ActionCreate, ActionHold, ActionRelease, ActionEarlyRelease, ActionRefund, ActionDispute)),
		validation.Field(&e.EscrowID, validation.When(!create,
			validation.Required.Error("escrow_id is required for this action"))),
		validation.Field(&e.BuyerID, validation.When(create, validation.Required)),
		validation.Field(&e.ProviderID, validation.When(create, validation.Required)),
		validation.Field(&e.Amount, validation.When(create, validation.Required, validation.Min(int64(1)))),
		validation.Field(&e.Currency, validation.When(create, validation.Required, validation.Length(3, 3))),
		validation.Field(&e.ClearingDays, validation.Min(0)),
		validation.Field(&e.PaymentID, validation.When(e.Action == ActionHold,
			validation.Required.Error("payment_id is required to mark an escrow as held"))),
		validation.Field(&e.Reason, validation.When(e.Action == ActionDispute,
			validation.Required.Error("a dispute needs a reason"))),
		validation.Field(&e.OrderID, validation.By(func(value interface{}) error {
			if e.OrderID != "" && e.TempDraftID != "" {
				return errors.New("either order_id or temp_draft_id may be set, not both")
			}
			return nil
		})),
	)
}

func (d *CreateJobDraft) ValidateCreateJobDraft() error {
	return validation.ValidateStruct(d,
		validation.Field(&d.BuyerID, validation.Required),
		validation.Field(&d.ProviderID, validation.Required),
		validation.Field(&d.Title, validation.Required),
		validation.Field(&d.Amount, validation.Required, validation.Min(int64(1))),
		validation.Field(&d.Currency, validation.Required, validation.Length(3, 3)),
	)
}

func (p *CreateProvider) ValidateCreateProvider() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.DisplayName, validation.Required),
	)
}

func (t *IngestTransaction) ValidateIngestTransaction() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.TransactionID, validation.Required),
		validation.Field(&t.State, validation.Required, validation.In(
			model.EventStatePending, model.EventStateCompleted, model.EventStateDeclined,
			model.EventStateFailed, model.EventStateReverted)),
		validation.Field(&t.Direction, validation.Required, validation.In(model.DirectionIn, model.DirectionOut)),
		validation.Field(&t.Amount, validation.Required, validation.Min(int64(1))),
	)
}
