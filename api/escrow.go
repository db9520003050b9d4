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
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/taskilo/escrow/api/middleware"
	model2 "github.com/taskilo/escrow/api/model"
	"github.com/taskilo/escrow/internal/apierror"
	"github.com/taskilo/escrow/model"
)

// EscrowLifecycle is the single lifecycle endpoint. The action verb in the
// body selects what happens: create opens a new escrow, every other verb
// applies a transition; authorization depends on the verb and on who the
// caller is.
//
// Responses:
// - 400 Bad Request: On malformed bodies or unknown actions.
// - 403 Forbidden: When the caller may not perform the action.
// - 409 Conflict: When the escrow's current status refuses the transition.
// - 201 Created / 200 OK: With the escrow after the action.
func (a Api) EscrowLifecycle(c *gin.Context) {
	var req model2.EscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid input"})
		return
	}
	if err := req.ValidateEscrowRequest(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	actor := middleware.GetActor(c)
	ctx := c.Request.Context()

	if req.Action == model2.ActionCreate {
		escrow, session, err := a.engine.CreateEscrow(ctx, actor, req.ToEscrow(), req.WithCheckout)
		if err != nil {
			a.respondError(c, err)
			return
		}
		resp := gin.H{"success": true, "escrow": escrow}
		if session != nil {
			resp["checkout_session"] = session
		}
		c.JSON(http.StatusCreated, resp)
		return
	}

	var (
		escrow *model.Escrow
		err    error
	)
	switch req.Action {
	case model2.ActionHold:
		escrow, err = a.engine.MarkAsHeld(ctx, actor, req.EscrowID, req.PaymentID, req.CounterpartyName)
	case model2.ActionRelease:
		escrow, err = a.engine.Release(ctx, actor, req.EscrowID)
	case model2.ActionEarlyRelease:
		escrow, err = a.engine.EarlyRelease(ctx, actor, req.EscrowID)
	case model2.ActionRefund:
		escrow, err = a.engine.Refund(ctx, actor, req.EscrowID, req.Reason)
	case model2.ActionDispute:
		escrow, err = a.engine.Dispute(ctx, actor, req.EscrowID, req.Reason)
	}
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "escrow": escrow})
}

// GetEscrows answers every escrow read. Exactly one selector applies:
// escrow_id for a single row, order_id for an order's escrows, or type plus
// party_id for a party's view (buyer, provider, pending, summary).
func (a Api) GetEscrows(c *gin.Context) {
	actor := middleware.GetActor(c)
	ctx := c.Request.Context()

	if id := c.Query("escrow_id"); id != "" {
		escrow, err := a.engine.GetEscrow(ctx, actor, id)
		if err != nil {
			a.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "escrow": escrow})
		return
	}

	if orderID := c.Query("order_id"); orderID != "" {
		escrows, err := a.engine.GetEscrowsByOrder(ctx, actor, orderID)
		if err != nil {
			a.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "escrows": escrows})
		return
	}

	partyID := c.Query("party_id")
	if partyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "one of escrow_id, order_id or type+party_id is required"})
		return
	}

	switch c.Query("type") {
	case "buyer":
		escrows, err := a.engine.GetEscrowsByBuyer(ctx, actor, partyID)
		if err != nil {
			a.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "escrows": escrows})
	case "provider":
		escrows, err := a.engine.GetEscrowsByProvider(ctx, actor, partyID)
		if err != nil {
			a.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "escrows": escrows})
	case "pending":
		escrows, err := a.engine.GetPendingEscrows(ctx, actor, partyID)
		if err != nil {
			a.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "escrows": escrows})
	case "summary":
		summary, err := a.engine.GetProviderSummary(ctx, actor, partyID)
		if err != nil {
			a.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "summary": summary})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "type must be one of buyer, provider, pending or summary"})
	}
}

// CreateJobDraft stores a provisional job ahead of its escrow being funded.
func (a Api) CreateJobDraft(c *gin.Context) {
	var newDraft model2.CreateJobDraft
	if err := c.ShouldBindJSON(&newDraft); err != nil {
		logrus.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid input"})
		return
	}
	if err := newDraft.ValidateCreateJobDraft(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	draft, err := a.engine.CreateJobDraft(c.Request.Context(), middleware.GetActor(c), newDraft.ToJobDraft())
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "draft": draft})
}

// CreateProvider registers a payee profile synced from the platform.
func (a Api) CreateProvider(c *gin.Context) {
	var newProvider model2.CreateProvider
	if err := c.ShouldBindJSON(&newProvider); err != nil {
		logrus.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid input"})
		return
	}
	if err := newProvider.ValidateCreateProvider(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	provider, err := a.engine.CreateProvider(c.Request.Context(), middleware.GetActor(c), newProvider.ToProvider())
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "provider": provider})
}

// respondError maps service errors to HTTP responses, exposing the
// structured code and details of APIErrors.
func (a Api) respondError(c *gin.Context, err error) {
	status := apierror.MapErrorToHTTPStatus(err)
	if apiErr, ok := err.(apierror.APIError); ok {
		c.JSON(status, gin.H{"success": false, "error": apiErr.Message, "code": apiErr.Code, "details": apiErr.Details})
		return
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}
