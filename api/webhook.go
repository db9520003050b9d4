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

	model2 "github.com/taskilo/escrow/api/model"
	"github.com/taskilo/escrow/internal/notification"
)

// IngestTransaction receives a transaction notification from the payment
// proxy and hands it to reconciliation. Once the request has authenticated,
// the answer is always 200: the proxy redelivers on anything else, and
// redelivery of an already processed event is a no-op anyway. Internal
// failures are flagged in the body and reported to the operators instead.
func (a Api) IngestTransaction(c *gin.Context) {
	var ingest model2.IngestTransaction
	if err := c.ShouldBindJSON(&ingest); err != nil {
		logrus.Error(err)
		c.JSON(http.StatusOK, gin.H{"received": true, "processed": false, "reason": "malformed payload"})
		return
	}
	if err := ingest.ValidateIngestTransaction(); err != nil {
		c.JSON(http.StatusOK, gin.H{"received": true, "processed": false, "reason": err.Error()})
		return
	}

	result, err := a.engine.ProcessTransactionEvent(c.Request.Context(), ingest.ToTransactionEvent())
	if err != nil {
		logrus.Errorf("reconciliation of %s failed: %v", ingest.TransactionID, err)
		notification.NotifyError(err)
		c.JSON(http.StatusOK, gin.H{"received": true, "processed": false, "reason": "internal error"})
		return
	}
	c.JSON(http.StatusOK, result)
}
