package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	model2 "github.com/taskilo/escrow/api/model"
	"github.com/taskilo/escrow/model"
)

// payoutActor represents the holder of the payout key. The key itself is
// the authorization, so the service sees an admin.
var payoutActor = model.Actor{ID: "payout-key", Role: model.RoleAdmin}

// RunPayout triggers a payout batch run. The default is synchronous and
// answers with the run summary; async hands the run to the background
// worker and answers 202 with the run ID to look up later. A run already
// in progress or queued answers 409.
func (a Api) RunPayout(c *gin.Context) {
	var run model2.RunPayout
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&run); err != nil {
			logrus.Error(err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
			return
		}
	}

	if run.Async {
		runID, err := a.engine.QueuePayoutRun(c.Request.Context(), run.RunID)
		if err != nil {
			a.respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"success": true, "run_id": runID, "queued": true})
		return
	}

	summary, err := a.engine.RunPayoutBatch(c.Request.Context(), run.RunID)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetPayoutRuns lists recent payout run summaries, newest first.
func (a Api) GetPayoutRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	runs, err := a.engine.GetPayoutRuns(c.Request.Context(), payoutActor, limit)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, runs)
}
