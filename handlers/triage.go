package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go-attentionmap/db"
	"go-attentionmap/gamification"
	"go-attentionmap/types"
)

type StatusUpdateRequest struct {
	Status     string `json:"status"`
	ReviewedBy string `json:"reviewedBy"`
}

// UpdateEventStatusHandler applies a triage decision, credits the reporter
// and broadcasts the change. The notification goes out only after the store
// committed the new status.
func UpdateEventStatusHandler(c *gin.Context, store db.Store, publisher Publisher, gamify *gamification.Service) {
	var req StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	newStatus := types.Status(req.Status)
	if !types.ValidStatus(newStatus) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}

	id := c.Param("id")
	// The prior status comes out of the same transaction as the write, so
	// two racing updates to the same status can never both see the
	// transition and double-credit the reporter.
	updated, previous, err := store.UpdateEventStatus(c.Request.Context(), id, newStatus, req.ReviewedBy, time.Now().UTC())
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
			return
		}
		log.Printf("update event %s status: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update status"})
		return
	}

	wasVerified := newStatus == types.StatusVerified && previous != types.StatusVerified
	wasRejected := newStatus == types.StatusFalseAlarm && previous != types.StatusFalseAlarm
	if wasVerified {
		gamify.OnReportVerified(c.Request.Context(), updated.ReporterID, updated.Severity == types.Critical)
	} else if wasRejected {
		gamify.OnReportRejected(c.Request.Context(), updated.ReporterID)
	}

	publisher.Publish(types.NotifyEvent(types.EventUpdated, updated))

	c.JSON(http.StatusOK, updated)
}
