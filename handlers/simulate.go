package handlers

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"go-attentionmap/clustering"
	"go-attentionmap/types"
)

type simulatedReport struct {
	Lat      float64
	Long     float64
	Category types.Category
	Severity types.Severity
	Offset   time.Duration
}

// Two reports near Warsaw city center that should cluster, one far away that
// should not.
var simulationScenario = []simulatedReport{
	{Lat: 52.2297, Long: 21.0122, Category: types.Emergency, Severity: types.High},
	{Lat: 52.5000, Long: 21.5000, Category: types.Traffic, Severity: types.Low, Offset: 60 * time.Second},
	{Lat: 52.2299, Long: 21.0123, Category: types.Emergency, Severity: types.High, Offset: 120 * time.Second},
}

// SimulateHandler pushes the canned scenario through the real pipeline so a
// dashboard can be demoed without live reports. Enabled only with DEMO_MODE.
func SimulateHandler(c *gin.Context, engine *clustering.Engine) {
	if os.Getenv("DEMO_MODE") == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "simulation requires DEMO_MODE"})
		return
	}

	log.Println("Starting scenario simulation")
	base := time.Now().UTC().Add(-5 * time.Minute)

	var results []gin.H
	for _, r := range simulationScenario {
		event := &types.Event{
			ID:        uuid.NewString(),
			Lat:       r.Lat,
			Long:      r.Long,
			CreatedAt: base.Add(r.Offset),
			Category:  r.Category,
			Severity:  r.Severity,
			Status:    types.StatusNew,
		}
		assignment, err := engine.AssignCluster(c.Request.Context(), event)
		if err != nil {
			log.Printf("simulate: assign %s: %v", event.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "simulation aborted"})
			return
		}
		results = append(results, gin.H{
			"eventId":        assignment.Event.ID,
			"clusterId":      assignment.Cluster.ID,
			"createdCluster": assignment.CreatedCluster,
		})
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}
