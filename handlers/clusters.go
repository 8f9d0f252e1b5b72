package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"go-attentionmap/db"
)

// ListClustersHandler returns active clusters with more than one member for
// map display. A single-event "cluster" is just the event's own marker; the
// store excludes those before applying the cap.
func ListClustersHandler(c *gin.Context, store db.Store) {
	var bounds *db.Bounds
	if raw := c.Query("bounds"); raw != "" {
		parts := strings.Split(raw, ",")
		if len(parts) != 4 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bounds must be lat1,lng1,lat2,lng2"})
			return
		}
		var vals [4]float64
		for i, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "bounds must be four numbers"})
				return
			}
			vals[i] = v
		}
		bounds = &db.Bounds{Lat1: vals[0], Lng1: vals[1], Lat2: vals[2], Lng2: vals[3]}
	}

	clusters, err := store.ListClusters(c.Request.Context(), bounds, 100)
	if err != nil {
		log.Printf("list clusters: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list clusters"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"clusters": clusters})
}

func GetClusterHandler(c *gin.Context, store db.Store) {
	cluster, err := store.GetCluster(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "cluster not found"})
			return
		}
		log.Printf("get cluster %s: %v", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load cluster"})
		return
	}
	c.JSON(http.StatusOK, cluster)
}

// StatsHandler serves the dashboard summary.
func StatsHandler(c *gin.Context, store db.Store) {
	stats, err := store.Stats(c.Request.Context())
	if err != nil {
		log.Printf("stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
