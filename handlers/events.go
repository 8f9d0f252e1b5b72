package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"go-attentionmap/clustering"
	"go-attentionmap/db"
	"go-attentionmap/gamification"
	"go-attentionmap/geo"
	"go-attentionmap/metrics"
	"go-attentionmap/types"
)

// CreateEventRequest is a pre-classified citizen report. Category and
// severity come from the upstream classifier; this service never classifies.
type CreateEventRequest struct {
	Lat          float64 `json:"lat"`
	Long         float64 `json:"long"`
	Category     string  `json:"category"`
	Severity     int     `json:"severity"`
	Description  string  `json:"description"`
	Address      string  `json:"address"`
	ReporterID   string  `json:"reporterId"`
	MediaURL     string  `json:"mediaUrl"`
	MediaType    string  `json:"mediaType"`
	ThumbnailURL string  `json:"thumbnailUrl"`
}

// CreateEventHandler validates the report, persists it through the cluster
// engine and answers 202 with the resulting assignment.
func CreateEventHandler(c *gin.Context, engine *clustering.Engine, gamify *gamification.Service) {
	var req CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	// Reject before anything touches the store; no partial mutation.
	if !geo.ValidCoordinates(req.Lat, req.Long) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat must be in [-90,90] and long in [-180,180]"})
		return
	}
	if !types.ValidCategory(types.Category(req.Category)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category"})
		return
	}
	if req.Severity < int(types.Low) || req.Severity > int(types.Critical) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "severity must be between 1 and 4"})
		return
	}
	if req.MediaType != "" && req.MediaType != "image" && req.MediaType != "video" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mediaType must be image or video"})
		return
	}

	event := &types.Event{
		ID:           uuid.NewString(),
		Lat:          req.Lat,
		Long:         req.Long,
		CreatedAt:    time.Now().UTC(),
		ReporterID:   req.ReporterID,
		Address:      req.Address,
		Description:  req.Description,
		MediaURL:     req.MediaURL,
		MediaType:    req.MediaType,
		ThumbnailURL: req.ThumbnailURL,
		Category:     types.Category(req.Category),
		Severity:     types.Severity(req.Severity),
		Status:       types.StatusNew,
	}

	assignment, err := engine.AssignCluster(c.Request.Context(), event)
	if err != nil {
		log.Printf("assign cluster for event %s: %v", event.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist event, retry the upload"})
		return
	}

	metrics.IncEventsIngested()
	gamify.OnReportSubmitted(c.Request.Context(), event.ReporterID, event.CreatedAt)

	c.JSON(http.StatusAccepted, gin.H{
		"event":          assignment.Event,
		"cluster":        assignment.Cluster,
		"createdCluster": assignment.CreatedCluster,
		"mergedClusters": assignment.MergedClusterIDs,
	})
}

// ListEventsHandler serves the initial-state snapshot for map and feed views.
func ListEventsHandler(c *gin.Context, store db.Store) {
	filter, err := parseEventFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	events, total, err := store.ListEvents(c.Request.Context(), filter)
	if err != nil {
		log.Printf("list events: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func GetEventHandler(c *gin.Context, store db.Store) {
	event, err := store.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
			return
		}
		log.Printf("get event %s: %v", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load event"})
		return
	}
	c.JSON(http.StatusOK, event)
}

func parseEventFilter(c *gin.Context) (db.EventFilter, error) {
	var f db.EventFilter

	if bounds := c.Query("bounds"); bounds != "" {
		parts := strings.Split(bounds, ",")
		if len(parts) != 4 {
			return f, errors.New("bounds must be lat1,lng1,lat2,lng2")
		}
		var vals [4]float64
		for i, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return f, errors.New("bounds must be four numbers")
			}
			vals[i] = v
		}
		f.Bounds = &db.Bounds{Lat1: vals[0], Lng1: vals[1], Lat2: vals[2], Lng2: vals[3]}
	}

	for _, s := range splitParam(c.Query("status")) {
		st := types.Status(s)
		if !types.ValidStatus(st) {
			return f, errors.New("unknown status " + s)
		}
		f.Statuses = append(f.Statuses, st)
	}
	for _, s := range splitParam(c.Query("severity")) {
		v, err := strconv.Atoi(s)
		if err != nil || v < int(types.Low) || v > int(types.Critical) {
			return f, errors.New("severity values must be 1-4")
		}
		f.Severities = append(f.Severities, types.Severity(v))
	}
	for _, s := range splitParam(c.Query("category")) {
		cat := types.Category(s)
		if !types.ValidCategory(cat) {
			return f, errors.New("unknown category " + s)
		}
		f.Categories = append(f.Categories, cat)
	}

	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return f, errors.New("since must be RFC3339")
		}
		f.Since = &t
	}

	f.Limit = intQuery(c, "limit", 100)
	if f.Limit > 500 {
		f.Limit = 500
	}
	f.Offset = intQuery(c, "offset", 0)
	return f, nil
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
