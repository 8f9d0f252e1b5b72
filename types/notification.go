package types

import "time"

type NotificationType string

const (
	EventCreated   NotificationType = "event_created"
	EventUpdated   NotificationType = "event_updated"
	ClusterUpdated NotificationType = "cluster_updated"
)

// EventPayload carries enough denormalized event state for a client to update
// its map view without a follow-up fetch.
type EventPayload struct {
	ID        string    `json:"id"`
	Lat       float64   `json:"lat"`
	Long      float64   `json:"long"`
	CreatedAt time.Time `json:"createdAt"`
	Category  Category  `json:"category"`
	Severity  Severity  `json:"severity"`
	Status    Status    `json:"status"`
	ClusterID string    `json:"clusterId,omitempty"`
}

type ClusterPayload struct {
	ID               string    `json:"id"`
	Lat              float64   `json:"lat"`
	Long             float64   `json:"long"`
	EventCount       int       `json:"eventCount"`
	ComputedSeverity Severity  `json:"computedSeverity"`
	FirstEventAt     time.Time `json:"firstEventAt"`
	LastEventAt      time.Time `json:"lastEventAt"`
	Active           bool      `json:"active"`
}

// ChangeNotification is an immutable value describing one committed mutation.
// It only exists on the distribution path; the Event/Cluster row is the
// durable source of truth.
type ChangeNotification struct {
	Type    NotificationType `json:"type"`
	Event   *EventPayload    `json:"event,omitempty"`
	Cluster *ClusterPayload  `json:"cluster,omitempty"`
}

// NotifyEvent builds the denormalized payload for e.
func NotifyEvent(t NotificationType, e *Event) ChangeNotification {
	return ChangeNotification{
		Type: t,
		Event: &EventPayload{
			ID:        e.ID,
			Lat:       e.Lat,
			Long:      e.Long,
			CreatedAt: e.CreatedAt,
			Category:  e.Category,
			Severity:  e.Severity,
			Status:    e.Status,
			ClusterID: e.ClusterID,
		},
	}
}

// NotifyCluster builds the denormalized payload for c.
func NotifyCluster(c *Cluster) ChangeNotification {
	return ChangeNotification{
		Type: ClusterUpdated,
		Cluster: &ClusterPayload{
			ID:               c.ID,
			Lat:              c.Lat,
			Long:             c.Long,
			EventCount:       c.EventCount,
			ComputedSeverity: c.ComputedSeverity,
			FirstEventAt:     c.FirstEventAt,
			LastEventAt:      c.LastEventAt,
			Active:           c.Active,
		},
	}
}
