package db

import (
	"context"
	"errors"
	"time"

	"go-attentionmap/types"
)

var (
	// ErrNotFound means the requested document does not exist.
	ErrNotFound = errors.New("db: not found")
	// ErrConflict means a transaction lost a race and may be retried.
	ErrConflict = errors.New("db: transaction conflict")
)

// Bounds is a map rectangle: lat1, lng1, lat2, lng2 (corner order free).
type Bounds struct {
	Lat1, Lng1, Lat2, Lng2 float64
}

// EventFilter narrows ListEvents. Zero values mean "no filter".
type EventFilter struct {
	Bounds     *Bounds
	Statuses   []types.Status
	Severities []types.Severity
	Categories []types.Category
	Since      *time.Time
	Limit      int
	Offset     int
}

// Stats is the dashboard summary.
type Stats struct {
	TotalEvents      int            `json:"totalEvents"`
	EventsByStatus   map[string]int `json:"eventsByStatus"`
	EventsByCategory map[string]int `json:"eventsByCategory"`
	EventsBySeverity map[string]int `json:"eventsBySeverity"`
	ActiveClusters   int            `json:"activeClusters"`
}

// Tx is the read-modify-write surface available inside a transaction. All
// reads must precede writes (the Firestore implementation enforces this).
type Tx interface {
	GetEvent(id string) (*types.Event, error)
	// NearbyEvents returns events created at or after since whose location is
	// within radiusMeters of the given point.
	NearbyEvents(lat, long float64, radiusMeters int, since time.Time) ([]types.Event, error)
	GetCluster(id string) (*types.Cluster, error)
	// ClusterEvents returns every event currently assigned to the cluster.
	ClusterEvents(clusterID string) ([]types.Event, error)
	PutEvent(e *types.Event) error
	PutCluster(c *types.Cluster) error
}

// Store is the persistence contract. Two concurrent transactions touching the
// same neighborhood must not both commit; the loser gets ErrConflict.
type Store interface {
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error

	GetEvent(ctx context.Context, id string) (*types.Event, error)
	ListEvents(ctx context.Context, f EventFilter) ([]types.Event, int, error)
	// UpdateEventStatus stamps the new status and review fields in one
	// transaction and also returns the status the event had before the
	// update, so callers can act on the transition exactly once.
	UpdateEventStatus(ctx context.Context, id string, status types.Status, reviewedBy string, reviewedAt time.Time) (*types.Event, types.Status, error)

	GetCluster(ctx context.Context, id string) (*types.Cluster, error)
	// ListClusters returns active clusters with more than one member; the
	// limit applies after that filter so singletons can never crowd out a
	// real cluster.
	ListClusters(ctx context.Context, bounds *Bounds, limit int) ([]types.Cluster, error)

	Stats(ctx context.Context) (*Stats, error)

	GetProfile(ctx context.Context, reporterID string) (*types.Profile, error)
	SaveProfile(ctx context.Context, p *types.Profile) error
}
