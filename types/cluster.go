package types

import "time"

// Cluster groups events that are geographically and temporally close enough
// to plausibly be the same incident. All derived fields (centroid, counts,
// timestamps, severity) are recomputed from the full member set on every
// change, never adjusted incrementally. Clusters are never deleted: a cluster
// that loses a merge keeps its row with Active=false and MergedInto set.
type Cluster struct {
	ID   string  `firestore:"-" json:"id"`      // Firestore document ID
	Lat  float64 `firestore:"lat" json:"lat"`   // centroid latitude
	Long float64 `firestore:"long" json:"long"` // centroid longitude

	RadiusMeters int `firestore:"radiusMeters" json:"radiusMeters"`

	EventCount   int       `firestore:"eventCount" json:"eventCount"`
	FirstEventAt time.Time `firestore:"firstEventAt" json:"firstEventAt"`
	LastEventAt  time.Time `firestore:"lastEventAt" json:"lastEventAt"`

	// ComputedSeverity boosts the max member severity as independent reports
	// corroborate the incident. Capped at Critical.
	ComputedSeverity Severity `firestore:"computedSeverity" json:"computedSeverity"`

	Active     bool   `firestore:"active" json:"active"`
	MergedInto string `firestore:"mergedInto,omitempty" json:"mergedInto,omitempty"`
}
