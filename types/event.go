package types

import "time"

type Category string

const (
	Emergency      Category = "emergency"
	Security       Category = "security"
	Traffic        Category = "traffic"
	Protest        Category = "protest"
	Infrastructure Category = "infrastructure"
	Environmental  Category = "environmental"
	Informational  Category = "informational"
)

// ValidCategory reports whether c is one of the known categories.
func ValidCategory(c Category) bool {
	switch c {
	case Emergency, Security, Traffic, Protest, Infrastructure, Environmental, Informational:
		return true
	}
	return false
}

type Severity int

const (
	Low      Severity = 1
	Medium   Severity = 2
	High     Severity = 3
	Critical Severity = 4
)

type Status string

const (
	StatusNew        Status = "new"
	StatusReviewing  Status = "reviewing"
	StatusVerified   Status = "verified"
	StatusResolved   Status = "resolved"
	StatusFalseAlarm Status = "false_alarm"
)

func ValidStatus(s Status) bool {
	switch s {
	case StatusNew, StatusReviewing, StatusVerified, StatusResolved, StatusFalseAlarm:
		return true
	}
	return false
}

// Event is a single citizen-reported incident. ID, location and CreatedAt are
// immutable once stored; only Status (plus the review stamps) and ClusterID
// ever change. Events are never deleted.
type Event struct {
	ID        string    `firestore:"-" json:"id"` // Firestore document ID
	Lat       float64   `firestore:"lat" json:"lat"`
	Long      float64   `firestore:"long" json:"long"`
	CreatedAt time.Time `firestore:"createdAt" json:"createdAt"`

	ReporterID  string `firestore:"reporterId,omitempty" json:"reporterId,omitempty"`
	Address     string `firestore:"address,omitempty" json:"address,omitempty"`
	Description string `firestore:"description,omitempty" json:"description,omitempty"`

	MediaURL     string `firestore:"mediaUrl,omitempty" json:"mediaUrl,omitempty"`
	MediaType    string `firestore:"mediaType,omitempty" json:"mediaType,omitempty"`
	ThumbnailURL string `firestore:"thumbnailUrl,omitempty" json:"thumbnailUrl,omitempty"`

	// Classification is done upstream; events arrive already carrying these.
	Category Category `firestore:"category" json:"category"`
	Severity Severity `firestore:"severity" json:"severity"`

	ClusterID string `firestore:"clusterId,omitempty" json:"clusterId,omitempty"`

	Status     Status     `firestore:"status" json:"status"`
	ReviewedBy string     `firestore:"reviewedBy,omitempty" json:"reviewedBy,omitempty"`
	ReviewedAt *time.Time `firestore:"reviewedAt,omitempty" json:"reviewedAt,omitempty"`
}
