package types

import "time"

// Profile tracks a reporter's gamification state.
type Profile struct {
	ReporterID       string    `firestore:"-" json:"reporterId"`
	ReportsSubmitted int       `firestore:"reportsSubmitted" json:"reportsSubmitted"`
	ReportsVerified  int       `firestore:"reportsVerified" json:"reportsVerified"`
	Badges           []string  `firestore:"badges" json:"badges"`
	ReputationScore  int       `firestore:"reputationScore" json:"reputationScore"`
	CreatedAt        time.Time `firestore:"createdAt" json:"createdAt"`
}

func (p *Profile) HasBadge(id string) bool {
	for _, b := range p.Badges {
		if b == id {
			return true
		}
	}
	return false
}
