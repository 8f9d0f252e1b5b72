// Package gamification awards reporter badges and reputation so repeat
// reporters with a track record of verified reports rank higher at triage.
package gamification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go-attentionmap/db"
	"go-attentionmap/types"
)

// Reputation point values.
const (
	pointsSubmitted     = 5
	pointsVerified      = 10
	pointsFalseAlarm    = -5
	pointsCriticalBonus = 25
)

type Badge struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Category    string `json:"category"`
	Threshold   int    `json:"threshold,omitempty"`
}

// Badges lists every earnable badge.
var Badges = []Badge{
	{ID: "first_report", Name: "First Reporter", Description: "Submitted your first report", Icon: "flag", Category: "reports", Threshold: 1},
	{ID: "reporter_10", Name: "Active Reporter", Description: "Submitted 10 reports", Icon: "megaphone", Category: "reports", Threshold: 10},
	{ID: "reporter_50", Name: "Dedicated Reporter", Description: "Submitted 50 reports", Icon: "star", Category: "reports", Threshold: 50},
	{ID: "reporter_100", Name: "Champion Reporter", Description: "Submitted 100 reports", Icon: "trophy", Category: "reports", Threshold: 100},
	{ID: "first_verified", Name: "Trusted Source", Description: "Had your first report verified", Icon: "check", Category: "verified", Threshold: 1},
	{ID: "verified_10", Name: "Reliable Reporter", Description: "Had 10 reports verified", Icon: "shield", Category: "verified", Threshold: 10},
	{ID: "verified_25", Name: "Accuracy Expert", Description: "Had 25 reports verified", Icon: "medal", Category: "verified", Threshold: 25},
	{ID: "verified_50", Name: "Verification Master", Description: "Had 50 reports verified", Icon: "crown", Category: "verified", Threshold: 50},
	{ID: "reputation_100", Name: "Rising Star", Description: "Reached 100 reputation points", Icon: "sparkles", Category: "reputation", Threshold: 100},
	{ID: "reputation_500", Name: "Community Leader", Description: "Reached 500 reputation points", Icon: "gem", Category: "reputation", Threshold: 500},
	{ID: "reputation_1000", Name: "City Guardian", Description: "Reached 1000 reputation points", Icon: "shield_star", Category: "reputation", Threshold: 1000},
	{ID: "night_owl", Name: "Night Owl", Description: "Submitted a report between midnight and 5am", Icon: "moon", Category: "special"},
	{ID: "emergency_responder", Name: "Emergency Responder", Description: "Reported a verified critical emergency", Icon: "siren", Category: "special"},
}

type Service struct {
	store db.Store
}

func NewService(store db.Store) *Service {
	return &Service{store: store}
}

// OnReportSubmitted credits a submission. Anonymous reports (empty reporter
// id) are skipped.
func (s *Service) OnReportSubmitted(ctx context.Context, reporterID string, submittedAt time.Time) {
	if reporterID == "" {
		return
	}
	p, err := s.loadOrCreate(ctx, reporterID)
	if err != nil {
		log.Printf("gamification: load profile %s: %v", reporterID, err)
		return
	}

	p.ReportsSubmitted++
	p.ReputationScore += pointsSubmitted
	if h := submittedAt.UTC().Hour(); h < 5 {
		awardBadge(p, "night_owl")
	}
	s.checkMilestones(p)

	if err := s.store.SaveProfile(ctx, p); err != nil {
		log.Printf("gamification: save profile %s: %v", reporterID, err)
	}
}

// OnReportVerified credits a verification, with a bonus for critical reports.
func (s *Service) OnReportVerified(ctx context.Context, reporterID string, critical bool) {
	if reporterID == "" {
		return
	}
	p, err := s.loadOrCreate(ctx, reporterID)
	if err != nil {
		log.Printf("gamification: load profile %s: %v", reporterID, err)
		return
	}

	p.ReportsVerified++
	p.ReputationScore += pointsVerified
	if critical {
		p.ReputationScore += pointsCriticalBonus
		awardBadge(p, "emergency_responder")
	}
	s.checkMilestones(p)

	if err := s.store.SaveProfile(ctx, p); err != nil {
		log.Printf("gamification: save profile %s: %v", reporterID, err)
	}
}

// OnReportRejected debits a false alarm. Reputation never goes below zero.
func (s *Service) OnReportRejected(ctx context.Context, reporterID string) {
	if reporterID == "" {
		return
	}
	p, err := s.loadOrCreate(ctx, reporterID)
	if err != nil {
		log.Printf("gamification: load profile %s: %v", reporterID, err)
		return
	}

	p.ReputationScore += pointsFalseAlarm
	if p.ReputationScore < 0 {
		p.ReputationScore = 0
	}

	if err := s.store.SaveProfile(ctx, p); err != nil {
		log.Printf("gamification: save profile %s: %v", reporterID, err)
	}
}

func (s *Service) loadOrCreate(ctx context.Context, reporterID string) (*types.Profile, error) {
	p, err := s.store.GetProfile(ctx, reporterID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}
	return &types.Profile{
		ReporterID: reporterID,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func (s *Service) checkMilestones(p *types.Profile) {
	for _, b := range Badges {
		if b.Threshold == 0 {
			continue
		}
		var progress int
		switch b.Category {
		case "reports":
			progress = p.ReportsSubmitted
		case "verified":
			progress = p.ReportsVerified
		case "reputation":
			progress = p.ReputationScore
		}
		if progress >= b.Threshold {
			awardBadge(p, b.ID)
		}
	}
}

func awardBadge(p *types.Profile, id string) {
	if p.HasBadge(id) {
		return
	}
	p.Badges = append(p.Badges, id)
	log.Printf("gamification: %s earned badge %q", p.ReporterID, id)
}

// BadgeByID looks up a badge definition.
func BadgeByID(id string) (Badge, error) {
	for _, b := range Badges {
		if b.ID == id {
			return b, nil
		}
	}
	return Badge{}, fmt.Errorf("unknown badge %q", id)
}
