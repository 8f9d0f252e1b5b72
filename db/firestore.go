package db

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go-attentionmap/geo"
	"go-attentionmap/types"
)

const (
	eventsCollection   = "events"
	clustersCollection = "clusters"
	profilesCollection = "profiles"
)

// FirestoreStore implements Store on top of Firestore. Firestore transactions
// are optimistic: two transactions racing on the same neighborhood documents
// abort one side, which surfaces here as ErrConflict for the engine to retry.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(&firestoreTx{client: s.client, tx: tx})
	})
	if err != nil {
		if status.Code(err) == codes.Aborted {
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return err
	}
	return nil
}

type firestoreTx struct {
	client *firestore.Client
	tx     *firestore.Transaction
}

func (t *firestoreTx) GetEvent(id string) (*types.Event, error) {
	doc, err := t.tx.Get(t.client.Collection(eventsCollection).Doc(id))
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var e types.Event
	if err := doc.DataTo(&e); err != nil {
		return nil, fmt.Errorf("decode event %s: %w", id, err)
	}
	e.ID = doc.Ref.ID
	return &e, nil
}

func (t *firestoreTx) NearbyEvents(lat, long float64, radiusMeters int, since time.Time) ([]types.Event, error) {
	// Firestore cannot range-query two dimensions at once, so the query
	// narrows on the time window and the radius check happens here.
	query := t.client.Collection(eventsCollection).Where("createdAt", ">=", since)
	docs, err := t.tx.Documents(query).GetAll()
	if err != nil {
		return nil, fmt.Errorf("query nearby events: %w", err)
	}

	var nearby []types.Event
	for _, doc := range docs {
		var e types.Event
		if err := doc.DataTo(&e); err != nil {
			return nil, fmt.Errorf("decode event %s: %w", doc.Ref.ID, err)
		}
		e.ID = doc.Ref.ID
		if geo.HaversineMeters(lat, long, e.Lat, e.Long) <= float64(radiusMeters) {
			nearby = append(nearby, e)
		}
	}
	return nearby, nil
}

func (t *firestoreTx) GetCluster(id string) (*types.Cluster, error) {
	doc, err := t.tx.Get(t.client.Collection(clustersCollection).Doc(id))
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var c types.Cluster
	if err := doc.DataTo(&c); err != nil {
		return nil, fmt.Errorf("decode cluster %s: %w", id, err)
	}
	c.ID = doc.Ref.ID
	return &c, nil
}

func (t *firestoreTx) ClusterEvents(clusterID string) ([]types.Event, error) {
	query := t.client.Collection(eventsCollection).Where("clusterId", "==", clusterID)
	docs, err := t.tx.Documents(query).GetAll()
	if err != nil {
		return nil, fmt.Errorf("query cluster events: %w", err)
	}
	var members []types.Event
	for _, doc := range docs {
		var e types.Event
		if err := doc.DataTo(&e); err != nil {
			return nil, fmt.Errorf("decode event %s: %w", doc.Ref.ID, err)
		}
		e.ID = doc.Ref.ID
		members = append(members, e)
	}
	return members, nil
}

func (t *firestoreTx) PutEvent(e *types.Event) error {
	return t.tx.Set(t.client.Collection(eventsCollection).Doc(e.ID), e)
}

func (t *firestoreTx) PutCluster(c *types.Cluster) error {
	return t.tx.Set(t.client.Collection(clustersCollection).Doc(c.ID), c)
}

func (s *FirestoreStore) GetEvent(ctx context.Context, id string) (*types.Event, error) {
	doc, err := s.client.Collection(eventsCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var e types.Event
	if err := doc.DataTo(&e); err != nil {
		return nil, fmt.Errorf("decode event %s: %w", id, err)
	}
	e.ID = doc.Ref.ID
	return &e, nil
}

// ListEvents narrows on createdAt in Firestore and applies the remaining
// filters in-process; a single query cannot combine two range dimensions or
// several "in" clauses.
func (s *FirestoreStore) ListEvents(ctx context.Context, f EventFilter) ([]types.Event, int, error) {
	query := s.client.Collection(eventsCollection).Query
	if f.Since != nil {
		query = query.Where("createdAt", ">=", *f.Since)
	}
	query = query.OrderBy("createdAt", firestore.Desc)

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, 0, fmt.Errorf("query events: %w", err)
	}

	var matched []types.Event
	for _, doc := range docs {
		var e types.Event
		if err := doc.DataTo(&e); err != nil {
			return nil, 0, fmt.Errorf("decode event %s: %w", doc.Ref.ID, err)
		}
		e.ID = doc.Ref.ID
		if matchesFilter(&e, f) {
			matched = append(matched, e)
		}
	}

	total := len(matched)
	return paginate(matched, f.Limit, f.Offset), total, nil
}

func (s *FirestoreStore) UpdateEventStatus(ctx context.Context, id string, st types.Status, reviewedBy string, reviewedAt time.Time) (*types.Event, types.Status, error) {
	var updated *types.Event
	var previous types.Status
	err := s.RunTransaction(ctx, func(tx Tx) error {
		e, err := tx.GetEvent(id)
		if err != nil {
			return err
		}
		previous = e.Status
		e.Status = st
		e.ReviewedBy = reviewedBy
		e.ReviewedAt = &reviewedAt
		if err := tx.PutEvent(e); err != nil {
			return err
		}
		updated = e
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return updated, previous, nil
}

func (s *FirestoreStore) GetCluster(ctx context.Context, id string) (*types.Cluster, error) {
	doc, err := s.client.Collection(clustersCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var c types.Cluster
	if err := doc.DataTo(&c); err != nil {
		return nil, fmt.Errorf("decode cluster %s: %w", id, err)
	}
	c.ID = doc.Ref.ID
	return &c, nil
}

func (s *FirestoreStore) ListClusters(ctx context.Context, bounds *Bounds, limit int) ([]types.Cluster, error) {
	docs, err := s.client.Collection(clustersCollection).
		Where("active", "==", true).
		Where("eventCount", ">", 1).
		Documents(ctx).
		GetAll()
	if err != nil {
		return nil, fmt.Errorf("query clusters: %w", err)
	}

	var clusters []types.Cluster
	for _, doc := range docs {
		var c types.Cluster
		if err := doc.DataTo(&c); err != nil {
			return nil, fmt.Errorf("decode cluster %s: %w", doc.Ref.ID, err)
		}
		c.ID = doc.Ref.ID
		if bounds != nil && !geo.InBounds(c.Lat, c.Long, bounds.Lat1, bounds.Lng1, bounds.Lat2, bounds.Lng2) {
			continue
		}
		clusters = append(clusters, c)
	}

	sortClusters(clusters)
	if limit > 0 && len(clusters) > limit {
		clusters = clusters[:limit]
	}
	return clusters, nil
}

func (s *FirestoreStore) Stats(ctx context.Context) (*Stats, error) {
	docs, err := s.client.Collection(eventsCollection).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}

	stats := newStats()
	for _, doc := range docs {
		var e types.Event
		if err := doc.DataTo(&e); err != nil {
			return nil, fmt.Errorf("decode event %s: %w", doc.Ref.ID, err)
		}
		stats.add(&e)
	}

	clusterDocs, err := s.client.Collection(clustersCollection).
		Where("active", "==", true).
		Where("eventCount", ">", 1).
		Documents(ctx).
		GetAll()
	if err != nil {
		return nil, fmt.Errorf("query clusters: %w", err)
	}
	stats.ActiveClusters = len(clusterDocs)

	return stats, nil
}

func (s *FirestoreStore) GetProfile(ctx context.Context, reporterID string) (*types.Profile, error) {
	doc, err := s.client.Collection(profilesCollection).Doc(reporterID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var p types.Profile
	if err := doc.DataTo(&p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", reporterID, err)
	}
	p.ReporterID = doc.Ref.ID
	return &p, nil
}

func (s *FirestoreStore) SaveProfile(ctx context.Context, p *types.Profile) error {
	_, err := s.client.Collection(profilesCollection).Doc(p.ReporterID).Set(ctx, p)
	if err != nil {
		return fmt.Errorf("save profile %s: %w", p.ReporterID, err)
	}
	return nil
}

// Shared helpers for both store implementations.

func matchesFilter(e *types.Event, f EventFilter) bool {
	if f.Bounds != nil && !geo.InBounds(e.Lat, e.Long, f.Bounds.Lat1, f.Bounds.Lng1, f.Bounds.Lat2, f.Bounds.Lng2) {
		return false
	}
	if f.Since != nil && e.CreatedAt.Before(*f.Since) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, e.Status) {
		return false
	}
	if len(f.Severities) > 0 && !containsSeverity(f.Severities, e.Severity) {
		return false
	}
	if len(f.Categories) > 0 && !containsCategory(f.Categories, e.Category) {
		return false
	}
	return true
}

func containsStatus(list []types.Status, s types.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsSeverity(list []types.Severity, s types.Severity) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsCategory(list []types.Category, c types.Category) bool {
	for _, v := range list {
		if v == c {
			return true
		}
	}
	return false
}

func paginate(events []types.Event, limit, offset int) []types.Event {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	if offset >= len(events) {
		return nil
	}
	end := offset + limit
	if end > len(events) {
		end = len(events)
	}
	return events[offset:end]
}

func sortClusters(clusters []types.Cluster) {
	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].ComputedSeverity != clusters[j].ComputedSeverity {
			return clusters[i].ComputedSeverity > clusters[j].ComputedSeverity
		}
		return clusters[i].LastEventAt.After(clusters[j].LastEventAt)
	})
}

func newStats() *Stats {
	return &Stats{
		EventsByStatus:   make(map[string]int),
		EventsByCategory: make(map[string]int),
		EventsBySeverity: make(map[string]int),
	}
}

func (s *Stats) add(e *types.Event) {
	s.TotalEvents++
	s.EventsByStatus[string(e.Status)]++
	if e.Category != "" {
		s.EventsByCategory[string(e.Category)]++
	}
	s.EventsBySeverity[fmt.Sprintf("%d", e.Severity)]++
}
