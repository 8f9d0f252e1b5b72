package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"go-attentionmap/geo"
	"go-attentionmap/types"
)

// MemoryStore keeps everything in maps behind one mutex. It backs demo mode
// and tests. A transaction holds the lock for its whole body and stages its
// writes, so transactions are serialized and a failed one leaves no trace —
// which trivially satisfies the same neighborhood contract Firestore gives
// through optimistic concurrency.
type MemoryStore struct {
	mu       sync.Mutex
	events   map[string]types.Event
	clusters map[string]types.Cluster
	profiles map[string]types.Profile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:   make(map[string]types.Event),
		clusters: make(map[string]types.Cluster),
		profiles: make(map[string]types.Profile),
	}
}

type memoryTx struct {
	store          *MemoryStore
	stagedEvents   map[string]types.Event
	stagedClusters map[string]types.Cluster
}

func (s *MemoryStore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{
		store:          s,
		stagedEvents:   make(map[string]types.Event),
		stagedClusters: make(map[string]types.Cluster),
	}
	if err := fn(tx); err != nil {
		return err
	}

	for id, e := range tx.stagedEvents {
		s.events[id] = e
	}
	for id, c := range tx.stagedClusters {
		s.clusters[id] = c
	}
	return nil
}

func (t *memoryTx) GetEvent(id string) (*types.Event, error) {
	if e, ok := t.stagedEvents[id]; ok {
		return &e, nil
	}
	if e, ok := t.store.events[id]; ok {
		return &e, nil
	}
	return nil, ErrNotFound
}

func (t *memoryTx) NearbyEvents(lat, long float64, radiusMeters int, since time.Time) ([]types.Event, error) {
	var nearby []types.Event
	for _, e := range t.visibleEvents() {
		if e.CreatedAt.Before(since) {
			continue
		}
		if geo.HaversineMeters(lat, long, e.Lat, e.Long) <= float64(radiusMeters) {
			nearby = append(nearby, e)
		}
	}
	return nearby, nil
}

func (t *memoryTx) GetCluster(id string) (*types.Cluster, error) {
	if c, ok := t.stagedClusters[id]; ok {
		return &c, nil
	}
	if c, ok := t.store.clusters[id]; ok {
		return &c, nil
	}
	return nil, ErrNotFound
}

func (t *memoryTx) ClusterEvents(clusterID string) ([]types.Event, error) {
	var members []types.Event
	for _, e := range t.visibleEvents() {
		if e.ClusterID == clusterID {
			members = append(members, e)
		}
	}
	return members, nil
}

func (t *memoryTx) PutEvent(e *types.Event) error {
	t.stagedEvents[e.ID] = *e
	return nil
}

func (t *memoryTx) PutCluster(c *types.Cluster) error {
	t.stagedClusters[c.ID] = *c
	return nil
}

// visibleEvents merges committed events with this transaction's staged
// writes, staged winning.
func (t *memoryTx) visibleEvents() []types.Event {
	out := make([]types.Event, 0, len(t.store.events)+len(t.stagedEvents))
	for id, e := range t.store.events {
		if staged, ok := t.stagedEvents[id]; ok {
			out = append(out, staged)
			continue
		}
		out = append(out, e)
	}
	for id, e := range t.stagedEvents {
		if _, ok := t.store.events[id]; !ok {
			out = append(out, e)
		}
	}
	return out
}

func (s *MemoryStore) GetEvent(ctx context.Context, id string) (*types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.events[id]; ok {
		return &e, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListEvents(ctx context.Context, f EventFilter) ([]types.Event, int, error) {
	s.mu.Lock()
	var matched []types.Event
	for _, e := range s.events {
		if matchesFilter(&e, f) {
			matched = append(matched, e)
		}
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	return paginate(matched, f.Limit, f.Offset), total, nil
}

func (s *MemoryStore) UpdateEventStatus(ctx context.Context, id string, st types.Status, reviewedBy string, reviewedAt time.Time) (*types.Event, types.Status, error) {
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

func (s *MemoryStore) GetCluster(ctx context.Context, id string) (*types.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clusters[id]; ok {
		return &c, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListClusters(ctx context.Context, bounds *Bounds, limit int) ([]types.Cluster, error) {
	s.mu.Lock()
	var clusters []types.Cluster
	for _, c := range s.clusters {
		if !c.Active || c.EventCount < 2 {
			continue
		}
		if bounds != nil && !geo.InBounds(c.Lat, c.Long, bounds.Lat1, bounds.Lng1, bounds.Lat2, bounds.Lng2) {
			continue
		}
		clusters = append(clusters, c)
	}
	s.mu.Unlock()

	sortClusters(clusters)
	if limit > 0 && len(clusters) > limit {
		clusters = clusters[:limit]
	}
	return clusters, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := newStats()
	for _, e := range s.events {
		e := e
		stats.add(&e)
	}
	for _, c := range s.clusters {
		if c.Active && c.EventCount > 1 {
			stats.ActiveClusters++
		}
	}
	return stats, nil
}

func (s *MemoryStore) GetProfile(ctx context.Context, reporterID string) (*types.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.profiles[reporterID]; ok {
		cp := p
		cp.Badges = append([]string(nil), p.Badges...)
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) SaveProfile(ctx context.Context, p *types.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	cp.Badges = append([]string(nil), p.Badges...)
	s.profiles[p.ReporterID] = cp
	return nil
}
