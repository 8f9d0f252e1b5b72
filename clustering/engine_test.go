package clustering

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"go-attentionmap/config"
	"go-attentionmap/db"
	"go-attentionmap/types"
)

// capturePublisher records notifications in publish order.
type capturePublisher struct {
	mu            sync.Mutex
	notifications []types.ChangeNotification
}

func (p *capturePublisher) Publish(n types.ChangeNotification) {
	p.mu.Lock()
	p.notifications = append(p.notifications, n)
	p.mu.Unlock()
}

func (p *capturePublisher) all() []types.ChangeNotification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.ChangeNotification(nil), p.notifications...)
}

func testPolicy() config.Clustering {
	return config.Clustering{
		RadiusMeters: 100,
		Window:       30 * time.Minute,
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
	}
}

func newTestEngine(t *testing.T) (*Engine, *db.MemoryStore, *capturePublisher) {
	t.Helper()
	store := db.NewMemoryStore()
	pub := &capturePublisher{}
	return NewEngine(store, pub, testPolicy()), store, pub
}

func newEvent(lat, long float64, at time.Time, sev types.Severity) *types.Event {
	return &types.Event{
		ID:        uuid.NewString(),
		Lat:       lat,
		Long:      long,
		CreatedAt: at,
		Category:  types.Emergency,
		Severity:  sev,
		Status:    types.StatusNew,
	}
}

func TestAssignClusterSeedsNewCluster(t *testing.T) {
	engine, _, pub := newTestEngine(t)
	base := time.Now().UTC()

	e := newEvent(52.2297, 21.0122, base, types.High)
	a, err := engine.AssignCluster(context.Background(), e)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	if !a.CreatedCluster {
		t.Fatal("expected a new cluster to be created")
	}
	if a.Cluster.EventCount != 1 {
		t.Fatalf("event count: got %d want 1", a.Cluster.EventCount)
	}
	if a.Cluster.ComputedSeverity != types.High {
		t.Fatalf("severity: got %d want %d", a.Cluster.ComputedSeverity, types.High)
	}
	if a.Cluster.Lat != e.Lat || a.Cluster.Long != e.Long {
		t.Fatal("single-member centroid must equal the event location")
	}
	if !a.Cluster.Active {
		t.Fatal("new cluster must be active")
	}

	got := pub.all()
	if len(got) != 2 {
		t.Fatalf("notifications: got %d want 2", len(got))
	}
	if got[0].Type != types.EventCreated || got[1].Type != types.ClusterUpdated {
		t.Fatalf("notification order: got %s, %s", got[0].Type, got[1].Type)
	}
}

func TestNearbyEventsShareCluster(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	base := time.Now().UTC()

	a1, err := engine.AssignCluster(context.Background(), newEvent(52.2297, 21.0122, base, types.High))
	if err != nil {
		t.Fatalf("assign first: %v", err)
	}
	a2, err := engine.AssignCluster(context.Background(), newEvent(52.2299, 21.0123, base.Add(2*time.Minute), types.High))
	if err != nil {
		t.Fatalf("assign second: %v", err)
	}

	if a2.CreatedCluster {
		t.Fatal("second event must join, not seed")
	}
	if a1.Cluster.ID != a2.Cluster.ID {
		t.Fatalf("cluster ids differ: %s vs %s", a1.Cluster.ID, a2.Cluster.ID)
	}
	if a2.Cluster.EventCount != 2 {
		t.Fatalf("event count: got %d want 2", a2.Cluster.EventCount)
	}
	// 2 reports boost high to critical: 3 + floor(log2(2)) = 4.
	if a2.Cluster.ComputedSeverity != types.Critical {
		t.Fatalf("severity: got %d want %d", a2.Cluster.ComputedSeverity, types.Critical)
	}
}

func TestFarEventsGetSeparateClusters(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	base := time.Now().UTC()

	a1, err := engine.AssignCluster(context.Background(), newEvent(52.2297, 21.0122, base, types.High))
	if err != nil {
		t.Fatalf("assign first: %v", err)
	}
	a2, err := engine.AssignCluster(context.Background(), newEvent(52.5000, 21.5000, base.Add(time.Minute), types.Low))
	if err != nil {
		t.Fatalf("assign second: %v", err)
	}

	if !a2.CreatedCluster {
		t.Fatal("far event must seed its own cluster")
	}
	if a1.Cluster.ID == a2.Cluster.ID {
		t.Fatal("far events must not share a cluster")
	}
}

func TestOldEventsOutsideWindowIgnored(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	base := time.Now().UTC()

	a1, err := engine.AssignCluster(context.Background(), newEvent(52.2297, 21.0122, base.Add(-2*time.Hour), types.High))
	if err != nil {
		t.Fatalf("assign first: %v", err)
	}
	a2, err := engine.AssignCluster(context.Background(), newEvent(52.2297, 21.0122, base, types.High))
	if err != nil {
		t.Fatalf("assign second: %v", err)
	}

	if a1.Cluster.ID == a2.Cluster.ID {
		t.Fatal("events two hours apart must not cluster")
	}
}

// Three events where each is near its immediate neighbor only: A-B close,
// B-C close, A-C too far apart. Whatever the arrival order, all three must
// end in one cluster, because B bridges A and C.
func TestTransitiveBridgeMergesClusters(t *testing.T) {
	base := time.Now().UTC()
	// Roughly 90m of latitude between each neighbor.
	a := func() *types.Event { return newEvent(52.22970, 21.0122, base, types.Medium) }
	b := func() *types.Event { return newEvent(52.23051, 21.0122, base.Add(time.Minute), types.Medium) }
	c := func() *types.Event { return newEvent(52.23132, 21.0122, base.Add(2*time.Minute), types.Medium) }

	orders := [][]*types.Event{
		{a(), b(), c()},
		{a(), c(), b()}, // A and C seed separate clusters, B bridges them
		{c(), a(), b()},
		{b(), a(), c()},
		{c(), b(), a()},
	}

	for i, order := range orders {
		engine, store, _ := newTestEngine(t)
		var lastAssignment *ClusterAssignment
		for _, e := range order {
			got, err := engine.AssignCluster(context.Background(), e)
			if err != nil {
				t.Fatalf("order %d: assign %s: %v", i, e.ID, err)
			}
			lastAssignment = got
		}

		ids := make(map[string]bool)
		for _, e := range order {
			stored, err := store.GetEvent(context.Background(), e.ID)
			if err != nil {
				t.Fatalf("order %d: reload %s: %v", i, e.ID, err)
			}
			if stored.ClusterID == "" {
				t.Fatalf("order %d: event %s unassigned", i, e.ID)
			}
			ids[stored.ClusterID] = true
		}
		if len(ids) != 1 {
			t.Fatalf("order %d: expected one cluster, got %d", i, len(ids))
		}
		if lastAssignment.Cluster.EventCount != 3 {
			t.Fatalf("order %d: event count: got %d want 3", i, lastAssignment.Cluster.EventCount)
		}

		// The A-then-C orders had two clusters before B arrived; the merge
		// must keep the earliest and deactivate the rest.
		for _, mergedID := range lastAssignment.MergedClusterIDs {
			merged, err := store.GetCluster(context.Background(), mergedID)
			if err != nil {
				t.Fatalf("order %d: load merged cluster: %v", i, err)
			}
			if merged.Active {
				t.Fatalf("order %d: merged cluster %s still active", i, mergedID)
			}
			if merged.MergedInto != lastAssignment.Cluster.ID {
				t.Fatalf("order %d: merged cluster points at %s, want %s", i, merged.MergedInto, lastAssignment.Cluster.ID)
			}
		}
	}
}

func TestMergeSurvivorHasEarliestFirstEvent(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	base := time.Now().UTC()

	// C first (it will be the younger cluster's seed), then A, then bridge B.
	first, err := engine.AssignCluster(context.Background(), newEvent(52.22970, 21.0122, base, types.Medium))
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	second, err := engine.AssignCluster(context.Background(), newEvent(52.23132, 21.0122, base.Add(time.Minute), types.Medium))
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	bridge, err := engine.AssignCluster(context.Background(), newEvent(52.23051, 21.0122, base.Add(2*time.Minute), types.Medium))
	if err != nil {
		t.Fatalf("assign bridge: %v", err)
	}

	if bridge.Cluster.ID != first.Cluster.ID {
		t.Fatalf("survivor: got %s want the earlier cluster %s", bridge.Cluster.ID, first.Cluster.ID)
	}
	loser, err := store.GetCluster(context.Background(), second.Cluster.ID)
	if err != nil {
		t.Fatalf("load loser: %v", err)
	}
	if loser.Active || loser.MergedInto != first.Cluster.ID {
		t.Fatalf("loser not deactivated into survivor: active=%v mergedInto=%s", loser.Active, loser.MergedInto)
	}
}

func TestCentroidIsMeanOfMembers(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	base := time.Now().UTC()

	events := []*types.Event{
		newEvent(52.2297, 21.0122, base, types.Low),
		newEvent(52.2299, 21.0123, base.Add(time.Minute), types.Low),
		newEvent(52.2301, 21.0124, base.Add(2*time.Minute), types.Low),
	}
	var last *ClusterAssignment
	for _, e := range events {
		got, err := engine.AssignCluster(context.Background(), e)
		if err != nil {
			t.Fatalf("assign: %v", err)
		}
		last = got
	}

	var sumLat, sumLong float64
	for _, e := range events {
		sumLat += e.Lat
		sumLong += e.Long
	}
	wantLat := sumLat / 3
	wantLong := sumLong / 3
	if last.Cluster.Lat != wantLat || last.Cluster.Long != wantLong {
		t.Fatalf("centroid: got (%f,%f) want (%f,%f)", last.Cluster.Lat, last.Cluster.Long, wantLat, wantLong)
	}
	if last.Cluster.EventCount != 3 {
		t.Fatalf("event count: got %d want 3", last.Cluster.EventCount)
	}
	if !last.Cluster.FirstEventAt.Equal(base) {
		t.Fatalf("firstEventAt: got %s want %s", last.Cluster.FirstEventAt, base)
	}
	if !last.Cluster.LastEventAt.Equal(base.Add(2 * time.Minute)) {
		t.Fatalf("lastEventAt: got %s want %s", last.Cluster.LastEventAt, base.Add(2*time.Minute))
	}
}

func TestAggregateSeverity(t *testing.T) {
	cases := []struct {
		base  types.Severity
		count int
		want  types.Severity
	}{
		{types.Low, 1, types.Low},
		{types.Low, 2, types.Medium},
		{types.Low, 4, types.High},
		{types.Low, 8, types.Critical},
		{types.Low, 100, types.Critical}, // capped
		{types.High, 2, types.Critical},
		{types.Critical, 1, types.Critical},
	}
	for _, tc := range cases {
		if got := AggregateSeverity(tc.base, tc.count); got != tc.want {
			t.Fatalf("AggregateSeverity(%d, %d): got %d want %d", tc.base, tc.count, got, tc.want)
		}
	}

	// Monotone in count for a fixed base.
	prev := types.Severity(0)
	for n := 1; n <= 64; n++ {
		got := AggregateSeverity(types.Medium, n)
		if got < prev {
			t.Fatalf("severity decreased at count %d: %d -> %d", n, prev, got)
		}
		prev = got
	}
}

func TestAssignClusterIdempotent(t *testing.T) {
	engine, _, pub := newTestEngine(t)
	base := time.Now().UTC()

	e := newEvent(52.2297, 21.0122, base, types.High)
	first, err := engine.AssignCluster(context.Background(), e)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	emitted := len(pub.all())

	replay, err := engine.AssignCluster(context.Background(), e)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	if !replay.Replayed {
		t.Fatal("expected replay to be flagged")
	}
	if replay.Cluster.ID != first.Cluster.ID {
		t.Fatalf("replay cluster: got %s want %s", replay.Cluster.ID, first.Cluster.ID)
	}
	if replay.CreatedCluster {
		t.Fatal("replay must not create a cluster")
	}
	if got := len(pub.all()); got != emitted {
		t.Fatalf("replay emitted notifications: got %d want %d", got, emitted)
	}
	if replay.Cluster.EventCount != 1 {
		t.Fatalf("replay inflated event count: %d", replay.Cluster.EventCount)
	}
}

// Concurrent events in the same neighborhood must never seed two separate
// clusters (check-then-act race).
func TestConcurrentAssignsSameNeighborhood(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	base := time.Now().UTC()

	const n = 16
	events := make([]*types.Event, n)
	for i := range events {
		events[i] = newEvent(52.2297+float64(i)*0.000001, 21.0122, base.Add(time.Duration(i)*time.Second), types.Medium)
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, e := range events {
		wg.Add(1)
		go func(e *types.Event) {
			defer wg.Done()
			if _, err := engine.AssignCluster(context.Background(), e); err != nil {
				errs <- err
			}
		}(e)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent assign: %v", err)
	}

	ids := make(map[string]bool)
	for _, e := range events {
		stored, err := store.GetEvent(context.Background(), e.ID)
		if err != nil {
			t.Fatalf("reload %s: %v", e.ID, err)
		}
		ids[stored.ClusterID] = true
	}
	if len(ids) != 1 {
		t.Fatalf("expected one cluster, got %d", len(ids))
	}

	// eventCount must equal the number of events referencing the cluster.
	for id := range ids {
		cluster, err := store.GetCluster(context.Background(), id)
		if err != nil {
			t.Fatalf("load cluster: %v", err)
		}
		if cluster.EventCount != n {
			t.Fatalf("event count: got %d want %d", cluster.EventCount, n)
		}
	}
}

// flakyStore injects transaction conflicts before delegating.
type flakyStore struct {
	db.Store
	mu        sync.Mutex
	conflicts int
}

func (s *flakyStore) RunTransaction(ctx context.Context, fn func(tx db.Tx) error) error {
	s.mu.Lock()
	inject := s.conflicts > 0
	if inject {
		s.conflicts--
	}
	s.mu.Unlock()
	if inject {
		return fmt.Errorf("%w: injected", db.ErrConflict)
	}
	return s.Store.RunTransaction(ctx, fn)
}

func TestConflictsAreRetried(t *testing.T) {
	store := &flakyStore{Store: db.NewMemoryStore(), conflicts: 2}
	pub := &capturePublisher{}
	engine := NewEngine(store, pub, testPolicy())

	a, err := engine.AssignCluster(context.Background(), newEvent(52.2297, 21.0122, time.Now().UTC(), types.High))
	if err != nil {
		t.Fatalf("assign with conflicts: %v", err)
	}
	if !a.CreatedCluster {
		t.Fatal("expected cluster after retries")
	}
	if len(pub.all()) != 2 {
		t.Fatalf("notifications after retries: got %d want 2", len(pub.all()))
	}
}

func TestConflictExhaustionBecomesPersistenceFailure(t *testing.T) {
	store := &flakyStore{Store: db.NewMemoryStore(), conflicts: 10}
	pub := &capturePublisher{}
	engine := NewEngine(store, pub, testPolicy())

	_, err := engine.AssignCluster(context.Background(), newEvent(52.2297, 21.0122, time.Now().UTC(), types.High))
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	// Nothing committed, nothing emitted.
	if len(pub.all()) != 0 {
		t.Fatalf("notifications on failure: got %d want 0", len(pub.all()))
	}
}

// The scenario from the operations runbook: A and B cluster in central
// Warsaw, C stays alone far away, and both subscribers see B's creation
// before K's update.
func TestWarsawScenario(t *testing.T) {
	engine, _, pub := newTestEngine(t)
	base := time.Now().UTC()

	a, err := engine.AssignCluster(context.Background(), newEvent(52.2297, 21.0122, base, types.High))
	if err != nil {
		t.Fatalf("assign A: %v", err)
	}
	if a.Cluster.EventCount != 1 || a.Cluster.ComputedSeverity != types.High {
		t.Fatalf("cluster K after A: count=%d severity=%d", a.Cluster.EventCount, a.Cluster.ComputedSeverity)
	}

	c, err := engine.AssignCluster(context.Background(), newEvent(52.5000, 21.5000, base.Add(time.Minute), types.Low))
	if err != nil {
		t.Fatalf("assign C: %v", err)
	}
	if !c.CreatedCluster || c.Cluster.ID == a.Cluster.ID {
		t.Fatal("C must seed its own cluster L")
	}

	before := len(pub.all())
	b, err := engine.AssignCluster(context.Background(), newEvent(52.2299, 21.0123, base.Add(2*time.Minute), types.High))
	if err != nil {
		t.Fatalf("assign B: %v", err)
	}
	if b.Cluster.ID != a.Cluster.ID {
		t.Fatal("B must join K")
	}
	if b.Cluster.EventCount != 2 || b.Cluster.ComputedSeverity != types.Critical {
		t.Fatalf("cluster K after B: count=%d severity=%d", b.Cluster.EventCount, b.Cluster.ComputedSeverity)
	}

	got := pub.all()[before:]
	if len(got) != 2 {
		t.Fatalf("notifications for B: got %d want 2", len(got))
	}
	if got[0].Type != types.EventCreated || got[0].Event.ID != b.Event.ID {
		t.Fatalf("first notification: %+v", got[0])
	}
	if got[1].Type != types.ClusterUpdated || got[1].Cluster.ID != a.Cluster.ID {
		t.Fatalf("second notification: %+v", got[1])
	}
}
