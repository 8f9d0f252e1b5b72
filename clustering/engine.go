package clustering

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/bits"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"go-attentionmap/config"
	"go-attentionmap/db"
	"go-attentionmap/geo"
	"go-attentionmap/metrics"
	"go-attentionmap/types"
)

// ErrPersistence means the store could not commit the assignment. Nothing was
// emitted and the caller may safely retry the whole call.
var ErrPersistence = errors.New("clustering: persistence failure")

// Publisher receives one notification per committed mutation, strictly after
// commit.
type Publisher interface {
	Publish(n types.ChangeNotification)
}

// ClusterAssignment is the outcome of AssignCluster.
type ClusterAssignment struct {
	Event   *types.Event
	Cluster *types.Cluster

	// CreatedCluster is true when the event seeded a brand-new cluster.
	CreatedCluster bool
	// MergedClusterIDs lists clusters deactivated by this assignment.
	MergedClusterIDs []string
	// Replayed is true when the event was already assigned; the stored
	// assignment is returned and nothing is re-emitted.
	Replayed bool
}

// Engine assigns incoming events to clusters. It keeps no state between
// calls; everything lives in the store, so multiple engine instances can run
// against the same store as long as the store enforces its transaction
// contract.
type Engine struct {
	store        db.Store
	publisher    Publisher
	radiusMeters int
	window       time.Duration
	maxRetries   int
	retryBackoff time.Duration
}

func NewEngine(store db.Store, publisher Publisher, cfg config.Clustering) *Engine {
	return &Engine{
		store:        store,
		publisher:    publisher,
		radiusMeters: cfg.RadiusMeters,
		window:       cfg.Window,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
	}
}

// AssignCluster persists the event and its cluster membership in one
// transaction, then emits event_created followed by cluster_updated. Safe to
// call concurrently for events in the same neighborhood: the losing
// transaction conflicts and retries, so two near-simultaneous events can
// never seed two separate clusters. Re-calling with an already-assigned event
// id returns the stored assignment without creating or emitting anything.
func (en *Engine) AssignCluster(ctx context.Context, event *types.Event) (*ClusterAssignment, error) {
	var assignment *ClusterAssignment

	attempt := 0
	for {
		var a ClusterAssignment
		err := en.store.RunTransaction(ctx, func(tx db.Tx) error {
			a = ClusterAssignment{}
			return en.assign(tx, event, &a)
		})
		if err == nil {
			assignment = &a
			break
		}
		if errors.Is(err, db.ErrConflict) && attempt < en.maxRetries {
			attempt++
			metrics.IncAssignConflicts()
			sleepJittered(ctx, en.retryBackoff, attempt)
			continue
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if assignment.Replayed {
		return assignment, nil
	}

	if assignment.CreatedCluster {
		metrics.IncClustersCreated()
	}
	if n := len(assignment.MergedClusterIDs); n > 0 {
		metrics.AddClustersMerged(n)
		log.Printf("Merged %d cluster(s) into %s", n, assignment.Cluster.ID)
	}

	// Notifications go out only after the commit above, creation first.
	en.publisher.Publish(types.NotifyEvent(types.EventCreated, assignment.Event))
	en.publisher.Publish(types.NotifyCluster(assignment.Cluster))

	return assignment, nil
}

// assign runs inside one transaction. All reads happen before any write
// (Firestore rejects reads after writes inside a transaction).
func (en *Engine) assign(tx db.Tx, event *types.Event, a *ClusterAssignment) error {
	// Idempotence: an already-assigned event returns its stored assignment.
	stored, err := tx.GetEvent(event.ID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return err
	}
	if stored != nil && stored.ClusterID != "" {
		cluster, err := tx.GetCluster(stored.ClusterID)
		if err != nil {
			return fmt.Errorf("load assigned cluster %s: %w", stored.ClusterID, err)
		}
		a.Event = stored
		a.Cluster = cluster
		a.Replayed = true
		return nil
	}

	since := event.CreatedAt.Add(-en.window)
	nearby, err := tx.NearbyEvents(event.Lat, event.Long, en.radiusMeters, since)
	if err != nil {
		return err
	}

	// Distinct clusters among the neighbors. A new event can bridge several.
	var neighborClusterIDs []string
	seen := make(map[string]bool)
	var unclustered []types.Event
	for _, n := range nearby {
		if n.ID == event.ID {
			continue
		}
		if n.ClusterID == "" {
			unclustered = append(unclustered, n)
			continue
		}
		if !seen[n.ClusterID] {
			seen[n.ClusterID] = true
			neighborClusterIDs = append(neighborClusterIDs, n.ClusterID)
		}
	}

	// Load every touched cluster and its full member set before writing.
	clusters := make(map[string]*types.Cluster, len(neighborClusterIDs))
	memberSets := make(map[string][]types.Event, len(neighborClusterIDs))
	for _, id := range neighborClusterIDs {
		c, err := tx.GetCluster(id)
		if err != nil {
			return fmt.Errorf("load cluster %s: %w", id, err)
		}
		members, err := tx.ClusterEvents(id)
		if err != nil {
			return err
		}
		clusters[id] = c
		memberSets[id] = members
	}

	target, merged := pickSurvivor(neighborClusterIDs, clusters)
	if target == nil {
		target = &types.Cluster{
			ID:           uuid.NewString(),
			RadiusMeters: en.radiusMeters,
			Active:       true,
		}
		a.CreatedCluster = true
	}

	// Union of everything that ends up in the surviving cluster.
	members := []types.Event{*event}
	members = append(members, unclustered...)
	for _, id := range neighborClusterIDs {
		members = append(members, memberSets[id]...)
	}
	members = dedupeByID(members)
	for i := range members {
		members[i].ClusterID = target.ID
	}

	recompute(target, members)

	// Writes, reads are done.
	for i := range members {
		if err := tx.PutEvent(&members[i]); err != nil {
			return err
		}
	}
	if err := tx.PutCluster(target); err != nil {
		return err
	}
	for _, loser := range merged {
		loser.Active = false
		loser.MergedInto = target.ID
		if err := tx.PutCluster(loser); err != nil {
			return err
		}
		a.MergedClusterIDs = append(a.MergedClusterIDs, loser.ID)
	}

	assigned := *event
	assigned.ClusterID = target.ID
	a.Event = &assigned
	a.Cluster = target
	return nil
}

// pickSurvivor chooses the cluster with the earliest FirstEventAt as the
// merge survivor, ties broken by id for determinism. Returns nil when there
// is no existing cluster to join.
func pickSurvivor(ids []string, clusters map[string]*types.Cluster) (*types.Cluster, []*types.Cluster) {
	if len(ids) == 0 {
		return nil, nil
	}
	sorted := append([]string(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := clusters[sorted[i]], clusters[sorted[j]]
		if !a.FirstEventAt.Equal(b.FirstEventAt) {
			return a.FirstEventAt.Before(b.FirstEventAt)
		}
		return a.ID < b.ID
	})
	survivor := clusters[sorted[0]]
	var losers []*types.Cluster
	for _, id := range sorted[1:] {
		losers = append(losers, clusters[id])
	}
	return survivor, losers
}

// recompute derives every cluster field from the full member set. Nothing is
// adjusted incrementally, so the centroid can never drift.
func recompute(c *types.Cluster, members []types.Event) {
	lats := make([]float64, len(members))
	longs := make([]float64, len(members))
	first := members[0].CreatedAt
	last := members[0].CreatedAt
	base := members[0].Severity
	for i, m := range members {
		lats[i] = m.Lat
		longs[i] = m.Long
		if m.CreatedAt.Before(first) {
			first = m.CreatedAt
		}
		if m.CreatedAt.After(last) {
			last = m.CreatedAt
		}
		if m.Severity > base {
			base = m.Severity
		}
	}
	c.Lat, c.Long = geo.Centroid(lats, longs)
	c.EventCount = len(members)
	c.FirstEventAt = first
	c.LastEventAt = last
	c.ComputedSeverity = AggregateSeverity(base, len(members))
}

// AggregateSeverity boosts the base severity by floor(log2(count)), capped at
// critical. More independent reports of the same situation mean more urgency.
func AggregateSeverity(base types.Severity, count int) types.Severity {
	if count < 1 {
		return base
	}
	boosted := int(base) + bits.Len(uint(count)) - 1
	if boosted > int(types.Critical) {
		return types.Critical
	}
	return types.Severity(boosted)
}

func dedupeByID(events []types.Event) []types.Event {
	seen := make(map[string]bool, len(events))
	out := events[:0]
	for _, e := range events {
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		out = append(out, e)
	}
	return out
}

func sleepJittered(ctx context.Context, base time.Duration, attempt int) {
	d := time.Duration(attempt) * base
	d += time.Duration(rand.Int63n(int64(base)))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
