package cronjobs

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"go-attentionmap/db"
	"go-attentionmap/metrics"
)

// InitCronJobs schedules the periodic cluster sweep. The sweep refreshes the
// active-cluster gauge and logs clusters that went quiet, which is how stale
// markers age out of dashboards (clusters are never deleted).
func InitCronJobs(store db.Store, schedule string, window time.Duration) *cron.Cron {
	log.Println("Starting Cron Jobs -------------------------------------------------------")
	c := cron.New()

	_, err := c.AddFunc(schedule, func() {
		sweepClusters(store, window)
	})
	if err != nil {
		log.Println("Error scheduling cluster sweep:", err)
	}

	c.Start()
	return c
}

func sweepClusters(store db.Store, window time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clusters, err := store.ListClusters(ctx, nil, 0)
	if err != nil {
		log.Printf("CronJob: cluster sweep failed: %v", err)
		return
	}

	cutoff := time.Now().UTC().Add(-window)
	active, quiet := 0, 0
	for _, cl := range clusters {
		if cl.LastEventAt.Before(cutoff) {
			quiet++
			continue
		}
		active++
	}

	metrics.SetActiveClusters(active)
	log.Printf("CronJob: cluster sweep: %d active, %d quiet", active, quiet)
}
