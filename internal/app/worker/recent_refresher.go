package worker

import (
	"context"
	"log"
	"time"

	"practice_arena/internal/app/service"
)

// RecentRefresher keeps the recent-contest cache warm so the public listing
// does not fall to the database on every cache expiry.
type RecentRefresher struct {
	contestService *service.ContestService
	interval       time.Duration
}

func NewRecentRefresher(contestService *service.ContestService, interval time.Duration) *RecentRefresher {
	return &RecentRefresher{contestService: contestService, interval: interval}
}

func (w *RecentRefresher) Start(ctx context.Context) {
	log.Printf("Recent-contest refresher started, interval %s", w.interval)
	w.refresh(ctx) // prime the cache before the first tick

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("Recent-contest refresher stopping...")
			return
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

func (w *RecentRefresher) refresh(ctx context.Context) {
	if _, err := w.contestService.RefreshRecent(ctx, time.Now().Unix()); err != nil {
		log.Printf("ERROR: Failed to refresh recent contests: %v", err)
	}
}
