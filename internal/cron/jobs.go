package cron

import (
	"context"
	"log/slog"

	"github.com/campuswatch/campuswatch/internal/cache"
	"github.com/campuswatch/campuswatch/internal/intra"
	"github.com/campuswatch/campuswatch/internal/store"
)

// CampusCatalog is the subset of the intra client the sync job needs.
type CampusCatalog interface {
	GetCampuses(ctx context.Context) ([]intra.Campus, error)
}

// CampusStore persists the campus catalog.
type CampusStore interface {
	CampusIDs(ctx context.Context) ([]int, error)
	UpsertCampus(ctx context.Context, c store.Campus) error
}

// CampusSyncJob refreshes the local campus catalog once a day: it
// invalidates the memoized catalog so the fetch goes upstream, then
// upserts every campus the API reports.
type CampusSyncJob struct {
	Catalog      CampusCatalog
	Store        CampusStore
	Cache        cache.Store
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "0 4 * * *"
}

// Compile-time interface check.
var _ Job = (*CampusSyncJob)(nil)

// Name implements Job.
func (j *CampusSyncJob) Name() string { return "campus_sync" }

// Schedule implements Job.
func (j *CampusSyncJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 4 * * *"
}

// Run invalidates the cached catalog, refetches it, and upserts the
// result. Known campuses are counted so the log line shows growth.
func (j *CampusSyncJob) Run(ctx context.Context) error {
	if err := cache.Invalidate(ctx, j.Cache, intra.CampusesKey); err != nil {
		j.Logger.Warn("cron: invalidating campus catalog failed", "error", err)
	}

	campuses, err := j.Catalog.GetCampuses(ctx)
	if err != nil {
		return err
	}

	known, err := j.Store.CampusIDs(ctx)
	if err != nil {
		return err
	}
	knownSet := make(map[int]bool, len(known))
	for _, id := range known {
		knownSet[id] = true
	}

	added := 0
	for _, c := range campuses {
		if err := j.Store.UpsertCampus(ctx, store.Campus{
			ID:       c.ID,
			Name:     c.Name,
			TimeZone: c.TimeZone,
		}); err != nil {
			return err
		}
		if !knownSet[c.ID] {
			added++
		}
	}

	j.Logger.Info("cron: campus catalog synced", "total", len(campuses), "new", added)
	return nil
}
