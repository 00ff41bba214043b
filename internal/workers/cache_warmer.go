package workers

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"punchcard-labs/timeclock/internal/cache"
	"punchcard-labs/timeclock/internal/logging"
	"punchcard-labs/timeclock/internal/metrics"
	"punchcard-labs/timeclock/internal/models"
)

// CacheWarmer bulk-loads every guild and member aggregate from the durable
// store into the repositories. It runs exactly once, before the service
// starts taking requests; a failure is fatal to startup.
type CacheWarmer struct {
	db      *gorm.DB
	guilds  *cache.GuildCache
	members *cache.MemberCache
	metrics *metrics.Registry

	ran atomic.Bool
}

// NewCacheWarmer wires a warmer over the repositories. reg may be nil.
func NewCacheWarmer(db *gorm.DB, guilds *cache.GuildCache, members *cache.MemberCache, reg *metrics.Registry) *CacheWarmer {
	return &CacheWarmer{db: db, guilds: guilds, members: members, metrics: reg}
}

// Warm loads both aggregate kinds in parallel and primes the indices.
// A second call is an error; the warmer is not re-entrant.
func (w *CacheWarmer) Warm(ctx context.Context) error {
	if !w.ran.CompareAndSwap(false, true) {
		return fmt.Errorf("cache warmer already ran")
	}

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var guilds []models.Guild
		err := w.db.WithContext(ctx).
			Preload("Roles", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
			Find(&guilds).Error
		if err != nil {
			return fmt.Errorf("failed to load guilds: %w", err)
		}
		w.guilds.Prime(guilds)
		logging.Info("Guild configs cached", "count", len(guilds))
		return nil
	})

	g.Go(func() error {
		var members []models.Member
		err := w.db.WithContext(ctx).
			Preload("Times", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
			Find(&members).Error
		if err != nil {
			return fmt.Errorf("failed to load members: %w", err)
		}
		w.members.Prime(members)
		logging.Info("Members and their times cached", "count", len(members))
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	if w.metrics != nil {
		w.metrics.WarmDuration.Observe(time.Since(start).Seconds())
	}
	logging.Info("Cache warm complete", "duration", time.Since(start).String())
	return nil
}
