package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"

	gocache "github.com/patrickmn/go-cache"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"punchcard-labs/timeclock/internal/logging"
	"punchcard-labs/timeclock/internal/metrics"
	"punchcard-labs/timeclock/internal/models"
)

// Punch transitions, used as the metrics label.
const (
	transitionPunchIn  = "punch_in"
	transitionPunchOut = "punch_out"
)

// MemberCache is the write-through repository for Member aggregates (a
// member row with its duty intervals eagerly loaded). It follows the same
// discipline as GuildCache and additionally owns the punch state machine:
// a punch event toggles the member between off duty and on duty, opening a
// new interval or closing the open one, never both and never twice.
type MemberCache struct {
	db      *gorm.DB
	index   *gocache.Cache
	metrics *metrics.Registry
	joined  bool
}

// NewMemberCache creates a MemberCache backed by db. reg may be nil.
func NewMemberCache(db *gorm.DB, reg *metrics.Registry) *MemberCache {
	return &MemberCache{
		db:      db,
		index:   gocache.New(gocache.NoExpiration, 0),
		metrics: reg,
	}
}

// WithTx returns a view joined to the caller's open transaction; operations
// run under a savepoint and invalidate index keys instead of writing them.
func (c *MemberCache) WithTx(tx *gorm.DB) *MemberCache {
	return &MemberCache{db: tx, index: c.index, metrics: c.metrics, joined: true}
}

func (c *MemberCache) transact(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.db.WithContext(ctx).Transaction(fn)
}

func (c *MemberCache) lookup(memberID string) (*models.Member, bool) {
	v, ok := c.index.Get(memberID)
	if !ok {
		return nil, false
	}
	return v.(*models.Member), true
}

func (c *MemberCache) store(member *models.Member) {
	if c.joined {
		c.index.Delete(member.ID)
		return
	}
	c.index.Set(member.ID, member, gocache.NoExpiration)
	c.gauge()
}

func (c *MemberCache) cacheRead(member *models.Member) {
	if c.joined {
		return
	}
	c.index.Set(member.ID, member, gocache.NoExpiration)
	c.gauge()
}

func (c *MemberCache) gauge() {
	if c.metrics != nil {
		c.metrics.MembersCached.Set(float64(c.index.ItemCount()))
	}
}

func (c *MemberCache) hit() {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues("members").Inc()
	}
}

func (c *MemberCache) miss() {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues("members").Inc()
	}
}

// loadMember fetches a member with its intervals in insertion order, inside
// tx. Returns (nil, nil) when no row exists.
func loadMember(tx *gorm.DB, memberID string) (*models.Member, error) {
	var member models.Member
	err := tx.
		Preload("Times", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&member, "id = ?", memberID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch member: %w", err)
	}
	return &member, nil
}

// GetMember returns the cached aggregate, falling back to the store on a
// miss. Returns (nil, nil) when the member does not exist durably.
func (c *MemberCache) GetMember(ctx context.Context, memberID string) (*models.Member, error) {
	if member, ok := c.lookup(memberID); ok {
		c.hit()
		return member, nil
	}
	c.miss()

	var member *models.Member
	err := c.transact(ctx, func(tx *gorm.DB) error {
		var err error
		member, err = loadMember(tx, memberID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, nil
	}

	c.cacheRead(member)
	return member, nil
}

// GetMembers returns the members of one guild, or every member when guildID
// is empty. Cache-first; an empty cached result triggers exactly one store
// query, whose result (even empty) is final for this call.
func (c *MemberCache) GetMembers(ctx context.Context, guildID string) ([]*models.Member, error) {
	if members := c.cachedMembers(guildID); len(members) > 0 {
		c.hit()
		return members, nil
	}
	c.miss()

	var members []models.Member
	err := c.transact(ctx, func(tx *gorm.DB) error {
		q := tx.Preload("Times", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") })
		if guildID != "" {
			q = q.Where("guild_id = ?", guildID)
		}
		if err := q.Find(&members).Error; err != nil {
			return fmt.Errorf("failed to fetch members: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]*models.Member, 0, len(members))
	for i := range members {
		c.cacheRead(&members[i])
		out = append(out, &members[i])
	}
	return out, nil
}

func (c *MemberCache) cachedMembers(guildID string) []*models.Member {
	var out []*models.Member
	for _, item := range c.index.Items() {
		member := item.Object.(*models.Member)
		if guildID == "" || member.GuildID == guildID {
			out = append(out, member)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddPunchEvent runs one punch through the state machine and returns the
// post-commit aggregate. The member's current state is re-read inside the
// transaction, so two racing punches for the same member serialize through
// the store and the second one observes the first one's committed result.
//
//	off duty --punch--> on duty   (append an open interval)
//	on duty  --punch--> off duty  (close the open interval)
//
// A member seen for the first time is created on duty with one open
// interval.
func (c *MemberCache) AddPunchEvent(ctx context.Context, guildID, memberID string, timestamp float64) (*models.Member, error) {
	var fresh *models.Member
	var transition string

	err := c.transact(ctx, func(tx *gorm.DB) error {
		// Lock the member row for the duration of the transaction. Under
		// READ COMMITTED two racing punches could otherwise both observe
		// off-duty and both open an interval. SQLite has no row locks; its
		// dialector drops the clause and the writer lock serializes instead.
		member, err := loadMember(tx.Clauses(clause.Locking{Strength: "UPDATE"}), memberID)
		if err != nil {
			return err
		}

		switch {
		case member == nil:
			member = &models.Member{
				ID:      memberID,
				GuildID: guildID,
				OnDuty:  true,
				Times:   []models.Time{{PunchIn: timestamp}},
			}
			if err := tx.Create(member).Error; err != nil {
				return fmt.Errorf("failed to create member: %w", err)
			}
			transition = transitionPunchIn

		case !member.OnDuty:
			punch := models.Time{MemberID: memberID, PunchIn: timestamp}
			if err := tx.Create(&punch).Error; err != nil {
				return fmt.Errorf("failed to open interval: %w", err)
			}
			err := tx.Model(&models.Member{}).Where("id = ?", memberID).
				Update("on_duty", true).Error
			if err != nil {
				return fmt.Errorf("failed to set on_duty: %w", err)
			}
			transition = transitionPunchIn

		default:
			open := member.OpenTime()
			if open == nil {
				// Flag drifted from history (administrative override can set
				// on_duty without an interval). Open a new interval so the
				// closed ones are never touched again.
				punch := models.Time{MemberID: memberID, PunchIn: timestamp}
				if err := tx.Create(&punch).Error; err != nil {
					return fmt.Errorf("failed to open interval: %w", err)
				}
				transition = transitionPunchIn
				break
			}
			err := tx.Model(&models.Time{}).Where("id = ?", open.ID).
				Update("punch_out", timestamp).Error
			if err != nil {
				return fmt.Errorf("failed to close interval: %w", err)
			}
			err = tx.Model(&models.Member{}).Where("id = ?", memberID).
				Update("on_duty", false).Error
			if err != nil {
				return fmt.Errorf("failed to clear on_duty: %w", err)
			}
			transition = transitionPunchOut
		}

		fresh, err = loadMember(tx, memberID)
		if err != nil {
			return err
		}
		if fresh == nil {
			return fmt.Errorf("member %s vanished inside transaction", memberID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.store(fresh)
	if c.metrics != nil {
		c.metrics.PunchEventsTotal.WithLabelValues(transition).Inc()
	}
	logging.WithGuild(guildID).Infow("Punch recorded",
		"member_id", memberID,
		"transition", transition,
	)
	return fresh, nil
}

// UpdateMember is the administrative duty-flag override. Fails with
// NotFoundError when the member does not exist.
func (c *MemberCache) UpdateMember(ctx context.Context, memberID string, onDuty *bool) error {
	var fresh *models.Member

	err := c.transact(ctx, func(tx *gorm.DB) error {
		member, err := loadMember(tx, memberID)
		if err != nil {
			return err
		}
		if member == nil {
			return &NotFoundError{Entity: "member", ID: memberID}
		}

		if onDuty != nil && *onDuty != member.OnDuty {
			err := tx.Model(&models.Member{}).Where("id = ?", memberID).
				Update("on_duty", *onDuty).Error
			if err != nil {
				return fmt.Errorf("failed to update member: %w", err)
			}
		}

		fresh, err = loadMember(tx, memberID)
		if err != nil {
			return err
		}
		if fresh == nil {
			return fmt.Errorf("member %s vanished inside transaction", memberID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.store(fresh)
	return nil
}

// RemoveTime deletes one interval by id. No-op when the member or the
// interval is absent.
func (c *MemberCache) RemoveTime(ctx context.Context, memberID string, timeID uint) error {
	var fresh *models.Member

	err := c.transact(ctx, func(tx *gorm.DB) error {
		member, err := loadMember(tx, memberID)
		if err != nil {
			return err
		}
		if member == nil {
			return nil
		}

		for _, t := range member.Times {
			if t.ID != timeID {
				continue
			}
			if err := tx.Delete(&models.Time{}, "id = ?", timeID).Error; err != nil {
				return fmt.Errorf("failed to delete interval: %w", err)
			}
			break
		}

		fresh, err = loadMember(tx, memberID)
		return err
	})
	if err != nil {
		return err
	}

	if fresh != nil {
		c.store(fresh)
	}
	return nil
}

// RemoveMember deletes the member and its intervals. No-op when absent.
// Only ever triggered by the presentation layer.
func (c *MemberCache) RemoveMember(ctx context.Context, memberID string) error {
	err := c.transact(ctx, func(tx *gorm.DB) error {
		member, err := loadMember(tx, memberID)
		if err != nil {
			return err
		}
		if member == nil {
			return nil
		}

		if err := tx.Where("member_id = ?", memberID).Delete(&models.Time{}).Error; err != nil {
			return fmt.Errorf("failed to delete member intervals: %w", err)
		}
		if err := tx.Delete(&models.Member{}, "id = ?", memberID).Error; err != nil {
			return fmt.Errorf("failed to delete member: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.index.Delete(memberID)
	c.gauge()
	return nil
}

// Prime bulk-loads aggregates into the index. Used by the startup warmer.
func (c *MemberCache) Prime(members []models.Member) {
	for i := range members {
		c.index.Set(members[i].ID, &members[i], gocache.NoExpiration)
	}
	c.gauge()
}
