package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"

	gocache "github.com/patrickmn/go-cache"
	"gorm.io/gorm"

	"punchcard-labs/timeclock/internal/logging"
	"punchcard-labs/timeclock/internal/metrics"
	"punchcard-labs/timeclock/internal/models"
)

// GuildCache is a write-through repository for Guild aggregates (a guild row
// with its roles eagerly loaded). Reads are served from an in-memory index
// and fall back to the durable store on a miss; mutations commit to the
// store first and only then replace the indexed aggregate, so a failed
// commit never surfaces through a read.
type GuildCache struct {
	db      *gorm.DB
	index   *gocache.Cache
	metrics *metrics.Registry

	// joined marks a view bound to a caller's open transaction; see WithTx.
	joined bool
}

// NewGuildCache creates a GuildCache backed by db. reg may be nil.
func NewGuildCache(db *gorm.DB, reg *metrics.Registry) *GuildCache {
	return &GuildCache{
		db:      db,
		index:   gocache.New(gocache.NoExpiration, 0),
		metrics: reg,
	}
}

// WithTx returns a view of the cache whose operations join tx through a
// savepoint instead of opening their own transaction. A failure inside one
// operation rolls back only that savepoint; an abort of tx rolls back
// everything. Mutations made through the view invalidate index keys rather
// than writing them, because nothing is durable until tx itself commits.
func (c *GuildCache) WithTx(tx *gorm.DB) *GuildCache {
	return &GuildCache{db: tx, index: c.index, metrics: c.metrics, joined: true}
}

// transact runs fn in a store transaction. When the cache is bound to an
// outer transaction this becomes a savepoint on that transaction.
func (c *GuildCache) transact(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.db.WithContext(ctx).Transaction(fn)
}

func (c *GuildCache) lookup(guildID string) (*models.Guild, bool) {
	v, ok := c.index.Get(guildID)
	if !ok {
		return nil, false
	}
	return v.(*models.Guild), true
}

// store writes a freshly committed aggregate into the index. In a joined
// view the key is invalidated instead: the savepoint released fine, but the
// outer transaction may still abort, and the index must never run ahead of
// durable state.
func (c *GuildCache) store(guild *models.Guild) {
	if c.joined {
		c.index.Delete(guild.ID)
		return
	}
	c.index.Set(guild.ID, guild, gocache.NoExpiration)
	c.gauge()
}

// cacheRead indexes an aggregate fetched by a read. Skipped in a joined
// view, where the read may observe the outer transaction's uncommitted
// writes.
func (c *GuildCache) cacheRead(guild *models.Guild) {
	if c.joined {
		return
	}
	c.index.Set(guild.ID, guild, gocache.NoExpiration)
	c.gauge()
}

func (c *GuildCache) gauge() {
	if c.metrics != nil {
		c.metrics.GuildsCached.Set(float64(c.index.ItemCount()))
	}
}

func (c *GuildCache) hit() {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues("guilds").Inc()
	}
}

func (c *GuildCache) miss() {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues("guilds").Inc()
	}
}

// loadGuild fetches a guild with its roles eagerly, inside tx. Returns
// (nil, nil) when no row exists.
func loadGuild(tx *gorm.DB, guildID string) (*models.Guild, error) {
	var guild models.Guild
	err := tx.
		Preload("Roles", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&guild, "id = ?", guildID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch guild: %w", err)
	}
	return &guild, nil
}

// GetGuild returns the cached aggregate, falling back to the store on a
// miss. Returns (nil, nil) when the guild does not exist durably.
func (c *GuildCache) GetGuild(ctx context.Context, guildID string) (*models.Guild, error) {
	if guild, ok := c.lookup(guildID); ok {
		c.hit()
		return guild, nil
	}
	c.miss()

	var guild *models.Guild
	err := c.transact(ctx, func(tx *gorm.DB) error {
		var err error
		guild, err = loadGuild(tx, guildID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if guild == nil {
		return nil, nil
	}

	c.cacheRead(guild)
	logging.Debug("Guild fetched from store and cached", "guild_id", guildID)
	return guild, nil
}

// EnsureGuild upserts the guild row. Only supplied fields are applied; an
// unsupplied field keeps its stored value, a cleared field is written NULL.
// The returned aggregate is the post-commit state, re-read eagerly.
func (c *GuildCache) EnsureGuild(
	ctx context.Context,
	guildID string,
	messageID, channelID, embed Field[string],
) (*models.Guild, error) {
	var fresh *models.Guild

	err := c.transact(ctx, func(tx *gorm.DB) error {
		guild, err := loadGuild(tx, guildID)
		if err != nil {
			return err
		}

		if guild == nil {
			guild = &models.Guild{
				ID:        guildID,
				MessageID: messageID.Ptr(),
				ChannelID: channelID.Ptr(),
				Embed:     embed.Ptr(),
			}
			if err := tx.Create(guild).Error; err != nil {
				return fmt.Errorf("failed to create guild: %w", err)
			}
		} else {
			updates := map[string]interface{}{}
			if messageID.Supplied() {
				updates["message_id"] = messageID.Ptr()
			}
			if channelID.Supplied() {
				updates["channel_id"] = channelID.Ptr()
			}
			if embed.Supplied() {
				updates["embed"] = embed.Ptr()
			}
			if len(updates) > 0 {
				err := tx.Model(&models.Guild{}).Where("id = ?", guildID).Updates(updates).Error
				if err != nil {
					return fmt.Errorf("failed to update guild: %w", err)
				}
			}
		}

		fresh, err = loadGuild(tx, guildID)
		if err != nil {
			return err
		}
		if fresh == nil {
			return fmt.Errorf("guild %s vanished inside transaction", guildID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.store(fresh)
	logging.WithGuild(guildID).Debug("Guild config ensured")
	return fresh, nil
}

// UpdateGuild applies a partial config update, creating the row if needed.
func (c *GuildCache) UpdateGuild(
	ctx context.Context,
	guildID string,
	messageID, channelID, embed Field[string],
) error {
	_, err := c.EnsureGuild(ctx, guildID, messageID, channelID, embed)
	return err
}

// GetRoles returns the guild's roles, filtered by the supplied flags (nil
// means no filter). Cache-first; an empty cached result triggers exactly one
// fallback store query, and an empty result from that query is final for
// this call.
func (c *GuildCache) GetRoles(ctx context.Context, guildID string, isMod, canPunch *bool) ([]models.Role, error) {
	if guild, ok := c.lookup(guildID); ok {
		if roles := filterRoles(guild.Roles, isMod, canPunch); len(roles) > 0 {
			c.hit()
			return roles, nil
		}
	}
	c.miss()

	var guild *models.Guild
	err := c.transact(ctx, func(tx *gorm.DB) error {
		var err error
		guild, err = loadGuild(tx, guildID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if guild == nil {
		return nil, nil
	}

	c.cacheRead(guild)
	return filterRoles(guild.Roles, isMod, canPunch), nil
}

func filterRoles(roles []models.Role, isMod, canPunch *bool) []models.Role {
	var out []models.Role
	for _, role := range roles {
		if isMod != nil && role.IsMod != *isMod {
			continue
		}
		if canPunch != nil && role.CanPunch != *canPunch {
			continue
		}
		out = append(out, role)
	}
	return out
}

// AddRole upserts a role by id. The owning guild is created as a side
// effect when it does not exist yet.
func (c *GuildCache) AddRole(ctx context.Context, guildID, roleID string, canPunch, isMod bool) (*models.Role, error) {
	var fresh *models.Guild

	err := c.transact(ctx, func(tx *gorm.DB) error {
		guild, err := loadGuild(tx, guildID)
		if err != nil {
			return err
		}

		if guild == nil {
			guild = &models.Guild{
				ID: guildID,
				Roles: []models.Role{
					{ID: roleID, GuildID: guildID, IsMod: isMod, CanPunch: canPunch},
				},
			}
			if err := tx.Create(guild).Error; err != nil {
				return fmt.Errorf("failed to create guild with role: %w", err)
			}
		} else {
			var existing models.Role
			err := tx.First(&existing, "id = ?", roleID).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				role := models.Role{ID: roleID, GuildID: guildID, IsMod: isMod, CanPunch: canPunch}
				if err := tx.Create(&role).Error; err != nil {
					return fmt.Errorf("failed to create role: %w", err)
				}
			case err != nil:
				return fmt.Errorf("failed to fetch role: %w", err)
			default:
				updates := map[string]interface{}{
					"guild_id":  guildID,
					"is_mod":    isMod,
					"can_punch": canPunch,
				}
				err := tx.Model(&models.Role{}).Where("id = ?", roleID).Updates(updates).Error
				if err != nil {
					return fmt.Errorf("failed to update role: %w", err)
				}
			}
		}

		fresh, err = loadGuild(tx, guildID)
		if err != nil {
			return err
		}
		if fresh == nil {
			return fmt.Errorf("guild %s vanished inside transaction", guildID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.store(fresh)
	logging.WithGuild(guildID).Infow("Role upserted", "role_id", roleID)

	for i := range fresh.Roles {
		if fresh.Roles[i].ID == roleID {
			return &fresh.Roles[i], nil
		}
	}
	return nil, fmt.Errorf("role %s missing after upsert", roleID)
}

// RemoveRole deletes a role by id. Fails with NotFoundError when the role
// does not exist.
func (c *GuildCache) RemoveRole(ctx context.Context, roleID string) error {
	var fresh *models.Guild

	err := c.transact(ctx, func(tx *gorm.DB) error {
		var role models.Role
		err := tx.First(&role, "id = ?", roleID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{Entity: "role", ID: roleID}
		}
		if err != nil {
			return fmt.Errorf("failed to fetch role: %w", err)
		}

		if err := tx.Delete(&role).Error; err != nil {
			return fmt.Errorf("failed to delete role: %w", err)
		}

		fresh, err = loadGuild(tx, role.GuildID)
		return err
	})
	if err != nil {
		return err
	}

	if fresh != nil {
		c.store(fresh)
		logging.WithGuild(fresh.ID).Infow("Role removed", "role_id", roleID)
	}
	return nil
}

// UpdateRole applies the supplied flags to an existing role. Fails with
// NotFoundError when the guild or the role is missing.
func (c *GuildCache) UpdateRole(ctx context.Context, guildID, roleID string, isMod, canPunch *bool) error {
	var fresh *models.Guild

	err := c.transact(ctx, func(tx *gorm.DB) error {
		guild, err := loadGuild(tx, guildID)
		if err != nil {
			return err
		}
		if guild == nil {
			return &NotFoundError{Entity: "guild", ID: guildID}
		}

		found := false
		for _, role := range guild.Roles {
			if role.ID == roleID {
				found = true
				break
			}
		}
		if !found {
			return &NotFoundError{Entity: "role", ID: roleID}
		}

		updates := map[string]interface{}{}
		if isMod != nil {
			updates["is_mod"] = *isMod
		}
		if canPunch != nil {
			updates["can_punch"] = *canPunch
		}
		if len(updates) > 0 {
			err := tx.Model(&models.Role{}).Where("id = ?", roleID).Updates(updates).Error
			if err != nil {
				return fmt.Errorf("failed to update role: %w", err)
			}
		}

		fresh, err = loadGuild(tx, guildID)
		if err != nil {
			return err
		}
		if fresh == nil {
			return fmt.Errorf("guild %s vanished inside transaction", guildID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.store(fresh)
	logging.WithGuild(guildID).Infow("Role updated", "role_id", roleID)
	return nil
}

// RemoveGuild deletes the guild and, by ownership, its roles. No-op when
// the guild does not exist. Deletion is only ever triggered by the
// presentation layer (e.g. the bot leaving a guild).
func (c *GuildCache) RemoveGuild(ctx context.Context, guildID string) error {
	err := c.transact(ctx, func(tx *gorm.DB) error {
		guild, err := loadGuild(tx, guildID)
		if err != nil {
			return err
		}
		if guild == nil {
			return nil
		}

		// Children first; not every backend enforces the cascade.
		if err := tx.Where("guild_id = ?", guildID).Delete(&models.Role{}).Error; err != nil {
			return fmt.Errorf("failed to delete guild roles: %w", err)
		}
		if err := tx.Delete(&models.Guild{}, "id = ?", guildID).Error; err != nil {
			return fmt.Errorf("failed to delete guild: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.index.Delete(guildID)
	c.gauge()
	logging.WithGuild(guildID).Info("Guild removed")
	return nil
}

// Prime bulk-loads aggregates into the index. Used by the startup warmer
// before the service starts taking requests.
func (c *GuildCache) Prime(guilds []models.Guild) {
	for i := range guilds {
		c.index.Set(guilds[i].ID, &guilds[i], gocache.NoExpiration)
	}
	c.gauge()
}

// CachedGuilds returns the indexed aggregates, ordered by id.
func (c *GuildCache) CachedGuilds() []*models.Guild {
	items := c.index.Items()
	out := make([]*models.Guild, 0, len(items))
	for _, item := range items {
		out = append(out, item.Object.(*models.Guild))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
