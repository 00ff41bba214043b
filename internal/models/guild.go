package models

// Guild holds one Discord guild's timeclock configuration: where the
// status-board message lives and which roles may punch or moderate.
type Guild struct {
	ID        string  `gorm:"column:id;primaryKey"`
	MessageID *string `gorm:"column:message_id"`
	ChannelID *string `gorm:"column:channel_id"`
	Embed     *string `gorm:"column:embed;type:text"`

	// Relationships
	Roles []Role `gorm:"foreignKey:GuildID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for GORM
func (Guild) TableName() string {
	return "guild"
}

// HasBoard reports whether a status-board message has been posted for this
// guild. Both ids must be present; a channel id without a message id is a
// leftover from a partial update and is not a usable board.
func (g *Guild) HasBoard() bool {
	return g.ChannelID != nil && g.MessageID != nil
}

// Role is a permission grant scoped to a guild.
type Role struct {
	ID       string `gorm:"column:id;primaryKey"`
	GuildID  string `gorm:"column:guild_id;index"`
	IsMod    bool   `gorm:"column:is_mod;not null"`
	CanPunch bool   `gorm:"column:can_punch;not null"`
}

// TableName specifies the table name for GORM
func (Role) TableName() string {
	return "role"
}
