package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"punchcard-labs/timeclock/internal/cache"
	"punchcard-labs/timeclock/internal/logging"
	"punchcard-labs/timeclock/internal/models"
)

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		switch i.ApplicationCommandData().Name {
		case "timesheet":
			b.handleTimesheet(s, i)
		case "duty":
			b.handleDuty(s, i)
		}
	case discordgo.InteractionMessageComponent:
		if i.MessageComponentData().CustomID == punchButtonID {
			b.handlePunch(s, i)
		}
	case discordgo.InteractionModalSubmit:
		if i.ModalSubmitData().CustomID == editEmbedModalID {
			b.handleEditEmbedSubmit(s, i)
		}
	}
}

// onGuildDelete drops a guild's config when the bot is removed from it.
// Member punch history is kept; it only goes away through explicit
// administrative removal.
func (b *Bot) onGuildDelete(_ *discordgo.Session, e *discordgo.GuildDelete) {
	if e.Unavailable {
		// Outage, not a removal.
		return
	}
	if err := b.Guilds.RemoveGuild(context.Background(), e.ID); err != nil {
		logging.Error("Failed to remove guild after leaving", "guild_id", e.ID, "error", err)
	}
}

// handlePunch toggles the pressing member's duty state.
func (b *Bot) handlePunch(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	memberID := i.Member.User.ID

	if !b.punchLimiter(memberID).Allow() {
		respondEphemeral(s, i, "Easy there! Give it a few seconds between punches.")
		return
	}

	allowed, err := b.memberCanPunch(ctx, i)
	if err != nil {
		logging.Error("Punch permission check failed", "guild_id", i.GuildID, "error", err)
		respondEphemeral(s, i, "Something went wrong, please try again.")
		return
	}
	if !allowed {
		respondEphemeral(s, i, "You do not have a role that is allowed to punch the timeclock.")
		return
	}

	member, err := b.Members.AddPunchEvent(ctx, i.GuildID, memberID, float64(time.Now().Unix()))
	if err != nil {
		logging.Error("Punch failed", "guild_id", i.GuildID, "member_id", memberID, "error", err)
		respondEphemeral(s, i, "Something went wrong recording your punch, please try again.")
		return
	}

	if member.OnDuty {
		respondEphemeral(s, i, "🟢 You are now **on duty**.")
	} else {
		var closed string
		if n := len(member.Times); n > 0 {
			closed = fmt.Sprintf(" You were on duty for %s.", formatDuration(member.Times[n-1].Duration()))
		}
		respondEphemeral(s, i, "🔴 You are now **off duty**."+closed)
	}

	b.refreshBoard(ctx, s, i.GuildID)
}

// refreshBoard re-renders the on-duty list on the status board. Best effort;
// the board may not exist or may have been deleted out from under us.
func (b *Bot) refreshBoard(ctx context.Context, s *discordgo.Session, guildID string) {
	guild, err := b.Guilds.GetGuild(ctx, guildID)
	if err != nil || guild == nil || !guild.HasBoard() {
		return
	}

	embed := defaultBoardEmbed()
	if guild.Embed != nil {
		if stored, err := decodeEmbed(*guild.Embed); err == nil {
			embed = stored
		}
	}

	members, err := b.Members.GetMembers(ctx, guildID)
	if err != nil {
		logging.Error("Failed to load members for board refresh", "guild_id", guildID, "error", err)
		return
	}

	_, err = s.ChannelMessageEditEmbed(
		*guild.ChannelID, *guild.MessageID,
		withOnDutyField(s, guildID, embed, members),
	)
	if err != nil {
		logging.Warn("Failed to refresh status board", "guild_id", guildID, "error", err)
	}
}

// memberCanPunch checks the pressing member's roles against the guild's
// configured punch roles. A guild with no punch roles configured allows
// everyone.
func (b *Bot) memberCanPunch(ctx context.Context, i *discordgo.InteractionCreate) (bool, error) {
	canPunch := true
	roles, err := b.Guilds.GetRoles(ctx, i.GuildID, nil, &canPunch)
	if err != nil {
		return false, err
	}
	if len(roles) == 0 {
		return true, nil
	}
	return memberHasAny(i.Member, roles), nil
}

// isMod checks the member against the guild's mod roles; guild
// administrators always pass.
func (b *Bot) isMod(ctx context.Context, i *discordgo.InteractionCreate) (bool, error) {
	if i.Member.Permissions&discordgo.PermissionAdministrator != 0 {
		return true, nil
	}
	isMod := true
	roles, err := b.Guilds.GetRoles(ctx, i.GuildID, &isMod, nil)
	if err != nil {
		return false, err
	}
	return memberHasAny(i.Member, roles), nil
}

func (b *Bot) handleTimesheet(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	opts := optionMap(i.ApplicationCommandData().Options)

	days := b.cfg.Bot.HistoryDays
	if opt, ok := opts["history"]; ok {
		days = int(opt.IntValue())
	}
	if days > 31 {
		days = 31
	}

	allMembers := false
	if opt, ok := opts["all-members"]; ok {
		allMembers = opt.BoolValue()
	}

	targetID := i.Member.User.ID
	targetName := displayName(i.Member)
	if opt, ok := opts["member"]; ok {
		user := opt.UserValue(s)
		targetID = user.ID
		targetName = user.Username
	}

	if allMembers && targetID != i.Member.User.ID {
		respondEphemeral(s, i, "`all-members` cannot be combined with a specific member.")
		return
	}

	if allMembers || targetID != i.Member.User.ID {
		mod, err := b.isMod(ctx, i)
		if err != nil {
			respondEphemeral(s, i, "Something went wrong, please try again.")
			return
		}
		if !mod {
			respondEphemeral(s, i, "Only moderators may view other members' timesheets.")
			return
		}
	}

	if allMembers {
		members, err := b.Members.GetMembers(ctx, i.GuildID)
		if err != nil {
			respondEphemeral(s, i, "Something went wrong, please try again.")
			return
		}
		if len(members) == 0 {
			respondEphemeral(s, i, "Nobody has punched the timeclock yet.")
			return
		}
		respondEmbeds(s, i, allMembersEmbeds(s, i.GuildID, members, days))
		return
	}

	member, err := b.Members.GetMember(ctx, targetID)
	if err != nil {
		respondEphemeral(s, i, "Something went wrong, please try again.")
		return
	}
	if member == nil || member.GuildID != i.GuildID {
		respondEphemeral(s, i, fmt.Sprintf("No punches recorded for **%s**.", targetName))
		return
	}

	respondEmbeds(s, i, []*discordgo.MessageEmbed{timesheetEmbed(targetName, member, days)})
}

func (b *Bot) handleDuty(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	sub := i.ApplicationCommandData().Options[0]
	opts := optionMap(sub.Options)

	switch sub.Name {
	case "board":
		b.handleBoard(ctx, s, i)

	case "edit-embed":
		b.handleEditEmbed(ctx, s, i)

	case "role-add":
		role := opts["role"].RoleValue(s, i.GuildID)
		canPunch, isMod := true, false
		if opt, ok := opts["can-punch"]; ok {
			canPunch = opt.BoolValue()
		}
		if opt, ok := opts["is-mod"]; ok {
			isMod = opt.BoolValue()
		}
		if _, err := b.Guilds.AddRole(ctx, i.GuildID, role.ID, canPunch, isMod); err != nil {
			respondEphemeral(s, i, "Failed to save the role, please try again.")
			return
		}
		respondEphemeral(s, i, fmt.Sprintf("Configured <@&%s> (can punch: %t, mod: %t).", role.ID, canPunch, isMod))

	case "role-update":
		role := opts["role"].RoleValue(s, i.GuildID)
		var canPunch, isMod *bool
		if opt, ok := opts["can-punch"]; ok {
			v := opt.BoolValue()
			canPunch = &v
		}
		if opt, ok := opts["is-mod"]; ok {
			v := opt.BoolValue()
			isMod = &v
		}
		err := b.Guilds.UpdateRole(ctx, i.GuildID, role.ID, isMod, canPunch)
		if cache.IsNotFound(err) {
			respondEphemeral(s, i, fmt.Sprintf("<@&%s> is not configured for the timeclock.", role.ID))
			return
		}
		if err != nil {
			respondEphemeral(s, i, "Failed to update the role, please try again.")
			return
		}
		respondEphemeral(s, i, fmt.Sprintf("Updated <@&%s>.", role.ID))

	case "role-remove":
		role := opts["role"].RoleValue(s, i.GuildID)
		err := b.Guilds.RemoveRole(ctx, role.ID)
		if cache.IsNotFound(err) {
			respondEphemeral(s, i, fmt.Sprintf("<@&%s> is not configured for the timeclock.", role.ID))
			return
		}
		if err != nil {
			respondEphemeral(s, i, "Failed to remove the role, please try again.")
			return
		}
		respondEphemeral(s, i, fmt.Sprintf("Removed <@&%s> from the timeclock config.", role.ID))

	case "roles":
		roles, err := b.Guilds.GetRoles(ctx, i.GuildID, nil, nil)
		if err != nil {
			respondEphemeral(s, i, "Something went wrong, please try again.")
			return
		}
		respondEmbeds(s, i, []*discordgo.MessageEmbed{roleListEmbed(roles)})

	case "set-duty":
		user := opts["member"].UserValue(s)
		onDuty := opts["on-duty"].BoolValue()
		err := b.Members.UpdateMember(ctx, user.ID, &onDuty)
		if cache.IsNotFound(err) {
			respondEphemeral(s, i, fmt.Sprintf("No punches recorded for <@%s>.", user.ID))
			return
		}
		if err != nil {
			respondEphemeral(s, i, "Failed to update the member, please try again.")
			return
		}
		respondEphemeral(s, i, fmt.Sprintf("Set <@%s> duty flag to %t.", user.ID, onDuty))
		b.refreshBoard(ctx, s, i.GuildID)

	case "remove-time":
		user := opts["member"].UserValue(s)
		timeID := uint(opts["time-id"].IntValue())
		if err := b.Members.RemoveTime(ctx, user.ID, timeID); err != nil {
			respondEphemeral(s, i, "Failed to remove the interval, please try again.")
			return
		}
		respondEphemeral(s, i, fmt.Sprintf("Removed interval %d for <@%s> (if it existed).", timeID, user.ID))
	}
}

// handleBoard posts (or moves) the punch board and persists its location
// and embed through the guild cache.
func (b *Bot) handleBoard(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	guild, err := b.Guilds.GetGuild(ctx, i.GuildID)
	if err != nil {
		respondEphemeral(s, i, "Something went wrong, please try again.")
		return
	}

	embed := defaultBoardEmbed()
	if guild != nil && guild.Embed != nil {
		if stored, err := decodeEmbed(*guild.Embed); err == nil {
			embed = stored
		}
	}

	msg, err := s.ChannelMessageSendComplex(i.ChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    "Punch",
						Style:    discordgo.PrimaryButton,
						CustomID: punchButtonID,
					},
				},
			},
		},
	})
	if err != nil {
		respondEphemeral(s, i, "I couldn't post in this channel. Check my permissions and try again.")
		return
	}

	// Drop the previous board, if any. Best effort; it may be gone already.
	if guild != nil && guild.HasBoard() {
		_ = s.ChannelMessageDelete(*guild.ChannelID, *guild.MessageID)
	}

	encoded, err := encodeEmbed(embed)
	if err == nil {
		err = b.Guilds.UpdateGuild(ctx, i.GuildID,
			cache.Set(msg.ID), cache.Set(i.ChannelID), cache.Set(encoded))
	}
	if err != nil {
		logging.Error("Failed to persist board location", "guild_id", i.GuildID, "error", err)
		respondEphemeral(s, i, "The board was posted but saving its location failed, please retry.")
		return
	}

	respondEphemeral(s, i, "Punch board posted.")
}

// storedBoardEmbed returns the guild's persisted board embed, or the default
// when none is stored or it fails to decode.
func (b *Bot) storedBoardEmbed(ctx context.Context, guildID string) (*discordgo.MessageEmbed, error) {
	guild, err := b.Guilds.GetGuild(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if guild != nil && guild.Embed != nil {
		if stored, err := decodeEmbed(*guild.Embed); err == nil {
			return stored, nil
		}
	}
	return defaultBoardEmbed(), nil
}

// handleEditEmbed opens the board-embed edit modal, prefilled with the
// currently stored embed.
func (b *Bot) handleEditEmbed(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	embed, err := b.storedBoardEmbed(ctx, i.GuildID)
	if err != nil {
		respondEphemeral(s, i, "Something went wrong, please try again.")
		return
	}

	err = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: editEmbedModal(embed),
	})
	if err != nil {
		logging.Error("Failed to open embed modal", "guild_id", i.GuildID, "error", err)
	}
}

// handleEditEmbedSubmit persists the customized embed and re-renders the
// board if one is posted.
func (b *Bot) handleEditEmbedSubmit(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()

	embed, err := b.storedBoardEmbed(ctx, i.GuildID)
	if err != nil {
		respondEphemeral(s, i, "Something went wrong, please try again.")
		return
	}
	embed = embedFromModal(i.ModalSubmitData(), embed)

	encoded, err := encodeEmbed(embed)
	if err == nil {
		err = b.Guilds.UpdateGuild(ctx, i.GuildID,
			cache.Unset[string](), cache.Unset[string](), cache.Set(encoded))
	}
	if err != nil {
		logging.Error("Failed to persist board embed", "guild_id", i.GuildID, "error", err)
		respondEphemeral(s, i, "Failed to save the embed, please try again.")
		return
	}

	respondEphemeral(s, i, "Board embed updated.")
	b.refreshBoard(ctx, s, i.GuildID)
}

// memberHasAny reports whether the member holds any of the configured roles.
func memberHasAny(member *discordgo.Member, roles []models.Role) bool {
	for _, have := range member.Roles {
		for _, want := range roles {
			if have == want.ID {
				return true
			}
		}
	}
	return false
}

func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		m[opt.Name] = opt
	}
	return m
}

func displayName(member *discordgo.Member) string {
	if member.Nick != "" {
		return member.Nick
	}
	return member.User.Username
}

func respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		logging.Error("Failed to respond to interaction", "error", err)
	}
}

func respondEmbeds(s *discordgo.Session, i *discordgo.InteractionCreate, embeds []*discordgo.MessageEmbed) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Embeds: embeds},
	})
	if err != nil {
		logging.Error("Failed to respond to interaction", "error", err)
	}
}
