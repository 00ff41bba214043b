package bot

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"punchcard-labs/timeclock/internal/models"
)

const embedDescriptionLimit = 1000

func defaultBoardEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Timeclock",
		Description: "Use the button below to punch in or out.",
		Footer:      &discordgo.MessageEmbedFooter{Text: "🟢 On Duty | 🔴 Off Duty"},
	}
}

// encodeEmbed serializes an embed for the guild's embed column.
func encodeEmbed(embed *discordgo.MessageEmbed) (string, error) {
	raw, err := json.Marshal(embed)
	if err != nil {
		return "", fmt.Errorf("failed to encode embed: %w", err)
	}
	return string(raw), nil
}

func decodeEmbed(raw string) (*discordgo.MessageEmbed, error) {
	var embed discordgo.MessageEmbed
	if err := json.Unmarshal([]byte(raw), &embed); err != nil {
		return nil, fmt.Errorf("failed to decode embed: %w", err)
	}
	return &embed, nil
}

// formatDuration renders a duration the way the timesheet shows totals:
// "N days, N hours, N minutes, N seconds".
func formatDuration(d time.Duration) string {
	seconds := int64(d.Seconds())
	days := seconds / 86400
	seconds -= days * 86400
	hours := seconds / 3600
	seconds -= hours * 3600
	minutes := seconds / 60
	seconds -= minutes * 60

	return fmt.Sprintf("%d days, %d hours, %d minutes, %d seconds", days, hours, minutes, seconds)
}

func statusIcon(onDuty bool) string {
	if onDuty {
		return "🟢"
	}
	return "🔴"
}

func intervalLine(t *models.Time) string {
	out := "-"
	if t.PunchOut != nil {
		out = fmt.Sprintf("<t:%d:t>", int64(*t.PunchOut))
	}
	return fmt.Sprintf("`#%d` In: <t:%d:t> | Out: %s | Total: %s",
		t.ID, int64(t.PunchIn), out, formatDuration(t.Duration()))
}

// timesheetEmbed renders one member's intervals over the history window.
func timesheetEmbed(name string, member *models.Member, days int) *discordgo.MessageEmbed {
	window := member.TimesSince(days)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Total On Duty time for the last %d days\n%s\n\n",
		days, formatDuration(member.TotalOnDuty(days)))
	for i := range window {
		sb.WriteString(intervalLine(&window[i]))
		sb.WriteByte('\n')
	}

	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Timesheet for %s", name),
		Description: sb.String(),
		Footer:      &discordgo.MessageEmbedFooter{Text: statusIcon(member.OnDuty) + " " + dutyLabel(member.OnDuty)},
	}
}

func dutyLabel(onDuty bool) string {
	if onDuty {
		return "On Duty"
	}
	return "Off Duty"
}

// allMembersEmbeds renders every member's total, split across embeds when a
// description would exceed the limit.
func allMembersEmbeds(s *discordgo.Session, guildID string, members []*models.Member, days int) []*discordgo.MessageEmbed {
	var total time.Duration
	for _, m := range members {
		total += m.TotalOnDuty(days)
	}

	header := fmt.Sprintf("**Total On Duty time for the last %d days**\n%s\n\n", days, formatDuration(total))
	descriptions := []string{header}

	for _, m := range members {
		name := m.ID
		if gm, err := s.State.Member(guildID, m.ID); err == nil {
			name = displayName(gm)
		}
		line := fmt.Sprintf("%s %s - %s\n", statusIcon(m.OnDuty), name, formatDuration(m.TotalOnDuty(days)))

		last := descriptions[len(descriptions)-1]
		if len(last)+len(line) > embedDescriptionLimit {
			descriptions = append(descriptions, line)
		} else {
			descriptions[len(descriptions)-1] = last + line
		}
	}

	embeds := make([]*discordgo.MessageEmbed, 0, len(descriptions))
	for i, desc := range descriptions {
		title := "Member Time Totals"
		if i > 0 {
			title = "Member Time Totals (continued)"
		}
		embeds = append(embeds, &discordgo.MessageEmbed{
			Title:       title,
			Description: desc,
			Footer:      &discordgo.MessageEmbedFooter{Text: "🟢 On Duty | 🔴 Off Duty"},
		})
	}
	return embeds
}

const (
	modalFieldTitle       = "title"
	modalFieldDescription = "description"
)

// editEmbedModal builds the board-embed edit modal, prefilled with the
// current title and description.
func editEmbedModal(base *discordgo.MessageEmbed) *discordgo.InteractionResponseData {
	return &discordgo.InteractionResponseData{
		CustomID: editEmbedModalID,
		Title:    "Edit Punch Board",
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.TextInput{
					CustomID:  modalFieldTitle,
					Label:     "Title",
					Style:     discordgo.TextInputShort,
					Value:     base.Title,
					Required:  true,
					MaxLength: 256,
				},
			}},
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.TextInput{
					CustomID:  modalFieldDescription,
					Label:     "Description",
					Style:     discordgo.TextInputParagraph,
					Value:     base.Description,
					Required:  true,
					MaxLength: 2048,
				},
			}},
		},
	}
}

// embedFromModal applies the submitted title and description onto a copy of
// the current board embed. Footer and fields stay as they are.
func embedFromModal(data discordgo.ModalSubmitInteractionData, base *discordgo.MessageEmbed) *discordgo.MessageEmbed {
	embed := *base
	for _, row := range data.Components {
		actions, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, comp := range actions.Components {
			input, ok := comp.(*discordgo.TextInput)
			if !ok {
				continue
			}
			switch input.CustomID {
			case modalFieldTitle:
				embed.Title = input.Value
			case modalFieldDescription:
				embed.Description = input.Value
			}
		}
	}
	return &embed
}

// withOnDutyField returns the board embed carrying a field that lists the
// members currently on duty. The stored embed is never mutated.
func withOnDutyField(s *discordgo.Session, guildID string, base *discordgo.MessageEmbed, members []*models.Member) *discordgo.MessageEmbed {
	var sb strings.Builder
	for _, m := range members {
		if !m.OnDuty {
			continue
		}
		name := m.ID
		if gm, err := s.State.Member(guildID, m.ID); err == nil {
			name = displayName(gm)
		}
		fmt.Fprintf(&sb, "🟢 %s\n", name)
	}

	value := sb.String()
	if value == "" {
		value = "Nobody right now."
	}

	embed := *base
	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: "On Duty", Value: value},
	}
	return &embed
}

func roleListEmbed(roles []models.Role) *discordgo.MessageEmbed {
	if len(roles) == 0 {
		return &discordgo.MessageEmbed{
			Title:       "Configured Roles",
			Description: "No roles configured. Everyone may punch; only administrators may moderate.",
		}
	}

	var sb strings.Builder
	for _, role := range roles {
		fmt.Fprintf(&sb, "<@&%s> - can punch: %t, mod: %t\n", role.ID, role.CanPunch, role.IsMod)
	}
	return &discordgo.MessageEmbed{
		Title:       "Configured Roles",
		Description: sb.String(),
	}
}
