package bot

import "github.com/bwmarrin/discordgo"

// punchButtonID is the component custom id on the status-board button.
const punchButtonID = "timeclock:punch"

// editEmbedModalID is the custom id of the board-embed edit modal.
const editEmbedModalID = "timeclock:edit-embed"

var adminPermission = int64(discordgo.PermissionAdministrator)

func commandDefinitions() []*discordgo.ApplicationCommand {
	minHistory := 1.0

	return []*discordgo.ApplicationCommand{
		{
			Name:        "timesheet",
			Description: "View your timesheet (mods may view other members)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "history",
					Description: "How many days of history to show (default 7, max 31)",
					MinValue:    &minHistory,
					MaxValue:    31,
				},
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "member",
					Description: "View another member's timesheet (mods only)",
				},
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "all-members",
					Description: "Show every member's totals (mods only)",
				},
			},
		},
		{
			Name:                     "duty",
			Description:              "Timeclock administration",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "board",
					Description: "Post or move the punch board to this channel",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "edit-embed",
					Description: "Customize the punch board's title and description",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "role-add",
					Description: "Allow a role to punch or moderate",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionRole,
							Name:        "role",
							Description: "The role to configure",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionBoolean,
							Name:        "can-punch",
							Description: "Role may use the punch button (default true)",
						},
						{
							Type:        discordgo.ApplicationCommandOptionBoolean,
							Name:        "is-mod",
							Description: "Role may view other members' timesheets (default false)",
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "role-update",
					Description: "Change a configured role's permissions",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionRole,
							Name:        "role",
							Description: "The configured role",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionBoolean,
							Name:        "can-punch",
							Description: "Role may use the punch button",
						},
						{
							Type:        discordgo.ApplicationCommandOptionBoolean,
							Name:        "is-mod",
							Description: "Role may view other members' timesheets",
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "role-remove",
					Description: "Remove a role from the timeclock config",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionRole,
							Name:        "role",
							Description: "The configured role",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "roles",
					Description: "View the configured roles",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "set-duty",
					Description: "Override a member's duty flag",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionUser,
							Name:        "member",
							Description: "The member to override",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionBoolean,
							Name:        "on-duty",
							Description: "The new duty state",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "remove-time",
					Description: "Delete one recorded interval",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionUser,
							Name:        "member",
							Description: "The member whose interval to delete",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "time-id",
							Description: "The interval id (shown on the timesheet)",
							Required:    true,
						},
					},
				},
			},
		},
	}
}
