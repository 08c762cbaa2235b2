package discord

import (
	"context"
	"fmt"

	"github.com/LaliChicken/active-role-bot/internal/activity"
	"github.com/LaliChicken/active-role-bot/internal/commands"
	"github.com/bwmarrin/discordgo"
)

const (
	CommandSetup       = "active-setup"
	CommandStatus      = "active-status"
	CommandLeaderboard = "active-leaderboard"

	optionRole      = "role"
	optionThreshold = "threshold"
	optionTimezone  = "timezone"
	optionWeekStart = "week_start"
)

// CommandDefinitions returns the global slash commands the bot serves.
func CommandDefinitions() []*discordgo.ApplicationCommand {
	manageGuild := int64(discordgo.PermissionManageGuild)
	dmAllowed := false
	minThreshold := 1.0
	return []*discordgo.ApplicationCommand{
		{
			Name:                     CommandSetup,
			Description:              "Configure the Active role settings.",
			DefaultMemberPermissions: &manageGuild,
			DMPermission:             &dmAllowed,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        optionRole,
					Description: "Role to assign to active members",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        optionThreshold,
					Description: fmt.Sprintf("Messages per week (default %d)", activity.DefaultThreshold),
					MinValue:    &minThreshold,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        optionTimezone,
					Description: "IANA timezone, e.g. America/Los_Angeles",
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        optionWeekStart,
					Description: "Day the tracked week starts on (default Monday)",
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "Monday", Value: "MONDAY"},
						{Name: "Sunday", Value: "SUNDAY"},
					},
				},
			},
		},
		{
			Name:         CommandStatus,
			Description:  "Show current config and this week's progress.",
			DMPermission: &dmAllowed,
		},
		{
			Name:         CommandLeaderboard,
			Description:  fmt.Sprintf("Top %d message counts for the current week.", commands.LeaderboardSize),
			DMPermission: &dmAllowed,
		},
	}
}

// RegisterCommands replaces the application's global commands with CommandDefinitions.
func RegisterCommands(ctx context.Context, session Session, applicationID string) ([]*discordgo.ApplicationCommand, error) {
	registered, err := session.ApplicationCommandBulkOverwrite(applicationID, "", CommandDefinitions(), discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("register commands: %w", err)
	}
	return registered, nil
}

// setupRequest reads the active-setup options into a service request.
func setupRequest(guildID string, data discordgo.ApplicationCommandInteractionData) commands.SetupRequest {
	request := commands.SetupRequest{CommunityID: guildID}
	for _, option := range data.Options {
		if option == nil {
			continue
		}
		switch option.Name {
		case optionRole:
			if roleID, ok := option.Value.(string); ok {
				request.RoleID = roleID
			}
		case optionThreshold:
			threshold := int(option.IntValue())
			request.Threshold = &threshold
		case optionTimezone:
			request.Timezone = option.StringValue()
		case optionWeekStart:
			request.WeekStart = option.StringValue()
		}
	}
	return request
}
