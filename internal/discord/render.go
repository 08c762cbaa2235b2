package discord

import (
	"fmt"
	"strings"

	"github.com/LaliChicken/active-role-bot/internal/activity"
	"github.com/LaliChicken/active-role-bot/internal/commands"
	"github.com/LaliChicken/active-role-bot/internal/evaluation"
	"github.com/bwmarrin/discordgo"
)

const (
	colorSuccess = 0x57F287
	colorInfo    = 0x5865F2
	colorGold    = 0xF1C40F

	emptyLeaderboard = "_No messages yet this week_"
)

func setupEmbed(settings commands.Settings) *discordgo.MessageEmbed {
	description := fmt.Sprintf("**Role:** <@&%s>\n**Threshold:** %d msgs/week\n**Timezone:** `%s`\n**Week starts:** `%s`\n**Next evaluation:** `%s`",
		settings.RoleID, settings.Threshold, settings.Timezone, settings.WeekStart, settings.HumanNextEvaluation())
	return &discordgo.MessageEmbed{
		Title:       "Active Role Configured",
		Description: description,
		Color:       colorSuccess,
	}
}

func statusEmbed(status commands.Status) *discordgo.MessageEmbed {
	role := "_not set_"
	if status.Settings.RoleID != "" {
		role = fmt.Sprintf("<@&%s>", status.Settings.RoleID)
	}
	description := fmt.Sprintf("**Role:** %s\n**Threshold:** %d\n**Timezone:** `%s`\n**Week starts:** `%s`\n**Current week (from %s):**\n%s\n\n**Next evaluation:** `%s`",
		role,
		status.Settings.Threshold,
		status.Settings.Timezone,
		status.Settings.WeekStart,
		status.Leaderboard.WeekStart,
		leaderboardLines(status.Leaderboard.Entries),
		status.Settings.HumanNextEvaluation())
	return &discordgo.MessageEmbed{
		Title:       "Active Role Status",
		Description: description,
		Color:       colorInfo,
	}
}

func leaderboardEmbed(board commands.Leaderboard) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🏆 This Week's Top Chatters",
		Description: leaderboardLines(board.Entries),
		Color:       colorGold,
	}
}

func summaryEmbed(summary evaluation.Summary) *discordgo.MessageEmbed {
	description := fmt.Sprintf("Gave <@&%s> to:\n%s", summary.RoleID, summary.Body())
	if summary.Total == 0 {
		description = fmt.Sprintf("No one met the threshold this past week. Removed <@&%s> from everyone who had it.", summary.RoleID)
	}
	return &discordgo.MessageEmbed{
		Title:       summary.Title(),
		Description: description,
		Footer:      &discordgo.MessageEmbedFooter{Text: summary.Footer()},
		Color:       colorSuccess,
	}
}

func leaderboardLines(entries []activity.MemberCount) string {
	if len(entries) == 0 {
		return emptyLeaderboard
	}
	lines := make([]string, 0, len(entries))
	for index, entry := range entries {
		lines = append(lines, fmt.Sprintf("**%d.** <@%s> - %d", index+1, entry.MemberID, entry.Count))
	}
	return strings.Join(lines, "\n")
}

func validationMessage(code string) string {
	switch code {
	case "setup.missing_role":
		return "Please choose a role."
	case "setup.invalid_threshold":
		return "Threshold must be at least 1."
	case "setup.invalid_timezone":
		return "Unknown timezone. Use an IANA name such as `America/Los_Angeles`."
	case "setup.invalid_week_start":
		return "Week start must be `MONDAY` or `SUNDAY`."
	default:
		return "That request could not be processed."
	}
}
