package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/LaliChicken/active-role-bot/internal/evaluation"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const memberPageSize = 1000

var (
	errMissingSession = errors.New("discord: session is required")
	// ErrNoSystemChannel is returned when a guild has no system channel to post summaries to.
	ErrNoSystemChannel = errors.New("discord: guild has no system channel")
)

// Session is the subset of the discordgo REST surface the service calls.
type Session interface {
	GuildMembers(guildID string, after string, limit int, options ...discordgo.RequestOption) ([]*discordgo.Member, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// Platform applies role changes and posts summaries through a Discord session.
type Platform struct {
	session Session
	logger  *zap.Logger
}

func NewPlatform(session Session, logger *zap.Logger) (*Platform, error) {
	if session == nil {
		return nil, errMissingSession
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Platform{session: session, logger: logger}, nil
}

// RoleMembers pages through the guild member list and returns the ids holding roleID.
func (p *Platform) RoleMembers(ctx context.Context, guildID, roleID string) ([]string, error) {
	var holders []string
	after := ""
	for {
		page, err := p.session.GuildMembers(guildID, after, memberPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("list guild members: %w", err)
		}
		for _, member := range page {
			if member == nil || member.User == nil {
				continue
			}
			if hasRole(member, roleID) {
				holders = append(holders, member.User.ID)
			}
		}
		if len(page) < memberPageSize {
			return holders, nil
		}
		last := page[len(page)-1]
		if last == nil || last.User == nil {
			return holders, nil
		}
		after = last.User.ID
	}
}

func (p *Platform) GrantRole(ctx context.Context, guildID, memberID, roleID, reason string) error {
	return p.session.GuildMemberRoleAdd(guildID, memberID, roleID,
		discordgo.WithContext(ctx),
		discordgo.WithAuditLogReason(reason))
}

func (p *Platform) RevokeRole(ctx context.Context, guildID, memberID, roleID, reason string) error {
	return p.session.GuildMemberRoleRemove(guildID, memberID, roleID,
		discordgo.WithContext(ctx),
		discordgo.WithAuditLogReason(reason))
}

// NotifySummary posts the weekly summary embed to the guild system channel.
func (p *Platform) NotifySummary(ctx context.Context, summary evaluation.Summary) error {
	guild, err := p.session.Guild(summary.CommunityID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("load guild: %w", err)
	}
	if guild.SystemChannelID == "" {
		p.logger.Debug("summary skipped, no system channel", zap.String("community_id", summary.CommunityID))
		return ErrNoSystemChannel
	}
	_, err = p.session.ChannelMessageSendEmbed(guild.SystemChannelID, summaryEmbed(summary), discordgo.WithContext(ctx))
	return err
}

func hasRole(member *discordgo.Member, roleID string) bool {
	for _, role := range member.Roles {
		if role == roleID {
			return true
		}
	}
	return false
}
