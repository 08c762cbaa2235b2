package discord

import (
	"context"
	"errors"
	"strings"

	"github.com/LaliChicken/active-role-bot/internal/activity"
	"github.com/LaliChicken/active-role-bot/internal/commands"
	"github.com/LaliChicken/active-role-bot/internal/events"
	"github.com/LaliChicken/active-role-bot/internal/ingest"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Intents are the gateway intents the bot subscribes to.
const Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers | discordgo.IntentsGuildMessages

var (
	errMissingLoop     = errors.New("discord: event loop is required")
	errMissingMessages = errors.New("discord: message handler is required")
	errMissingCommands = errors.New("discord: command service is required")
	errMissingConfigs  = errors.New("discord: config store is required")
)

// MessageHandler counts inbound messages.
type MessageHandler interface {
	HandleMessage(ctx context.Context, event ingest.MessageEvent)
}

// CommandService serves the slash commands.
type CommandService interface {
	Setup(ctx context.Context, request commands.SetupRequest) (commands.Settings, error)
	Status(ctx context.Context, communityID string) (commands.Status, error)
	Leaderboard(ctx context.Context, communityID string, limit int) (commands.Leaderboard, error)
}

// ConfigInitializer creates default configurations for guilds the bot joins.
type ConfigInitializer interface {
	EnsureConfig(ctx context.Context, communityID string, defaults activity.Defaults) (activity.CommunityConfig, error)
}

// BotConfig wires the gateway handlers. OnGuildsReady runs after the Ready event has ensured a
// configuration for every guild.
type BotConfig struct {
	Session       Session
	Loop          *events.Loop
	Messages      MessageHandler
	Commands      CommandService
	Configs       ConfigInitializer
	Defaults      activity.Defaults
	AdminUserID   string
	OnGuildsReady func(ctx context.Context) error
	Logger        *zap.Logger
}

// Bot translates Discord gateway events into service calls. Gateway callbacks only enqueue onto
// the event loop.
type Bot struct {
	session       Session
	loop          *events.Loop
	messages      MessageHandler
	commands      CommandService
	configs       ConfigInitializer
	defaults      activity.Defaults
	adminUserID   string
	onGuildsReady func(ctx context.Context) error
	logger        *zap.Logger
}

func NewBot(cfg BotConfig) (*Bot, error) {
	if cfg.Session == nil {
		return nil, errMissingSession
	}
	if cfg.Loop == nil {
		return nil, errMissingLoop
	}
	if cfg.Messages == nil {
		return nil, errMissingMessages
	}
	if cfg.Commands == nil {
		return nil, errMissingCommands
	}
	if cfg.Configs == nil {
		return nil, errMissingConfigs
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	bot := &Bot{
		session:       cfg.Session,
		loop:          cfg.Loop,
		messages:      cfg.Messages,
		commands:      cfg.Commands,
		configs:       cfg.Configs,
		defaults:      cfg.Defaults,
		adminUserID:   strings.TrimSpace(cfg.AdminUserID),
		onGuildsReady: cfg.OnGuildsReady,
		logger:        logger,
	}
	bot.loop.Handle(events.KindReady, bot.handleReady)
	bot.loop.Handle(events.KindGuildCreate, bot.handleGuildCreate)
	bot.loop.Handle(events.KindMessageCreate, bot.handleMessage)
	bot.loop.Handle(events.KindInteractionCreate, bot.handleInteraction)
	return bot, nil
}

// NewSession builds a discordgo session with the bot token and the required intents.
func NewSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = Intents
	return session, nil
}

// Attach registers gateway callbacks that enqueue events onto the loop.
func (b *Bot) Attach(session *discordgo.Session) {
	session.AddHandler(func(_ *discordgo.Session, event *discordgo.Ready) {
		b.enqueue(events.KindReady, event)
	})
	session.AddHandler(func(_ *discordgo.Session, event *discordgo.GuildCreate) {
		b.enqueue(events.KindGuildCreate, event)
	})
	session.AddHandler(func(_ *discordgo.Session, event *discordgo.MessageCreate) {
		b.enqueue(events.KindMessageCreate, event)
	})
	session.AddHandler(func(_ *discordgo.Session, event *discordgo.InteractionCreate) {
		b.enqueue(events.KindInteractionCreate, event)
	})
}

func (b *Bot) enqueue(kind events.Kind, payload any) {
	if err := b.loop.Dispatch(events.Event{Kind: kind, Payload: payload}); err != nil {
		b.logger.Debug("event not dispatched", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (b *Bot) handleReady(ctx context.Context, payload any) {
	ready, ok := payload.(*discordgo.Ready)
	if !ok || ready == nil {
		return
	}
	for _, guild := range ready.Guilds {
		if guild == nil {
			continue
		}
		b.ensureConfig(ctx, guild.ID)
	}
	b.logger.Info("gateway ready", zap.Int("guilds", len(ready.Guilds)))
	if b.onGuildsReady != nil {
		if err := b.onGuildsReady(ctx); err != nil {
			b.logger.Warn("schedule refresh failed", zap.Error(err))
		}
	}
}

func (b *Bot) handleGuildCreate(ctx context.Context, payload any) {
	created, ok := payload.(*discordgo.GuildCreate)
	if !ok || created == nil || created.Guild == nil {
		return
	}
	b.ensureConfig(ctx, created.ID)
}

func (b *Bot) ensureConfig(ctx context.Context, guildID string) {
	if _, err := b.configs.EnsureConfig(ctx, guildID, b.defaults); err != nil {
		b.logger.Warn("guild config not ensured", zap.String("community_id", guildID), zap.Error(err))
	}
}

func (b *Bot) handleMessage(ctx context.Context, payload any) {
	message, ok := payload.(*discordgo.MessageCreate)
	if !ok || message == nil || message.Message == nil {
		return
	}
	b.messages.HandleMessage(ctx, messageEvent(message))
}

func messageEvent(message *discordgo.MessageCreate) ingest.MessageEvent {
	event := ingest.MessageEvent{
		CommunityID: message.GuildID,
		At:          message.Timestamp,
	}
	if message.Author != nil {
		event.AuthorID = message.Author.ID
		event.AuthorIsBot = message.Author.Bot
	}
	return event
}

func (b *Bot) handleInteraction(ctx context.Context, payload any) {
	created, ok := payload.(*discordgo.InteractionCreate)
	if !ok || created == nil || created.Interaction == nil {
		return
	}
	interaction := created.Interaction
	if interaction.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if interaction.GuildID == "" {
		b.replyText(ctx, interaction, "This command only works inside a server.", true)
		return
	}

	data := interaction.ApplicationCommandData()
	switch data.Name {
	case CommandSetup:
		b.handleSetup(ctx, interaction, data)
	case CommandStatus:
		status, err := b.commands.Status(ctx, interaction.GuildID)
		if err != nil {
			b.replyError(ctx, interaction, data.Name, err)
			return
		}
		b.replyEmbed(ctx, interaction, statusEmbed(status), true)
	case CommandLeaderboard:
		board, err := b.commands.Leaderboard(ctx, interaction.GuildID, commands.LeaderboardSize)
		if err != nil {
			b.replyError(ctx, interaction, data.Name, err)
			return
		}
		b.replyEmbed(ctx, interaction, leaderboardEmbed(board), false)
	}
}

func (b *Bot) handleSetup(ctx context.Context, interaction *discordgo.Interaction, data discordgo.ApplicationCommandInteractionData) {
	if !b.canConfigure(interaction) {
		b.replyText(ctx, interaction, "You need **Manage Server** permission.", true)
		return
	}
	settings, err := b.commands.Setup(ctx, setupRequest(interaction.GuildID, data))
	if err != nil {
		b.replyError(ctx, interaction, data.Name, err)
		return
	}
	b.replyEmbed(ctx, interaction, setupEmbed(settings), true)
}

func (b *Bot) canConfigure(interaction *discordgo.Interaction) bool {
	if interaction.Member == nil {
		return false
	}
	if interaction.Member.Permissions&discordgo.PermissionManageGuild != 0 {
		return true
	}
	return b.adminUserID != "" && interaction.Member.User != nil && interaction.Member.User.ID == b.adminUserID
}

func (b *Bot) replyError(ctx context.Context, interaction *discordgo.Interaction, command string, err error) {
	var validationErr *commands.ValidationError
	if errors.As(err, &validationErr) {
		b.replyText(ctx, interaction, validationMessage(validationErr.Code()), true)
		return
	}
	b.logger.Error("command failed",
		zap.String("command", command),
		zap.String("community_id", interaction.GuildID),
		zap.Error(err))
	b.replyText(ctx, interaction, "Something went wrong, please try again later.", true)
}

func (b *Bot) replyText(ctx context.Context, interaction *discordgo.Interaction, content string, ephemeral bool) {
	b.respond(ctx, interaction, &discordgo.InteractionResponseData{Content: content}, ephemeral)
}

func (b *Bot) replyEmbed(ctx context.Context, interaction *discordgo.Interaction, embed *discordgo.MessageEmbed, ephemeral bool) {
	b.respond(ctx, interaction, &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}}, ephemeral)
}

func (b *Bot) respond(ctx context.Context, interaction *discordgo.Interaction, data *discordgo.InteractionResponseData, ephemeral bool) {
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	response := &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}
	if err := b.session.InteractionRespond(interaction, response, discordgo.WithContext(ctx)); err != nil {
		b.logger.Warn("interaction response failed", zap.String("community_id", interaction.GuildID), zap.Error(err))
	}
}
