package discord

import (
	"errors"
	"net/http/httptest"
	"net/url"
	"sort"
	"sync"

	"github.com/bwmarrin/discordgo"
)

type roleCall struct {
	guildID string
	userID  string
	roleID  string
	reason  string
}

type fakeSession struct {
	mu sync.Mutex

	members    []*discordgo.Member
	memberErr  error
	pageCalls  []string
	guild      *discordgo.Guild
	guildErr   error
	sent       map[string][]*discordgo.MessageEmbed
	added      []roleCall
	removed    []roleCall
	responses  []*discordgo.InteractionResponse
	registered []*discordgo.ApplicationCommand
}

func newFakeSession(members ...*discordgo.Member) *fakeSession {
	sort.Slice(members, func(i, j int) bool {
		return members[i].User.ID < members[j].User.ID
	})
	return &fakeSession{
		members: members,
		guild:   &discordgo.Guild{ID: "guild-1"},
		sent:    make(map[string][]*discordgo.MessageEmbed),
	}
}

func member(id string, roles ...string) *discordgo.Member {
	return &discordgo.Member{User: &discordgo.User{ID: id}, Roles: roles}
}

func auditReason(options []discordgo.RequestOption) string {
	config := &discordgo.RequestConfig{Request: httptest.NewRequest("PUT", "/", nil)}
	for _, option := range options {
		option(config)
	}
	reason, err := url.PathUnescape(config.Request.Header.Get("X-Audit-Log-Reason"))
	if err != nil {
		return ""
	}
	return reason
}

func (s *fakeSession) GuildMembers(_ string, after string, limit int, _ ...discordgo.RequestOption) ([]*discordgo.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageCalls = append(s.pageCalls, after)
	if s.memberErr != nil {
		return nil, s.memberErr
	}
	page := make([]*discordgo.Member, 0, limit)
	for _, candidate := range s.members {
		if candidate.User.ID <= after {
			continue
		}
		page = append(page, candidate)
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

func (s *fakeSession) GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.added = append(s.added, roleCall{guildID: guildID, userID: userID, roleID: roleID, reason: auditReason(options)})
	return nil
}

func (s *fakeSession) GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, roleCall{guildID: guildID, userID: userID, roleID: roleID, reason: auditReason(options)})
	return nil
}

func (s *fakeSession) Guild(_ string, _ ...discordgo.RequestOption) (*discordgo.Guild, error) {
	if s.guildErr != nil {
		return nil, s.guildErr
	}
	return s.guild, nil
}

func (s *fakeSession) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[channelID] = append(s.sent[channelID], embed)
	return &discordgo.Message{ChannelID: channelID}, nil
}

func (s *fakeSession) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, resp)
	return nil
}

func (s *fakeSession) ApplicationCommandBulkOverwrite(appID string, _ string, commands []*discordgo.ApplicationCommand, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	if appID == "" {
		return nil, errors.New("missing application id")
	}
	s.registered = commands
	return commands, nil
}

func (s *fakeSession) lastResponse() *discordgo.InteractionResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.responses) == 0 {
		return nil
	}
	return s.responses[len(s.responses)-1]
}
