// Package discord adapts the platform capability surface onto a Discord
// guild via discordgo. The adapter is deliberately thin: all reconciliation
// logic lives above it, and every method is a single REST round trip (plus
// pagination for members).
package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"mudgate.gg/internal/platform"
)

type Client struct {
	session *discordgo.Session
	guildID string
}

// New connects a bot session to one guild.
func New(token, guildID string) (*Client, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
	if err := s.Open(); err != nil {
		return nil, fmt.Errorf("open gateway: %w", err)
	}
	return &Client{session: s, guildID: guildID}, nil
}

func (c *Client) Close() error { return c.session.Close() }

// classify wraps rate limits and server-side failures as transient so the
// reconcilers retry them silently on the next pass.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) {
		return &platform.TransientError{Err: err}
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		code := rest.Response.StatusCode
		if code == 429 || code >= 500 {
			return &platform.TransientError{Err: err}
		}
	}
	return err
}

func (c *Client) Topology(ctx context.Context) (platform.Topology, error) {
	chans, err := c.session.GuildChannels(c.guildID)
	if err != nil {
		return platform.Topology{}, classify(err)
	}
	var t platform.Topology
	for _, ch := range chans {
		switch ch.Type {
		case discordgo.ChannelTypeGuildCategory:
			t.Categories = append(t.Categories, platform.Category{ID: ch.ID, Name: ch.Name})
		case discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildVoice:
			t.Channels = append(t.Channels, platform.Channel{
				ID:         ch.ID,
				Name:       ch.Name,
				CategoryID: ch.ParentID,
				Topic:      ch.Topic,
				Voice:      ch.Type == discordgo.ChannelTypeGuildVoice,
				Viewers:    viewers(ch),
			})
		}
	}
	return t, nil
}

func viewers(ch *discordgo.Channel) map[string]bool {
	out := make(map[string]bool)
	for _, ow := range ch.PermissionOverwrites {
		if ow.Type == discordgo.PermissionOverwriteTypeMember && ow.Allow&discordgo.PermissionViewChannel != 0 {
			out[ow.ID] = true
		}
	}
	return out
}

// hideFromEveryone denies view to the @everyone role (whose id equals the
// guild id); per-user grants then punch holes in the fog.
func (c *Client) hideFromEveryone() []*discordgo.PermissionOverwrite {
	return []*discordgo.PermissionOverwrite{{
		ID:   c.guildID,
		Type: discordgo.PermissionOverwriteTypeRole,
		Deny: discordgo.PermissionViewChannel,
	}}
}

func (c *Client) CreateCategory(ctx context.Context, name string) (platform.Category, error) {
	ch, err := c.session.GuildChannelCreateComplex(c.guildID, discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildCategory,
		PermissionOverwrites: c.hideFromEveryone(),
	})
	if err != nil {
		return platform.Category{}, classify(err)
	}
	return platform.Category{ID: ch.ID, Name: ch.Name}, nil
}

func (c *Client) CreateTextChannel(ctx context.Context, categoryID, name, topic string) (platform.Channel, error) {
	ch, err := c.session.GuildChannelCreateComplex(c.guildID, discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                topic,
		ParentID:             categoryID,
		PermissionOverwrites: c.hideFromEveryone(),
	})
	if err != nil {
		return platform.Channel{}, classify(err)
	}
	return platform.Channel{ID: ch.ID, Name: ch.Name, CategoryID: ch.ParentID, Topic: ch.Topic, Viewers: map[string]bool{}}, nil
}

func (c *Client) CreateVoiceChannel(ctx context.Context, categoryID, name string) (platform.Channel, error) {
	ch, err := c.session.GuildChannelCreateComplex(c.guildID, discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildVoice,
		ParentID:             categoryID,
		PermissionOverwrites: c.hideFromEveryone(),
	})
	if err != nil {
		return platform.Channel{}, classify(err)
	}
	return platform.Channel{ID: ch.ID, Name: ch.Name, CategoryID: ch.ParentID, Voice: true, Viewers: map[string]bool{}}, nil
}

func (c *Client) EditTopic(ctx context.Context, channelID, topic string) error {
	_, err := c.session.ChannelEdit(channelID, &discordgo.ChannelEdit{Topic: topic})
	return classify(err)
}

func (c *Client) SetVisibility(ctx context.Context, channelID, userID string, visible bool) error {
	if visible {
		allow := discordgo.PermissionViewChannel | discordgo.PermissionVoiceConnect | discordgo.PermissionVoiceSpeak
		return classify(c.session.ChannelPermissionSet(
			channelID, userID, discordgo.PermissionOverwriteTypeMember, int64(allow), 0))
	}
	// Clearing the overwrite drops the user back to the category default.
	return classify(c.session.ChannelPermissionDelete(channelID, userID))
}

func (c *Client) Members(ctx context.Context) ([]platform.Member, error) {
	var out []platform.Member
	after := ""
	for {
		page, err := c.session.GuildMembers(c.guildID, after, 1000)
		if err != nil {
			return nil, classify(err)
		}
		if len(page) == 0 {
			return out, nil
		}
		for _, m := range page {
			if m.User == nil || m.User.Bot {
				continue
			}
			out = append(out, platform.Member{ID: m.User.ID, Name: m.User.Username})
		}
		after = page[len(page)-1].User.ID
	}
}

func (c *Client) Announce(ctx context.Context, channelName, message string) error {
	chans, err := c.session.GuildChannels(c.guildID)
	if err != nil {
		return classify(err)
	}
	for _, ch := range chans {
		if ch.Type == discordgo.ChannelTypeGuildText && ch.Name == channelName {
			_, err := c.session.ChannelMessageSend(ch.ID, message)
			return classify(err)
		}
	}
	return fmt.Errorf("console channel %q not found", channelName)
}
