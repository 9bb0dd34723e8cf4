package platform

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"

	"github.com/ninjabot/ninjaguard/automod/cachestore"
	"github.com/ninjabot/ninjaguard/automod/engine"
	"github.com/ninjabot/ninjaguard/automod/event"
)

// The subset of the disgo REST client used for moderation. Satisfied by bot.Client.Rest().
type DiscordREST interface {
	RemoveMember(guildID snowflake.ID, userID snowflake.ID, opts ...rest.RequestOpt) error
	GetMessage(channelID snowflake.ID, messageID snowflake.ID, opts ...rest.RequestOpt) (*discord.Message, error)
	DeleteMessage(channelID snowflake.ID, messageID snowflake.ID, opts ...rest.RequestOpt) error
	CreateMessage(channelID snowflake.ID, messageCreate discord.MessageCreate, opts ...rest.RequestOpt) (*discord.Message, error)
}

// Discord implementation of the engine's Platform, Reporter, and Warner.
type DiscordPlatform struct {
	Rest    DiscordREST
	GuildID snowflake.ID
	// channel which receives moderation reports
	LogChannelID snowflake.ID
	// captured report lines (optional); checked before asking the API
	Lines  cachestore.CacheStore
	Logger *slog.Logger
}

var (
	_ engine.Platform = (*DiscordPlatform)(nil)
	_ engine.Reporter = (*DiscordPlatform)(nil)
	_ engine.Warner   = (*DiscordPlatform)(nil)
)

func parseRef(ref event.MessageRef) (snowflake.ID, snowflake.ID, error) {
	ch, err := snowflake.Parse(ref.ChannelID)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid channel ID %q: %w", ref.ChannelID, err)
	}
	msg, err := snowflake.Parse(ref.MessageID)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid message ID %q: %w", ref.MessageID, err)
	}
	return ch, msg, nil
}

func (p *DiscordPlatform) RemoveMember(ctx context.Context, authorID, reason string) error {
	uid, err := snowflake.Parse(authorID)
	if err != nil {
		return fmt.Errorf("invalid user ID %q: %w", authorID, err)
	}
	return p.Rest.RemoveMember(p.GuildID, uid, rest.WithCtx(ctx), rest.WithReason(reason))
}

func (p *DiscordPlatform) FetchRenderableLine(ctx context.Context, ref event.MessageRef) (string, error) {
	if p.Lines != nil {
		line, ok, err := p.Lines.Get(ctx, LineCacheName, ref.String())
		if err != nil && p.Logger != nil {
			p.Logger.Warn("line cache read failed", "ref", ref.String(), "err", err)
		}
		if ok {
			return line, nil
		}
	}
	ch, msgID, err := parseRef(ref)
	if err != nil {
		return "", err
	}
	msg, err := p.Rest.GetMessage(ch, msgID, rest.WithCtx(ctx))
	if err != nil {
		return "", err
	}
	evt := MessageEventFromDiscord(msg, "")
	return evt.RenderLine(), nil
}

func (p *DiscordPlatform) DeleteMessage(ctx context.Context, ref event.MessageRef) error {
	ch, msgID, err := parseRef(ref)
	if err != nil {
		return err
	}
	err = p.Rest.DeleteMessage(ch, msgID, rest.WithCtx(ctx), rest.WithReason("automod"))
	if p.Lines != nil {
		_ = p.Lines.Purge(ctx, LineCacheName, ref.String())
	}
	return err
}

func (p *DiscordPlatform) SendReport(ctx context.Context, text string) error {
	msg := discord.NewMessageCreateBuilder().
		SetContent(text).
		SetAllowedMentions(&discord.AllowedMentions{}).
		Build()
	_, err := p.Rest.CreateMessage(p.LogChannelID, msg, rest.WithCtx(ctx))
	return err
}

// Posts the warning in the channel the message was sent to, mentioning only the author.
func (p *DiscordPlatform) Warn(ctx context.Context, evt *event.MessageEvent, warning string) error {
	ch, err := snowflake.Parse(evt.ChannelID)
	if err != nil {
		return fmt.Errorf("invalid channel ID %q: %w", evt.ChannelID, err)
	}
	uid, err := snowflake.Parse(evt.AuthorID)
	if err != nil {
		return fmt.Errorf("invalid user ID %q: %w", evt.AuthorID, err)
	}
	msg := discord.NewMessageCreateBuilder().
		SetContent(discord.UserMention(uid) + " " + WarningText(warning)).
		SetAllowedMentions(&discord.AllowedMentions{Users: []snowflake.ID{uid}}).
		Build()
	_, err = p.Rest.CreateMessage(ch, msg, rest.WithCtx(ctx))
	return err
}

// Converts a gateway or REST message into an engine event. channelName is display-only and may be empty.
func MessageEventFromDiscord(msg *discord.Message, channelName string) event.MessageEvent {
	evt := event.MessageEvent{
		AuthorID:    msg.Author.ID.String(),
		AuthorName:  msg.Author.Username,
		ChannelID:   msg.ChannelID.String(),
		ChannelName: channelName,
		MessageID:   msg.ID.String(),
		Text:        strings.TrimSpace(msg.Content),
		Timestamp:   msg.CreatedAt,
	}
	if len(msg.Attachments) > 0 {
		a := msg.Attachments[0]
		evt.HasAttachment = true
		evt.AttachmentName = a.Filename
		evt.AttachmentIsImage = a.ContentType != nil && strings.HasPrefix(*a.ContentType, "image/")
	}
	return evt
}
