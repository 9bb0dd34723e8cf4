package consumer

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"

	"github.com/ninjabot/ninjaguard/automod/cachestore"
	"github.com/ninjabot/ninjaguard/automod/event"
	"github.com/ninjabot/ninjaguard/automod/platform"
)

type DiscordConsumer struct {
	Logger *slog.Logger
	Engine Processor
	// captured report lines (optional)
	Lines   cachestore.CacheStore
	GuildID snowflake.ID
	// members holding any of these roles are never moderated
	ModeratorRoles []snowflake.ID
	// the bot's own user; learned from the Ready event when zero
	SelfID snowflake.ID
	// display name lookup (optional)
	ChannelName func(id snowflake.ID) string

	sched     *keyedScheduler
	ready     chan struct{}
	readyOnce sync.Once
	// guards closed against AddWork racing Shutdown
	mu        sync.RWMutex
	closed    bool
	selfID    atomic.Uint64

	// unix nanos of the most recent eligible message. Written concurrently, so use atomics
	lastEvent atomic.Int64
}

var _ Source = (*DiscordConsumer)(nil)

func NewDiscordConsumer(eng Processor, guildID snowflake.ID, parallelism int, logger *slog.Logger) *DiscordConsumer {
	if parallelism <= 0 {
		parallelism = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	dc := &DiscordConsumer{
		Logger:  logger.With("component", "discord-consumer"),
		Engine:  eng,
		GuildID: guildID,
		ready:   make(chan struct{}),
	}
	// one author's messages must reach the engine in the order the gateway delivered them
	dc.sched = newKeyedScheduler(parallelism, "discord", dc.process, dc.Logger)
	return dc
}

func (dc *DiscordConsumer) process(ctx context.Context, evt event.MessageEvent) {
	if _, err := dc.Engine.Process(ctx, evt); err != nil {
		dc.Logger.Error("processing message failed", "author", evt.AuthorID, "message", evt.MessageID, "err", err)
	}
}

// Gateway event listener to register on the disgo client
func (dc *DiscordConsumer) Listener() *events.ListenerAdapter {
	return &events.ListenerAdapter{
		OnReady:              dc.HandleReady,
		OnGuildMessageCreate: dc.HandleGuildMessage,
	}
}

func (dc *DiscordConsumer) Ready() <-chan struct{} {
	return dc.ready
}

func (dc *DiscordConsumer) Run(ctx context.Context) error {
	<-ctx.Done()
	dc.mu.Lock()
	dc.closed = true
	dc.mu.Unlock()
	dc.Logger.Info("waiting for in-flight messages")
	dc.sched.Shutdown()
	return nil
}

// Time of the most recent eligible message, zero if none yet
func (dc *DiscordConsumer) LastEventAt() time.Time {
	n := dc.lastEvent.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (dc *DiscordConsumer) HandleReady(e *events.Ready) {
	if dc.SelfID == 0 {
		dc.selfID.Store(uint64(e.User.ID))
	}
	dc.Logger.Info("discord gateway ready", "user", e.User.Username)
	dc.readyOnce.Do(func() { close(dc.ready) })
}

func (dc *DiscordConsumer) self() snowflake.ID {
	if dc.SelfID != 0 {
		return dc.SelfID
	}
	return snowflake.ID(dc.selfID.Load())
}

// Reports whether a guild message should be judged by the engine, and if not, why.
func (dc *DiscordConsumer) Eligible(msg *discord.Message, guildID snowflake.ID) (bool, string) {
	switch {
	case guildID == 0:
		return false, "direct-message"
	case dc.GuildID != 0 && guildID != dc.GuildID:
		return false, "other-guild"
	case msg.Author.ID == dc.self():
		return false, "self"
	case msg.Author.Bot || msg.Author.System || msg.WebhookID != nil:
		return false, "bot"
	case msg.Type != discord.MessageTypeDefault && msg.Type != discord.MessageTypeReply:
		return false, "message-type"
	}
	if msg.Member != nil {
		for _, r := range msg.Member.RoleIDs {
			if slices.Contains(dc.ModeratorRoles, r) {
				return false, "moderator"
			}
		}
	}
	return true, ""
}

func (dc *DiscordConsumer) HandleGuildMessage(e *events.GuildMessageCreate) {
	msg := e.Message
	if ok, reason := dc.Eligible(&msg, e.GuildID); !ok {
		consumedCount.WithLabelValues("discord", "skip-"+reason).Inc()
		return
	}
	dc.lastEvent.Store(time.Now().UnixNano())

	var name string
	if dc.ChannelName != nil {
		name = dc.ChannelName(msg.ChannelID)
	}
	evt := platform.MessageEventFromDiscord(&msg, name)

	ctx := context.Background()
	// capture now: by the time of a removal the message may be gone
	if dc.Lines != nil {
		if err := dc.Lines.Set(ctx, platform.LineCacheName, evt.Ref().String(), evt.RenderLine()); err != nil {
			dc.Logger.Warn("failed to capture message line", "err", err)
		}
	}

	dc.mu.RLock()
	defer dc.mu.RUnlock()
	if dc.closed {
		consumedCount.WithLabelValues("discord", "dropped").Inc()
		return
	}
	consumedCount.WithLabelValues("discord", "processed").Inc()
	if err := dc.sched.AddWork(ctx, evt.AuthorID, evt); err != nil {
		dc.Logger.Error("failed to queue message", "author", evt.AuthorID, "message", evt.MessageID, "err", err)
	}
}
