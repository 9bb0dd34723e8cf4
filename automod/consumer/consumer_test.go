package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/snowflake/v2"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ninjabot/ninjaguard/automod/cachestore"
	"github.com/ninjabot/ninjaguard/automod/engine"
	"github.com/ninjabot/ninjaguard/automod/event"
	"github.com/ninjabot/ninjaguard/automod/platform"
)

type recordingProcessor struct {
	mu     sync.Mutex
	events []event.MessageEvent
}

func (p *recordingProcessor) Process(ctx context.Context, evt event.MessageEvent) (engine.Decision, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return engine.Decision{}, nil
}

func (p *recordingProcessor) all() []event.MessageEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]event.MessageEvent(nil), p.events...)
}

const (
	testGuild = snowflake.ID(1000)
	testSelf  = snowflake.ID(1)
	modRole   = snowflake.ID(500)
)

func guildMessage(msg discord.Message, guild snowflake.ID) *events.GuildMessageCreate {
	return &events.GuildMessageCreate{
		GenericGuildMessage: &events.GenericGuildMessage{
			MessageID: msg.ID,
			Message:   msg,
			ChannelID: msg.ChannelID,
			GuildID:   guild,
		},
	}
}

func TestDiscordEligibility(t *testing.T) {
	assert := assert.New(t)

	dc := NewDiscordConsumer(&recordingProcessor{}, testGuild, 1, nil)
	dc.SelfID = testSelf
	dc.ModeratorRoles = []snowflake.ID{modRole}

	base := discord.Message{ID: 10, ChannelID: 20, Author: discord.User{ID: 30}, Content: "hi", Type: discord.MessageTypeDefault}
	webhook := snowflake.ID(77)

	fixtures := []struct {
		name   string
		mutate func(m *discord.Message)
		guild  snowflake.ID
		reason string
	}{
		{name: "plain", guild: testGuild},
		{name: "reply", guild: testGuild, mutate: func(m *discord.Message) { m.Type = discord.MessageTypeReply }},
		{name: "dm", guild: 0, reason: "direct-message"},
		{name: "other guild", guild: 999, reason: "other-guild"},
		{name: "self", guild: testGuild, reason: "self", mutate: func(m *discord.Message) { m.Author.ID = testSelf }},
		{name: "bot", guild: testGuild, reason: "bot", mutate: func(m *discord.Message) { m.Author.Bot = true }},
		{name: "webhook", guild: testGuild, reason: "bot", mutate: func(m *discord.Message) { m.WebhookID = &webhook }},
		{name: "pin notice", guild: testGuild, reason: "message-type", mutate: func(m *discord.Message) { m.Type = discord.MessageTypeChannelPinnedMessage }},
		{name: "moderator", guild: testGuild, reason: "moderator", mutate: func(m *discord.Message) {
			m.Member = &discord.Member{RoleIDs: []snowflake.ID{2, modRole}}
		}},
		{name: "member without mod role", guild: testGuild, mutate: func(m *discord.Message) {
			m.Member = &discord.Member{RoleIDs: []snowflake.ID{2}}
		}},
	}
	for _, f := range fixtures {
		msg := base
		if f.mutate != nil {
			f.mutate(&msg)
		}
		ok, reason := dc.Eligible(&msg, f.guild)
		assert.Equal(f.reason == "", ok, f.name)
		assert.Equal(f.reason, reason, f.name)
	}
}

func TestDiscordConsumerProcesses(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	proc := &recordingProcessor{}
	lines := cachestore.NewMemCacheStore(100, time.Hour)
	dc := NewDiscordConsumer(proc, testGuild, 2, nil)
	dc.Lines = lines
	dc.ChannelName = func(id snowflake.ID) string { return "general" }

	dc.HandleReady(&events.Ready{EventReady: gateway.EventReady{User: discord.OAuth2User{User: discord.User{ID: testSelf}}}})
	select {
	case <-dc.Ready():
	default:
		t.Fatal("consumer should be ready")
	}
	// a second ready (reconnect) must not panic
	dc.HandleReady(&events.Ready{EventReady: gateway.EventReady{User: discord.OAuth2User{User: discord.User{ID: testSelf}}}})

	dc.HandleGuildMessage(guildMessage(discord.Message{ID: 11, ChannelID: 20, Author: discord.User{ID: 30}, Content: "hello"}, testGuild))
	dc.HandleGuildMessage(guildMessage(discord.Message{ID: 12, ChannelID: 20, Author: discord.User{ID: testSelf}, Content: "from the bot"}, testGuild))

	runCtx, cancel := context.WithCancel(ctx)
	cancel()
	require.NoError(dc.Run(runCtx))

	evts := proc.all()
	require.Len(evts, 1)
	assert.Equal("30", evts[0].AuthorID)
	assert.Equal("general", evts[0].ChannelName)
	assert.False(dc.LastEventAt().IsZero())

	line, ok, err := lines.Get(ctx, platform.LineCacheName, "20/11")
	assert.NoError(err)
	assert.True(ok)
	assert.Equal("#general: hello", line)

	// dropped once shut down
	dc.HandleGuildMessage(guildMessage(discord.Message{ID: 13, ChannelID: 20, Author: discord.User{ID: 30}, Content: "late"}, testGuild))
	assert.Len(proc.all(), 1)
}

func TestNatsHandleMsg(t *testing.T) {
	assert := assert.New(t)

	proc := &recordingProcessor{}
	nc := NewNatsConsumer(nil, "chat.messages", "", proc, nil)

	raw, err := json.Marshal(event.MessageEvent{AuthorID: "a", ChannelID: "c", MessageID: "m", Text: "hi"})
	assert.NoError(err)
	nc.HandleMsg(&nats.Msg{Data: raw})
	nc.HandleMsg(&nats.Msg{Data: []byte("{not json")})
	nc.HandleMsg(&nats.Msg{Data: []byte(`{"channelId":"c","text":"no author"}`)})

	raw, err = json.Marshal(event.MessageEvent{AuthorID: "a", ChannelID: "c", MessageID: "m2", Text: " \t ", HasAttachment: true})
	assert.NoError(err)
	nc.HandleMsg(&nats.Msg{Data: raw})

	evts := proc.all()
	assert.Len(evts, 2)
	assert.Equal("hi", evts[0].Text)
	assert.Equal("", evts[1].Text)
	assert.True(evts[1].AttachmentOnly())
}

func TestNatsRunRequiresEngine(t *testing.T) {
	nc := NewNatsConsumer(nil, "chat.messages", "", nil, nil)
	assert.Error(t, nc.Run(context.Background()))
}

func TestDiscordConsumerKeepsAuthorOrder(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	tf := engine.EngineTestFixture()
	dc := NewDiscordConsumer(tf.Engine, testGuild, 8, nil)
	dc.SelfID = testSelf

	const n = 400
	for i := 1; i <= n; i++ {
		// a second author interleaved, so workers are actually shared
		dc.HandleGuildMessage(guildMessage(discord.Message{ID: snowflake.ID(i), ChannelID: 20, Author: discord.User{ID: 30}, Content: fmt.Sprintf("message number %d", i)}, testGuild))
		dc.HandleGuildMessage(guildMessage(discord.Message{ID: snowflake.ID(10_000 + i), ChannelID: 21, Author: discord.User{ID: 31}, Content: fmt.Sprintf("other %d", i)}, testGuild))
	}
	runCtx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(dc.Run(runCtx))

	st, ok := tf.Engine.Store.Get("30")
	require.True(ok)
	require.Len(st.Tracked, n)
	for i, ref := range st.Tracked {
		assert.Equal(strconv.Itoa(i+1), ref.MessageID)
	}
	assert.Equal("message number 400", st.LastText)
}

func TestKeyedSchedulerOrdering(t *testing.T) {
	assert := assert.New(t)

	var mu sync.Mutex
	seen := map[string][]string{}
	s := newKeyedScheduler(4, "test", func(ctx context.Context, evt event.MessageEvent) {
		mu.Lock()
		defer mu.Unlock()
		seen[evt.AuthorID] = append(seen[evt.AuthorID], evt.MessageID)
	}, slog.Default())

	ctx := context.Background()
	for i := 0; i < 200; i++ {
		author := fmt.Sprintf("a%d", i%3)
		assert.NoError(s.AddWork(ctx, author, event.MessageEvent{AuthorID: author, MessageID: strconv.Itoa(i)}))
	}
	s.Shutdown()

	total := 0
	for author, ids := range seen {
		total += len(ids)
		prev := -1
		for _, id := range ids {
			n, err := strconv.Atoi(id)
			require.NoError(t, err)
			assert.Greater(n, prev, author)
			prev = n
		}
	}
	assert.Equal(200, total)
}
