package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAttachmentOnly(t *testing.T) {
	assert := assert.New(t)

	evt := MessageEvent{HasAttachment: true}
	assert.True(evt.AttachmentOnly())

	evt.Text = "look at this"
	assert.False(evt.AttachmentOnly())

	assert.False((&MessageEvent{}).AttachmentOnly())
}

func TestMessageEventJSON(t *testing.T) {
	assert := assert.New(t)

	raw := `{"authorId":"a1","channelId":"c1","messageId":"m1","text":"hi","timestamp":"2024-05-01T10:00:00Z","hasAttachment":true}`
	var evt MessageEvent
	assert.NoError(json.Unmarshal([]byte(raw), &evt))
	assert.Equal("a1", evt.AuthorID)
	assert.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), evt.Timestamp)
	assert.True(evt.HasAttachment)
	assert.False(evt.AttachmentIsImage)
	assert.Equal(MessageRef{MessageID: "m1", ChannelID: "c1"}, evt.Ref())
	assert.Equal("c1/m1", evt.Ref().String())
}

func TestRenderLine(t *testing.T) {
	assert := assert.New(t)

	evt := MessageEvent{ChannelID: "123", ChannelName: "general", Text: "hello"}
	assert.Equal("#general: hello", evt.RenderLine())

	evt = MessageEvent{ChannelID: "123", HasAttachment: true, AttachmentName: "cat.png"}
	assert.Equal("#123: [attachment cat.png]", evt.RenderLine())

	evt = MessageEvent{ChannelID: "123", HasAttachment: true}
	assert.Equal("#123: [attachment]", evt.RenderLine())

	evt = MessageEvent{ChannelName: "general"}
	assert.Equal("#general: [empty message]", evt.RenderLine())
}
