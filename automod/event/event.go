package event

import (
	"time"
)

// A single chat message, normalized by the platform layer before it reaches the engine.
//
// Events are immutable once constructed. The engine assumes the platform layer already dropped anything ineligible for moderation: messages from the bot itself or other bots, direct messages, members holding a moderator role, and system message types (anything other than a default post or a reply).
type MessageEvent struct {
	AuthorID  string    `json:"authorId"`
	ChannelID string    `json:"channelId"`
	MessageID string    `json:"messageId"`
	Text      string    `json:"text,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	HasAttachment     bool `json:"hasAttachment,omitempty"`
	AttachmentIsImage bool `json:"attachmentIsImage,omitempty"`

	// Display-only fields, used for report lines and logging. Never used for scoring.
	AuthorName     string `json:"authorName,omitempty"`
	ChannelName    string `json:"channelName,omitempty"`
	AttachmentName string `json:"attachmentName,omitempty"`
}

// Message with no text body and at least one attachment
func (e *MessageEvent) AttachmentOnly() bool {
	return e.HasAttachment && e.Text == ""
}

// Ref returns the tracking reference for this message.
func (e *MessageEvent) Ref() MessageRef {
	return MessageRef{MessageID: e.MessageID, ChannelID: e.ChannelID}
}

// Enough information to request deletion of a message later. Content is never dereferenced through a ref.
type MessageRef struct {
	MessageID string `json:"messageId"`
	ChannelID string `json:"channelId"`
}

func (r MessageRef) String() string {
	return r.ChannelID + "/" + r.MessageID
}

// One-line description of the message for moderation reports: "#channel: text", or an attachment descriptor when there is no text.
func (e *MessageEvent) RenderLine() string {
	ch := e.ChannelName
	if ch == "" {
		ch = e.ChannelID
	}
	switch {
	case e.Text != "":
		return "#" + ch + ": " + e.Text
	case e.HasAttachment && e.AttachmentName != "":
		return "#" + ch + ": [attachment " + e.AttachmentName + "]"
	case e.HasAttachment:
		return "#" + ch + ": [attachment]"
	}
	return "#" + ch + ": [empty message]"
}
