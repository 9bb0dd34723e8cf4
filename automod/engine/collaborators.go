package engine

import (
	"context"

	"github.com/ninjabot/ninjaguard/automod/event"
)

// Collaborator operation names, used in errors and metrics
const (
	OpRemoveMember  = "remove_member"
	OpFetchLine     = "fetch_line"
	OpDeleteMessage = "delete_message"
	OpSendReport    = "send_report"
	OpWarn          = "warn"
)

// One-time warning sent when an author first goes over the image rate limit in a channel
const WarnSlowDown = "slow-down"

// Moderation actions against the chat platform.
type Platform interface {
	// Removes the author from the community. reason ends up in the platform audit log.
	RemoveMember(ctx context.Context, authorID, reason string) error
	// Returns a short human-readable rendering of the message, for reports.
	FetchRenderableLine(ctx context.Context, ref event.MessageRef) (string, error)
	DeleteMessage(ctx context.Context, ref event.MessageRef) error
}

// Destination for moderation reports, typically a log channel.
type Reporter interface {
	SendReport(ctx context.Context, text string) error
}

// Delivers warnings to authors. Warnings are template names such as WarnSlowDown or filters.WarnInviteLink; the implementation picks the wording.
type Warner interface {
	Warn(ctx context.Context, evt *event.MessageEvent, warning string) error
}
