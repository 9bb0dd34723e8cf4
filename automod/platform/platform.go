// Chat platform adapters: moderation actions, report delivery, and author warnings, for Discord (REST) and for a NATS request/reply bridge.
package platform

import (
	"github.com/ninjabot/ninjaguard/automod/engine"
	"github.com/ninjabot/ninjaguard/automod/filters"
)

// Namespace for captured report lines in the cache store, keyed by MessageRef.String()
const LineCacheName = "line"

var warningText = map[string]string{
	engine.WarnSlowDown:    "please slow down, you are posting images too quickly.",
	filters.WarnInviteLink: "invite links are not allowed here.",
	filters.WarnSecretKey:  "your message looked like it contained a stream key, so it was removed. You should reset that key now.",
}

// Human wording of a warning template. Unknown templates are passed through as-is.
func WarningText(warning string) string {
	if t, ok := warningText[warning]; ok {
		return t
	}
	return warning
}
