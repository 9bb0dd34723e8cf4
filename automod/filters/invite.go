package filters

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/purell"

	"github.com/ninjabot/ninjaguard/automod/helpers"
)

const DefaultInviteDelta = 1.5

// hosts which serve invites directly under the root path
var inviteShortHosts = map[string]bool{
	"discord.gg": true,
}

// hosts which serve invites under /invite/ (and every other kind of link, which is fine)
var invitePathHosts = map[string]bool{
	"discord.com":        true,
	"discordapp.com":     true,
	"ptb.discord.com":    true,
	"canary.discord.com": true,
}

// Matches links to the chat platform's own invite mechanism. Internal links (eg, to a channel or message) are not invites and pass.
type InviteLinkFilter struct {
	AbuseDelta float64
}

var _ Filter = (*InviteLinkFilter)(nil)

func (f *InviteLinkFilter) Name() string {
	return "invite-link"
}

func (f *InviteLinkFilter) Check(text string) (Verdict, bool) {
	for _, raw := range helpers.ExtractURLs(text) {
		if IsInviteURL(raw) {
			return Verdict{
				Name:        f.Name(),
				ForceDelete: true,
				AbuseDelta:  f.AbuseDelta,
				Warning:     WarnInviteLink,
			}, true
		}
	}
	return Verdict{}, false
}

// Reports whether a single URL-ish string (scheme optional) is an invite link.
func IsInviteURL(raw string) bool {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	clean, err := purell.NormalizeURLString(raw, purell.FlagsUsuallySafeGreedy|purell.FlagRemoveWWW|purell.FlagRemoveDuplicateSlashes|purell.FlagRemoveFragment)
	if err != nil {
		return false
	}
	u, err := url.Parse(clean)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")

	switch {
	case inviteShortHosts[host]:
		return len(segs) >= 1 && segs[0] != ""
	case invitePathHosts[host]:
		return len(segs) >= 2 && segs[0] == "invite" && segs[1] != ""
	}
	return false
}
