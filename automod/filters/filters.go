// Stateless detectors for unsafe message content.
//
// Each filter inspects raw message text and returns a Verdict describing what the engine should do about it. Filters never touch author state; the engine merges their verdicts with its own heuristics.
package filters

const (
	WarnInviteLink = "invite-links-not-allowed"
	WarnSecretKey  = "secret-key-redacted"
)

// Outcome of running a single filter against a message.
type Verdict struct {
	// Filter name, for metrics and logging
	Name string
	// The message must be removed right away, independently of any escalation.
	ForceDelete bool
	// Amount added to the author's abuse score. Zero for safety-only deletions.
	AbuseDelta float64
	// Warning template to send to the author, if any.
	Warning string
}

type Filter interface {
	Name() string
	// Returns the verdict and whether the filter matched at all.
	Check(text string) (Verdict, bool)
}

// Runs every filter against text and returns the verdicts of those which matched, in filter order.
func Run(fs []Filter, text string) []Verdict {
	if text == "" {
		return nil
	}
	var out []Verdict
	for _, f := range fs {
		if v, ok := f.Check(text); ok {
			out = append(out, v)
		}
	}
	return out
}

// The standard filter set, with the invite-link abuse delta supplied by configuration.
func DefaultFilters(inviteDelta float64) []Filter {
	return []Filter{
		&InviteLinkFilter{AbuseDelta: inviteDelta},
		&SecretKeyFilter{},
	}
}
