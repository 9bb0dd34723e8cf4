package filters

import (
	"regexp"
)

var secretPatterns = []*regexp.Regexp{
	// prefixed stream key, eg live_123456789_AbCdEfGhIjKlMnOpQrSt
	regexp.MustCompile(`\blive_[0-9]{5,}_[A-Za-z0-9]{16,}\b`),
	// four groups of four, eg abcd-1234-ef56-7890
	regexp.MustCompile(`(?i)\b[a-z0-9]{4}-[a-z0-9]{4}-[a-z0-9]{4}-[a-z0-9]{4}\b`),
}

// Matches strings shaped like streaming platform stream keys. The message is removed for the author's safety only, so the abuse delta is zero.
type SecretKeyFilter struct{}

var _ Filter = (*SecretKeyFilter)(nil)

func (f *SecretKeyFilter) Name() string {
	return "secret-key"
}

func (f *SecretKeyFilter) Check(text string) (Verdict, bool) {
	for _, re := range secretPatterns {
		if re.MatchString(text) {
			return Verdict{
				Name:        f.Name(),
				ForceDelete: true,
				Warning:     WarnSecretKey,
			}, true
		}
	}
	return Verdict{}, false
}
