package helpers

import (
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/spaolacci/murmur3"
)

// Compact, non-cryptographic fingerprint of a message body, suitable for logs in place of the content itself.
//
// Uses murmur3 (64-bit, default seed), hex encoded.
func Fingerprint(text string) string {
	if text == "" {
		return ""
	}
	return fmt.Sprintf("%016x", murmur3.Sum64([]byte(text)))
}

// loose URL matcher: optional scheme, a dotted host, and an optional path. Trailing punctuation is not included.
var urlRegex = regexp.MustCompile(`(?i)(?:https?://)?(?:[a-z0-9-]+\.)+[a-z]{2,}(?:/[^\s<>()]*[^\s<>().,!?:;'"])?`)

// Finds URL-like substrings in free-form chat text, with or without scheme.
func ExtractURLs(text string) []string {
	return urlRegex.FindAllString(text, -1)
}

// Cuts s down to at most limit bytes without splitting a UTF-8 sequence, appending marker when anything was removed. The marker counts against the limit.
func Truncate(s string, limit int, marker string) string {
	if len(s) <= limit {
		return s
	}
	if limit <= len(marker) {
		marker = ""
	}
	cut := limit - len(marker)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + marker
}
