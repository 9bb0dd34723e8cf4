package similarity

import (
	"log/slog"
	"strings"
	"unicode"

	"github.com/rivo/uniseg"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds text so that trivially different copies of a message compare as identical: compatibility decomposition, combining marks (accents) dropped, lower-cased, and whitespace runs collapsed to a single space.
func Normalize(text string) string {
	// transformers carry state, so the chain is built per call
	fold := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(fold, text)
	if err != nil {
		slog.Warn("unicode normalization error", "err", err)
		out = text
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}

// splits text into user-perceived characters, so that an emoji with modifiers counts as a single edit
func graphemes(text string) []string {
	out := make([]string, 0, len(text))
	gr := uniseg.NewGraphemes(text)
	for gr.Next() {
		out = append(out, gr.Str())
	}
	return out
}
