package helpers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractURLs(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		s   string
		out []string
	}{
		{
			s:   "join discord.gg/abc123 now!",
			out: []string{"discord.gg/abc123"},
		},
		{
			s:   "see https://example.com/path?q=1, and www.Example.org.",
			out: []string{"https://example.com/path?q=1", "www.Example.org"},
		},
		{
			s:   "no links here, just text.",
			out: nil,
		},
	}

	for _, fix := range fixtures {
		assert.Equal(fix.out, ExtractURLs(fix.s), fix.s)
	}
}

func TestFingerprint(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("", Fingerprint(""))
	assert.Len(Fingerprint("hello"), 16)
	assert.Equal(Fingerprint("hello"), Fingerprint("hello"))
	assert.NotEqual(Fingerprint("hello"), Fingerprint("hello!"))
}

func TestTruncate(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("short", Truncate("short", 10, "…"))
	assert.Equal("abcdefg…", Truncate("abcdefghijklmnop", 10, "…"))
	assert.LessOrEqual(len(Truncate(strings.Repeat("é", 20), 11, "...")), 11)
	assert.Equal("éé...", Truncate(strings.Repeat("é", 20), 8, "..."))
	assert.Equal("abc", Truncate("abcdef", 3, "[truncated]"))
}
