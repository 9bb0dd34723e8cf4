package similarity

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceBasics(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		a        string
		b        string
		expected int
	}{
		{a: "", b: "", expected: 0},
		{a: "hello world", b: "hello world", expected: 0},
		{a: "hello world", b: "hello worle", expected: 1},
		{a: "abc", b: "xyz", expected: 3},
		{a: "Hello   World", b: "hello world", expected: 0},
		{a: "café", b: "cafe", expected: 0},
		{a: "FREE NITRO", b: "free nitro", expected: 0},
	}

	for _, f := range fixtures {
		assert.Equal(f.expected, Distance(f.a, f.b), "%q vs %q", f.a, f.b)
		assert.Equal(f.expected, Distance(f.b, f.a), "%q vs %q", f.b, f.a)
	}
}

func TestDistanceEmpty(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(Unrelated, Distance("", "x"))
	assert.Equal(Unrelated, Distance("some text", ""))
	// whitespace-only normalizes to empty
	assert.Equal(0, Distance("   ", ""))
}

func TestDistanceGraphemes(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(1, Distance("🎉🎉🎉", "🎉🎉"))
	assert.Equal(0, Distance("party 🎉", "PARTY 🎉"))
}

func TestDistanceLongInput(t *testing.T) {
	assert := assert.New(t)

	long := strings.TrimSpace(strings.Repeat("buy cheap followers now ", 500))
	assert.Equal(0, Distance(long, long))
	assert.Equal(1, Distance(long, long+"!"))

	// unrelated long strings stay bounded by the longer length
	other := strings.Repeat("zq", 3000)
	assert.LessOrEqual(Distance(long, other), len(long))
}

func TestDistanceConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				assert.Equal(t, 0, Distance("Ünïcode spam", "unicode SPAM"))
			}
		}()
	}
	wg.Wait()
}

func TestNormalize(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("hello world", Normalize("  Hello\n\tWORLD "))
	assert.Equal("naive", Normalize("naïve"))
	assert.Equal("", Normalize(""))
}
