package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClock(t *testing.T) {
	assert := assert.New(t)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManual(start)
	assert.Equal(start, c.Now())
	assert.Equal(start.Add(time.Minute), c.Advance(time.Minute))
	assert.Equal(start.Add(time.Minute), c.Now())

	later := start.Add(time.Hour)
	c.Set(later)
	assert.Equal(later, c.Now())

	var _ Clock = System{}
	assert.False(System{}.Now().IsZero())
}
