package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNsMonotonic(t *testing.T) {
	c := New()

	a := c.Ns()
	time.Sleep(time.Millisecond)
	b := c.Ns()

	assert.Greater(t, b, a)
	assert.GreaterOrEqual(t, a, int64(0))
}

func TestWallSeconds(t *testing.T) {
	c := New()

	before := float64(time.Now().Add(-time.Second).UnixNano()) / float64(time.Second)
	got := c.WallSeconds()

	assert.Greater(t, got, before)
}
