package region

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntervalMode(t *testing.T) {
	c := New(Interval, 2, 4)
	var got []bool
	for ord := uint64(0); ord < 6; ord++ {
		got = append(got, c.OnLaunch(ord))
	}
	assert.Equal(t, []bool{false, false, true, true, false, false}, got)

	// Profiler events do nothing in interval mode.
	c.Start()
	assert.False(t, c.Active())
	assert.True(t, c.OnLaunch(3))
	c.Stop()
	assert.True(t, c.Active())
}

func TestSignalMode(t *testing.T) {
	c := New(Signal, 0, 100)
	assert.False(t, c.OnLaunch(0), "inactive until started")

	c.Start()
	assert.True(t, c.OnLaunch(1))
	assert.True(t, c.OnLaunch(500), "launch ordinals are ignored")

	c.Stop()
	assert.False(t, c.OnLaunch(2))
	assert.Equal(t, "signal", c.Mode().String())
}

func TestEmptyInterval(t *testing.T) {
	c := New(Interval, 5, 5)
	for ord := uint64(0); ord < 10; ord++ {
		assert.False(t, c.OnLaunch(ord))
	}
}
