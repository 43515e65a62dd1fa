package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClockNowIsUTC(t *testing.T) {
	before := time.Now().UTC()
	got := RealClock{}.Now()
	after := time.Now().UTC()

	assert.Equal(t, time.UTC, got.Location())
	assert.False(t, got.Before(before), "Now() went backwards")
	assert.False(t, got.After(after), "Now() ran ahead")
}

func TestFixedClockIsStable(t *testing.T) {
	stamp := time.Date(2026, 3, 2, 18, 30, 0, 0, time.UTC)
	c := FixedClock{Time: stamp}

	assert.True(t, c.Now().Equal(stamp))
	assert.True(t, c.Now().Equal(stamp), "repeated reads must not drift")
}

func TestSetAndReset(t *testing.T) {
	t.Cleanup(Reset)

	stamp := time.Date(2026, 3, 2, 18, 30, 0, 0, time.UTC)
	Set(FixedClock{Time: stamp})
	assert.True(t, Now().Equal(stamp))

	Reset()
	assert.False(t, Now().Equal(stamp), "Reset must restore the real clock")
}
