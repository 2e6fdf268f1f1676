package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextDailyExpiry_SameDayBeforeClose(t *testing.T) {
	// Wednesday 10:00 ET, one hour buffer
	now := time.Date(2024, time.June, 12, 10, 0, 0, 0, marketTZ)

	expiry := NextDailyExpiry(now, time.Hour)
	assert.Equal(t, time.Date(2024, time.June, 12, 17, 0, 0, 0, marketTZ), expiry)
}

func TestNextDailyExpiry_WithinBufferWindow(t *testing.T) {
	// Wednesday 16:30 ET: past the close but inside the buffer, so today's
	// close is still the anchor
	now := time.Date(2024, time.June, 12, 16, 30, 0, 0, marketTZ)

	expiry := NextDailyExpiry(now, time.Hour)
	assert.Equal(t, time.Date(2024, time.June, 12, 17, 0, 0, 0, marketTZ), expiry)
}

func TestNextDailyExpiry_AfterCloseRollsToNextDay(t *testing.T) {
	// Wednesday 18:00 ET: today's close has propagated, expire at Thursday's
	now := time.Date(2024, time.June, 12, 18, 0, 0, 0, marketTZ)

	expiry := NextDailyExpiry(now, time.Hour)
	assert.Equal(t, time.Date(2024, time.June, 13, 17, 0, 0, 0, marketTZ), expiry)
}

func TestNextDailyExpiry_FridayEveningSkipsWeekend(t *testing.T) {
	now := time.Date(2024, time.June, 14, 19, 0, 0, 0, marketTZ) // Friday 19:00 ET

	expiry := NextDailyExpiry(now, time.Hour)
	assert.Equal(t, time.Date(2024, time.June, 17, 17, 0, 0, 0, marketTZ), expiry,
		"Friday evening fetch stays fresh until Monday's close")
	assert.Equal(t, time.Monday, expiry.Weekday())
}

func TestNextDailyExpiry_WeekendSkipsToMonday(t *testing.T) {
	saturday := time.Date(2024, time.June, 15, 9, 0, 0, 0, marketTZ)
	sunday := time.Date(2024, time.June, 16, 22, 0, 0, 0, marketTZ)
	monday := time.Date(2024, time.June, 17, 17, 0, 0, 0, marketTZ)

	assert.Equal(t, monday, NextDailyExpiry(saturday, time.Hour))
	assert.Equal(t, monday, NextDailyExpiry(sunday, time.Hour))
}

func TestNextDailyExpiry_ExactBoundaryRolls(t *testing.T) {
	// Exactly at close+buffer the expiry must move forward, never return now
	now := time.Date(2024, time.June, 12, 17, 0, 0, 0, marketTZ)

	expiry := NextDailyExpiry(now, time.Hour)
	assert.True(t, expiry.After(now))
	assert.Equal(t, time.Date(2024, time.June, 13, 17, 0, 0, 0, marketTZ), expiry)
}

func TestNextDailyExpiry_AlwaysFuture(t *testing.T) {
	// Sweep a week of hourly instants; the invariant holds everywhere
	start := time.Date(2024, time.June, 10, 0, 0, 0, 0, marketTZ)
	for h := 0; h < 7*24; h++ {
		now := start.Add(time.Duration(h) * time.Hour)
		expiry := NextDailyExpiry(now, time.Hour)
		assert.True(t, expiry.After(now), "expiry %v not after now %v", expiry, now)
		assert.NotEqual(t, time.Saturday, expiry.Weekday())
		assert.NotEqual(t, time.Sunday, expiry.Weekday())
	}
}
