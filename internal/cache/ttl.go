package cache

import "time"

// Daily bars do not change until the next session closes, so their TTL is
// anchored to the NYSE close rather than a fixed duration.
const marketCloseHour = 16 // 16:00 America/New_York

var marketTZ = loadMarketTZ()

func loadMarketTZ() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// Minimal containers may ship without tzdata; the fixed offset is
		// an hour off during DST, which the propagation buffer absorbs.
		return time.FixedZone("EST", -5*60*60)
	}
	return loc
}

// NextDailyExpiry returns the first market close strictly after now, plus
// the propagation buffer, skipping weekends. A fetch on Friday evening
// therefore stays fresh until Monday's close has propagated.
func NextDailyExpiry(now time.Time, buffer time.Duration) time.Time {
	local := now.In(marketTZ)
	expiry := time.Date(local.Year(), local.Month(), local.Day(), marketCloseHour, 0, 0, 0, marketTZ).Add(buffer)

	for !expiry.After(now) || isWeekend(expiry) {
		expiry = expiry.AddDate(0, 0, 1)
	}
	return expiry
}

func isWeekend(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return true
	}
	return false
}
