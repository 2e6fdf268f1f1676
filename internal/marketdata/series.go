package marketdata

import (
	"sort"
	"time"

	"github.com/aristath/datafeed/internal/domain"
)

// MinimumUsableBars is the smallest daily series worth returning. Anything
// shorter is classified InsufficientData: present but useless to the
// pattern-analysis callers. Intraday series are exempt (a one-day series
// of hourly bars is legitimately short).
const MinimumUsableBars = 10

// cleanBars enforces the series invariants: bars sorted by strictly
// increasing timestamp, no duplicate timestamps, all price/volume fields
// non-negative. Malformed bars are dropped; for duplicate timestamps the
// later-reported bar wins (upstream corrections replace earlier prints).
// Returns the cleaned series and the number of bars dropped.
func cleanBars(bars []domain.Bar) ([]domain.Bar, int) {
	if len(bars) == 0 {
		return bars, 0
	}

	valid := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		if b.Date.IsZero() {
			continue
		}
		if b.Open < 0 || b.High < 0 || b.Low < 0 || b.Close < 0 || b.Volume < 0 {
			continue
		}
		valid = append(valid, b)
	}

	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].Date.Before(valid[j].Date)
	})

	deduped := valid[:0]
	for _, b := range valid {
		if n := len(deduped); n > 0 && deduped[n-1].Date.Equal(b.Date) {
			deduped[n-1] = b
			continue
		}
		deduped = append(deduped, b)
	}

	return deduped, len(bars) - len(deduped)
}

// trimToPeriod drops bars older than the requested period's cutoff. Used
// when a cached series covers a wider window than the caller asked for.
func trimToPeriod(bars []domain.Bar, period domain.Period, now time.Time) []domain.Bar {
	cutoff, bounded := period.CutoffFrom(now)
	if !bounded {
		return bars
	}
	return trimBefore(bars, cutoff)
}

// trimBefore drops bars dated before cutoff. Bars are assumed sorted.
func trimBefore(bars []domain.Bar, cutoff time.Time) []domain.Bar {
	idx := sort.Search(len(bars), func(i int) bool {
		return !bars[i].Date.Before(cutoff)
	})
	return bars[idx:]
}

// sliceRange keeps bars within [start, end] inclusive. Bars are assumed
// sorted. A zero end means no upper bound.
func sliceRange(bars []domain.Bar, start, end time.Time) []domain.Bar {
	out := trimBefore(bars, start)
	if end.IsZero() {
		return out
	}
	idx := sort.Search(len(out), func(i int) bool {
		return out[i].Date.After(end)
	})
	return out[:idx]
}

// minBarsApply reports whether the usable-bar floor applies to a period.
// Windows shorter than a month legitimately produce fewer than
// MinimumUsableBars daily bars, and so does ytd in early January.
func minBarsApply(period domain.Period) bool {
	return period.Covers(domain.Period1M)
}

// coveringPeriod picks the narrowest fetch period that reaches back to
// start. Sources take period strings, not date ranges, so range requests
// fetch a covering window and slice afterwards.
func coveringPeriod(start, now time.Time) domain.Period {
	candidates := []domain.Period{
		domain.Period1M,
		domain.Period3M,
		domain.Period6M,
		domain.Period1Y,
		domain.Period2Y,
		domain.Period5Y,
		domain.Period10Y,
	}
	for _, p := range candidates {
		cutoff, bounded := p.CutoffFrom(now)
		if bounded && !cutoff.After(start) {
			return p
		}
	}
	return domain.PeriodMax
}
