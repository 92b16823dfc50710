package ratelimit

import "time"

func formatEntry(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseEntry(raw string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

// partition counts entries strictly after the start of now's minute as
// current and the rest as previous. Entries are expected oldest first.
func partition(times []time.Time, now time.Time) (current, previous int) {
	minuteStart := now.Truncate(Window)
	for i := len(times) - 1; i >= 0; i-- {
		if !times[i].After(minuteStart) {
			break
		}
		current++
	}
	return current, len(times) - current
}

// elapsedFraction is the whole seconds elapsed in now's minute over 60.
func elapsedFraction(now time.Time) float64 {
	return float64(now.Second()) / 60
}

func weightedEstimate(current, previous int, elapsed float64) float64 {
	return float64(current) + float64(previous)*(1-elapsed)
}

// retryAfter finds the first whole second at which the estimate over times
// drops below quota, assuming no new admissions. It returns Window when the
// log would need a full minute to drain.
func retryAfter(times []time.Time, quota int, now time.Time) time.Duration {
	base := now.Truncate(time.Second)
	for s := 1; s <= int(Window/time.Second); s++ {
		at := base.Add(time.Duration(s) * time.Second)
		cutoff := at.Add(-Window)

		start := 0
		for start < len(times) && times[start].Before(cutoff) {
			start++
		}
		current, previous := partition(times[start:], at)
		if weightedEstimate(current, previous, elapsedFraction(at)) < float64(quota) {
			return at.Sub(now)
		}
	}
	return Window
}
