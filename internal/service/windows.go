package service

import (
	"strconv"
	"time"
)

// Daytime forecast window used when a future day is selected.
const (
	forecastDayStartHour = 7
	forecastDayEndHour   = 21
)

// timeWindow is a half-open query window sent to FMI as RFC3339 UTC timestamps.
type timeWindow struct {
	Start time.Time
	End   time.Time
}

// observationStart is now minus rangeHours, truncated to the hour in loc.
func observationStart(now time.Time, rangeHours int, loc *time.Location) time.Time {
	t := now.In(loc).Add(-time.Duration(rangeHours) * time.Hour)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc)
}

// forecastWindow covers now until now+rangeHours (truncated to the hour) for
// today, or 07:00-21:00 local time for a future day.
func forecastWindow(now time.Time, day, rangeHours int, loc *time.Location) timeWindow {
	local := now.In(loc)
	if day > 0 {
		d := local.AddDate(0, 0, day)
		return timeWindow{
			Start: time.Date(d.Year(), d.Month(), d.Day(), forecastDayStartHour, 0, 0, 0, loc),
			End:   time.Date(d.Year(), d.Month(), d.Day(), forecastDayEndHour, 0, 0, 0, loc),
		}
	}
	end := local.Add(time.Duration(rangeHours) * time.Hour)
	return timeWindow{
		Start: now,
		End:   time.Date(end.Year(), end.Month(), end.Day(), end.Hour(), 0, 0, 0, loc),
	}
}

// cacheBust buckets now into window-sized slots. Requests in the same slot share
// a cache key, so a slot change forces a fresh fetch.
func cacheBust(now time.Time, window time.Duration) string {
	secs := int64(window / time.Second)
	if secs <= 0 {
		secs = 1
	}
	return strconv.FormatInt(now.Unix()/secs, 10)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
