package store

import (
	"time"

	"github.com/kjstillabower/dropzone-weather-service/internal/models"
)

// TrendHorizon bounds which forecast points count towards the gust trend.
const TrendHorizon = time.Hour

// GustTrend is the mean forecast gust over points up to now+TrendHorizon minus the
// latest observed gust. It is 0 when no forecast point qualifies; a missing
// observation counts as a gust of 0.
func GustTrend(observations, forecasts []models.WeatherData, now time.Time) float64 {
	limit := now.Add(TrendHorizon)
	var sum float64
	var n int
	for _, f := range forecasts {
		if f.Time.After(limit) {
			continue
		}
		sum += f.Gust
		n++
	}
	if n == 0 {
		return 0
	}

	var latest float64
	if obs, ok := models.Latest(observations); ok {
		latest = obs.Gust
	}
	return sum/float64(n) - latest
}
