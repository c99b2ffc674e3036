package parser

import (
	"github.com/kjstillabower/dropzone-weather-service/internal/models"
)

// ZipObservations combines independently parsed series by position. The gust
// series is authoritative: the result has one record per gust point and
// shorter companion series are filled with models.MissingValue.
func ZipObservations(gust, speed, direction []models.TimeSeriesPoint) []models.WeatherData {
	return zip(gust, speed, direction, nil)
}

// ZipForecasts is ZipObservations with an optional cloud cover series. Records
// beyond the end of the cloud series have no cloud cover.
func ZipForecasts(gust, speed, direction, cloud []models.TimeSeriesPoint) []models.WeatherData {
	return zip(gust, speed, direction, cloud)
}

func zip(gust, speed, direction, cloud []models.TimeSeriesPoint) []models.WeatherData {
	out := make([]models.WeatherData, len(gust))
	for i, g := range gust {
		out[i] = models.WeatherData{
			Gust:      g.Value,
			Speed:     valueAt(speed, i),
			Direction: valueAt(direction, i),
			Time:      g.Time,
		}
		if i < len(cloud) {
			v := cloud[i].Value
			out[i].CloudCover = &v
		}
	}
	return out
}

func valueAt(series []models.TimeSeriesPoint, i int) float64 {
	if i < len(series) {
		return series[i].Value
	}
	return models.MissingValue
}

// Reverse returns a reversed copy of points.
func Reverse(points []models.TimeSeriesPoint) []models.TimeSeriesPoint {
	out := make([]models.TimeSeriesPoint, len(points))
	for i, p := range points {
		out[len(points)-1-i] = p
	}
	return out
}
