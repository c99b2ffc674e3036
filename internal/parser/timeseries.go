// Package parser extracts domain values from FMI WFS response documents.
//
// Parsing is lenient about partial telemetry: a missing series is an empty
// result, a missing point value is 0 and a missing point time is the
// caller's now. Station identity is the exception; it is required by the rest
// of the pipeline and its absence is reported as ErrMalformed.
package parser

import (
	"math"
	"strconv"
	"time"

	"github.com/antchfx/xmlquery"

	"github.com/kjstillabower/dropzone-weather-service/internal/models"
)

// Observation series identifiers in fmi::observations::weather::timevaluepair responses.
const (
	ObservationGustSeries      = "obs-obs-1-1-windgust"
	ObservationSpeedSeries     = "obs-obs-1-1-windspeedms"
	ObservationDirectionSeries = "obs-obs-1-1-winddirection"
)

// Forecast series identifiers in scandinavia edited point forecasts.
const (
	ForecastGustSeries      = "mts-1-1-HourlyMaximumGust"
	ForecastSpeedSeries     = "mts-1-1-WindSpeedMS"
	ForecastDirectionSeries = "mts-1-1-WindDirection"
	ForecastCloudSeries     = "mts-1-1-MiddleAndLowCloudCover"
)

// ParseTimeSeries returns the points of the MeasurementTimeseries identified by
// seriesID, in document order. A document without that series yields nil.
// Points without a readable time are stamped with now.
func ParseTimeSeries(doc *xmlquery.Node, seriesID string, now time.Time) []models.TimeSeriesPoint {
	series := findSeries(doc, seriesID)
	if series == nil {
		return nil
	}

	points := xmlquery.QuerySelectorAll(series, pointNodes)
	out := make([]models.TimeSeriesPoint, 0, len(points))
	for _, p := range points {
		out = append(out, models.TimeSeriesPoint{
			Value: parseNumber(xmlquery.QuerySelector(p, valueNode), 0),
			Time:  parseTime(xmlquery.QuerySelector(p, timeNode), now),
		})
	}
	return out
}

func findSeries(doc *xmlquery.Node, seriesID string) *xmlquery.Node {
	if doc == nil {
		return nil
	}
	for _, s := range xmlquery.QuerySelectorAll(doc, timeseriesNodes) {
		if id, ok := attr(s, "id"); ok && id == seriesID {
			return s
		}
	}
	return nil
}

// parseNumber returns def for a missing node, an unparsable number or NaN.
// FMI reports gaps as "NaN", which JSON cannot carry.
func parseNumber(n *xmlquery.Node, def float64) float64 {
	s := text(n)
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

func parseTime(n *xmlquery.Node, now time.Time) time.Time {
	s := text(n)
	if s == "" {
		return now
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return now
	}
	return t
}
