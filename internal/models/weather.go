package models

import (
	"strconv"
	"time"
)

// MissingValue fills companion series that are shorter than the gust series.
const MissingValue = -1

// TimeSeriesPoint is a single (time, value) sample of a named FMI series.
type TimeSeriesPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// WeatherData is one combined wind record. Observations and forecasts share the shape.
type WeatherData struct {
	Gust       float64   `json:"gust"`
	Speed      float64   `json:"speed"`
	Direction  float64   `json:"direction"`
	CloudCover *float64  `json:"cloudCover,omitempty"`
	Time       time.Time `json:"time"`
}

// CloudLayer is a single cloud layer of a METAR report.
type CloudLayer struct {
	Base   float64 `json:"base"`
	Unit   string  `json:"unit"`
	Amount string  `json:"amount"`
	Href   string  `json:"href"`
}

// MetarRecord is an aerodrome observation with its raw METAR text.
type MetarRecord struct {
	Time      time.Time    `json:"time"`
	Elevation float64      `json:"elevation"`
	Metar     string       `json:"metar"`
	Clouds    []CloudLayer `json:"clouds"`
}

// Coordinates is a WGS84 position as reported by the observation station.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// LatLon renders the coordinates in the "lat,lon" form the forecast query expects.
func (c Coordinates) LatLon() string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lon, 'f', -1, 64)
}

// Station identifies the observation station a document was produced for.
type Station struct {
	Name        string      `json:"name"`
	Coordinates Coordinates `json:"coordinates"`
}

// ObservationReport is the combined observation document served by /api/observations.
type ObservationReport struct {
	FMISID       string        `json:"fmisid"`
	Station      Station       `json:"station"`
	Observations []WeatherData `json:"observations"`
	FetchedAt    time.Time     `json:"fetchedAt"`
}

// Latest returns the observation with the newest timestamp.
func Latest(observations []WeatherData) (WeatherData, bool) {
	if len(observations) == 0 {
		return WeatherData{}, false
	}
	latest := observations[0]
	for _, o := range observations[1:] {
		if o.Time.After(latest.Time) {
			latest = o
		}
	}
	return latest, true
}

// IsDataOld reports whether the newest observation is older than maxAge at now.
// A report without observations is always old.
func (r ObservationReport) IsDataOld(now time.Time, maxAge time.Duration) bool {
	latest, ok := Latest(r.Observations)
	if !ok {
		return true
	}
	return now.Sub(latest.Time) > maxAge
}
