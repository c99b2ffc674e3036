package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/kjstillabower/dropzone-weather-service/internal/models"
)

// ErrMalformed is returned when an otherwise successful document lacks a node
// the pipeline depends on.
var ErrMalformed = errors.New("malformed upstream document")

const stationNameCodeSpace = "http://xml.fmi.fi/namespace/locationcode/name"

// ParseStation extracts the observation station name and position.
func ParseStation(doc *xmlquery.Node) (models.Station, error) {
	if doc == nil {
		return models.Station{}, fmt.Errorf("%w: empty document", ErrMalformed)
	}
	name := text(xmlquery.QuerySelector(doc, stationNameNode))
	if name == "" {
		return models.Station{}, fmt.Errorf("%w: station name missing", ErrMalformed)
	}

	pos := xmlquery.QuerySelector(doc, positionNode)
	if pos == nil {
		return models.Station{}, fmt.Errorf("%w: station position missing", ErrMalformed)
	}
	coords, err := parsePosition(text(pos))
	if err != nil {
		return models.Station{}, err
	}

	return models.Station{Name: name, Coordinates: coords}, nil
}

// parsePosition reads a gml:pos "lat lon" pair.
func parsePosition(s string) (models.Coordinates, error) {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return models.Coordinates{}, fmt.Errorf("%w: station position %q", ErrMalformed, s)
	}
	lat, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("%w: latitude %q", ErrMalformed, fields[0])
	}
	lon, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("%w: longitude %q", ErrMalformed, fields[1])
	}
	return models.Coordinates{Lat: lat, Lon: lon}, nil
}
