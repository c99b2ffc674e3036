package validation

import (
	"errors"
	"strconv"
	"strings"
)

// ErrStationEmpty is returned when an FMISID is empty or whitespace-only after trim.
var ErrStationEmpty = errors.New("fmisid is required")

// ErrStationInvalid is returned when an FMISID is not a positive decimal number.
var ErrStationInvalid = errors.New("fmisid must contain digits only")

// ErrAirportInvalid is returned when an ICAO code is not four ASCII letters.
var ErrAirportInvalid = errors.New("icao code must be four letters")

// ErrForecastDayInvalid is returned when a forecast day is not an integer in range.
var ErrForecastDayInvalid = errors.New("forecast day out of range")

// ErrRangeInvalid is returned when an hour range is not a positive integer.
var ErrRangeInvalid = errors.New("range must be a positive number of hours")

// MaxForecastDay is the furthest day ahead FMI forecasts cover.
const MaxForecastDay = 9

// maxStationLen bounds FMISIDs; FMI station ids are six digits today.
const maxStationLen = 10

// ValidateStation trims the input and requires it to be a run of ASCII digits.
// Returns the trimmed id or an error suitable for 400 INVALID_STATION responses.
func ValidateStation(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrStationEmpty
	}
	if len(s) > maxStationLen {
		return "", ErrStationInvalid
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return "", ErrStationInvalid
		}
	}
	return s, nil
}

// ValidateAirport trims and upper-cases an ICAO code. An empty code is allowed
// and returned as ""; the refresh cycle reports it as a missing airport.
func ValidateAirport(input string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(input))
	if s == "" {
		return "", nil
	}
	if len(s) != 4 {
		return "", ErrAirportInvalid
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return "", ErrAirportInvalid
		}
	}
	return s, nil
}

// ParseForecastDay parses input as a day offset within [0, maxDay].
func ParseForecastDay(input string, maxDay int) (int, error) {
	day, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || day < 0 || day > maxDay {
		return 0, ErrForecastDayInvalid
	}
	return day, nil
}

// ParseRange parses an hour range. Empty input returns def.
func ParseRange(input string, def int) (int, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, ErrRangeInvalid
	}
	return n, nil
}
