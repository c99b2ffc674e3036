//go:build integration
// +build integration

package client

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/dropzone-weather-service/internal/parser"
)

func integrationURL(t *testing.T) string {
	t.Helper()
	if os.Getenv("FMI_INTEGRATION") == "" {
		t.Skip("FMI_INTEGRATION not set, skipping integration test")
	}
	if u := os.Getenv("FMI_URL"); u != "" {
		return u
	}
	return DefaultBaseURL
}

func TestFMIClient_Observations_Integration(t *testing.T) {
	client, err := NewFMIClient(integrationURL(t), 10*time.Second)
	if err != nil {
		t.Fatalf("NewFMIClient() error = %v", err)
	}

	doc, err := client.Fetch(context.Background(), QueryObservations, Params{
		"fmisid":     "101191",
		"parameters": "winddirection,windspeedms,windgust,n_man",
		"starttime":  time.Now().Add(-2 * time.Hour).UTC().Truncate(time.Hour).Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	station, err := parser.ParseStation(doc.Root)
	if err != nil {
		t.Fatalf("ParseStation() error = %v", err)
	}
	if station.Name == "" {
		t.Error("ParseStation() returned empty name")
	}
	if len(parser.ParseTimeSeries(doc.Root, parser.ObservationGustSeries, time.Now())) == 0 {
		t.Error("no gust observations in the last two hours")
	}
}

func TestFMIClient_UnknownAirport_Integration(t *testing.T) {
	client, err := NewFMIClient(integrationURL(t), 10*time.Second)
	if err != nil {
		t.Fatalf("NewFMIClient() error = %v", err)
	}

	_, err = client.Fetch(context.Background(), QueryMetar, Params{"icaocode": "ZZZZ"})
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrUpstreamFailure) {
		t.Errorf("Fetch() error = %v, want not found or upstream failure", err)
	}
}
