package client

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/kjstillabower/dropzone-weather-service/internal/parser"
)

// BenchmarkClient_BuildRequest benchmarks stored query URL construction.
func BenchmarkClient_BuildRequest(b *testing.B) {
	client, _ := NewFMIClient(DefaultBaseURL, 2*time.Second)
	ctx := context.Background()
	params := Params{
		"latlon":     "60.89627,26.93853",
		"timestep":   "10",
		"parameters": "HourlyMaximumGust,WindDirection,WindSpeedMS,MiddleAndLowCloudCover",
		"starttime":  "2024-05-01T10:00:00Z",
		"endtime":    "2024-05-01T18:00:00Z",
		"cch":        "57141234",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = client.buildRequest(ctx, QueryForecast, params)
	}
}

// BenchmarkClient_ParseDocument benchmarks building the queryable document of a response body.
func BenchmarkClient_ParseDocument(b *testing.B) {
	body := []byte(`<wfs:FeatureCollection xmlns:wfs="http://www.opengis.net/wfs/2.0" xmlns:wml2="http://www.opengis.net/waterml/2.0">
<wfs:member><wml2:MeasurementTimeseries gml:id="mts-1-1-WindSpeedMS" xmlns:gml="http://www.opengis.net/gml/3.2">
<wml2:point><wml2:MeasurementTVP><wml2:time>2024-05-01T10:00:00Z</wml2:time><wml2:value>3.2</wml2:value></wml2:MeasurementTVP></wml2:point>
<wml2:point><wml2:MeasurementTVP><wml2:time>2024-05-01T10:10:00Z</wml2:time><wml2:value>3.6</wml2:value></wml2:MeasurementTVP></wml2:point>
</wml2:MeasurementTimeseries></wfs:member></wfs:FeatureCollection>`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = parser.Parse(bytes.NewReader(body))
	}
}

// BenchmarkStatusLabel benchmarks HTTP status code to label conversion.
func BenchmarkStatusLabel(b *testing.B) {
	statusCodes := []int{200, 400, 404, 500, 503}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = statusLabel(response{status: statusCodes[i%len(statusCodes)]}, nil)
	}
}
