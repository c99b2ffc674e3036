package service

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kjstillabower/dropzone-weather-service/internal/client"
)

type tvp struct {
	t time.Time
	v float64
}

func seriesXML(id string, points []tvp) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<wfs:member><omso:PointTimeSeriesObservation gml:id=%q><om:result><wml2:MeasurementTimeseries gml:id=%q>`, id, id)
	for _, p := range points {
		fmt.Fprintf(&b, `<wml2:point><wml2:MeasurementTVP><wml2:time>%s</wml2:time><wml2:value>%g</wml2:value></wml2:MeasurementTVP></wml2:point>`,
			p.t.UTC().Format(time.RFC3339), p.v)
	}
	b.WriteString(`</wml2:MeasurementTimeseries></om:result></omso:PointTimeSeriesObservation></wfs:member>`)
	return b.String()
}

func collection(body string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<wfs:FeatureCollection xmlns:wfs="http://www.opengis.net/wfs/2.0" xmlns:om="http://www.opengis.net/om/2.0"
 xmlns:omso="http://inspire.ec.europa.eu/schemas/omso/3.0" xmlns:gml="http://www.opengis.net/gml/3.2"
 xmlns:wml2="http://www.opengis.net/waterml/2.0" xmlns:iwxxm="http://icao.int/iwxxm/2.1"
 xmlns:avi="http://xml.fmi.fi/namespace/aviation-weather/2014/02/15" xmlns:xlink="http://www.w3.org/1999/xlink">` +
		body + `</wfs:FeatureCollection>`
}

// observationsXML returns an observation document with gusts oldest first, as FMI sends them.
func observationsXML(now time.Time, gusts ...float64) string {
	var gust, speed, dir []tvp
	for i, g := range gusts {
		t := now.Add(-time.Duration(len(gusts)-i) * 10 * time.Minute)
		gust = append(gust, tvp{t, g})
		speed = append(speed, tvp{t, g / 2})
		dir = append(dir, tvp{t, 180})
	}
	station := `<wfs:member><target:Location xmlns:target="http://xml.fmi.fi/namespace/om/atmosphericfeatures/1.1">
<gml:name codeSpace="http://xml.fmi.fi/namespace/locationcode/name">Kouvola Utti lentoasema</gml:name>
<gml:pos>60.89627 26.93853 </gml:pos></target:Location></wfs:member>`
	return collection(station +
		seriesXML("obs-obs-1-1-windgust", gust) +
		seriesXML("obs-obs-1-1-windspeedms", speed) +
		seriesXML("obs-obs-1-1-winddirection", dir))
}

// forecastXML returns a forecast document with one point per offset from now.
func forecastXML(now time.Time, offsets []time.Duration, gusts []float64) string {
	var gust, speed, dir, cloud []tvp
	for i, off := range offsets {
		t := now.Add(off)
		gust = append(gust, tvp{t, gusts[i]})
		speed = append(speed, tvp{t, gusts[i] / 2})
		dir = append(dir, tvp{t, 200})
		cloud = append(cloud, tvp{t, 50})
	}
	return collection(seriesXML("mts-1-1-HourlyMaximumGust", gust) +
		seriesXML("mts-1-1-WindSpeedMS", speed) +
		seriesXML("mts-1-1-WindDirection", dir) +
		seriesXML("mts-1-1-MiddleAndLowCloudCover", cloud))
}

func metarXML(now time.Time) string {
	return collection(fmt.Sprintf(`<wfs:member><avi:VerifiableMessage><avi:source><avi:input>METAR EFUT 011150Z 24008KT 9999 FEW015 12/04 Q1012=</avi:input></avi:source>
<iwxxm:METAR><iwxxm:observationTime><gml:TimeInstant><gml:timePosition>%s</gml:timePosition></gml:TimeInstant></iwxxm:observationTime>
<iwxxm:aerodrome><iwxxm:fieldElevation uom="M">103</iwxxm:fieldElevation></iwxxm:aerodrome>
<iwxxm:observation><iwxxm:MeteorologicalAerodromeObservationRecord><iwxxm:cloud><iwxxm:AerodromeObservedClouds>
<iwxxm:layer><iwxxm:CloudLayer><iwxxm:amount xlink:href="http://codes.wmo.int/bufr4/codeflag/0-20-008/1"/><iwxxm:base uom="[ft_i]">1500</iwxxm:base></iwxxm:CloudLayer></iwxxm:layer>
</iwxxm:AerodromeObservedClouds></iwxxm:cloud></iwxxm:MeteorologicalAerodromeObservationRecord></iwxxm:observation>
</iwxxm:METAR></avi:VerifiableMessage></wfs:member>`, now.UTC().Format(time.RFC3339)))
}

// fakeFMI serves canned documents per stored query and counts requests.
type fakeFMI struct {
	mu       sync.Mutex
	bodies   map[client.StoredQuery]string
	statuses map[client.StoredQuery]int
	calls    map[client.StoredQuery]int
	params   map[client.StoredQuery][]map[string]string
	delay    time.Duration
	server   *httptest.Server
}

func newFakeFMI(t *testing.T) *fakeFMI {
	t.Helper()
	f := &fakeFMI{
		bodies:   map[client.StoredQuery]string{},
		statuses: map[client.StoredQuery]int{},
		calls:    map[client.StoredQuery]int{},
		params:   map[client.StoredQuery][]map[string]string{},
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeFMI) serve(w http.ResponseWriter, r *http.Request) {
	q := client.StoredQuery(r.URL.Query().Get("storedquery_id"))

	f.mu.Lock()
	f.calls[q]++
	p := map[string]string{}
	for k := range r.URL.Query() {
		p[k] = r.URL.Query().Get(k)
	}
	f.params[q] = append(f.params[q], p)
	status, hasStatus := f.statuses[q]
	body := f.bodies[q]
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if hasStatus {
		w.WriteHeader(status)
		return
	}
	if body == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write([]byte(body))
}

func (f *fakeFMI) set(q client.StoredQuery, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[q] = body
	delete(f.statuses, q)
}

func (f *fakeFMI) fail(q client.StoredQuery, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[q] = status
}

func (f *fakeFMI) callCount(q client.StoredQuery) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[q]
}

func (f *fakeFMI) lastParams(q client.StoredQuery) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ps := f.params[q]
	if len(ps) == 0 {
		return nil
	}
	return ps[len(ps)-1]
}
