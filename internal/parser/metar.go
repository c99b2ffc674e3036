package parser

import (
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"

	"github.com/kjstillabower/dropzone-weather-service/internal/models"
)

const unknownUnit = "?"

// ParseMetarRecords returns one record per IWXXM member that carries raw METAR
// text. Members without it are skipped; invalid cloud layers are skipped without
// dropping their record. Records without a readable time are stamped with now.
func ParseMetarRecords(doc *xmlquery.Node, now time.Time) []models.MetarRecord {
	if doc == nil {
		return nil
	}
	var out []models.MetarRecord
	for _, member := range xmlquery.QuerySelectorAll(doc, memberNodes) {
		raw := text(xmlquery.QuerySelector(member, metarInputNode))
		if raw == "" {
			continue
		}
		out = append(out, models.MetarRecord{
			Time:      parseTime(xmlquery.QuerySelector(member, timePositionNode), now),
			Elevation: parseNumber(xmlquery.QuerySelector(member, fieldElevationNode), models.MissingValue),
			Metar:     raw,
			Clouds:    parseCloudLayers(member),
		})
	}
	return out
}

func parseCloudLayers(member *xmlquery.Node) []models.CloudLayer {
	clouds := []models.CloudLayer{}
	cloud := xmlquery.QuerySelector(member, cloudNode)
	if cloud == nil {
		return clouds
	}
	for _, layer := range xmlquery.QuerySelectorAll(cloud, cloudLayerNodes) {
		if c, ok := parseCloudLayer(layer); ok {
			clouds = append(clouds, c)
		}
	}
	return clouds
}

func parseCloudLayer(layer *xmlquery.Node) (models.CloudLayer, bool) {
	base := xmlquery.QuerySelector(layer, baseNode)
	if base == nil {
		return models.CloudLayer{}, false
	}
	amount := xmlquery.QuerySelector(layer, amountNode)
	if amount == nil {
		return models.CloudLayer{}, false
	}
	href, ok := attr(amount, "href")
	if !ok || href == "" {
		return models.CloudLayer{}, false
	}
	code := amountCode(href)
	if code == "" {
		return models.CloudLayer{}, false
	}

	unit, ok := attr(base, "uom")
	if !ok || unit == "" {
		unit = unknownUnit
	}
	return models.CloudLayer{
		Base:   parseNumber(base, 0),
		Unit:   unit,
		Amount: code,
		Href:   href,
	}, true
}

// amountCode returns the last path segment of a WMO code URI such as
// https://codes.wmo.int/bufr4/codeflag/0-20-008/1.
func amountCode(href string) string {
	u, err := url.Parse(href)
	if err != nil || u.Path == "" || strings.HasSuffix(u.Path, "/") {
		return ""
	}
	return path.Base(u.Path)
}
