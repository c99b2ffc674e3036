package parser

import (
	"io"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// Parse reads an FMI WFS response into a queryable document.
func Parse(r io.Reader) (*xmlquery.Node, error) {
	return xmlquery.Parse(r)
}

// HasRoot reports whether doc holds a root element.
func HasRoot(doc *xmlquery.Node) bool {
	return doc != nil && xmlquery.QuerySelector(doc, rootElement) != nil
}

// Element steps match on local-name() so queries work whatever prefixes a
// document binds, and on documents without namespaces.
var (
	rootElement     = xpath.MustCompile("/*")
	timeseriesNodes = xpath.MustCompile("//*[local-name()='MeasurementTimeseries']")
	pointNodes      = xpath.MustCompile(".//*[local-name()='point']")
	valueNode       = xpath.MustCompile(".//*[local-name()='value']")
	timeNode        = xpath.MustCompile(".//*[local-name()='time']")

	stationNameNode = xpath.MustCompile("//*[local-name()='name'][@codeSpace='" + stationNameCodeSpace + "']")
	positionNode    = xpath.MustCompile("//*[local-name()='pos']")

	memberNodes        = xpath.MustCompile("//*[local-name()='member']")
	metarInputNode     = xpath.MustCompile(".//*[local-name()='source']//*[local-name()='input']")
	timePositionNode   = xpath.MustCompile(".//*[local-name()='timePosition']")
	fieldElevationNode = xpath.MustCompile(".//*[local-name()='fieldElevation']")
	cloudNode          = xpath.MustCompile(".//*[local-name()='MeteorologicalAerodromeObservationRecord']//*[local-name()='cloud']")
	cloudLayerNodes    = xpath.MustCompile(".//*[local-name()='CloudLayer']")
	baseNode           = xpath.MustCompile(".//*[local-name()='base']")
	amountNode         = xpath.MustCompile(".//*[local-name()='amount']")
)

// text returns the trimmed text content of n, or "" for a nil node.
func text(n *xmlquery.Node) string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.InnerText())
}

// attr returns the first attribute of n whose local name is local. Namespace
// declarations are not attributes.
func attr(n *xmlquery.Node, local string) (string, bool) {
	for _, a := range n.Attr {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}
