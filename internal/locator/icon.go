package locator

import (
	"strconv"
	"strings"

	"voxfill/internal/classify"
	"voxfill/internal/dom"
)

// HasPaperPlaneIcon reports the common "send" icon signature: an svg holding
// both a diagonal line and an arrow-like polygon.
func HasPaperPlaneIcon(button *dom.Element) bool {
	if button == nil {
		return false
	}
	for _, svg := range button.QuerySelectorAll("svg") {
		if hasDiagonalLine(svg) && hasArrowPolygon(svg) {
			return true
		}
	}
	return false
}

// FindPaperPlaneButton returns the first visible button carrying the
// paper-plane signature.
func FindPaperPlaneButton(doc *dom.Document) *dom.Element {
	for _, b := range doc.QuerySelectorAll(ButtonSelector) {
		if classify.IsOwnUI(b) || !classify.IsVisible(b) {
			continue
		}
		if HasPaperPlaneIcon(b) {
			return b
		}
	}
	return nil
}

func hasDiagonalLine(svg *dom.Element) bool {
	for _, line := range svg.QuerySelectorAll("line") {
		x1, ok1 := number(line.Attr("x1"))
		y1, ok2 := number(line.Attr("y1"))
		x2, ok3 := number(line.Attr("x2"))
		y2, ok4 := number(line.Attr("y2"))
		if ok1 && ok2 && ok3 && ok4 && x1 != x2 && y1 != y2 {
			return true
		}
	}
	return false
}

func hasArrowPolygon(svg *dom.Element) bool {
	for _, poly := range svg.QuerySelectorAll("polygon") {
		coords := strings.FieldsFunc(poly.Attr("points"), func(r rune) bool {
			return r == ' ' || r == ',' || r == '\t' || r == '\n'
		})
		// An arrow head needs at least four vertices.
		if len(coords) >= 8 && len(coords)%2 == 0 {
			return true
		}
	}
	return false
}

func number(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v, err == nil
}
