package locator

import (
	"math"
	"sort"
	"strings"

	"voxfill/internal/classify"
	"voxfill/internal/dom"
)

// ButtonSelector matches everything that can act as a submit control.
const ButtonSelector = `button, input[type="submit"], input[type="button"], input[type="image"], [role="button"]`

// ScoredCandidate is one ranked submit-button candidate.
type ScoredCandidate struct {
	Element  *dom.Element
	Score    float64
	Disabled bool
	Reasons  []string
	position int
}

// FindSubmitButtonForInput returns the best-ranked button for input. When
// the winner is hard-disabled the runner-up is returned instead, and nil
// when there is no runner-up.
func (l *Locator) FindSubmitButtonForInput(doc *dom.Document, input *dom.Element) *dom.Element {
	ranked := l.RankSubmitButtons(doc, input)
	if len(ranked) == 0 {
		return nil
	}
	if !classify.IsHardDisabled(ranked[0].Element) {
		return ranked[0].Element
	}
	if len(ranked) > 1 {
		return ranked[1].Element
	}
	return nil
}

// RankSubmitButtons scores every visible candidate, descending, with ties
// in document order. Disabled candidates are penalized, not dropped.
func (l *Locator) RankSubmitButtons(doc *dom.Document, input *dom.Element) []ScoredCandidate {
	if input == nil {
		return nil
	}
	buttons, form := l.collectButtons(doc, input)
	if len(buttons) == 0 {
		return nil
	}

	positions := doc.Positions()
	soleInForm := form != nil && len(buttons) == 1

	ranked := make([]ScoredCandidate, 0, len(buttons))
	for _, b := range buttons {
		c := l.score(input, b, soleInForm)
		c.position = positions.Of(b)
		ranked = append(ranked, c)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score == ranked[j].Score {
			return ranked[i].position < ranked[j].position
		}
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// collectButtons gathers form buttons, or when the input has no form (or the
// form has none), buttons of up to MaxAncestorDepth ancestors plus a global
// sweep. Results are deduplicated and visible.
func (l *Locator) collectButtons(doc *dom.Document, input *dom.Element) ([]*dom.Element, *dom.Element) {
	seen := make(map[*dom.Element]bool)
	var out []*dom.Element
	add := func(els []*dom.Element) {
		for _, el := range els {
			if seen[el] || el == input {
				continue
			}
			seen[el] = true
			if classify.IsOwnUI(el) || !classify.IsVisible(el) {
				continue
			}
			out = append(out, el)
		}
	}

	if form := input.Form(); form != nil {
		add(form.QuerySelectorAll(ButtonSelector))
		if len(out) > 0 {
			return out, form
		}
	}

	depth := 0
	for cur := input.Parent(); cur != nil && depth < l.w.MaxAncestorDepth; cur = cur.Parent() {
		add(cur.QuerySelectorAll(ButtonSelector))
		depth++
	}
	add(doc.QuerySelectorAll(ButtonSelector))
	return out, nil
}

func (l *Locator) score(input, button *dom.Element, soleInForm bool) ScoredCandidate {
	c := ScoredCandidate{Element: button}
	bump := func(delta float64, reason string) {
		c.Score += delta
		c.Reasons = append(c.Reasons, reason)
	}

	label := buttonLabel(button)
	if containsAny(label, submitKeywords) || equalsAny(strings.TrimSpace(strings.ToLower(button.TextContent())), exactSubmitTexts) {
		bump(l.w.KeywordMatch, "keyword")
	}
	if containsAny(label, negativeKeywords) {
		bump(l.w.NegativeKeyword, "negative-keyword")
	}
	if button.Type() == "submit" && button.HasAttr("type") {
		bump(l.w.TypeSubmit, "type-submit")
	}
	if soleInForm {
		bump(l.w.SoleButtonInForm, "sole-in-form")
	}
	if HasPaperPlaneIcon(button) {
		bump(l.w.PaperPlaneIcon, "paper-plane")
	} else if hasIcon(button) {
		bump(l.w.IconPresent, "icon")
	}

	ir, br := input.BoundingRect(), button.BoundingRect()
	switch d := distance(ir, br); {
	case d <= l.w.NearDistance:
		bump(l.w.NearBonus, "near")
	case d <= l.w.MidDistance:
		bump(l.w.MidBonus, "mid")
	case d <= l.w.FarDistance:
		bump(l.w.FarBonus, "far")
	}
	icx, icy := ir.Center()
	bcx, bcy := br.Center()
	if bcx >= icx && math.Abs(bcy-icy) <= ir.Height+50 {
		bump(l.w.TrailingBonus, "trailing")
	}

	switch {
	case classify.IsHardDisabled(button):
		c.Disabled = true
		bump(l.w.DisabledPenalty, "disabled")
	case classify.IsSoftDisabled(button):
		c.Disabled = true
		bump(l.w.SoftDisabledPenalty, "soft-disabled")
	}
	return c
}

func buttonLabel(el *dom.Element) string {
	return strings.ToLower(strings.Join([]string{
		el.TextContent(),
		el.Attr("aria-label"),
		el.Attr("title"),
		el.Attr("id"),
		el.Attr("name"),
		el.Attr("class"),
		el.Attr("data-testid"),
		el.Attr("value"),
	}, " "))
}

func hasIcon(el *dom.Element) bool {
	if el.QuerySelector("svg, img") != nil {
		return true
	}
	for _, c := range el.Classes() {
		if strings.Contains(strings.ToLower(c), "icon") {
			return true
		}
	}
	return el.QuerySelector(`[class*="icon"]`) != nil
}

// distance is the gap between the button centre and the nearest point of
// the input box.
func distance(input, button dom.Rect) float64 {
	cx, cy := button.Center()
	dx := math.Max(math.Max(input.X-cx, 0), cx-input.Right())
	dy := math.Max(math.Max(input.Y-cy, 0), cy-input.Bottom())
	return math.Hypot(dx, dy)
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func equalsAny(s string, options []string) bool {
	for _, o := range options {
		if s == o {
			return true
		}
	}
	return false
}
