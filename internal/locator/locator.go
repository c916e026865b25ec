// Package locator finds the most plausible input field and submit button on
// an unknown page using structural and heuristic signals.
package locator

import (
	"strings"

	"voxfill/internal/classify"
	"voxfill/internal/dom"
)

const editableSelector = `textarea, input, [contenteditable]`

// Locator carries the heuristic weights. The zero value is not usable; use New.
type Locator struct {
	w Weights
}

func New(w Weights) *Locator {
	return &Locator{w: w.normalized()}
}

// Default uses DefaultWeights.
func Default() *Locator {
	return New(DefaultWeights())
}

func (l *Locator) Weights() Weights { return l.w }

// FindBestInputField picks the dictation target: the focused element when it
// is editable, else a high-confidence match, else the heuristic choice.
// It returns nil when the page has no editable element at all.
func (l *Locator) FindBestInputField(doc *dom.Document, focused *dom.Element) *dom.Element {
	if focused != nil && focused.IsConnected() && classify.IsEditableInput(focused) && !classify.IsOwnUI(focused) {
		return focused
	}
	if el := l.HighConfidenceInputField(doc); el != nil {
		return el
	}
	return l.HeuristicInputField(doc)
}

// EditableCandidates lists editable elements in document order, excluding
// voxfill's own UI.
func (l *Locator) EditableCandidates(doc *dom.Document) []*dom.Element {
	var out []*dom.Element
	for _, el := range doc.QuerySelectorAll(editableSelector) {
		if classify.IsOwnUI(el) || !classify.IsEditableInput(el) {
			continue
		}
		// Descendants of an editable region are part of it, not fields.
		if p := el.Parent(); p != nil && el.TagName() != "input" && el.TagName() != "textarea" && p.IsContentEditable() {
			continue
		}
		out = append(out, el)
	}
	return out
}

// HighConfidenceInputField matches well-known placeholder texts and class
// signatures of chat composers.
func (l *Locator) HighConfidenceInputField(doc *dom.Document) *dom.Element {
	for _, el := range l.EditableCandidates(doc) {
		if !classify.IsVisible(el) {
			continue
		}
		if hasKnownPlaceholder(el) || hasKnownClass(el) {
			return el
		}
	}
	return nil
}

// HeuristicInputField narrows the candidates by visibility, viewport
// containment and identifying keywords, then prefers the largest.
func (l *Locator) HeuristicInputField(doc *dom.Document) *dom.Element {
	all := l.EditableCandidates(doc)
	if len(all) == 0 {
		return nil
	}

	pool := all
	if visible := filter(pool, classify.IsVisible); len(visible) > 0 {
		pool = visible
	}
	viewport := doc.Viewport()
	if inView := filter(pool, func(el *dom.Element) bool {
		return viewport.ContainsRect(el.BoundingRect())
	}); len(inView) > 0 {
		pool = inView
	}
	if keyed := filter(pool, matchesFieldKeyword); len(keyed) > 0 {
		pool = keyed
	}

	best := pool[0]
	bestArea := l.effectiveArea(best)
	for _, el := range pool[1:] {
		if area := l.effectiveArea(el); area > bestArea {
			best, bestArea = el, area
		}
	}
	return best
}

func (l *Locator) effectiveArea(el *dom.Element) float64 {
	area := el.BoundingRect().Area()
	if el.TagName() != "textarea" && el.TagName() != "input" && el.IsContentEditable() {
		area *= l.w.ContentEditableAreaFactor
	}
	return area
}

func matchesFieldKeyword(el *dom.Element) bool {
	haystack := identity(el, "id", "name", "class", "placeholder", "aria-label", "title")
	for _, kw := range fieldKeywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

func hasKnownPlaceholder(el *dom.Element) bool {
	haystack := identity(el, "placeholder", "data-placeholder", "aria-placeholder")
	if haystack == "" {
		return false
	}
	for _, p := range knownPlaceholders {
		if strings.Contains(haystack, p) {
			return true
		}
	}
	return false
}

func hasKnownClass(el *dom.Element) bool {
	for _, class := range el.Classes() {
		for _, known := range knownFieldClasses {
			if class == known {
				return true
			}
		}
	}
	return false
}

// identity joins the lower-cased values of the given attributes.
func identity(el *dom.Element, attrs ...string) string {
	parts := make([]string, 0, len(attrs))
	for _, a := range attrs {
		if v := strings.TrimSpace(el.Attr(a)); v != "" {
			parts = append(parts, strings.ToLower(v))
		}
	}
	return strings.Join(parts, " ")
}

func filter(els []*dom.Element, keep func(*dom.Element) bool) []*dom.Element {
	var out []*dom.Element
	for _, el := range els {
		if keep(el) {
			out = append(out, el)
		}
	}
	return out
}
