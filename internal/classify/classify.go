// Package classify decides whether page elements can receive dictated text
// or be clicked.
package classify

import (
	"strings"

	"voxfill/internal/dom"
)

// MinActionableOpacity is the computed opacity below which a button is
// treated as visually disabled. Sites fade inactive send buttons rather
// than setting disabled, so this is a heuristic, not a CSS guarantee.
const MinActionableOpacity = 0.9

var textInputTypes = map[string]bool{
	"text":     true,
	"search":   true,
	"email":    true,
	"password": true,
	"url":      true,
	"tel":      true,
}

// disabledClassMarkers are substrings of class tokens that frameworks use to
// style an inactive control.
var disabledClassMarkers = []string{"disabled", "not-allowed", "opacity-50"}

// IsEditableInput reports whether el accepts typed text.
func IsEditableInput(el *dom.Element) bool {
	if el == nil {
		return false
	}
	if el.ReadOnly() || el.Disabled() {
		return false
	}
	if strings.EqualFold(el.Attr("aria-readonly"), "true") {
		return false
	}

	switch el.TagName() {
	case "textarea":
		return true
	case "input":
		raw := strings.ToLower(strings.TrimSpace(el.Attr("type")))
		return raw == "" || textInputTypes[raw]
	}
	return el.IsContentEditable()
}

// IsVisible reports a non-empty box that is not hidden by display,
// visibility or zero opacity.
func IsVisible(el *dom.Element) bool {
	if el == nil {
		return false
	}
	if el.BoundingRect().Area() <= 0 {
		return false
	}
	if el.ComputedStyle("visibility") == "hidden" {
		return false
	}
	return el.Opacity() > 0
}

// IsHardDisabled reports the native disabled flag or aria-disabled="true".
func IsHardDisabled(el *dom.Element) bool {
	if el == nil {
		return false
	}
	return el.Disabled() || strings.EqualFold(el.Attr("aria-disabled"), "true")
}

// IsSoftDisabled reports styling-only disabled signals: disabled-looking
// class tokens or a faded computed opacity.
func IsSoftDisabled(el *dom.Element) bool {
	if el == nil {
		return false
	}
	for _, class := range el.Classes() {
		lower := strings.ToLower(class)
		for _, marker := range disabledClassMarkers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}
	return el.Opacity() < MinActionableOpacity
}

// IsDisabled combines hard and soft signals.
func IsDisabled(el *dom.Element) bool {
	return IsHardDisabled(el) || IsSoftDisabled(el)
}

// IsActionable reports whether a click on el is expected to do something.
func IsActionable(el *dom.Element) bool {
	return IsVisible(el) && !IsDisabled(el)
}

// FieldText reads the current text of an input, textarea or editable region.
func FieldText(el *dom.Element) string {
	if el == nil {
		return ""
	}
	switch el.TagName() {
	case "input", "textarea":
		return el.Value()
	}
	return el.TextContent()
}

// OwnUIAttr marks nodes injected by voxfill itself; they are never
// candidates for dictation or submission.
const OwnUIAttr = "data-voxfill-ui"

// IsOwnUI reports whether el sits inside injected voxfill UI.
func IsOwnUI(el *dom.Element) bool {
	return el != nil && el.Closest("["+OwnUIAttr+"]") != nil
}
