package dom

import (
	"sort"
	"strconv"
	"strings"
)

// Rect is a rendered box in viewport coordinates.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

func (r Rect) Area() float64 {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	return r.Width * r.Height
}

func (r Rect) Right() float64  { return r.X + r.Width }
func (r Rect) Bottom() float64 { return r.Y + r.Height }

func (r Rect) Center() (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// ContainsRect reports whether o lies fully inside r.
func (r Rect) ContainsRect(o Rect) bool {
	return o.X >= r.X && o.Y >= r.Y && o.Right() <= r.Right() && o.Bottom() <= r.Bottom()
}

// Without a layout engine, boxes come from inline left/top/width/height
// declarations; unspecified sizes fall back to these per-tag defaults.
var defaultSizes = map[string]Rect{
	"input":    {Width: 200, Height: 24},
	"textarea": {Width: 300, Height: 60},
	"button":   {Width: 32, Height: 32},
	"select":   {Width: 120, Height: 24},
	"svg":      {Width: 24, Height: 24},
	"img":      {Width: 24, Height: 24},
	"a":        {Width: 60, Height: 20},
}

var fallbackSize = Rect{Width: 100, Height: 20}

// InlineStyle parses the style attribute into lower-cased declarations.
func (e *Element) InlineStyle() map[string]string {
	out := make(map[string]string)
	for _, decl := range strings.Split(e.Attr("style"), ";") {
		name, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value), "!important"))
		if name != "" {
			out[name] = strings.TrimSpace(value)
		}
	}
	return out
}

// Style returns one inline declaration.
func (e *Element) Style(prop string) string {
	return e.InlineStyle()[strings.ToLower(prop)]
}

// SetStyle updates one inline declaration; an empty value removes it.
func (e *Element) SetStyle(prop, value string) {
	decls := e.InlineStyle()
	prop = strings.ToLower(prop)
	if value == "" {
		delete(decls, prop)
	} else {
		decls[prop] = value
	}
	keys := make([]string, 0, len(decls))
	for k := range decls {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+decls[k])
	}
	if len(parts) == 0 {
		e.RemoveAttr("style")
		return
	}
	e.SetAttr("style", strings.Join(parts, "; "))
}

// ComputedStyle resolves display, visibility and opacity. Visibility is
// inherited; display and opacity are the element's own.
func (e *Element) ComputedStyle(prop string) string {
	switch strings.ToLower(prop) {
	case "display":
		if e.HasAttr("hidden") {
			return "none"
		}
		if v := e.Style("display"); v != "" {
			return strings.ToLower(v)
		}
		return "block"
	case "visibility":
		for cur := e; cur != nil; cur = cur.Parent() {
			if v := cur.Style("visibility"); v != "" && v != "inherit" {
				return strings.ToLower(v)
			}
		}
		return "visible"
	case "opacity":
		if v := e.Style("opacity"); v != "" {
			return v
		}
		return "1"
	}
	return e.Style(prop)
}

// Opacity returns the parsed computed opacity.
func (e *Element) Opacity() float64 {
	v, err := strconv.ParseFloat(e.ComputedStyle("opacity"), 64)
	if err != nil {
		return 1
	}
	return v
}

// BoundingRect returns the rendered box. Detached elements and elements
// inside a display:none subtree have an empty box.
func (e *Element) BoundingRect() Rect {
	if !e.IsConnected() {
		return Rect{}
	}
	for cur := e; cur != nil; cur = cur.Parent() {
		if cur.ComputedStyle("display") == "none" {
			return Rect{}
		}
	}
	if e.TagName() == "input" && e.Type() == "hidden" {
		return Rect{}
	}

	decls := e.InlineStyle()
	size, ok := defaultSizes[e.TagName()]
	if !ok {
		size = fallbackSize
		if e.IsContentEditable() {
			size = Rect{Width: 300, Height: 40}
		}
	}
	r := Rect{Width: size.Width, Height: size.Height}
	if v, ok := parsePx(decls["width"]); ok {
		r.Width = v
	}
	if v, ok := parsePx(decls["height"]); ok {
		r.Height = v
	}
	if v, ok := parsePx(decls["left"]); ok {
		r.X = v
	}
	if v, ok := parsePx(decls["top"]); ok {
		r.Y = v
	}
	return r
}

func parsePx(value string) (float64, bool) {
	value = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value), "px"))
	if value == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
