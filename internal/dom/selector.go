package dom

import (
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

var selectorCache sync.Map

func compile(selector string) (cascadia.Selector, error) {
	if cached, ok := selectorCache.Load(selector); ok {
		return cached.(cascadia.Selector), nil
	}
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, err
	}
	selectorCache.Store(selector, sel)
	return sel, nil
}

// ValidSelector reports whether selector compiles.
func ValidSelector(selector string) bool {
	_, err := compile(selector)
	return err == nil
}

// QuerySelectorAll returns all matches in document order. Invalid selectors
// match nothing.
func (d *Document) QuerySelectorAll(selector string) []*Element {
	sel, err := compile(selector)
	if err != nil {
		return nil
	}
	return d.wrapAll(sel.MatchAll(d.root))
}

func (d *Document) QuerySelector(selector string) *Element {
	sel, err := compile(selector)
	if err != nil {
		return nil
	}
	return d.wrap(sel.MatchFirst(d.root))
}

// QuerySelectorAll matches descendants of e, excluding e itself.
func (e *Element) QuerySelectorAll(selector string) []*Element {
	sel, err := compile(selector)
	if err != nil {
		return nil
	}
	matches := sel.MatchAll(e.node)
	out := make([]*html.Node, 0, len(matches))
	for _, n := range matches {
		if n != e.node {
			out = append(out, n)
		}
	}
	return e.doc.wrapAll(out)
}

func (e *Element) QuerySelector(selector string) *Element {
	all := e.QuerySelectorAll(selector)
	if len(all) == 0 {
		return nil
	}
	return all[0]
}

func (e *Element) Matches(selector string) bool {
	sel, err := compile(selector)
	if err != nil {
		return false
	}
	return sel.Match(e.node)
}

// Closest returns the nearest inclusive ancestor matching selector.
func (e *Element) Closest(selector string) *Element {
	sel, err := compile(selector)
	if err != nil {
		return nil
	}
	for cur := e; cur != nil; cur = cur.Parent() {
		if sel.Match(cur.node) {
			return cur
		}
	}
	return nil
}
