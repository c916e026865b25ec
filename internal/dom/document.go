// Package dom is an in-process document model with the subset of browser
// DOM behaviour the dictation core depends on: selector queries, live form
// values, content-editable text, rendered boxes, computed style, event
// dispatch, focus and mutation observation.
package dom

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	ErrDetached  = errors.New("element is not attached to the document")
	ErrNoBody    = errors.New("document has no body")
	ErrSameChild = errors.New("cannot append an element to itself or its descendant")
)

// Options describes the host environment of a parsed document.
type Options struct {
	Hostname string
	Viewport Rect
}

// DefaultViewport matches a common desktop browser window.
var DefaultViewport = Rect{Width: 1280, Height: 800}

// Document owns the node tree and the per-node runtime state.
type Document struct {
	root     *html.Node
	hostname string
	viewport Rect

	elements map[*html.Node]*Element
	active   *Element

	listeners listenerSet

	observers []*observer
	nextObs   int
	pending   []Mutation
	flushing  bool
}

func Parse(r io.Reader, opts Options) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return newDocument(root, opts), nil
}

func ParseString(markup string, opts Options) (*Document, error) {
	return Parse(strings.NewReader(markup), opts)
}

// MustParseString panics on malformed input. Intended for fixtures.
func MustParseString(markup string, opts Options) *Document {
	doc, err := ParseString(markup, opts)
	if err != nil {
		panic(err)
	}
	return doc
}

func newDocument(root *html.Node, opts Options) *Document {
	if opts.Viewport.Width <= 0 || opts.Viewport.Height <= 0 {
		opts.Viewport = DefaultViewport
	}
	return &Document{
		root:     root,
		hostname: strings.ToLower(strings.TrimSpace(opts.Hostname)),
		viewport: opts.Viewport,
		elements: make(map[*html.Node]*Element),
	}
}

func (d *Document) Hostname() string { return d.hostname }

func (d *Document) Viewport() Rect { return d.viewport }

func (d *Document) SetViewport(r Rect) { d.viewport = r }

// DocumentElement returns the <html> element.
func (d *Document) DocumentElement() *Element {
	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return d.wrap(c)
		}
	}
	return nil
}

func (d *Document) Body() *Element {
	return d.QuerySelector("body")
}

// ActiveElement returns the focused element, or nil.
func (d *Document) ActiveElement() *Element {
	if d.active != nil && !d.active.IsConnected() {
		d.active = nil
	}
	return d.active
}

func (d *Document) GetElementByID(id string) *Element {
	if id == "" {
		return nil
	}
	var found *html.Node
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && attr(n, "id") == id {
			found = n
			return false
		}
		return true
	})
	if found == nil {
		return nil
	}
	return d.wrap(found)
}

// CreateElement returns a detached element owned by d.
func (d *Document) CreateElement(tag string) *Element {
	tag = strings.ToLower(tag)
	n := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
	return d.wrap(n)
}

// Navigate models a single-page-app route change: the hostname is updated
// and the body subtree is replaced wholesale.
func (d *Document) Navigate(hostname string, bodyHTML string) error {
	body := d.Body()
	if body == nil {
		return ErrNoBody
	}
	if hostname != "" {
		d.hostname = strings.ToLower(strings.TrimSpace(hostname))
	}
	return body.SetInnerHTML(bodyHTML)
}

// AddEventListener registers a document-level listener that receives
// bubbling events from every element.
func (d *Document) AddEventListener(eventType string, fn func(Event)) func() {
	return d.listeners.add(eventType, fn)
}

// PositionIndex maps elements to their document order.
type PositionIndex struct {
	order map[*html.Node]int
}

// Positions snapshots the current document order.
func (d *Document) Positions() PositionIndex {
	order := make(map[*html.Node]int)
	i := 0
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			order[n] = i
			i++
		}
		return true
	})
	return PositionIndex{order: order}
}

// Of returns the element's position, or -1 when it is not in the snapshot.
func (p PositionIndex) Of(el *Element) int {
	if el == nil {
		return -1
	}
	if i, ok := p.order[el.node]; ok {
		return i
	}
	return -1
}

func (d *Document) wrap(n *html.Node) *Element {
	if n == nil || n.Type != html.ElementNode {
		return nil
	}
	if el, ok := d.elements[n]; ok {
		return el
	}
	el := &Element{doc: d, node: n}
	d.elements[n] = el
	return el
}

func (d *Document) wrapAll(nodes []*html.Node) []*Element {
	out := make([]*Element, 0, len(nodes))
	for _, n := range nodes {
		if el := d.wrap(n); el != nil {
			out = append(out, el)
		}
	}
	return out
}

// walk visits n and its descendants in document order until fn returns false.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
