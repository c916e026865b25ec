package dom

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// ValueSetter replaces the native value write of a form control, the way a
// UI framework patches the element's value property. Implementations call
// SetNativeValue to actually store the value.
type ValueSetter func(el *Element, value string)

// Element is a live handle on an element node. Handles are canonical: the
// same node always yields the same *Element.
type Element struct {
	doc  *Document
	node *html.Node

	value    string
	hasValue bool
	setter   ValueSetter

	listeners listenerSet
	clicks    int
}

func (e *Element) Document() *Document { return e.doc }

func (e *Element) TagName() string { return strings.ToLower(e.node.Data) }

func (e *Element) ID() string { return attr(e.node, "id") }

func (e *Element) Attr(name string) string { return attr(e.node, name) }

func (e *Element) LookupAttr(name string) (string, bool) { return lookupAttr(e.node, name) }

func (e *Element) HasAttr(name string) bool {
	_, ok := lookupAttr(e.node, name)
	return ok
}

func (e *Element) SetAttr(name, value string) {
	for i, a := range e.node.Attr {
		if a.Namespace == "" && a.Key == name {
			e.node.Attr[i].Val = value
			return
		}
	}
	e.node.Attr = append(e.node.Attr, html.Attribute{Key: name, Val: value})
}

func (e *Element) RemoveAttr(name string) {
	kept := e.node.Attr[:0]
	for _, a := range e.node.Attr {
		if a.Namespace == "" && a.Key == name {
			continue
		}
		kept = append(kept, a)
	}
	e.node.Attr = kept
}

func (e *Element) Classes() []string {
	return strings.Fields(e.Attr("class"))
}

func (e *Element) HasClass(name string) bool {
	for _, c := range e.Classes() {
		if c == name {
			return true
		}
	}
	return false
}

func (e *Element) AddClass(name string) {
	if e.HasClass(name) {
		return
	}
	e.SetAttr("class", strings.TrimSpace(e.Attr("class")+" "+name))
}

func (e *Element) RemoveClass(name string) {
	if !e.HasClass(name) {
		return
	}
	kept := make([]string, 0, len(e.Classes()))
	for _, c := range e.Classes() {
		if c != name {
			kept = append(kept, c)
		}
	}
	e.SetAttr("class", strings.Join(kept, " "))
}

// Type returns the normalized type attribute. Inputs default to "text" and
// buttons to "submit", as in HTML.
func (e *Element) Type() string {
	t := strings.ToLower(strings.TrimSpace(e.Attr("type")))
	if t != "" {
		return t
	}
	switch e.TagName() {
	case "input":
		return "text"
	case "button":
		return "submit"
	}
	return ""
}

func (e *Element) isFormControl() bool {
	switch e.TagName() {
	case "input", "textarea", "select", "button":
		return true
	}
	return false
}

// Disabled reports the native disabled flag, including a disabled fieldset
// ancestor.
func (e *Element) Disabled() bool {
	if !e.isFormControl() {
		return false
	}
	if e.HasAttr("disabled") {
		return true
	}
	for p := e.Parent(); p != nil; p = p.Parent() {
		if p.TagName() == "fieldset" && p.HasAttr("disabled") {
			return true
		}
	}
	return false
}

func (e *Element) ReadOnly() bool {
	switch e.TagName() {
	case "input", "textarea":
		return e.HasAttr("readonly")
	}
	return false
}

// IsContentEditable resolves the inherited contenteditable state.
func (e *Element) IsContentEditable() bool {
	for cur := e; cur != nil; cur = cur.Parent() {
		v, ok := cur.LookupAttr("contenteditable")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "", "true", "plaintext-only":
			return true
		case "false":
			return false
		}
	}
	return false
}

// TextContent concatenates all descendant text nodes.
func (e *Element) TextContent() string {
	var b strings.Builder
	walk(e.node, func(n *html.Node) bool {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		return true
	})
	return b.String()
}

// SetTextContent replaces all children with a single text node.
func (e *Element) SetTextContent(text string) {
	removed := e.detachChildren()
	if text != "" {
		e.node.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
	if len(removed) > 0 {
		e.doc.record(Mutation{Target: e, Removed: removed})
	}
}

// Value returns the live value of a form control.
func (e *Element) Value() string {
	if e.hasValue {
		return e.value
	}
	switch e.TagName() {
	case "textarea":
		return e.TextContent()
	case "input", "select", "button":
		return e.Attr("value")
	}
	return ""
}

// SetValue writes through the installed ValueSetter, or natively.
func (e *Element) SetValue(value string) {
	if e.setter != nil {
		e.setter(e, value)
		return
	}
	e.SetNativeValue(value)
}

func (e *Element) SetNativeValue(value string) {
	e.value = value
	e.hasValue = true
}

func (e *Element) ValueSetter() ValueSetter { return e.setter }

// SetValueSetter installs s; nil restores the native setter.
func (e *Element) SetValueSetter(s ValueSetter) { e.setter = s }

// Form returns the owning form: the form attribute target, else the
// closest ancestor form.
func (e *Element) Form() *Element {
	if id := e.Attr("form"); id != "" {
		if f := e.doc.GetElementByID(id); f != nil && f.TagName() == "form" {
			return f
		}
	}
	for p := e.Parent(); p != nil; p = p.Parent() {
		if p.TagName() == "form" {
			return p
		}
	}
	return nil
}

func (e *Element) Parent() *Element {
	if e.node.Parent == nil || e.node.Parent.Type != html.ElementNode {
		return nil
	}
	return e.doc.wrap(e.node.Parent)
}

func (e *Element) Children() []*Element {
	var out []*Element
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, e.doc.wrap(c))
		}
	}
	return out
}

// Contains reports whether other is e or a descendant of e.
func (e *Element) Contains(other *Element) bool {
	if other == nil {
		return false
	}
	for n := other.node; n != nil; n = n.Parent {
		if n == e.node {
			return true
		}
	}
	return false
}

// IsConnected reports whether e is reachable from the document root.
func (e *Element) IsConnected() bool {
	for n := e.node; n != nil; n = n.Parent {
		if n == e.doc.root {
			return true
		}
	}
	return false
}

// Remove detaches e from its parent.
func (e *Element) Remove() {
	parent := e.node.Parent
	if parent == nil {
		return
	}
	parent.RemoveChild(e.node)
	if e.doc.active != nil && e.Contains(e.doc.active) {
		e.doc.active = nil
	}
	e.doc.record(Mutation{Target: e.doc.wrap(parent), Removed: []*Element{e}})
}

// AppendChild moves child under e.
func (e *Element) AppendChild(child *Element) error {
	if child == nil {
		return nil
	}
	if child.Contains(e) {
		return ErrSameChild
	}
	if child.node.Parent != nil {
		child.Remove()
	}
	e.node.AppendChild(child.node)
	e.doc.record(Mutation{Target: e, Added: []*Element{child}})
	return nil
}

// SetInnerHTML replaces the children of e with parsed markup.
func (e *Element) SetInnerHTML(markup string) error {
	nodes, err := html.ParseFragment(strings.NewReader(markup), e.node)
	if err != nil {
		return err
	}
	removed := e.detachChildren()
	var added []*Element
	for _, n := range nodes {
		e.node.AppendChild(n)
		if n.Type == html.ElementNode {
			added = append(added, e.doc.wrap(n))
		}
	}
	if len(removed) > 0 || len(added) > 0 {
		e.doc.record(Mutation{Target: e, Added: added, Removed: removed})
	}
	return nil
}

func (e *Element) detachChildren() []*Element {
	var removed []*Element
	for c := e.node.FirstChild; c != nil; {
		next := c.NextSibling
		e.node.RemoveChild(c)
		if c.Type == html.ElementNode {
			removed = append(removed, e.doc.wrap(c))
		}
		c = next
	}
	if e.doc.active != nil && !e.doc.active.IsConnected() {
		e.doc.active = nil
	}
	return removed
}

func (e *Element) OuterHTML() string {
	var buf bytes.Buffer
	if err := html.Render(&buf, e.node); err != nil {
		return ""
	}
	return buf.String()
}

// Focus makes e the active element and fires focus/focusin.
func (e *Element) Focus() error {
	if !e.IsConnected() {
		return ErrDetached
	}
	if e.doc.active == e {
		return nil
	}
	if prev := e.doc.ActiveElement(); prev != nil {
		_ = prev.Blur()
	}
	e.doc.active = e
	if err := e.DispatchEvent(NewEvent(EventFocus)); err != nil {
		return err
	}
	return e.DispatchEvent(NewEvent(EventFocusIn))
}

func (e *Element) Blur() error {
	if e.doc.active != e {
		return nil
	}
	e.doc.active = nil
	return e.DispatchEvent(NewEvent(EventBlur))
}

// Click fires a click. Natively disabled controls swallow clicks.
func (e *Element) Click() error {
	if !e.IsConnected() {
		return ErrDetached
	}
	if e.Disabled() {
		return nil
	}
	e.clicks++
	return e.DispatchEvent(NewEvent(EventClick))
}

// Clicks counts delivered clicks.
func (e *Element) Clicks() int { return e.clicks }

func (e *Element) String() string {
	var b strings.Builder
	b.WriteString(e.TagName())
	if id := e.ID(); id != "" {
		b.WriteString("#" + id)
	}
	for _, c := range e.Classes() {
		b.WriteString("." + c)
	}
	return b.String()
}
