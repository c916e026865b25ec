package dom

import (
	"errors"
	"testing"
)

const fixture = `<html><body>
<form id="chat">
  <textarea id="prompt" placeholder="Message">draft</textarea>
  <input id="name" value="bob">
  <fieldset disabled><button id="inner">x</button></fieldset>
  <button id="send" style="left: 310px; top: 10px; width: 40px; height: 30px">Send</button>
</form>
<input id="outside" form="chat" type="search">
<div id="editor" contenteditable="true"><p id="para">hi</p></div>
<div id="ro" contenteditable="false"></div>
<div id="gone" style="display:none"><button id="hiddenbtn">h</button></div>
<div style="visibility: hidden"><span id="invisible">x</span></div>
</body></html>`

func mustDoc(t *testing.T) *Document {
	t.Helper()
	doc, err := ParseString(fixture, Options{Hostname: "Example.COM"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return doc
}

func TestParseNormalizesHostnameAndViewport(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t)
	if doc.Hostname() != "example.com" {
		t.Fatalf("unexpected hostname: %q", doc.Hostname())
	}
	if doc.Viewport() != DefaultViewport {
		t.Fatalf("expected default viewport, got %+v", doc.Viewport())
	}
}

func TestElementHandlesAreCanonical(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t)
	a := doc.QuerySelector("#prompt")
	b := doc.GetElementByID("prompt")
	if a == nil || a != b {
		t.Fatalf("expected identical handles, got %p and %p", a, b)
	}
}

func TestValueTracksLiveState(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t)
	ta := doc.GetElementByID("prompt")
	if ta.Value() != "draft" {
		t.Fatalf("unexpected initial textarea value: %q", ta.Value())
	}
	in := doc.GetElementByID("name")
	if in.Value() != "bob" {
		t.Fatalf("unexpected initial input value: %q", in.Value())
	}
	ta.SetValue("new")
	if ta.Value() != "new" {
		t.Fatalf("expected live value, got %q", ta.Value())
	}
}

func TestValueSetterOverride(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t)
	in := doc.GetElementByID("name")
	in.SetValueSetter(func(el *Element, value string) {})
	in.SetValue("swallowed")
	if in.Value() != "bob" {
		t.Fatalf("expected swallowed write, got %q", in.Value())
	}
	in.SetValueSetter(nil)
	in.SetValue("ok")
	if in.Value() != "ok" {
		t.Fatalf("expected native write, got %q", in.Value())
	}
}

func TestFormOwnership(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t)
	form := doc.GetElementByID("chat")
	if got := doc.GetElementByID("prompt").Form(); got != form {
		t.Fatalf("expected ancestor form, got %v", got)
	}
	if got := doc.GetElementByID("outside").Form(); got != form {
		t.Fatalf("expected form attribute owner, got %v", got)
	}
	if got := doc.GetElementByID("editor").Form(); got != nil {
		t.Fatalf("expected no form, got %v", got)
	}
}

func TestDisabledAndContentEditable(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t)
	if !doc.GetElementByID("inner").Disabled() {
		t.Fatalf("expected fieldset to disable descendants")
	}
	if doc.GetElementByID("send").Disabled() {
		t.Fatalf("send should be enabled")
	}
	if !doc.GetElementByID("para").IsContentEditable() {
		t.Fatalf("expected inherited contenteditable")
	}
	if doc.GetElementByID("ro").IsContentEditable() {
		t.Fatalf("contenteditable=false must not be editable")
	}
}

func TestBoundingRectAndStyle(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t)
	r := doc.GetElementByID("send").BoundingRect()
	if r != (Rect{X: 310, Y: 10, Width: 40, Height: 30}) {
		t.Fatalf("unexpected rect: %+v", r)
	}
	if area := doc.GetElementByID("hiddenbtn").BoundingRect().Area(); area != 0 {
		t.Fatalf("expected empty box under display:none, got %v", area)
	}
	if v := doc.GetElementByID("invisible").ComputedStyle("visibility"); v != "hidden" {
		t.Fatalf("expected inherited visibility, got %q", v)
	}

	send := doc.GetElementByID("send")
	send.SetStyle("opacity", "0.5")
	if send.Opacity() != 0.5 {
		t.Fatalf("unexpected opacity: %v", send.Opacity())
	}
	send.SetStyle("opacity", "")
	if send.Opacity() != 1 {
		t.Fatalf("expected default opacity")
	}
}

func TestDispatchBubblesToDocument(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t)
	var seen []string
	doc.GetElementByID("para").AddEventListener(EventInput, func(Event) { seen = append(seen, "para") })
	doc.GetElementByID("editor").AddEventListener(EventInput, func(Event) { seen = append(seen, "editor") })
	doc.AddEventListener(EventInput, func(ev Event) {
		if ev.Target.ID() != "para" {
			t.Errorf("unexpected target %v", ev.Target)
		}
		seen = append(seen, "document")
	})

	if err := doc.GetElementByID("para").DispatchEvent(NewEvent(EventInput)); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if len(seen) != 3 || seen[0] != "para" || seen[1] != "editor" || seen[2] != "document" {
		t.Fatalf("unexpected bubbling order: %v", seen)
	}
}

func TestRemovedListenerNotCalled(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t)
	el := doc.GetElementByID("send")
	calls := 0
	remove := el.AddEventListener(EventClick, func(Event) { calls++ })
	remove()
	if err := el.Click(); err != nil {
		t.Fatalf("click failed: %v", err)
	}
	if calls != 0 || el.ListenerCount(EventClick) != 0 {
		t.Fatalf("listener should be gone, calls=%d", calls)
	}
	if el.Clicks() != 1 {
		t.Fatalf("expected click to be counted")
	}
}

func TestDetachedDispatchFails(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t)
	el := doc.GetElementByID("prompt")
	el.Remove()
	if el.IsConnected() {
		t.Fatalf("expected detached element")
	}
	if err := el.DispatchEvent(NewEvent(EventInput)); !errors.Is(err, ErrDetached) {
		t.Fatalf("expected ErrDetached, got %v", err)
	}
	if err := el.Focus(); !errors.Is(err, ErrDetached) {
		t.Fatalf("expected ErrDetached from focus, got %v", err)
	}
}

func TestDisabledClickIsSwallowed(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t)
	el := doc.GetElementByID("inner")
	if err := el.Click(); err != nil {
		t.Fatalf("click failed: %v", err)
	}
	if el.Clicks() != 0 {
		t.Fatalf("disabled control must not receive clicks")
	}
}

func TestFocusTracksActiveElement(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t)
	a := doc.GetElementByID("prompt")
	b := doc.GetElementByID("name")
	blurred := 0
	a.AddEventListener(EventBlur, func(Event) { blurred++ })

	if err := a.Focus(); err != nil {
		t.Fatalf("focus failed: %v", err)
	}
	if err := b.Focus(); err != nil {
		t.Fatalf("focus failed: %v", err)
	}
	if doc.ActiveElement() != b || blurred != 1 {
		t.Fatalf("unexpected focus state: active=%v blurred=%d", doc.ActiveElement(), blurred)
	}
	b.Remove()
	if doc.ActiveElement() != nil {
		t.Fatalf("removed element must not stay active")
	}
}

func TestObserveBatchesReentrantMutations(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t)
	body := doc.Body()
	var batches int
	depth := 0
	stop := doc.Observe(func(ms []Mutation) {
		depth++
		defer func() { depth-- }()
		if depth > 1 {
			t.Errorf("observer re-entered")
		}
		batches++
		if batches == 1 {
			_ = body.AppendChild(doc.CreateElement("span"))
		}
	})
	defer stop()

	if err := body.AppendChild(doc.CreateElement("div")); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if batches != 2 {
		t.Fatalf("expected two batches, got %d", batches)
	}
}

func TestNavigateReplacesBody(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t)
	var added int
	doc.Observe(func(ms []Mutation) {
		for _, m := range ms {
			added += len(m.Added)
		}
	})
	if err := doc.Navigate("claude.ai", `<main><textarea id="x"></textarea></main>`); err != nil {
		t.Fatalf("navigate failed: %v", err)
	}
	if doc.Hostname() != "claude.ai" {
		t.Fatalf("hostname not updated")
	}
	if doc.GetElementByID("prompt") != nil || doc.GetElementByID("x") == nil {
		t.Fatalf("body was not replaced")
	}
	if added != 1 {
		t.Fatalf("expected one added subtree, got %d", added)
	}
}

func TestSelectorsAndPositions(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t)
	form := doc.GetElementByID("chat")
	buttons := form.QuerySelectorAll("button")
	if len(buttons) != 2 {
		t.Fatalf("expected two form buttons, got %d", len(buttons))
	}
	if form.QuerySelector("form") != nil {
		t.Fatalf("element query must exclude itself")
	}
	if doc.QuerySelectorAll("[[bad") != nil {
		t.Fatalf("invalid selector should match nothing")
	}
	if doc.GetElementByID("para").Closest("[contenteditable]") != doc.GetElementByID("editor") {
		t.Fatalf("closest failed")
	}

	pos := doc.Positions()
	if pos.Of(doc.GetElementByID("prompt")) >= pos.Of(doc.GetElementByID("send")) {
		t.Fatalf("expected document order")
	}
}
