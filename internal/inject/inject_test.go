package inject

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"voxfill/internal/dom"
	"voxfill/internal/domain"
)

func newField(t *testing.T, markup string) (*dom.Document, *dom.Element) {
	t.Helper()
	doc, err := dom.ParseString("<body>"+markup+"</body>", dom.Options{Hostname: "example.com"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	el := doc.GetElementByID("f")
	if el == nil {
		t.Fatalf("field #f missing")
	}
	return doc, el
}

func TestAppendInterimThenFinal(t *testing.T) {
	t.Parallel()

	_, el := newField(t, `<textarea id="f">Hello </textarea>`)
	eng := NewEngine(false, zerolog.Nop())
	target := NewTarget(el)
	target.Snapshot()

	if !eng.Apply(target, domain.InjectionAppend, "wor", false) {
		t.Fatalf("interim apply failed")
	}
	if got := el.Value(); got != "Hello wor" {
		t.Fatalf("expected interim content, got %q", got)
	}
	if !eng.Apply(target, domain.InjectionAppend, "world", true) {
		t.Fatalf("final apply failed")
	}
	if got := el.Value(); got != "Hello world" {
		t.Fatalf("expected final content, got %q", got)
	}
	if target.InterimText != "" {
		t.Fatalf("final must clear interim, got %q", target.InterimText)
	}
}

func TestOverwriteReplacesContent(t *testing.T) {
	t.Parallel()

	_, el := newField(t, `<input id="f" value="old text">`)
	eng := NewEngine(false, zerolog.Nop())
	target := NewTarget(el)
	target.Snapshot()

	eng.Apply(target, domain.InjectionOverwrite, "new", false)
	eng.Apply(target, domain.InjectionOverwrite, "new words", true)
	if got := el.Value(); got != "new words" {
		t.Fatalf("expected overwrite, got %q", got)
	}
}

func TestContentEditableTarget(t *testing.T) {
	t.Parallel()

	_, el := newField(t, `<div id="f" contenteditable="true">Draft: </div>`)
	eng := NewEngine(false, zerolog.Nop())
	target := NewTarget(el)
	target.Snapshot()

	if !eng.Apply(target, domain.InjectionAppend, "ship it", true) {
		t.Fatalf("apply failed")
	}
	if got := el.TextContent(); got != "Draft: ship it" {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestTypeDispatchesPerCharacterEvents(t *testing.T) {
	t.Parallel()

	_, el := newField(t, `<textarea id="f"></textarea>`)
	counts := map[string]int{}
	for _, typ := range []string{dom.EventInput, dom.EventKeyDown, dom.EventKeyPress, dom.EventKeyUp, dom.EventChange} {
		typ := typ
		el.AddEventListener(typ, func(dom.Event) { counts[typ]++ })
	}

	eng := NewEngine(false, zerolog.Nop())
	if err := eng.Type(el, "héllo"); err != nil {
		t.Fatalf("type failed: %v", err)
	}
	if counts[dom.EventInput] != 5 || counts[dom.EventKeyDown] != 5 || counts[dom.EventKeyUp] != 5 {
		t.Fatalf("expected one event set per rune, got %v", counts)
	}
	if counts[dom.EventChange] != 1 {
		t.Fatalf("expected a single change, got %d", counts[dom.EventChange])
	}
}

func TestSwallowingSetterFallsBackToAssign(t *testing.T) {
	t.Parallel()

	_, el := newField(t, `<input id="f">`)
	el.SetValueSetter(func(*dom.Element, string) {})
	eng := NewEngine(false, zerolog.Nop())

	if err := eng.Type(el, "abc"); !errors.Is(err, ErrSwallowed) {
		t.Fatalf("expected swallowed error, got %v", err)
	}
	if !eng.Write(el, "abc") {
		t.Fatalf("expected direct assignment to succeed")
	}
	if got := el.Value(); got != "abc" {
		t.Fatalf("unexpected value %q", got)
	}
	if el.ValueSetter() == nil {
		t.Fatalf("patched setter must be restored")
	}
}

func TestAssignRoundTripsValue(t *testing.T) {
	t.Parallel()

	_, el := newField(t, `<input id="f">`)
	var seen []string
	el.AddEventListener(dom.EventInput, func(ev dom.Event) {
		seen = append(seen, ev.Target.Value())
	})

	eng := NewEngine(true, zerolog.Nop())
	if !eng.Write(el, "hi") {
		t.Fatalf("write failed")
	}
	want := []string{"hi", "hi ", "hi"}
	if len(seen) != len(want) {
		t.Fatalf("expected %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, seen)
		}
	}
}

func TestPanickingKeyListenerFallsBack(t *testing.T) {
	t.Parallel()

	_, el := newField(t, `<textarea id="f"></textarea>`)
	el.AddEventListener(dom.EventKeyDown, func(dom.Event) { panic("page script") })
	eng := NewEngine(false, zerolog.Nop())

	if err := eng.Type(el, "x"); err == nil {
		t.Fatalf("expected recovered panic")
	}
	if !eng.Write(el, "ok") || el.Value() != "ok" {
		t.Fatalf("expected fallback write, got %q", el.Value())
	}
}

func TestDetachedTargetFails(t *testing.T) {
	t.Parallel()

	_, el := newField(t, `<textarea id="f"></textarea>`)
	el.Remove()
	eng := NewEngine(false, zerolog.Nop())

	if eng.Apply(NewTarget(el), domain.InjectionOverwrite, "x", true) {
		t.Fatalf("detached target must fail")
	}
	if err := eng.Nudge(el); !errors.Is(err, dom.ErrDetached) {
		t.Fatalf("expected detached error, got %v", err)
	}
	if eng.Apply(nil, domain.InjectionOverwrite, "x", true) {
		t.Fatalf("nil target must fail")
	}
}

func TestNudgeKeepsValue(t *testing.T) {
	t.Parallel()

	_, el := newField(t, `<textarea id="f">done</textarea>`)
	inputs := 0
	el.AddEventListener(dom.EventInput, func(dom.Event) { inputs++ })

	eng := NewEngine(false, zerolog.Nop())
	if err := eng.Nudge(el); err != nil {
		t.Fatalf("nudge failed: %v", err)
	}
	if el.Value() != "done" {
		t.Fatalf("nudge changed value to %q", el.Value())
	}
	if inputs < 2 {
		t.Fatalf("expected input events, got %d", inputs)
	}
}

func TestParseInjectionMode(t *testing.T) {
	t.Parallel()

	if domain.ParseInjectionMode(" Append") != domain.InjectionAppend || domain.ParseInjectionMode("bogus") != domain.InjectionOverwrite {
		t.Fatalf("unexpected mode parsing")
	}
}
