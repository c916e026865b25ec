// Package inject writes recognized text into page fields so that reactive
// UI frameworks observe the change.
package inject

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"voxfill/internal/classify"
	"voxfill/internal/dom"
	"voxfill/internal/domain"
)

var (
	ErrNoTarget  = errors.New("no injection target")
	ErrSwallowed = errors.New("field did not accept the written value")
)

// Target is the field currently receiving dictation. The document owns the
// element; Target only references it.
type Target struct {
	Element      *dom.Element
	OriginalText string
	InterimText  string
}

func NewTarget(el *dom.Element) *Target {
	return &Target{Element: el}
}

// Snapshot captures the field content for append mode and clears interim.
func (t *Target) Snapshot() {
	t.OriginalText = classify.FieldText(t.Element)
	t.InterimText = ""
}

// Engine injects text. One injection runs at a time per field; no locking
// is done because recognition events are serialized on the UI loop.
type Engine struct {
	preferDirect bool
	log          zerolog.Logger
}

func NewEngine(preferDirect bool, log zerolog.Logger) *Engine {
	return &Engine{preferDirect: preferDirect, log: log}
}

func (e *Engine) SetPreferDirect(v bool) { e.preferDirect = v }

// Apply writes one transcript event into t according to mode.
func (e *Engine) Apply(t *Target, mode domain.InjectionMode, text string, final bool) bool {
	if t == nil || t.Element == nil {
		return false
	}
	content := Compose(t, mode, text, final)
	return e.Write(t.Element, content)
}

// Compose computes the field content for one event. In append mode interim
// text replaces the previous interim text after the snapshot, and final text
// lands on the snapshot, never on accumulated interim fragments.
func Compose(t *Target, mode domain.InjectionMode, text string, final bool) string {
	if mode != domain.InjectionAppend {
		return text
	}
	if final {
		t.InterimText = ""
		return t.OriginalText + text
	}
	t.InterimText = text
	return t.OriginalText + t.InterimText
}

// Write tries keystroke simulation, then direct assignment.
func (e *Engine) Write(el *dom.Element, text string) bool {
	if el == nil {
		return false
	}
	if !e.preferDirect {
		err := e.Type(el, text)
		if err == nil {
			return true
		}
		e.log.Debug().Err(err).Str("field", el.String()).Msg("typing simulation failed, assigning directly")
	}
	if err := e.Assign(el, text); err != nil {
		e.log.Warn().Err(err).Str("field", el.String()).Msg("text injection failed")
		return false
	}
	return true
}

// Type clears the field and replays text one character at a time through
// the public value API, dispatching input and a key triplet per character.
func (e *Engine) Type(el *dom.Element, text string) (err error) {
	defer recoverInto(&err)

	if !el.IsConnected() {
		return dom.ErrDetached
	}
	if err := el.Focus(); err != nil {
		return err
	}
	write(el, "")

	var acc []rune
	for _, r := range text {
		acc = append(acc, r)
		write(el, string(acc))
		key := string(r)
		if err := el.DispatchEvent(dom.Event{Type: dom.EventInput, Data: key, Bubbles: true}); err != nil {
			return err
		}
		for _, typ := range []string{dom.EventKeyDown, dom.EventKeyPress, dom.EventKeyUp} {
			if err := el.DispatchEvent(dom.KeyEvent(typ, key)); err != nil {
				return err
			}
		}
	}

	for _, typ := range []string{dom.EventChange, dom.EventBlur, dom.EventFocus} {
		if err := el.DispatchEvent(dom.NewEvent(typ)); err != nil {
			return err
		}
	}
	if got := classify.FieldText(el); got != text {
		return fmt.Errorf("%w: have %q", ErrSwallowed, got)
	}
	return nil
}

// Assign bypasses a patched value setter: the native setter is installed,
// the value written, and the original setter restored. A value round-trip
// then forces frameworks that diff against their last seen value to
// reconcile again.
func (e *Engine) Assign(el *dom.Element, text string) (err error) {
	defer recoverInto(&err)

	if !el.IsConnected() {
		return dom.ErrDetached
	}

	original := el.ValueSetter()
	el.SetValueSetter(nil)
	func() {
		defer el.SetValueSetter(original)
		write(el, text)
	}()
	if err := dispatch(el, dom.EventInput, dom.EventChange); err != nil {
		return err
	}

	write(el, text+" ")
	if err := dispatch(el, dom.EventInput); err != nil {
		return err
	}
	el.SetValueSetter(nil)
	write(el, text)
	el.SetValueSetter(original)
	if err := dispatch(el, dom.EventInput, dom.EventChange); err != nil {
		return err
	}

	if got := classify.FieldText(el); got != text {
		return fmt.Errorf("%w: have %q", ErrSwallowed, got)
	}
	return nil
}

// Nudge re-fires key, input and change events and round-trips the value so
// a controlled component re-derives its state, typically re-enabling a
// send button that missed the programmatic write.
func (e *Engine) Nudge(el *dom.Element) error {
	if el == nil {
		return ErrNoTarget
	}
	if !el.IsConnected() {
		return dom.ErrDetached
	}
	for _, typ := range []string{dom.EventKeyDown, dom.EventKeyPress, dom.EventKeyUp} {
		if err := el.DispatchEvent(dom.KeyEvent(typ, " ")); err != nil {
			return err
		}
	}
	if err := dispatch(el, dom.EventInput, dom.EventChange); err != nil {
		return err
	}
	text := classify.FieldText(el)
	write(el, text+" ")
	if err := dispatch(el, dom.EventInput); err != nil {
		return err
	}
	write(el, text)
	return dispatch(el, dom.EventInput, dom.EventChange)
}

func write(el *dom.Element, text string) {
	switch el.TagName() {
	case "input", "textarea":
		el.SetValue(text)
	default:
		el.SetTextContent(text)
	}
}

func dispatch(el *dom.Element, types ...string) error {
	for _, typ := range types {
		if err := el.DispatchEvent(dom.NewEvent(typ)); err != nil {
			return err
		}
	}
	return nil
}

// recoverInto turns a panic from a page listener into an error.
func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("injection panicked: %v", r)
	}
}
