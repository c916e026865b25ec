package sites

import (
	"time"

	"voxfill/internal/classify"
	"voxfill/internal/dom"
	"voxfill/internal/locator"
)

// Resolution is the handler chosen for one request.
type Resolution struct {
	Handler Handler
	// PaperPlane is set when no platform matched but the page carries the
	// generic send-icon signature.
	PaperPlane *dom.Element
}

// Registry picks a handler per call. It holds no page state: the page may
// have navigated between calls.
type Registry struct {
	handlers []Handler
	fallback Handler
	deps     Deps
}

// NewRegistry builds the fixed-priority handler list.
func NewRegistry(deps Deps) *Registry {
	if deps.Locator == nil {
		deps.Locator = locator.Default()
	}
	deps.clicks = &clickSlot{}
	return &Registry{
		handlers: []Handler{NewChatGPT(deps), NewClaude(deps), NewGemini(deps)},
		fallback: NewGeneric(deps),
		deps:     deps,
	}
}

func (r *Registry) Locator() *locator.Locator { return r.deps.Locator }

// Resolve evaluates each platform predicate in order. A paper-plane icon is
// not specific enough to choose a platform, so it still resolves to the
// fallback handler.
func (r *Registry) Resolve(doc *dom.Document) Resolution {
	for _, h := range r.handlers {
		if h.Matches(doc) {
			return Resolution{Handler: h}
		}
	}
	if b := locator.FindPaperPlaneButton(doc); b != nil {
		r.deps.Logger.Debug().Str("button", b.String()).Msg("paper-plane send icon detected")
		return Resolution{Handler: r.fallback, PaperPlane: b}
	}
	return Resolution{Handler: r.fallback}
}

// FindBestInputField prefers an editable focused element, then the active
// handler's choice.
func (r *Registry) FindBestInputField(doc *dom.Document, focused *dom.Element) *dom.Element {
	if focused != nil && focused.IsConnected() && classify.IsEditableInput(focused) && !classify.IsOwnUI(focused) {
		return focused
	}
	return r.Resolve(doc).Handler.LocateInputField(doc)
}

func (r *Registry) FindSubmitButtonForInput(doc *dom.Document, input *dom.Element) *dom.Element {
	return r.Resolve(doc).Handler.LocateSubmitButton(doc, input)
}

// Submit runs the active handler's submit, ranking buttons against input.
func (r *Registry) Submit(doc *dom.Document, input *dom.Element) SubmitResult {
	return r.Resolve(doc).Handler.Submit(doc, input)
}

// SubmitAfterVoiceInput reports whether a click was scheduled for the
// handler's own field.
func (r *Registry) SubmitAfterVoiceInput(doc *dom.Document) bool {
	return r.Submit(doc, nil) == SubmitClicked
}

// CancelClick drops a submit click still waiting out its highlight delay.
func (r *Registry) CancelClick() bool { return r.deps.clicks.cancel() }

// ClickPending reports whether a submit click is still scheduled.
func (r *Registry) ClickPending() bool { return r.deps.clicks.pending() }

// ClickDelay is how long a scheduled submit waits before clicking.
func (r *Registry) ClickDelay() time.Duration { return r.deps.clickDelay() }
