// Package sites maps a page to a platform-specific strategy for locating the
// composer and its send button.
package sites

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"voxfill/internal/classify"
	"voxfill/internal/dom"
	"voxfill/internal/eventloop"
	"voxfill/internal/locator"
)

// Platform names a handler variant.
type Platform string

const (
	PlatformChatGPT Platform = "chatgpt"
	PlatformClaude  Platform = "claude"
	PlatformGemini  Platform = "gemini"
	PlatformGeneric Platform = "generic"
)

// SubmitResult is the outcome of a submit request.
type SubmitResult string

const (
	SubmitClicked  SubmitResult = "clicked"
	SubmitDisabled SubmitResult = "disabled"
	SubmitNotFound SubmitResult = "not_found"
)

// DefaultHighlightDelay is how long the chosen button is outlined before
// it is clicked.
const DefaultHighlightDelay = 300 * time.Millisecond

const highlightOutline = "2px solid #4f8cff"

// Handler is the capability every platform variant implements.
type Handler interface {
	Platform() Platform
	Matches(doc *dom.Document) bool
	LocateInputField(doc *dom.Document) *dom.Element
	LocateSubmitButton(doc *dom.Document, input *dom.Element) *dom.Element
	// Submit clicks the send button for input. A nil input falls back to
	// the handler's own field lookup.
	Submit(doc *dom.Document, input *dom.Element) SubmitResult
}

// Deps are shared by all handlers.
type Deps struct {
	Locator        *locator.Locator
	Scheduler      eventloop.Scheduler
	HighlightDelay time.Duration
	Logger         zerolog.Logger

	clicks *clickSlot
}

// clickSlot holds the one submit click waiting out its highlight delay.
type clickSlot struct {
	timer   eventloop.Timer
	restore func()
}

func (c *clickSlot) arm(t eventloop.Timer, restore func()) {
	if c == nil {
		return
	}
	c.cancel()
	c.timer = t
	c.restore = restore
}

// take claims t for firing. It fails when t was cancelled or replaced.
func (c *clickSlot) take(t eventloop.Timer) bool {
	if c == nil {
		return true
	}
	if c.timer != t {
		return false
	}
	c.timer = nil
	c.restore = nil
	return true
}

func (c *clickSlot) cancel() bool {
	if c == nil || c.timer == nil {
		return false
	}
	c.timer.Stop()
	if c.restore != nil {
		c.restore()
	}
	c.timer = nil
	c.restore = nil
	return true
}

func (c *clickSlot) pending() bool { return c != nil && c.timer != nil }

func (d Deps) clickDelay() time.Duration {
	if d.HighlightDelay <= 0 {
		return DefaultHighlightDelay
	}
	return d.HighlightDelay
}

// selectorHandler is a platform handler driven by hostname and selector
// lists, falling back to the generic locator.
type selectorHandler struct {
	platform        Platform
	hosts           []string
	inputSelectors  []string
	submitSelectors []string
	deps            Deps
}

func (h *selectorHandler) Platform() Platform { return h.platform }

func (h *selectorHandler) Matches(doc *dom.Document) bool {
	return hostMatches(doc.Hostname(), h.hosts)
}

func (h *selectorHandler) LocateInputField(doc *dom.Document) *dom.Element {
	for _, sel := range h.inputSelectors {
		for _, el := range doc.QuerySelectorAll(sel) {
			if classify.IsEditableInput(el) && classify.IsVisible(el) && !classify.IsOwnUI(el) {
				return el
			}
		}
	}
	return h.deps.Locator.FindBestInputField(doc, nil)
}

func (h *selectorHandler) LocateSubmitButton(doc *dom.Document, input *dom.Element) *dom.Element {
	var fallback *dom.Element
	for _, sel := range h.submitSelectors {
		for _, el := range doc.QuerySelectorAll(sel) {
			if classify.IsOwnUI(el) || !classify.IsVisible(el) {
				continue
			}
			if !classify.IsDisabled(el) {
				return el
			}
			if fallback == nil {
				fallback = el
			}
		}
	}
	if fallback != nil {
		return fallback
	}
	if input == nil {
		return nil
	}
	return h.deps.Locator.FindSubmitButtonForInput(doc, input)
}

func (h *selectorHandler) Submit(doc *dom.Document, input *dom.Element) SubmitResult {
	if input == nil || !input.IsConnected() {
		input = h.LocateInputField(doc)
	}
	return submitFresh(h.deps, h.platform, func() *dom.Element {
		return h.LocateSubmitButton(doc, input)
	})
}

// submitFresh looks the button up, refuses disabled ones, outlines it and
// clicks after the highlight delay. The button is re-checked at click time.
func submitFresh(deps Deps, platform Platform, find func() *dom.Element) SubmitResult {
	log := deps.Logger.With().Str("platform", string(platform)).Logger()

	button := find()
	if button == nil {
		log.Debug().Msg("submit button not found")
		return SubmitNotFound
	}
	if classify.IsDisabled(button) {
		log.Debug().Str("button", button.String()).Msg("submit button disabled")
		return SubmitDisabled
	}

	previous := button.Style("outline")
	button.SetStyle("outline", highlightOutline)

	var timer eventloop.Timer
	timer = deps.Scheduler.AfterFunc(deps.clickDelay(), func() {
		if !deps.clicks.take(timer) {
			return
		}
		button.SetStyle("outline", previous)
		if !button.IsConnected() || classify.IsDisabled(button) {
			log.Warn().Str("button", button.String()).Msg("submit button changed before click")
			return
		}
		if err := button.Click(); err != nil {
			log.Warn().Err(err).Msg("submit click failed")
			return
		}
		log.Info().Str("button", button.String()).Msg("submitted")
	})
	deps.clicks.arm(timer, func() { button.SetStyle("outline", previous) })
	return SubmitClicked
}

func hostMatches(hostname string, hosts []string) bool {
	hostname = strings.ToLower(hostname)
	for _, h := range hosts {
		if hostname == h || strings.HasSuffix(hostname, "."+h) {
			return true
		}
	}
	return false
}
