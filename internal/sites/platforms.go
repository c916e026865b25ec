package sites

import (
	"voxfill/internal/dom"
	"voxfill/internal/locator"
)

func NewChatGPT(deps Deps) Handler {
	return &selectorHandler{
		platform: PlatformChatGPT,
		hosts:    []string{"chatgpt.com", "chat.openai.com"},
		inputSelectors: []string{
			`#prompt-textarea`,
			`div.ProseMirror[contenteditable="true"]`,
			`textarea[data-id="root"]`,
			`form textarea`,
		},
		submitSelectors: []string{
			`button[data-testid="send-button"]`,
			`#composer-submit-button`,
			`button[aria-label="Send prompt"]`,
			`button[aria-label="Send message"]`,
		},
		deps: deps,
	}
}

func NewClaude(deps Deps) Handler {
	return &selectorHandler{
		platform: PlatformClaude,
		hosts:    []string{"claude.ai"},
		inputSelectors: []string{
			`div.ProseMirror[contenteditable="true"]`,
			`div[aria-label="Write your prompt to Claude"]`,
			`textarea[placeholder*="Claude"]`,
			`fieldset textarea`,
		},
		submitSelectors: []string{
			`button[aria-label="Send message"]`,
			`button[aria-label="Send Message"]`,
			`fieldset button[type="submit"]`,
		},
		deps: deps,
	}
}

func NewGemini(deps Deps) Handler {
	return &selectorHandler{
		platform: PlatformGemini,
		hosts:    []string{"gemini.google.com", "bard.google.com"},
		inputSelectors: []string{
			`rich-textarea .ql-editor[contenteditable="true"]`,
			`div.ql-editor[contenteditable="true"]`,
			`textarea[aria-label*="prompt"]`,
		},
		submitSelectors: []string{
			`button.send-button`,
			`button[aria-label="Send message"]`,
			`button[mattooltip="Send message"]`,
			`button[aria-label*="Send"]`,
		},
		deps: deps,
	}
}

// genericHandler serves every page without a platform match. Its submit
// lookup is OpenAI-shaped: the paper-plane icon first, then scoring.
type genericHandler struct {
	deps Deps
}

func NewGeneric(deps Deps) Handler {
	return &genericHandler{deps: deps}
}

func (h *genericHandler) Platform() Platform { return PlatformGeneric }

func (h *genericHandler) Matches(*dom.Document) bool { return true }

func (h *genericHandler) LocateInputField(doc *dom.Document) *dom.Element {
	return h.deps.Locator.FindBestInputField(doc, nil)
}

func (h *genericHandler) LocateSubmitButton(doc *dom.Document, input *dom.Element) *dom.Element {
	if b := locator.FindPaperPlaneButton(doc); b != nil {
		return b
	}
	if input == nil {
		return nil
	}
	return h.deps.Locator.FindSubmitButtonForInput(doc, input)
}

func (h *genericHandler) Submit(doc *dom.Document, input *dom.Element) SubmitResult {
	if input == nil || !input.IsConnected() {
		input = h.LocateInputField(doc)
	}
	return submitFresh(h.deps, PlatformGeneric, func() *dom.Element {
		return h.LocateSubmitButton(doc, input)
	})
}
