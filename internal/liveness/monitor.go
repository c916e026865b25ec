// Package liveness keeps the injected mic UI and field bindings present while
// the page re-renders underneath them.
package liveness

import (
	"time"

	"github.com/rs/zerolog"

	"voxfill/internal/classify"
	"voxfill/internal/dom"
	"voxfill/internal/eventloop"
)

const (
	RootID         = "voxfill-root"
	MicButtonID    = "voxfill-mic"
	EnhancedAttr   = "data-voxfill-enhanced"
	DefaultPoll    = time.Second
	listeningClass = "voxfill-listening"
)

// staleIDs and staleClasses name every node an earlier build of the UI may
// have left behind.
var (
	staleIDs     = []string{RootID, MicButtonID, "voxfill-status"}
	staleClasses = []string{"voxfill-mic-button", "voxfill-toast"}
)

const editableSelector = `textarea, input, [contenteditable]`

// Controller is the part of the session the UI drives.
type Controller interface {
	BindTarget(el *dom.Element) bool
	Toggle() error
}

type Config struct {
	PollInterval time.Duration
}

// Monitor re-runs Ensure on every structural change and every poll tick.
// All methods run on the scheduler's loop.
type Monitor struct {
	doc   *dom.Document
	ctrl  Controller
	sched eventloop.Scheduler
	cfg   Config
	log   zerolog.Logger

	stopObserve func()
	poll        eventloop.Timer
	queued      bool
	running     bool

	fields   []enhancedField
	rebuilds int
}

// enhancedField is a field carrying the marker attribute and the listeners
// that bind it as the dictation target.
type enhancedField struct {
	el     *dom.Element
	unbind []func()
}

func (f enhancedField) release() {
	for _, fn := range f.unbind {
		fn()
	}
}

func New(doc *dom.Document, ctrl Controller, sched eventloop.Scheduler, cfg Config, log zerolog.Logger) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPoll
	}
	return &Monitor{
		doc:   doc,
		ctrl:  ctrl,
		sched: sched,
		cfg:   cfg,
		log:   log.With().Str("component", "liveness").Logger(),
	}
}

// Start runs Ensure once and installs both triggers.
func (m *Monitor) Start() {
	if m.running {
		return
	}
	m.running = true
	m.Ensure()
	m.stopObserve = m.doc.Observe(m.onMutations)
	m.schedulePoll()
}

func (m *Monitor) Stop() {
	if !m.running {
		return
	}
	m.running = false
	if m.stopObserve != nil {
		m.stopObserve()
		m.stopObserve = nil
	}
	if m.poll != nil {
		m.poll.Stop()
		m.poll = nil
	}
	for _, f := range m.fields {
		f.release()
		f.el.RemoveAttr(EnhancedAttr)
	}
	m.fields = nil
}

// Rebuilds counts how often the mic UI had to be recreated.
func (m *Monitor) Rebuilds() int { return m.rebuilds }

// Enhanced counts the fields currently tracked.
func (m *Monitor) Enhanced() int { return len(m.fields) }

// Ensure rebuilds the mic UI when it is gone and enhances fields that have
// not been seen yet. It is idempotent.
func (m *Monitor) Ensure() {
	if m.doc.GetElementByID(RootID) == nil {
		if err := m.rebuild(); err != nil {
			m.log.Warn().Err(err).Msg("could not inject mic ui")
		}
	}
	m.pruneDetached()
	m.enhanceFields()
}

// SetListening mirrors the session state onto the mic button.
func (m *Monitor) SetListening(on bool) {
	mic := m.doc.GetElementByID(MicButtonID)
	if mic == nil {
		return
	}
	if on {
		mic.AddClass(listeningClass)
		mic.SetAttr("aria-pressed", "true")
		return
	}
	mic.RemoveClass(listeningClass)
	mic.SetAttr("aria-pressed", "false")
}

func (m *Monitor) rebuild() error {
	m.removeStale()

	body := m.doc.Body()
	if body == nil {
		return dom.ErrNoBody
	}
	root := m.doc.CreateElement("div")
	root.SetAttr("id", RootID)
	root.SetAttr(classify.OwnUIAttr, "")

	mic := m.doc.CreateElement("button")
	mic.SetAttr("id", MicButtonID)
	mic.SetAttr("type", "button")
	mic.SetAttr("aria-label", "Start voice input")
	mic.SetAttr("aria-pressed", "false")
	mic.AddClass("voxfill-mic-button")
	mic.SetTextContent("mic")
	mic.AddEventListener(dom.EventClick, func(dom.Event) {
		if err := m.ctrl.Toggle(); err != nil {
			m.log.Info().Err(err).Msg("mic toggle")
		}
	})

	if err := root.AppendChild(mic); err != nil {
		return err
	}
	if err := body.AppendChild(root); err != nil {
		return err
	}
	m.rebuilds++
	m.log.Debug().Int("rebuilds", m.rebuilds).Msg("mic ui injected")
	return nil
}

func (m *Monitor) removeStale() {
	for _, id := range staleIDs {
		for el := m.doc.GetElementByID(id); el != nil; el = m.doc.GetElementByID(id) {
			el.Remove()
		}
	}
	for _, class := range staleClasses {
		for _, el := range m.doc.QuerySelectorAll("." + class) {
			el.Remove()
		}
	}
}

func (m *Monitor) enhanceFields() {
	for _, el := range m.doc.QuerySelectorAll(editableSelector) {
		if el.HasAttr(EnhancedAttr) || classify.IsOwnUI(el) || !classify.IsEditableInput(el) {
			continue
		}
		el.SetAttr(EnhancedAttr, "true")
		field := el
		bind := func(dom.Event) { m.ctrl.BindTarget(field) }
		m.fields = append(m.fields, enhancedField{
			el: el,
			unbind: []func(){
				el.AddEventListener(dom.EventClick, bind),
				el.AddEventListener(dom.EventFocus, bind),
			},
		})
		m.log.Debug().Str("field", el.String()).Msg("field enhanced")
	}
}

// pruneDetached forgets fields that left the document, for example when a
// navigation replaced the body.
func (m *Monitor) pruneDetached() {
	kept := m.fields[:0]
	for _, f := range m.fields {
		if f.el.IsConnected() {
			kept = append(kept, f)
			continue
		}
		f.release()
	}
	for i := len(kept); i < len(m.fields); i++ {
		m.fields[i] = enhancedField{}
	}
	m.fields = kept
}

// onMutations queues one Ensure for a batch that removed the UI or added an
// editable field.
func (m *Monitor) onMutations(batch []dom.Mutation) {
	if !m.relevant(batch) {
		return
	}
	m.queue()
}

func (m *Monitor) relevant(batch []dom.Mutation) bool {
	if m.doc.GetElementByID(RootID) == nil {
		return true
	}
	for _, mu := range batch {
		for _, added := range mu.Added {
			if classify.IsOwnUI(added) {
				continue
			}
			if classify.IsEditableInput(added) || len(added.QuerySelectorAll(editableSelector)) > 0 {
				return true
			}
		}
	}
	return false
}

func (m *Monitor) queue() {
	if m.queued {
		return
	}
	m.queued = true
	m.sched.Post(func() {
		m.queued = false
		if m.running {
			m.Ensure()
		}
	})
}

func (m *Monitor) schedulePoll() {
	m.poll = m.sched.AfterFunc(m.cfg.PollInterval, func() {
		if !m.running {
			return
		}
		m.Ensure()
		m.schedulePoll()
	})
}
