package dom

const (
	EventInput    = "input"
	EventChange   = "change"
	EventKeyDown  = "keydown"
	EventKeyPress = "keypress"
	EventKeyUp    = "keyup"
	EventClick    = "click"
	EventFocus    = "focus"
	EventFocusIn  = "focusin"
	EventBlur     = "blur"
)

// Event is a dispatched DOM event.
type Event struct {
	Type    string
	Key     string
	Data    string
	Bubbles bool
	Target  *Element
	Current *Element
}

// NewEvent returns an event with the bubbling behaviour browsers use for
// the given type.
func NewEvent(eventType string) Event {
	switch eventType {
	case EventFocus, EventBlur:
		return Event{Type: eventType}
	}
	return Event{Type: eventType, Bubbles: true}
}

// KeyEvent returns a bubbling keyboard event for key.
func KeyEvent(eventType string, key string) Event {
	return Event{Type: eventType, Key: key, Bubbles: true}
}

type listener struct {
	fn      func(Event)
	removed bool
}

type listenerSet struct {
	byType map[string][]*listener
}

func (s *listenerSet) add(eventType string, fn func(Event)) func() {
	if s.byType == nil {
		s.byType = make(map[string][]*listener)
	}
	l := &listener{fn: fn}
	s.byType[eventType] = append(s.byType[eventType], l)
	return func() {
		l.removed = true
		list := s.byType[eventType]
		for i, cur := range list {
			if cur == l {
				s.byType[eventType] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

func (s *listenerSet) count(eventType string) int {
	return len(s.byType[eventType])
}

func (s *listenerSet) fire(ev Event) {
	list := append([]*listener(nil), s.byType[ev.Type]...)
	for _, l := range list {
		if !l.removed {
			l.fn(ev)
		}
	}
}

// AddEventListener registers fn for eventType on e and returns a remover.
func (e *Element) AddEventListener(eventType string, fn func(Event)) func() {
	return e.listeners.add(eventType, fn)
}

// ListenerCount reports how many listeners of eventType are attached to e.
func (e *Element) ListenerCount(eventType string) int {
	return e.listeners.count(eventType)
}

// DispatchEvent delivers ev to e, then to its ancestors and the document
// when the event bubbles.
func (e *Element) DispatchEvent(ev Event) error {
	if !e.IsConnected() {
		return ErrDetached
	}
	ev.Target = e
	ev.Current = e
	e.listeners.fire(ev)
	if !ev.Bubbles {
		return nil
	}
	for p := e.Parent(); p != nil; p = p.Parent() {
		ev.Current = p
		p.listeners.fire(ev)
	}
	ev.Current = nil
	e.doc.listeners.fire(ev)
	return nil
}
