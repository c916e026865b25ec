package dom

// Mutation records one child-list change under Target.
type Mutation struct {
	Target  *Element
	Added   []*Element
	Removed []*Element
}

type observer struct {
	id     int
	fn     func([]Mutation)
	active bool
}

// Observe registers fn for child-list mutations anywhere in the document.
// Mutations caused by an observer callback are delivered in a later batch,
// never re-entrantly.
func (d *Document) Observe(fn func([]Mutation)) (stop func()) {
	d.nextObs++
	o := &observer{id: d.nextObs, fn: fn, active: true}
	d.observers = append(d.observers, o)
	return func() {
		o.active = false
		for i, cur := range d.observers {
			if cur == o {
				d.observers = append(d.observers[:i:i], d.observers[i+1:]...)
				return
			}
		}
	}
}

// ObserverCount reports the registered observers.
func (d *Document) ObserverCount() int { return len(d.observers) }

// ListenerCount reports document-level listeners of eventType.
func (d *Document) ListenerCount(eventType string) int {
	return d.listeners.count(eventType)
}

func (d *Document) record(m Mutation) {
	d.pending = append(d.pending, m)
	if d.flushing {
		return
	}
	d.flushing = true
	defer func() { d.flushing = false }()

	for len(d.pending) > 0 {
		batch := d.pending
		d.pending = nil
		observers := append([]*observer(nil), d.observers...)
		for _, o := range observers {
			if o.active {
				o.fn(batch)
			}
		}
	}
}
