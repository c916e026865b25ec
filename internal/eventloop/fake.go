package eventloop

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually driven Scheduler. Posts may come from any goroutine;
// tasks only run inside RunPending, Advance or WaitFor.
type Fake struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	queue  []func()
	timers []*fakeTimer
	wake   chan struct{}
}

type fakeTimer struct {
	f       *Fake
	at      time.Duration
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func NewFake() *Fake {
	return &Fake{wake: make(chan struct{}, 1)}
}

func (f *Fake) Post(fn func()) {
	if fn == nil {
		return
	}
	f.mu.Lock()
	f.queue = append(f.queue, fn)
	f.mu.Unlock()
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t := &fakeTimer{f: f, at: f.now + d, seq: f.seq, fn: fn}
	f.timers = append(f.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Now reports the virtual time elapsed since creation.
func (f *Fake) Now() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Pending reports how many timers are still armed.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// RunPending runs queued tasks, including ones queued while running.
func (f *Fake) RunPending() int {
	ran := 0
	for {
		f.mu.Lock()
		if len(f.queue) == 0 {
			f.mu.Unlock()
			return ran
		}
		fn := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()
		fn()
		ran++
	}
}

// Advance moves virtual time forward, firing due timers in order.
func (f *Fake) Advance(d time.Duration) {
	f.RunPending()

	f.mu.Lock()
	target := f.now + d
	f.mu.Unlock()

	for {
		f.mu.Lock()
		next := f.nextDueLocked(target)
		if next == nil {
			f.now = target
			f.mu.Unlock()
			f.RunPending()
			return
		}
		next.fired = true
		f.now = next.at
		f.mu.Unlock()

		next.fn()
		f.RunPending()
	}
}

func (f *Fake) nextDueLocked(limit time.Duration) *fakeTimer {
	var due []*fakeTimer
	for _, t := range f.timers {
		if !t.stopped && !t.fired && t.at <= limit {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].at == due[j].at {
			return due[i].seq < due[j].seq
		}
		return due[i].at < due[j].at
	})
	return due[0]
}

// WaitFor runs tasks as they are posted until cond holds or timeout
// (real time) elapses. It reports whether cond became true.
func (f *Fake) WaitFor(cond func() bool, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		f.RunPending()
		if cond() {
			return true
		}
		select {
		case <-f.wake:
		case <-deadline.C:
			f.RunPending()
			return cond()
		}
	}
}
