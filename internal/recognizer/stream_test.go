package recognizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"voxfill/internal/domain"
	"voxfill/internal/eventloop"
	"voxfill/internal/ports"
)

func TestRecognizerDeliversOneUtterance(t *testing.T) {
	t.Parallel()

	stream := newFakeStreamingSession()
	stream.events <- domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: "hel"}
	stream.events <- domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "hello"}
	stream.events <- domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "world", IsSpeechFinal: true}
	stream.events <- domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "ignored", IsSpeechFinal: true}
	audio := &fakeAudioSession{chunks: [][]byte{[]byte("pcm")}}
	provider := &fakeProvider{sessions: []ports.StreamingSession{stream}}

	sched := eventloop.NewFake()
	factory := NewFactory(&fakeAudioCapture{sessions: []ports.AudioSession{audio}}, provider, sched, Config{}, zerolog.Nop())
	rec := &recorder{}
	h, err := factory.NewRecognizer(ports.RecognizerConfig{Lang: "fr-FR", InterimResults: true}, rec.callbacks())
	if err != nil {
		t.Fatalf("new recognizer failed: %v", err)
	}
	if err := h.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !sched.WaitFor(rec.ended, 2*time.Second) {
		t.Fatalf("recognizer never ended: %v", rec.log)
	}

	want := []string{"start", "interim:hel", "interim:hello", "final:hello world", "end"}
	rec.expect(t, want)
	if provider.lastCfg.Language != "fr-FR" || !provider.lastCfg.InterimResults {
		t.Fatalf("unexpected streaming config: %+v", provider.lastCfg)
	}
	if audio.stops() == 0 {
		t.Fatalf("expected capture to stop")
	}
	if err := h.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected handle reuse to fail, got %v", err)
	}
}

func TestRecognizerNoSpeech(t *testing.T) {
	t.Parallel()

	stream := newFakeStreamingSession()
	sched := eventloop.NewFake()
	factory := NewFactory(
		&fakeAudioCapture{sessions: []ports.AudioSession{&fakeAudioSession{}}},
		&fakeProvider{sessions: []ports.StreamingSession{stream}},
		sched, Config{}, zerolog.Nop(),
	)
	rec := &recorder{}
	h, _ := factory.NewRecognizer(ports.RecognizerConfig{InterimResults: true}, rec.callbacks())
	_ = h.Start()
	if !sched.WaitFor(rec.ended, 2*time.Second) {
		t.Fatalf("recognizer never ended")
	}
	rec.expect(t, []string{"start", "error:no-speech", "end"})
}

func TestRecognizerProviderRejected(t *testing.T) {
	t.Parallel()

	sched := eventloop.NewFake()
	factory := NewFactory(
		&fakeAudioCapture{},
		&fakeProvider{err: fmt.Errorf("%w: missing key", domain.ErrNotAllowed)},
		sched, Config{}, zerolog.Nop(),
	)
	rec := &recorder{}
	h, _ := factory.NewRecognizer(ports.RecognizerConfig{}, rec.callbacks())
	_ = h.Start()
	if !sched.WaitFor(rec.ended, 2*time.Second) {
		t.Fatalf("recognizer never ended")
	}
	rec.expect(t, []string{"error:not-allowed", "end"})
}

func TestRecognizerCaptureFailureClosesStream(t *testing.T) {
	t.Parallel()

	stream := newFakeStreamingSession()
	sched := eventloop.NewFake()
	factory := NewFactory(
		&fakeAudioCapture{err: errors.New("device busy")},
		&fakeProvider{sessions: []ports.StreamingSession{stream}},
		sched, Config{}, zerolog.Nop(),
	)
	rec := &recorder{}
	h, _ := factory.NewRecognizer(ports.RecognizerConfig{}, rec.callbacks())
	_ = h.Start()
	if !sched.WaitFor(rec.ended, 2*time.Second) {
		t.Fatalf("recognizer never ended")
	}
	rec.expect(t, []string{"error:audio-capture", "end"})
	if stream.closes() == 0 {
		t.Fatalf("expected stream to be closed")
	}
}

func TestRecognizerStopFlushesPendingSpeech(t *testing.T) {
	t.Parallel()

	stream := newFakeStreamingSession()
	stream.events <- domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: "half a thought"}
	audio := newBlockingAudioSession()
	sched := eventloop.NewFake()
	factory := NewFactory(
		&fakeAudioCapture{sessions: []ports.AudioSession{audio}},
		&fakeProvider{sessions: []ports.StreamingSession{stream}},
		sched, Config{}, zerolog.Nop(),
	)
	rec := &recorder{}
	h, _ := factory.NewRecognizer(ports.RecognizerConfig{InterimResults: false}, rec.callbacks())
	if err := h.Stop(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected not started, got %v", err)
	}
	_ = h.Start()
	if !sched.WaitFor(rec.has("start"), 2*time.Second) {
		t.Fatalf("recognizer never started")
	}
	if err := h.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if !sched.WaitFor(rec.ended, 2*time.Second) {
		t.Fatalf("recognizer never ended")
	}
	rec.expect(t, []string{"start", "final:half a thought", "end"})
}

func TestRecognizerAbortDropsResults(t *testing.T) {
	t.Parallel()

	stream := newFakeStreamingSession()
	audio := newBlockingAudioSession()
	sched := eventloop.NewFake()
	factory := NewFactory(
		&fakeAudioCapture{sessions: []ports.AudioSession{audio}},
		&fakeProvider{sessions: []ports.StreamingSession{stream}},
		sched, Config{}, zerolog.Nop(),
	)
	rec := &recorder{}
	h, _ := factory.NewRecognizer(ports.RecognizerConfig{InterimResults: true}, rec.callbacks())
	_ = h.Start()
	if !sched.WaitFor(rec.has("start"), 2*time.Second) {
		t.Fatalf("recognizer never started")
	}
	if err := h.Abort(); err != nil {
		t.Fatalf("abort failed: %v", err)
	}
	if !sched.WaitFor(rec.ended, 2*time.Second) {
		t.Fatalf("recognizer never ended")
	}
	rec.expect(t, []string{"start", "end"})
}

func TestPumpAudioChunksReportsSendError(t *testing.T) {
	t.Parallel()

	audio := &fakeAudioSession{chunks: [][]byte{[]byte("abc")}}
	stream := &sendErrStream{err: errors.New("send failed")}
	if err := pumpAudioChunks(audio, stream, 256); err == nil {
		t.Fatalf("expected send error")
	}
	if !stream.closedSend {
		t.Fatalf("expected send side to be closed")
	}
}

func TestPumpAudioChunksReportsReadError(t *testing.T) {
	t.Parallel()

	audio := &errorAudioSession{err: errors.New("read failed")}
	if err := pumpAudioChunks(audio, &sendErrStream{}, 0); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestWaitForStreamTimeoutClosesSession(t *testing.T) {
	t.Parallel()

	stream := &blockingWaitStream{done: make(chan struct{}), waitErr: errors.New("closed")}
	err := waitForStream(stream, 10*time.Millisecond)
	if err == nil || err.Error() != "closed" {
		t.Fatalf("expected closed error, got %v", err)
	}
	if stream.closeCalls == 0 {
		t.Fatalf("expected close to be called on timeout")
	}
}

func TestUtteranceJoinsSegments(t *testing.T) {
	t.Parallel()

	var u utterance
	u.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: "   "})
	if !u.Empty() {
		t.Fatalf("blank text must be ignored")
	}
	u.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "one"})
	u.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: "tw"})
	if got := u.Preview(); got != "one tw" {
		t.Fatalf("unexpected preview %q", got)
	}
	if got := u.Text(); got != "one" {
		t.Fatalf("unexpected text %q", got)
	}
	u.Reset()
	u.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: "only partial"})
	if got := u.Text(); got != "only partial" {
		t.Fatalf("expected partial fallback, got %q", got)
	}
}

// recorder collects callbacks. Callbacks run inside Fake.WaitFor on the
// test goroutine.
type recorder struct {
	log []string
}

func (r *recorder) callbacks() ports.RecognizerCallbacks {
	return ports.RecognizerCallbacks{
		OnStart: func() { r.log = append(r.log, "start") },
		OnResult: func(res domain.RecognitionResult) {
			kind := "interim"
			if res.IsFinal {
				kind = "final"
			}
			r.log = append(r.log, kind+":"+res.Transcript)
		},
		OnError: func(err error) {
			r.log = append(r.log, "error:"+string(domain.ClassifyRecognitionError(err)))
		},
		OnEnd: func() { r.log = append(r.log, "end") },
	}
}

func (r *recorder) ended() bool { return r.has("end")() }

func (r *recorder) has(entry string) func() bool {
	return func() bool {
		for _, e := range r.log {
			if e == entry {
				return true
			}
		}
		return false
	}
}

func (r *recorder) expect(t *testing.T, want []string) {
	t.Helper()
	if len(r.log) != len(want) {
		t.Fatalf("expected %v, got %v", want, r.log)
	}
	for i := range want {
		if r.log[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, r.log)
		}
	}
}

type fakeAudioCapture struct {
	mu       sync.Mutex
	sessions []ports.AudioSession
	err      error
	calls    int
}

func (f *fakeAudioCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.sessions) {
		return nil, errors.New("no audio session configured")
	}
	session := f.sessions[f.calls]
	f.calls++
	return session, nil
}

type fakeAudioSession struct {
	mu        sync.Mutex
	chunks    [][]byte
	index     int
	stopCalls int
}

func (f *fakeAudioSession) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index >= len(f.chunks) {
		return 0, io.EOF
	}
	n := copy(p, f.chunks[f.index])
	f.index++
	return n, nil
}

func (f *fakeAudioSession) Close() error { return nil }

func (f *fakeAudioSession) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return nil
}

func (f *fakeAudioSession) stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

// blockingAudioSession reads nothing until stopped, like a live microphone
// during silence.
type blockingAudioSession struct {
	stopped chan struct{}
	once    sync.Once
}

func newBlockingAudioSession() *blockingAudioSession {
	return &blockingAudioSession{stopped: make(chan struct{})}
}

func (b *blockingAudioSession) Read(_ []byte) (int, error) {
	<-b.stopped
	return 0, io.EOF
}

func (b *blockingAudioSession) Close() error { return b.Stop() }

func (b *blockingAudioSession) Stop() error {
	b.once.Do(func() { close(b.stopped) })
	return nil
}

type fakeProvider struct {
	mu       sync.Mutex
	sessions []ports.StreamingSession
	err      error
	calls    int
	lastCfg  ports.StreamingConfig
}

func (f *fakeProvider) StartStreaming(_ context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCfg = cfg
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.sessions) {
		return nil, errors.New("no stream session configured")
	}
	session := f.sessions[f.calls]
	f.calls++
	return session, nil
}

// fakeStreamingSession closes its event channel when the send side closes,
// the way a provider flushes and hangs up after CloseStream.
type fakeStreamingSession struct {
	mu         sync.Mutex
	events     chan domain.TranscriptEvent
	waitErr    error
	closeCalls int
	closed     bool
}

func newFakeStreamingSession() *fakeStreamingSession {
	return &fakeStreamingSession{events: make(chan domain.TranscriptEvent, 16)}
}

func (f *fakeStreamingSession) SendAudio(_ []byte) error { return nil }

func (f *fakeStreamingSession) CloseSend() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeLocked()
	return nil
}

func (f *fakeStreamingSession) Events() <-chan domain.TranscriptEvent { return f.events }

func (f *fakeStreamingSession) Wait() error { return f.waitErr }

func (f *fakeStreamingSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	f.closeLocked()
	return nil
}

func (f *fakeStreamingSession) closeLocked() {
	if !f.closed {
		close(f.events)
		f.closed = true
	}
}

func (f *fakeStreamingSession) closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

type sendErrStream struct {
	err        error
	closedSend bool
}

func (s *sendErrStream) SendAudio(_ []byte) error { return s.err }
func (s *sendErrStream) CloseSend() error {
	s.closedSend = true
	return nil
}
func (s *sendErrStream) Events() <-chan domain.TranscriptEvent {
	ch := make(chan domain.TranscriptEvent)
	close(ch)
	return ch
}
func (s *sendErrStream) Wait() error  { return nil }
func (s *sendErrStream) Close() error { return nil }

type errorAudioSession struct {
	err error
}

func (s *errorAudioSession) Read(_ []byte) (int, error) { return 0, s.err }
func (s *errorAudioSession) Close() error               { return nil }
func (s *errorAudioSession) Stop() error                { return nil }

type blockingWaitStream struct {
	done       chan struct{}
	waitErr    error
	closeCalls int
}

func (s *blockingWaitStream) SendAudio(_ []byte) error { return nil }
func (s *blockingWaitStream) CloseSend() error         { return nil }
func (s *blockingWaitStream) Events() <-chan domain.TranscriptEvent {
	ch := make(chan domain.TranscriptEvent)
	close(ch)
	return ch
}
func (s *blockingWaitStream) Wait() error {
	<-s.done
	return s.waitErr
}
func (s *blockingWaitStream) Close() error {
	s.closeCalls++
	close(s.done)
	return nil
}
