// Package recognizer turns microphone capture and a streaming transcription
// provider into speech recognition engine handles.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voxfill/internal/domain"
	"voxfill/internal/eventloop"
	"voxfill/internal/ports"
)

var (
	ErrAlreadyStarted = errors.New("recognizer already started")
	ErrNotStarted     = errors.New("recognizer not started")
)

// Config controls capture and streaming for every handle.
type Config struct {
	Audio          ports.AudioConfig
	Streaming      ports.StreamingConfig
	ChunkSize      int
	StreamingGrace time.Duration
	WaitTimeout    time.Duration
}

// Factory implements ports.RecognizerFactory.
type Factory struct {
	audio    ports.AudioCapture
	provider ports.TranscriptionProvider
	sched    eventloop.Scheduler
	cfg      Config
	log      zerolog.Logger
}

func NewFactory(
	audio ports.AudioCapture,
	provider ports.TranscriptionProvider,
	sched eventloop.Scheduler,
	cfg Config,
	log zerolog.Logger,
) *Factory {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 4 * time.Second
	}
	return &Factory{audio: audio, provider: provider, sched: sched, cfg: cfg, log: log}
}

func (f *Factory) NewRecognizer(rc ports.RecognizerConfig, cb ports.RecognizerCallbacks) (ports.Recognizer, error) {
	streaming := f.cfg.Streaming
	streaming.InterimResults = rc.InterimResults
	if rc.Lang != "" {
		streaming.Language = rc.Lang
	}
	return &handle{
		factory:   f,
		rc:        rc,
		cb:        cb,
		streaming: streaming,
		done:      make(chan struct{}),
	}, nil
}

// handle is one activation: connect, capture, stream, then end. Callbacks
// are posted to the scheduler in order; OnEnd is always last.
type handle struct {
	factory   *Factory
	rc        ports.RecognizerConfig
	cb        ports.RecognizerCallbacks
	streaming ports.StreamingConfig

	mu       sync.Mutex
	started  bool
	stopping bool
	aborted  bool
	cancel   context.CancelFunc
	audio    ports.AudioSession
	stream   ports.StreamingSession

	done chan struct{}
}

func (h *handle) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return ErrAlreadyStarted
	}
	h.started = true

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go h.run(ctx)
	return nil
}

// Stop ends capture. Results still in flight are delivered before OnEnd.
// It never blocks the caller.
func (h *handle) Stop() error {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return ErrNotStarted
	}
	if h.stopping || h.aborted {
		h.mu.Unlock()
		return nil
	}
	h.stopping = true
	audio := h.audio
	h.mu.Unlock()

	if audio != nil {
		go h.endCapture(audio)
	}
	return nil
}

func (h *handle) Abort() error {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return ErrNotStarted
	}
	if h.aborted {
		h.mu.Unlock()
		return nil
	}
	h.aborted = true
	cancel, audio, stream := h.cancel, h.audio, h.stream
	h.mu.Unlock()

	cancel()
	go func() {
		if audio != nil {
			_ = audio.Stop()
		}
		if stream != nil {
			_ = stream.Close()
		}
	}()
	return nil
}

// Done is closed once the handle has fully shut down.
func (h *handle) Done() <-chan struct{} { return h.done }

func (h *handle) run(ctx context.Context) {
	defer close(h.done)
	defer h.post(func() {
		if h.cb.OnEnd != nil {
			h.cb.OnEnd()
		}
	})
	log := h.factory.log.With().Str("lang", h.streaming.Language).Logger()

	stream, err := h.factory.provider.StartStreaming(ctx, h.streaming)
	if err != nil {
		h.fail(err)
		return
	}
	audio, err := h.factory.audio.Start(ctx, h.factory.cfg.Audio)
	if err != nil {
		_ = stream.Close()
		if !errors.Is(err, domain.ErrAudioCapture) {
			err = fmt.Errorf("%w: %v", domain.ErrAudioCapture, err)
		}
		h.fail(err)
		return
	}

	h.mu.Lock()
	h.audio, h.stream = audio, stream
	aborted, stopping := h.aborted, h.stopping
	h.mu.Unlock()
	if aborted {
		_ = audio.Stop()
		_ = stream.Close()
		return
	}

	h.post(func() {
		if h.cb.OnStart != nil {
			h.cb.OnStart()
		}
	})
	log.Debug().Msg("recognition started")

	pumpDone := make(chan error, 1)
	go func() { pumpDone <- pumpAudioChunks(audio, stream, h.factory.cfg.ChunkSize) }()
	if stopping {
		go h.endCapture(audio)
	}

	finals := h.consume(stream, audio)

	streamErr := waitForStream(stream, h.factory.cfg.WaitTimeout)
	_ = audio.Stop()
	pumpErr := <-pumpDone

	if h.isAborted() {
		log.Debug().Msg("recognition aborted")
		return
	}
	if pumpErr != nil && !h.isStopping() {
		log.Warn().Err(pumpErr).Msg("audio pump ended with error")
	}
	if finals > 0 {
		if streamErr != nil {
			log.Warn().Err(streamErr).Msg("stream closed with error after results")
		}
		return
	}
	switch {
	case streamErr != nil:
		h.fail(streamErr)
	case pumpErr != nil && !h.isStopping():
		h.fail(fmt.Errorf("%w: %v", domain.ErrAudioCapture, pumpErr))
	default:
		h.fail(domain.ErrNoSpeech)
	}
}

// consume forwards provider events until the stream closes and returns how
// many final results were delivered. Without continuous mode the first
// finished utterance ends capture.
func (h *handle) consume(stream ports.StreamingSession, audio ports.AudioSession) int {
	var u utterance
	finals := 0
	ended := false

	for event := range stream.Events() {
		if ended || h.isAborted() {
			continue
		}
		u.Add(event)
		if u.Empty() {
			continue
		}

		if event.Kind == domain.TranscriptKindFinal && event.IsSpeechFinal {
			h.result(u.Text(), true)
			u.Reset()
			finals++
			if !h.rc.Continuous {
				ended = true
				h.mu.Lock()
				h.stopping = true
				h.mu.Unlock()
				go h.endCapture(audio)
			}
			continue
		}
		if h.rc.InterimResults {
			h.result(u.Preview(), false)
		}
	}

	if !ended && !u.Empty() && !h.isAborted() {
		h.result(u.Text(), true)
		finals++
	}
	return finals
}

func (h *handle) endCapture(audio ports.AudioSession) {
	if grace := h.factory.cfg.StreamingGrace; grace > 0 {
		time.Sleep(grace)
	}
	if err := audio.Stop(); err != nil {
		h.factory.log.Debug().Err(err).Msg("audio capture stop")
	}
}

func (h *handle) result(text string, final bool) {
	res := domain.RecognitionResult{Transcript: text, IsFinal: final}
	h.post(func() {
		if h.cb.OnResult != nil {
			h.cb.OnResult(res)
		}
	})
}

func (h *handle) fail(err error) {
	if h.isAborted() {
		return
	}
	h.post(func() {
		if h.cb.OnError != nil {
			h.cb.OnError(err)
		}
	})
}

func (h *handle) post(fn func()) { h.factory.sched.Post(fn) }

func (h *handle) isAborted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.aborted
}

func (h *handle) isStopping() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopping
}

// pumpAudioChunks copies capture into the stream and closes the send side
// once capture ends.
func pumpAudioChunks(audio ports.AudioSession, stream ports.StreamingSession, chunkSize int) error {
	defer func() { _ = stream.CloseSend() }()

	if chunkSize < 256 {
		chunkSize = 4096
	}
	buf := make([]byte, chunkSize)
	for {
		n, err := audio.Read(buf)
		if n > 0 {
			if sendErr := stream.SendAudio(buf[:n]); sendErr != nil {
				return fmt.Errorf("failed to stream audio: %w", sendErr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("audio capture error: %w", err)
		}
	}
}

func waitForStream(session ports.StreamingSession, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		_ = session.Close()
		return <-done
	}
}
