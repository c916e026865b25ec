package ports

import (
	"context"
	"io"

	"voxfill/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	Language       string
	InterimResults bool
}

// StreamingSession is an active provider websocket session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// RecognizerConfig mirrors the options a speech recognition engine is
// constructed with.
type RecognizerConfig struct {
	Lang            string
	InterimResults  bool
	Continuous      bool
	MaxAlternatives int
}

// RecognizerCallbacks are invoked on the UI loop. OnEnd fires exactly once
// per started recognizer, after any OnResult or OnError.
type RecognizerCallbacks struct {
	OnStart  func()
	OnResult func(domain.RecognitionResult)
	OnError  func(error)
	OnEnd    func()
}

// Recognizer is one engine handle. Handles are not reusable: a new one is
// created for every activation.
type Recognizer interface {
	Start() error
	// Stop ends capture and lets pending results arrive before OnEnd.
	Stop() error
	// Abort drops pending results and ends as soon as possible.
	Abort() error
}

// RecognizerFactory creates recognizer handles.
type RecognizerFactory interface {
	NewRecognizer(cfg RecognizerConfig, cb RecognizerCallbacks) (Recognizer, error)
}

// Corrector is the remote text correction service.
type Corrector interface {
	// Correct lightly cleans one utterance. It fails open and returns text
	// unchanged alongside any error.
	Correct(ctx context.Context, text string, recent []string) (string, error)
	Proofread(ctx context.Context, text string) (string, error)
	Edit(ctx context.Context, text, instruction string) (string, error)
}

// RulesEngine transforms transcripts using deterministic rules.
type RulesEngine interface {
	Apply(text string) (string, error)
}

// SettingsStore persists user settings.
type SettingsStore interface {
	Load() (domain.Settings, error)
	Save(settings domain.Settings) error
}

// StatusSink emits session state and events to the UI.
type StatusSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	PartialTranscript(text string)
	FinalTranscript(raw string, injected string)
	SessionError(code domain.ErrorCode, detail string)
}
