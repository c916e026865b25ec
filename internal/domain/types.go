package domain

import (
	"errors"
	"strings"
)

// SessionState models the dictation lifecycle.
type SessionState string

const (
	SessionStateIdle      SessionState = "idle"
	SessionStateListening SessionState = "listening"
	SessionStateStopping  SessionState = "stopping"
	// SessionStateError is only reported when the runtime failed to start.
	SessionStateError     SessionState = "error"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonReady              SessionStateReason = "ready"
	SessionReasonListeningStarted   SessionStateReason = "listening_started"
	SessionReasonListeningRestarted SessionStateReason = "listening_restarted"
	SessionReasonStopRequested      SessionStateReason = "stop_requested"
	SessionReasonStopped            SessionStateReason = "stopped"
	SessionReasonEnded              SessionStateReason = "ended"
	SessionReasonRecognitionFailed  SessionStateReason = "recognition_failed"
	SessionReasonStartFailed        SessionStateReason = "start_failed"
	SessionReasonTranscriptInjected SessionStateReason = "transcript_injected"
	SessionReasonInjectionFailed    SessionStateReason = "injection_failed"
	SessionReasonSubmitted          SessionStateReason = "submitted"
	SessionReasonSubmitRetrying     SessionStateReason = "submit_retrying"
	SessionReasonFieldRewritten     SessionStateReason = "field_rewritten"
)

// ErrorCode identifies non-fatal errors reported to the UI. The first four
// are the recognition engine error kinds.
type ErrorCode string

const (
	ErrorCodeNoSpeech     ErrorCode = "no-speech"
	ErrorCodeAudioCapture ErrorCode = "audio-capture"
	ErrorCodeNotAllowed   ErrorCode = "not-allowed"
	ErrorCodeRecognition  ErrorCode = "other"

	ErrorCodeNoInputField ErrorCode = "no_input_field"
	ErrorCodeInjection    ErrorCode = "injection"
	ErrorCodeCorrection   ErrorCode = "correction"
	ErrorCodeRules        ErrorCode = "rules"
	ErrorCodeSubmit       ErrorCode = "submit"
	ErrorCodeSettings     ErrorCode = "settings"
	ErrorCodeStartup      ErrorCode = "startup"
)

// Recognition failures are wrapped around these so engines can report a
// kind without sharing concrete error types.
var (
	ErrNoSpeech     = errors.New("no speech detected")
	ErrAudioCapture = errors.New("audio capture failed")
	ErrNotAllowed   = errors.New("recognition not allowed")
)

// ClassifyRecognitionError maps an engine error onto one of the four kinds.
func ClassifyRecognitionError(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrNoSpeech):
		return ErrorCodeNoSpeech
	case errors.Is(err, ErrAudioCapture):
		return ErrorCodeAudioCapture
	case errors.Is(err, ErrNotAllowed):
		return ErrorCodeNotAllowed
	default:
		return ErrorCodeRecognition
	}
}

// RecognitionMessage is the user-facing status for an engine error kind.
func RecognitionMessage(code ErrorCode) string {
	switch code {
	case ErrorCodeNoSpeech:
		return "No speech detected. Try again."
	case ErrorCodeAudioCapture:
		return "Microphone unavailable."
	case ErrorCodeNotAllowed:
		return "Microphone or recognition access denied."
	default:
		return "Speech recognition error."
	}
}

// TranscriptKind identifies whether a stream event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental transcription output from a
// streaming provider.
type TranscriptEvent struct {
	Kind          TranscriptKind `json:"kind"`
	Text          string         `json:"text"`
	IsSpeechFinal bool           `json:"isSpeechFinal"`
}

// RecognitionResult is the current utterance as reported by a recognizer.
// Interim results supersede each other; a final result ends the utterance.
type RecognitionResult struct {
	Transcript string `json:"transcript"`
	IsFinal    bool   `json:"isFinal"`
}

// InjectionMode selects how transcripts combine with existing field content.
type InjectionMode string

const (
	InjectionOverwrite InjectionMode = "overwrite"
	InjectionAppend    InjectionMode = "append"
)

// ParseInjectionMode maps unknown values to InjectionOverwrite.
func ParseInjectionMode(s string) InjectionMode {
	if InjectionMode(strings.ToLower(strings.TrimSpace(s))) == InjectionAppend {
		return InjectionAppend
	}
	return InjectionOverwrite
}

// Settings are the user preferences persisted between runs.
type Settings struct {
	APIKey                string        `json:"apiKey" yaml:"api_key"`
	RecognitionLang       string        `json:"recognitionLang" yaml:"recognition_lang"`
	AlwaysOnMode          bool          `json:"alwaysOnMode" yaml:"always_on_mode"`
	AutoDetectInputFields bool          `json:"autoDetectInputFields" yaml:"auto_detect_input_fields"`
	InjectionMode         InjectionMode `json:"injectionMode" yaml:"injection_mode"`
	AutoSubmit            bool          `json:"autoSubmit" yaml:"auto_submit"`
	AutoCorrect           bool          `json:"autoCorrect" yaml:"auto_correct"`
	PreferDirectInjection bool          `json:"preferDirectInjection" yaml:"prefer_direct_injection"`
}

const DefaultRecognitionLang = "en-US"

func DefaultSettings() Settings {
	return Settings{
		RecognitionLang:       DefaultRecognitionLang,
		AutoDetectInputFields: true,
		InjectionMode:         InjectionOverwrite,
		AutoSubmit:            true,
		AutoCorrect:           true,
	}
}

// Normalized clamps unknown values to their defaults.
func (s Settings) Normalized() Settings {
	s.APIKey = strings.TrimSpace(s.APIKey)
	s.RecognitionLang = strings.TrimSpace(s.RecognitionLang)
	if s.RecognitionLang == "" {
		s.RecognitionLang = DefaultRecognitionLang
	}
	s.InjectionMode = ParseInjectionMode(string(s.InjectionMode))
	return s
}

// Status summarizes the current runtime status.
type Status struct {
	State     SessionState  `json:"state"`
	Active    bool          `json:"active"`
	SessionID string        `json:"sessionId,omitempty"`
	Target    string        `json:"target,omitempty"`
	Mode      InjectionMode `json:"mode"`
	AlwaysOn  bool          `json:"alwaysOn"`
	Message   string        `json:"message,omitempty"`
}
