package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"voxfill/internal/bootstrap"
	"voxfill/internal/config"
	"voxfill/internal/dom"
	"voxfill/internal/domain"
	"voxfill/internal/eventloop"
	"voxfill/internal/usecase"
)

const (
	eventSession = "voxfill:session"
	eventPartial = "voxfill:partial"
	eventFinal   = "voxfill:final"
	eventError   = "voxfill:error"
)

// App is the Wails application root. Bound methods hop onto the event loop
// before touching the session.
type App struct {
	ctx context.Context

	pagePath string
	hostname string
	log      zerolog.Logger

	loop    *eventloop.Loop
	doc     *dom.Document
	voice   *usecase.VoiceInput
	cfg     config.Config
	bootErr error
}

func NewApp(pagePath, hostname string, log zerolog.Logger) *App {
	return &App{pagePath: pagePath, hostname: hostname, log: log}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	doc, err := loadPage(a.pagePath, a.hostname)
	if err != nil {
		a.fail(err)
		return
	}

	loop := eventloop.New(0)
	go loop.Run(ctx)

	services, err := bootstrap.Build(bootstrap.Options{
		Document:  doc,
		Scheduler: loop,
		Status:    a,
		Logger:    a.log,
	})
	if err != nil {
		a.fail(err)
		return
	}

	a.loop = loop
	a.doc = doc
	a.cfg = services.Config
	a.voice = services.Voice
	if err := loop.Do(ctx, services.Monitor.Start); err != nil {
		a.fail(err)
		return
	}
	a.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonReady)
}

func (a *App) fail(err error) {
	a.bootErr = err
	a.log.Error().Err(err).Msg("startup failed")
	a.SessionError(domain.ErrorCodeStartup, err.Error())
}

// StartListening starts a dictation session on the best field.
func (a *App) StartListening() (domain.Status, error) {
	return a.withVoice(func(v *usecase.VoiceInput) error { return v.Start() })
}

// StopListening asks the session to finish its utterance.
func (a *App) StopListening() (domain.Status, error) {
	return a.withVoice(func(v *usecase.VoiceInput) error {
		if err := v.Stop(); err != nil && !errors.Is(err, usecase.ErrNoActiveSession) {
			return err
		}
		return nil
	})
}

// Toggle is the mic button action.
func (a *App) Toggle() (domain.Status, error) {
	return a.withVoice(func(v *usecase.VoiceInput) error { return v.Toggle() })
}

// ProofreadField rewrites the target field via the correction service.
func (a *App) ProofreadField() (domain.Status, error) {
	return a.withVoice(func(v *usecase.VoiceInput) error { return v.ProofreadField() })
}

// EditField rewrites the target field following instruction.
func (a *App) EditField(instruction string) (domain.Status, error) {
	return a.withVoice(func(v *usecase.VoiceInput) error { return v.EditField(instruction) })
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.voice == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.SessionStateError, Active: false, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.SessionStateIdle, Active: false}
	}
	status, _ := a.withVoice(nil)
	return status
}

// GetHistory returns recent final transcripts, oldest first.
func (a *App) GetHistory() []string {
	var history []string
	if err := a.requireReady(); err != nil {
		return nil
	}
	_ = a.loop.Do(a.ctx, func() { history = a.voice.History() })
	return history
}

func (a *App) GetSettings() (domain.Settings, error) {
	var s domain.Settings
	if err := a.requireReady(); err != nil {
		return s, err
	}
	err := a.loop.Do(a.ctx, func() { s = a.voice.Settings() })
	return s, err
}

func (a *App) SaveSettings(s domain.Settings) (domain.Settings, error) {
	var saved domain.Settings
	if err := a.requireReady(); err != nil {
		return saved, err
	}
	var saveErr error
	if err := a.loop.Do(a.ctx, func() {
		saveErr = a.voice.UpdateSettings(s)
		saved = a.voice.Settings()
	}); err != nil {
		return saved, err
	}
	return saved, saveErr
}

// GetPageHTML returns the current document for the preview pane.
func (a *App) GetPageHTML() string {
	if err := a.requireReady(); err != nil {
		return ""
	}
	var out string
	_ = a.loop.Do(a.ctx, func() {
		if root := a.doc.DocumentElement(); root != nil {
			out = root.OuterHTML()
		}
	})
	return out
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"provider":         "Deepgram",
		"model":            a.cfg.Deepgram.Model,
		"language":         a.cfg.Deepgram.Language,
		"correctionModel":  a.cfg.OpenAI.Model,
		"rulesFile":        a.cfg.Rules.Path,
		"settingsFile":     a.cfg.Settings.Path,
		"page":             a.pagePath,
		"audioInput":       a.cfg.Audio.InputDevice,
		"audioInputFormat": a.cfg.Audio.InputFormat,
	}
}

// withVoice runs fn on the loop and returns the status afterwards. A nil fn
// only reads the status.
func (a *App) withVoice(fn func(*usecase.VoiceInput) error) (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	var (
		status domain.Status
		opErr  error
	)
	err := a.loop.Do(a.ctx, func() {
		if fn != nil {
			opErr = fn(a.voice)
		}
		status = a.voice.Status()
	})
	if err != nil {
		return status, err
	}
	return status, opErr
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.voice == nil || a.loop == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// SessionStateChanged emits session lifecycle updates to the frontend.
func (a *App) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventSession, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": sessionReasonMessage(reason),
	})
}

// PartialTranscript emits live partial transcript text.
func (a *App) PartialTranscript(text string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventPartial, map[string]string{"text": text})
}

// FinalTranscript emits what was recognized and what was injected.
func (a *App) FinalTranscript(raw string, injected string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventFinal, map[string]string{
		"raw":      raw,
		"injected": injected,
	})
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonReady:
		return "Ready"
	case domain.SessionReasonListeningStarted:
		return "Listening..."
	case domain.SessionReasonListeningRestarted:
		return "Listening again"
	case domain.SessionReasonStopRequested:
		return "Stopping..."
	case domain.SessionReasonStopped:
		return "Stopped"
	case domain.SessionReasonEnded:
		return "Done"
	case domain.SessionReasonRecognitionFailed:
		return "Recognition failed"
	case domain.SessionReasonStartFailed:
		return "Could not start listening"
	case domain.SessionReasonTranscriptInjected:
		return "Text inserted"
	case domain.SessionReasonInjectionFailed:
		return "Could not insert text"
	case domain.SessionReasonSubmitted:
		return "Sent"
	case domain.SessionReasonSubmitRetrying:
		return "Send button disabled, retrying"
	case domain.SessionReasonFieldRewritten:
		return "Field updated"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeNoSpeech, domain.ErrorCodeAudioCapture, domain.ErrorCodeNotAllowed, domain.ErrorCodeRecognition:
		return domain.RecognitionMessage(code)
	case domain.ErrorCodeNoInputField:
		return "No input field found"
	case domain.ErrorCodeInjection:
		return "Text injection failed"
	case domain.ErrorCodeCorrection:
		return "Correction unavailable"
	case domain.ErrorCodeRules:
		return "Rules processing failed"
	case domain.ErrorCodeSubmit:
		return "Auto-submit failed"
	case domain.ErrorCodeSettings:
		return "Settings not saved"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

// loadPage parses the page dictation targets. An empty path yields a blank
// composer page.
func loadPage(path, hostname string) (*dom.Document, error) {
	if path == "" {
		return dom.ParseString(blankPage, dom.Options{Hostname: hostname})
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer f.Close()
	return dom.Parse(f, dom.Options{Hostname: hostname})
}

const blankPage = `<html><body><form><textarea id="composer" placeholder="Message"></textarea>` +
	`<button type="submit" aria-label="Send">Send</button></form></body></html>`
