package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voxfill/internal/classify"
	"voxfill/internal/dom"
	"voxfill/internal/domain"
	"voxfill/internal/eventloop"
	"voxfill/internal/inject"
	"voxfill/internal/ports"
	"voxfill/internal/rules"
	"voxfill/internal/sites"
)

var (
	ErrNoActiveSession = errors.New("no active listening session")
	ErrNoInputField    = errors.New("no input field found")
	ErrNoCorrector     = errors.New("correction service is not configured")
	ErrEmptyField      = errors.New("input field is empty")
)

// Config holds session timings.
type Config struct {
	SubmitSettleDelay time.Duration
	SubmitRetryDelay  time.Duration
	RestartDelay      time.Duration
	CorrectionTimeout time.Duration
	HistoryCapacity   int
	// CorrectionContext is how many recent transcripts accompany a
	// correction request.
	CorrectionContext int
}

func DefaultConfig() Config {
	return Config{
		SubmitSettleDelay: 500 * time.Millisecond,
		SubmitRetryDelay:  700 * time.Millisecond,
		RestartDelay:      300 * time.Millisecond,
		CorrectionTimeout: 10 * time.Second,
		HistoryCapacity:   HistoryCapacity,
		CorrectionContext: 3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SubmitSettleDelay <= 0 {
		c.SubmitSettleDelay = d.SubmitSettleDelay
	}
	if c.SubmitRetryDelay <= 0 {
		c.SubmitRetryDelay = d.SubmitRetryDelay
	}
	if c.RestartDelay <= 0 {
		c.RestartDelay = d.RestartDelay
	}
	if c.CorrectionTimeout <= 0 {
		c.CorrectionTimeout = d.CorrectionTimeout
	}
	if c.HistoryCapacity <= 0 {
		c.HistoryCapacity = d.HistoryCapacity
	}
	if c.CorrectionContext < 0 {
		c.CorrectionContext = 0
	}
	return c
}

// Deps are the collaborators of VoiceInput. Corrector, Rules and Settings
// may be nil.
type Deps struct {
	Document    *dom.Document
	Scheduler   eventloop.Scheduler
	Recognizers ports.RecognizerFactory
	Sites       *sites.Registry
	Injector    *inject.Engine
	Rules       ports.RulesEngine
	Corrector   ports.Corrector
	Settings    ports.SettingsStore
	Status      ports.StatusSink
	Logger      zerolog.Logger
	// OnSettings is called after settings change, before they are saved.
	OnSettings func(domain.Settings)
}

// availability is implemented by correctors that can be switched off, for
// example by a missing credential.
type availability interface {
	Available() bool
}

type session struct {
	id        string
	handle    ports.Recognizer
	restarted bool
}

// finalText is a final transcript waiting to be injected. base is the
// append-mode snapshot taken when the result arrived, so a later snapshot
// of the same target cannot leak interim text into it.
type finalText struct {
	sess    *session
	target  *inject.Target
	mode    domain.InjectionMode
	base    string
	raw     string
	cleaned string
}

// VoiceInput owns the dictation state: the active recognizer, the target
// field, settings and history. All methods and callbacks run on the
// scheduler's loop, so nothing here is locked.
type VoiceInput struct {
	deps Deps
	cfg  Config
	log  zerolog.Logger

	settings domain.Settings
	state    domain.SessionState
	current  *session
	target   *inject.Target
	history  *History

	// pending is the final awaiting correction. At most one exists: a new
	// session settles it before taking its own snapshot.
	pending *finalText

	restart eventloop.Timer
	submit  eventloop.Timer
}

func NewVoiceInput(deps Deps, settings domain.Settings, cfg Config) *VoiceInput {
	cfg = cfg.withDefaults()
	if deps.Status == nil {
		deps.Status = nopStatus{}
	}
	if deps.Injector == nil {
		deps.Injector = inject.NewEngine(settings.PreferDirectInjection, deps.Logger)
	}
	if deps.Sites == nil {
		deps.Sites = sites.NewRegistry(sites.Deps{Scheduler: deps.Scheduler, Logger: deps.Logger})
	}
	settings = settings.Normalized()
	deps.Injector.SetPreferDirect(settings.PreferDirectInjection)
	return &VoiceInput{
		deps:     deps,
		cfg:      cfg,
		log:      deps.Logger.With().Str("component", "voice_input").Logger(),
		settings: settings,
		state:    domain.SessionStateIdle,
		history:  NewHistory(cfg.HistoryCapacity),
	}
}

// Start begins a new activation. A previous recognizer is stopped first and
// its callbacks are ignored from then on.
func (v *VoiceInput) Start() error {
	return v.start(false)
}

func (v *VoiceInput) start(auto bool) error {
	v.cancelRestart()

	replaced := v.current != nil
	if replaced {
		prev := v.current
		v.current = nil
		v.state = domain.SessionStateIdle
		if err := prev.handle.Stop(); err != nil {
			v.log.Debug().Err(err).Str("session", prev.id).Msg("stopping replaced recognizer")
		}
	}

	target, err := v.resolveTarget()
	if err != nil {
		v.deps.Status.SessionError(domain.ErrorCodeNoInputField, "No input field found.")
		return err
	}
	v.target = target

	sess := &session{id: uuid.NewString(), restarted: auto}
	handle, err := v.deps.Recognizers.NewRecognizer(ports.RecognizerConfig{
		Lang:            v.settings.RecognitionLang,
		InterimResults:  true,
		Continuous:      false,
		MaxAlternatives: 1,
	}, v.callbacksFor(sess))
	if err != nil {
		v.reportStartFailure(err)
		return fmt.Errorf("create recognizer: %w", err)
	}
	sess.handle = handle
	v.current = sess

	if err := handle.Start(); err != nil {
		v.current = nil
		v.reportStartFailure(err)
		return fmt.Errorf("start recognizer: %w", err)
	}
	v.log.Debug().Str("session", sess.id).Str("target", target.Element.String()).Bool("auto", auto).Msg("recognizer starting")
	return nil
}

// Stop asks the recognizer to finish. The transition to idle happens when
// the recognizer reports its end. While an always-on restart is pending,
// Stop cancels it instead.
func (v *VoiceInput) Stop() error {
	if v.cancelRestart() {
		v.log.Debug().Msg("pending restart cancelled")
		return nil
	}
	if v.current == nil || v.state != domain.SessionStateListening {
		return ErrNoActiveSession
	}

	sess := v.current
	v.state = domain.SessionStateStopping
	v.deps.Status.SessionStateChanged(domain.SessionStateStopping, domain.SessionReasonStopRequested)
	if err := sess.handle.Stop(); err != nil {
		v.log.Warn().Err(err).Str("session", sess.id).Msg("recognizer stop failed")
		v.handleEnd(sess)
	}
	return nil
}

// Toggle is the mic button action.
func (v *VoiceInput) Toggle() error {
	switch {
	case v.state == domain.SessionStateListening, v.restart != nil:
		return v.Stop()
	case v.state == domain.SessionStateStopping:
		return nil
	default:
		return v.Start()
	}
}

// BindTarget makes el the dictation target if it is editable. Binding the
// current target again keeps its snapshot.
func (v *VoiceInput) BindTarget(el *dom.Element) bool {
	if el == nil || !classify.IsEditableInput(el) || classify.IsOwnUI(el) {
		return false
	}
	if v.target != nil && v.target.Element == el {
		return true
	}
	v.target = inject.NewTarget(el)
	if v.state == domain.SessionStateListening && v.settings.InjectionMode == domain.InjectionAppend {
		v.target.Snapshot()
	}
	v.log.Debug().Str("target", el.String()).Msg("target bound")
	return true
}

func (v *VoiceInput) Target() *dom.Element {
	if v.target == nil {
		return nil
	}
	return v.target.Element
}

func (v *VoiceInput) Status() domain.Status {
	status := domain.Status{
		State:    v.state,
		Active:   v.state != domain.SessionStateIdle,
		Mode:     v.settings.InjectionMode,
		AlwaysOn: v.settings.AlwaysOnMode,
	}
	if v.current != nil {
		status.SessionID = v.current.id
	}
	if v.target != nil {
		status.Target = v.target.Element.String()
	}
	return status
}

func (v *VoiceInput) History() []string { return v.history.Entries() }

func (v *VoiceInput) Settings() domain.Settings { return v.settings }

// UseSettings applies s for this run without persisting it.
func (v *VoiceInput) UseSettings(s domain.Settings) domain.Settings {
	s = s.Normalized()
	v.settings = s
	v.deps.Injector.SetPreferDirect(s.PreferDirectInjection)
	if !s.AlwaysOnMode {
		v.cancelRestart()
	}
	if v.deps.OnSettings != nil {
		v.deps.OnSettings(s)
	}
	return s
}

// UpdateSettings applies and persists s.
func (v *VoiceInput) UpdateSettings(s domain.Settings) error {
	s = v.UseSettings(s)
	if v.deps.Settings == nil {
		return nil
	}
	if err := v.deps.Settings.Save(s); err != nil {
		v.log.Error().Err(err).Msg("failed to save settings")
		v.deps.Status.SessionError(domain.ErrorCodeSettings, "Settings could not be saved.")
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// ProofreadField replaces the whole target field with a proofread version.
// The rewrite is applied asynchronously.
func (v *VoiceInput) ProofreadField() error {
	if v.deps.Corrector == nil {
		return ErrNoCorrector
	}
	return v.rewriteField("proofread", v.deps.Corrector.Proofread)
}

// EditField rewrites the target field following instruction.
func (v *VoiceInput) EditField(instruction string) error {
	if v.deps.Corrector == nil {
		return ErrNoCorrector
	}
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return errors.New("edit instruction is empty")
	}
	return v.rewriteField("edit", func(ctx context.Context, text string) (string, error) {
		return v.deps.Corrector.Edit(ctx, text, instruction)
	})
}

func (v *VoiceInput) rewriteField(op string, call func(context.Context, string) (string, error)) error {
	target, err := v.resolveTarget()
	if err != nil {
		v.deps.Status.SessionError(domain.ErrorCodeNoInputField, "No input field found.")
		return err
	}
	v.target = target

	text := classify.FieldText(target.Element)
	if strings.TrimSpace(text) == "" {
		return ErrEmptyField
	}

	log := v.log.With().Str("op", op).Logger()
	v.async(func(ctx context.Context) func() {
		out, err := call(ctx, text)
		return func() {
			if err != nil {
				log.Warn().Err(err).Msg("field rewrite failed")
				v.deps.Status.SessionError(domain.ErrorCodeCorrection, "Could not "+op+" the field.")
				return
			}
			if !v.isCurrentTarget(target) {
				log.Info().Msg("discarding rewrite for a replaced target")
				return
			}
			if !v.deps.Injector.Write(target.Element, out) {
				v.deps.Status.SessionError(domain.ErrorCodeInjection, "Could not insert text into the field.")
				return
			}
			target.OriginalText = out
			target.InterimText = ""
			v.deps.Status.SessionStateChanged(v.state, domain.SessionReasonFieldRewritten)
		}
	})
	return nil
}

func (v *VoiceInput) callbacksFor(sess *session) ports.RecognizerCallbacks {
	return ports.RecognizerCallbacks{
		OnStart: func() {
			if v.live(sess, "start") {
				v.handleStart(sess)
			}
		},
		OnResult: func(res domain.RecognitionResult) {
			if v.live(sess, "result") {
				v.handleResult(sess, res)
			}
		},
		OnError: func(err error) {
			if v.live(sess, "error") {
				v.handleError(sess, err)
			}
		},
		OnEnd: func() {
			if v.live(sess, "end") {
				v.handleEnd(sess)
			}
		},
	}
}

// live reports whether sess is still the active session.
func (v *VoiceInput) live(sess *session, callback string) bool {
	if v.current == sess {
		return true
	}
	v.log.Debug().Str("session", sess.id).Str("callback", callback).Msg("ignoring stale recognizer callback")
	return false
}

func (v *VoiceInput) handleStart(sess *session) {
	v.state = domain.SessionStateListening
	v.settlePending(sess)
	v.cancelSubmit()

	if t := v.target; t != nil && t.Element.IsConnected() {
		switch v.settings.InjectionMode {
		case domain.InjectionAppend:
			t.Snapshot()
		default:
			t.InterimText = ""
			if classify.FieldText(t.Element) != "" && !v.deps.Injector.Write(t.Element, "") {
				v.log.Warn().Str("target", t.Element.String()).Msg("could not clear field")
			}
		}
	}

	reason := domain.SessionReasonListeningStarted
	if sess.restarted {
		reason = domain.SessionReasonListeningRestarted
	}
	v.deps.Status.SessionStateChanged(domain.SessionStateListening, reason)
}

// settlePending resolves a final left over from an earlier session before
// sess touches the field. Append mode inserts the uncorrected text at its
// own base, overwrite mode drops it. The late correction is ignored.
func (v *VoiceInput) settlePending(sess *session) {
	p := v.pending
	if p == nil || p.sess == sess {
		return
	}
	v.pending = nil
	if p.mode == domain.InjectionAppend {
		v.log.Info().Str("session", p.sess.id).Msg("new session started, inserting uncorrected transcript")
		v.commitFinal(p, p.cleaned)
		return
	}
	v.log.Info().Str("session", p.sess.id).Msg("new session started, discarding pending transcript")
}

func (v *VoiceInput) handleResult(sess *session, res domain.RecognitionResult) {
	target := v.target
	if target == nil {
		return
	}

	if !res.IsFinal {
		v.deps.Injector.Apply(target, v.settings.InjectionMode, res.Transcript, false)
		v.deps.Status.PartialTranscript(res.Transcript)
		return
	}

	raw := res.Transcript
	cleaned := v.cleanup(raw)
	if cleaned == "" {
		return
	}
	final := &finalText{
		sess:    sess,
		target:  target,
		mode:    v.settings.InjectionMode,
		base:    target.OriginalText,
		raw:     raw,
		cleaned: cleaned,
	}
	if !v.correctionEnabled() {
		v.commitFinal(final, cleaned)
		return
	}

	v.pending = final
	recent := v.history.Recent(v.cfg.CorrectionContext)
	v.async(func(ctx context.Context) func() {
		corrected, err := v.deps.Corrector.Correct(ctx, cleaned, recent)
		return func() {
			if v.pending != final {
				v.log.Info().Str("session", sess.id).Msg("discarding correction for a settled transcript")
				return
			}
			v.pending = nil
			if err != nil {
				v.log.Warn().Err(err).Msg("correction failed, using cleaned transcript")
				v.deps.Status.SessionError(domain.ErrorCodeCorrection, "Correction unavailable, inserted the original text.")
				corrected = cleaned
			}
			if strings.TrimSpace(corrected) == "" {
				corrected = cleaned
			}
			v.commitFinal(final, corrected)
		}
	})
}

func (v *VoiceInput) correctionEnabled() bool {
	if !v.settings.AutoCorrect || v.deps.Corrector == nil {
		return false
	}
	if a, ok := v.deps.Corrector.(availability); ok {
		return a.Available()
	}
	return true
}

// cleanup runs the rules engine, falling back to the built-in cleanup.
func (v *VoiceInput) cleanup(text string) string {
	if v.deps.Rules == nil {
		return rules.BasicCleanup(text)
	}
	out, err := v.deps.Rules.Apply(text)
	if err != nil {
		v.log.Warn().Err(err).Msg("substitution rules failed")
		v.deps.Status.SessionError(domain.ErrorCodeRules, err.Error())
		return rules.BasicCleanup(text)
	}
	return strings.TrimSpace(out)
}

// commitFinal injects a final transcript onto the base captured with it.
// It is dropped when the target changed while correction was in flight.
func (v *VoiceInput) commitFinal(f *finalText, text string) {
	target := f.target
	if !v.isCurrentTarget(target) {
		v.log.Info().Str("session", f.sess.id).Msg("discarding transcript for a replaced target")
		return
	}

	content := text
	if f.mode == domain.InjectionAppend {
		content = f.base + text
	}
	if !v.deps.Injector.Write(target.Element, content) {
		v.deps.Status.SessionError(domain.ErrorCodeInjection, "Could not insert text into the field.")
		v.deps.Status.SessionStateChanged(v.state, domain.SessionReasonInjectionFailed)
		return
	}
	target.InterimText = ""
	if f.mode == domain.InjectionAppend {
		target.Snapshot()
	}

	v.history.Add(text)
	v.deps.Status.FinalTranscript(f.raw, text)
	v.deps.Status.SessionStateChanged(v.state, domain.SessionReasonTranscriptInjected)

	if f.mode == domain.InjectionOverwrite && v.settings.AutoSubmit {
		v.scheduleSubmit(target, v.cfg.SubmitSettleDelay, false)
	}
}

func (v *VoiceInput) scheduleSubmit(target *inject.Target, delay time.Duration, retried bool) {
	if v.submit != nil {
		v.submit.Stop()
	}
	v.submit = v.deps.Scheduler.AfterFunc(delay, func() {
		v.submit = nil
		v.autoSubmit(target, retried)
	})
}

func (v *VoiceInput) cancelSubmit() {
	if v.submit != nil {
		v.submit.Stop()
		v.submit = nil
		v.log.Debug().Msg("pending submit cancelled by new session")
	}
	if v.deps.Sites.CancelClick() {
		v.log.Debug().Msg("pending submit click cancelled by new session")
	}
}

// busy reports whether an earlier utterance still owns the field, from
// correction until its submit click.
func (v *VoiceInput) busy() bool {
	return v.pending != nil || v.submit != nil || v.deps.Sites.ClickPending()
}

// autoSubmit clicks the send button. A disabled button gets one nudge of
// the field and one retry; there is no further retry.
func (v *VoiceInput) autoSubmit(target *inject.Target, retried bool) {
	if !v.isCurrentTarget(target) {
		v.log.Debug().Msg("skipping submit for a replaced target")
		return
	}

	switch result := v.deps.Sites.Submit(v.deps.Document, target.Element); result {
	case sites.SubmitClicked:
		v.deps.Status.SessionStateChanged(v.state, domain.SessionReasonSubmitted)
	case sites.SubmitDisabled:
		if retried {
			v.log.Info().Msg("submit button still disabled after retry")
			v.deps.Status.SessionError(domain.ErrorCodeSubmit, "Send button is disabled.")
			return
		}
		if err := v.deps.Injector.Nudge(target.Element); err != nil {
			v.log.Debug().Err(err).Msg("nudge failed")
		}
		v.log.Info().Dur("delay", v.cfg.SubmitRetryDelay).Msg("submit button disabled, retrying once")
		v.deps.Status.SessionStateChanged(v.state, domain.SessionReasonSubmitRetrying)
		v.scheduleSubmit(target, v.cfg.SubmitRetryDelay, true)
	default:
		v.log.Info().Str("result", string(result)).Msg("no submit button")
		v.deps.Status.SessionError(domain.ErrorCodeSubmit, "Send button not found.")
	}
}

func (v *VoiceInput) handleError(sess *session, err error) {
	code := domain.ClassifyRecognitionError(err)
	v.log.Warn().Err(err).Str("session", sess.id).Str("kind", string(code)).Msg("recognition error")

	v.current = nil
	v.state = domain.SessionStateIdle
	if abortErr := sess.handle.Abort(); abortErr != nil {
		v.log.Debug().Err(abortErr).Msg("abort after error")
	}
	v.deps.Status.SessionError(code, domain.RecognitionMessage(code))
	v.deps.Status.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonRecognitionFailed)
}

// handleEnd is the single convergence point for natural ends and explicit
// stops. wasListening must be read before the state is reset.
func (v *VoiceInput) handleEnd(sess *session) {
	wasListening := v.state == domain.SessionStateListening
	v.current = nil
	v.state = domain.SessionStateIdle

	reason := domain.SessionReasonStopped
	if wasListening {
		reason = domain.SessionReasonEnded
	}
	v.deps.Status.SessionStateChanged(domain.SessionStateIdle, reason)

	if !wasListening || !v.settings.AlwaysOnMode {
		return
	}
	v.scheduleRestart(sess)
}

// scheduleRestart arms the always-on restart. While the previous utterance
// is still being corrected or submitted the restart waits another delay.
func (v *VoiceInput) scheduleRestart(sess *session) {
	v.log.Debug().Str("session", sess.id).Dur("delay", v.cfg.RestartDelay).Msg("scheduling always-on restart")
	v.restart = v.deps.Scheduler.AfterFunc(v.cfg.RestartDelay, func() {
		v.restart = nil
		if v.state != domain.SessionStateIdle || v.current != nil || !v.settings.AlwaysOnMode {
			return
		}
		if v.busy() {
			v.scheduleRestart(sess)
			return
		}
		if err := v.start(true); err != nil {
			v.log.Warn().Err(err).Msg("always-on restart failed")
		}
	})
}

func (v *VoiceInput) cancelRestart() bool {
	if v.restart == nil {
		return false
	}
	stopped := v.restart.Stop()
	v.restart = nil
	return stopped
}

func (v *VoiceInput) resolveTarget() (*inject.Target, error) {
	if t := v.target; t != nil && t.Element.IsConnected() && classify.IsEditableInput(t.Element) {
		return t, nil
	}

	doc := v.deps.Document
	focused := doc.ActiveElement()
	var el *dom.Element
	if v.settings.AutoDetectInputFields {
		el = v.deps.Sites.FindBestInputField(doc, focused)
	} else if focused != nil && classify.IsEditableInput(focused) && !classify.IsOwnUI(focused) {
		el = focused
	}
	if el == nil {
		v.log.Info().Str("host", doc.Hostname()).Msg("no input field found")
		return nil, ErrNoInputField
	}
	return inject.NewTarget(el), nil
}

func (v *VoiceInput) isCurrentTarget(t *inject.Target) bool {
	return t != nil && t == v.target && t.Element.IsConnected()
}

// async runs work off the loop and posts the returned continuation back.
func (v *VoiceInput) async(work func(ctx context.Context) func()) {
	timeout := v.cfg.CorrectionTimeout
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		v.deps.Scheduler.Post(work(ctx))
	}()
}

func (v *VoiceInput) reportStartFailure(err error) {
	code := domain.ClassifyRecognitionError(err)
	v.log.Error().Err(err).Msg("recognizer failed to start")
	v.state = domain.SessionStateIdle
	v.deps.Status.SessionError(code, domain.RecognitionMessage(code))
	v.deps.Status.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonStartFailed)
}

type nopStatus struct{}

func (nopStatus) SessionStateChanged(domain.SessionState, domain.SessionStateReason) {}
func (nopStatus) PartialTranscript(string)                                         {}
func (nopStatus) FinalTranscript(string, string)                                   {}
func (nopStatus) SessionError(domain.ErrorCode, string)                            {}
