package bootstrap

import (
	"github.com/rs/zerolog"

	"voxfill/internal/audio"
	"voxfill/internal/config"
	"voxfill/internal/dom"
	"voxfill/internal/domain"
	"voxfill/internal/eventloop"
	"voxfill/internal/inject"
	"voxfill/internal/liveness"
	"voxfill/internal/ports"
	"voxfill/internal/providers/deepgram"
	"voxfill/internal/providers/openai"
	"voxfill/internal/recognizer"
	"voxfill/internal/rules"
	"voxfill/internal/settings"
	"voxfill/internal/sites"
	"voxfill/internal/usecase"
)

// Options are the host pieces the runtime graph attaches to.
type Options struct {
	Document  *dom.Document
	Scheduler eventloop.Scheduler
	Status    ports.StatusSink
	Logger    zerolog.Logger
	// Recognizers overrides the Deepgram recognizer, mainly for tests.
	Recognizers ports.RecognizerFactory
}

// Services is the assembled runtime graph.
type Services struct {
	Voice     *usecase.VoiceInput
	Monitor   *liveness.Monitor
	Sites     *sites.Registry
	Settings  *settings.FileStore
	Corrector *openai.Corrector
	Config    config.Config
}

// Build wires all backend dependencies for the current runtime. Nothing is
// started; call Monitor.Start on the scheduler's loop.
func Build(opts Options) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	log := opts.Logger

	rulesEngine, err := rules.NewEngine(cfg.Rules.Path, cfg.Rules.IterationLimit)
	if err != nil {
		return Services{}, err
	}

	store := settings.NewFileStore(cfg.Settings.Path)
	prefs, err := store.Load()
	if err != nil {
		log.Warn().Err(err).Str("path", store.Path()).Msg("using default settings")
	}

	corrector := openai.NewCorrector(openai.Config{
		APIKey:  apiKey(prefs, cfg),
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.Model,
	}, log)

	factory := opts.Recognizers
	if factory == nil {
		factory = recognizer.NewFactory(
			audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand),
			deepgram.NewProvider(deepgram.Config{
				APIKey:      cfg.Deepgram.APIKey,
				APIBaseURL:  cfg.Deepgram.APIBaseURL,
				Model:       cfg.Deepgram.Model,
				Language:    cfg.Deepgram.Language,
				SmartFormat: cfg.Deepgram.SmartFormat,
				Endpointing: cfg.Deepgram.Endpointing,
			}),
			opts.Scheduler,
			recognizer.Config{
				Audio: ports.AudioConfig{
					SampleRate:  cfg.Audio.SampleRate,
					Channels:    cfg.Audio.Channels,
					InputFormat: cfg.Audio.InputFormat,
					InputDevice: cfg.Audio.InputDevice,
				},
				Streaming: ports.StreamingConfig{
					SampleRate:     cfg.Audio.SampleRate,
					Channels:       cfg.Audio.Channels,
					Encoding:       "linear16",
					InterimResults: true,
				},
				ChunkSize:      cfg.Session.ChunkSize,
				StreamingGrace: cfg.Session.StreamingGrace,
			},
			log.With().Str("component", "recognizer").Logger(),
		)
	}

	registry := sites.NewRegistry(sites.Deps{
		Scheduler:      opts.Scheduler,
		HighlightDelay: cfg.Session.HighlightDelay,
		Logger:         log.With().Str("component", "sites").Logger(),
	})

	indicator := &micIndicator{}
	status := fanout{indicator}
	if opts.Status != nil {
		status = append(status, opts.Status)
	}

	voice := usecase.NewVoiceInput(usecase.Deps{
		Document:    opts.Document,
		Scheduler:   opts.Scheduler,
		Recognizers: factory,
		Sites:       registry,
		Injector:    inject.NewEngine(prefs.PreferDirectInjection, log.With().Str("component", "inject").Logger()),
		Rules:       rulesEngine,
		Corrector:   corrector,
		Settings:    store,
		Status:      status,
		Logger:      log,
		OnSettings: func(s domain.Settings) {
			corrector.SetAPIKey(apiKey(s, cfg))
		},
	}, prefs, usecase.Config{
		SubmitSettleDelay: cfg.Session.SubmitSettleDelay,
		SubmitRetryDelay:  cfg.Session.SubmitRetryDelay,
		RestartDelay:      cfg.Session.RestartDelay,
		CorrectionTimeout: cfg.Session.CorrectionTimeout,
	})

	monitor := liveness.New(opts.Document, voice, opts.Scheduler, liveness.Config{
		PollInterval: cfg.Session.PollInterval,
	}, log)
	indicator.monitor = monitor

	return Services{
		Voice:     voice,
		Monitor:   monitor,
		Sites:     registry,
		Settings:  store,
		Corrector: corrector,
		Config:    cfg,
	}, nil
}

// apiKey prefers the key saved in settings over the environment.
func apiKey(s domain.Settings, cfg config.Config) string {
	if s.APIKey != "" {
		return s.APIKey
	}
	return cfg.OpenAI.APIKey
}

// fanout forwards status to every sink in order.
type fanout []ports.StatusSink

func (f fanout) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	for _, s := range f {
		s.SessionStateChanged(state, reason)
	}
}

func (f fanout) PartialTranscript(text string) {
	for _, s := range f {
		s.PartialTranscript(text)
	}
}

func (f fanout) FinalTranscript(raw, injected string) {
	for _, s := range f {
		s.FinalTranscript(raw, injected)
	}
}

func (f fanout) SessionError(code domain.ErrorCode, detail string) {
	for _, s := range f {
		s.SessionError(code, detail)
	}
}

// micIndicator mirrors session state onto the injected mic button.
type micIndicator struct {
	monitor *liveness.Monitor
}

func (m *micIndicator) SessionStateChanged(state domain.SessionState, _ domain.SessionStateReason) {
	if m.monitor != nil {
		m.monitor.SetListening(state == domain.SessionStateListening)
	}
}

func (m *micIndicator) PartialTranscript(string)              {}
func (m *micIndicator) FinalTranscript(string, string)        {}
func (m *micIndicator) SessionError(domain.ErrorCode, string) {}
