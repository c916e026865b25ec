package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config stores runtime configuration for the dictation core and its
// collaborators.
type Config struct {
	Deepgram DeepgramConfig
	OpenAI   OpenAIConfig
	Audio    AudioConfig
	Rules    RulesConfig
	Session  SessionConfig
	Settings SettingsConfig
	Log      LogConfig
}

type DeepgramConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
	Endpointing int
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
}

type RulesConfig struct {
	Path           string
	IterationLimit int
}

type SessionConfig struct {
	ChunkSize         int
	StreamingGrace    time.Duration
	SubmitSettleDelay time.Duration
	SubmitRetryDelay  time.Duration
	RestartDelay      time.Duration
	HighlightDelay    time.Duration
	PollInterval      time.Duration
	CorrectionTimeout time.Duration
}

type SettingsConfig struct {
	Path string
}

type LogConfig struct {
	Level string
	File  string
}

// Load resolves configuration from environment variables and sensible defaults.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}
	configDir := filepath.Join(home, ".config", "voxfill")

	defaultRules := filepath.Join(configDir, "substitutions.rules")
	hyprRules := filepath.Join(home, ".config", "hypr", "whisper-substitutions.rules")
	rulesPath := strings.TrimSpace(os.Getenv("VOXFILL_RULES_FILE"))
	if rulesPath == "" {
		rulesPath = firstExisting(defaultRules, hyprRules)
	}

	cfg := Config{
		Deepgram: DeepgramConfig{
			APIKey:      strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
			APIBaseURL:  envOrDefault("DEEPGRAM_API_BASE", "https://api.deepgram.com/v1"),
			Model:       envOrDefault("DEEPGRAM_MODEL", "nova-2"),
			Language:    strings.TrimSpace(os.Getenv("DEEPGRAM_LANGUAGE")),
			SmartFormat: envOrDefaultBool("DEEPGRAM_SMART_FORMAT", true),
			Endpointing: envOrDefaultInt("DEEPGRAM_ENDPOINTING_MS", 0),
		},
		OpenAI: OpenAIConfig{
			APIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
			BaseURL: strings.TrimSpace(os.Getenv("OPENAI_API_BASE")),
			Model:   envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("VOXFILL_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     strings.TrimSpace(os.Getenv("VOXFILL_AUDIO_INPUT_FORMAT")),
			InputDevice: firstNonEmpty(
				os.Getenv("VOXFILL_AUDIO_INPUT_DEVICE"),
				os.Getenv("DEEPGRAM_PULSE_SOURCE"),
			),
			SampleRate: envOrDefaultInt("VOXFILL_SAMPLE_RATE", 16000),
			Channels:   envOrDefaultInt("VOXFILL_CHANNELS", 1),
		},
		Rules: RulesConfig{
			Path:           rulesPath,
			IterationLimit: envOrDefaultInt("VOXFILL_RULE_ITERATION_LIMIT", 30),
		},
		Session: SessionConfig{
			ChunkSize:         envOrDefaultInt("VOXFILL_AUDIO_CHUNK_SIZE", 4096),
			StreamingGrace:    envMillis("VOXFILL_STREAMING_GRACE_MS", "DEEPGRAM_STREAMING_GRACE_MS", 300),
			SubmitSettleDelay: envMillis("VOXFILL_SUBMIT_SETTLE_MS", "", 500),
			SubmitRetryDelay:  envMillis("VOXFILL_SUBMIT_RETRY_MS", "", 700),
			RestartDelay:      envMillis("VOXFILL_RESTART_DELAY_MS", "", 300),
			HighlightDelay:    envMillis("VOXFILL_HIGHLIGHT_MS", "", 300),
			PollInterval:      envMillis("VOXFILL_POLL_INTERVAL_MS", "", 1000),
			CorrectionTimeout: envMillis("VOXFILL_CORRECTION_TIMEOUT_MS", "OPENAI_TIMEOUT_MS", 10000),
		},
		Settings: SettingsConfig{
			Path: envOrDefault("VOXFILL_SETTINGS_FILE", filepath.Join(configDir, "settings.yaml")),
		},
		Log: LogConfig{
			Level: envOrDefault("VOXFILL_LOG_LEVEL", "info"),
			File:  strings.TrimSpace(os.Getenv("VOXFILL_LOG_FILE")),
		},
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Rules.IterationLimit <= 0 {
		cfg.Rules.IterationLimit = 30
	}
	if cfg.Session.ChunkSize < 256 {
		cfg.Session.ChunkSize = 4096
	}
	if cfg.Session.PollInterval < 100*time.Millisecond {
		cfg.Session.PollInterval = time.Second
	}

	return cfg, nil
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// envMillis reads a non-negative millisecond count from primary, then
// secondary.
func envMillis(primary string, secondary string, fallback int) time.Duration {
	for _, key := range []string{primary, secondary} {
		if key == "" {
			continue
		}
		value := strings.TrimSpace(os.Getenv(key))
		if value == "" {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err == nil && parsed >= 0 {
			return time.Duration(parsed) * time.Millisecond
		}
	}
	return time.Duration(fallback) * time.Millisecond
}
