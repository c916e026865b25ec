// Package settings persists user preferences as YAML.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"voxfill/internal/domain"
)

var ErrInvalidLanguage = errors.New("invalid recognition language")

// FileStore implements ports.SettingsStore on a single YAML file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

// Load returns defaults when the file does not exist. Keys absent from the
// file keep their default values.
func (s *FileStore) Load() (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := domain.DefaultSettings()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return settings, nil
		}
		return settings, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return domain.DefaultSettings(), fmt.Errorf("parse settings %s: %w", s.path, err)
	}
	return Validate(settings), nil
}

// Save writes settings atomically.
func (s *FileStore) Save(settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(Validate(settings))
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

// Validate normalizes settings and clamps unknown values to defaults.
func Validate(s domain.Settings) domain.Settings {
	s = s.Normalized()
	if CheckLanguage(s.RecognitionLang) != nil {
		s.RecognitionLang = domain.DefaultRecognitionLang
	}
	return s
}

// CheckLanguage accepts BCP 47 shaped tags such as "en", "en-US" or
// "zh-Hant-TW".
func CheckLanguage(tag string) error {
	parts := strings.Split(tag, "-")
	if len(parts[0]) < 2 || len(parts[0]) > 3 || !isLetters(parts[0]) {
		return fmt.Errorf("%w: %q", ErrInvalidLanguage, tag)
	}
	for _, p := range parts[1:] {
		if len(p) < 2 || len(p) > 8 || !isAlnum(p) {
			return fmt.Errorf("%w: %q", ErrInvalidLanguage, tag)
		}
	}
	return nil
}

func isLetters(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

func isAlnum(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
