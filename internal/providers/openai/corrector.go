// Package openai implements the correction service on the OpenAI chat API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

const DefaultModel = openai.GPT4oMini

var (
	ErrMissingAPIKey = errors.New("openai api key is not configured")
	ErrEmptyResponse = errors.New("openai returned no content")
)

const (
	correctPrompt = "You clean up speech recognition output. Fix misrecognized words, " +
		"punctuation and capitalization. Keep the speaker's language and meaning. " +
		"Reply with the corrected text only."
	proofreadPrompt = "Proofread the user's text. Fix spelling, grammar and punctuation " +
		"without changing its meaning or tone. Reply with the corrected text only."
	editPrompt = "Rewrite the user's text following the instruction. " +
		"Reply with the rewritten text only."
)

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
}

// Corrector implements ports.Corrector.
type Corrector struct {
	cfg Config
	log zerolog.Logger

	mu     sync.RWMutex
	client *openai.Client
}

func NewCorrector(cfg Config, log zerolog.Logger) *Corrector {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	c := &Corrector{cfg: cfg, log: log.With().Str("component", "openai").Logger()}
	c.SetAPIKey(cfg.APIKey)
	return c
}

// SetAPIKey swaps the credential, for example after a settings change. An
// empty key disables the service.
func (c *Corrector) SetAPIKey(key string) {
	key = strings.TrimSpace(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.APIKey = key
	if key == "" {
		c.client = nil
		return
	}
	clientCfg := openai.DefaultConfig(key)
	if c.cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(c.cfg.BaseURL, "/")
	}
	c.client = openai.NewClientWithConfig(clientCfg)
}

// Available reports whether a credential is configured.
func (c *Corrector) Available() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil
}

// Correct lightly fixes one utterance. It fails open: on any error the
// input comes back unchanged alongside the error.
func (c *Corrector) Correct(ctx context.Context, text string, recent []string) (string, error) {
	messages := []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: correctPrompt}}
	if len(recent) > 0 {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: "Recent dictation for context:\n" + strings.Join(recent, "\n"),
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})

	out, err := c.complete(ctx, messages)
	if err != nil {
		c.log.Warn().Err(err).Msg("correction failed")
		return text, err
	}
	return out, nil
}

func (c *Corrector) Proofread(ctx context.Context, text string) (string, error) {
	return c.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: proofreadPrompt},
		{Role: openai.ChatMessageRoleUser, Content: text},
	})
}

func (c *Corrector) Edit(ctx context.Context, text, instruction string) (string, error) {
	return c.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: editPrompt},
		{Role: openai.ChatMessageRoleUser, Content: "Instruction: " + instruction + "\n\nText:\n" + text},
	})
}

func (c *Corrector) complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client == nil {
		return "", ErrMissingAPIKey
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	c.log.Debug().Str("model", resp.Model).Int("tokens", resp.Usage.TotalTokens).Msg("completion")
	return content, nil
}
