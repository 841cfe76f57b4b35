// Package openai adapts OpenAI-compatible APIs: OpenAI cloud transcription
// and chat, self-hosted whisper servers that speak /v1/audio/transcriptions
// (Speaches, faster-whisper-server), and Anthropic's OpenAI-compatible
// chat endpoint.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/chaz8081/gostt-tray/internal/audio"
	"github.com/chaz8081/gostt-tray/internal/provider"
)

const defaultTimeout = 120 * time.Second

// Config selects the endpoint and credential.
type Config struct {
	Name    string // provider id reported by Name()
	BaseURL string // including the /v1 suffix
	APIKey  string
	Timeout time.Duration
}

// Client implements provider.STT and provider.LLM.
type Client struct {
	name   string
	client *goopenai.Client
}

var (
	_ provider.STT = (*Client)(nil)
	_ provider.LLM = (*Client)(nil)
)

// New creates a Client.
func New(cfg Config) *Client {
	oc := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{name: cfg.Name, client: goopenai.NewClientWithConfig(oc)}
}

// ServerBaseURL turns a whisper server root URL into its OpenAI-compatible
// base URL.
func ServerBaseURL(root string) string {
	root = strings.TrimRight(root, "/")
	if strings.HasSuffix(root, "/v1") {
		return root
	}
	return root + "/v1"
}

// Name returns the provider id.
func (c *Client) Name() string { return c.name }

// Transcribe uploads the audio as a 16-bit WAV file.
func (c *Client) Transcribe(ctx context.Context, a provider.Audio, model, language string) (string, error) {
	if model == "" {
		model = goopenai.Whisper1
	}
	rate := a.SampleRate
	if rate == 0 {
		rate = audio.TargetRate
	}

	wav, err := audio.WAVBytes(a.Samples, rate)
	if err != nil {
		return "", fmt.Errorf("openai: encode audio: %w", err)
	}

	req := goopenai.AudioRequest{
		Model:    model,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(wav),
		Format:   goopenai.AudioResponseFormatJSON,
	}
	if language != "" && language != "auto" {
		req.Language = language
	}

	resp, err := c.client.CreateTranscription(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai: transcribe: %w", mapError(err))
	}
	return strings.TrimSpace(resp.Text), nil
}

// Complete sends prompt as a single user message.
func (c *Client) Complete(ctx context.Context, prompt, model string) (string, error) {
	if model == "" {
		model = goopenai.GPT4oMini
	}

	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", mapError(err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: chat completion: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// mapError exposes the HTTP status so the registry can tell transient
// gateway failures from auth and validation errors.
func mapError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return &provider.StatusError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return &provider.StatusError{StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return err
}
