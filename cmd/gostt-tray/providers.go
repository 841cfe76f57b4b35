package main

import (
	"github.com/chaz8081/gostt-tray/internal/config"
	"github.com/chaz8081/gostt-tray/internal/provider"
	"github.com/chaz8081/gostt-tray/internal/provider/ollama"
	"github.com/chaz8081/gostt-tray/internal/provider/openai"
	"github.com/chaz8081/gostt-tray/internal/provider/whispercpp"
	"github.com/chaz8081/gostt-tray/internal/secrets"
	"github.com/chaz8081/gostt-tray/internal/settings"
)

// Provider ids beyond the ones the adapter packages define.
const (
	whisperServerID = "whisper_server"
	openAIID        = "openai"
	anthropicID     = "anthropic"
)

// newRegistry registers the built-in providers. Endpoints are resolved per
// call so a settings change applies to the next session.
func newRegistry(cfg *config.Config, st *settings.Store, sec *secrets.FileStore, engine *whispercpp.Engine) *provider.Registry {
	reg := provider.NewRegistry(sec, cfg.Providers.RetryBackoff)
	timeout := cfg.Processing.Timeout

	reg.RegisterSTT(whispercpp.ProviderName, provider.Spec{}, func(provider.Deps) (provider.STT, error) {
		return engine, nil
	})

	reg.RegisterSTT(whisperServerID, provider.Spec{
		BaseURL: func() string {
			if u := st.Get().WhisperServerURL; u != "" {
				return u
			}
			return cfg.Providers.WhisperServerURL
		},
	}, func(d provider.Deps) (provider.STT, error) {
		return openai.New(openai.Config{
			Name:    whisperServerID,
			BaseURL: openai.ServerBaseURL(d.BaseURL),
			Timeout: timeout,
		}), nil
	})

	openAI := provider.Spec{
		Secret:  openAIID,
		BaseURL: func() string { return cfg.Providers.OpenAIBaseURL },
	}
	reg.RegisterSTT(openAIID, openAI, func(d provider.Deps) (provider.STT, error) {
		return openai.New(openai.Config{Name: openAIID, BaseURL: d.BaseURL, APIKey: d.Secret, Timeout: timeout}), nil
	})
	reg.RegisterLLM(openAIID, openAI, func(d provider.Deps) (provider.LLM, error) {
		return openai.New(openai.Config{Name: openAIID, BaseURL: d.BaseURL, APIKey: d.Secret, Timeout: timeout}), nil
	})

	reg.RegisterLLM(anthropicID, provider.Spec{
		Secret:  anthropicID,
		BaseURL: func() string { return cfg.Providers.AnthropicBaseURL },
	}, func(d provider.Deps) (provider.LLM, error) {
		return openai.New(openai.Config{Name: anthropicID, BaseURL: d.BaseURL, APIKey: d.Secret, Timeout: timeout}), nil
	})

	reg.RegisterLLM(ollama.ProviderName, provider.Spec{
		BaseURL: func() string { return cfg.Providers.OllamaURL },
	}, func(d provider.Deps) (provider.LLM, error) {
		return ollama.New(d.BaseURL, timeout), nil
	})

	return reg
}
