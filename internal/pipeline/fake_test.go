package pipeline

import (
	"context"
	"fmt"

	"github.com/chaz8081/gostt-tray/internal/provider"
)

type fakeSTT struct {
	text  string
	err   error
	calls []provider.Audio
}

func (f *fakeSTT) Name() string { return "fake-stt" }

func (f *fakeSTT) Transcribe(_ context.Context, a provider.Audio, _, _ string) (string, error) {
	f.calls = append(f.calls, a)
	return f.text, f.err
}

type fakeLLM struct {
	out     string
	err     error
	prompts []string
	models  []string
}

func (f *fakeLLM) Name() string { return "fake-llm" }

func (f *fakeLLM) Complete(_ context.Context, prompt, model string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.models = append(f.models, model)
	return f.out, f.err
}

// fakeProviders maps ids to fixed clients; resolveErr applies to every lookup.
type fakeProviders struct {
	stt        map[string]*fakeSTT
	llm        map[string]*fakeLLM
	resolveErr error
}

func (f *fakeProviders) STT(id string) (provider.STT, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	c, ok := f.stt[id]
	if !ok {
		return nil, fmt.Errorf("stt %q: %w", id, provider.ErrUnknownProvider)
	}
	return c, nil
}

func (f *fakeProviders) LLM(id string) (provider.LLM, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	c, ok := f.llm[id]
	if !ok {
		return nil, fmt.Errorf("llm %q: %w", id, provider.ErrUnknownProvider)
	}
	return c, nil
}
