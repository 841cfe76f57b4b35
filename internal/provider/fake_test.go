package provider

import (
	"context"
	"sync"
)

// scriptedSTT returns errs[i] on call i, then text.
type scriptedSTT struct {
	mu    sync.Mutex
	errs  []error
	text  string
	calls int
}

func (s *scriptedSTT) Name() string { return "scripted" }

func (s *scriptedSTT) Transcribe(_ context.Context, _ Audio, _, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	return s.text, nil
}

type scriptedLLM struct {
	mu    sync.Mutex
	errs  []error
	out   string
	calls int
	last  string
}

func (l *scriptedLLM) Name() string { return "scripted" }

func (l *scriptedLLM) Complete(_ context.Context, prompt, _ string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last = prompt
	i := l.calls
	l.calls++
	if i < len(l.errs) && l.errs[i] != nil {
		return "", l.errs[i]
	}
	return l.out, nil
}

type mapSecrets map[string]string

func (m mapSecrets) Get(name string) (string, bool, error) {
	v, ok := m[name]
	return v, ok, nil
}
