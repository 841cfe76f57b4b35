// Package whispercpp runs whisper.cpp in-process as an STT provider.
package whispercpp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/chaz8081/gostt-tray/internal/audio"
	"github.com/chaz8081/gostt-tray/internal/provider"
)

// ProviderName is the registry id of the local engine.
const ProviderName = "whispercpp"

// ModelSource resolves a model id to a file on disk, fetching it if needed.
type ModelSource interface {
	Ensure(ctx context.Context, model string) (string, error)
}

// Engine loads whisper models on first use and keeps them resident.
type Engine struct {
	models ModelSource

	mu     sync.Mutex
	loaded map[string]whisper.Model
}

var _ provider.STT = (*Engine)(nil)

// New creates an Engine. No model is loaded until the first Transcribe.
func New(models ModelSource) *Engine {
	return &Engine{models: models, loaded: make(map[string]whisper.Model)}
}

// Name returns the provider id.
func (e *Engine) Name() string { return ProviderName }

// Transcribe runs the model over mono 16 kHz samples.
func (e *Engine) Transcribe(ctx context.Context, a provider.Audio, model, language string) (string, error) {
	if a.SampleRate != audio.TargetRate {
		return "", fmt.Errorf("whispercpp: sample rate %d, want %d", a.SampleRate, audio.TargetRate)
	}

	m, err := e.model(ctx, model)
	if err != nil {
		return "", err
	}

	wctx, err := m.NewContext()
	if err != nil {
		return "", fmt.Errorf("whispercpp: create context: %w", err)
	}

	if language != "" && m.IsMultilingual() {
		if err := wctx.SetLanguage(language); err != nil {
			slog.Warn("[Whisper] unsupported language, using model default", "language", language, "error", err)
		}
	}

	// The encoder callback is the only point where a running job can be stopped.
	keepGoing := func() bool { return ctx.Err() == nil }
	if err := wctx.Process(a.Samples, keepGoing, nil, nil); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("whispercpp: process: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var segments []string
	for {
		seg, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whispercpp: next segment: %w", err)
		}
		segments = append(segments, strings.TrimSpace(seg.Text))
	}

	return strings.TrimSpace(strings.Join(segments, " ")), nil
}

// model returns a loaded model, loading it on first request.
func (e *Engine) model(ctx context.Context, name string) (whisper.Model, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if m, ok := e.loaded[name]; ok {
		return m, nil
	}

	path, err := e.models.Ensure(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("whispercpp: model %q: %w", name, err)
	}

	slog.Info("[Whisper] loading model", "model", name, "path", path)
	m, err := whisper.New(path)
	if err != nil {
		return nil, fmt.Errorf("whispercpp: load model %q: %w", path, err)
	}
	e.loaded[name] = m
	return m, nil
}

// Preload fetches and loads model so the first session does not pay for it.
func (e *Engine) Preload(ctx context.Context, model string) error {
	_, err := e.model(ctx, model)
	return err
}

// Loaded reports the ids of resident models.
func (e *Engine) Loaded() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.loaded))
	for name := range e.loaded {
		out = append(out, name)
	}
	return out
}

// Close releases every loaded model.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var firstErr error
	for name, m := range e.loaded {
		if err := m.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("whispercpp: close %q: %w", name, err)
		}
		delete(e.loaded, name)
	}
	return firstErr
}
