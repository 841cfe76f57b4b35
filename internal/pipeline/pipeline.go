// Package pipeline turns a captured recording and a resolved plan into
// final text: resample, transcribe, then optionally rewrite through an LLM.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chaz8081/gostt-tray/internal/audio"
	"github.com/chaz8081/gostt-tray/internal/modes"
	"github.com/chaz8081/gostt-tray/internal/provider"
)

// TextProvider is the STT provider recorded for text supplied directly,
// such as deep links.
const TextProvider = "text"

// ErrTranscriptionFailed wraps every STT-stage failure.
var ErrTranscriptionFailed = errors.New("transcription failed")

// Providers resolves provider ids at call time.
type Providers interface {
	STT(id string) (provider.STT, error)
	LLM(id string) (provider.LLM, error)
}

// Result is the outcome of one run. Err is set only for STT-stage
// failures; a failed LLM call leaves Output equal to Raw and sets Warning.
type Result struct {
	Raw         string
	Output      string
	STTProvider string
	STTModel    string
	// LLMProvider and LLMModel are empty when post-processing was skipped.
	LLMProvider string
	LLMModel    string
	Warning     string
	Err         error
	Duration    time.Duration
}

// Executor runs plans against the provider registry.
type Executor struct {
	providers Providers
	now       func() time.Time
}

// New creates an Executor.
func New(providers Providers) *Executor {
	return &Executor{providers: providers, now: time.Now}
}

// Run transcribes rec and post-processes the transcript per plan. Duration
// spans rec.StartedAt to completion.
func (e *Executor) Run(ctx context.Context, plan modes.Plan, rec *audio.Recording) Result {
	start := rec.StartedAt
	if start.IsZero() {
		start = e.now()
	}

	res := Result{STTProvider: plan.STTProvider, STTModel: plan.STTModel}
	raw, err := e.transcribe(ctx, plan, rec)
	if err != nil {
		res.Err = err
		res.Duration = e.now().Sub(start)
		return res
	}

	res.Raw = raw
	e.postProcess(ctx, plan, &res)
	res.Duration = e.now().Sub(start)
	return res
}

// RunText post-processes text supplied directly, bypassing STT. Reprocessing
// a stored transcript goes through here too.
func (e *Executor) RunText(ctx context.Context, plan modes.Plan, text string) Result {
	start := e.now()
	res := Result{Raw: text, STTProvider: TextProvider}
	e.postProcess(ctx, plan, &res)
	res.Duration = e.now().Sub(start)
	return res
}

func (e *Executor) transcribe(ctx context.Context, plan modes.Plan, rec *audio.Recording) (string, error) {
	stt, err := e.providers.STT(plan.STTProvider)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}

	samples := audio.Normalize(rec)
	slog.Debug("[Pipeline] transcribing",
		"provider", plan.STTProvider,
		"model", plan.STTModel,
		"samples", len(samples),
		"source_rate", rec.SampleRate,
		"source_channels", rec.Channels,
	)

	text, err := stt.Transcribe(ctx, provider.Audio{Samples: samples, SampleRate: audio.TargetRate}, plan.STTModel, plan.Language)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}
	return text, nil
}

// postProcess fills Output and the LLM fields. It never sets Err.
func (e *Executor) postProcess(ctx context.Context, plan modes.Plan, res *Result) {
	res.Output = res.Raw
	if !plan.AIProcessing || plan.PromptTemplate == "" || res.Raw == "" {
		return
	}

	res.LLMProvider = plan.LLMProvider
	res.LLMModel = plan.LLMModel

	prompt := modes.RenderPrompt(plan.PromptTemplate, res.Raw, plan.Context, plan.Language)

	llm, err := e.providers.LLM(plan.LLMProvider)
	if err != nil {
		res.Warning = fmt.Sprintf("post-processing failed: %v", err)
		slog.Warn("[Pipeline] post-processing skipped", "provider", plan.LLMProvider, "error", err)
		return
	}

	out, err := llm.Complete(ctx, prompt, plan.LLMModel)
	if err != nil {
		res.Warning = fmt.Sprintf("post-processing failed: %v", err)
		slog.Warn("[Pipeline] post-processing failed, keeping raw transcript",
			"provider", plan.LLMProvider,
			"model", plan.LLMModel,
			"error", err,
		)
		return
	}
	res.Output = strings.TrimSpace(out)
}
