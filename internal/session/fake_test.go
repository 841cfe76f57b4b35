package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chaz8081/gostt-tray/internal/audio"
	"github.com/chaz8081/gostt-tray/internal/history"
	"github.com/chaz8081/gostt-tray/internal/modes"
	"github.com/chaz8081/gostt-tray/internal/pipeline"
	"github.com/chaz8081/gostt-tray/internal/settings"
)

type fakeCapture struct {
	mu       sync.Mutex
	startErr error
	stopErr  error
	rec      *audio.Recording
	starts   []string
	stops    int
	aborts   int
	open     bool
}

func (f *fakeCapture) Start(device string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts = append(f.starts, device)
	f.open = true
	return nil
}

func (f *fakeCapture) Stop() (*audio.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.open = false
	if f.stopErr != nil {
		return nil, f.stopErr
	}
	if f.rec != nil {
		return f.rec, nil
	}
	return &audio.Recording{
		Samples:    make([]float32, 16000),
		SampleRate: 16000,
		Channels:   1,
		StartedAt:  time.Now().Add(-time.Second),
		Duration:   time.Second,
	}, nil
}

func (f *fakeCapture) Abort() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborts++
	f.open = false
}

func (f *fakeCapture) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts)
}

// builtinResolver resolves against the built-in modes.
type builtinResolver struct{}

func (builtinResolver) Resolve(key string, s settings.Settings) (modes.Plan, bool) {
	all := make(map[string]modes.Mode)
	for _, m := range modes.Builtins() {
		all[m.Key] = m
	}
	return modes.Resolve(all, key, s)
}

// fakePipeline returns result for every run. When gate is set, runs block
// until it is closed.
type fakePipeline struct {
	mu      sync.Mutex
	result  pipeline.Result
	gate    chan struct{}
	plans   []modes.Plan
	texts   []string
	entered chan struct{}
}

func (f *fakePipeline) Run(ctx context.Context, plan modes.Plan, _ *audio.Recording) pipeline.Result {
	f.mu.Lock()
	f.plans = append(f.plans, plan)
	gate, entered := f.gate, f.entered
	res := f.result
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return pipeline.Result{Err: errors.Join(pipeline.ErrTranscriptionFailed, ctx.Err())}
		}
	}
	return res
}

func (f *fakePipeline) RunText(_ context.Context, plan modes.Plan, text string) pipeline.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plans = append(f.plans, plan)
	f.texts = append(f.texts, text)
	res := f.result
	res.Raw = text
	res.STTProvider = pipeline.TextProvider
	if res.Output == "" {
		res.Output = text
	}
	return res
}

func (f *fakePipeline) runs() []modes.Plan {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]modes.Plan(nil), f.plans...)
}

type memHistory struct {
	mu        sync.Mutex
	items     map[string]history.Item
	order     []string
	insertErr error
}

func newMemHistory() *memHistory {
	return &memHistory{items: make(map[string]history.Item)}
}

func (h *memHistory) Insert(_ context.Context, item history.Item) (history.Item, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.insertErr != nil {
		return history.Item{}, h.insertErr
	}
	if item.ID == "" {
		item.ID = time.Now().Format("150405.000000000")
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	h.items[item.ID] = item
	h.order = append(h.order, item.ID)
	return item, nil
}

func (h *memHistory) Get(_ context.Context, id string) (history.Item, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	item, ok := h.items[id]
	if !ok {
		return history.Item{}, history.ErrNotFound
	}
	return item, nil
}

func (h *memHistory) Update(_ context.Context, id string, p history.Patch) (history.Item, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	item, ok := h.items[id]
	if !ok {
		return history.Item{}, history.ErrNotFound
	}
	item.ModeKey = p.ModeKey
	item.OutputFinal = p.OutputFinal
	item.LLMProvider = p.LLMProvider
	item.LLMModel = p.LLMModel
	item.Error = p.Error
	if p.TranscriptRaw != nil {
		item.TranscriptRaw = *p.TranscriptRaw
	}
	h.items[id] = item
	return item, nil
}

func (h *memHistory) all() []history.Item {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]history.Item, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.items[id])
	}
	return out
}

type fakeDeliverer struct {
	mu        sync.Mutex
	texts     []string
	autoPaste []bool
	err       error
}

func (d *fakeDeliverer) Deliver(_ context.Context, text string, autoPaste bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.texts = append(d.texts, text)
	d.autoPaste = append(d.autoPaste, autoPaste)
	return d.err
}

func (d *fakeDeliverer) delivered() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.texts...)
}

type fakeContext struct{ text string }

func (c fakeContext) ReadText() (string, error) { return c.text, nil }
