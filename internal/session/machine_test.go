package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chaz8081/gostt-tray/internal/audio"
	"github.com/chaz8081/gostt-tray/internal/history"
	"github.com/chaz8081/gostt-tray/internal/pipeline"
	"github.com/chaz8081/gostt-tray/internal/provider"
	"github.com/chaz8081/gostt-tray/internal/settings"
)

type harness struct {
	m        *Machine
	capture  *fakeCapture
	pipe     *fakePipeline
	hist     *memHistory
	deliver  *fakeDeliverer
	settings *settings.Store
	events   <-chan Event
}

type harnessOpt func(*Deps, *Options)

func newHarness(t *testing.T, opts ...harnessOpt) *harness {
	t.Helper()
	h := &harness{
		capture:  &fakeCapture{},
		pipe:     &fakePipeline{result: okResult()},
		hist:     newMemHistory(),
		deliver:  &fakeDeliverer{},
		settings: settings.NewMemory(settings.Default()),
	}
	deps := Deps{
		Capture:  h.capture,
		Modes:    builtinResolver{},
		Pipeline: h.pipe,
		History:  h.hist,
		Deliver:  h.deliver,
		Settings: h.settings,
	}
	o := Options{ProcessingTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&deps, &o)
	}

	h.m = New(deps, o)
	events, unsub := h.m.Subscribe(64)
	t.Cleanup(unsub)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.m.Close(ctx)
	})
	h.events = events

	h.m.MarkReady()
	waitFor(t, h.events, EventStatusChanged)
	return h
}

func okResult() pipeline.Result {
	return pipeline.Result{
		Raw:         "hello world",
		Output:      "Hello world.",
		STTProvider: "whispercpp",
		STTModel:    "base.en",
		Duration:    1200 * time.Millisecond,
	}
}

func waitFor(t *testing.T, ch <-chan Event, typ EventType) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
			return Event{}
		}
	}
}

func next(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestStartBeforeReady(t *testing.T) {
	m := New(Deps{Capture: &fakeCapture{}, Settings: settings.NewMemory(settings.Default())}, Options{})
	if got := m.Status().Phase; got != PhaseLoading {
		t.Fatalf("initial phase = %s, want loading", got)
	}
	if _, err := m.Start(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Start() error = %v, want ErrNotReady", err)
	}
	if _, err := m.ProcessText(context.Background(), "", "hi"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("ProcessText() error = %v, want ErrNotReady", err)
	}
}

func TestSessionEventOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, err := h.m.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if st := h.m.Status(); st.Phase != PhaseRecording || !st.Recording || st.SessionID != id {
		t.Fatalf("Status() after Start = %+v", st)
	}

	stopID, err := h.m.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if stopID != id {
		t.Errorf("Stop() id = %q, want %q", stopID, id)
	}

	want := []struct {
		typ   EventType
		phase Phase
	}{
		{EventStatusChanged, PhaseRecording},
		{EventRecordingStarted, PhaseRecording},
		{EventStatusChanged, PhaseProcessing},
		{EventStatusChanged, PhaseReady},
		{EventRecordingComplete, PhaseReady},
		{EventHistoryUpdated, PhaseReady},
	}
	var complete Event
	for i, w := range want {
		ev := next(t, h.events)
		if ev.Type != w.typ || ev.Status.Phase != w.phase {
			t.Fatalf("event %d = %s/%s, want %s/%s", i, ev.Type, ev.Status.Phase, w.typ, w.phase)
		}
		if ev.Type == EventRecordingComplete {
			complete = ev
			if got := h.m.Status().Phase; got != PhaseReady {
				t.Errorf("Status() on completion = %s, want ready", got)
			}
		}
	}

	if complete.Text != "Hello world." || complete.SessionID != id || complete.HistoryID != id {
		t.Errorf("complete event = %+v", complete)
	}

	h.m.wg.Wait()
	items := h.hist.all()
	if len(items) != 1 {
		t.Fatalf("history items = %d, want 1", len(items))
	}
	if items[0].OutputFinal != "Hello world." || items[0].TranscriptRaw != "hello world" || items[0].Error != nil {
		t.Errorf("history item = %+v", items[0])
	}
	if items[0].DurationMS != 1200 {
		t.Errorf("DurationMS = %d", items[0].DurationMS)
	}
	if got := h.deliver.delivered(); len(got) != 1 || got[0] != "Hello world." {
		t.Errorf("delivered = %q, want one delivery", got)
	}
}

func TestStartWhileOpen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.m.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := h.m.Start(ctx); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("second Start() error = %v, want ErrAlreadyRecording", err)
	}
	if n := h.capture.startCount(); n != 1 {
		t.Errorf("capture started %d times, want 1", n)
	}
}

func TestConcurrentStart(t *testing.T) {
	h := newHarness(t)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, busy int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.m.Start(context.Background())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrAlreadyRecording):
				busy++
			default:
				t.Errorf("Start() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 1 || busy != 15 {
		t.Errorf("ok = %d, busy = %d, want 1 and 15", ok, busy)
	}
	if n := h.capture.startCount(); n != 1 {
		t.Errorf("capture started %d times", n)
	}
}

func TestStopWhenNotRecording(t *testing.T) {
	h := newHarness(t)
	if _, err := h.m.Stop(context.Background()); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("Stop() error = %v, want ErrNotRecording", err)
	}
	if h.capture.stops != 0 {
		t.Error("capture must not be touched")
	}
	if n := len(h.hist.all()); n != 0 {
		t.Errorf("history items = %d, want 0", n)
	}
	if got := h.m.Status().Phase; got != PhaseReady {
		t.Errorf("phase = %s", got)
	}
}

func TestEmptyRecording(t *testing.T) {
	h := newHarness(t)
	h.capture.stopErr = fmt.Errorf("audio: 120ms: %w", audio.ErrEmptyRecording)

	if _, err := h.m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	_, err := h.m.Stop(context.Background())
	if !errors.Is(err, audio.ErrEmptyRecording) {
		t.Fatalf("Stop() error = %v, want ErrEmptyRecording", err)
	}

	ev := waitFor(t, h.events, EventRecordingError)
	if ev.Status.Phase != PhaseReady {
		t.Errorf("error event phase = %s", ev.Status.Phase)
	}
	if n := len(h.hist.all()); n != 0 {
		t.Errorf("history items = %d, want 0", n)
	}
	if len(h.pipe.runs()) != 0 {
		t.Error("pipeline must not run for an empty recording")
	}
	if len(h.deliver.delivered()) != 0 {
		t.Error("nothing should be delivered")
	}
}

func TestDeviceUnavailable(t *testing.T) {
	h := newHarness(t)
	h.capture.startErr = errors.New("no such device")

	_, err := h.m.Start(context.Background())
	if !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Fatalf("Start() error = %v, want ErrDeviceUnavailable", err)
	}
	if st := h.m.Status(); st.Phase != PhaseReady || st.SessionID != "" {
		t.Errorf("Status() = %+v, want ready", st)
	}
}

func TestStartDuringProcessing(t *testing.T) {
	h := newHarness(t)
	h.pipe.gate = make(chan struct{})
	h.pipe.entered = make(chan struct{}, 1)
	ctx := context.Background()

	if _, err := h.m.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := h.m.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	<-h.pipe.entered

	if got := h.m.Status().Phase; got != PhaseProcessing {
		t.Fatalf("phase during pipeline = %s", got)
	}
	if _, err := h.m.Start(ctx); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("Start() during processing = %v, want ErrAlreadyRecording", err)
	}
	if _, err := h.m.Stop(ctx); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Stop() during processing = %v, want ErrNotRecording", err)
	}

	close(h.pipe.gate)
	waitFor(t, h.events, EventRecordingComplete)

	if _, err := h.m.Start(ctx); err != nil {
		t.Errorf("Start() after completion: %v", err)
	}
}

func TestTranscriptionFailure(t *testing.T) {
	h := newHarness(t)
	h.pipe.result = pipeline.Result{
		STTProvider: "openai",
		STTModel:    "whisper-1",
		Err:         fmt.Errorf("%w: %w", pipeline.ErrTranscriptionFailed, provider.ErrCredentialMissing),
	}

	id, _ := h.m.Start(context.Background())
	if _, err := h.m.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}

	sawError := false
	for {
		ev := next(t, h.events)
		if ev.Type == EventStatusChanged && ev.Status.Phase == PhaseError {
			sawError = true
		}
		if ev.Type == EventRecordingError {
			if ev.Status.Phase != PhaseReady || ev.HistoryID != id || ev.Message == "" {
				t.Errorf("error event = %+v", ev)
			}
			break
		}
		if ev.Type == EventRecordingComplete {
			t.Fatal("unexpected recording-complete")
		}
	}
	if !sawError {
		t.Error("expected a transient error phase")
	}

	h.m.wg.Wait()
	items := h.hist.all()
	if len(items) != 1 || items[0].Error == nil {
		t.Fatalf("history = %+v, want one item with an error", items)
	}
	if len(h.deliver.delivered()) != 0 {
		t.Error("nothing should be delivered after STT failure")
	}
	if got := h.m.Status().Phase; got != PhaseReady {
		t.Errorf("phase = %s, want ready", got)
	}
}

func TestProcessingTimeout(t *testing.T) {
	h := newHarness(t, func(_ *Deps, o *Options) { o.ProcessingTimeout = 50 * time.Millisecond })
	h.pipe.gate = make(chan struct{}) // never opened

	if _, err := h.m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := h.m.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	ev := waitFor(t, h.events, EventRecordingError)
	if ev.Status.Phase != PhaseReady {
		t.Errorf("phase = %s", ev.Status.Phase)
	}
}

func TestHistoryFailureStillDelivers(t *testing.T) {
	h := newHarness(t)
	h.hist.insertErr = fmt.Errorf("disk full: %w", history.ErrStorage)

	if _, err := h.m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := h.m.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}

	ev := waitFor(t, h.events, EventRecordingComplete)
	if ev.Warning == "" || ev.HistoryID != "" {
		t.Errorf("complete event = %+v, want warning and no history id", ev)
	}
	h.m.wg.Wait()
	if got := h.deliver.delivered(); len(got) != 1 {
		t.Errorf("delivered = %q, want one delivery", got)
	}
}

func TestAbort(t *testing.T) {
	h := newHarness(t)

	if err := h.m.Abort(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Abort() when ready = %v", err)
	}
	if _, err := h.m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := h.m.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if h.capture.aborts != 1 {
		t.Errorf("capture aborts = %d", h.capture.aborts)
	}
	if got := h.m.Status().Phase; got != PhaseReady {
		t.Errorf("phase = %s", got)
	}
	if n := len(h.hist.all()); n != 0 {
		t.Errorf("history items = %d", n)
	}
}

func TestSettingsSnapshotAtStart(t *testing.T) {
	h := newHarness(t)
	if _, err := h.settings.Update(func(s settings.Settings) settings.Settings {
		s.ActiveModeKey = "email"
		s.ContextAwareness = true
		return s
	}); err != nil {
		t.Fatal(err)
	}
	h.m.deps.Context = fakeContext{text: "the thread so far"}

	if _, err := h.m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := h.settings.Update(func(s settings.Settings) settings.Settings {
		s.ActiveModeKey = "note"
		s.DefaultSTTModel = "small"
		return s
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := h.m.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, h.events, EventRecordingComplete)

	runs := h.pipe.runs()
	if len(runs) != 1 {
		t.Fatalf("pipeline runs = %d", len(runs))
	}
	if runs[0].ModeKey != "email" || runs[0].STTModel != "base.en" {
		t.Errorf("plan = %+v, want settings from Start", runs[0])
	}
	if runs[0].Context != "the thread so far" {
		t.Errorf("Context = %q", runs[0].Context)
	}
}

func TestUnknownActiveModeFallsBack(t *testing.T) {
	h := newHarness(t)
	if _, err := h.settings.Update(func(s settings.Settings) settings.Settings {
		s.ActiveModeKey = "deleted-mode"
		return s
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := h.m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := h.m.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, h.events, EventRecordingComplete)
	if got := h.pipe.runs()[0].ModeKey; got != "voice_to_text" {
		t.Errorf("ModeKey = %q, want voice_to_text", got)
	}
}

func TestAudioRetention(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, func(_ *Deps, o *Options) { o.AudioDir = dir })

	id, _ := h.m.Start(context.Background())
	if _, err := h.m.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, h.events, EventRecordingComplete)

	item, err := h.hist.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if item.AudioPath == nil {
		t.Fatal("AudioPath should be set when retention is on")
	}
	if _, err := os.Stat(*item.AudioPath); err != nil {
		t.Errorf("retained audio missing: %v", err)
	}
}

func TestReprocessKeepsIdentity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	orig, _ := h.hist.Insert(ctx, history.Item{
		ID:            "item-1",
		CreatedAt:     created,
		ModeKey:       "voice_to_text",
		TranscriptRaw: "hey remind the team about friday",
		OutputFinal:   "hey remind the team about friday",
		STTProvider:   "whispercpp",
	})
	h.pipe.result = pipeline.Result{Output: "Hi team, a reminder about Friday.", LLMProvider: "ollama", LLMModel: "llama3.2"}

	got, err := h.m.Reprocess(ctx, orig.ID, "email")
	if err != nil {
		t.Fatalf("Reprocess: %v", err)
	}
	if got.ID != orig.ID || !got.CreatedAt.Equal(created) {
		t.Errorf("identity changed: %+v", got)
	}
	if got.ModeKey != "email" || got.OutputFinal != "Hi team, a reminder about Friday." {
		t.Errorf("Reprocess() = %+v", got)
	}
	if history.Deref(got.LLMProvider) != "ollama" {
		t.Errorf("LLMProvider = %v", got.LLMProvider)
	}
	if texts := h.pipe.texts; len(texts) != 1 || texts[0] != "hey remind the team about friday" {
		t.Errorf("pipeline texts = %q", texts)
	}
	waitFor(t, h.events, EventHistoryUpdated)

	if _, err := h.m.Reprocess(ctx, "missing", "email"); !errors.Is(err, history.ErrNotFound) {
		t.Errorf("Reprocess(missing) = %v, want ErrNotFound", err)
	}
}

func TestReprocessFailedItemWithoutAudio(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	failure := "transcription failed: connection refused"
	h.hist.Insert(ctx, history.Item{
		ID:          "failed-1",
		ModeKey:     "voice_to_text",
		STTProvider: "whisper_server",
		Error:       history.StringPtr(failure),
	})

	got, err := h.m.Reprocess(ctx, "failed-1", "email")
	if !errors.Is(err, ErrNothingToReprocess) {
		t.Fatalf("Reprocess() error = %v, want ErrNothingToReprocess", err)
	}
	if got.ID != "" {
		t.Errorf("Reprocess() item = %+v, want zero", got)
	}
	if runs, texts := h.pipe.runs(), h.pipe.texts; len(runs) != 0 || len(texts) != 0 {
		t.Errorf("pipeline called: runs=%d texts=%q", len(runs), texts)
	}

	stored, _ := h.hist.Get(ctx, "failed-1")
	if stored.ModeKey != "voice_to_text" || history.Deref(stored.Error) != failure {
		t.Errorf("stored item changed: mode=%q error=%v", stored.ModeKey, stored.Error)
	}
}

func TestProcessTextHistoryFailure(t *testing.T) {
	h := newHarness(t)
	h.hist.insertErr = fmt.Errorf("disk full: %w", history.ErrStorage)
	h.pipe.result = pipeline.Result{Output: "Formatted note", Warning: "post-processing failed: offline"}

	res, err := h.m.ProcessText(context.Background(), "note", "buy milk")
	if err != nil {
		t.Fatalf("ProcessText: %v", err)
	}
	if res.Output != "Formatted note" || res.HistoryID != "" {
		t.Errorf("result = %+v", res)
	}
	for _, want := range []string{"post-processing failed", "history not saved"} {
		if !strings.Contains(res.Warning, want) {
			t.Errorf("warning = %q, want it to mention %q", res.Warning, want)
		}
	}
	if got := h.deliver.delivered(); len(got) != 1 {
		t.Errorf("delivered = %q, want one delivery", got)
	}
}

func TestProcessText(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.pipe.result = pipeline.Result{Output: "Formatted note"}

	res, err := h.m.ProcessText(ctx, "note", "buy milk")
	if err != nil {
		t.Fatalf("ProcessText: %v", err)
	}
	if res.Output != "Formatted note" || res.HistoryID == "" || res.Warning != "" {
		t.Errorf("result = %+v", res)
	}

	items := h.hist.all()
	if len(items) != 1 || items[0].STTProvider != pipeline.TextProvider || items[0].ModeKey != "note" || items[0].AudioPath != nil {
		t.Errorf("history = %+v", items)
	}
	if got := h.deliver.delivered(); len(got) != 1 || got[0] != "Formatted note" {
		t.Errorf("delivered = %q", got)
	}
	if h.capture.startCount() != 0 {
		t.Error("capture must not be used")
	}

	if _, err := h.m.ProcessText(ctx, "note", "   "); !errors.Is(err, ErrEmptyText) {
		t.Errorf("blank ProcessText() = %v, want ErrEmptyText", err)
	}
}

func TestUnsubscribe(t *testing.T) {
	h := newHarness(t)
	ch, unsub := h.m.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}
	h.m.Announce(EventModesChanged)
	waitFor(t, h.events, EventModesChanged)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	h := newHarness(t)
	_, unsub := h.m.Subscribe(1)
	defer unsub()

	for i := 0; i < 5; i++ {
		h.m.Announce(EventModesChanged)
	}
	if _, err := h.m.Start(context.Background()); err != nil {
		t.Fatalf("Start with a full subscriber: %v", err)
	}
}

// stubProviders wires a real pipeline to canned provider clients.
type stubProviders struct {
	stt provider.STT
	llm provider.LLM
}

func (p stubProviders) STT(string) (provider.STT, error) { return p.stt, nil }
func (p stubProviders) LLM(string) (provider.LLM, error) { return p.llm, nil }

type stubSTT struct{ text string }

func (s stubSTT) Name() string { return "stub" }
func (s stubSTT) Transcribe(context.Context, provider.Audio, string, string) (string, error) {
	return s.text, nil
}

type downLLM struct{}

func (downLLM) Name() string { return "down" }
func (downLLM) Complete(context.Context, string, string) (string, error) {
	return "", &provider.UnavailableError{Provider: "ollama", Err: errors.New("connection refused")}
}

func TestLLMFailureKeepsRawTranscript(t *testing.T) {
	h := newHarness(t, func(d *Deps, _ *Options) {
		d.Pipeline = pipeline.New(stubProviders{stt: stubSTT{text: "raw words"}, llm: downLLM{}})
	})
	if _, err := h.settings.Update(func(s settings.Settings) settings.Settings {
		s.ActiveModeKey = "email"
		return s
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := h.m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := h.m.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}

	ev := waitFor(t, h.events, EventRecordingComplete)
	if ev.Text != "raw words" || ev.Warning == "" {
		t.Errorf("complete event = %+v", ev)
	}
	if ev.Status.Phase != PhaseReady {
		t.Errorf("phase = %s, want ready", ev.Status.Phase)
	}

	h.m.wg.Wait()
	items := h.hist.all()
	if len(items) != 1 || items[0].OutputFinal != "raw words" || items[0].Error == nil {
		t.Errorf("history = %+v", items)
	}
	if got := h.deliver.delivered(); len(got) != 1 || got[0] != "raw words" {
		t.Errorf("delivered = %q", got)
	}
}
