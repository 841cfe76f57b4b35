package session

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/chaz8081/gostt-tray/internal/audio"
	"github.com/chaz8081/gostt-tray/internal/history"
	"github.com/chaz8081/gostt-tray/internal/pipeline"
)

// process runs the pipeline for one stopped session. It records exactly one
// history item, publishes exactly one outcome event and delivers at most once.
func (m *Machine) process(sess *active, rec *audio.Recording) {
	defer m.wg.Done()

	plan, fellBack := m.deps.Modes.Resolve(sess.settings.ActiveModeKey, sess.settings)
	if fellBack {
		slog.Warn("[Session] active mode not found, using fallback", "mode", sess.settings.ActiveModeKey, "fallback", plan.ModeKey)
	}
	plan.Context = sess.context

	audioPath := m.retain(sess.id, rec)

	ctx, cancel := context.WithTimeout(m.baseCtx, m.opts.ProcessingTimeout)
	res := m.deps.Pipeline.Run(ctx, plan, rec)
	cancel()

	item := history.Item{
		ID:            sess.id,
		CreatedAt:     sess.startedAt,
		ModeKey:       plan.ModeKey,
		AudioPath:     audioPath,
		TranscriptRaw: res.Raw,
		OutputFinal:   res.Output,
		STTProvider:   res.STTProvider,
		STTModel:      res.STTModel,
		LLMProvider:   history.StringPtr(res.LLMProvider),
		LLMModel:      history.StringPtr(res.LLMModel),
		DurationMS:    res.Duration.Milliseconds(),
		Error:         history.StringPtr(itemError(res)),
	}

	historyID, storeWarning := m.record(item)
	warning := joinWarnings(res.Warning, storeWarning)

	m.mu.Lock()
	m.current = nil
	if res.Err != nil {
		msg := res.Err.Error()
		m.setStatus(Status{Phase: PhaseError, SessionID: sess.id, Message: msg})
		m.setStatus(Status{Phase: PhaseReady})
		m.publish(Event{Type: EventRecordingError, SessionID: sess.id, HistoryID: historyID, Message: msg, Warning: storeWarning})
	} else {
		m.setStatus(Status{Phase: PhaseReady})
		m.publish(Event{Type: EventRecordingComplete, SessionID: sess.id, HistoryID: historyID, Text: res.Output, Warning: warning})
	}
	if historyID != "" {
		m.publish(Event{Type: EventHistoryUpdated, SessionID: sess.id, HistoryID: historyID})
	}
	m.mu.Unlock()

	if res.Err != nil {
		slog.Error("[Session] session failed", "session", sess.id, "error", res.Err)
		return
	}
	slog.Info("[Session] session complete",
		"session", sess.id,
		"mode", plan.ModeKey,
		"chars", len(res.Output),
		"duration", res.Duration,
	)
	m.deliver(res.Output, sess.settings.AutoPaste)
}

// Reprocess re-runs post-processing on a stored item with modeKey (the
// item's own mode when empty). Items whose transcription failed are
// transcribed again from the retained audio; without audio they are left
// untouched and ErrNothingToReprocess is returned. ID and CreatedAt never
// change.
func (m *Machine) Reprocess(ctx context.Context, id, modeKey string) (history.Item, error) {
	item, err := m.deps.History.Get(ctx, id)
	if err != nil {
		return history.Item{}, err
	}
	if item.TranscriptRaw == "" && item.AudioPath == nil {
		return history.Item{}, fmt.Errorf("session: reprocess %s: %w", id, ErrNothingToReprocess)
	}
	if modeKey == "" {
		modeKey = item.ModeKey
	}

	s := m.deps.Settings.Get()
	plan, _ := m.deps.Modes.Resolve(modeKey, s)

	ctx, cancel := context.WithTimeout(ctx, m.opts.ProcessingTimeout)
	defer cancel()

	var (
		res   pipeline.Result
		patch history.Patch
	)
	if item.TranscriptRaw == "" {
		rec, err := audio.LoadWAV(*item.AudioPath)
		if err != nil {
			return history.Item{}, fmt.Errorf("session: reprocess %s: %w", id, err)
		}
		res = m.deps.Pipeline.Run(ctx, plan, rec)
		if res.Err == nil {
			patch.TranscriptRaw = &res.Raw
			patch.STTProvider = &res.STTProvider
			patch.STTModel = &res.STTModel
		}
	} else {
		res = m.deps.Pipeline.RunText(ctx, plan, item.TranscriptRaw)
	}

	patch.ModeKey = plan.ModeKey
	patch.OutputFinal = res.Output
	patch.LLMProvider = history.StringPtr(res.LLMProvider)
	patch.LLMModel = history.StringPtr(res.LLMModel)
	patch.Error = history.StringPtr(itemError(res))

	updated, err := m.deps.History.Update(ctx, id, patch)
	if err != nil {
		return history.Item{}, err
	}
	m.Announce(EventHistoryUpdated)

	slog.Info("[Session] history item reprocessed", "id", id, "mode", plan.ModeKey, "warning", res.Warning)
	return updated, res.Err
}

// TextResult is the outcome of ProcessText. Warning reports a failed
// post-processing step or a history row that could not be written.
type TextResult struct {
	Output    string `json:"output"`
	HistoryID string `json:"history_id,omitempty"`
	Warning   string `json:"warning,omitempty"`
}

// ProcessText post-processes supplied text with modeKey (the active mode
// when empty), records it and delivers the output. Capture is not touched.
func (m *Machine) ProcessText(ctx context.Context, modeKey, text string) (TextResult, error) {
	if m.Status().Phase == PhaseLoading {
		return TextResult{}, ErrNotReady
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return TextResult{}, ErrEmptyText
	}

	s := m.deps.Settings.Get()
	if modeKey == "" {
		modeKey = s.ActiveModeKey
	}
	plan, fellBack := m.deps.Modes.Resolve(modeKey, s)
	if fellBack {
		slog.Warn("[Session] mode not found for text, using fallback", "mode", modeKey, "fallback", plan.ModeKey)
	}

	if s.ContextAwareness && m.deps.Context != nil {
		if c, err := m.deps.Context.ReadText(); err == nil {
			plan.Context = c
		}
	}

	ctx, cancel := context.WithTimeout(ctx, m.opts.ProcessingTimeout)
	res := m.deps.Pipeline.RunText(ctx, plan, text)
	cancel()

	historyID, storeWarning := m.record(history.Item{
		ModeKey:       plan.ModeKey,
		TranscriptRaw: res.Raw,
		OutputFinal:   res.Output,
		STTProvider:   res.STTProvider,
		LLMProvider:   history.StringPtr(res.LLMProvider),
		LLMModel:      history.StringPtr(res.LLMModel),
		DurationMS:    res.Duration.Milliseconds(),
		Error:         history.StringPtr(res.Warning),
	})
	if historyID != "" {
		m.Announce(EventHistoryUpdated)
	}

	m.deliver(res.Output, s.AutoPaste)
	return TextResult{
		Output:    res.Output,
		HistoryID: historyID,
		Warning:   joinWarnings(res.Warning, storeWarning),
	}, nil
}

// record inserts item and returns its id, or a warning when it could not
// be stored.
func (m *Machine) record(item history.Item) (string, string) {
	stored, err := m.deps.History.Insert(m.baseCtx, item)
	if err != nil {
		slog.Error("[Session] failed to save history", "session", item.ID, "error", err)
		return "", fmt.Sprintf("history not saved: %v", err)
	}
	return stored.ID, ""
}

func (m *Machine) deliver(text string, autoPaste bool) {
	if text == "" || m.deps.Deliver == nil {
		return
	}
	if err := m.deps.Deliver.Deliver(m.baseCtx, text, autoPaste); err != nil {
		slog.Error("[Session] delivery failed", "error", err)
	}
}

// retain writes the recording to the audio dir and returns its path, or nil
// when retention is off or the write failed.
func (m *Machine) retain(id string, rec *audio.Recording) *string {
	if m.opts.AudioDir == "" {
		return nil
	}
	path := filepath.Join(m.opts.AudioDir, id+".wav")
	if err := audio.SaveWAV(path, audio.Normalize(rec), audio.TargetRate); err != nil {
		slog.Warn("[Session] failed to retain audio", "session", id, "error", err)
		return nil
	}
	return &path
}

// itemError is the text stored in a history item's error field.
func itemError(res pipeline.Result) string {
	if res.Err != nil {
		return res.Err.Error()
	}
	return res.Warning
}

func joinWarnings(ws ...string) string {
	var out []string
	for _, w := range ws {
		if w != "" {
			out = append(out, w)
		}
	}
	return strings.Join(out, "; ")
}
