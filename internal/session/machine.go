package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chaz8081/gostt-tray/internal/audio"
)

// MarkReady ends warm-up. It is a no-op outside the loading phase.
func (m *Machine) MarkReady() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Status().Phase != PhaseLoading {
		return
	}
	m.setStatus(Status{Phase: PhaseReady})
	slog.Info("[Session] ready")
}

// Start opens a new session and begins capture. It returns the session id.
func (m *Machine) Start(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.Status().Phase {
	case PhaseReady:
	case PhaseLoading:
		return "", ErrNotReady
	default:
		return "", ErrAlreadyRecording
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s := m.deps.Settings.Get()
	sess := &active{
		id:        uuid.NewString(),
		startedAt: time.Now(),
		settings:  s,
	}

	if s.ContextAwareness && m.deps.Context != nil {
		text, err := m.deps.Context.ReadText()
		if err != nil {
			slog.Warn("[Session] could not read context", "error", err)
		}
		sess.context = text
	}

	if err := m.deps.Capture.Start(s.InputDevice); err != nil {
		slog.Error("[Session] failed to start capture", "device", s.InputDevice, "error", err)
		if !errors.Is(err, audio.ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %w", audio.ErrDeviceUnavailable, err)
		}
		return "", err
	}

	m.current = sess
	m.setStatus(Status{Phase: PhaseRecording, SessionID: sess.id})
	m.publish(Event{Type: EventRecordingStarted, SessionID: sess.id})
	slog.Info("[Session] recording started", "session", sess.id, "mode", s.ActiveModeKey)
	return sess.id, nil
}

// Stop ends capture and hands the recording to a processing goroutine. It
// returns the session id immediately; the outcome arrives as an event.
func (m *Machine) Stop(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Status().Phase != PhaseRecording || m.current == nil {
		return "", ErrNotRecording
	}
	sess := m.current

	// Busy before the microphone closes so nobody keeps talking into it.
	m.setStatus(Status{Phase: PhaseProcessing, SessionID: sess.id})

	rec, err := m.deps.Capture.Stop()
	if err != nil {
		m.current = nil
		m.setStatus(Status{Phase: PhaseReady})
		m.publish(Event{Type: EventRecordingError, SessionID: sess.id, Message: err.Error()})
		if errors.Is(err, audio.ErrEmptyRecording) {
			slog.Info("[Session] recording too short, discarded", "session", sess.id)
		} else {
			slog.Error("[Session] capture failed", "session", sess.id, "error", err)
		}
		return "", err
	}

	slog.Info("[Session] recording stopped",
		"session", sess.id,
		"duration", rec.Duration.Round(time.Millisecond),
		"rate", rec.SampleRate,
		"channels", rec.Channels,
	)

	m.wg.Add(1)
	go m.process(sess, rec)
	return sess.id, nil
}

// Abort discards the open recording without producing output.
func (m *Machine) Abort() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Status().Phase != PhaseRecording || m.current == nil {
		return ErrNotRecording
	}
	id := m.current.id
	m.deps.Capture.Abort()
	m.current = nil
	m.setStatus(Status{Phase: PhaseReady})
	slog.Info("[Session] recording aborted", "session", id)
	return nil
}

// Close aborts an open recording and waits for in-flight processing. When
// ctx expires first, provider calls are canceled and Close waits for the
// goroutine to record the failure.
func (m *Machine) Close(ctx context.Context) error {
	_ = m.Abort()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		<-done
		return ctx.Err()
	}
}
