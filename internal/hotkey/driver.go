package hotkey

import (
	"context"
	"errors"
	"log/slog"

	"github.com/chaz8081/gostt-tray/internal/session"
)

// Controller is the part of the session machine the hotkey drives.
type Controller interface {
	Start(ctx context.Context) (string, error)
	Stop(ctx context.Context) (string, error)
	Status() session.Status
}

// Drive applies hotkey events to ctrl until events closes or ctx is done.
func Drive(ctx context.Context, events <-chan Event, ctrl Controller) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			handle(ctx, ev, ctrl)
		}
	}
}

func handle(ctx context.Context, ev Event, ctrl Controller) {
	start := ev.Type == EventStart
	if ev.Type == EventToggle {
		start = !ctrl.Status().Recording
	}

	if start {
		_, err := ctrl.Start(ctx)
		switch {
		case err == nil:
		case errors.Is(err, session.ErrAlreadyRecording), errors.Is(err, session.ErrNotReady):
			// Key repeat in hold mode, or a press while the last session is still processing.
			slog.Debug("[Hotkey] start ignored", "reason", err)
		default:
			slog.Error("[Hotkey] failed to start recording", "error", err)
		}
		return
	}

	_, err := ctrl.Stop(ctx)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrNotRecording):
		slog.Debug("[Hotkey] stop ignored", "reason", err)
	default:
		slog.Warn("[Hotkey] stop failed", "error", err)
	}
}
