// Package notify turns session events into desktop notifications.
package notify

import (
	"context"
	"log/slog"

	"github.com/gen2brain/beeep"

	"github.com/chaz8081/gostt-tray/internal/session"
)

const appTitle = "gostt-tray"

// maxPreview bounds how much output text a notification shows.
const maxPreview = 80

// Notifier shows one notification.
type Notifier interface {
	Notify(title, message string) error
}

// Desktop notifies through the OS notification service.
type Desktop struct{}

// Notify shows a desktop notification.
func (Desktop) Notify(title, message string) error {
	return beeep.Notify(title, message, "")
}

// Run shows a notification for each session outcome until events closes or
// ctx is done.
func Run(ctx context.Context, events <-chan session.Event, n Notifier) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			msg, show := message(ev)
			if !show {
				continue
			}
			if err := n.Notify(appTitle, msg); err != nil {
				slog.Debug("[Notify] notification failed", "error", err)
			}
		}
	}
}

// message returns the notification text for ev, if any.
func message(ev session.Event) (string, bool) {
	switch ev.Type {
	case session.EventRecordingStarted:
		return "Recording started", true
	case session.EventRecordingComplete:
		if ev.Warning != "" {
			return "Done with warning: " + ev.Warning, true
		}
		if ev.Text == "" {
			return "Nothing was transcribed", true
		}
		return preview(ev.Text), true
	case session.EventRecordingError:
		return "Failed: " + ev.Message, true
	default:
		return "", false
	}
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= maxPreview {
		return s
	}
	return string(r[:maxPreview-1]) + "…"
}
