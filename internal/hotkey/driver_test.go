package hotkey

import (
	"context"
	"testing"
	"time"

	"github.com/chaz8081/gostt-tray/internal/session"
)

type fakeController struct {
	recording bool
	calls     []string
}

func (f *fakeController) Start(context.Context) (string, error) {
	f.calls = append(f.calls, "start")
	if f.recording {
		return "", session.ErrAlreadyRecording
	}
	f.recording = true
	return "id", nil
}

func (f *fakeController) Stop(context.Context) (string, error) {
	f.calls = append(f.calls, "stop")
	if !f.recording {
		return "", session.ErrNotRecording
	}
	f.recording = false
	return "id", nil
}

func (f *fakeController) Status() session.Status {
	return session.Status{Recording: f.recording}
}

func TestDrive(t *testing.T) {
	tests := []struct {
		name   string
		events []EventType
		want   []string
		recAt  bool
	}{
		{"toggle pair", []EventType{EventToggle, EventToggle}, []string{"start", "stop"}, false},
		{"toggle thrice", []EventType{EventToggle, EventToggle, EventToggle}, []string{"start", "stop", "start"}, true},
		{"hold", []EventType{EventStart, EventStop}, []string{"start", "stop"}, false},
		{"hold with key repeat", []EventType{EventStart, EventStart, EventStart, EventStop}, []string{"start", "start", "start", "stop"}, false},
		{"stray release", []EventType{EventStop}, []string{"stop"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := make(chan Event, len(tt.events))
			for _, e := range tt.events {
				ch <- Event{Type: e}
			}
			close(ch)

			ctrl := &fakeController{}
			Drive(context.Background(), ch, ctrl)

			if len(ctrl.calls) != len(tt.want) {
				t.Fatalf("calls = %v, want %v", ctrl.calls, tt.want)
			}
			for i := range tt.want {
				if ctrl.calls[i] != tt.want[i] {
					t.Errorf("calls = %v, want %v", ctrl.calls, tt.want)
					break
				}
			}
			if ctrl.recording != tt.recAt {
				t.Errorf("recording = %v, want %v", ctrl.recording, tt.recAt)
			}
		})
	}
}

func TestDriveStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Drive(ctx, make(chan Event), &fakeController{})
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Drive did not return after cancel")
	}
}

func TestEventTypeString(t *testing.T) {
	if EventToggle.String() != "toggle" || EventType(9).String() != "unknown" {
		t.Error("unexpected EventType strings")
	}
}

func TestListenerStopIdempotent(t *testing.T) {
	l := NewListener([]string{"ctrl", "shift", "space"}, "toggle")
	l.Stop()
	l.Stop()
	if l.Events() == nil {
		t.Error("Events() should not be nil")
	}
}
