package inject

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"
)

type fakeClipboard struct {
	text     string
	writes   int
	writeErr error
	readErr  error
}

func (c *fakeClipboard) ReadAll() (string, error) { return c.text, c.readErr }

func (c *fakeClipboard) WriteAll(text string) error {
	if c.writeErr != nil {
		return c.writeErr
	}
	c.writes++
	c.text = text
	return nil
}

type fakeKeyboard struct {
	typed    []string
	pastes   int
	pasteErr error
}

func (k *fakeKeyboard) Type(text string) { k.typed = append(k.typed, text) }

func (k *fakeKeyboard) Paste() error {
	k.pastes++
	return k.pasteErr
}

func TestDeliver(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		autoPaste  bool
		wantClip   string
		wantPastes int
		wantTyped  int
	}{
		{"paste", MethodPaste, true, "hello", 1, 0},
		{"paste without auto-paste", MethodPaste, false, "hello", 0, 0},
		{"type", MethodType, true, "previous", 0, 1},
		{"type without auto-paste", MethodType, false, "hello", 0, 0},
		{"clipboard", MethodClipboard, true, "hello", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clip := &fakeClipboard{text: "previous"}
			keys := &fakeKeyboard{}
			inj := newInjector(tt.method, 0, clip, keys)

			if err := inj.Deliver(context.Background(), "hello", tt.autoPaste); err != nil {
				t.Fatalf("Deliver: %v", err)
			}
			if clip.text != tt.wantClip {
				t.Errorf("clipboard = %q, want %q", clip.text, tt.wantClip)
			}
			if keys.pastes != tt.wantPastes {
				t.Errorf("pastes = %d, want %d", keys.pastes, tt.wantPastes)
			}
			if len(keys.typed) != tt.wantTyped {
				t.Errorf("typed = %q", keys.typed)
			}
		})
	}
}

func TestDeliverEmpty(t *testing.T) {
	clip := &fakeClipboard{}
	keys := &fakeKeyboard{}
	if err := newInjector(MethodPaste, 0, clip, keys).Deliver(context.Background(), "", true); err != nil {
		t.Fatal(err)
	}
	if clip.writes != 0 || keys.pastes != 0 {
		t.Error("empty text should not be delivered")
	}
}

func TestDeliverErrors(t *testing.T) {
	boom := errors.New("boom")

	inj := newInjector(MethodPaste, 0, &fakeClipboard{writeErr: boom}, &fakeKeyboard{})
	if err := inj.Deliver(context.Background(), "x", true); !errors.Is(err, boom) {
		t.Errorf("clipboard failure = %v", err)
	}

	inj = newInjector(MethodPaste, 0, &fakeClipboard{}, &fakeKeyboard{pasteErr: boom})
	if err := inj.Deliver(context.Background(), "x", true); !errors.Is(err, boom) {
		t.Errorf("paste failure = %v", err)
	}
}

func TestDeliverCanceledDuringDelay(t *testing.T) {
	keys := &fakeKeyboard{}
	inj := newInjector(MethodPaste, time.Hour, &fakeClipboard{}, keys)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := inj.Deliver(ctx, "x", true); !errors.Is(err, context.Canceled) {
		t.Fatalf("Deliver() = %v, want context.Canceled", err)
	}
	if keys.pastes != 0 {
		t.Error("paste should not fire after cancel")
	}
}

func TestReadText(t *testing.T) {
	inj := newInjector(MethodPaste, 0, &fakeClipboard{text: "context"}, &fakeKeyboard{})
	got, err := inj.ReadText()
	if err != nil || got != "context" {
		t.Errorf("ReadText() = %q, %v", got, err)
	}

	inj = newInjector(MethodPaste, 0, &fakeClipboard{readErr: errors.New("no clipboard")}, &fakeKeyboard{})
	if _, err := inj.ReadText(); err == nil {
		t.Error("ReadText() should surface clipboard errors")
	}
}

func TestPasteModifier(t *testing.T) {
	want := "ctrl"
	if runtime.GOOS == "darwin" {
		want = "cmd"
	}
	if got := pasteModifier(); got != want {
		t.Errorf("pasteModifier() = %q, want %q", got, want)
	}
}
