// Package inject delivers text to the desktop: it always lands on the
// clipboard and, when auto-paste is on, is pasted or typed into the active
// application with robotgo.
package inject

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/atotto/clipboard"
	"github.com/go-vgo/robotgo"
)

// Delivery methods.
const (
	MethodPaste     = "paste"     // clipboard then the paste shortcut
	MethodType      = "type"      // keystroke simulation, clipboard untouched
	MethodClipboard = "clipboard" // clipboard only
)

// Clipboard reads and writes the system clipboard.
type Clipboard interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

// Keyboard simulates input in the focused application.
type Keyboard interface {
	Type(text string)
	Paste() error
}

// Injector handles delivering text into the active application.
type Injector struct {
	method     string
	pasteDelay time.Duration
	clip       Clipboard
	keys       Keyboard
}

// NewInjector creates an Injector for the system clipboard and keyboard.
// pasteDelay is the pause between writing the clipboard and pasting.
func NewInjector(method string, pasteDelay time.Duration) *Injector {
	return newInjector(method, pasteDelay, systemClipboard{}, robotKeyboard{})
}

func newInjector(method string, pasteDelay time.Duration, clip Clipboard, keys Keyboard) *Injector {
	return &Injector{method: method, pasteDelay: pasteDelay, clip: clip, keys: keys}
}

// Deliver sends text to the desktop. Without autoPaste, or with the
// clipboard method, it only updates the clipboard.
func (inj *Injector) Deliver(ctx context.Context, text string, autoPaste bool) error {
	if text == "" {
		return nil
	}

	if inj.method == MethodType && autoPaste {
		inj.keys.Type(text)
		return nil
	}

	if err := inj.clip.WriteAll(text); err != nil {
		return fmt.Errorf("inject: write to clipboard: %w", err)
	}
	if !autoPaste || inj.method == MethodClipboard {
		return nil
	}

	// Give the clipboard owner time to publish before the shortcut fires.
	select {
	case <-time.After(inj.pasteDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := inj.keys.Paste(); err != nil {
		return fmt.Errorf("inject: paste: %w", err)
	}
	return nil
}

// ReadText returns the clipboard contents, used as context for
// context-aware modes.
func (inj *Injector) ReadText() (string, error) {
	text, err := inj.clip.ReadAll()
	if err != nil {
		return "", fmt.Errorf("inject: read clipboard: %w", err)
	}
	return text, nil
}

type systemClipboard struct{}

func (systemClipboard) ReadAll() (string, error)   { return clipboard.ReadAll() }
func (systemClipboard) WriteAll(text string) error { return clipboard.WriteAll(text) }

type robotKeyboard struct{}

func (robotKeyboard) Type(text string) { robotgo.Type(text) }

func (robotKeyboard) Paste() error {
	return robotgo.KeyTap("v", pasteModifier())
}

// pasteModifier is the platform's paste shortcut modifier.
func pasteModifier() string {
	if runtime.GOOS == "darwin" {
		return "cmd"
	}
	return "ctrl"
}
