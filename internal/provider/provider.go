// Package provider gives uniform access to speech-to-text and language-model
// backends. Backends register a factory under a provider id; the registry
// resolves an id to a client at call time, checks credentials before any
// network call and retries transient failures once.
package provider

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnknownProvider is returned for ids with no registration.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrCredentialMissing is returned before any network call when the
	// provider needs a secret and none is stored.
	ErrCredentialMissing = errors.New("credential missing")
	// ErrProviderUnavailable is matched by *UnavailableError.
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// Audio is mono PCM at SampleRate. Providers receive audio.TargetRate.
type Audio struct {
	Samples    []float32
	SampleRate int
}

// STT transcribes speech.
type STT interface {
	Name() string
	Transcribe(ctx context.Context, audio Audio, model, language string) (string, error)
}

// LLM completes a rendered prompt.
type LLM interface {
	Name() string
	Complete(ctx context.Context, prompt, model string) (string, error)
}

// UnavailableError reports a provider that could not be reached after the
// retry.
type UnavailableError struct {
	Provider string
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("provider %s unavailable: %v", e.Provider, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is reports ErrProviderUnavailable so callers can use errors.Is.
func (e *UnavailableError) Is(target error) bool { return target == ErrProviderUnavailable }

// StatusError is an HTTP failure returned by a provider API.
type StatusError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("http %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("http %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error { return e.Err }
