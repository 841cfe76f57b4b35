package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"syscall"
	"time"
)

type retrySTT struct {
	id      string
	inner   STT
	backoff time.Duration
}

func (s *retrySTT) Name() string { return s.id }

func (s *retrySTT) Transcribe(ctx context.Context, a Audio, model, language string) (string, error) {
	return callOnceMore(ctx, s.id, s.backoff, func() (string, error) {
		return s.inner.Transcribe(ctx, a, model, language)
	})
}

type retryLLM struct {
	id      string
	inner   LLM
	backoff time.Duration
}

func (l *retryLLM) Name() string { return l.id }

func (l *retryLLM) Complete(ctx context.Context, prompt, model string) (string, error) {
	return callOnceMore(ctx, l.id, l.backoff, func() (string, error) {
		return l.inner.Complete(ctx, prompt, model)
	})
}

// callOnceMore runs fn and, if it fails transiently, runs it exactly one
// more time after backoff. A transient failure that survives the retry
// becomes an *UnavailableError.
func callOnceMore(ctx context.Context, id string, backoff time.Duration, fn func() (string, error)) (string, error) {
	out, err := fn()
	if err == nil {
		return out, nil
	}
	if !IsTransient(err) {
		return "", fmt.Errorf("provider %s: %w", id, err)
	}
	if ctx.Err() != nil {
		return "", &UnavailableError{Provider: id, Err: err}
	}

	slog.Warn("[Provider] transient failure, retrying once", "provider", id, "error", err, "backoff", backoff)

	if backoff > 0 {
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", &UnavailableError{Provider: id, Err: err}
		case <-t.C:
		}
	}

	out, err = fn()
	if err == nil {
		return out, nil
	}
	if IsTransient(err) {
		return "", &UnavailableError{Provider: id, Err: err}
	}
	return "", fmt.Errorf("provider %s: %w", id, err)
}

// IsTransient reports whether err is a connection-level failure worth one
// retry: refused or reset connections, timeouts, unexpected EOF and gateway
// errors. Authentication and validation failures are not transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrCredentialMissing) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		case 0:
			// No status means the request never completed; fall through to
			// the wrapped network error.
		default:
			return false
		}
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && (dnsErr.IsTemporary || dnsErr.IsTimeout) {
		return true
	}
	return false
}
