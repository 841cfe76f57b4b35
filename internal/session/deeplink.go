package session

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// DeepLinkScheme is the URL scheme handled by ParseDeepLink.
const DeepLinkScheme = "gostt"

// ErrInvalidDeepLink is returned for URLs that are not gostt://mode/<key>?text=...
var ErrInvalidDeepLink = errors.New("invalid deep link")

// DeepLink is a parsed gostt://mode/<key>?text=<text> URL.
type DeepLink struct {
	ModeKey string
	Text    string
}

// ParseDeepLink parses raw into a mode key and text.
func ParseDeepLink(raw string) (DeepLink, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return DeepLink{}, fmt.Errorf("%w: %w", ErrInvalidDeepLink, err)
	}
	if u.Scheme != DeepLinkScheme {
		return DeepLink{}, fmt.Errorf("%w: scheme %q", ErrInvalidDeepLink, u.Scheme)
	}
	if u.Host != "mode" {
		return DeepLink{}, fmt.Errorf("%w: unknown action %q", ErrInvalidDeepLink, u.Host)
	}

	key := strings.Trim(u.Path, "/")
	if key == "" || strings.Contains(key, "/") {
		return DeepLink{}, fmt.Errorf("%w: mode key %q", ErrInvalidDeepLink, key)
	}

	text := u.Query().Get("text")
	if strings.TrimSpace(text) == "" {
		return DeepLink{}, fmt.Errorf("%w: missing text", ErrInvalidDeepLink)
	}
	return DeepLink{ModeKey: key, Text: text}, nil
}
