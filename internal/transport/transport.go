// Package transport retrieves raw pages, either with a plain HTTP client or
// through a rendering browser.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrBlocked marks a response that looks like an anti-bot block or challenge.
var ErrBlocked = errors.New("blocked by target site")

// Kind classifies a fetch failure.
type Kind int

// Fetch failure kinds.
const (
	KindNetwork Kind = iota
	KindTimeout
	KindHTTPStatus
	KindBlocked
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindHTTPStatus:
		return "http_status"
	case KindBlocked:
		return "blocked"
	default:
		return "network"
	}
}

// FetchError is returned by every Fetcher.
type FetchError struct {
	Kind   Kind
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
	case KindBlocked:
		return fmt.Sprintf("fetch %s: %v", e.URL, ErrBlocked)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrBlocked) match blocked responses.
func (e *FetchError) Is(target error) bool {
	return target == ErrBlocked && e.blocked()
}

func (e *FetchError) blocked() bool {
	if e.Kind == KindBlocked {
		return true
	}
	if e.Kind != KindHTTPStatus {
		return false
	}
	switch e.Status {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	}
	return false
}

// retryable reports whether another attempt may succeed.
func (e *FetchError) retryable() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout:
		return true
	case KindHTTPStatus:
		switch e.Status {
		case http.StatusRequestTimeout, http.StatusTooManyRequests,
			http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}

// IsBlocked reports whether err came from an anti-bot response.
func IsBlocked(err error) bool {
	return errors.Is(err, ErrBlocked)
}

// Options are per-call fetch settings. Zero values use the transport defaults.
type Options struct {
	Headers http.Header
	Timeout time.Duration
	// Retries bounds extra attempts; negative disables retries.
	Retries int
}

// Page is a fetched document.
type Page struct {
	URL         string
	Status      int
	ContentType string
	Body        []byte
}

// Fetcher retrieves one page.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts Options) (*Page, error)
}

// Session is a Fetcher scoped to one pipeline invocation.
type Session interface {
	Fetcher
	Close() error
}

// Transport opens sessions. It is chosen once, at construction.
type Transport interface {
	Name() string
	Open(ctx context.Context) (Session, error)
}

var challengeMarkers = [][]byte{
	[]byte("cf-browser-verification"),
	[]byte("cf_chl_opt"),
	[]byte("challenge-platform"),
	[]byte("<title>Just a moment...</title>"),
	[]byte("acw_sc__v2"),
	[]byte("_waf_bd8ce2ce37"),
	[]byte("g-recaptcha"),
}

// IsChallenge reports whether body looks like an anti-bot interstitial.
func IsChallenge(body []byte) bool {
	head := body
	if len(head) > 64*1024 {
		head = head[:64*1024]
	}
	for _, m := range challengeMarkers {
		if bytes.Contains(head, m) {
			return true
		}
	}
	return false
}

func timeoutOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
