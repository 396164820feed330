// Package urlnorm resolves and canonicalizes links found in scraped pages.
package urlnorm

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrEmpty is returned for an empty or whitespace-only href.
var ErrEmpty = errors.New("empty href")

// Error describes an href that could not be turned into an absolute URL.
type Error struct {
	Href   string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("normalize %q: %s: %v", e.Href, e.Reason, e.Err)
	}
	return fmt.Sprintf("normalize %q: %s", e.Href, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Normalize resolves href against base and returns the canonical absolute URL.
// Only http and https URLs with a host are accepted. The fragment is dropped
// and scheme and host are lower-cased.
func Normalize(href, base string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", &Error{Href: href, Reason: "missing", Err: ErrEmpty}
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", &Error{Href: href, Reason: "parse href", Err: err}
	}

	if !ref.IsAbs() {
		baseURL, err := url.Parse(strings.TrimSpace(base))
		if err != nil {
			return "", &Error{Href: href, Reason: "parse base", Err: err}
		}
		if !baseURL.IsAbs() {
			return "", &Error{Href: href, Reason: "base is not absolute"}
		}
		ref = baseURL.ResolveReference(ref)
	}

	ref.Scheme = strings.ToLower(ref.Scheme)
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return "", &Error{Href: href, Reason: "unsupported scheme " + ref.Scheme}
	}
	if ref.Host == "" {
		return "", &Error{Href: href, Reason: "missing host"}
	}
	ref.Host = strings.ToLower(ref.Host)
	ref.Fragment = ""
	ref.RawFragment = ""

	return ref.String(), nil
}

// ValidateBase reports whether base can be used to resolve relative links.
func ValidateBase(base string) error {
	u, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("parse base url: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("base url %q is not absolute", base)
	}
	return nil
}
