// Package pubdate extracts article publish dates from loosely structured text.
package pubdate

import (
	"regexp"
	"strings"
	"time"
)

var datePattern = regexp.MustCompile(`(\d{4})[-/](\d{2})[-/](\d{2})(?:[ T](\d{2}):(\d{2})(?::(\d{2}))?)?`)

// MetaKeys is the priority order in which metadata fields are consulted.
var MetaKeys = []string{
	"article:published_time",
	"og:published_time",
	"datePublished",
	"pubdate",
	"date",
}

var metaLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// Extractor turns candidate strings into a timestamp. The zero value parses
// in UTC and falls back to time.Now.
type Extractor struct {
	Location *time.Location
	Now      func() time.Time
	// Keys overrides the metadata priority order; nil uses MetaKeys.
	Keys []string
}

// New returns an Extractor that interprets dates in loc.
func New(loc *time.Location) *Extractor {
	return &Extractor{Location: loc}
}

// Extract tries each candidate text in order, then the metadata fields in
// key priority order. When nothing parses it returns the current time.
func (e *Extractor) Extract(candidates []string, meta map[string]string) time.Time {
	for _, c := range candidates {
		if t, ok := e.FromText(c); ok {
			return t
		}
	}
	for _, key := range e.keys() {
		v := strings.TrimSpace(meta[key])
		if v == "" {
			continue
		}
		if t, ok := e.fromMeta(v); ok {
			return t
		}
	}
	return e.now()
}

// FromText finds the first date-shaped substring in s.
func (e *Extractor) FromText(s string) (time.Time, bool) {
	for _, m := range datePattern.FindAllStringSubmatch(s, -1) {
		value := m[1] + "-" + m[2] + "-" + m[3]
		layout := "2006-01-02"
		if m[4] != "" {
			value += " " + m[4] + ":" + m[5]
			layout += " 15:04"
			if m[6] != "" {
				value += ":" + m[6]
				layout += ":05"
			}
		}
		t, err := time.ParseInLocation(layout, value, e.location())
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (e *Extractor) fromMeta(v string) (time.Time, bool) {
	for _, layout := range metaLayouts {
		if t, err := time.ParseInLocation(layout, v, e.location()); err == nil {
			return t, true
		}
	}
	return e.FromText(v)
}

func (e *Extractor) location() *time.Location {
	if e.Location == nil {
		return time.UTC
	}
	return e.Location
}

func (e *Extractor) keys() []string {
	if e.Keys == nil {
		return MetaKeys
	}
	return e.Keys
}

func (e *Extractor) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}
