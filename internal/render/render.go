// Package render serializes assembled feeds as RSS 2.0, Atom or JSON Feed.
package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gorilla/feeds"

	"sitefeed/internal/model"
)

// ErrUnknownFormat is returned by ParseFormat.
var ErrUnknownFormat = errors.New("unknown feed format")

const generator = "sitefeed"

// Format is an output format.
type Format string

// Supported formats.
const (
	RSS  Format = "rss"
	Atom Format = "atom"
	JSON Format = "json"
)

// ParseFormat maps a name to a Format. Empty selects RSS.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return RSS, nil
	case RSS, Atom, JSON:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ContentType is the response media type for f.
func (f Format) ContentType() string {
	switch f {
	case Atom:
		return "application/atom+xml; charset=utf-8"
	case JSON:
		return "application/feed+json; charset=utf-8"
	default:
		return "application/rss+xml; charset=utf-8"
	}
}

// Write encodes feed to w in format f.
func Write(w io.Writer, feed *model.Feed, f Format) error {
	src := toFeed(feed)

	var err error
	switch f {
	case RSS, "":
		rss := (&feeds.Rss{Feed: src}).RssFeed()
		rss.Language = feed.Language
		rss.Generator = generator
		err = feeds.WriteXML(rss, w)
	case Atom:
		err = feeds.WriteXML(&feeds.Atom{Feed: src}, w)
	case JSON:
		jf := (&feeds.JSON{Feed: src}).JSONFeed()
		jf.Language = feed.Language
		for _, it := range jf.Items {
			it.ContentHTML = it.Summary
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(jf)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
	if err != nil {
		return fmt.Errorf("write %s feed: %w", f, err)
	}
	return nil
}

func toFeed(f *model.Feed) *feeds.Feed {
	out := &feeds.Feed{
		Title:       f.Title,
		Link:        &feeds.Link{Href: f.Link},
		Description: f.Description,
		Updated:     f.Updated,
		Id:          f.Link,
		Items:       make([]*feeds.Item, 0, len(f.Items)),
	}
	for _, it := range f.Items {
		out.Items = append(out.Items, &feeds.Item{
			Title:       it.Title,
			Link:        &feeds.Link{Href: it.Link},
			Description: it.Description,
			Id:          it.Link,
			IsPermaLink: "true",
			Created:     it.PublishDate,
		})
	}
	return out
}
