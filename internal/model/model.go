// Package model defines the domain types used across the application.
package model

import "time"

// ListingEntry is an article discovered on the listing page, before its
// detail page has been fetched.
type ListingEntry struct {
	Title string
	Link  string
	// DateText is the raw timestamp string shown next to the link, if any.
	DateText string
}

// FeedItem is a single resolved article.
type FeedItem struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	PublishDate time.Time `json:"publish_date"`
	Description string    `json:"description,omitempty"`
	// Degraded is set when Description is a placeholder for a failed fetch.
	Degraded bool `json:"degraded,omitempty"`
}

// ItemFromEntry starts a FeedItem from a listing entry.
func ItemFromEntry(e ListingEntry) FeedItem {
	return FeedItem{Title: e.Title, Link: e.Link}
}

// Feed is the assembled result of one pipeline invocation.
type Feed struct {
	Title       string
	Link        string
	Description string
	Language    string
	Updated     time.Time
	Items       []FeedItem
}

// DegradedCount returns how many items carry a placeholder description.
func (f *Feed) DegradedCount() int {
	n := 0
	for _, it := range f.Items {
		if it.Degraded {
			n++
		}
	}
	return n
}
