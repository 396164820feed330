// Package listing extracts article entries from a listing page. HTML pages
// are read with the site's selectors; RSS, Atom and JSON feeds are read with
// gofeed.
package listing

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"sitefeed/internal/model"
	"sitefeed/internal/site"
)

// ErrNoEntries is returned when the listing structure is missing from the page.
var ErrNoEntries = errors.New("no listing entries found")

// dateTextLayout is the form feed dates are rendered in for the date extractor.
const dateTextLayout = "2006-01-02 15:04:05"

// Parse returns the entries on a listing page in document order. Links are
// returned as found; resolving them is the caller's job.
func Parse(body []byte, contentType string, p *site.Profile) ([]model.ListingEntry, error) {
	if isFeed(body, contentType) {
		return parseFeed(body, p)
	}
	return parseHTML(body, p)
}

func isFeed(body []byte, contentType string) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "html") {
		return false
	}
	if strings.Contains(ct, "rss") || strings.Contains(ct, "atom") || strings.Contains(ct, "feed+json") {
		return true
	}
	return gofeed.DetectFeedType(bytes.NewReader(body)) != gofeed.FeedTypeUnknown
}

func parseHTML(body []byte, p *site.Profile) ([]model.ListingEntry, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing html: %w", err)
	}

	items := doc.Find(p.Listing.ItemSelector)
	if items.Length() == 0 {
		return nil, fmt.Errorf("%w: selector %q matched nothing", ErrNoEntries, p.Listing.ItemSelector)
	}

	entries := make([]model.ListingEntry, 0, items.Length())
	items.Each(func(_ int, item *goquery.Selection) {
		a := item.Find(p.Listing.LinkSelector).First()
		if a.Length() == 0 {
			if !item.Is(p.Listing.LinkSelector) {
				return
			}
			a = item
		}

		href, _ := a.Attr("href")
		title := strings.TrimSpace(a.Text())
		if title == "" {
			title = strings.TrimSpace(a.AttrOr("title", ""))
		}

		var dateText string
		if p.Listing.DateSelector != "" {
			dateText = strings.TrimSpace(item.Find(p.Listing.DateSelector).First().Text())
		}

		entries = append(entries, model.ListingEntry{
			Title:    title,
			Link:     strings.TrimSpace(href),
			DateText: dateText,
		})
	})
	return entries, nil
}

func parseFeed(body []byte, p *site.Profile) ([]model.ListingEntry, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing feed: %w", err)
	}
	if len(feed.Items) == 0 {
		return nil, fmt.Errorf("%w: feed has no items", ErrNoEntries)
	}

	entries := make([]model.ListingEntry, 0, len(feed.Items))
	for _, it := range feed.Items {
		link := it.Link
		if link == "" && len(it.Links) > 0 {
			link = it.Links[0]
		}
		var dateText string
		switch {
		case it.PublishedParsed != nil:
			dateText = it.PublishedParsed.In(p.Location()).Format(dateTextLayout)
		case it.UpdatedParsed != nil:
			dateText = it.UpdatedParsed.In(p.Location()).Format(dateTextLayout)
		}
		entries = append(entries, model.ListingEntry{
			Title:    strings.TrimSpace(it.Title),
			Link:     strings.TrimSpace(link),
			DateText: dateText,
		})
	}
	return entries, nil
}
