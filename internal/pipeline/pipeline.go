// Package pipeline turns a site's listing page into a feed: it fetches the
// listing, resolves each linked article through the shared cache and
// assembles the items in listing order.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"sitefeed/internal/cache"
	"sitefeed/internal/listing"
	"sitefeed/internal/metrics"
	"sitefeed/internal/model"
	"sitefeed/internal/pubdate"
	"sitefeed/internal/sanitize"
	"sitefeed/internal/site"
	"sitefeed/internal/transport"
	"sitefeed/internal/urlnorm"
)

// ErrListingFetch is wrapped by every error Run returns.
var ErrListingFetch = errors.New("listing fetch failed")

// FailurePrefix starts the description of a degraded item.
const FailurePrefix = "Failed to fetch article: "

// Defaults for Config.
const (
	DefaultConcurrency = 5
	DefaultLimit       = 10
	DefaultMaxLimit    = 50
)

// State is a stage of one Run.
type State int

// Run states in order. Failed is reachable from Idle and ListingFetched only.
const (
	StateIdle State = iota
	StateListingFetched
	StateLinksNormalized
	StateDetailsResolving
	StateAssembled
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListingFetched:
		return "listing_fetched"
	case StateLinksNormalized:
		return "links_normalized"
	case StateDetailsResolving:
		return "details_resolving"
	case StateAssembled:
		return "assembled"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ListingError reports a fatal failure and the state the run was in.
type ListingError struct {
	State State
	URL   string
	Err   error
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("%v (%s, state %s): %v", ErrListingFetch, e.URL, e.State, e.Err)
}

func (e *ListingError) Unwrap() []error { return []error{ErrListingFetch, e.Err} }

// Config tunes a Pipeline.
type Config struct {
	// Concurrency bounds detail fetches in flight per run.
	Concurrency  int
	DefaultLimit int
	MaxLimit     int
	// Fetch is applied to every request; headers are merged with the profile's.
	Fetch transport.Options
	// Now is the clock for fallback dates and feed timestamps.
	Now func() time.Time
}

// Pipeline produces feeds for one site profile.
type Pipeline struct {
	profile   *site.Profile
	transport transport.Transport
	cache     *cache.Keyed[model.FeedItem]
	sanitizer *sanitize.Sanitizer
	dates     *pubdate.Extractor
	cfg       Config
	log       *slog.Logger
	metrics   *metrics.Metrics
}

// New creates a Pipeline. The cache is shared with other pipelines and runs.
func New(profile *site.Profile, tr transport.Transport, c *cache.Keyed[model.FeedItem], cfg Config, log *slog.Logger, m *metrics.Metrics) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = DefaultMaxLimit
	}
	if cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = cfg.MaxLimit
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	dates := pubdate.New(profile.Location())
	dates.Now = cfg.Now
	dates.Keys = profile.Detail.MetaKeys

	return &Pipeline{
		profile:   profile,
		transport: tr,
		cache:     c,
		sanitizer: sanitize.New(profile.Detail.Denylist, sanitize.WithReadabilityFallback(profile.Detail.ReadabilityFallback)),
		dates:     dates,
		cfg:       cfg,
		log:       log,
		metrics:   m,
	}
}

// ClampLimit maps a requested limit onto [1, MaxLimit]; zero or negative
// selects the default.
func (p *Pipeline) ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return p.cfg.DefaultLimit
	case limit > p.cfg.MaxLimit:
		return p.cfg.MaxLimit
	}
	return limit
}

// Run builds a feed of at most limit items. Only listing-stage failures are
// returned; detail failures become degraded items.
func (p *Pipeline) Run(ctx context.Context, limit int) (*model.Feed, error) {
	start := time.Now()
	r := &run{Pipeline: p, log: p.log.With("site", p.profile.Name)}

	feed, err := r.execute(ctx, p.ClampLimit(limit))
	if err != nil {
		p.metrics.Pipeline("error", time.Since(start))
		return nil, err
	}

	degraded := feed.DegradedCount()
	p.metrics.Items(len(feed.Items)-degraded, degraded)
	p.metrics.Pipeline("ok", time.Since(start))
	r.log.Info("feed assembled", "items", len(feed.Items), "degraded", degraded, "duration", time.Since(start))
	return feed, nil
}

type run struct {
	*Pipeline
	log   *slog.Logger
	state State
}

func (r *run) to(s State) {
	r.log.Debug("pipeline state", "from", r.state, "to", s)
	r.state = s
}

func (r *run) fail(url string, err error) error {
	failed := &ListingError{State: r.state, URL: url, Err: err}
	r.to(StateFailed)
	r.log.Error("listing stage failed", "url", url, "state", failed.State, "error", err)
	return failed
}

func (r *run) execute(ctx context.Context, limit int) (*model.Feed, error) {
	listingURL := r.profile.ListingURL

	sess, err := r.transport.Open(ctx)
	if err != nil {
		return nil, r.fail(listingURL, fmt.Errorf("open %s transport: %w", r.transport.Name(), err))
	}
	defer func() {
		if err := sess.Close(); err != nil {
			r.log.Warn("close transport session", "error", err)
		}
	}()

	page, err := sess.Fetch(ctx, listingURL, r.fetchOptions(""))
	if err != nil {
		return nil, r.fail(listingURL, err)
	}
	r.to(StateListingFetched)

	entries, err := listing.Parse(page.Body, page.ContentType, r.profile)
	if err != nil {
		return nil, r.fail(listingURL, err)
	}
	entries = r.normalize(entries)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	r.to(StateLinksNormalized)

	r.to(StateDetailsResolving)
	items := r.resolveAll(ctx, sess, r.profile.RefererFor(listingURL), entries)

	feed := &model.Feed{
		Title:       r.profile.Title,
		Link:        listingURL,
		Description: r.profile.Description,
		Language:    r.profile.Language,
		Updated:     r.cfg.Now(),
		Items:       items,
	}
	r.to(StateAssembled)
	r.to(StateDone)
	return feed, nil
}

// normalize resolves entry links against the site root, dropping entries
// whose link cannot be resolved and repeats of an earlier link.
func (r *run) normalize(entries []model.ListingEntry) []model.ListingEntry {
	seen := make(map[string]struct{}, len(entries))
	out := make([]model.ListingEntry, 0, len(entries))
	for _, e := range entries {
		link, err := urlnorm.Normalize(e.Link, r.profile.RootURL)
		if err != nil {
			r.log.Debug("dropping listing entry", "href", e.Link, "title", e.Title, "error", err)
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		e.Link = link
		if e.Title == "" {
			e.Title = link
		}
		out = append(out, e)
	}
	return out
}

func (r *run) resolveAll(ctx context.Context, sess transport.Session, referer string, entries []model.ListingEntry) []model.FeedItem {
	items := make([]model.FeedItem, len(entries))
	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for i, e := range entries {
		g.Go(func() error {
			items[i] = r.resolve(ctx, sess, referer, e)
			return nil
		})
	}
	_ = g.Wait()
	return items
}

func (r *run) resolve(ctx context.Context, sess transport.Session, referer string, e model.ListingEntry) model.FeedItem {
	item, err := r.cache.GetOrCompute(ctx, e.Link, func(ctx context.Context) (model.FeedItem, error) {
		return r.fetchDetail(ctx, sess, referer, e)
	})
	if err != nil {
		r.log.Warn("detail fetch failed", "url", e.Link, "error", err)
		return r.degraded(e, err)
	}
	return item
}

func (r *run) degraded(e model.ListingEntry, err error) model.FeedItem {
	item := model.ItemFromEntry(e)
	item.PublishDate = r.dates.Extract([]string{e.DateText}, nil)
	item.Description = FailurePrefix + html.EscapeString(err.Error())
	item.Degraded = true
	return item
}

func (r *run) fetchDetail(ctx context.Context, sess transport.Session, referer string, e model.ListingEntry) (model.FeedItem, error) {
	page, err := sess.Fetch(ctx, e.Link, r.fetchOptions(referer))
	if err != nil {
		return model.FeedItem{}, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return model.FeedItem{}, fmt.Errorf("parse detail page: %w", err)
	}

	var candidates []string
	for _, sel := range r.profile.Detail.DateSelectors {
		if text := strings.TrimSpace(doc.Find(sel).Text()); text != "" {
			candidates = append(candidates, text)
		}
	}
	if e.DateText != "" {
		candidates = append(candidates, e.DateText)
	}
	meta := metaFields(doc, r.dates.Keys)

	base := page.URL
	if base == "" {
		base = e.Link
	}

	item := model.ItemFromEntry(e)
	item.PublishDate = r.dates.Extract(candidates, meta)
	item.Description = r.sanitizer.SanitizeDocument(doc, r.profile.Detail.ContentSelector, base)
	item.Degraded = item.Description == sanitize.NoContent
	return item, nil
}

func (r *run) fetchOptions(referer string) transport.Options {
	opts := r.cfg.Fetch
	headers := opts.Headers.Clone()
	if headers == nil {
		headers = make(http.Header)
	}
	for k, v := range r.profile.Detail.Headers {
		headers.Set(k, v)
	}
	if referer != "" {
		headers.Set("Referer", referer)
	}
	opts.Headers = headers
	return opts
}

// metaFields reads <meta> and <time> values for keys, matching the property,
// name and itemprop attributes.
func metaFields(doc *goquery.Document, keys []string) map[string]string {
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		q := fmt.Sprintf(`meta[property=%q], meta[name=%q], meta[itemprop=%q]`, key, key, key)
		if v, ok := doc.Find(q).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
			out[key] = v
			continue
		}
		if v, ok := doc.Find(fmt.Sprintf(`time[itemprop=%q]`, key)).First().Attr("datetime"); ok {
			out[key] = v
		}
	}
	if _, ok := out["pubdate"]; !ok {
		if v, ok := doc.Find("time[pubdate]").First().Attr("datetime"); ok {
			out["pubdate"] = v
		}
	}
	return out
}
