// Package sanitize cleans article content fragments for feed descriptions.
package sanitize

import (
	"net/url"
	"strings"

	"codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"sitefeed/internal/urlnorm"
)

// NoContent is returned when the content container cannot be found.
const NoContent = "内容获取失败"

// DefaultDenylist removes scripts, styles, ad slots and the prev/next widget.
var DefaultDenylist = []string{"script", "style", ".pre-next", "#ad-arc-top", "#ad-arc-bottom"}

// lazySrcAttrs are checked when an image has no src.
var lazySrcAttrs = []string{"data-src", "data-original"}

// Sanitizer removes noise from a content container and makes image
// references absolute.
type Sanitizer struct {
	policy      *bluemonday.Policy
	denylist    string
	readability bool
}

// Option configures a Sanitizer.
type Option func(*Sanitizer)

// WithReadabilityFallback enables readability extraction when the content
// container is missing from the page.
func WithReadabilityFallback(enabled bool) Option {
	return func(s *Sanitizer) { s.readability = enabled }
}

// New creates a Sanitizer that strips the given selectors. A nil denylist
// uses DefaultDenylist.
func New(denylist []string, opts ...Option) *Sanitizer {
	if denylist == nil {
		denylist = DefaultDenylist
	}
	var parts []string
	for _, d := range denylist {
		if d = strings.TrimSpace(d); d != "" {
			parts = append(parts, d)
		}
	}

	s := &Sanitizer{
		policy:   newPolicy(),
		denylist: strings.Join(parts, ", "),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("article", "section", "figure", "figcaption")
	p.AllowAttrs("class").OnElements("pre", "code", "span", "div", "p")
	p.AllowAttrs("src", "alt", "title", "width", "height").OnElements("img")
	return p
}

// Sanitize selects the container matching selector in rawHTML, strips the
// denylist and rewrites images against base. It returns NoContent when the
// container is missing or empty; it never fails.
func (s *Sanitizer) Sanitize(rawHTML, selector, base string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return NoContent
	}
	return s.SanitizeDocument(doc, selector, base)
}

// SanitizeDocument is Sanitize for an already parsed page. The document is
// modified in place.
func (s *Sanitizer) SanitizeDocument(doc *goquery.Document, selector, base string) string {
	container := doc.Find(selector).First()
	if container.Length() == 0 {
		if s.readability {
			if out := s.fromReadability(doc, base); out != "" {
				return out
			}
		}
		return NoContent
	}
	if out := s.clean(container, base); out != "" {
		return out
	}
	return NoContent
}

func (s *Sanitizer) clean(sel *goquery.Selection, base string) string {
	if s.denylist != "" {
		sel.Find(s.denylist).Remove()
	}
	sel.Find("img").Each(func(_ int, img *goquery.Selection) {
		rewriteImage(img, base)
	})

	inner, err := sel.Html()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s.policy.Sanitize(inner))
}

func rewriteImage(img *goquery.Selection, base string) {
	src, ok := img.Attr("src")
	if !ok || strings.TrimSpace(src) == "" {
		for _, attr := range lazySrcAttrs {
			if v, found := img.Attr(attr); found && strings.TrimSpace(v) != "" {
				src, ok = v, true
				break
			}
		}
	}
	for _, attr := range lazySrcAttrs {
		img.RemoveAttr(attr)
	}
	if !ok {
		return
	}

	abs, err := urlnorm.Normalize(src, base)
	if err != nil {
		img.RemoveAttr("src")
		return
	}
	img.SetAttr("src", abs)
}

func (s *Sanitizer) fromReadability(doc *goquery.Document, base string) string {
	raw, err := doc.Html()
	if err != nil {
		return ""
	}
	pageURL, err := url.Parse(base)
	if err != nil {
		pageURL = nil
	}

	article, err := readability.FromReader(strings.NewReader(raw), pageURL)
	if err != nil {
		return ""
	}
	var buf strings.Builder
	if err := article.RenderHTML(&buf); err != nil {
		return ""
	}

	extracted, err := goquery.NewDocumentFromReader(strings.NewReader(buf.String()))
	if err != nil {
		return ""
	}
	return s.clean(extracted.Find("body"), base)
}
