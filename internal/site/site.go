// Package site describes a target website: where its listing lives, which
// selectors pick entries and article bodies, and how dates are read.
package site

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"
	_ "time/tzdata" // zone data for minimal images

	"gopkg.in/yaml.v3"

	"sitefeed/internal/pubdate"
	"sitefeed/internal/sanitize"
	"sitefeed/internal/urlnorm"
)

// Profile validation errors.
var (
	ErrMissingTitle           = errors.New("title is required")
	ErrMissingListingURL      = errors.New("listing_url is required")
	ErrInvalidListingURL      = errors.New("listing_url must be an absolute http(s) URL")
	ErrInvalidRootURL         = errors.New("root_url must be an absolute http(s) URL")
	ErrMissingItemSelector    = errors.New("listing.item_selector is required")
	ErrMissingContentSelector = errors.New("detail.content_selector is required")
	ErrInvalidTimezone        = errors.New("timezone is not a known IANA zone")
	ErrInvalidReferer         = errors.New("detail.referer must be 'listing', 'none' or an absolute URL")
)

// Referer modes for DetailConfig.Referer.
const (
	RefererListing = "listing"
	RefererNone    = "none"
)

//go:embed profiles/biancheng.yaml
var defaultProfile []byte

// Profile is one target site.
type Profile struct {
	Name        string        `yaml:"name"`
	Title       string        `yaml:"title"`
	Description string        `yaml:"description"`
	Language    string        `yaml:"language"`
	RootURL     string        `yaml:"root_url"`
	ListingURL  string        `yaml:"listing_url"`
	Listing     ListingConfig `yaml:"listing"`
	Detail      DetailConfig  `yaml:"detail"`
	Timezone    string        `yaml:"timezone"`

	location *time.Location
}

// ListingConfig locates entries on the listing page.
type ListingConfig struct {
	ItemSelector string `yaml:"item_selector"`
	// LinkSelector is matched inside each item; defaults to "a".
	LinkSelector string `yaml:"link_selector"`
	// DateSelector is matched inside each item for an adjacent timestamp.
	DateSelector string `yaml:"date_selector"`
}

// DetailConfig describes article pages.
type DetailConfig struct {
	ContentSelector     string            `yaml:"content_selector"`
	Denylist            []string          `yaml:"denylist"`
	DateSelectors       []string          `yaml:"date_selectors"`
	MetaKeys            []string          `yaml:"meta_keys"`
	ReadabilityFallback bool              `yaml:"readability_fallback"`
	Referer             string            `yaml:"referer"`
	Headers             map[string]string `yaml:"headers"`
}

// Default returns the built-in profile.
func Default() (*Profile, error) {
	return Parse(defaultProfile)
}

// Load reads a profile from a YAML file. An empty path loads the default.
func Load(path string) (*Profile, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read site profile: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("site profile %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes and validates a YAML profile, filling defaults.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Profile) applyDefaults() {
	if p.RootURL == "" {
		p.RootURL = p.ListingURL
	}
	if p.Listing.LinkSelector == "" {
		p.Listing.LinkSelector = "a"
	}
	if p.Detail.Denylist == nil {
		p.Detail.Denylist = sanitize.DefaultDenylist
	}
	if len(p.Detail.MetaKeys) == 0 {
		p.Detail.MetaKeys = pubdate.MetaKeys
	}
	if p.Detail.Referer == "" {
		p.Detail.Referer = RefererListing
	}
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
}

// Validate checks required fields and resolves the timezone.
func (p *Profile) Validate() error {
	if p.Title == "" {
		return ErrMissingTitle
	}
	if p.ListingURL == "" {
		return ErrMissingListingURL
	}
	if err := urlnorm.ValidateBase(p.ListingURL); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidListingURL, err)
	}
	if err := urlnorm.ValidateBase(p.RootURL); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRootURL, err)
	}
	if p.Listing.ItemSelector == "" {
		return ErrMissingItemSelector
	}
	if p.Detail.ContentSelector == "" {
		return ErrMissingContentSelector
	}
	switch p.Detail.Referer {
	case RefererListing, RefererNone:
	default:
		if err := urlnorm.ValidateBase(p.Detail.Referer); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidReferer, err)
		}
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTimezone, p.Timezone)
	}
	p.location = loc
	return nil
}

// Location returns the profile's timezone. Unvalidated profiles use UTC.
func (p *Profile) Location() *time.Location {
	if p.location == nil {
		return time.UTC
	}
	return p.location
}

// RefererFor returns the Referer header for detail requests, or "".
func (p *Profile) RefererFor(listingURL string) string {
	switch p.Detail.Referer {
	case RefererNone:
		return ""
	case RefererListing, "":
		return listingURL
	}
	return p.Detail.Referer
}
