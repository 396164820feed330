package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"

	"sitefeed/internal/metrics"
)

// Ready is the condition a rendered page must reach before it is read.
type Ready string

// Readiness conditions.
const (
	ReadyDOM         Ready = "dom"
	ReadyNetworkIdle Ready = "networkidle"
)

// ParseReady maps a config value to a Ready condition.
func ParseReady(s string) (Ready, error) {
	switch Ready(s) {
	case "", ReadyDOM:
		return ReadyDOM, nil
	case ReadyNetworkIdle:
		return ReadyNetworkIdle, nil
	}
	return "", fmt.Errorf("unknown readiness condition %q", s)
}

// Browser is a running browser session.
type Browser interface {
	NewTab(ctx context.Context) (Tab, error)
	Close() error
}

// Tab is one browser page.
type Tab interface {
	Load(ctx context.Context, url string, headers http.Header, ready Ready) error
	HTML(ctx context.Context) (string, error)
	Close() error
}

// Launcher starts a Browser.
type Launcher func(ctx context.Context) (Browser, error)

// RenderedConfig configures the browser transport.
type RenderedConfig struct {
	Timeout time.Duration
	Ready   Ready
	// MaxTabs bounds pages open at once within a session.
	MaxTabs int
}

// Rendered fetches pages through a browser. Each session owns one browser;
// each fetch owns one tab.
type Rendered struct {
	launch  Launcher
	cfg     RenderedConfig
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewRendered creates a Rendered transport.
func NewRendered(launch Launcher, cfg RenderedConfig, log *slog.Logger, m *metrics.Metrics) *Rendered {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Ready == "" {
		cfg.Ready = ReadyDOM
	}
	if cfg.MaxTabs <= 0 {
		cfg.MaxTabs = 4
	}
	return &Rendered{launch: launch, cfg: cfg, log: log, metrics: m}
}

// Name implements Transport.
func (r *Rendered) Name() string { return "rendered" }

// Open launches a browser for the session.
func (r *Rendered) Open(ctx context.Context) (Session, error) {
	b, err := r.launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	return &renderedSession{
		Rendered: r,
		browser:  b,
		tabs:     semaphore.NewWeighted(int64(r.cfg.MaxTabs)),
	}, nil
}

type renderedSession struct {
	*Rendered
	browser Browser
	tabs    *semaphore.Weighted
}

func (s *renderedSession) Close() error {
	if err := s.browser.Close(); err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

// Fetch opens a tab, loads rawURL and returns the rendered HTML. The tab is
// closed on every path.
func (s *renderedSession) Fetch(ctx context.Context, rawURL string, opts Options) (*Page, error) {
	page, err := s.fetch(ctx, rawURL, opts)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			s.metrics.Fetch(s.Name(), fe.Kind.String())
		}
		return nil, err
	}
	s.metrics.Fetch(s.Name(), "ok")
	return page, nil
}

func (s *renderedSession) fetch(ctx context.Context, rawURL string, opts Options) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutOr(opts.Timeout, s.cfg.Timeout))
	defer cancel()

	if err := s.tabs.Acquire(ctx, 1); err != nil {
		return nil, &FetchError{Kind: classify(err), URL: rawURL, Err: fmt.Errorf("wait for tab: %w", err)}
	}
	defer s.tabs.Release(1)

	tab, err := s.browser.NewTab(ctx)
	if err != nil {
		return nil, &FetchError{Kind: classify(err), URL: rawURL, Err: fmt.Errorf("open tab: %w", err)}
	}
	defer func() {
		if cerr := tab.Close(); cerr != nil {
			s.log.Warn("close tab", "url", rawURL, "error", cerr)
		}
	}()

	if err := tab.Load(ctx, rawURL, opts.Headers, s.cfg.Ready); err != nil {
		return nil, &FetchError{Kind: classify(err), URL: rawURL, Err: fmt.Errorf("load page: %w", err)}
	}

	html, err := tab.HTML(ctx)
	if err != nil {
		return nil, &FetchError{Kind: classify(err), URL: rawURL, Err: fmt.Errorf("read html: %w", err)}
	}
	body := []byte(html)
	if IsChallenge(body) {
		return nil, &FetchError{Kind: KindBlocked, URL: rawURL}
	}

	return &Page{
		URL:         rawURL,
		Status:      http.StatusOK,
		ContentType: "text/html; charset=utf-8",
		Body:        body,
	}, nil
}
