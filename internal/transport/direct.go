package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"sitefeed/internal/metrics"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultMaxBody   = 5 * 1024 * 1024
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DirectConfig configures the plain HTTP transport.
type DirectConfig struct {
	UserAgent      string
	AcceptLanguage string
	Headers        http.Header
	Timeout        time.Duration
	Retries        int
	RetryBase      time.Duration
	// RatePerHost limits requests per second to a single host; 0 disables it.
	RatePerHost  float64
	MaxBodyBytes int64
}

// Direct fetches pages with a single HTTP request per attempt.
type Direct struct {
	client  HTTPClient
	cfg     DirectConfig
	log     *slog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewDirect creates a Direct transport. A nil client uses http.DefaultClient.
func NewDirect(client HTTPClient, cfg DirectConfig, log *slog.Logger, m *metrics.Metrics) *Direct {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBody
	}
	return &Direct{
		client:   client,
		cfg:      cfg,
		log:      log,
		metrics:  m,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Name implements Transport.
func (d *Direct) Name() string { return "direct" }

// Open implements Transport. Direct sessions hold no resources.
func (d *Direct) Open(context.Context) (Session, error) {
	return directSession{d}, nil
}

type directSession struct{ *Direct }

func (directSession) Close() error { return nil }

// Fetch retrieves rawURL, retrying transient failures a bounded number of times.
func (d *Direct) Fetch(ctx context.Context, rawURL string, opts Options) (*Page, error) {
	retries := d.cfg.Retries
	switch {
	case opts.Retries < 0:
		retries = 0
	case opts.Retries > 0:
		retries = opts.Retries
	}

	backoff := retry.WithMaxRetries(uint64(max(retries, 0)),
		retry.WithCappedDuration(10*time.Second, retry.NewExponential(d.cfg.RetryBase)))

	var page *Page
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		p, err := d.once(ctx, rawURL, opts)
		if err != nil {
			var fe *FetchError
			if errors.As(err, &fe) {
				d.metrics.Fetch(d.Name(), fe.Kind.String())
				if fe.retryable() {
					d.log.Debug("fetch attempt failed", "url", rawURL, "attempt", attempt, "error", err)
					return retry.RetryableError(err)
				}
			}
			return err
		}
		d.metrics.Fetch(d.Name(), "ok")
		page = p
		return nil
	})
	if err != nil {
		var fe *FetchError
		if !errors.As(err, &fe) {
			err = &FetchError{Kind: classify(err), URL: rawURL, Err: err}
		}
		return nil, err
	}
	return page, nil
}

func (d *Direct) once(ctx context.Context, rawURL string, opts Options) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutOr(opts.Timeout, d.cfg.Timeout))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, URL: rawURL, Err: fmt.Errorf("create request: %w", err)}
	}
	d.setHeaders(req, opts.Headers)

	if err := d.wait(ctx, req.URL); err != nil {
		return nil, &FetchError{Kind: classify(err), URL: rawURL, Err: fmt.Errorf("rate limit: %w", err)}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: classify(err), URL: rawURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, &FetchError{Kind: KindHTTPStatus, URL: rawURL, Status: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	reader, err := charset.NewReader(io.LimitReader(resp.Body, d.cfg.MaxBodyBytes), contentType)
	if err != nil {
		return nil, &FetchError{Kind: classify(err), URL: rawURL, Err: fmt.Errorf("decode body: %w", err)}
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &FetchError{Kind: classify(err), URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}

	if IsChallenge(body) {
		return nil, &FetchError{Kind: KindBlocked, URL: rawURL, Status: resp.StatusCode}
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return &Page{
		URL:         finalURL,
		Status:      resp.StatusCode,
		ContentType: contentType,
		Body:        body,
	}, nil
}

func (d *Direct) setHeaders(req *http.Request, extra http.Header) {
	req.Header.Set("User-Agent", d.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if d.cfg.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", d.cfg.AcceptLanguage)
	}
	for k, vs := range d.cfg.Headers {
		req.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	for k, vs := range extra {
		req.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
}

func (d *Direct) wait(ctx context.Context, u *url.URL) error {
	if d.cfg.RatePerHost <= 0 {
		return nil
	}
	d.mu.Lock()
	lim, ok := d.limiters[u.Host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(d.cfg.RatePerHost), 1)
		d.limiters[u.Host] = lim
	}
	d.mu.Unlock()
	return lim.Wait(ctx)
}

func classify(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}
