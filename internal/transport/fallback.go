package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"sitefeed/internal/metrics"
)

// Fallback fetches with a primary transport and switches to a secondary one
// for requests the primary reports as blocked. The secondary session is only
// opened when first needed.
type Fallback struct {
	primary   Transport
	secondary Transport
	log       *slog.Logger
	metrics   *metrics.Metrics
}

// NewFallback combines two transports.
func NewFallback(primary, secondary Transport, log *slog.Logger, m *metrics.Metrics) *Fallback {
	if log == nil {
		log = slog.Default()
	}
	return &Fallback{primary: primary, secondary: secondary, log: log, metrics: m}
}

// Name implements Transport.
func (f *Fallback) Name() string {
	return f.primary.Name() + "+" + f.secondary.Name()
}

// Open implements Transport.
func (f *Fallback) Open(ctx context.Context) (Session, error) {
	p, err := f.primary.Open(ctx)
	if err != nil {
		return nil, err
	}
	return &fallbackSession{Fallback: f, first: p}, nil
}

type fallbackSession struct {
	*Fallback
	first Session

	mu        sync.Mutex
	second    Session
	secondErr error
}

func (s *fallbackSession) Fetch(ctx context.Context, url string, opts Options) (*Page, error) {
	page, err := s.first.Fetch(ctx, url, opts)
	if err == nil || !IsBlocked(err) {
		return page, err
	}

	s.log.Info("primary transport blocked, falling back", "url", url, "transport", s.secondaryName(), "error", err)
	s.metrics.Fallback()

	sec, serr := s.openSecondary(ctx)
	if serr != nil {
		return nil, errors.Join(err, serr)
	}
	return sec.Fetch(ctx, url, opts)
}

func (s *fallbackSession) secondaryName() string {
	return s.secondary.Name()
}

func (s *fallbackSession) openSecondary(ctx context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.second != nil {
		return s.second, nil
	}
	if s.secondErr != nil {
		return nil, s.secondErr
	}
	sec, err := s.secondary.Open(ctx)
	if err != nil {
		s.secondErr = fmt.Errorf("open %s transport: %w", s.secondaryName(), err)
		return nil, s.secondErr
	}
	s.second = sec
	return sec, nil
}

func (s *fallbackSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if err := s.first.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.second != nil {
		if err := s.second.Close(); err != nil {
			errs = append(errs, err)
		}
		s.second = nil
	}
	return errors.Join(errs...)
}
