package transport

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// stubTransport serves pages from a map; missing URLs return err.
type stubTransport struct {
	name  string
	pages map[string]string
	err   error

	mu      sync.Mutex
	opened  int
	closed  int
	fetched []string
	openErr error
}

func (s *stubTransport) Name() string { return s.name }

func (s *stubTransport) Open(context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.opened++
	return stubSession{s}, nil
}

type stubSession struct{ *stubTransport }

func (s stubSession) Fetch(_ context.Context, url string, _ Options) (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetched = append(s.fetched, url)
	if body, ok := s.pages[url]; ok {
		return &Page{URL: url, Status: 200, Body: []byte(body)}, nil
	}
	return nil, s.err
}

func (s stubSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func TestFallback(t *testing.T) {
	blocked := &FetchError{Kind: KindHTTPStatus, URL: "https://example.com/b", Status: 403}
	primary := &stubTransport{
		name:  "direct",
		pages: map[string]string{"https://example.com/a": "direct a"},
		err:   blocked,
	}
	secondary := &stubTransport{
		name:  "rendered",
		pages: map[string]string{"https://example.com/b": "rendered b", "https://example.com/c": "rendered c"},
	}
	f := NewFallback(primary, secondary, discardLogger(), nil)

	sess, err := f.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	page, err := sess.Fetch(context.Background(), "https://example.com/a", Options{})
	if err != nil {
		t.Fatalf("fetch a: %v", err)
	}
	if diff := cmp.Diff("direct a", string(page.Body)); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
	if secondary.opened != 0 {
		t.Fatalf("secondary opened before any block")
	}

	for _, u := range []string{"https://example.com/b", "https://example.com/c"} {
		if _, err := sess.Fetch(context.Background(), u, Options{}); err != nil {
			t.Fatalf("fetch %s: %v", u, err)
		}
	}
	if diff := cmp.Diff(1, secondary.opened); diff != "" {
		t.Errorf("secondary open count mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"https://example.com/b", "https://example.com/c"}, secondary.fetched); diff != "" {
		t.Errorf("secondary fetches mismatch (-want +got):\n%s", diff)
	}

	if err := sess.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if primary.closed != 1 || secondary.closed != 1 {
		t.Errorf("closed primary=%d secondary=%d, want 1 and 1", primary.closed, secondary.closed)
	}
}

func TestFallbackSkipsNonBlockedErrors(t *testing.T) {
	primary := &stubTransport{name: "direct", err: &FetchError{Kind: KindHTTPStatus, Status: 404}}
	secondary := &stubTransport{name: "rendered"}
	f := NewFallback(primary, secondary, discardLogger(), nil)

	sess, err := f.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = sess.Close() }()

	if _, err := sess.Fetch(context.Background(), "https://example.com/x", Options{}); err == nil {
		t.Fatal("expected error")
	}
	if secondary.opened != 0 {
		t.Errorf("secondary opened for a non-blocked error")
	}
}

func TestFallbackSecondaryOpenFails(t *testing.T) {
	primary := &stubTransport{name: "direct", err: &FetchError{Kind: KindBlocked}}
	secondary := &stubTransport{name: "rendered", openErr: errors.New("no browser")}
	f := NewFallback(primary, secondary, discardLogger(), nil)

	sess, err := f.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = sess.Close() }()

	_, err = sess.Fetch(context.Background(), "https://example.com/x", Options{})
	if !IsBlocked(err) {
		t.Errorf("expected blocked error to be preserved, got %v", err)
	}
}

func TestNewModes(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		wantName string
		wantErr  bool
	}{
		{name: "direct", cfg: Config{Mode: ModeDirect, BrowserEndpoint: "ws://chrome:3000"}, wantName: "direct"},
		{name: "browser", cfg: Config{Mode: ModeBrowser}, wantName: "rendered"},
		{name: "auto without endpoint", cfg: Config{Mode: ModeAuto}, wantName: "direct"},
		{name: "empty mode", cfg: Config{}, wantName: "direct"},
		{name: "auto with endpoint", cfg: Config{Mode: ModeAuto, BrowserEndpoint: "ws://chrome:3000"}, wantName: "direct+rendered"},
		{name: "unknown", cfg: Config{Mode: "carrier-pigeon"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := New(tt.cfg, nil, discardLogger(), nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(tt.wantName, tr.Name()); diff != "" {
				t.Errorf("transport mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFetchErrorBlocked(t *testing.T) {
	tests := []struct {
		err  *FetchError
		want bool
	}{
		{err: &FetchError{Kind: KindBlocked}, want: true},
		{err: &FetchError{Kind: KindHTTPStatus, Status: 403}, want: true},
		{err: &FetchError{Kind: KindHTTPStatus, Status: 429}, want: true},
		{err: &FetchError{Kind: KindHTTPStatus, Status: 503}, want: true},
		{err: &FetchError{Kind: KindHTTPStatus, Status: 500}, want: false},
		{err: &FetchError{Kind: KindTimeout}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := IsBlocked(tt.err); got != tt.want {
				t.Errorf("IsBlocked() = %v, want %v", got, tt.want)
			}
		})
	}
}
