package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"sitefeed/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mapStore struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
	err  error
}

func newMapStore() *mapStore {
	return &mapStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (s *mapStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, false, s.err
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *mapStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.data[key] = value
	s.ttls[key] = ttl
	return nil
}

func TestGetOrComputeSingleFlight(t *testing.T) {
	c := New[model.FeedItem](Config{TTL: time.Hour, Size: 10}, nil, discardLogger(), nil)

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (model.FeedItem, error) {
		calls.Add(1)
		<-release
		return model.FeedItem{Title: "A", Link: "https://example.com/a", Description: "<p>a</p>"}, nil
	}

	const n = 20
	results := make([]model.FeedItem, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.GetOrCompute(context.Background(), "https://example.com/a", compute)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("compute calls = %d, want 1", got)
	}
	for i := range n {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if diff := cmp.Diff(results[0], results[i]); diff != "" {
			t.Errorf("caller %d result mismatch (-want +got):\n%s", i, diff)
		}
	}

	st := c.Stats()
	if total := st.Hits + st.Misses + st.Shared; total != n {
		t.Errorf("lookups counted = %d, want %d (%+v)", total, n, st)
	}
}

func TestGetOrComputeFailureNotCached(t *testing.T) {
	c := New[string](Config{TTL: time.Hour, Size: 10}, nil, discardLogger(), nil)
	errBoom := errors.New("boom")

	var calls int
	compute := func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errBoom
		}
		return "ok", nil
	}

	if _, err := c.GetOrCompute(context.Background(), "k", compute); !errors.Is(err, errBoom) {
		t.Fatalf("first call error = %v, want %v", err, errBoom)
	}
	if _, ok := c.Peek("k"); ok {
		t.Fatal("failure was memoized")
	}

	got, err := c.GetOrCompute(context.Background(), "k", compute)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if got != "ok" || calls != 2 {
		t.Errorf("got %q after %d calls, want %q after 2", got, calls, "ok")
	}
}

func TestGetOrComputeHit(t *testing.T) {
	c := New[string](Config{TTL: time.Hour, Size: 10}, nil, discardLogger(), nil)

	var calls int
	compute := func(context.Context) (string, error) {
		calls++
		return "v", nil
	}
	for range 3 {
		if _, err := c.GetOrCompute(context.Background(), "k", compute); err != nil {
			t.Fatalf("get: %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("compute calls = %d, want 1", calls)
	}
	want := Stats{Hits: 2, Misses: 1}
	if diff := cmp.Diff(want, c.Stats()); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestGetOrComputeExpires(t *testing.T) {
	c := New[string](Config{TTL: 30 * time.Millisecond, Size: 10}, nil, discardLogger(), nil)

	var calls int
	compute := func(context.Context) (string, error) {
		calls++
		return "v", nil
	}
	if _, err := c.GetOrCompute(context.Background(), "k", compute); err != nil {
		t.Fatalf("get: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	if _, err := c.GetOrCompute(context.Background(), "k", compute); err != nil {
		t.Fatalf("get: %v", err)
	}
	if calls != 2 {
		t.Errorf("compute calls = %d, want 2 after expiry", calls)
	}
}

func TestGetOrComputeCallerCancel(t *testing.T) {
	c := New[string](Config{TTL: time.Hour, Size: 10}, nil, discardLogger(), nil)

	release := make(chan struct{})
	done := make(chan struct{})
	compute := func(ctx context.Context) (string, error) {
		defer close(done)
		<-release
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "v", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.GetOrCompute(ctx, "k", compute); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}

	close(release)
	<-done

	// The detached compute finished and its value is available.
	deadline := time.Now().Add(time.Second)
	for {
		if v, ok := c.Peek("k"); ok {
			if v != "v" {
				t.Errorf("memoized %q, want %q", v, "v")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("value never memoized")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGetOrComputeStore(t *testing.T) {
	item := model.FeedItem{
		Title:       "Stored",
		Link:        "https://example.com/s",
		PublishDate: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
		Description: "<p>s</p>",
	}

	t.Run("read through", func(t *testing.T) {
		store := newMapStore()
		data, err := json.Marshal(item)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		store.data[item.Link] = data

		c := New[model.FeedItem](Config{TTL: time.Hour, Size: 10}, store, discardLogger(), nil)
		got, err := c.GetOrCompute(context.Background(), item.Link, func(context.Context) (model.FeedItem, error) {
			t.Error("compute called despite store hit")
			return model.FeedItem{}, nil
		})
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if diff := cmp.Diff(item, got); diff != "" {
			t.Errorf("item mismatch (-want +got):\n%s", diff)
		}
		if c.Stats().StoreHits != 1 {
			t.Errorf("store hits = %d, want 1", c.Stats().StoreHits)
		}
	})

	t.Run("write through", func(t *testing.T) {
		store := newMapStore()
		c := New[model.FeedItem](Config{TTL: time.Hour, Size: 10}, store, discardLogger(), nil)
		if _, err := c.GetOrCompute(context.Background(), item.Link, func(context.Context) (model.FeedItem, error) {
			return item, nil
		}); err != nil {
			t.Fatalf("get: %v", err)
		}

		var got model.FeedItem
		if err := json.Unmarshal(store.data[item.Link], &got); err != nil {
			t.Fatalf("unmarshal stored value: %v", err)
		}
		if diff := cmp.Diff(item, got); diff != "" {
			t.Errorf("stored item mismatch (-want +got):\n%s", diff)
		}
		if store.ttls[item.Link] != time.Hour {
			t.Errorf("stored ttl = %v, want 1h", store.ttls[item.Link])
		}
	})

	t.Run("store errors fall back to compute", func(t *testing.T) {
		store := newMapStore()
		store.err = errors.New("store down")
		c := New[model.FeedItem](Config{TTL: time.Hour, Size: 10}, store, discardLogger(), nil)
		got, err := c.GetOrCompute(context.Background(), item.Link, func(context.Context) (model.FeedItem, error) {
			return item, nil
		})
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if diff := cmp.Diff(item, got); diff != "" {
			t.Errorf("item mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("failures are not written", func(t *testing.T) {
		store := newMapStore()
		c := New[model.FeedItem](Config{TTL: time.Hour, Size: 10}, store, discardLogger(), nil)
		_, _ = c.GetOrCompute(context.Background(), item.Link, func(context.Context) (model.FeedItem, error) {
			return model.FeedItem{}, errors.New("timeout")
		})
		if len(store.data) != 0 {
			t.Errorf("store has %d entries after failure, want 0", len(store.data))
		}
	})
}
