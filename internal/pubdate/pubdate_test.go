package pubdate

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestExtract(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e := &Extractor{Now: func() time.Time { return fixed }}

	tests := []struct {
		name       string
		candidates []string
		meta       map[string]string
		want       time.Time
	}{
		{
			name:       "chinese label with time",
			candidates: []string{"发布时间: 2024-03-15 10:00"},
			want:       time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
		},
		{
			name:       "slash separators",
			candidates: []string{"更新于 2023/11/02"},
			want:       time.Date(2023, 11, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			name:       "first parseable candidate wins",
			candidates: []string{"no date here", "2022-01-05", "2021-01-01"},
			want:       time.Date(2022, 1, 5, 0, 0, 0, 0, time.UTC),
		},
		{
			name:       "invalid calendar date skipped",
			candidates: []string{"2024-13-45 then 2024-02-29"},
			want:       time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name:       "metadata rfc3339",
			candidates: []string{"作者: 张三"},
			meta:       map[string]string{"article:published_time": "2020-06-01T08:30:00+08:00"},
			want:       time.Date(2020, 6, 1, 0, 30, 0, 0, time.UTC),
		},
		{
			name: "metadata priority order",
			meta: map[string]string{
				"date":                   "2019-01-01",
				"article:published_time": "2018-05-05",
			},
			want: time.Date(2018, 5, 5, 0, 0, 0, 0, time.UTC),
		},
		{
			name:       "text candidates before metadata",
			candidates: []string{"2017-07-07"},
			meta:       map[string]string{"article:published_time": "2018-05-05"},
			want:       time.Date(2017, 7, 7, 0, 0, 0, 0, time.UTC),
		},
		{
			name:       "fallback to now",
			candidates: []string{"yesterday", ""},
			meta:       map[string]string{"article:published_time": "garbage"},
			want:       fixed,
		},
		{
			name: "nothing at all",
			want: fixed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Extract(tt.candidates, tt.meta)
			if !got.Equal(tt.want) {
				t.Errorf("Extract() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractFallbackUsesWallClock(t *testing.T) {
	var e Extractor
	before := time.Now()
	got := e.Extract([]string{"没有日期"}, nil)
	after := time.Now()
	if got.Before(before) || got.After(after) {
		t.Errorf("Extract() = %v, want between %v and %v", got, before, after)
	}
}

func TestExtractLocation(t *testing.T) {
	shanghai := time.FixedZone("CST", 8*3600)
	e := New(shanghai)

	got := e.Extract([]string{"2024-03-15"}, nil)
	want := time.Date(2024, 3, 14, 16, 0, 0, 0, time.UTC)
	if diff := cmp.Diff(want, got.UTC()); diff != "" {
		t.Errorf("Extract() mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractCustomKeys(t *testing.T) {
	e := &Extractor{Keys: []string{"date", "article:published_time"}}
	meta := map[string]string{
		"article:published_time": "2024-03-15T10:00:00Z",
		"date":                   "2023-01-02",
	}

	got := e.Extract(nil, meta)
	want := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Extract() mismatch (-want +got):\n%s", diff)
	}
}
