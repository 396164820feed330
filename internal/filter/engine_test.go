package filter

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"sitefeed/internal/model"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name  string
		item  model.FeedItem
		rules []Rule
		want  bool
	}{
		{
			name:  "no rules passes everything",
			item:  model.FeedItem{Title: "anything", Description: "whatever"},
			rules: nil,
			want:  true,
		},
		{
			name:  "include word matches",
			item:  model.FeedItem{Title: "C语言指针详解", Description: "<p>指针</p>"},
			rules: []Rule{{Kind: Include, Scope: ScopeAll, Value: "指针"}},
			want:  true,
		},
		{
			name:  "include word no match",
			item:  model.FeedItem{Title: "Python 列表", Description: "<p>list</p>"},
			rules: []Rule{{Kind: Include, Scope: ScopeAll, Value: "指针"}},
			want:  false,
		},
		{
			name:  "include is case insensitive",
			item:  model.FeedItem{Title: "GOLANG channels"},
			rules: []Rule{{Kind: Include, Scope: ScopeAll, Value: "golang"}},
			want:  true,
		},
		{
			name:  "exclude word blocks match",
			item:  model.FeedItem{Title: "Java 广告合作", Description: "联系我们"},
			rules: []Rule{{Kind: Exclude, Scope: ScopeAll, Value: "广告"}},
			want:  false,
		},
		{
			name: "include and exclude both match, exclude wins",
			item: model.FeedItem{Title: "Go 教程 (付费)", Description: "<p>会员</p>"},
			rules: []Rule{
				{Kind: Include, Scope: ScopeAll, Value: "go"},
				{Kind: Exclude, Scope: ScopeAll, Value: "付费"},
			},
			want: false,
		},
		{
			name: "multiple includes use OR",
			item: model.FeedItem{Title: "Docker 入门"},
			rules: []Rule{
				{Kind: Include, Scope: ScopeAll, Value: "kubernetes"},
				{Kind: Include, Scope: ScopeAll, Value: "docker"},
			},
			want: true,
		},
		{
			name:  "regex include matches",
			item:  model.FeedItem{Title: "C++ 模板 第3章"},
			rules: []Rule{{Kind: IncludeRe, Scope: ScopeTitle, Value: `第\d+章`}},
			want:  true,
		},
		{
			name:  "regex exclude blocks",
			item:  model.FeedItem{Title: "Online course on Linux training"},
			rules: []Rule{{Kind: ExcludeRe, Scope: ScopeAll, Value: "course.*training"}},
			want:  false,
		},
		{
			name:  "title scope ignores description",
			item:  model.FeedItem{Title: "Release notes", Description: "Kubernetes update"},
			rules: []Rule{{Kind: Include, Scope: ScopeTitle, Value: "kubernetes"}},
			want:  false,
		},
		{
			name:  "content scope ignores title",
			item:  model.FeedItem{Title: "Promo for Kubernetes", Description: "Great article"},
			rules: []Rule{{Kind: Exclude, Scope: ScopeContent, Value: "promo"}},
			want:  true,
		},
		{
			name:  "degraded placeholder can be excluded",
			item:  model.FeedItem{Title: "x", Description: "Failed to fetch article: timeout", Degraded: true},
			rules: []Rule{{Kind: ExcludeRe, Scope: ScopeContent, Value: "^Failed to fetch article"}},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(tt.rules)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			got := e.Match(tt.item)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Match() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestApply(t *testing.T) {
	items := []model.FeedItem{
		{Title: "C语言指针", Link: "https://c.biancheng.net/view/1.html"},
		{Title: "Go 并发", Link: "https://c.biancheng.net/view/2.html"},
		{Title: "C语言结构体", Link: "https://c.biancheng.net/view/3.html"},
	}

	e, err := New([]Rule{{Kind: IncludeRe, Scope: ScopeTitle, Value: "^C语言"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	want := []model.FeedItem{items[0], items[2]}
	if diff := cmp.Diff(want, e.Apply(items)); diff != "" {
		t.Errorf("Apply() mismatch (-want +got):\n%s", diff)
	}

	var zero *Engine
	if diff := cmp.Diff(items, zero.Apply(items)); diff != "" {
		t.Errorf("nil engine Apply() mismatch (-want +got):\n%s", diff)
	}
}

func TestNewErrors(t *testing.T) {
	_, err := New([]Rule{{Kind: IncludeRe, Value: "[invalid"}})
	if !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("New() error = %v, want %v", err, ErrInvalidPattern)
	}
	if _, err := New([]Rule{{Kind: "maybe", Value: "x"}}); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestValidateRegex(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		wantErr bool
	}{
		{name: "valid simple", pattern: "hello", wantErr: false},
		{name: "valid alternation", pattern: "c|go|rust", wantErr: false},
		{name: "valid group", pattern: `(?i)release.*v\d+`, wantErr: false},
		{name: "invalid unclosed bracket", pattern: "[invalid", wantErr: true},
		{name: "invalid bad repetition", pattern: "*bad", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRegex(tt.pattern)
			gotErr := err != nil
			if diff := cmp.Diff(tt.wantErr, gotErr); diff != "" {
				t.Errorf("ValidateRegex() error mismatch (-want +got):\n%s\nerr: %v", diff, err)
			}
		})
	}
}
