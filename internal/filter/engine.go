// Package filter implements the feed item matching engine.
package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"sitefeed/internal/model"
)

// ErrInvalidPattern is returned for a regexp rule that does not compile.
var ErrInvalidPattern = errors.New("invalid filter pattern")

// Kind selects how a rule matches and whether a match keeps or drops the item.
type Kind string

// Rule kinds.
const (
	Include   Kind = "include"
	Exclude   Kind = "exclude"
	IncludeRe Kind = "include_re"
	ExcludeRe Kind = "exclude_re"
)

// Scope selects the item text a rule looks at.
type Scope string

// Rule scopes.
const (
	ScopeAll     Scope = "all"
	ScopeTitle   Scope = "title"
	ScopeContent Scope = "content"
)

// Rule is one include or exclude condition. Matching is case-insensitive.
type Rule struct {
	Kind  Kind
	Scope Scope
	Value string
}

type compiled struct {
	Rule
	re *regexp.Regexp
}

// Engine applies a fixed set of rules. The zero value keeps every item.
type Engine struct {
	rules []compiled
}

// New compiles rules. Regexp rules that fail to compile return ErrInvalidPattern.
func New(rules []Rule) (*Engine, error) {
	e := &Engine{rules: make([]compiled, 0, len(rules))}
	for _, r := range rules {
		c := compiled{Rule: r}
		switch r.Kind {
		case IncludeRe, ExcludeRe:
			re, err := compile(r.Value)
			if err != nil {
				return nil, err
			}
			c.re = re
		case Include, Exclude:
		default:
			return nil, fmt.Errorf("unknown filter kind %q", r.Kind)
		}
		e.rules = append(e.rules, c)
	}
	return e, nil
}

// Empty reports whether the engine has no rules.
func (e *Engine) Empty() bool {
	return e == nil || len(e.rules) == 0
}

// Match checks whether an item passes the engine's rules.
// If there are no rules, the item always passes.
// Include rules use OR logic (at least one must match).
// Exclude rules use AND logic (none must match).
func (e *Engine) Match(item model.FeedItem) bool {
	if e.Empty() {
		return true
	}

	hasIncludes := false
	anyIncludeMatched := false

	for _, r := range e.rules {
		switch r.Kind {
		case Include, IncludeRe:
			hasIncludes = true
			if r.matches(item) {
				anyIncludeMatched = true
			}
		case Exclude, ExcludeRe:
			if r.matches(item) {
				return false
			}
		}
	}

	return !hasIncludes || anyIncludeMatched
}

// Apply returns the items that pass, in their original order.
func (e *Engine) Apply(items []model.FeedItem) []model.FeedItem {
	if e.Empty() {
		return items
	}
	out := make([]model.FeedItem, 0, len(items))
	for _, it := range items {
		if e.Match(it) {
			out = append(out, it)
		}
	}
	return out
}

func (r compiled) matches(item model.FeedItem) bool {
	text := textForScope(item, r.Scope)
	if r.re != nil {
		return r.re.MatchString(text)
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(r.Value))
}

func textForScope(item model.FeedItem, scope Scope) string {
	switch scope {
	case ScopeTitle:
		return item.Title
	case ScopeContent:
		return item.Description
	default:
		return item.Title + " " + item.Description
	}
}

func compile(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidPattern, pattern, err)
	}
	return re, nil
}

// ValidateRegex checks whether a pattern is a valid regular expression.
func ValidateRegex(pattern string) error {
	_, err := compile(pattern)
	return err
}
