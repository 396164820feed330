package bot

import (
	"fmt"
	"strconv"
	"strings"

	"sitefeed/internal/filter"
)

// FilterArgs holds the parsed arguments of a filtered feed command.
type FilterArgs struct {
	Limit int
	Scope filter.Scope
	Value string
}

// ParseFilterCommand parses arguments for /include, /exclude, etc.
// Format: [-n limit] [-s title|content|all] <value...>
func ParseFilterCommand(args string) (FilterArgs, error) {
	out := FilterArgs{Scope: filter.ScopeAll}
	rest := strings.Fields(args)

	for len(rest) >= 2 && strings.HasPrefix(rest[0], "-") {
		switch rest[0] {
		case "-n":
			n, err := ParseLimitArg(rest[1])
			if err != nil {
				return FilterArgs{}, err
			}
			out.Limit = n
		case "-s":
			switch rest[1] {
			case "title":
				out.Scope = filter.ScopeTitle
			case "content":
				out.Scope = filter.ScopeContent
			case "all":
				out.Scope = filter.ScopeAll
			default:
				return FilterArgs{}, fmt.Errorf("invalid scope %q, use: title, content, all", rest[1])
			}
		default:
			return FilterArgs{}, fmt.Errorf("unknown flag %q", rest[0])
		}
		rest = rest[2:]
	}

	if len(rest) == 0 {
		return FilterArgs{}, fmt.Errorf("filter value is required")
	}
	out.Value = strings.Join(rest, " ")
	return out, nil
}

// ParseLimitArg reads an optional item limit. Empty means the default (0).
func ParseLimitArg(args string) (int, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.Fields(s)[0])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid limit %q", s)
	}
	return n, nil
}
