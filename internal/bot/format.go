package bot

import (
	"fmt"
	"strings"

	"sitefeed/internal/model"
)

const (
	pageSize   = 5
	dateLayout = "2006-01-02 15:04"
)

// FormatItem formats one feed item as title, date and link.
func FormatItem(n int, item model.FeedItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d. %s\n", n, item.Title)
	if !item.PublishDate.IsZero() {
		fmt.Fprintf(&b, "%s\n", item.PublishDate.Format(dateLayout))
	}
	if item.Degraded {
		b.WriteString("(content unavailable)\n")
	}
	b.WriteString(item.Link)
	return b.String()
}

// FormatPages splits items into messages of at most size items each. The
// first page is headed by the feed title.
func FormatPages(title string, items []model.FeedItem, size int) []string {
	if size <= 0 {
		size = pageSize
	}
	var pages []string
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))

		var b strings.Builder
		if start == 0 {
			fmt.Fprintf(&b, "%s (%d items)\n\n", title, len(items))
		}
		for i := start; i < end; i++ {
			if i > start {
				b.WriteString("\n\n")
			}
			b.WriteString(FormatItem(i+1, items[i]))
		}
		pages = append(pages, b.String())
	}
	return pages
}
