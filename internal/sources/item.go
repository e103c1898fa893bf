package sources

import "strings"

// Item is one cited source. URL is always non-empty and starts with http:// or https://.
type Item struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Provider    string `json:"provider,omitempty"`
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Merge concatenates lists keeping the first occurrence of each URL.
// Items with a blank URL are dropped; URLs are trimmed.
func Merge(lists ...[]Item) []Item {
	seen := make(map[string]struct{})
	merged := make([]Item, 0)
	for _, list := range lists {
		for _, item := range list {
			url := strings.TrimSpace(item.URL)
			if url == "" {
				continue
			}
			if _, dup := seen[url]; dup {
				continue
			}
			seen[url] = struct{}{}
			item.URL = url
			merged = append(merged, item)
		}
	}
	return merged
}

// Clone returns a copy of items that shares no backing array
func Clone(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

type collector struct {
	seen  map[string]struct{}
	items []Item
}

func newCollector() *collector {
	return &collector{seen: make(map[string]struct{}), items: make([]Item, 0)}
}

func (c *collector) add(item Item) {
	item.URL = strings.TrimSpace(item.URL)
	if !isHTTPURL(item.URL) {
		return
	}
	if _, dup := c.seen[item.URL]; dup {
		return
	}
	c.seen[item.URL] = struct{}{}
	item.Title = strings.TrimSpace(item.Title)
	item.Description = strings.TrimSpace(item.Description)
	c.items = append(c.items, item)
}
