package grok

import (
	"strconv"
	"strings"
)

// ParseDescription reads the "Title:" and "Extracts:" lines of a describe reply.
// The title falls back to url.
func ParseDescription(text, url string) Description {
	d := Description{Title: url, URL: url}
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Title:"):
			if title := strings.TrimSpace(strings.TrimPrefix(line, "Title:")); title != "" {
				d.Title = title
			}
		case strings.HasPrefix(line, "Extracts:"):
			d.Extracts = strings.TrimSpace(strings.TrimPrefix(line, "Extracts:"))
		}
	}
	return d
}

// ParseRanking keeps each integer token in 1..total once, in reply order, then
// appends the indices the reply missed in ascending order. The result is always
// a permutation of 1..total.
func ParseRanking(text string, total int) []int {
	if total <= 0 {
		return []int{}
	}
	order := make([]int, 0, total)
	seen := make(map[int]bool, total)
	for _, tok := range strings.Fields(text) {
		n, err := strconv.Atoi(strings.Trim(tok, ".,;:()[]"))
		if err != nil || n < 1 || n > total || seen[n] {
			continue
		}
		seen[n] = true
		order = append(order, n)
	}
	for i := 1; i <= total; i++ {
		if !seen[i] {
			order = append(order, i)
		}
	}
	return order
}
