package sources

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	mdLinkPattern = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^)]+)\)`)
	urlPattern    = regexp.MustCompile("https?://[^\\s<>\"'`，。、；：！？》）】\\)]+")
)

// ExtractURLs returns the distinct bare URLs in text in first-seen order,
// with trailing sentence punctuation removed.
func ExtractURLs(text string) []string {
	seen := make(map[string]struct{})
	var urls []string
	for _, m := range urlPattern.FindAllString(text, -1) {
		url := strings.TrimRight(m, ".,;:!?")
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}
		urls = append(urls, url)
	}
	return urls
}

// ExtractFromText collects Markdown links first, then any remaining bare URLs
func ExtractFromText(text string) []Item {
	c := newCollector()
	for _, m := range mdLinkPattern.FindAllStringSubmatch(text, -1) {
		c.add(Item{URL: m[2], Title: m[1]})
	}
	for _, url := range ExtractURLs(text) {
		c.add(Item{URL: url})
	}
	return c.items
}

var payloadKeys = []string{"sources", "citations", "references", "urls"}

// parsePayload interprets the argument text of a sources(...) call.
// It tries JSON, then a Python-style literal, then plain text extraction.
func parsePayload(payload string) []Item {
	payload = strings.TrimRight(strings.TrimSpace(payload), ";")
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil
	}

	var data interface{}
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		data = nil
		if converted, ok := pyLiteralToJSON(payload); ok {
			if err := json.Unmarshal([]byte(converted), &data); err != nil {
				// Bare comma-separated arguments form a tuple
				data = nil
				if err := json.Unmarshal([]byte("["+converted+"]"), &data); err != nil {
					data = nil
				}
			}
		}
	}
	if data == nil {
		return ExtractFromText(payload)
	}

	if obj, ok := data.(map[string]interface{}); ok {
		for _, key := range payloadKeys {
			if v, ok := obj[key]; ok {
				return normalize(v)
			}
		}
	}
	return normalize(data)
}

// normalize accepts a list of URL strings, [title, url] pairs or objects
func normalize(data interface{}) []Item {
	var elems []interface{}
	switch v := data.(type) {
	case []interface{}:
		elems = v
	default:
		elems = []interface{}{v}
	}

	c := newCollector()
	for _, elem := range elems {
		switch v := elem.(type) {
		case string:
			for _, url := range ExtractURLs(v) {
				c.add(Item{URL: url})
			}
		case []interface{}:
			if len(v) < 2 {
				continue
			}
			url, _ := v[1].(string)
			title, _ := v[0].(string)
			if isHTTPURL(url) {
				c.add(Item{URL: url, Title: title})
			}
		case map[string]interface{}:
			url := firstString(v, "url", "href", "link")
			if !isHTTPURL(url) {
				continue
			}
			c.add(Item{
				URL:         url,
				Title:       firstString(v, "title", "name", "label"),
				Description: firstString(v, "description", "snippet", "content"),
			})
		}
	}
	return c.items
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// pyLiteralToJSON rewrites a Python literal (single-quoted strings, tuples,
// True/False/None) into JSON. It reports false on anything it cannot map.
func pyLiteralToJSON(s string) (string, bool) {
	var b strings.Builder
	b.Grow(len(s))
	i := 0
	for i < len(s) {
		ch := s[i]
		switch {
		case ch == '\'' || ch == '"':
			end, str, ok := readPyString(s, i)
			if !ok {
				return "", false
			}
			enc, err := json.Marshal(str)
			if err != nil {
				return "", false
			}
			b.Write(enc)
			i = end
		case ch == ',':
			// Python allows a trailing comma before a closing bracket
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
				j++
			}
			if j < len(s) && (s[j] == ']' || s[j] == '}' || s[j] == ')') {
				i = j
				continue
			}
			b.WriteByte(ch)
			i++
		case ch == '(':
			b.WriteByte('[')
			i++
		case ch == ')':
			b.WriteByte(']')
			i++
		case isIdentStart(ch):
			j := i
			for j < len(s) && (isIdentStart(s[j]) || (s[j] >= '0' && s[j] <= '9')) {
				j++
			}
			switch s[i:j] {
			case "True":
				b.WriteString("true")
			case "False":
				b.WriteString("false")
			case "None":
				b.WriteString("null")
			default:
				return "", false
			}
			i = j
		default:
			b.WriteByte(ch)
			i++
		}
	}
	return b.String(), true
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

// readPyString reads a quoted string starting at s[start] and returns the
// index after the closing quote and the unescaped value.
func readPyString(s string, start int) (int, string, bool) {
	quote := s[start]
	var b strings.Builder
	for i := start + 1; i < len(s); i++ {
		ch := s[i]
		if ch == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(s[i])
			}
			continue
		}
		if ch == quote {
			return i + 1, b.String(), true
		}
		b.WriteByte(ch)
	}
	return 0, "", false
}
