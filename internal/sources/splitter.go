package sources

import (
	"regexp"
	"strings"
)

var (
	thinkPrefixPattern = regexp.MustCompile(`(?is)^<think>\s*.*?\s*</think>`)
	headingPattern     = regexp.MustCompile(`(?im)^(?:#{1,6}\s*)?(?:\*\*|__)?\s*(sources?|references?|citations?|信源|参考资料|参考|引用|来源列表|来源)\s*(?:\*\*|__)?(?:\s*[（(][^)\n]*[)）])?\s*[:：]?\s*$`)
	functionPattern    = regexp.MustCompile(`(?im)(^|\n)\s*(sources|source|citations|citation|references|reference|citation_card|source_cards|source_card)\s*\(`)
	listPrefixPattern  = regexp.MustCompile(`^\s*(?:[-*]|\d+\.)\s*`)
)

// Strategy recognizes one encoding of a trailing source list. ok is false
// when the text does not use that encoding.
type Strategy func(text string) (answer string, items []Item, ok bool)

// Strategies are tried in order; the first match wins.
var Strategies = []Strategy{
	SplitFunctionCall,
	SplitHeading,
	SplitDetailsBlock,
	SplitTailLinks,
}

// Split separates a model answer from its citation list. A leading
// <think> block is kept in front of the answer. When no dedicated source
// block is found the text is returned unchanged and every link in it is
// reported as a source.
func Split(text string) (string, []Item) {
	raw := strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if raw == "" {
		return "", []Item{}
	}

	think, content := leadingThink(raw)
	if think != "" && content == "" {
		return think, []Item{}
	}

	for _, strategy := range Strategies {
		if answer, items, ok := strategy(content); ok {
			return withThink(think, answer), items
		}
	}
	return withThink(think, content), ExtractFromText(content)
}

func leadingThink(text string) (string, string) {
	loc := thinkPrefixPattern.FindStringIndex(text)
	if loc == nil {
		return "", text
	}
	return strings.TrimSpace(text[:loc[1]]), strings.TrimLeft(text[loc[1]:], " \t\n\r")
}

func withThink(think, answer string) string {
	answer = strings.TrimSpace(answer)
	if think == "" {
		return answer
	}
	if answer == "" {
		return think
	}
	return think + "\n\n" + answer
}

// SplitFunctionCall matches a trailing call such as sources([...]) whose
// closing parenthesis ends the text.
func SplitFunctionCall(text string) (string, []Item, bool) {
	matches := functionPattern.FindAllStringIndex(text, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		start, end := matches[i][0], matches[i][1]
		args, ok := balancedCallAtEnd(text, end-1)
		if !ok {
			continue
		}
		items := parsePayload(args)
		if len(items) == 0 {
			continue
		}
		return strings.TrimRight(text[:start], " \t\n\r"), items, true
	}
	return "", nil, false
}

// balancedCallAtEnd returns the argument text of the call opened at
// text[open] when its matching ')' is followed only by whitespace.
func balancedCallAtEnd(text string, open int) (string, bool) {
	if open < 0 || open >= len(text) || text[open] != '(' {
		return "", false
	}
	depth := 1
	var quote byte
	escape := false
	for i := open + 1; i < len(text); i++ {
		ch := text[i]
		if quote != 0 {
			switch {
			case escape:
				escape = false
			case ch == '\\':
				escape = true
			case ch == quote:
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			quote = ch
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				if strings.TrimSpace(text[i+1:]) != "" {
					return "", false
				}
				return text[open+1 : i], true
			}
		}
	}
	return "", false
}

// SplitHeading matches the last "Sources"/"References"/"参考资料" style
// heading that is followed by at least one link.
func SplitHeading(text string) (string, []Item, bool) {
	matches := headingPattern.FindAllStringIndex(text, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		start := matches[i][0]
		items := ExtractFromText(text[start:])
		if len(items) == 0 {
			continue
		}
		return strings.TrimRight(text[:start], " \t\n\r"), items, true
	}
	return "", nil, false
}

// SplitDetailsBlock matches a trailing <details>...</details> element with at least two links
func SplitDetailsBlock(text string) (string, []Item, bool) {
	const closeTag = "</details>"
	lower := strings.ToLower(text)
	closeIdx := strings.LastIndex(lower, closeTag)
	if closeIdx == -1 {
		return "", nil, false
	}
	if strings.TrimSpace(text[closeIdx+len(closeTag):]) != "" {
		return "", nil, false
	}
	openIdx := strings.LastIndex(lower[:closeIdx], "<details")
	if openIdx == -1 {
		return "", nil, false
	}
	items := ExtractFromText(text[openIdx : closeIdx+len(closeTag)])
	if len(items) < 2 {
		return "", nil, false
	}
	return strings.TrimRight(text[:openIdx], " \t\n\r"), items, true
}

// SplitTailLinks matches two or more trailing lines that hold nothing but links
func SplitTailLinks(text string) (string, []Item, bool) {
	lines := strings.Split(text, "\n")

	idx := len(lines) - 1
	for idx >= 0 && strings.TrimSpace(lines[idx]) == "" {
		idx--
	}
	if idx < 0 {
		return "", nil, false
	}

	tailEnd := idx
	linkLines := 0
	for idx >= 0 {
		line := strings.TrimSpace(lines[idx])
		if line == "" {
			idx--
			continue
		}
		if !isLinkOnlyLine(line) {
			break
		}
		linkLines++
		idx--
	}
	if linkLines < 2 {
		return "", nil, false
	}

	tailStart := idx + 1
	items := ExtractFromText(strings.Join(lines[tailStart:tailEnd+1], "\n"))
	if len(items) == 0 {
		return "", nil, false
	}
	return strings.TrimRight(strings.Join(lines[:tailStart], "\n"), " \t\n\r"), items, true
}

func isLinkOnlyLine(line string) bool {
	stripped := strings.TrimSpace(listPrefixPattern.ReplaceAllString(line, ""))
	if stripped == "" {
		return false
	}
	return isHTTPURL(stripped) || mdLinkPattern.MatchString(stripped)
}
