package util

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateString_UTF8(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		maxLen        int
		preserveWords bool
	}{
		{name: "Chinese characters", input: "查询中文数据库中的用户信息", maxLen: 10},
		{name: "English with word boundaries", input: "This is a very long string that needs truncation", maxLen: 20, preserveWords: true},
		{name: "Mixed language", input: "Query for 用户信息 in the database system", maxLen: 25, preserveWords: true},
		{name: "Emoji", input: "Hello 👋 World 🌍 Testing 🎉 Emoji", maxLen: 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateString(tt.input, tt.maxLen, tt.preserveWords)
			if !utf8.ValidString(got) {
				t.Fatalf("invalid UTF-8 output: %q", got)
			}
			if n := utf8.RuneCountInString(got); n > tt.maxLen {
				t.Errorf("got %d runes, want <= %d", n, tt.maxLen)
			}
			if !strings.HasSuffix(got, "...") {
				t.Errorf("expected ellipsis suffix, got %q", got)
			}
		})
	}
}

func TestTruncateString_ShortInputUnchanged(t *testing.T) {
	if got := TruncateString("short", 10, false); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := TruncateString("anything", 0, false); got != "" {
		t.Errorf("expected empty string for maxLen 0, got %q", got)
	}
}

func TestTruncateWithMarker(t *testing.T) {
	if got := TruncateWithMarker("abc", 5); got != "abc" {
		t.Errorf("short text should be unchanged, got %q", got)
	}

	got := TruncateWithMarker("结论很长的一段话", 2)
	want := "结论\n...[truncated, original length 8 chars]"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestMaskAPIKey(t *testing.T) {
	cases := map[string]string{
		"":                 "***",
		"12345678":         "***",
		"xai-abcdefgh1234": "xai-********1234",
	}
	for in, want := range cases {
		if got := MaskAPIKey(in); got != want {
			t.Errorf("MaskAPIKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewShortID(t *testing.T) {
	a, b := NewShortID(), NewShortID()
	if len(a) != 12 || len(b) != 12 {
		t.Fatalf("expected 12 chars, got %q and %q", a, b)
	}
	if a == b {
		t.Errorf("expected distinct ids, got %q twice", a)
	}
	if strings.Contains(a, "-") {
		t.Errorf("id should be hex only: %q", a)
	}
}
