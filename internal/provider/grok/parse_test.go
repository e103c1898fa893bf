package grok

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDescription(t *testing.T) {
	d := ParseDescription("Title:   \nExtracts: facts here", "https://x.test")
	assert.Equal(t, "https://x.test", d.Title, "blank title falls back to the url")
	assert.Equal(t, "facts here", d.Extracts)

	d = ParseDescription("no structured lines", "https://x.test")
	assert.Equal(t, Description{Title: "https://x.test", URL: "https://x.test"}, d)
}

func TestParseRanking(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		total int
		want  []int
	}{
		{"complete", "2 3 1", 3, []int{2, 3, 1}},
		{"missing appended", "4 2", 4, []int{4, 2, 1, 3}},
		{"duplicates and out of range", "2 2 9 0 -1 1", 3, []int{2, 1, 3}},
		{"punctuation", "3, 1, 2.", 3, []int{3, 1, 2}},
		{"garbage", "I cannot rank these", 2, []int{1, 2}},
		{"empty total", "1 2", 0, []int{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseRanking(tc.text, tc.total))
		})
	}
}

func TestNeedsTimeContext(t *testing.T) {
	assert.True(t, NeedsTimeContext("What is the LATEST kernel?"))
	assert.True(t, NeedsTimeContext("今天的天气"))
	assert.True(t, NeedsTimeContext("real-time stock quotes"))
	assert.False(t, NeedsTimeContext("history of the Roman empire"))
}

func TestTimeContext(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	got := TimeContext(time.Date(2024, 12, 31, 23, 59, 1, 0, loc))
	assert.Equal(t, "[Current Time Context]\n- Date: 2024-12-31 (Tuesday)\n- Time: 23:59:01\n- Timezone: CST\n", got)
}
