package grok

import (
	"fmt"
	"strings"
	"time"
)

var timeKeywordsZH = []string{
	"当前", "现在", "今天", "明天", "昨天",
	"本周", "上周", "下周", "这周",
	"本月", "上月", "下月", "这个月",
	"今年", "去年", "明年",
	"最新", "最近", "近期", "刚刚", "刚才",
	"实时", "即时", "目前",
}

var timeKeywordsEN = []string{
	"current", "now", "today", "tomorrow", "yesterday",
	"this week", "last week", "next week",
	"this month", "last month", "next month",
	"this year", "last year", "next year",
	"latest", "recent", "recently", "just now",
	"real-time", "realtime", "up-to-date",
}

// NeedsTimeContext reports whether query refers to relative time.
// English keywords match case-insensitively as substrings.
func NeedsTimeContext(query string) bool {
	for _, kw := range timeKeywordsZH {
		if strings.Contains(query, kw) {
			return true
		}
	}
	lower := strings.ToLower(query)
	for _, kw := range timeKeywordsEN {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// TimeContext renders the local date, weekday, time and zone block
func TimeContext(now time.Time) string {
	zone, _ := now.Zone()
	if zone == "" {
		zone = "Local"
	}
	return fmt.Sprintf("[Current Time Context]\n- Date: %s (%s)\n- Time: %s\n- Timezone: %s\n",
		now.Format("2006-01-02"), now.Weekday(), now.Format("15:04:05"), zone)
}
