package classification

import (
	"regexp"
	"strings"
)

// quoteBoundaries mark where quoted or forwarded content starts. The earliest match wins.
var quoteBoundaries = []*regexp.Regexp{
	regexp.MustCompile(`(?i)-{4,} ?Original Message ?-{4,}`),
	regexp.MustCompile(`(?i)On .+wrote:`),
	regexp.MustCompile(`(?i)From:.*Sent:`),
	regexp.MustCompile(`(?m)^>.*$`),
	regexp.MustCompile(`(?i)forwarded message`),
	regexp.MustCompile(`(?i).*?\[mailto:.*?\]`),
	regexp.MustCompile(`(?i)From:`),
	regexp.MustCompile(`(?i)Subject:`),
	regexp.MustCompile(`(?i)Date:`),
	regexp.MustCompile(`(?i)To:`),
	regexp.MustCompile(`轉寄:`),
	regexp.MustCompile(`(?i)Forwarded:`),
	regexp.MustCompile(`寄件者:`),
	regexp.MustCompile(`收件者:`),
	regexp.MustCompile(`日期:`),
	regexp.MustCompile(`主旨:`),
	regexp.MustCompile(`於\s+\d{4}年\d{1,2}月\d{1,2}日[\s\S]*?寫道[：:]`),
	regexp.MustCompile(`(?i)<[\w.-]+@[\w.-]+\.[a-zA-Z]{2,}>\s+於[\s\S]*?寫道[：:]`),
}

// forwardBanners are tried in order when no quote boundary is present.
var forwardBanners = []*regexp.Regexp{
	regexp.MustCompile(`-+\s*[Ff]orwarded\s+message\s*-+`),
	regexp.MustCompile(`-+\s*轉寄的郵件\s*-+`),
	regexp.MustCompile(`\n-{3,}\n`),
}

// ExtractActualContent strips quoted replies and forwarded content from a raw body.
// The body is returned unchanged when no boundary is found.
func ExtractActualContent(body string) string {
	cut := -1
	for _, re := range quoteBoundaries {
		loc := re.FindStringIndex(body)
		if loc != nil && (cut < 0 || loc[0] < cut) {
			cut = loc[0]
		}
	}
	if cut >= 0 {
		return strings.TrimSpace(body[:cut])
	}

	for _, re := range forwardBanners {
		if loc := re.FindStringIndex(body); loc != nil {
			return strings.TrimSpace(body[:loc[0]])
		}
	}
	return body
}
