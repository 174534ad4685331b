package extract

import (
	"regexp"
	"strings"
)

var (
	bylinePreamble = regexp.MustCompile(`(?im)^[ \t]*(by\s+[^\n|]{1,80}\|\s*)?(published|posted|updated)(\s+on\s*:?|:)\s*[^\n]{1,60}$`)
	leftoverTag    = regexp.MustCompile(`(?i)</?(p|div|span|br|a|img|strong|em|b|i|u|ul|ol|li|h[1-6]|section|article|figure|figcaption|table|tr|td|th|tbody|thead|blockquote|sup|sub|hr)(\s[^<>]*)?/?>`)
	manyNewlines   = regexp.MustCompile(`\n{3,}`)
)

// Clean strips byline/date preamble lines and stray tags and squeezes
// blank lines.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = leftoverTag.ReplaceAllString(text, "")
	text = bylinePreamble.ReplaceAllString(text, "")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	text = strings.Join(lines, "\n")
	text = manyNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
