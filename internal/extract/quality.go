package extract

import (
	"strings"
	"unicode/utf8"
)

var boilerplateMarkers = []string{
	"cookie", "subscribe", "sign up", "sign in", "log in", "newsletter",
	"all rights reserved", "privacy policy", "terms of service", "terms of use",
	"follow us", "share this", "share on", "advertisement", "read more", "copyright", "©",
}

// Quality scores text in [0,1] from its length, paragraph count and the
// share of lines that are not boilerplate. It only steers escalation.
func Quality(text string) float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	chars := float64(utf8.RuneCountInString(text))
	paras := 0
	for _, block := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(block) != "" {
			paras++
		}
	}
	lines, boiler := 0, 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines++
		if isBoilerplateLine(line) {
			boiler++
		}
	}
	ratio := 0.0
	if lines > 0 {
		ratio = float64(lines-boiler) / float64(lines)
	}
	return 0.4*min(1, chars/1500) + 0.3*min(1, float64(paras)/5) + 0.3*ratio
}

func isBoilerplateLine(line string) bool {
	l := strings.ToLower(line)
	// Long lines are prose even when they mention a marker.
	if len(strings.Fields(l)) > 12 {
		return false
	}
	return containsAny(l, boilerplateMarkers)
}
