// Package chunk normalizes extracted text and splits it into bounded,
// sentence-aligned chunks.
package chunk

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DefaultBudget is the default maximum chunk length in characters.
const DefaultBudget = 6000

var (
	fillerLine  = regexp.MustCompile(`^[.\s·•\-_=*~]{5,}$`)
	blankRuns   = regexp.MustCompile(`\n{3,}`)
	spaceRuns   = regexp.MustCompile(`[ \t\f\v]+`)
	invisibles  = strings.NewReplacer("\u200b", "", "\u200c", "", "\u200d", "", "\ufeff", "", "\u00ad", "")
	nbspReplace = strings.NewReplacer("\u00a0", " ", "\u2007", " ", "\u202f", " ")
)

// Normalize applies NFC, unifies line endings, removes zero-width
// characters and filler lines, collapses runs of spaces and limits blank
// lines to one between paragraphs.
func Normalize(s string) string {
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = invisibles.Replace(s)
	s = nbspReplace.Replace(s)
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(spaceRuns.ReplaceAllString(line, " "))
		if fillerLine.MatchString(line) {
			continue
		}
		out = append(out, line)
	}
	s = strings.Join(out, "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Chunker splits text into chunks of at most Budget characters.
type Chunker struct {
	Budget int
}

// Split normalizes text and packs its sentences into chunks.
func (c Chunker) Split(text string) []string {
	budget := c.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}
	return Split(Normalize(text), budget)
}

// Split greedily packs sentences into chunks no longer than budget
// characters. A sentence longer than budget becomes a chunk of its own.
// Chunks keep paragraph and line breaks between their sentences, so joining them
// with a space reproduces text modulo whitespace.
func Split(text string, budget int) []string {
	if budget <= 0 {
		budget = DefaultBudget
	}
	sentences := Sentences(text)
	if len(sentences) == 0 {
		return nil
	}
	var chunks []string
	var cur strings.Builder
	curLen := 0
	for _, s := range sentences {
		body := strings.TrimSpace(s.Text)
		if body == "" {
			continue
		}
		sep := ""
		if curLen > 0 {
			switch {
			case s.ParagraphStart:
				sep = "\n\n"
			case s.LineStart:
				sep = "\n"
			default:
				sep = " "
			}
		}
		n := utf8.RuneCountInString(body)
		if curLen > 0 && curLen+len([]rune(sep))+n > budget {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
			sep = ""
		}
		cur.WriteString(sep)
		cur.WriteString(body)
		curLen += utf8.RuneCountInString(sep) + n
	}
	if curLen > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// Sentence is one sentence of normalized text.
type Sentence struct {
	Text string
	// ParagraphStart is set for the first sentence after a blank line.
	ParagraphStart bool
	// LineStart is set when a line break separates the sentence from the
	// previous one inside a paragraph, as in markdown lists.
	LineStart bool
}

var abbreviations = map[string]bool{
	"e.g": true, "i.e": true, "etc": true, "vs": true, "mr": true, "mrs": true,
	"ms": true, "dr": true, "prof": true, "sr": true, "jr": true, "st": true,
	"no": true, "fig": true, "vol": true, "approx": true, "inc": true, "ltd": true,
	"co": true, "corp": true, "jan": true, "feb": true, "mar": true, "apr": true,
	"jun": true, "jul": true, "aug": true, "sep": true, "sept": true, "oct": true,
	"nov": true, "dec": true, "u.s": true, "u.k": true, "a.m": true, "p.m": true,
	"cf": true, "al": true, "resp": true, "ca": true,
}

// Sentences splits text at terminal punctuation followed by whitespace and
// an uppercase letter, digit, quote or markdown marker, at end of text, and
// at paragraph breaks. Common abbreviations and single initials do not end
// a sentence.
func Sentences(text string) []Sentence {
	var out []Sentence
	paraStart := true
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		for _, s := range splitParagraph(para) {
			s.ParagraphStart = paraStart
			out = append(out, s)
			paraStart = false
		}
		paraStart = true
	}
	return out
}

func splitParagraph(p string) []Sentence {
	runes := []rune(p)
	var out []Sentence
	start := 0
	lineStart := false
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		end := i + 1
		for end < len(runes) && (isTerminal(runes[end]) || isCloser(runes[end])) {
			end++
		}
		if end >= len(runes) {
			break
		}
		if !unicode.IsSpace(runes[end]) {
			i = end - 1
			continue
		}
		next := end
		for next < len(runes) && unicode.IsSpace(runes[next]) {
			next++
		}
		if next >= len(runes) {
			break
		}
		if !startsSentence(runes[next]) || (runes[i] == '.' && isAbbreviation(runes[start:i])) {
			i = end - 1
			continue
		}
		out = append(out, Sentence{Text: strings.TrimSpace(string(runes[start:end])), LineStart: lineStart})
		lineStart = strings.ContainsRune(string(runes[end:next]), '\n')
		start = next
		i = next - 1
	}
	if start < len(runes) {
		if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
			out = append(out, Sentence{Text: tail, LineStart: lineStart})
		}
	}
	return out
}

func isTerminal(r rune) bool { return r == '.' || r == '!' || r == '?' || r == '…' }

func isCloser(r rune) bool {
	return r == '"' || r == '\'' || r == ')' || r == ']' || r == '”' || r == '’' || r == '»'
}

func startsSentence(r rune) bool {
	return unicode.IsUpper(r) || unicode.IsDigit(r) || strings.ContainsRune("\"'“‘«([#*-`>", r)
}

// isAbbreviation checks the word ending right before a period.
func isAbbreviation(before []rune) bool {
	j := len(before)
	for j > 0 && !unicode.IsSpace(before[j-1]) && before[j-1] != '(' {
		j--
	}
	word := strings.ToLower(string(before[j:]))
	if word == "" {
		return false
	}
	if utf8.RuneCountInString(word) == 1 && unicode.IsLetter([]rune(word)[0]) {
		return true
	}
	return abbreviations[word]
}
