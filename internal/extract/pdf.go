package extract

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/hyperifyio/gocorpus/internal/corpus"
)

// PDFOptions tune filler removal.
type PDFOptions struct {
	// RepeatRatio is the share of pages a head/tail line must appear on to
	// be treated as a running header or footer. Zero means 0.6.
	RepeatRatio float64
	// MinPages is the page count below which repetition is not checked.
	// Zero means 3.
	MinPages int
}

var (
	fillerLine = regexp.MustCompile(`^[.\s·•\-_=*]{5,}$`)
	pageNumber = regexp.MustCompile(`(?i)^(?:-\s*)?(?:page\s+)?\d{1,4}(?:\s*(?:of|/)\s*\d{1,4})?(?:\s*-)?$`)
	digits     = regexp.MustCompile(`\d+`)
	spaceRun   = regexp.MustCompile(`\s+`)
)

// edgeLines is how many lines at each end of a page are checked for
// running headers and footers.
const edgeLines = 2

// ExtractPDF extracts cleaned text from a PDF document. Encrypted and
// image-only documents report corpus.ErrUnsupportedDocument.
func (e *Engine) ExtractPDF(data []byte, title string) (res Result, err error) {
	res = Result{Title: title, Type: corpus.TypePDF, Strategy: StagePDF}
	pages, err := pdfPages(data)
	if err != nil {
		return res, err
	}
	text := joinPages(removeRunningLines(pages, e.PDF))
	text = Clean(text)
	if strings.TrimSpace(text) == "" {
		return res, fmt.Errorf("%w: no extractable text (image-only document)", corpus.ErrUnsupportedDocument)
	}
	res.Text = text
	res.Quality = Quality(text)
	res.Success = true
	res.Attempts = []Attempt{{Stage: StagePDF, Quality: res.Quality}}
	return res, nil
}

// pdfPages returns the text lines of every page.
func pdfPages(data []byte) (pages [][]string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: pdf: %v", corpus.ErrParse, r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) || strings.Contains(strings.ToLower(err.Error()), "encrypt") {
			return nil, fmt.Errorf("%w: encrypted document", corpus.ErrUnsupportedDocument)
		}
		return nil, fmt.Errorf("%w: pdf: %w", corpus.ErrParse, err)
	}
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pages = append(pages, pageLines(p))
	}
	return pages, nil
}

// pageLines rebuilds the text lines of a page from glyph positions;
// text-less content such as images yields no lines.
func pageLines(p pdf.Page) []string {
	if lines := contentLines(p); len(lines) > 0 {
		return lines
	}
	var lines []string
	plain, err := p.GetPlainText(nil)
	if err != nil {
		return nil
	}
	for _, line := range strings.Split(plain, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

type glyphLine struct {
	y      float64
	glyphs []pdf.Text
}

// contentLines clusters glyphs sharing a baseline, top of page first, and
// orders each line left to right. A horizontal gap wider than a fraction of
// the font size becomes a space.
func contentLines(p pdf.Page) (lines []string) {
	defer func() {
		if r := recover(); r != nil {
			lines = nil
		}
	}()
	var rows []*glyphLine
	for _, t := range p.Content().Text {
		if t.S == "" || t.S == "\n" || t.S == "\r" {
			continue
		}
		tol := math.Max(1, 0.3*t.FontSize)
		var row *glyphLine
		for _, r := range rows {
			if math.Abs(r.y-t.Y) <= tol {
				row = r
				break
			}
		}
		if row == nil {
			row = &glyphLine{y: t.Y}
			rows = append(rows, row)
		}
		row.glyphs = append(row.glyphs, t)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].y > rows[j].y })
	for _, row := range rows {
		g := row.glyphs
		sort.SliceStable(g, func(i, j int) bool { return g[i].X < g[j].X })
		var b strings.Builder
		for i, t := range g {
			if i > 0 {
				prev := g[i-1]
				gap := t.X - (prev.X + prev.W)
				if gap > math.Max(1, 0.2*t.FontSize) && !strings.HasSuffix(prev.S, " ") && !strings.HasPrefix(t.S, " ") {
					b.WriteByte(' ')
				}
			}
			b.WriteString(t.S)
		}
		if line := strings.TrimSpace(spaceRun.ReplaceAllString(b.String(), " ")); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// removeRunningLines drops filler, bare page numbers and header/footer lines
// that repeat across pages.
func removeRunningLines(pages [][]string, opts PDFOptions) [][]string {
	ratio := opts.RepeatRatio
	if ratio <= 0 {
		ratio = 0.6
	}
	minPages := opts.MinPages
	if minPages <= 0 {
		minPages = 3
	}
	repeated := map[string]bool{}
	if len(pages) >= minPages {
		counts := map[string]int{}
		for _, lines := range pages {
			seen := map[string]bool{}
			for _, l := range edges(lines) {
				k := lineKey(l)
				if !seen[k] {
					seen[k] = true
					counts[k]++
				}
			}
		}
		for k, n := range counts {
			if float64(n) >= ratio*float64(len(pages)) {
				repeated[k] = true
			}
		}
	}
	out := make([][]string, 0, len(pages))
	for _, lines := range pages {
		kept := make([]string, 0, len(lines))
		for i, l := range lines {
			if fillerLine.MatchString(l) || pageNumber.MatchString(l) {
				continue
			}
			atEdge := i < edgeLines || i >= len(lines)-edgeLines
			if atEdge && repeated[lineKey(l)] {
				continue
			}
			kept = append(kept, l)
		}
		out = append(out, kept)
	}
	return out
}

func edges(lines []string) []string {
	if len(lines) <= 2*edgeLines {
		return lines
	}
	return append(append([]string(nil), lines[:edgeLines]...), lines[len(lines)-edgeLines:]...)
}

// lineKey ignores digits so "Chapter 1 - page 3" matches across pages.
func lineKey(l string) string {
	return digits.ReplaceAllString(strings.ToLower(strings.TrimSpace(l)), "#")
}

func joinPages(pages [][]string) string {
	parts := make([]string, 0, len(pages))
	for _, lines := range pages {
		if len(lines) > 0 {
			parts = append(parts, strings.Join(lines, "\n"))
		}
	}
	return strings.Join(parts, "\n\n")
}
