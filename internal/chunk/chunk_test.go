package chunk

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func article(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("Sentence %04d %s.", i, strings.Repeat("x", 84))
	}
	return strings.Join(parts, " ")
}

func TestSplit_TwentyThousandCharacters(t *testing.T) {
	t.Parallel()
	text := article(200)
	if utf8.RuneCountInString(text) != 19999 {
		t.Fatalf("fixture length %d", utf8.RuneCountInString(text))
	}
	chunks := Chunker{}.Split(text)
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}
	wantLens := []int{5999, 5999, 5999, 1999}
	for i, c := range chunks {
		if len(c) != wantLens[i] {
			t.Fatalf("chunk %d length %d, want %d", i, len(c), wantLens[i])
		}
		if !strings.HasSuffix(c, ".") {
			t.Fatalf("chunk %d does not end on a sentence boundary", i)
		}
	}
}

func TestSplit_ConservesContent(t *testing.T) {
	t.Parallel()
	text := "Intro paragraph. It has two sentences!\n\n" +
		"Dr. Smith met Mr. Jones at 5 p.m. yesterday. They talked about U.S. policy, e.g. tariffs.\n\n" +
		"\"Quoted sentence.\" Another one? Yes… 42 is the answer. " + article(30)
	for _, budget := range []int{40, 120, 500, 6000} {
		chunks := Split(Normalize(text), budget)
		joined := strings.Join(chunks, " ")
		if strings.Join(strings.Fields(joined), " ") != strings.Join(strings.Fields(Normalize(text)), " ") {
			t.Fatalf("budget %d: content not conserved", budget)
		}
		seen := map[string]int{}
		for _, c := range chunks {
			for _, s := range Sentences(c) {
				seen[s.Text]++
			}
		}
		for s, n := range seen {
			if n > 1 && !strings.HasPrefix(s, "Sentence") {
				t.Fatalf("budget %d: sentence %q duplicated", budget, s)
			}
		}
	}
}

func TestSplit_BoundAndOversizedSentence(t *testing.T) {
	t.Parallel()
	long := "This sentence is very long " + strings.Repeat("and keeps going ", 40) + "until it ends."
	text := "Short one. " + long + " Short two. Short three."
	chunks := Split(text, 100)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %q", len(chunks), chunks)
	}
	if chunks[1] != long {
		t.Fatalf("oversized sentence must be emitted whole: %q", chunks[1])
	}
	for i, c := range chunks {
		if i != 1 && utf8.RuneCountInString(c) > 100 {
			t.Fatalf("chunk %d exceeds budget: %d", i, len(c))
		}
	}
	if Split("", 100) != nil || len(Chunker{}.Split("  \n\n ")) != 0 {
		t.Fatalf("empty input must yield no chunks")
	}
	if got := Split("One word", 100); len(got) != 1 {
		t.Fatalf("non-empty input must yield at least one chunk: %v", got)
	}
}

func TestSentences_Abbreviations(t *testing.T) {
	t.Parallel()
	got := Sentences("Dr. Smith arrived at 9 a.m. Then he left. See Fig. 3 for details, i.e. the chart. J. R. R. Tolkien wrote it.")
	want := []string{
		"Dr. Smith arrived at 9 a.m. Then he left.",
		"See Fig. 3 for details, i.e. the chart.",
		"J. R. R. Tolkien wrote it.",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d sentences: %+v", len(got), got)
	}
	for i := range want {
		if got[i].Text != want[i] {
			t.Fatalf("sentence %d = %q, want %q", i, got[i].Text, want[i])
		}
	}
}

func TestSentences_ParagraphsAndLowercase(t *testing.T) {
	t.Parallel()
	got := Sentences("version 1.2.3 shipped. then more text\n\nNew paragraph here")
	if len(got) != 2 || got[0].Text != "version 1.2.3 shipped. then more text" || !got[1].ParagraphStart {
		t.Fatalf("unexpected sentences %+v", got)
	}
}

func TestSplit_KeepsLineBreaksBetweenListItems(t *testing.T) {
	t.Parallel()
	text := "Steps to deploy:\n- Build the image.\n- Push it to the registry.\n- Roll out the release.\n\nDone. It took an hour."
	chunks := Chunker{}.Split(text)
	if len(chunks) != 1 || chunks[0] != text {
		t.Fatalf("markdown layout lost: %q", chunks)
	}
	got := Sentences(text)
	if len(got) != 5 || !got[1].LineStart || !got[2].LineStart || got[3].LineStart || !got[3].ParagraphStart || got[4].LineStart {
		t.Fatalf("unexpected sentences %+v", got)
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	in := "Cafe\u0301  au lait\r\n\r\n\r\n\r\n.........\nzero\u200bwidth\t\ttabs\n\n\n"
	want := "Caf\u00e9 au lait\n\nzerowidth tabs"
	if got := Normalize(in); got != want {
		t.Fatalf("Normalize = %q, want %q", got, want)
	}
}
