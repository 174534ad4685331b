package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/ledongthuc/pdf"

	"github.com/hyperifyio/gocorpus/internal/corpus"
	"github.com/hyperifyio/gocorpus/internal/fetch"
)

func handbookPDF(t *testing.T, protect bool) []byte {
	t.Helper()
	pdf := gofpdf.New("P", "mm", "A4", "")
	if protect {
		pdf.SetProtection(gofpdf.CnProtectPrint, "secret", "owner")
	}
	pdf.SetHeaderFunc(func() {
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(0, 10, "ACME Engineering Handbook", "", 1, "C", false, 0, "")
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	body := [][2]string{
		{"Deployment starts with a reviewed change.", "Rollbacks must be rehearsed before launch."},
		{"Canary traffic exposes regressions early.", "Dashboards show error budgets per service."},
		{"Incidents end with a written review.", "Section three explains rollbacks in detail."},
	}
	for _, lines := range body {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "", 12)
		pdf.CellFormat(0, 10, lines[0], "", 1, "L", false, 0, "")
		pdf.CellFormat(0, 10, "..........", "", 1, "L", false, 0, "")
		pdf.CellFormat(0, 10, lines[1], "", 1, "L", false, 0, "")
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		t.Fatalf("build pdf: %v", err)
	}
	return buf.Bytes()
}

func TestExtractPDF_DropsRunningHeadersAndPageNumbers(t *testing.T) {
	t.Parallel()
	e := &Engine{}
	res, err := e.ExtractPDF(handbookPDF(t, false), "handbook")
	if err != nil {
		t.Fatalf("extract pdf: %v", err)
	}
	for _, want := range []string{"Deployment starts with a reviewed change.", "Canary traffic exposes regressions early.", "Incidents end with a written review."} {
		if !strings.Contains(res.Text, want) {
			t.Fatalf("missing %q in %q", want, res.Text)
		}
	}
	for _, junk := range []string{"ACME Engineering Handbook", "Page 2", ".........."} {
		if strings.Contains(res.Text, junk) {
			t.Fatalf("filler %q not removed: %q", junk, res.Text)
		}
	}
	if res.Title != "handbook" || res.Type != corpus.TypePDF || res.Strategy != StagePDF || !res.Success {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestPageLines_SeparatesRowsTopDown(t *testing.T) {
	t.Parallel()
	data := handbookPDF(t, false)
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open pdf: %v", err)
	}
	got := pageLines(r.Page(2))
	want := []string{
		"ACME Engineering Handbook",
		"Canary traffic exposes regressions early.",
		"..........",
		"Dashboards show error budgets per service.",
		"Page 2",
	}
	if !slices.Equal(got, want) {
		t.Fatalf("page lines = %q, want %q", got, want)
	}
}

func TestExtractPDF_EncryptedIsUnsupported(t *testing.T) {
	t.Parallel()
	_, err := (&Engine{}).ExtractPDF(handbookPDF(t, true), "locked")
	if !errors.Is(err, corpus.ErrUnsupportedDocument) {
		t.Fatalf("expected ErrUnsupportedDocument, got %v", err)
	}
}

func TestExtractPDF_ImageOnlyIsUnsupported(t *testing.T) {
	t.Parallel()
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFillColor(200, 200, 200)
	pdf.Rect(20, 20, 100, 60, "F")
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		t.Fatal(err)
	}
	_, err := (&Engine{}).ExtractPDF(buf.Bytes(), "scan")
	if !errors.Is(err, corpus.ErrUnsupportedDocument) {
		t.Fatalf("expected ErrUnsupportedDocument, got %v", err)
	}
}

func TestExtractPDF_Malformed(t *testing.T) {
	t.Parallel()
	_, err := (&Engine{}).ExtractPDF([]byte("this is not a pdf"), "junk")
	if !errors.Is(err, corpus.ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}

func TestExtractSource_LocalAndRemotePDF(t *testing.T) {
	t.Parallel()
	data := handbookPDF(t, false)
	path := filepath.Join(t.TempDir(), "ops-guide.pdf")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	e := &Engine{}
	res, err := e.ExtractSource(context.Background(), corpus.NewSource(path, ""))
	if err != nil || res.Title != "ops-guide" {
		t.Fatalf("local pdf: %+v %v", res.Title, err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(data)
	}))
	defer srv.Close()
	e.Fetcher = &fetch.Client{}
	res, err = e.ExtractSource(context.Background(), corpus.NewSource(srv.URL+"/download?id=7", ""))
	if err != nil {
		t.Fatalf("remote pdf: %v", err)
	}
	if res.Type != corpus.TypePDF || !strings.Contains(res.Text, "Section three explains rollbacks") {
		t.Fatalf("remote pdf not routed to pdf chain: %+v", res)
	}
}

func TestRemoveRunningLines(t *testing.T) {
	t.Parallel()
	pages := [][]string{
		{"Acme Report 2024", "Intro text.", "1"},
		{"Acme Report 2024", "Middle text.", "Page 2 of 3"},
		{"Acme Report 2024", "Closing text.", "- 3 -"},
	}
	got := joinPages(removeRunningLines(pages, PDFOptions{}))
	if got != "Intro text.\n\nMiddle text.\n\nClosing text." {
		t.Fatalf("got %q", got)
	}
	// Two pages are below the repetition minimum.
	got = joinPages(removeRunningLines(pages[:2], PDFOptions{}))
	if !strings.Contains(got, "Acme Report 2024") {
		t.Fatalf("short documents keep their headers: %q", got)
	}
}
