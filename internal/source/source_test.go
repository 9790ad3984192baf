package source

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgallion1/docreview/internal/extract"
)

// minimalPDF builds a PDF with n empty pages and a valid cross-reference table.
func minimalPDF(n int) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := make([]string, n)
	for i := range n {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))
	for range n {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func TestPageCount(t *testing.T) {
	data := minimalPDF(3)
	n, err := PageCount(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 pages, got %d", n)
	}
}

func TestPageCount_NotPDF(t *testing.T) {
	data := []byte("plain text, not a pdf")
	if _, err := PageCount(bytes.NewReader(data), int64(len(data))); err == nil {
		t.Error("expected error for non-pdf input")
	}
}

func TestPageCountFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, minimalPDF(2), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	n, err := PageCountFile(t.Context(), path, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 pages, got %d", n)
	}
}

func TestParsePdfinfo(t *testing.T) {
	out := []byte("Title:          report\nPages:          12\nEncrypted:      no\n")
	n, err := parsePdfinfo(out)
	if err != nil || n != 12 {
		t.Errorf("expected 12 pages, got %d (%v)", n, err)
	}
	if _, err := parsePdfinfo([]byte("Title: x\n")); err == nil {
		t.Error("expected error without a Pages line")
	}
}

func TestOutOfRange(t *testing.T) {
	pages := []extract.PageCandidates{{Page: 1}, {Page: 3}, {Page: 4}, {Page: 0}}
	got := OutOfRange(pages, 3)
	if len(got) != 2 || got[0] != 4 || got[1] != 0 {
		t.Errorf("expected [4 0], got %v", got)
	}
}
