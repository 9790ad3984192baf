// Package source inspects the submitted source document.
package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/dgallion1/docreview/internal/extract"
)

// PageCount returns the number of pages of the PDF held by r.
func PageCount(r io.ReaderAt, size int64) (n int, err error) {
	// The reader panics on some malformed trailers.
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("read pdf: %v", rec)
		}
	}()
	reader, err := pdflib.NewReader(r, size)
	if err != nil {
		return 0, fmt.Errorf("read pdf: %w", err)
	}
	n = reader.NumPage()
	if n <= 0 {
		return 0, fmt.Errorf("read pdf: no pages")
	}
	return n, nil
}

// PageCountFile counts the pages of the PDF at path, asking pdfinfo when the
// Go reader cannot parse the file and fallback is set.
func PageCountFile(ctx context.Context, path string, fallback bool) (int, error) {
	n, err := pageCountOpen(path)
	if err == nil {
		return n, nil
	}
	if !fallback {
		return 0, err
	}
	n, ferr := pdfinfoPages(ctx, path)
	if ferr != nil {
		return 0, fmt.Errorf("%w (pdfinfo: %v)", err, ferr)
	}
	return n, nil
}

func pageCountOpen(path string) (n int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("read pdf: %v", rec)
		}
	}()
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()
	n = reader.NumPage()
	if n <= 0 {
		return 0, fmt.Errorf("read pdf: no pages")
	}
	return n, nil
}

func pdfinfoPages(ctx context.Context, path string) (int, error) {
	out, err := exec.CommandContext(ctx, "pdfinfo", path).Output()
	if err != nil {
		return 0, fmt.Errorf("pdfinfo: %w", err)
	}
	return parsePdfinfo(out)
}

func parsePdfinfo(out []byte) (int, error) {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		name, value, ok := strings.Cut(sc.Text(), ":")
		if !ok || strings.TrimSpace(name) != "Pages" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0, fmt.Errorf("pdfinfo pages %q: %w", value, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("pdfinfo: no page count")
}

// OutOfRange returns the pages of scanned artifacts that the source document
// does not have.
func OutOfRange(pages []extract.PageCandidates, pageCount int) []int {
	var out []int
	for _, p := range pages {
		if p.Page < 1 || p.Page > pageCount {
			out = append(out, p.Page)
		}
	}
	return out
}
