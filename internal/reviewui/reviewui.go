// Package reviewui handles what reviewers see: the task template a review
// session is started with, and an HTML preview of the fields under review.
package reviewui

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/net/html"

	"github.com/dgallion1/docreview/internal/review"
)

// TaskUIName is the name the review task template is registered under.
const TaskUIName = "bda-review-task-ui"

// ErrNoForm is returned when a task template has no form to submit answers.
var ErrNoForm = errors.New("template has no crowd-form or form element")

// LoadTemplate reads a task template and checks that it contains a form
// element. The template text is returned unchanged.
func LoadTemplate(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read template: %w", err)
	}
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	if !hasForm(doc) {
		return "", ErrNoForm
	}
	return string(data), nil
}

// LoadTemplateFile is LoadTemplate for a file on disk.
func LoadTemplateFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open template: %w", err)
	}
	defer f.Close()
	return LoadTemplate(f)
}

func hasForm(n *html.Node) bool {
	if n.Type == html.ElementNode && (n.Data == "crowd-form" || n.Data == "form") {
		return true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if hasForm(c) {
			return true
		}
	}
	return false
}

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

// RenderSheet renders the review sheet for in as HTML: one section per page
// and one table row per field awaiting review.
func RenderSheet(in *review.Input) ([]byte, error) {
	src := Markdown(in)
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return nil, fmt.Errorf("render sheet: %w", err)
	}
	return buf.Bytes(), nil
}

// Markdown is the markdown source of the review sheet.
func Markdown(in *review.Input) string {
	var b strings.Builder
	if in == nil || in.FieldsByPage.FieldCount() == 0 {
		b.WriteString("# Review sheet\n\nNo fields need review.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "# Review sheet: %s\n\n", cell(in.ExecutionID))
	fmt.Fprintf(&b, "%d fields on %d pages.\n", in.FieldsByPage.FieldCount(), len(in.FieldsByPage.Pages))
	for _, p := range in.FieldsByPage.Pages {
		fmt.Fprintf(&b, "\n## Page %s\n\n", cell(p.Key))
		b.WriteString("| Field | Value | Confidence | Type |\n")
		b.WriteString("|---|---|---:|---|\n")
		for _, f := range p.Fields {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
				cell(f.FieldName),
				cell(valueText(f.Value)),
				strconv.FormatFloat(f.Confidence, 'f', 2, 64),
				cell(f.Type))
		}
	}
	return b.String()
}

func valueText(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// cell makes s safe inside a markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "<", "&lt;")
	return s
}
