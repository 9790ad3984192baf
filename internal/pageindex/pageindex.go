// Package pageindex maps corrected fields to the page they were declared on,
// and pages to the artifact that holds them.
package pageindex

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/dgallion1/docreview/internal/layout"
	"github.com/dgallion1/docreview/internal/review"
)

// PageIndex maps a field name to its one-based page.
type PageIndex map[string]int

// Lookup returns the page a field was declared on.
func (p PageIndex) Lookup(field string) (int, bool) {
	page, ok := p[field]
	return page, ok
}

// BuildPageIndex reads the declared field inventory. Pages whose key is not a
// number are skipped with a warning. A field listed on several pages maps to
// the last one.
func BuildPageIndex(inv review.Inventory, log *slog.Logger) PageIndex {
	idx := make(PageIndex, inv.FieldCount())
	for _, p := range inv.Pages {
		page, err := strconv.Atoi(strings.TrimSpace(p.Key))
		if err != nil {
			log.Warn("skipping inventory page with invalid number", "page", p.Key)
			continue
		}
		for _, f := range p.Fields {
			if f.FieldName == "" {
				continue
			}
			idx[f.FieldName] = page
		}
	}
	return idx
}

// ArtifactIndex maps a one-based page to the key of its artifact.
type ArtifactIndex struct {
	byPage map[int]string
	order  []int
}

// Lookup returns the artifact holding page.
func (a *ArtifactIndex) Lookup(page int) (string, bool) {
	key, ok := a.byPage[page]
	return key, ok
}

// Keys returns the artifact keys in enumeration order: the order in which
// their pages were first listed.
func (a *ArtifactIndex) Keys() []string {
	out := make([]string, 0, len(a.order))
	for _, page := range a.order {
		out = append(out, a.byPage[page])
	}
	return out
}

func (a *ArtifactIndex) Len() int { return len(a.order) }

// BuildArtifactIndex indexes listed artifact keys by the page in their
// address. Keys without a parsable page are left out. When two keys give the
// same page the later one wins.
func BuildArtifactIndex(keys []string, log *slog.Logger) *ArtifactIndex {
	idx := &ArtifactIndex{byPage: make(map[int]string, len(keys))}
	for _, key := range keys {
		page, err := layout.PageFromArtifactKey(key)
		if err != nil {
			log.Warn("skipping artifact with unparsable page", "artifact", key, "error", err)
			continue
		}
		if prev, ok := idx.byPage[page]; ok {
			log.Warn("duplicate artifact for page", "page", page, "replaced", prev, "artifact", key)
		} else {
			idx.order = append(idx.order, page)
		}
		idx.byPage[page] = key
	}
	return idx
}

// Lister is the part of a store needed to enumerate artifacts.
type Lister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

// LoadArtifactIndex lists the aggregated result documents of one execution
// and indexes them.
func LoadArtifactIndex(ctx context.Context, s Lister, executionID string, log *slog.Logger) (*ArtifactIndex, error) {
	keys, err := s.List(ctx, layout.AggregatedPrefix(executionID))
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	var results []string
	for _, key := range keys {
		if layout.IsResult(key) {
			results = append(results, key)
		}
	}
	return BuildArtifactIndex(results, log), nil
}
