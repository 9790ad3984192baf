// Package extract collects the fields a reviewer needs to look at: every leaf
// whose confidence is below the acceptance threshold, named by its field path
// and tagged with the page it came from.
package extract

import (
	"github.com/dgallion1/docreview/internal/fieldpath"
	"github.com/dgallion1/docreview/internal/fieldtree"
)

// DefaultThreshold is the confidence at or above which a field is accepted
// without review.
const DefaultThreshold = 0.70

// Candidate is one field routed to review.
type Candidate struct {
	FieldName  string              `json:"field_name"`
	Value      any                 `json:"value"`
	Confidence float64             `json:"confidence"`
	Type       string              `json:"type"`
	Geometry   []*fieldtree.Object `json:"geometry"`
}

// LowConfidence walks tree and returns every leaf with confidence below
// threshold, in document order.
//
// Every visited leaf has its geometry page markers rewritten to page, the
// one-based page of the artifact the tree belongs to, including leaves that
// are not returned.
func LowConfidence(tree *fieldtree.Map, threshold float64, page int) ([]Candidate, error) {
	var (
		out      []Candidate
		firstErr error
	)
	fieldpath.Walk(tree, func(path string, f *fieldtree.Field) {
		if _, err := f.SetGeometryPage(page); err != nil && firstErr == nil {
			firstErr = err
		}
		if f.Confidence() >= threshold {
			return
		}
		out = append(out, Candidate{
			FieldName:  path,
			Value:      f.Value(),
			Confidence: f.Confidence(),
			Type:       f.Type(),
			Geometry:   f.Geometry(),
		})
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
