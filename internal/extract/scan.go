package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/dgallion1/docreview/internal/fieldtree"
	"github.com/dgallion1/docreview/internal/layout"
	"github.com/dgallion1/docreview/internal/storage"
)

// PageCandidates are the low-confidence fields of one artifact.
type PageCandidates struct {
	Page     int         `json:"page"`
	Artifact string      `json:"artifact"`
	Fields   []Candidate `json:"fields"`
}

// ScanExecution extracts review candidates from every aggregated artifact of
// an execution, ordered by page. Artifacts whose address has no page or whose
// document cannot be parsed are skipped with a warning.
func ScanExecution(ctx context.Context, s storage.Store, executionID string, threshold float64, log *slog.Logger) ([]PageCandidates, error) {
	keys, err := s.List(ctx, layout.AggregatedPrefix(executionID))
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	type pageKey struct {
		page int
		key  string
	}
	var found []pageKey
	for _, key := range keys {
		if !layout.IsResult(key) {
			continue
		}
		page, err := layout.PageFromArtifactKey(key)
		if err != nil {
			log.Warn("skipping artifact without page", "artifact", key, "error", err)
			continue
		}
		found = append(found, pageKey{page: page, key: key})
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].page < found[j].page })

	out := make([]PageCandidates, 0, len(found))
	for _, pk := range found {
		data, err := s.Load(ctx, pk.key)
		if err != nil {
			return nil, fmt.Errorf("load artifact: %w", err)
		}
		art, err := fieldtree.ParseArtifact(data)
		if err != nil {
			if errors.Is(err, fieldtree.ErrMalformed) {
				log.Warn("skipping malformed artifact", "artifact", pk.key, "error", err)
				continue
			}
			return nil, err
		}
		fields, err := LowConfidence(art.Tree, threshold, pk.page)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", pk.key, err)
		}
		out = append(out, PageCandidates{Page: pk.page, Artifact: pk.key, Fields: fields})
	}
	return out, nil
}
