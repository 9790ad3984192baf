package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgallion1/docreview/internal/layout"
)

// CopiedArtifact is one staging result copied into the aggregated layout.
type CopiedArtifact struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Aggregate copies every per-page result the extraction service staged for an
// execution into the aggregated layout, in key order. Result keys that do not
// carry a page segment are skipped with a warning.
func Aggregate(ctx context.Context, s Store, executionID string, log *slog.Logger) ([]CopiedArtifact, error) {
	if log == nil {
		log = slog.Default()
	}
	keys, err := s.List(ctx, layout.StagingPrefix(executionID))
	if err != nil {
		return nil, fmt.Errorf("list staged results: %w", err)
	}
	var copied []CopiedArtifact
	for _, key := range keys {
		if !layout.IsResult(key) {
			continue
		}
		dst, err := layout.AggregatedKey(executionID, key)
		if err != nil {
			log.Warn("skipping staged result without page", "execution_id", executionID, "key", key, "error", err)
			continue
		}
		if err := s.Copy(ctx, key, dst); err != nil {
			return copied, fmt.Errorf("aggregate %s: %w", key, err)
		}
		copied = append(copied, CopiedArtifact{From: key, To: dst})
	}
	return copied, nil
}
