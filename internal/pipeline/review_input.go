package pipeline

import (
	"context"
	"log/slog"

	"github.com/dgallion1/docreview/internal/extract"
	"github.com/dgallion1/docreview/internal/review"
	"github.com/dgallion1/docreview/internal/source"
	"github.com/dgallion1/docreview/internal/storage"
)

// ReviewInput builds the review payload for an execution from its aggregated
// artifacts. When pageCount is positive, artifacts addressed past the end of
// the source document are reported. A nil input means no field needs review.
func ReviewInput(ctx context.Context, store storage.Store, executionID string, threshold float64, pageCount int, log *slog.Logger) (*review.Input, error) {
	log = log.With("execution_id", executionID)
	pages, err := extract.ScanExecution(ctx, store, executionID, threshold, log)
	if err != nil {
		return nil, err
	}
	if pageCount > 0 {
		for _, page := range source.OutOfRange(pages, pageCount) {
			log.Warn("artifact page beyond source document", "page", page, "page_count", pageCount)
		}
	}

	in := review.BuildInput(executionID, pages, nil)
	if in == nil {
		log.Info("no fields below threshold", "threshold", threshold, "artifacts", len(pages))
		return nil, nil
	}
	log.Info("built review input",
		"threshold", threshold,
		"pages", len(in.FieldsByPage.Pages),
		"fields", in.FieldsByPage.FieldCount())
	return in, nil
}
