package review

import (
	"strconv"
	"time"

	"github.com/dgallion1/docreview/internal/extract"
)

// Input is the payload a review session is started with.
type Input struct {
	PresignedURLs []string  `json:"presigned_urls"`
	FieldsByPage  Inventory `json:"fields_by_page"`
	ExecutionID   string    `json:"execution_id"`
}

// BuildInput groups candidates by one-based page. Pages without candidates are
// left out, and nil is returned when no page needs review.
func BuildInput(executionID string, pages []extract.PageCandidates, imageURLs []string) *Input {
	var inv Inventory
	for _, p := range pages {
		if len(p.Fields) == 0 {
			continue
		}
		inv.Pages = append(inv.Pages, InventoryPage{Key: strconv.Itoa(p.Page), Fields: p.Fields})
	}
	if len(inv.Pages) == 0 {
		return nil
	}
	if imageURLs == nil {
		imageURLs = []string{}
	}
	return &Input{
		PresignedURLs: imageURLs,
		FieldsByPage:  inv,
		ExecutionID:   executionID,
	}
}

// LoopName names a review session started at now.
func LoopName(now time.Time) string {
	return "review-loop-" + now.Format("20060102150405")
}
