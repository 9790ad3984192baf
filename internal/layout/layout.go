// Package layout maps executions and pages to storage keys.
//
// The extraction service writes one result per page under a staging prefix:
//
//	bda-output/{execution}/0/custom_output/{page}/result.json
//
// Before review those results are copied to the aggregated layout that the
// reconciliation run reads and rewrites:
//
//	aggregated_result/{execution}/{page}/result.json
//
// Page segments in both layouts are zero-based.
package layout

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	StagingRoot    = "bda-output"
	AggregatedRoot = "aggregated_result"
	ResultFile     = "result.json"

	customOutput = "custom_output"
)

// ExecutionIDFromInvocation returns the execution identifier carried as the
// last path segment of an extraction invocation ARN.
func ExecutionIDFromInvocation(arn string) string {
	arn = strings.TrimRight(arn, "/")
	if i := strings.LastIndex(arn, "/"); i >= 0 {
		return arn[i+1:]
	}
	return arn
}

// StagingPrefix is the prefix holding the extraction service's raw output.
func StagingPrefix(executionID string) string {
	return fmt.Sprintf("%s/%s/0/%s/", StagingRoot, executionID, customOutput)
}

// AggregatedPrefix is the prefix holding one execution's per-page artifacts.
func AggregatedPrefix(executionID string) string {
	return fmt.Sprintf("%s/%s/", AggregatedRoot, executionID)
}

// ArtifactKey is the aggregated key for a zero-based page.
func ArtifactKey(executionID string, page0 int) string {
	return fmt.Sprintf("%s%d/%s", AggregatedPrefix(executionID), page0, ResultFile)
}

// IsResult reports whether key names a per-page result document.
func IsResult(key string) bool {
	return strings.HasSuffix(key, "/"+ResultFile)
}

// PageFromArtifactKey reads the zero-based page segment in front of the file
// name and returns it one-based.
func PageFromArtifactKey(key string) (int, error) {
	parts := strings.Split(key, "/")
	if len(parts) < 2 {
		return 0, fmt.Errorf("artifact key %q: no page segment", key)
	}
	page0, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil || page0 < 0 {
		return 0, fmt.Errorf("artifact key %q: invalid page segment %q", key, parts[len(parts)-2])
	}
	return page0 + 1, nil
}

// PageFromStagingKey reads the segment after custom_output and returns it one-based.
func PageFromStagingKey(key string) (int, error) {
	seg, ok := stagingPageSegment(key)
	if !ok {
		return 0, fmt.Errorf("staging key %q: no %s segment", key, customOutput)
	}
	page0, err := strconv.Atoi(seg)
	if err != nil || page0 < 0 {
		return 0, fmt.Errorf("staging key %q: invalid page segment %q", key, seg)
	}
	return page0 + 1, nil
}

// AggregatedKey maps a staging key to its place in the aggregated layout,
// keeping the page segment and file name.
func AggregatedKey(executionID, stagingKey string) (string, error) {
	seg, ok := stagingPageSegment(stagingKey)
	if !ok {
		return "", fmt.Errorf("staging key %q: no %s segment", stagingKey, customOutput)
	}
	parts := strings.Split(stagingKey, "/")
	return AggregatedPrefix(executionID) + seg + "/" + parts[len(parts)-1], nil
}

func stagingPageSegment(key string) (string, bool) {
	parts := strings.Split(key, "/")
	for i, part := range parts {
		// The page is a directory: at least a file name must follow it.
		if part == customOutput && i+2 < len(parts) {
			return parts[i+1], true
		}
	}
	return "", false
}
