package pageindex

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/dgallion1/docreview/internal/extract"
	"github.com/dgallion1/docreview/internal/review"
	"github.com/dgallion1/docreview/internal/storage/storagetest"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildPageIndex(t *testing.T) {
	inv := review.Inventory{Pages: []review.InventoryPage{
		{Key: "1", Fields: []extract.Candidate{{FieldName: "A"}, {FieldName: "shared"}}},
		{Key: "cover", Fields: []extract.Candidate{{FieldName: "B"}}},
		{Key: "3", Fields: []extract.Candidate{{FieldName: "diagnosis.tumor_size"}, {FieldName: "shared"}, {FieldName: ""}}},
	}}
	idx := BuildPageIndex(inv, quietLogger())

	cases := map[string]int{"A": 1, "diagnosis.tumor_size": 3, "shared": 3}
	for name, want := range cases {
		got, ok := idx.Lookup(name)
		if !ok || got != want {
			t.Errorf("%s: expected page %d, got %d (found=%v)", name, want, got, ok)
		}
	}
	if _, ok := idx.Lookup("B"); ok {
		t.Error("expected field on non-numeric page to be skipped")
	}
	if len(idx) != 3 {
		t.Errorf("expected 3 entries, got %d", len(idx))
	}
}

func TestBuildArtifactIndex(t *testing.T) {
	keys := []string{
		"aggregated_result/e1/0/result.json",
		"aggregated_result/e1/2/result.json",
		"aggregated_result/e1/notapage/result.json",
		"other/e1/2/result.json",
		"aggregated_result/e1/4/result.json",
	}
	idx := BuildArtifactIndex(keys, quietLogger())

	if idx.Len() != 3 {
		t.Fatalf("expected 3 pages, got %d", idx.Len())
	}
	if key, ok := idx.Lookup(1); !ok || key != "aggregated_result/e1/0/result.json" {
		t.Errorf("expected page 1 at page0 0, got %q", key)
	}
	// Later listing for page 3 replaces the earlier one but keeps its position.
	if key, _ := idx.Lookup(3); key != "other/e1/2/result.json" {
		t.Errorf("expected last-listed artifact for page 3, got %q", key)
	}
	want := "aggregated_result/e1/0/result.json,other/e1/2/result.json,aggregated_result/e1/4/result.json"
	if got := strings.Join(idx.Keys(), ","); got != want {
		t.Errorf("expected order %s, got %s", want, got)
	}
	if _, ok := idx.Lookup(2); ok {
		t.Error("expected no artifact for page 2")
	}
}

func TestLoadArtifactIndex(t *testing.T) {
	s := storagetest.NewMemStore()
	s.Put("aggregated_result/e1/0/result.json", []byte(`{}`))
	s.Put("aggregated_result/e1/1/result.json", []byte(`{}`))
	s.Put("aggregated_result/e1/1/metadata.json", []byte(`{}`))
	s.Put("aggregated_result/e10/0/result.json", []byte(`{}`))

	idx, err := LoadArtifactIndex(context.Background(), s, "e1", quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.Len() != 2 {
		t.Fatalf("expected 2 artifacts, got %d: %v", idx.Len(), idx.Keys())
	}
	if key, _ := idx.Lookup(2); key != "aggregated_result/e1/1/result.json" {
		t.Errorf("unexpected artifact for page 2: %q", key)
	}
}
