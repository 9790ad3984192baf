package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTest(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestRecordAndGet(t *testing.T) {
	l := openTest(t)
	ctx := context.Background()

	run := Run{
		ID:          "run-1",
		ExecutionID: "exec-1",
		Status:      "reconciling",
	}
	if err := l.Record(ctx, run); err != nil {
		t.Fatalf("record: %v", err)
	}
	first, err := l.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if first.Status != "reconciling" || len(first.ArtifactsModified) != 0 || first.Error != "" {
		t.Errorf("unexpected run %+v", first)
	}

	run.Status = "partial"
	run.FieldsConsidered = 3
	run.ArtifactsModified = []string{"aggregated_result/exec-1/2/result.json"}
	run.Unresolved = []string{"nowhere"}
	run.Error = "reconcile x: disk full"
	run.UpdatedAt = time.Now().Add(time.Minute)
	if err := l.Record(ctx, run); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := l.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != "partial" || got.FieldsConsidered != 3 {
		t.Errorf("expected updated status and count, got %+v", got)
	}
	if len(got.ArtifactsModified) != 1 || got.Unresolved[0] != "nowhere" {
		t.Errorf("expected lists round-tripped, got %+v", got)
	}
	if got.Error != "reconcile x: disk full" {
		t.Errorf("expected error text, got %q", got.Error)
	}
	if !got.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("expected created_at kept, got %v then %v", first.CreatedAt, got.CreatedAt)
	}
}

func TestGetMissing(t *testing.T) {
	l := openTest(t)
	if _, err := l.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListByExecution(t *testing.T) {
	l := openTest(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		err := l.Record(ctx, Run{ID: id, ExecutionID: "exec-1", Status: "completed", CreatedAt: base.Add(time.Duration(i) * time.Hour)})
		if err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
	}
	if err := l.Record(ctx, Run{ID: "z", ExecutionID: "exec-2", Status: "completed"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	runs, err := l.ListByExecution(ctx, "exec-1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 3 || runs[0].ID != "c" || runs[2].ID != "a" {
		t.Fatalf("expected newest first, got %+v", runs)
	}

	limited, err := l.ListByExecution(ctx, "exec-1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 runs, got %d", len(limited))
	}
}

func TestRecordRequiresIDs(t *testing.T) {
	l := openTest(t)
	if err := l.Record(context.Background(), Run{ExecutionID: "e"}); err == nil {
		t.Error("expected missing id rejected")
	}
}

func TestReopenChecksSchemaVersion(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")
	l, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := l.db.ExecContext(ctx, "UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = l.Close()

	if _, err := Open(ctx, path); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
