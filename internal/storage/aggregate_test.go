package storage_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/docreview/internal/storage"
	"github.com/dgallion1/docreview/internal/storage/storagetest"
)

func TestLockerFor(t *testing.T) {
	fs, err := storage.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	if _, ok := storage.LockerFor(storage.Instrument(fs, time.Minute)); !ok {
		t.Error("expected locker through instrumented wrapper")
	}
	if _, ok := storage.LockerFor(storagetest.NewMemStore()); ok {
		t.Error("expected no locker for memory store")
	}
}

func TestAggregate(t *testing.T) {
	ctx := context.Background()
	m := storagetest.NewMemStore()
	m.Put("bda-output/e1/0/custom_output/0/result.json", []byte(`{"page":0}`))
	m.Put("bda-output/e1/0/custom_output/1/result.json", []byte(`{"page":1}`))
	m.Put("bda-output/e1/0/custom_output/1/standard.json", []byte(`{}`))
	m.Put("bda-output/e1/0/job_metadata.json", []byte(`{}`))
	m.Put("bda-output/e1/0/custom_output/result.json", []byte(`{}`))

	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, nil))
	copied, err := storage.Aggregate(ctx, m, "e1", log)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(copied) != 2 {
		t.Fatalf("expected 2 copies, got %d: %v", len(copied), copied)
	}
	if copied[1].To != "aggregated_result/e1/1/result.json" {
		t.Errorf("unexpected destination %q", copied[1].To)
	}
	data, err := m.Load(ctx, "aggregated_result/e1/1/result.json")
	if err != nil {
		t.Fatalf("load copy: %v", err)
	}
	if string(data) != `{"page":1}` {
		t.Errorf("expected copied bytes, got %s", data)
	}
	if !strings.Contains(logs.String(), "skipping staged result without page") ||
		!strings.Contains(logs.String(), "custom_output/result.json") {
		t.Errorf("expected warning for result without page, got %q", logs.String())
	}
}

func TestInstrumentedRecordsPerOperation(t *testing.T) {
	m := storagetest.NewMemStore()
	s := storage.Instrument(m, time.Hour)
	ctx := context.Background()
	_ = s.Save(ctx, "a", []byte("{}"))
	_, _ = s.Load(ctx, "a")
	_, _ = s.Load(ctx, "missing")

	snap := s.Snapshot()
	if snap["load"].Count != 2 {
		t.Errorf("expected 2 loads, got %d", snap["load"].Count)
	}
	if snap["load"].Errors != 1 {
		t.Errorf("expected 1 load error, got %d", snap["load"].Errors)
	}
	if snap["save"].Count != 1 {
		t.Errorf("expected 1 save, got %d", snap["save"].Count)
	}
	if snap["copy"].Count != 0 {
		t.Errorf("expected no copies, got %d", snap["copy"].Count)
	}
}
