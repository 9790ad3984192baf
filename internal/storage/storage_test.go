package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestFSStore_SaveLoadList(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	docs := map[string]string{
		"aggregated_result/e1/1/result.json": `{"p":2}`,
		"aggregated_result/e1/0/result.json": `{"p":1}`,
		"aggregated_result/e2/0/result.json": `{"p":9}`,
	}
	for k, v := range docs {
		if err := s.Save(ctx, k, []byte(v)); err != nil {
			t.Fatalf("save %s: %v", k, err)
		}
	}

	got, err := s.Load(ctx, "aggregated_result/e1/0/result.json")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != `{"p":1}` {
		t.Errorf("expected saved bytes, got %s", got)
	}

	keys, err := s.List(ctx, "aggregated_result/e1/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"aggregated_result/e1/0/result.json", "aggregated_result/e1/1/result.json"}
	if strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, keys)
	}

	empty, err := s.List(ctx, "aggregated_result/missing/")
	if err != nil {
		t.Fatalf("list missing: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no keys, got %v", empty)
	}
}

func TestFSStore_NotFound(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	_, err = s.Load(context.Background(), "nope/result.json")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var se *Error
	if !errors.As(err, &se) || se.Op != "load" {
		t.Errorf("expected storage error for load, got %#v", err)
	}
}

func TestFSStore_RejectsEscapingKeys(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	for _, key := range []string{"../x", "/abs", "a/../../x", ".locks/e1.lock", "a/.tmp-1", ""} {
		if err := s.Save(context.Background(), key, []byte("{}")); err == nil {
			t.Errorf("expected %q to be rejected", key)
		}
	}
}

func TestFSStore_SaveLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	s, err := NewFSStore(root)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	key := "aggregated_result/e1/0/result.json"
	for i := range 3 {
		if err := s.Save(context.Background(), key, []byte(`{"v":`+string(rune('0'+i))+`}`)); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	entries, err := os.ReadDir(filepath.Join(root, "aggregated_result", "e1", "0"))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the result file, got %d entries", len(entries))
	}
}

func TestFSStore_LockExecution(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	unlock, err := s.LockExecution(context.Background(), "e1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	// A second lock on the same execution waits until ctx expires.
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	if _, err := s.LockExecution(ctx, "e1"); err == nil {
		t.Fatal("expected second lock to fail while held")
	}

	// Other executions are independent.
	unlock2, err := s.LockExecution(context.Background(), "e2")
	if err != nil {
		t.Fatalf("lock e2: %v", err)
	}
	_ = unlock2()

	if err := unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	again, err := s.LockExecution(context.Background(), "e1")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	_ = again()

	keys, err := s.List(context.Background(), "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("expected lock files hidden from listing, got %v", keys)
	}

	if _, err := s.LockExecution(context.Background(), "../e1"); err == nil {
		t.Error("expected invalid execution id to be rejected")
	}
}

func TestStatsSnapshotPercentiles(t *testing.T) {
	stats := NewStats(time.Hour)
	stats.Record(100)
	stats.Record(200)
	stats.Record(300)
	stats.Record(400)
	stats.Record(500)

	snap := stats.Snapshot()
	if snap.Count != 5 {
		t.Fatalf("expected count=5, got %d", snap.Count)
	}
	if snap.MinMs != 100 || snap.MaxMs != 500 {
		t.Fatalf("expected min=100 max=500, got min=%d max=%d", snap.MinMs, snap.MaxMs)
	}
	if snap.AvgMs != 300 {
		t.Fatalf("expected avg=300, got %f", snap.AvgMs)
	}
	if snap.P50Ms != 300 {
		t.Fatalf("expected p50=300, got %f", snap.P50Ms)
	}
	if snap.P95Ms != 480 {
		t.Fatalf("expected p95=480, got %f", snap.P95Ms)
	}
	if snap.P99Ms != 496 {
		t.Fatalf("expected p99=496, got %f", snap.P99Ms)
	}
}

func TestStatsPrunesExpiredSamples(t *testing.T) {
	stats := NewStats(10 * time.Millisecond)
	stats.Record(100)
	stats.RecordError()
	time.Sleep(25 * time.Millisecond)

	snap := stats.Snapshot()
	if snap.Count != 0 || snap.Errors != 0 {
		t.Fatalf("expected empty window after prune, got count=%d errors=%d", snap.Count, snap.Errors)
	}

	stats.Record(-10)
	snap = stats.Snapshot()
	if snap.Count != 1 || snap.MinMs != 0 {
		t.Fatalf("expected one clamped sample, got count=%d min=%d", snap.Count, snap.MinMs)
	}
}

// fakePathstore serves the subset of the pathstore API the store uses.
type fakePathstore struct {
	mu       sync.Mutex
	nodes    map[string]json.RawMessage
	failures int
	calls    int
}

func (f *fakePathstore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if r.Header.Get("Authorization") != "Bearer secret" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if f.failures > 0 {
		f.failures--
		http.Error(w, "busy", http.StatusServiceUnavailable)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/kv/")
	switch r.Method {
	case http.MethodPut:
		var req struct {
			Value json.RawMessage `json:"value"`
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.nodes[key] = req.Value
		w.WriteHeader(http.StatusCreated)
	case http.MethodGet:
		if prefix, ok := strings.CutSuffix(key, "/*"); ok {
			type node struct {
				Key   string          `json:"key_path"`
				Value json.RawMessage `json:"value"`
			}
			var out []node
			for k, v := range f.nodes {
				if strings.HasPrefix(k, prefix+"/") {
					out = append(out, node{Key: k, Value: v})
				}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"nodes": out})
			return
		}
		v, ok := f.nodes[key]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"key_path": key, "value": v})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestPathstore(t *testing.T, f *fakePathstore) *PathstoreStore {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	s := NewPathstoreStore(srv.URL, "secret", nil)
	s.backoff = func(int) time.Duration { return time.Millisecond }
	t.Cleanup(s.Close)
	return s
}

func TestPathstoreStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	f := &fakePathstore{nodes: map[string]json.RawMessage{}}
	s := newTestPathstore(t, f)

	if err := s.Save(ctx, "aggregated_result/e1/1/result.json", []byte(`{"b":1,"a":2}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save(ctx, "aggregated_result/e1/0/result.json", []byte(`{"c":3}`)); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := s.Load(ctx, "aggregated_result/e1/1/result.json")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var got map[string]int
	if err := json.Unmarshal(data, &got); err != nil || got["a"] != 2 {
		t.Errorf("expected stored document, got %s (%v)", data, err)
	}

	keys, err := s.List(ctx, "aggregated_result/e1/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 2 || keys[0] != "aggregated_result/e1/0/result.json" {
		t.Errorf("expected sorted keys, got %v", keys)
	}

	if err := s.Copy(ctx, "aggregated_result/e1/0/result.json", "aggregated_result/e2/0/result.json"); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if _, err := s.Load(ctx, "aggregated_result/e2/0/result.json"); err != nil {
		t.Errorf("expected copied node, got %v", err)
	}

	if _, err := s.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.Save(ctx, "bad", []byte("not json")); err == nil {
		t.Error("expected invalid JSON to be rejected")
	}
}

func TestPathstoreStore_RetriesTransientFailures(t *testing.T) {
	f := &fakePathstore{nodes: map[string]json.RawMessage{"k": json.RawMessage(`{}`)}, failures: 2}
	s := newTestPathstore(t, f)

	if _, err := s.Load(context.Background(), "k"); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if f.calls != 3 {
		t.Errorf("expected 3 calls, got %d", f.calls)
	}
}

func TestPathstoreStore_GivesUpAfterMaxRetries(t *testing.T) {
	f := &fakePathstore{nodes: map[string]json.RawMessage{}, failures: 10}
	s := newTestPathstore(t, f)

	err := s.Save(context.Background(), "k", []byte(`{}`))
	if !IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	var se *Error
	if !errors.As(err, &se) || se.Op != "save" {
		t.Errorf("expected storage error for save, got %v", err)
	}
	if f.calls != MaxRetries {
		t.Errorf("expected %d calls, got %d", MaxRetries, f.calls)
	}
}

func TestPathstoreStore_ClientErrorNotRetried(t *testing.T) {
	f := &fakePathstore{nodes: map[string]json.RawMessage{}}
	srv := httptest.NewServer(f)
	defer srv.Close()
	s := NewPathstoreStore(srv.URL, "wrong", nil)
	s.backoff = func(int) time.Duration { return time.Millisecond }

	if _, err := s.Load(context.Background(), "k"); err == nil || IsRetryable(err) {
		t.Fatalf("expected non-retryable error, got %v", err)
	}
	if f.calls != 1 {
		t.Errorf("expected a single call, got %d", f.calls)
	}
}
