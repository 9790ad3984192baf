package review

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dgallion1/docreview/internal/extract"
	"github.com/dgallion1/docreview/internal/fieldtree"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const sessionObject = `{
  "inputContent": {
    "execution_id": "exec-1",
    "presigned_urls": ["https://example.com/p1.png"],
    "fields_by_page": {
      "3": [
        {"field_name": "diagnosis.tumor_size", "value": "10mm", "confidence": 0.4, "type": "string", "geometry": [{"page": 3}]},
        {"value": "no name"}
      ],
      "1": [{"field_name": "ENDORSEMENTS[0]$", "value": "v0", "confidence": 0.5}]
    }
  },
  "humanAnswers": [
    {"answerContent": {
      "diagnosis.tumor_size": "12mm",
      "confirm": {"on": true},
      "ENDORSEMENTS[0]$": "v0-fixed",
      "count": 12.50
    }},
    {"answerContent": {"ignored": "second reviewer"}}
  ]
}`

func TestParseSessionOutput_Object(t *testing.T) {
	s, err := ParseSessionOutput([]byte(sessionObject), quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ExecutionID != "exec-1" || s.Batch.ExecutionID != "exec-1" {
		t.Errorf("expected execution exec-1, got %q / %q", s.ExecutionID, s.Batch.ExecutionID)
	}

	want := []string{"diagnosis.tumor_size", "ENDORSEMENTS[0]$", "count"}
	if len(s.Batch.Corrections) != len(want) {
		t.Fatalf("expected %d corrections, got %+v", len(want), s.Batch.Corrections)
	}
	for i, name := range want {
		if s.Batch.Corrections[i].Field != name {
			t.Errorf("correction %d: expected %q, got %q", i, name, s.Batch.Corrections[i].Field)
		}
	}
	if s.Batch.Corrections[0].Value != "12mm" {
		t.Errorf("expected 12mm, got %v", s.Batch.Corrections[0].Value)
	}
	if n, ok := s.Batch.Corrections[2].Value.(json.Number); !ok || n.String() != "12.50" {
		t.Errorf("expected number literal 12.50, got %#v", s.Batch.Corrections[2].Value)
	}

	if len(s.Inventory.Pages) != 2 {
		t.Fatalf("expected 2 inventory pages, got %d", len(s.Inventory.Pages))
	}
	if s.Inventory.Pages[0].Key != "3" || s.Inventory.Pages[1].Key != "1" {
		t.Errorf("expected document order 3,1, got %s,%s", s.Inventory.Pages[0].Key, s.Inventory.Pages[1].Key)
	}
	if len(s.Inventory.Pages[0].Fields) != 1 {
		t.Errorf("expected nameless descriptor dropped, got %+v", s.Inventory.Pages[0].Fields)
	}
	if s.Inventory.FieldCount() != 2 {
		t.Errorf("expected 2 fields, got %d", s.Inventory.FieldCount())
	}
}

func TestParseSessionOutput_StringContent(t *testing.T) {
	inner := `{"execution_id": "exec-2", "fields_by_page": {"1": [{"field_name": "A"}]}}`
	doc, _ := json.Marshal(map[string]any{
		"inputContent": inner,
		"humanAnswers": []any{map[string]any{"answerContent": map[string]any{"A": "x"}}},
	})
	s, err := ParseSessionOutput(doc, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ExecutionID != "exec-2" {
		t.Errorf("expected exec-2, got %q", s.ExecutionID)
	}
	if s.Inventory.FieldCount() != 1 {
		t.Errorf("expected 1 inventory field, got %d", s.Inventory.FieldCount())
	}
}

func TestParseSessionOutput_NonJSONStringRecoversExecutionID(t *testing.T) {
	doc, _ := json.Marshal(map[string]any{
		"inputContent": `{"execution_id": "exec-3", "fields_by_page": {broken`,
		"humanAnswers": []any{map[string]any{"answerContent": map[string]any{"A": "x"}}},
	})
	s, err := ParseSessionOutput(doc, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ExecutionID != "exec-3" {
		t.Errorf("expected exec-3, got %q", s.ExecutionID)
	}
	if len(s.Inventory.Pages) != 0 {
		t.Errorf("expected empty inventory, got %+v", s.Inventory)
	}
	if len(s.Batch.Corrections) != 1 {
		t.Errorf("expected 1 correction, got %d", len(s.Batch.Corrections))
	}
}

func TestParseSessionOutput_NoAnswers(t *testing.T) {
	s, err := ParseSessionOutput([]byte(`{"inputContent": {"execution_id": "e"}, "humanAnswers": []}`), quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Batch.Corrections) != 0 {
		t.Errorf("expected no corrections, got %+v", s.Batch.Corrections)
	}
}

func TestParseSessionOutput_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":          `nope`,
		"no execution id":   `{"inputContent": {"fields_by_page": {}}}`,
		"unrecoverable id":  `{"inputContent": "garbage"}`,
		"answer not object": `{"inputContent": {"execution_id": "e"}, "humanAnswers": [{"answerContent": [1]}]}`,
		"pages not object":  `{"inputContent": {"execution_id": "e", "fields_by_page": [1]}}`,
	}
	for name, doc := range cases {
		_, err := ParseSessionOutput([]byte(doc), quietLogger())
		if !errors.Is(err, fieldtree.ErrMalformed) {
			t.Errorf("%s: expected ErrMalformed, got %v", name, err)
		}
	}
}

func TestBatchValidate(t *testing.T) {
	if err := (&Batch{}).Validate(); !errors.Is(err, fieldtree.ErrMalformed) {
		t.Errorf("expected missing execution id rejected, got %v", err)
	}
	b := &Batch{ExecutionID: "e", Corrections: []Correction{{Field: "A"}, {Field: ""}}}
	if err := b.Validate(); err != nil {
		t.Errorf("expected empty field name left to the run, got %v", err)
	}
}

func TestBuildInput(t *testing.T) {
	pages := []extract.PageCandidates{
		{Page: 1, Fields: []extract.Candidate{{FieldName: "A", Value: "x", Confidence: 0.4, Type: "string"}}},
		{Page: 2},
		{Page: 3, Fields: []extract.Candidate{{FieldName: "B", Value: "y", Confidence: 0.1, Type: "string"}}},
	}
	in := BuildInput("exec-1", pages, nil)
	if in == nil {
		t.Fatal("expected input")
	}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"presigned_urls":[],"fields_by_page":{` +
		`"1":[{"field_name":"A","value":"x","confidence":0.4,"type":"string","geometry":null}],` +
		`"3":[{"field_name":"B","value":"y","confidence":0.1,"type":"string","geometry":null}]},` +
		`"execution_id":"exec-1"}`
	if string(b) != want {
		t.Errorf("expected\n%s\ngot\n%s", want, b)
	}

	if BuildInput("exec-1", []extract.PageCandidates{{Page: 1}}, nil) != nil {
		t.Error("expected nil input when nothing needs review")
	}
}

func TestBuildInputRoundTripsThroughSession(t *testing.T) {
	in := BuildInput("exec-9", []extract.PageCandidates{
		{Page: 2, Fields: []extract.Candidate{{FieldName: "diagnosis.tumor_size", Value: "10mm", Confidence: 0.4}}},
	}, []string{"u1"})
	content, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	doc, _ := json.Marshal(map[string]any{
		"inputContent": string(content),
		"humanAnswers": []any{map[string]any{"answerContent": map[string]any{"diagnosis.tumor_size": "12mm"}}},
	})
	s, err := ParseSessionOutput(doc, quietLogger())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.ExecutionID != "exec-9" || len(s.Inventory.Pages) != 1 || s.Inventory.Pages[0].Key != "2" {
		t.Errorf("unexpected session %+v", s)
	}
}

func TestLoopName(t *testing.T) {
	now := time.Date(2024, 3, 5, 7, 8, 9, 0, time.UTC)
	if got := LoopName(now); got != "review-loop-20240305070809" {
		t.Errorf("expected review-loop-20240305070809, got %q", got)
	}
}
