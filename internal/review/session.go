// Package review reads and writes the documents exchanged with the human
// review workflow: the input payload a review session is started with, and the
// output document it produces.
package review

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/dgallion1/docreview/internal/fieldtree"
)

// Correction is one reviewer-supplied value for a field path.
type Correction struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// Batch is the set of corrections from one review session.
type Batch struct {
	ExecutionID string       `json:"execution_id"`
	Corrections []Correction `json:"corrections"`
}

// Validate rejects batches that cannot be reconciled at all. Problems with a
// single correction, such as an empty field name, are left to the run, which
// records them per field.
func (b *Batch) Validate() error {
	if b.ExecutionID == "" {
		return fmt.Errorf("%w: batch has no execution id", fieldtree.ErrMalformed)
	}
	return nil
}

// Session is the parsed output of one review session.
type Session struct {
	ExecutionID string
	Batch       Batch
	// Inventory is the fields_by_page the session was started with.
	Inventory Inventory
}

var executionIDPattern = regexp.MustCompile(`"execution_id"\s*:\s*"([^"]+)"`)

type sessionOutput struct {
	InputContent json.RawMessage `json:"inputContent"`
	HumanAnswers []struct {
		AnswerContent json.RawMessage `json:"answerContent"`
	} `json:"humanAnswers"`
}

type inputContent struct {
	ExecutionID  string          `json:"execution_id"`
	FieldsByPage json.RawMessage `json:"fields_by_page"`
}

// ParseSessionOutput reads a review session output document.
//
// The input content may be embedded as an object or as a JSON string. When the
// string is not JSON the execution id is recovered from its text and the
// inventory is empty. Only the first human answer is used, and answers that are
// confirmation checkboxes rather than field values are dropped.
func ParseSessionOutput(data []byte, log *slog.Logger) (*Session, error) {
	var out sessionOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse session output: %w: %v", fieldtree.ErrMalformed, err)
	}

	in, err := readInputContent(out.InputContent, log)
	if err != nil {
		return nil, err
	}
	if in.ExecutionID == "" {
		return nil, fmt.Errorf("parse session output: %w: no execution_id in input content", fieldtree.ErrMalformed)
	}

	inv, err := decodeInventory(in.FieldsByPage, log)
	if err != nil {
		return nil, fmt.Errorf("parse session output: %w", err)
	}

	s := &Session{
		ExecutionID: in.ExecutionID,
		Batch:       Batch{ExecutionID: in.ExecutionID},
		Inventory:   inv,
	}

	if len(out.HumanAnswers) == 0 {
		log.Warn("no human answers in session output", "execution_id", in.ExecutionID)
		return s, nil
	}
	answer := out.HumanAnswers[0].AnswerContent
	if len(answer) == 0 || isNull(answer) {
		log.Warn("no answer content in human answer", "execution_id", in.ExecutionID)
		return s, nil
	}
	answers := fieldtree.NewObject()
	if err := json.Unmarshal(answer, answers); err != nil {
		return nil, fmt.Errorf("parse answer content: %w", err)
	}
	for _, name := range answers.Keys() {
		raw, _ := answers.Get(name)
		if isConfirmation(raw) {
			log.Warn("skipping confirmation answer", "execution_id", in.ExecutionID, "field", name)
			continue
		}
		value, err := decodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("parse answer %q: %w: %v", name, fieldtree.ErrMalformed, err)
		}
		s.Batch.Corrections = append(s.Batch.Corrections, Correction{Field: name, Value: value})
	}
	return s, nil
}

func readInputContent(raw json.RawMessage, log *slog.Logger) (inputContent, error) {
	var in inputContent
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isNull(raw) {
		return in, nil
	}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return in, fmt.Errorf("parse input content: %w: %v", fieldtree.ErrMalformed, err)
		}
		if err := json.Unmarshal([]byte(text), &in); err != nil {
			log.Warn("input content is not valid JSON, recovering execution id from text")
			if m := executionIDPattern.FindStringSubmatch(text); m != nil {
				return inputContent{ExecutionID: m[1]}, nil
			}
			return inputContent{}, nil
		}
		return in, nil
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return in, fmt.Errorf("parse input content: %w: %v", fieldtree.ErrMalformed, err)
	}
	return in, nil
}

// isConfirmation reports whether an answer is a checkbox group, which the
// review form submits as an object with an "on" key.
func isConfirmation(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 || t[0] != '{' {
		return false
	}
	obj := fieldtree.NewObject()
	if err := json.Unmarshal(t, obj); err != nil {
		return false
	}
	return obj.Has("on")
}

// decodeValue keeps numbers as their literal text so they are written back
// unchanged.
func decodeValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
