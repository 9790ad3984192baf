package fieldtree

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	keyExplainability = "explainability_info"
	keyInference      = "inference_result"
)

// Artifact is one page's extraction result document.
type Artifact struct {
	doc *Object

	// Tree is explainability_info[0]; nil when the document has none.
	Tree *Map
	// rest holds explainability_info[1:], which is carried through untouched.
	rest []json.RawMessage

	// Inference is the flat inference_result mirror; nil when absent.
	Inference *Object
}

// ParseArtifact decodes an artifact document, preserving key order so the
// document can be written back with only reviewer attributes added.
func ParseArtifact(data []byte) (*Artifact, error) {
	doc := NewObject()
	if err := json.Unmarshal(data, doc); err != nil {
		if errors.Is(err, ErrMalformed) {
			return nil, fmt.Errorf("parse artifact: %w", err)
		}
		return nil, fmt.Errorf("parse artifact: %w: %v", ErrMalformed, err)
	}

	a := &Artifact{doc: doc}
	if raw, ok := doc.Get(keyExplainability); ok && !isNull(raw) {
		var infos []json.RawMessage
		if err := json.Unmarshal(raw, &infos); err != nil {
			return nil, fmt.Errorf("parse artifact: %w: %s is not a list", ErrMalformed, keyExplainability)
		}
		if len(infos) > 0 {
			tree, err := DecodeMap(infos[0])
			if err != nil {
				return nil, fmt.Errorf("parse artifact: %s[0]: %w", keyExplainability, err)
			}
			a.Tree = tree
			a.rest = infos[1:]
		}
	}

	if raw, ok := doc.Get(keyInference); ok && !isNull(raw) {
		inf := NewObject()
		// A non-object inference result is kept verbatim and never mirrored into.
		if err := json.Unmarshal(raw, inf); err == nil {
			a.Inference = inf
		}
	}
	return a, nil
}

// MirrorInference overwrites key in the inference result when the key is
// already present there. It never adds keys.
func (a *Artifact) MirrorInference(key string, value any) (bool, error) {
	if a.Inference == nil || !a.Inference.Has(key) {
		return false, nil
	}
	if err := a.Inference.SetValue(key, value); err != nil {
		return false, err
	}
	return true, nil
}

// Encode renders the artifact as indented JSON.
func (a *Artifact) Encode() ([]byte, error) {
	if a.Tree != nil {
		infos := make([]json.RawMessage, 0, 1+len(a.rest))
		tree, err := a.Tree.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("encode field tree: %w", err)
		}
		infos = append(infos, tree)
		infos = append(infos, a.rest...)
		if err := a.doc.SetValue(keyExplainability, infos); err != nil {
			return nil, err
		}
	}
	if a.Inference != nil {
		if err := a.doc.SetValue(keyInference, a.Inference); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a.doc); err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	return buf.Bytes(), nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
