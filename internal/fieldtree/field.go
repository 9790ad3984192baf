package fieldtree

import (
	"encoding/json"
	"fmt"
)

const (
	attrValue         = "value"
	attrConfidence    = "confidence"
	attrType          = "type"
	attrGeometry      = "geometry"
	attrPage          = "page"
	attrNewValue      = "new_value"
	attrHumanReviewed = "human_reviewed"
)

// Field is a leaf of the tree: one extracted value with its confidence.
// All attributes, including ones this package does not interpret, are kept in
// document order.
type Field struct {
	attrs      *Object
	confidence float64
	geometry   []*Object
}

// NewField builds a leaf from its core attributes.
func NewField(value any, confidence float64, typ string) (*Field, error) {
	obj := NewObject()
	if err := obj.SetValue(attrValue, value); err != nil {
		return nil, err
	}
	if err := obj.SetValue(attrConfidence, confidence); err != nil {
		return nil, err
	}
	if typ != "" {
		if err := obj.SetValue(attrType, typ); err != nil {
			return nil, err
		}
	}
	return &Field{attrs: obj, confidence: confidence}, nil
}

func fieldFromObject(obj *Object) (*Field, error) {
	f := &Field{attrs: obj}
	if _, err := obj.Decode(attrConfidence, &f.confidence); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw, ok := obj.Get(attrGeometry); ok {
		// Geometry that is not a list of objects is left as-is.
		var locs []*Object
		if err := json.Unmarshal(raw, &locs); err == nil {
			f.geometry = locs
		}
	}
	return f, nil
}

func (f *Field) Confidence() float64 { return f.confidence }

// Value returns the extracted value, or "" when the leaf has none.
func (f *Field) Value() any {
	var v any
	ok, err := f.attrs.Decode(attrValue, &v)
	if !ok || err != nil {
		return ""
	}
	return v
}

// Type returns the semantic type tag, defaulting to "string".
func (f *Field) Type() string {
	var t string
	if ok, err := f.attrs.Decode(attrType, &t); !ok || err != nil || t == "" {
		return "string"
	}
	return t
}

// Geometry returns the field's location markers. The returned objects are
// shared with the field.
func (f *Field) Geometry() []*Object {
	if f.geometry == nil {
		return []*Object{}
	}
	return f.geometry
}

// SetGeometryPage rewrites the page marker of every location that carries one
// and reports how many were changed.
func (f *Field) SetGeometryPage(page int) (int, error) {
	changed := 0
	for _, loc := range f.geometry {
		if loc == nil || !loc.Has(attrPage) {
			continue
		}
		if err := loc.SetValue(attrPage, page); err != nil {
			return changed, err
		}
		changed++
	}
	if changed == 0 {
		return 0, nil
	}
	if err := f.attrs.SetValue(attrGeometry, f.geometry); err != nil {
		return changed, err
	}
	return changed, nil
}

// SetReviewed records a reviewer correction on the leaf.
func (f *Field) SetReviewed(value any) error {
	if err := f.attrs.SetValue(attrNewValue, value); err != nil {
		return err
	}
	return f.attrs.SetValue(attrHumanReviewed, true)
}

// NewValue returns the reviewer correction, if one was recorded.
func (f *Field) NewValue() (any, bool) {
	var v any
	ok, err := f.attrs.Decode(attrNewValue, &v)
	if !ok || err != nil {
		return nil, false
	}
	return v, true
}

func (f *Field) HumanReviewed() bool {
	var b bool
	ok, err := f.attrs.Decode(attrHumanReviewed, &b)
	return ok && err == nil && b
}

func (f *Field) MarshalJSON() ([]byte, error) {
	return f.attrs.MarshalJSON()
}
