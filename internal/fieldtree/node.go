// Package fieldtree models the per-page explainability documents produced by the
// extraction service: a tree of named fields, each leaf carrying a value and a
// confidence score.
package fieldtree

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed marks input that cannot be read as the expected document shape.
var ErrMalformed = errors.New("malformed input")

// Kind tags the variant held by a Node.
type Kind int

const (
	// KindOpaque holds a JSON value that is not part of the field structure.
	KindOpaque Kind = iota
	KindLeaf
	KindSequence
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindSequence:
		return "sequence"
	case KindMap:
		return "map"
	default:
		return "opaque"
	}
}

// Node is one value in a field tree.
type Node struct {
	kind  Kind
	field *Field
	items []*Node
	m     *Map
	raw   json.RawMessage
}

func LeafNode(f *Field) *Node {
	return &Node{kind: KindLeaf, field: f}
}

func SequenceNode(items ...*Node) *Node {
	return &Node{kind: KindSequence, items: items}
}

func MapNode(m *Map) *Node {
	return &Node{kind: KindMap, m: m}
}

func OpaqueNode(raw json.RawMessage) *Node {
	return &Node{kind: KindOpaque, raw: raw}
}

func (n *Node) Kind() Kind { return n.kind }

// Field returns the leaf held by n.
func (n *Node) Field() (*Field, bool) {
	if n == nil || n.kind != KindLeaf {
		return nil, false
	}
	return n.field, true
}

// Items returns the elements of a sequence node.
func (n *Node) Items() ([]*Node, bool) {
	if n == nil || n.kind != KindSequence {
		return nil, false
	}
	return n.items, true
}

// Map returns the mapping held by n.
func (n *Node) Map() (*Map, bool) {
	if n == nil || n.kind != KindMap {
		return nil, false
	}
	return n.m, true
}

func (n *Node) MarshalJSON() ([]byte, error) {
	switch n.kind {
	case KindLeaf:
		return n.field.MarshalJSON()
	case KindSequence:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range n.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindMap:
		return n.m.MarshalJSON()
	default:
		if len(n.raw) == 0 {
			return []byte("null"), nil
		}
		return n.raw, nil
	}
}

// Map is an ordered mapping from field name to node.
type Map struct {
	keys  []string
	nodes map[string]*Node
}

func NewMap() *Map {
	return &Map{nodes: make(map[string]*Node)}
}

// Keys returns the map's keys in document order.
func (m *Map) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

func (m *Map) Len() int { return len(m.keys) }

func (m *Map) Get(key string) (*Node, bool) {
	n, ok := m.nodes[key]
	return n, ok
}

// Set stores node under key, appending the key when it is new.
func (m *Map) Set(key string, node *Node) {
	if m.nodes == nil {
		m.nodes = make(map[string]*Node)
	}
	if _, ok := m.nodes[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.nodes[key] = node
}

func (m *Map) MarshalJSON() ([]byte, error) {
	return writeOrdered(m.keys, func(key string) ([]byte, error) {
		return m.nodes[key].MarshalJSON()
	})
}

// DecodeMap reads a JSON object as a field tree. The root is always a mapping,
// even when it carries a confidence attribute of its own.
func DecodeMap(raw json.RawMessage) (*Map, error) {
	var obj Object
	if err := json.Unmarshal(raw, &obj); err != nil {
		if errors.Is(err, ErrMalformed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return mapFromObject(&obj)
}

func mapFromObject(obj *Object) (*Map, error) {
	m := NewMap()
	for _, key := range obj.keys {
		child, err := decodeNode(obj.vals[key])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		m.Set(key, child)
	}
	return m, nil
}

// decodeNode classifies a JSON value. An object is a leaf only when its
// confidence attribute is a JSON number; any other object is a nested mapping.
func decodeNode(raw json.RawMessage) (*Node, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return OpaqueNode(raw), nil
	}
	switch trimmed[0] {
	case '{':
		var obj Object
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, err
		}
		if conf, ok := obj.vals["confidence"]; ok && isNumber(conf) {
			f, err := fieldFromObject(&obj)
			if err != nil {
				return nil, err
			}
			return LeafNode(f), nil
		}
		m, err := mapFromObject(&obj)
		if err != nil {
			return nil, err
		}
		return MapNode(m), nil
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		items := make([]*Node, 0, len(elems))
		for i, elem := range elems {
			item, err := decodeNode(elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			items = append(items, item)
		}
		return SequenceNode(items...), nil
	default:
		return OpaqueNode(trimmed), nil
	}
}

func isNumber(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 {
		return false
	}
	return t[0] == '-' || (t[0] >= '0' && t[0] <= '9')
}
