package fieldtree

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Object is a JSON object that remembers the order its keys were decoded in.
// Values are kept as raw JSON so unknown attributes round-trip untouched.
type Object struct {
	keys []string
	vals map[string]json.RawMessage
}

func NewObject() *Object {
	return &Object{vals: make(map[string]json.RawMessage)}
}

// Keys returns the object's keys in document order.
func (o *Object) Keys() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

func (o *Object) Len() int {
	return len(o.keys)
}

func (o *Object) Has(key string) bool {
	_, ok := o.vals[key]
	return ok
}

// Get returns the raw JSON stored under key.
func (o *Object) Get(key string) (json.RawMessage, bool) {
	v, ok := o.vals[key]
	return v, ok
}

// Set stores raw JSON under key. New keys are appended; existing keys keep their position.
func (o *Object) Set(key string, raw json.RawMessage) {
	if o.vals == nil {
		o.vals = make(map[string]json.RawMessage)
	}
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = raw
}

// SetValue marshals v and stores it under key.
func (o *Object) SetValue(key string, v any) error {
	raw, err := marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	o.Set(key, raw)
	return nil
}

// marshal is json.Marshal without HTML escaping, so stored strings stay byte-identical.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Decode unmarshals the value stored under key into dst.
func (o *Object) Decode(key string, dst any) (bool, error) {
	raw, ok := o.vals[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (o *Object) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: expected object", ErrMalformed)
	}

	o.keys = o.keys[:0]
	o.vals = make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: expected object key", ErrMalformed)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("%w: value of %q: %v", ErrMalformed, key, err)
		}
		o.Set(key, raw)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func (o *Object) MarshalJSON() ([]byte, error) {
	return writeOrdered(o.keys, func(key string) ([]byte, error) {
		return o.vals[key], nil
	})
}

// writeOrdered renders a JSON object whose members appear in the given key order.
func writeOrdered(keys []string, value func(key string) ([]byte, error)) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := value(key)
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", key, err)
		}
		if len(v) == 0 {
			v = []byte("null")
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
