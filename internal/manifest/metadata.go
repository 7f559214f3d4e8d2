package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Metadata is the free-form benchmark_metadata object. Keys keep their
// insertion order on output, and nested objects read from disk decode to
// Metadata so a read-modify-write cycle does not reorder them.
type Metadata struct {
	keys   []string
	values map[string]any
}

func (m *Metadata) Set(key string, value any) {
	if m.values == nil {
		m.values = make(map[string]any)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

func (m Metadata) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m Metadata) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

func (m Metadata) Len() int {
	return len(m.keys)
}

// Clone copies the top level; nested values are shared.
func (m Metadata) Clone() Metadata {
	var c Metadata
	for _, k := range m.keys {
		c.Set(k, m.values[k])
	}
	return c
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := marshalNoEscape(k)
		if err != nil {
			return nil, err
		}
		vb, err := marshalNoEscape(m.values[k])
		if err != nil {
			return nil, fmt.Errorf("benchmark_metadata %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *Metadata) UnmarshalJSON(b []byte) error {
	*m = Metadata{}
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil
	}
	v, err := decodeOrdered(b)
	if err != nil {
		return err
	}
	obj, ok := v.(Metadata)
	if !ok {
		return fmt.Errorf("benchmark_metadata is not an object")
	}
	*m = obj
	return nil
}

// decodeOrdered decodes a JSON value keeping object key order. Numbers stay
// json.Number so integers survive unchanged.
func decodeOrdered(b []byte) (any, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	switch b[0] {
	case '{':
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		var obj Metadata
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := tok.(string)
			if !ok {
				return nil, fmt.Errorf("object key %v is not a string", tok)
			}
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return nil, err
			}
			val, err := decodeOrdered(raw)
			if err != nil {
				return nil, err
			}
			obj.Set(key, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil

	case '[':
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		arr := []any{}
		for dec.More() {
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return nil, err
			}
			val, err := decodeOrdered(raw)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil

	default:
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
}
