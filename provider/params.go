package provider

import (
	"bytes"
	"encoding/json"
	"slices"
)

// StopKey is the parameter name carrying the merged stop sequences.
const StopKey = "stop"

// Params is an ordered, read-only set of invocation parameters. Keys
// keep the position at which they were first set; overwriting a key
// keeps its original position. Build values with ParamsBuilder.
type Params struct {
	keys   []string
	values map[string]any
}

// Get returns the value stored for key.
func (p Params) Get(key string) (any, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Keys returns the parameter names in order.
func (p Params) Keys() []string {
	return slices.Clone(p.keys)
}

// Len returns the number of parameters.
func (p Params) Len() int {
	return len(p.keys)
}

// Stop returns a copy of the stop sequence list, or nil when the
// parameter is absent or not a string slice.
func (p Params) Stop() []string {
	v, ok := p.values[StopKey]
	if !ok {
		return nil
	}
	stop, _ := v.([]string)
	return slices.Clone(stop)
}

// Map returns the parameters as a plain map. Ordering is lost.
func (p Params) Map() map[string]any {
	out := make(map[string]any, len(p.keys))
	for _, k := range p.keys {
		out[k] = p.values[k]
	}
	return out
}

// MarshalJSON encodes the parameters as a JSON object in key order.
// Nil values are omitted so that unset optional parameters fall back to
// the server defaults.
func (p Params) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, k := range p.keys {
		v := p.values[k]
		if isNil(v) {
			continue
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func isNil(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case *int:
		return t == nil
	case *float64:
		return t == nil
	case *bool:
		return t == nil
	case *string:
		return t == nil
	}
	return false
}

// ParamsBuilder accumulates parameters in insertion order.
// The zero value is ready to use.
type ParamsBuilder struct {
	keys   []string
	values map[string]any
}

// Set stores value under key, overwriting any previous value in place.
func (b *ParamsBuilder) Set(key string, value any) *ParamsBuilder {
	if b.values == nil {
		b.values = make(map[string]any)
	}
	if _, ok := b.values[key]; !ok {
		b.keys = append(b.keys, key)
	}
	b.values[key] = value
	return b
}

// Build returns an immutable snapshot of the accumulated parameters.
func (b *ParamsBuilder) Build() Params {
	values := make(map[string]any, len(b.values))
	for k, v := range b.values {
		values[k] = v
	}
	return Params{keys: slices.Clone(b.keys), values: values}
}
