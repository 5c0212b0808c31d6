package hostlib

import (
	"github.com/tidwall/sjson"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/value"
)

// Props is a plain object: string keys in insertion order mapped to values.
type Props struct {
	values map[string]value.Value
	keys   []string
}

// NewProps creates an empty property bag
func NewProps() *Props {
	return &Props{values: make(map[string]value.Value)}
}

func (p *Props) ClassName() string { return "Object" }

// Get returns the property, or undefined when absent.
func (p *Props) Get(key string) value.Value {
	return p.values[key]
}

// Has reports whether key is set
func (p *Props) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// Set stores v under key. New keys go last.
func (p *Props) Set(key string, v value.Value) {
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = v
}

// Delete removes key and reports whether it was present.
func (p *Props) Delete(key string) bool {
	if _, ok := p.values[key]; !ok {
		return false
	}
	delete(p.values, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns the keys in insertion order
func (p *Props) Keys() []string {
	return append([]string(nil), p.keys...)
}

// Len returns the number of properties
func (p *Props) Len() int {
	return len(p.keys)
}

// MarshalJSON implements json.Marshaler
func (p *Props) MarshalJSON() ([]byte, error) {
	s, err := p.marshal(0)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func (p *Props) marshal(depth int) (string, error) {
	out := "{}"
	for _, key := range p.keys {
		v := p.values[key]
		if v.IsUndefined() || v.IsFunction() {
			continue
		}
		raw, err := marshal(v, depth+1)
		if err != nil {
			return "", err
		}
		if out, err = sjson.SetRaw(out, escapeKey(key), raw); err != nil {
			return "", errors.Wrap(errors.PhaseHost, errors.KindInvalidData, err, "set property "+key)
		}
	}
	return out, nil
}
