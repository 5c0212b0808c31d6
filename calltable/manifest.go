package calltable

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-bridge/errors"
)

// ClosureSpec describes one closure wrapper import: the guest destructor
// index and the guest shim export invoked with (a, b, args...).
type ClosureSpec struct {
	Import string `yaml:"import"`
	Invoke string `yaml:"invoke"`
	Dtor   uint32 `yaml:"dtor"`
	Args   int    `yaml:"args"`
}

// Manifest lists the closure wrappers of a guest module
type Manifest struct {
	Closures []ClosureSpec `yaml:"closures"`
}

// ParseManifest decodes a YAML manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(errors.PhaseLinking, errors.KindInvalidData, err, "parse closure manifest")
	}
	for i, c := range m.Closures {
		if c.Import == "" || c.Invoke == "" {
			return nil, errors.New(errors.PhaseLinking, errors.KindInvalidData).
				Path("closures", fmt.Sprint(i)).
				Detail("import and invoke are required").
				Build()
		}
		if c.Args < 0 {
			return nil, errors.New(errors.PhaseLinking, errors.KindInvalidData).
				Path("closures", fmt.Sprint(i)).
				Detail("args must not be negative").
				Build()
		}
	}
	return &m, nil
}

// LoadManifest reads and decodes a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLinking, errors.KindNotFound, err, "read closure manifest")
	}
	return ParseManifest(data)
}

// AddClosures registers the wrappers listed in m, replacing earlier specs
// for the same import.
func (t *Table) AddClosures(m *Manifest) {
	for _, c := range m.Closures {
		t.closures[c.Import] = c
	}
}

// Closure returns the spec for a closure wrapper import.
func (t *Table) Closure(importName string) (ClosureSpec, bool) {
	c, ok := t.closures[importName]
	return c, ok
}

// Closures lists the loaded closure specs ordered by import name.
func (t *Table) Closures() []ClosureSpec {
	out := make([]ClosureSpec, 0, len(t.closures))
	for _, c := range t.closures {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Import < out[j].Import })
	return out
}
