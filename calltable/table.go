package calltable

import (
	"context"
	"sort"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
)

// Namespace is the import module name guest code uses for boundary imports
const Namespace = "wbg"

// Entry is one forwarding import
type Entry struct {
	fn       RawFunc
	Name     string
	Params   []api.ValueType
	Results  []api.ValueType
	Guarded  bool
	Optional bool
}

// Invoke runs the entry against b with the boundary stack.
func (e *Entry) Invoke(ctx context.Context, b Boundary, stack []uint64) error {
	return e.fn(ctx, b, stack)
}

// Option adjusts an entry at registration
type Option func(*Entry)

// Guarded routes failures to the error slot instead of aborting the guest
// call.
func Guarded() Option {
	return func(e *Entry) { e.Guarded = true }
}

// Optional returns handle 0 for undefined and null value results.
func Optional() Option {
	return func(e *Entry) { e.Optional = true }
}

// Table is the set of forwarding entries and closure wrappers. It is
// populated before instantiation and read-only afterwards.
type Table struct {
	entries  map[string]*Entry
	closures map[string]ClosureSpec
}

// New creates an empty table
func New() *Table {
	return &Table{
		entries:  make(map[string]*Entry),
		closures: make(map[string]ClosureSpec),
	}
}

// Register binds a typed Go function under name. See the package
// documentation for the supported signatures.
func (t *Table) Register(name string, fn any, opts ...Option) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseLinking, "function name cannot be empty")
	}

	e := &Entry{Name: name}
	for _, opt := range opts {
		opt(e)
	}

	params, results, body, err := bindFunc(name, fn, e.Optional)
	if err != nil {
		return err
	}
	e.Params, e.Results, e.fn = params, results, body

	t.entries[name] = e
	Logger().Debug("registered forwarding entry",
		zap.String("name", name),
		zap.Int("params", len(params)),
		zap.Int("results", len(results)),
		zap.Bool("guarded", e.Guarded))
	return nil
}

// MustRegister is Register that panics on error, for static tables.
func (t *Table) MustRegister(name string, fn any, opts ...Option) {
	if err := t.Register(name, fn, opts...); err != nil {
		panic(err)
	}
}

// RegisterRaw adds an entry with an explicit boundary signature.
func (t *Table) RegisterRaw(name string, params, results []api.ValueType, fn RawFunc, opts ...Option) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseLinking, "function name cannot be empty")
	}
	if fn == nil {
		return errors.Registration(name, nil)
	}
	e := &Entry{Name: name, Params: params, Results: results, fn: fn}
	for _, opt := range opts {
		opt(e)
	}
	t.entries[name] = e
	return nil
}

// Lookup finds the entry for an import name: the exact name first, then
// the name with the generated prefix and hash removed.
func (t *Table) Lookup(importName string) (*Entry, bool) {
	if e, ok := t.entries[importName]; ok {
		return e, true
	}
	if short := errors.Demangle(importName); short != importName {
		e, ok := t.entries[short]
		return e, ok
	}
	return nil, false
}

// Names lists registered entry names in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered entries
func (t *Table) Len() int {
	return len(t.entries)
}

// Import identifies a function a guest module imports
type Import struct {
	Module string
	Name   string
}

func (i Import) String() string {
	return i.Module + "#" + i.Name
}

// Resolution classifies a module's function imports
type Resolution struct {
	Core      []Import
	Forwarded []Import
	Closures  []Import
	Missing   []Import
}

// MissingError reports the unresolved imports, or nil when there are none.
func (r Resolution) MissingError() error {
	if len(r.Missing) == 0 {
		return nil
	}
	keys := make([]string, len(r.Missing))
	for i, imp := range r.Missing {
		keys[i] = imp.String()
	}
	return errors.NewMissingImportsError(keys)
}

// Resolve classifies imports. isCore reports the names the bridge provides
// itself. Imports from modules other than Namespace are missing.
func (t *Table) Resolve(imports []Import, isCore func(name string) bool) Resolution {
	var r Resolution
	for _, imp := range imports {
		switch {
		case imp.Module != Namespace:
			r.Missing = append(r.Missing, imp)
		case isCore != nil && isCore(imp.Name):
			r.Core = append(r.Core, imp)
		case t.isClosure(imp.Name):
			r.Closures = append(r.Closures, imp)
		default:
			if _, ok := t.Lookup(imp.Name); ok {
				r.Forwarded = append(r.Forwarded, imp)
			} else {
				r.Missing = append(r.Missing, imp)
			}
		}
	}
	return r
}

func (t *Table) isClosure(name string) bool {
	_, ok := t.closures[name]
	return ok
}

// IsClosureWrapper reports whether name follows the closure wrapper naming
// scheme, whether or not a spec for it is loaded.
func IsClosureWrapper(name string) bool {
	return strings.HasPrefix(name, "__wbindgen_closure_wrapper")
}
