package bridge

import (
	"context"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/calltable"
	"github.com/wippyai/wasm-bridge/closure"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/errslot"
	"github.com/wippyai/wasm-bridge/value"
)

// Imports lists the function imports of a compiled guest in declaration
// order.
func Imports(compiled wazero.CompiledModule) []calltable.Import {
	defs := compiled.ImportedFunctions()
	out := make([]calltable.Import, 0, len(defs))
	for _, def := range defs {
		mod, name, _ := def.Import()
		out = append(out, calltable.Import{Module: mod, Name: name})
	}
	return out
}

// Resolve classifies the guest's imports against the core set and the
// forwarding table.
func (b *Bridge) Resolve(compiled wazero.CompiledModule) calltable.Resolution {
	return b.cfg.Table.Resolve(Imports(compiled), IsCore)
}

// Instantiate builds and instantiates the import module for compiled in
// rt. Only the names the guest imports are exported. Missing imports are
// reported before anything is instantiated.
//
// A runtime holds one import module per namespace, so each bridge needs
// its own runtime.
func (b *Bridge) Instantiate(ctx context.Context, rt wazero.Runtime, compiled wazero.CompiledModule) (api.Module, error) {
	res := b.Resolve(compiled)
	if err := res.MissingError(); err != nil {
		return nil, err
	}

	defs := make(map[string]api.FunctionDefinition)
	for _, def := range compiled.ImportedFunctions() {
		_, name, _ := def.Import()
		defs[name] = def
	}

	builder := rt.NewHostModuleBuilder(calltable.Namespace)

	for _, imp := range res.Core {
		core := coreImports[imp.Name]
		if err := checkSignature(imp.Name, defs[imp.Name], core.params, core.results); err != nil {
			return nil, err
		}
		builder.NewFunctionBuilder().
			WithGoModuleFunction(b.coreFunc(core), core.params, core.results).
			Export(imp.Name)
	}

	for _, imp := range res.Forwarded {
		entry, _ := b.cfg.Table.Lookup(imp.Name)
		if err := checkSignature(imp.Name, defs[imp.Name], entry.Params, entry.Results); err != nil {
			return nil, err
		}
		builder.NewFunctionBuilder().
			WithGoModuleFunction(b.forward(imp.Name, entry), entry.Params, entry.Results).
			Export(imp.Name)
	}

	for _, imp := range res.Closures {
		spec, _ := b.cfg.Table.Closure(imp.Name)
		if err := checkSignature(imp.Name, defs[imp.Name], closureWrapperParams, closureWrapperResults); err != nil {
			return nil, err
		}
		builder.NewFunctionBuilder().
			WithGoModuleFunction(b.closureWrapper(spec), closureWrapperParams, closureWrapperResults).
			Export(imp.Name)
	}

	host, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	b.log.Debug("import module instantiated",
		zap.Int("core", len(res.Core)),
		zap.Int("forwarded", len(res.Forwarded)),
		zap.Int("closures", len(res.Closures)))
	return host, nil
}

func (b *Bridge) coreFunc(core coreFunc) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		b.attach(mod)
		core.fn(b, ctx, stack)
	}
}

// forward wraps a forwarding entry. Guarded entries park failures in the
// error slot; all others abort the guest call.
func (b *Bridge) forward(importName string, entry *calltable.Entry) api.GoModuleFunc {
	body := func(ctx context.Context, _ api.Module, stack []uint64) error {
		return entry.Invoke(ctx, b, stack)
	}

	if entry.Guarded {
		guarded := errslot.Guard(body, b.capture.OnFailure)
		return func(ctx context.Context, mod api.Module, stack []uint64) {
			b.attach(mod)
			guarded(ctx, mod, stack)
		}
	}

	return func(ctx context.Context, mod api.Module, stack []uint64) {
		b.attach(mod)
		if err := body(ctx, mod, stack); err != nil {
			panic(errors.HostFailure(importName, err))
		}
	}
}

// closureWrapper creates the import that turns guest closure tokens into a
// host callable.
func (b *Bridge) closureWrapper(spec calltable.ClosureSpec) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		b.attach(mod)
		invoker, err := closure.NewExportInvoker(b.guest.ExportedFunction(spec.Invoke), spec.Args)
		if err != nil {
			panic(err)
		}
		c := closure.Wrap(b.heap, api.DecodeU32(stack[0]), api.DecodeU32(stack[1]), spec.Dtor, invoker, b.dtor)
		b.mintResult(stack, value.Func(c))
	}
}

func checkSignature(name string, def api.FunctionDefinition, params, results []api.ValueType) error {
	if def == nil {
		return nil
	}
	if equalTypes(def.ParamTypes(), params) && equalTypes(def.ResultTypes(), results) {
		return nil
	}
	return errors.New(errors.PhaseLinking, errors.KindInvalidInput).
		Import(name).
		Detail("guest imports %s, host provides %s",
			signature(def.ParamTypes(), def.ResultTypes()), signature(params, results)).
		Build()
}

func equalTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func signature(params, results []api.ValueType) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, p := range params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(api.ValueTypeName(p))
	}
	sb.WriteString(") -> (")
	for i, r := range results {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(api.ValueTypeName(r))
	}
	sb.WriteByte(')')
	return sb.String()
}
