package closure

import (
	"context"
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-bridge/errors"
)

// DtorDispatchExport is the default guest export that runs a destructor by
// table index.
const DtorDispatchExport = "__wbindgen_dtor_dispatch"

// InvokerFunc adapts a function to Invoker
type InvokerFunc func(ctx context.Context, a, b uint32, args []uint64) error

func (f InvokerFunc) Invoke(ctx context.Context, a, b uint32, args []uint64) error {
	return f(ctx, a, b, args)
}

// DestructorFunc adapts a function to Destructor
type DestructorFunc func(ctx context.Context, index, a, b uint32) error

func (f DestructorFunc) Destroy(ctx context.Context, index, a, b uint32) error {
	return f(ctx, index, a, b)
}

// ExportInvoker calls a guest shim export taking (a, b, args...).
type ExportInvoker struct {
	Fn api.Function
}

// NewExportInvoker checks that fn takes the two tokens plus arity arguments.
func NewExportInvoker(fn api.Function, arity int) (*ExportInvoker, error) {
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseLinking, "closure shim", "")
	}
	def := fn.Definition()
	params := def.ParamTypes()
	if len(params) != arity+2 {
		return nil, errors.InvalidInput(errors.PhaseLinking,
			fmt.Sprintf("closure shim %q takes %d params, want %d", def.Name(), len(params), arity+2))
	}
	if !allI32(params[:2]) {
		return nil, errors.InvalidInput(errors.PhaseLinking,
			fmt.Sprintf("closure shim %q takes tokens %s, want (i32, i32)", def.Name(), typeList(params[:2])))
	}
	return &ExportInvoker{Fn: fn}, nil
}

func (e *ExportInvoker) Invoke(ctx context.Context, a, b uint32, args []uint64) error {
	params := make([]uint64, 0, len(args)+2)
	params = append(params, api.EncodeU32(a), api.EncodeU32(b))
	params = append(params, args...)
	if _, err := e.Fn.Call(ctx, params...); err != nil {
		return errors.Wrap(errors.PhaseClosure, errors.KindHostFailure, err, "invoke closure shim")
	}
	return nil
}

// ExportDispatcher runs destructors through a guest export taking
// (index, a, b). The guest resolves index in its function table.
type ExportDispatcher struct {
	Fn api.Function
}

// NewExportDispatcher checks the dispatch export signature.
func NewExportDispatcher(fn api.Function) (*ExportDispatcher, error) {
	if fn == nil {
		return nil, errors.MissingExport(errors.PhaseLinking, DtorDispatchExport)
	}
	if params := fn.Definition().ParamTypes(); len(params) != 3 || !allI32(params) {
		return nil, errors.InvalidInput(errors.PhaseLinking,
			fmt.Sprintf("destructor dispatch takes %s, want (i32, i32, i32)", typeList(params)))
	}
	return &ExportDispatcher{Fn: fn}, nil
}

func (d *ExportDispatcher) Destroy(ctx context.Context, index, a, b uint32) error {
	_, err := d.Fn.Call(ctx, api.EncodeU32(index), api.EncodeU32(a), api.EncodeU32(b))
	return err
}

func allI32(types []api.ValueType) bool {
	for _, t := range types {
		if t != api.ValueTypeI32 {
			return false
		}
	}
	return true
}

func typeList(types []api.ValueType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = api.ValueTypeName(t)
	}
	return "(" + strings.Join(names, ", ") + ")"
}
