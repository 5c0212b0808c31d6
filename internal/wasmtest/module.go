// Package wasmtest assembles small core WebAssembly modules for tests.
//
// Modules are built programmatically so tests carry no checked-in binaries:
//
//	m := wasmtest.New()
//	m.Memory(1)
//	drop := m.Import("wbg", "__wbindgen_object_drop_ref", wasmtest.Params(wasmtest.I32), nil)
//	m.Func("release", wasmtest.Params(wasmtest.I32), nil, nil,
//		wasmtest.Code().LocalGet(0).Call(drop))
//	bin := m.Bytes()
package wasmtest

import "fmt"

// ValType is a core value type
type ValType byte

const (
	I32 ValType = 0x7f
	I64 ValType = 0x7e
	F32 ValType = 0x7d
	F64 ValType = 0x7c
)

const (
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionMemory   = 5
	sectionGlobal   = 6
	sectionExport   = 7
	sectionStart    = 8
	sectionCode     = 10
	sectionData     = 11

	exportFunc   = 0x00
	exportMemory = 0x02
	exportGlobal = 0x03
)

// Params is shorthand for a value type list
func Params(ts ...ValType) []ValType { return ts }

type funcType struct {
	params  []ValType
	results []ValType
}

type importFunc struct {
	module string
	name   string
	typ    uint32
}

type function struct {
	body   []byte
	locals []ValType
	typ    uint32
}

type global struct {
	init    int32
	mutable bool
}

type export struct {
	name string
	kind byte
	idx  uint32
}

type segment struct {
	data   []byte
	offset uint32
}

// Module is a core module under construction
type Module struct {
	start     *uint32
	types     []funcType
	imports   []importFunc
	funcs     []function
	globals   []global
	exports   []export
	data      []segment
	memoryMin uint32
	memoryMax uint32
	hasMemory bool
	hasMax    bool
}

// New creates an empty module
func New() *Module {
	return &Module{}
}

func (m *Module) typeIndex(params, results []ValType) uint32 {
	for i, ft := range m.types {
		if equalTypes(ft.params, params) && equalTypes(ft.results, results) {
			return uint32(i)
		}
	}
	m.types = append(m.types, funcType{params: params, results: results})
	return uint32(len(m.types) - 1)
}

func equalTypes(a, b []ValType) bool {
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

// Import declares an imported function and returns its function index.
// All imports must be declared before the first Func.
func (m *Module) Import(module, name string, params, results []ValType) uint32 {
	if len(m.funcs) > 0 {
		panic(fmt.Sprintf("wasmtest: import %s.%s declared after a function", module, name))
	}
	m.imports = append(m.imports, importFunc{
		module: module,
		name:   name,
		typ:    m.typeIndex(params, results),
	})
	return uint32(len(m.imports) - 1)
}

// Memory declares memory 0 with min pages, exported as "memory"
func (m *Module) Memory(minPages uint32) *Module {
	m.hasMemory = true
	m.memoryMin = minPages
	m.exports = append(m.exports, export{name: "memory", kind: exportMemory})
	return m
}

// MemoryMax caps memory 0 at max pages
func (m *Module) MemoryMax(maxPages uint32) *Module {
	m.hasMax = true
	m.memoryMax = maxPages
	return m
}

// Global declares an i32 global and returns its index
func (m *Module) Global(init int32, mutable bool) uint32 {
	m.globals = append(m.globals, global{init: init, mutable: mutable})
	return uint32(len(m.globals) - 1)
}

// ExportGlobal exports global idx under name
func (m *Module) ExportGlobal(name string, idx uint32) {
	m.exports = append(m.exports, export{name: name, kind: exportGlobal, idx: idx})
}

// Func defines a function and returns its index. A non-empty name exports it.
func (m *Module) Func(name string, params, results, locals []ValType, body *Builder) uint32 {
	m.funcs = append(m.funcs, function{
		typ:    m.typeIndex(params, results),
		locals: locals,
		body:   body.bytes(),
	})
	idx := uint32(len(m.imports) + len(m.funcs) - 1)
	if name != "" {
		m.exports = append(m.exports, export{name: name, kind: exportFunc, idx: idx})
	}
	return idx
}

// Data places b at offset in memory 0 at instantiation
func (m *Module) Data(offset uint32, b []byte) {
	m.data = append(m.data, segment{offset: offset, data: b})
}

// Start sets the module start function
func (m *Module) Start(idx uint32) {
	m.start = &idx
}

// Bytes encodes the module to the binary format
func (m *Module) Bytes() []byte {
	w := &writer{}
	w.WriteU32LE(0x6d736100) // \0asm
	w.WriteU32LE(1)

	if len(m.types) > 0 {
		sec := &writer{}
		sec.WriteU32(uint32(len(m.types)))
		for _, ft := range m.types {
			sec.Byte(0x60)
			writeValTypes(sec, ft.params)
			writeValTypes(sec, ft.results)
		}
		writeSection(w, sectionType, sec.Bytes())
	}

	if len(m.imports) > 0 {
		sec := &writer{}
		sec.WriteU32(uint32(len(m.imports)))
		for _, imp := range m.imports {
			sec.WriteName(imp.module)
			sec.WriteName(imp.name)
			sec.Byte(exportFunc)
			sec.WriteU32(imp.typ)
		}
		writeSection(w, sectionImport, sec.Bytes())
	}

	if len(m.funcs) > 0 {
		sec := &writer{}
		sec.WriteU32(uint32(len(m.funcs)))
		for _, f := range m.funcs {
			sec.WriteU32(f.typ)
		}
		writeSection(w, sectionFunction, sec.Bytes())
	}

	if m.hasMemory {
		sec := &writer{}
		sec.WriteU32(1)
		if m.hasMax {
			sec.Byte(0x01)
			sec.WriteU32(m.memoryMin)
			sec.WriteU32(m.memoryMax)
		} else {
			sec.Byte(0x00)
			sec.WriteU32(m.memoryMin)
		}
		writeSection(w, sectionMemory, sec.Bytes())
	}

	if len(m.globals) > 0 {
		sec := &writer{}
		sec.WriteU32(uint32(len(m.globals)))
		for _, g := range m.globals {
			sec.Byte(byte(I32))
			if g.mutable {
				sec.Byte(0x01)
			} else {
				sec.Byte(0x00)
			}
			sec.Byte(opI32Const)
			sec.WriteS64(int64(g.init))
			sec.Byte(opEnd)
		}
		writeSection(w, sectionGlobal, sec.Bytes())
	}

	if len(m.exports) > 0 {
		sec := &writer{}
		sec.WriteU32(uint32(len(m.exports)))
		for _, exp := range m.exports {
			sec.WriteName(exp.name)
			sec.Byte(exp.kind)
			sec.WriteU32(exp.idx)
		}
		writeSection(w, sectionExport, sec.Bytes())
	}

	if m.start != nil {
		sec := &writer{}
		sec.WriteU32(*m.start)
		writeSection(w, sectionStart, sec.Bytes())
	}

	if len(m.funcs) > 0 {
		sec := &writer{}
		sec.WriteU32(uint32(len(m.funcs)))
		for _, f := range m.funcs {
			body := &writer{}
			body.WriteU32(uint32(len(f.locals)))
			for _, l := range f.locals {
				body.WriteU32(1)
				body.Byte(byte(l))
			}
			body.WriteBytes(f.body)
			body.Byte(opEnd)
			sec.WriteU32(uint32(len(body.Bytes())))
			sec.WriteBytes(body.Bytes())
		}
		writeSection(w, sectionCode, sec.Bytes())
	}

	if len(m.data) > 0 {
		sec := &writer{}
		sec.WriteU32(uint32(len(m.data)))
		for _, d := range m.data {
			sec.WriteU32(0)
			sec.Byte(opI32Const)
			sec.WriteS64(int64(int32(d.offset)))
			sec.Byte(opEnd)
			sec.WriteU32(uint32(len(d.data)))
			sec.WriteBytes(d.data)
		}
		writeSection(w, sectionData, sec.Bytes())
	}

	return w.Bytes()
}

func writeValTypes(w *writer, ts []ValType) {
	w.WriteU32(uint32(len(ts)))
	for _, t := range ts {
		w.Byte(byte(t))
	}
}
