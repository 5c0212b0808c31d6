package wasmtest

const (
	opUnreachable  = 0x00
	opBlock        = 0x02
	opLoop         = 0x03
	opIf           = 0x04
	opElse         = 0x05
	opEnd          = 0x0b
	opBr           = 0x0c
	opBrIf         = 0x0d
	opReturn       = 0x0f
	opCall         = 0x10
	opDrop         = 0x1a
	opLocalGet     = 0x20
	opLocalSet     = 0x21
	opLocalTee     = 0x22
	opGlobalGet    = 0x23
	opGlobalSet    = 0x24
	opI32Load      = 0x28
	opF64Load      = 0x2b
	opI32Load8U    = 0x2d
	opI32Store     = 0x36
	opF64Store     = 0x39
	opI32Store8    = 0x3a
	opMemorySize   = 0x3f
	opMemoryGrow   = 0x40
	opI32Const     = 0x41
	opI64Const     = 0x42
	opF64Const     = 0x44
	opI32Eqz       = 0x45
	opI32Eq        = 0x46
	opI32Ne        = 0x47
	opI32LtU       = 0x49
	opI32GtU       = 0x4b
	opI32Add       = 0x6a
	opI32Sub       = 0x6b
	opI32Mul       = 0x6c
	opI32And       = 0x71
	opI32Shl       = 0x74
	opI32ShrU      = 0x76
	opF64Add       = 0xa0
	opF64Mul       = 0xa2
	opI32TruncF64S = 0xaa
	opF64ConvI32S  = 0xb7

	blockEmpty = 0x40
)

// Builder accumulates a function body. The trailing end is added by Module.Func.
type Builder struct {
	w writer
}

// Code starts a new function body
func Code() *Builder {
	return &Builder{}
}

func (b *Builder) bytes() []byte {
	if b == nil {
		return nil
	}
	return b.w.Bytes()
}

func (b *Builder) op(code byte) *Builder {
	b.w.Byte(code)
	return b
}

func (b *Builder) opIdx(code byte, idx uint32) *Builder {
	b.w.Byte(code)
	b.w.WriteU32(idx)
	return b
}

func (b *Builder) memarg(code byte, align, offset uint32) *Builder {
	b.w.Byte(code)
	b.w.WriteU32(align)
	b.w.WriteU32(offset)
	return b
}

func (b *Builder) Unreachable() *Builder { return b.op(opUnreachable) }
func (b *Builder) Return() *Builder      { return b.op(opReturn) }
func (b *Builder) Drop() *Builder        { return b.op(opDrop) }
func (b *Builder) End() *Builder         { return b.op(opEnd) }
func (b *Builder) Else() *Builder        { return b.op(opElse) }

// Block opens a block with no result
func (b *Builder) Block() *Builder {
	b.w.Byte(opBlock)
	b.w.Byte(blockEmpty)
	return b
}

// Loop opens a loop with no result
func (b *Builder) Loop() *Builder {
	b.w.Byte(opLoop)
	b.w.Byte(blockEmpty)
	return b
}

// If opens an if with no result
func (b *Builder) If() *Builder {
	b.w.Byte(opIf)
	b.w.Byte(blockEmpty)
	return b
}

// IfResult opens an if producing one value of type t
func (b *Builder) IfResult(t ValType) *Builder {
	b.w.Byte(opIf)
	b.w.Byte(byte(t))
	return b
}

func (b *Builder) Br(depth uint32) *Builder   { return b.opIdx(opBr, depth) }
func (b *Builder) BrIf(depth uint32) *Builder { return b.opIdx(opBrIf, depth) }
func (b *Builder) Call(fn uint32) *Builder    { return b.opIdx(opCall, fn) }

func (b *Builder) LocalGet(i uint32) *Builder  { return b.opIdx(opLocalGet, i) }
func (b *Builder) LocalSet(i uint32) *Builder  { return b.opIdx(opLocalSet, i) }
func (b *Builder) LocalTee(i uint32) *Builder  { return b.opIdx(opLocalTee, i) }
func (b *Builder) GlobalGet(i uint32) *Builder { return b.opIdx(opGlobalGet, i) }
func (b *Builder) GlobalSet(i uint32) *Builder { return b.opIdx(opGlobalSet, i) }

func (b *Builder) I32Load(offset uint32) *Builder   { return b.memarg(opI32Load, 2, offset) }
func (b *Builder) I32Load8U(offset uint32) *Builder { return b.memarg(opI32Load8U, 0, offset) }
func (b *Builder) F64Load(offset uint32) *Builder   { return b.memarg(opF64Load, 3, offset) }
func (b *Builder) I32Store(offset uint32) *Builder  { return b.memarg(opI32Store, 2, offset) }
func (b *Builder) I32Store8(offset uint32) *Builder { return b.memarg(opI32Store8, 0, offset) }
func (b *Builder) F64Store(offset uint32) *Builder  { return b.memarg(opF64Store, 3, offset) }

func (b *Builder) MemorySize() *Builder {
	b.w.Byte(opMemorySize)
	b.w.Byte(0x00)
	return b
}

func (b *Builder) MemoryGrow() *Builder {
	b.w.Byte(opMemoryGrow)
	b.w.Byte(0x00)
	return b
}

func (b *Builder) I32Const(v int32) *Builder {
	b.w.Byte(opI32Const)
	b.w.WriteS64(int64(v))
	return b
}

func (b *Builder) I64Const(v int64) *Builder {
	b.w.Byte(opI64Const)
	b.w.WriteS64(v)
	return b
}

func (b *Builder) F64Const(v float64) *Builder {
	b.w.Byte(opF64Const)
	b.w.WriteF64(v)
	return b
}

func (b *Builder) I32Eqz() *Builder         { return b.op(opI32Eqz) }
func (b *Builder) I32Eq() *Builder          { return b.op(opI32Eq) }
func (b *Builder) I32Ne() *Builder          { return b.op(opI32Ne) }
func (b *Builder) I32LtU() *Builder         { return b.op(opI32LtU) }
func (b *Builder) I32GtU() *Builder         { return b.op(opI32GtU) }
func (b *Builder) I32Add() *Builder         { return b.op(opI32Add) }
func (b *Builder) I32Sub() *Builder         { return b.op(opI32Sub) }
func (b *Builder) I32Mul() *Builder         { return b.op(opI32Mul) }
func (b *Builder) I32And() *Builder         { return b.op(opI32And) }
func (b *Builder) I32Shl() *Builder         { return b.op(opI32Shl) }
func (b *Builder) I32ShrU() *Builder        { return b.op(opI32ShrU) }
func (b *Builder) F64Add() *Builder         { return b.op(opF64Add) }
func (b *Builder) F64Mul() *Builder         { return b.op(opF64Mul) }
func (b *Builder) I32TruncF64S() *Builder   { return b.op(opI32TruncF64S) }
func (b *Builder) F64ConvertI32S() *Builder { return b.op(opF64ConvI32S) }
