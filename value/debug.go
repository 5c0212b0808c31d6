package value

import (
	"encoding/json"
	"math"
	"slices"
	"strconv"
	"strings"
)

// maxDebugDepth bounds array nesting in Debug output
const maxDebugDepth = 64

// Debug renders v for diagnostics the way the guest toolchain's debug
// formatter expects. An array that contains itself, or nesting deeper than
// maxDebugDepth, renders as [...].
func Debug(v Value) string {
	d := debugWriter{}
	d.write(v)
	return d.b.String()
}

// String implements fmt.Stringer
func (v Value) String() string {
	return Debug(v)
}

type debugWriter struct {
	b    strings.Builder
	path []*Array
}

func (d *debugWriter) write(v Value) {
	b := &d.b
	switch v.kind {
	case KindUndefined:
		b.WriteString("undefined")
	case KindNull:
		b.WriteString("null")
	case KindBool:
		b.WriteString(strconv.FormatBool(v.n != 0))
	case KindNumber:
		b.WriteString(FormatNumber(v.n))
	case KindString:
		b.WriteByte('"')
		b.WriteString(v.s)
		b.WriteByte('"')
	case KindBytes:
		b.WriteString("Uint8Array(")
		b.WriteString(strconv.Itoa(len(v.obj.([]byte))))
		b.WriteByte(')')
	case KindCallable:
		if name := v.obj.(Callable).Name(); name != "" {
			b.WriteString("Function(")
			b.WriteString(name)
			b.WriteByte(')')
		} else {
			b.WriteString("Function")
		}
	case KindError:
		err := v.obj.(error)
		b.WriteString(errorName(err))
		b.WriteString(": ")
		b.WriteString(err.Error())
	case KindObject:
		d.writeObject(v.obj.(Object))
	}
}

func (d *debugWriter) writeObject(o Object) {
	b := &d.b
	if arr, ok := o.(*Array); ok {
		d.writeArray(arr)
		return
	}

	class := o.ClassName()
	if class != "Object" {
		b.WriteString(class)
		return
	}
	data, err := json.Marshal(o)
	if err != nil {
		b.WriteString("Object")
		return
	}
	b.WriteString("Object(")
	b.Write(data)
	b.WriteByte(')')
}

func (d *debugWriter) writeArray(arr *Array) {
	b := &d.b
	if len(d.path) >= maxDebugDepth || slices.Contains(d.path, arr) {
		b.WriteString("[...]")
		return
	}
	d.path = append(d.path, arr)
	b.WriteByte('[')
	for i, item := range arr.Items {
		if i > 0 {
			b.WriteString(", ")
		}
		d.write(item)
	}
	b.WriteByte(']')
	d.path = d.path[:len(d.path)-1]
}

func errorName(err error) string {
	if n, ok := err.(interface{ Name() string }); ok {
		if name := n.Name(); name != "" {
			return name
		}
	}
	return "Error"
}

// FormatNumber formats f using the host language's number-to-string rules
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}

	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}

	s := strconv.FormatFloat(f, 'e', -1, 64)
	mant, exp, _ := strings.Cut(s, "e")
	sign := exp[0]
	digits := strings.TrimLeft(exp[1:], "0")
	return mant + "e" + string(sign) + digits
}
