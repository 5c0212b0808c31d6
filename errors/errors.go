package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the boundary the error occurred
type Phase string

const (
	PhaseDecode      Phase = "decode"      // guest memory to host value
	PhaseEncode      Phase = "encode"      // host value to guest memory
	PhaseMemory      Phase = "memory"      // linear memory views
	PhaseHeap        Phase = "heap"        // handle table
	PhaseClosure     Phase = "closure"     // extern closure trampoline
	PhaseHost        Phase = "host"        // forwarded host call
	PhaseLinking     Phase = "linking"     // import table assembly
	PhaseFetch       Phase = "fetch"       // module retrieval
	PhaseLoad        Phase = "load"        // compile
	PhaseInstantiate Phase = "instantiate" // instantiation
	PhaseStart       Phase = "start"       // start entry point
)

// Kind categorizes the error
type Kind string

const (
	KindOutOfBounds      Kind = "out_of_bounds"
	KindInvalidData      Kind = "invalid_data"
	KindInvalidUTF8      Kind = "invalid_utf8"
	KindUnsupported      Kind = "unsupported"
	KindAllocation       Kind = "allocation"
	KindMissingImport    Kind = "missing_import"
	KindMissingExport    Kind = "missing_export"
	KindNotFound         Kind = "not_found"
	KindNotInitialized   Kind = "not_initialized"
	KindInvalidInput     Kind = "invalid_input"
	KindInvalidState     Kind = "invalid_state"
	KindRegistration     Kind = "registration"
	KindInstantiation    Kind = "instantiation"
	KindClosureDestroyed Kind = "closure_destroyed"
	KindHostFailure      Kind = "host_failure"
	KindThrown           Kind = "thrown"
	KindContentType      Kind = "content_type"
	KindTooLarge         Kind = "too_large"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Import string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Import != "" {
		b.WriteString(": import ")
		b.WriteString(Demangle(e.Import))
	}

	if e.Detail != "" {
		if e.Import != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Import sets the boundary function name
func (b *Builder) Import(name string) *Builder {
	b.err.Import = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(phase Phase, ptr uint32, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Detail: fmt.Sprintf("invalid UTF-8 sequence at 0x%x: %x", ptr, preview),
		Value:  ptr,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size uint32, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes", size),
		Cause:  cause,
	}
}

// OutOfBounds creates an out of bounds error for a guest memory range
func OutOfBounds(phase Phase, ptr, length uint32, size int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("range [0x%x, 0x%x) out of bounds (memory size %d)", ptr, uint64(ptr)+uint64(length), size),
		Value:  ptr,
	}
}

// Misaligned creates an error for a typed range whose address is not a
// multiple of the element stride
func Misaligned(phase Phase, ptr, stride uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: fmt.Sprintf("address 0x%x is not aligned to %d", ptr, stride),
		Value:  ptr,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: detail,
	}
}

// InvalidState creates an error for an operation attempted in the wrong lifecycle state
func InvalidState(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidState,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// ClosureDestroyed creates an error for an invocation of a closure whose
// environment was already torn down
func ClosureDestroyed(a, b uint32) *Error {
	return &Error{
		Phase:  PhaseClosure,
		Kind:   KindClosureDestroyed,
		Detail: fmt.Sprintf("closure (a=%d, b=%d) invoked after destruction", a, b),
	}
}

// HostFailure wraps a failure raised by a forwarded host call
func HostFailure(importName string, cause error) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindHostFailure,
		Import: importName,
		Cause:  cause,
	}
}

// Thrown creates the error raised by the guest through the throw import
func Thrown(message string) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindThrown,
		Detail: message,
	}
}

// MissingImport represents a single unresolved import
type MissingImport struct {
	Namespace string // e.g., "wbg"
	Function  string // e.g., "__wbg_document_249e9cf340780f93"
}

// MissingImportsError is returned when the import table cannot satisfy a guest module
type MissingImportsError struct {
	Imports []MissingImport
}

// NewMissingImportsError creates an error from a list of "namespace#function" strings
func NewMissingImportsError(imports []string) *MissingImportsError {
	result := &MissingImportsError{
		Imports: make([]MissingImport, 0, len(imports)),
	}
	for _, imp := range imports {
		ns, fn := parseImportKey(imp)
		result.Imports = append(result.Imports, MissingImport{
			Namespace: ns,
			Function:  fn,
		})
	}
	return result
}

func parseImportKey(key string) (namespace, function string) {
	ns, fn, found := strings.Cut(key, "#")
	if found {
		return ns, fn
	}
	return key, ""
}

// Demangle strips the generated prefix and hash suffix from a forwarding
// import name: "__wbg_document_249e9cf340780f93" becomes "document".
// Names that do not follow the pattern are returned unchanged.
func Demangle(name string) string {
	rest, ok := strings.CutPrefix(name, "__wbg_")
	if !ok {
		return name
	}
	idx := strings.LastIndexByte(rest, '_')
	if idx <= 0 {
		return name
	}
	if !isHash(rest[idx+1:]) {
		return name
	}
	return rest[:idx]
}

func isHash(s string) bool {
	if len(s) != 16 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func (e *MissingImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[linking] missing_import: no imports specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("missing %d host function(s):\n", len(e.Imports)))

	// Group by namespace for cleaner output
	byNS := make(map[string][]string)
	var nsOrder []string
	for _, imp := range e.Imports {
		if _, exists := byNS[imp.Namespace]; !exists {
			nsOrder = append(nsOrder, imp.Namespace)
		}
		byNS[imp.Namespace] = append(byNS[imp.Namespace], Demangle(imp.Function))
	}

	for _, ns := range nsOrder {
		b.WriteString("\n  ")
		b.WriteString(ns)
		b.WriteString(":\n")
		for _, fn := range byNS[ns] {
			b.WriteString("    - ")
			b.WriteString(fn)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingImportsError) Is(target error) bool {
	_, ok := target.(*MissingImportsError)
	return ok
}

// NotInitialized creates a not-initialized error for a missing module/instance
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// MissingExport creates an error for a guest export the bridge requires
func MissingExport(phase Phase, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMissingExport,
		Detail: fmt.Sprintf("guest does not export %q", name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Registration creates a registration error
func Registration(name string, cause error) *Error {
	return &Error{
		Phase:  PhaseLinking,
		Kind:   KindRegistration,
		Import: name,
		Detail: "register forwarding entry",
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// Start creates an error for a failed start entry point
func Start(name string, cause error) *Error {
	return &Error{
		Phase:  PhaseStart,
		Kind:   KindInstantiation,
		Detail: fmt.Sprintf("start export %q", name),
		Cause:  cause,
	}
}

// Fetch creates a module retrieval error
func Fetch(kind Kind, detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseFetch,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
