package jit

import "fmt"

// Error kinds the JIT surfaces, per spec.md §7. Grounded on
// KTStephano-GVM/vm/vm.go's sentinel-error style
// (errProgramFinished, errSegmentationFault, ...), generalized to carry a
// formatted message since these errors cross a compiler boundary rather
// than an interpreter one.

// CompileErrorKind classifies why compilation of a method failed.
type CompileErrorKind int

const (
	// MalformedBytecode: the CFG builder found an invalid opcode, a
	// truncated instruction, or an out-of-range branch target. Not
	// retried; surfaced to the caller as a class-format-class error.
	MalformedBytecode CompileErrorKind = iota

	// UnresolvedReference: an invoked method, field or class did not
	// resolve against the constant pool. Compilation still succeeds —
	// the translator emits a stub that throws at execution time.
	UnresolvedReference

	// OutOfCodeSpace: the executable-text heap could not satisfy the
	// request. Fatal to this compile; the caller may free space (class
	// unload / GC) and retry the method later.
	OutOfCodeSpace

	// InternalInvariantViolation: a pipeline postcondition failed
	// (unmatched IR pattern, overlapping register assignment, a branch
	// left un-back-patched). This is a compiler bug, not a user error.
	InternalInvariantViolation
)

func (k CompileErrorKind) String() string {
	switch k {
	case MalformedBytecode:
		return "malformed bytecode"
	case UnresolvedReference:
		return "unresolved reference"
	case OutOfCodeSpace:
		return "out of code space"
	case InternalInvariantViolation:
		return "internal invariant violation"
	default:
		return "unknown compile error"
	}
}

// CompileError is the error type returned by every pipeline stage.
type CompileError struct {
	Kind CompileErrorKind
	Msg  string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func newCompileError(kind CompileErrorKind, format string, args ...any) *CompileError {
	return &CompileError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// IsFatal reports whether the runtime should treat the error as
// unrecoverable for this unit (OutOfCodeSpace and
// InternalInvariantViolation always are; MalformedBytecode is too, per
// spec.md, though for a different reason — it is never retried).
func (e *CompileError) IsFatal() bool {
	return e.Kind != UnresolvedReference
}
