// Package jit is the method-at-a-time JIT compiler: the chain of
// transformations from bytecode + constant pool to linked, executable
// machine code, plus the lazy-compilation trampoline that glues it into a
// caller. Grounded on KTStephano-GVM's single-package, many-files layout
// (vm/bytecode.go, vm/compile.go, vm/vm.go, ...) generalized from a
// hand-rolled stack VM to a staged compiler pipeline.
package jit

import "fmt"

// Type is the JVM-class type tag carried by every IR expression node.
type Type byte

const (
	TVoid Type = iota
	TRef
	TByte
	TShort
	TInt
	TLong
	TChar
	TFloat
	TDouble
	TBoolean
	TReturnAddress
)

func (t Type) String() string {
	switch t {
	case TVoid:
		return "void"
	case TRef:
		return "ref"
	case TByte:
		return "byte"
	case TShort:
		return "short"
	case TInt:
		return "int"
	case TLong:
		return "long"
	case TChar:
		return "char"
	case TFloat:
		return "float"
	case TDouble:
		return "double"
	case TBoolean:
		return "boolean"
	case TReturnAddress:
		return "return-address"
	default:
		return fmt.Sprintf("Type(%d)", byte(t))
	}
}

// Width32 reports whether a value of this type occupies a single 32-bit
// slot. long and double are the only 64-bit (two-slot) types.
func (t Type) Width32() bool {
	return t != TLong && t != TDouble
}

// IsFloat reports whether arithmetic on this type uses the float ALU
// lowering instead of the integer one.
func (t Type) IsFloat() bool {
	return t == TFloat || t == TDouble
}
