package jit

import (
	"testing"

	"vmjit/classfile"
)

// i + j: ILOAD_0, ILOAD_1, IADD, IRETURN. Drives the whole pipeline
// end-to-end and checks the postconditions each stage promises, rather
// than invoking the emitted (schematic) machine code directly.
func TestCompileIntAdd(t *testing.T) {
	code := []byte{
		byte(OpILoad0),
		byte(OpILoad1),
		byte(OpIAdd),
		byte(OpIReturn),
	}
	m := &classfile.Method{
		ClassName: "Demo",
		Name:      "add",
		Code:      code,
		CodeSize:  uint32(len(code)),
		MaxLocals: 2,
		ArgsCount: 2,
		Pool:      classfile.NewConstantPool(),
	}
	cu := NewCompilationUnit(m)

	if _, err := EnsureCompiled(cu); err != nil {
		t.Fatalf("EnsureCompiled: %v", err)
	}
	if !cu.isCompiled {
		t.Fatal("expected cu.isCompiled after a successful EnsureCompiled")
	}
	if cu.entryPoint == 0 {
		t.Fatal("expected a non-zero entry point after emission")
	}

	// Block mach_offsets must be assigned in the same order blocks were
	// emitted in (ascending, one block's body immediately after the
	// previous one's).
	blocks := cu.Blocks()
	for i := 1; i < len(blocks); i++ {
		if blocks[i].MachOffset < blocks[i-1].MachOffset {
			t.Errorf("block %d's mach_offset (%d) precedes block %d's (%d)", i, blocks[i].MachOffset, i-1, blocks[i-1].MachOffset)
		}
	}

	// Every interval either got a physical register or a spill slot, per
	// spec.md's register allocator postcondition.
	for _, iv := range cu.intervals {
		if iv.Range.End <= iv.Range.Start {
			continue // never touched
		}
		if iv.Reg == RegUnassigned && iv.SpillSlot == nil {
			t.Errorf("vreg %d has neither a register nor a spill slot", iv.Var.Vreg)
		}
	}
}

func TestCompileRejectsMalformedBytecode(t *testing.T) {
	m := &classfile.Method{
		ClassName: "Demo",
		Name:      "broken",
		Code:      []byte{0xFF},
		CodeSize:  1,
		MaxLocals: 1,
		Pool:      classfile.NewConstantPool(),
	}
	cu := NewCompilationUnit(m)
	err := Compile(cu)
	if err == nil {
		t.Fatal("expected an error compiling an unknown opcode")
	}
	ce, ok := err.(*CompileError)
	if !ok || ce.Kind != MalformedBytecode {
		t.Fatalf("expected MalformedBytecode, got %v", err)
	}
	if !ce.IsFatal() {
		t.Error("MalformedBytecode should be fatal")
	}
}

func TestEnsureCompiledIsIdempotent(t *testing.T) {
	code := []byte{byte(OpILoad0), byte(OpIReturn)}
	m := &classfile.Method{
		ClassName: "Demo", Name: "id",
		Code: code, CodeSize: uint32(len(code)),
		MaxLocals: 1, ArgsCount: 1,
		Pool: classfile.NewConstantPool(),
	}
	cu := NewCompilationUnit(m)

	entry1, err := EnsureCompiled(cu)
	if err != nil {
		t.Fatalf("first EnsureCompiled: %v", err)
	}
	entry2, err := EnsureCompiled(cu)
	if err != nil {
		t.Fatalf("second EnsureCompiled: %v", err)
	}
	if entry1 != entry2 {
		t.Errorf("repeated EnsureCompiled calls returned different entry points: %#x vs %#x", entry1, entry2)
	}
}
