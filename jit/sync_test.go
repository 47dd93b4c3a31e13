package jit

import (
	"testing"

	"vmjit/classfile"
)

func TestCompileSynchronizedMethodWrapsMonitor(t *testing.T) {
	code := []byte{byte(OpIConst0), byte(OpIReturn)}
	m := &classfile.Method{
		ClassName: "Demo", Name: "locked",
		Code: code, CodeSize: uint32(len(code)),
		MaxLocals: 1, Pool: classfile.NewConstantPool(),
		AccessFlags: classfile.AccSynchronized,
	}
	cu := NewCompilationUnit(m)
	if err := Compile(cu); err != nil {
		t.Fatalf("Compile: %v", err)
	}

	var sawTrap int
	for _, bb := range cu.Blocks() {
		for _, insn := range bb.Insns {
			if insn.Op == OpCall && insn.Call != nil &&
				(insn.Call.Name == "monitorEnter" || insn.Call.Name == "monitorExit") {
				sawTrap++
			}
		}
	}
	if sawTrap != 2 {
		t.Errorf("expected one monitorEnter and one monitorExit insn, saw %d matching calls", sawTrap)
	}
}

func TestCompileUnsynchronizedMethodHasNoMonitorCalls(t *testing.T) {
	code := []byte{byte(OpIConst0), byte(OpIReturn)}
	m := &classfile.Method{
		ClassName: "Demo", Name: "plain",
		Code: code, CodeSize: uint32(len(code)),
		MaxLocals: 1, Pool: classfile.NewConstantPool(),
	}
	cu := NewCompilationUnit(m)
	if err := Compile(cu); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	for _, bb := range cu.Blocks() {
		for _, insn := range bb.Insns {
			if insn.Call != nil && (insn.Call.Name == "monitorEnter" || insn.Call.Name == "monitorExit") {
				t.Errorf("unsynchronized method should have no monitor calls")
			}
		}
	}
}
