package jit

import (
	"testing"

	"vmjit/classfile"
)

func unitFor(code []byte) *CompilationUnit {
	m := &classfile.Method{
		ClassName: "Demo",
		Name:      "test",
		Code:      code,
		CodeSize:  uint32(len(code)),
		MaxLocals: 4,
		ArgsCount: 2,
		Pool:      classfile.NewConstantPool(),
	}
	cu := NewCompilationUnit(m)
	cu.Frame = NewStackFrame(int(m.ArgsCount), int(m.MaxLocals))
	return cu
}

// defaultString: ALOAD_1, IFNONNULL 0x07, LDC 0x02, ASTORE_1, ALOAD_1, ARETURN
func TestBuildCFGDefaultString(t *testing.T) {
	// IFNONNULL sits at offset 1 and targets absolute offset 7, so its
	// encoded displacement (relative to its own opcode position) is 6.
	code := []byte{
		byte(OpALoad1),
		byte(OpIfNonNull), 0x00, 0x06,
		byte(OpLDC), 0x02,
		byte(OpAStore1),
		byte(OpALoad1),
		byte(OpAReturn),
	}
	cu := unitFor(code)
	if err := buildCFG(cu); err != nil {
		t.Fatalf("buildCFG: %v", err)
	}

	blocks := cu.Blocks()
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d: %+v", len(blocks), blocks)
	}
	wantRanges := [][2]uint32{{0, 4}, {4, 7}, {7, 9}}
	for i, bb := range blocks {
		if bb.Start != wantRanges[i][0] || bb.End != wantRanges[i][1] {
			t.Errorf("block %d: got [%d,%d), want [%d,%d)", i, bb.Start, bb.End, wantRanges[i][0], wantRanges[i][1])
		}
	}
	if len(blocks[0].Successors) != 2 {
		t.Errorf("block 0: expected 2 successors, got %d", len(blocks[0].Successors))
	}
	if len(blocks[1].Successors) != 1 {
		t.Errorf("block 1: expected 1 successor, got %d", len(blocks[1].Successors))
	}
	if len(blocks[2].Successors) != 1 {
		t.Errorf("block 2: expected 1 successor (exit), got %d", len(blocks[2].Successors))
	}
	if blocks[2].Successors[0] != cu.Exit.id {
		t.Errorf("block 2's successor should be the exit block")
	}
}

// greaterThanZero: ILOAD_1, IFLE 0x08, ICONST_1, GOTO 0x09, ICONST_0, IRETURN
func TestBuildCFGGreaterThanZero(t *testing.T) {
	// IFLE sits at offset 1 and targets absolute offset 8 (displacement
	// 7); GOTO sits at offset 5 and targets absolute offset 9
	// (displacement 4).
	code := []byte{
		byte(OpILoad1),
		byte(OpIfLe), 0x00, 0x07,
		byte(OpIConst1),
		byte(OpGoto), 0x00, 0x04,
		byte(OpIConst0),
		byte(OpIReturn),
	}
	cu := unitFor(code)
	if err := buildCFG(cu); err != nil {
		t.Fatalf("buildCFG: %v", err)
	}
	blocks := cu.Blocks()
	if len(blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d: %+v", len(blocks), blocks)
	}
}

func TestBuildCFGRejectsEmptyCode(t *testing.T) {
	cu := unitFor(nil)
	if err := buildCFG(cu); err == nil {
		t.Fatal("expected an error for empty bytecode")
	}
}

func TestBuildCFGRejectsOutOfRangeBranch(t *testing.T) {
	code := []byte{byte(OpGoto), 0x00, 0x50}
	cu := unitFor(code)
	err := buildCFG(cu)
	if err == nil {
		t.Fatal("expected an error for an out-of-range branch target")
	}
	if ce, ok := err.(*CompileError); !ok || ce.Kind != MalformedBytecode {
		t.Errorf("expected MalformedBytecode, got %v", err)
	}
}
