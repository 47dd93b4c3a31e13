package jit

import (
	"testing"

	"vmjit/classfile"
)

// TestBuildNativeExceptionTableMapsHandler exercises the mapping spec.md
// §4.6 describes: a method's bytecode-offset exception table entry
// (start_pc, end_pc, handler_pc) becomes a mach_offset-addressed row by
// resolving each offset to the block that contains it.
func TestBuildNativeExceptionTableMapsHandler(t *testing.T) {
	// Same shape as TestBuildCFGGreaterThanZero: IFLE's target (offset 8)
	// and GOTO's target (offset 9) both become block boundaries, so
	// handler_pc=8 and end_pc=8 land exactly on a block start.
	code := []byte{
		byte(OpILoad1),
		byte(OpIfLe), 0x00, 0x07,
		byte(OpIConst1),
		byte(OpGoto), 0x00, 0x04,
		byte(OpIConst0),
		byte(OpIReturn),
	}
	cu := unitFor(code)
	cu.Method.ExceptionTable = []classfile.ExceptionTableEntry{
		{StartPC: 0, EndPC: 8, HandlerPC: 8, CatchType: 5},
	}

	if err := Compile(cu); err != nil {
		t.Fatalf("Compile: %v", err)
	}

	if len(cu.nativeExceptionTable) != 1 {
		t.Fatalf("expected 1 native exception row, got %d", len(cu.nativeExceptionTable))
	}
	row := cu.nativeExceptionTable[0]

	blocks := cu.Blocks()
	startBB := blockContainingOffset(cu, 0)
	handlerBB := blockContainingOffset(cu, 8)
	if startBB == nil || handlerBB == nil {
		t.Fatalf("expected both start and handler offsets to resolve to blocks, got %+v", blocks)
	}

	if row.StartMach != uint32(startBB.MachOffset) {
		t.Errorf("StartMach = %d, want %d", row.StartMach, startBB.MachOffset)
	}
	if row.EndMach != uint32(handlerBB.MachOffset) {
		t.Errorf("EndMach = %d, want %d (end_pc lands on handler's block)", row.EndMach, handlerBB.MachOffset)
	}
	if row.HandlerMach != uint32(handlerBB.MachOffset) {
		t.Errorf("HandlerMach = %d, want %d", row.HandlerMach, handlerBB.MachOffset)
	}
	if row.CatchType != 5 {
		t.Errorf("CatchType = %d, want 5", row.CatchType)
	}
}

func TestBuildNativeExceptionTableEmptyWithNoHandlers(t *testing.T) {
	code := []byte{byte(OpIConst0), byte(OpIReturn)}
	cu := unitFor(code)
	if err := Compile(cu); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(cu.nativeExceptionTable) != 0 {
		t.Errorf("expected no native exception rows, got %d", len(cu.nativeExceptionTable))
	}
}
