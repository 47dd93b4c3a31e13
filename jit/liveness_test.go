package jit

import "testing"

// Builds a two-block unit by hand (no translator/selector involved):
// block A defines v0 and branches to block B, which uses v0. v0 must
// therefore be live-out of A and live-in to B.
func TestAnalyzeLivenessCrossBlock(t *testing.T) {
	cu := &CompilationUnit{vregs: newVregPool()}
	v0 := cu.vregs.new(TInt)

	a := newBasicBlock(0, 1)
	b := newBasicBlock(1, 2)
	cu.blocks.alloc(a)
	cu.blocks.alloc(b)
	cu.Entry = a
	cu.Exit = &BasicBlock{IsExit: true}
	cu.blocks.alloc(cu.Exit)
	cu.addEdge(a, b)
	cu.addEdge(b, cu.Exit)

	defInsn := &Insn{Op: OpMovImm, Def: &Operand{Kind: OperandVreg, Vreg: v0.Vreg}}
	a.Insns = []*Insn{defInsn}

	useInsn := &Insn{Op: OpRet}
	useInsn.addUse(Operand{Kind: OperandVreg, Vreg: v0.Vreg})
	b.Insns = []*Insn{useInsn}

	if err := analyzeLiveness(cu); err != nil {
		t.Fatalf("analyzeLiveness: %v", err)
	}

	if !a.LiveOut.test(v0.Vreg) {
		t.Error("v0 should be live-out of block A")
	}
	if !b.LiveIn.test(v0.Vreg) {
		t.Error("v0 should be live-in to block B")
	}
	if a.Use.test(v0.Vreg) {
		t.Error("v0 is defined before any use in A, so A's use-set must not contain it")
	}

	iv := cu.intervals[v0.Vreg]
	if iv.Range.Start != defInsn.LIRPos {
		t.Errorf("interval should start at the defining insn's LIR position, got %d want %d", iv.Range.Start, defInsn.LIRPos)
	}
	if iv.Range.End <= useInsn.LIRPos {
		t.Errorf("interval should extend through the using insn's LIR position %d, got end=%d", useInsn.LIRPos, iv.Range.End)
	}
}
