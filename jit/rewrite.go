package jit

// rewriteOperands replaces every OperandVreg operand (on both LIR Def
// and Uses) with the physical register or stack slot the allocator
// settled on, walking each LiveInterval's owned Insns list — including
// the tail intervals produced by LiveInterval.splitAt, which is exactly
// why Insns is partitioned rather than left as one list per vreg.
//
// A spilled interval (Reg == unassignedReg) rewrites straight to a
// memory (OperandSlot) operand instead of inserting separate
// reload/spill Insns around every use: the encoder already treats
// OperandSlot as a valid source/destination for every MachOp, so a
// "spill" here means "this operand addresses its frame slot directly"
// rather than "a dedicated mov bridges register and memory" (see
// DESIGN.md).
func rewriteOperands(cu *CompilationUnit) {
	for _, iv := range cu.intervals {
		for cur := iv; cur != nil; cur = cur.Next {
			rewriteInterval(cur)
		}
	}
}

func rewriteInterval(iv *LiveInterval) {
	vreg := iv.Var.Vreg
	replacement := func() Operand {
		if iv.Reg != RegUnassigned {
			return regOperand(iv.Reg)
		}
		return slotOperand(iv.SpillSlot)
	}
	for _, insn := range iv.Insns {
		if insn.Def != nil && insn.Def.Kind == OperandVreg && insn.Def.Vreg == vreg {
			r := replacement()
			insn.Def = &r
		}
		for i := range insn.Uses {
			if insn.Uses[i].Kind == OperandVreg && insn.Uses[i].Vreg == vreg {
				insn.Uses[i] = replacement()
			}
		}
	}
}
