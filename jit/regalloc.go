package jit

import "sort"

// Linear-scan register allocator (spec.md §4.5). Walks intervals sorted
// by start position, keeping an active set. When the register bank is
// full it spills whichever active interval ends furthest in the future
// (the classic Poletto & Sarkar heuristic); when an idiv result needs a
// fixed register it evicts whatever holds that register. Either way the
// evicted interval is split at the current position via
// LiveInterval.splitAt so only the tail is spilled — the prefix keeps its
// register assignment.
// Grounded in spirit on original_source/jit/interval.c's
// split_interval_at, generalized here to cover bank selection and
// fixed-register collision, which interval.c left to its caller
// (jit/linear-scan.c, not present in the retrieved excerpt) to
// orchestrate.

func allocateRegisters(cu *CompilationUnit) error {
	ivs := make([]*LiveInterval, 0, len(cu.intervals))
	for _, iv := range cu.intervals {
		if iv.Range.End > iv.Range.Start {
			ivs = append(ivs, iv)
		}
	}
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].Range.Start < ivs[j].Range.Start })

	var activeGP, activeXMM []*LiveInterval

	expire := func(pos int, set []*LiveInterval) []*LiveInterval {
		out := set[:0]
		for _, iv := range set {
			if iv.Range.End > pos {
				out = append(out, iv)
			}
		}
		return out
	}

	for _, iv := range ivs {
		activeGP = expire(iv.Range.Start, activeGP)
		activeXMM = expire(iv.Range.Start, activeXMM)

		bank := bankFor(iv.Var.T)
		var active *[]*LiveInterval
		if iv.Var.T.IsFloat() {
			active = &activeXMM
		} else {
			active = &activeGP
		}

		if dividend, remainder, fixed := fixedRegsFor(insnOpOf(iv)); fixed {
			assignFixedDivision(cu, iv, dividend, remainder, active)
			continue
		}

		reg := pickFreeRegister(bank, *active)
		if reg != RegUnassigned {
			iv.Reg = reg
			*active = append(*active, iv)
			continue
		}

		if err := spillFurthest(cu, iv, active); err != nil {
			return err
		}
	}

	return nil
}

// insnOpOf reports the MachOp of the first Insn this interval is
// involved in, used only to detect the idiv fixed-register case.
func insnOpOf(iv *LiveInterval) MachOp {
	if len(iv.Insns) == 0 {
		return -1
	}
	return iv.Insns[0].Op
}

func pickFreeRegister(bank []Reg, active []*LiveInterval) Reg {
	used := make(map[Reg]bool, len(active))
	for _, iv := range active {
		used[iv.Reg] = true
	}
	for _, r := range bank {
		if !used[r] {
			return r
		}
	}
	return RegUnassigned
}

// spillFurthest evicts whichever active interval's range ends furthest
// in the future, freeing its register for iv — unless iv itself ends
// later, in which case iv is the one spilled instead (Poletto & Sarkar's
// rule: never spill a shorter interval than is necessary). The evicted
// interval is split at iv's start (LiveInterval.splitAt): the prefix
// keeps its existing register assignment, and only the tail — the part
// that actually conflicts with iv — is spilled to a stack slot.
func spillFurthest(cu *CompilationUnit, iv *LiveInterval, active *[]*LiveInterval) error {
	if len(*active) == 0 {
		return newCompileError(InternalInvariantViolation, "no free register and no active interval to spill for vreg %d", iv.Var.Vreg)
	}
	furthest := (*active)[0]
	furthestIdx := 0
	for i, cand := range (*active)[1:] {
		if cand.Range.End > furthest.Range.End {
			furthest = cand
			furthestIdx = i + 1
		}
	}

	if furthest.Range.End <= iv.Range.End {
		// iv itself lives longer than anything active: spill iv.
		assignSpillSlot(cu, iv)
		return nil
	}

	reg := furthest.Reg
	tail := furthest.splitAt(iv.Range.Start)
	assignSpillSlot(cu, tail)
	*active = append((*active)[:furthestIdx], (*active)[furthestIdx+1:]...)

	iv.Reg = reg
	*active = append(*active, iv)
	return nil
}

func assignSpillSlot(cu *CompilationUnit, iv *LiveInterval) {
	if iv.Var.T.Width32() {
		iv.SpillSlot = cu.Frame.GetSpillSlot32()
	} else {
		iv.SpillSlot = cu.Frame.GetSpillSlot64()
	}
	iv.Reg = RegUnassigned
}

// assignFixedDivision handles idiv's hard requirement that the dividend
// live in RAX and the remainder in RDX (spec.md §8's "fixed interval"
// scenario): anything already active in either register is evicted to
// make room, exactly as a general register conflict would be (split at
// iv's start, spill only the tail), but unconditionally rather than by
// the furthest-distance heuristic since these two registers are not
// substitutable.
func assignFixedDivision(cu *CompilationUnit, iv *LiveInterval, dividend, remainder Reg, active *[]*LiveInterval) {
	evictReg := func(r Reg) {
		kept := (*active)[:0]
		for _, cand := range *active {
			if cand.Reg == r && cand.Range.End > iv.Range.Start {
				tail := cand.splitAt(iv.Range.Start)
				assignSpillSlot(cu, tail)
				continue
			}
			kept = append(kept, cand)
		}
		*active = kept
	}
	evictReg(dividend)
	evictReg(remainder)

	if iv.Rem() {
		iv.Reg = remainder
	} else {
		iv.Reg = dividend
	}
	iv.Fixed = true
	*active = append(*active, iv)
}

// Rem reports whether this interval's defining instruction wants idiv's
// remainder output rather than its quotient output.
func (iv *LiveInterval) Rem() bool {
	for _, insn := range iv.Insns {
		if insn.Def != nil && insn.Def.Kind == OperandVreg && insn.Def.Vreg == iv.Var.Vreg {
			return insn.Rem
		}
	}
	return false
}
