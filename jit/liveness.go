package jit

// Liveness analyzer (spec.md §4.4). Assigns a global LIR position to
// every Insn, computes per-block def/use bitsets, then runs the
// standard backward fixed-point dataflow to get live-in/live-out, and
// finally derives one LiveInterval per vreg from the result (the
// register allocator may later split it).
// The bitset operations are grounded on original_source/vm/bitset.c; the
// overall pass structure follows how a linear-scan allocator's liveness
// pre-pass is commonly organized (def/use per block, then propagate).

// assignLIRPositions numbers every Insn in block order, two positions
// apart, matching the convention that odd positions fall "between"
// instructions for split points. The exact stride does not matter beyond
// being monotonic and unique; spec.md only requires that split points
// can land strictly between two instructions.
func assignLIRPositions(cu *CompilationUnit) {
	pos := 0
	for _, bb := range cu.Blocks() {
		for _, insn := range bb.Insns {
			insn.LIRPos = pos
			pos += 2
		}
	}
	cu.nextLIRPos = pos
}

func analyzeLiveness(cu *CompilationUnit) error {
	assignLIRPositions(cu)

	n := cu.vregs.count()
	blocks := cu.Blocks()
	for _, bb := range blocks {
		bb.Def = newBitset(n)
		bb.Use = newBitset(n)
		bb.LiveIn = newBitset(n)
		bb.LiveOut = newBitset(n)
		computeDefUse(bb)
	}

	// Backward fixed-point: live-in[b] = use[b] U (live-out[b] - def[b]);
	// live-out[b] = union of live-in over successors.
	changed := true
	for changed {
		changed = false
		for i := len(blocks) - 1; i >= 0; i-- {
			bb := blocks[i]
			newOut := newBitset(n)
			for _, succIdx := range bb.Successors {
				succ := cu.block(succIdx)
				if succ.LiveIn == nil {
					continue // exit block carries no vreg liveness
				}
				newOut.unionFrom(succ.LiveIn)
			}
			if !newOut.equal(bb.LiveOut) {
				bb.LiveOut.copyFrom(newOut)
				changed = true
			}

			newIn := newBitset(n)
			newIn.copyFrom(bb.LiveOut)
			newIn.subtract(bb.Def)
			newIn.unionFrom(bb.Use)
			if !newIn.equal(bb.LiveIn) {
				bb.LiveIn.copyFrom(newIn)
				changed = true
			}
		}
	}

	buildIntervals(cu)
	return nil
}

// computeDefUse fills bb.Def/bb.Use by walking the block's Insns in
// order: a vreg counts as "used" only if it is read before any def
// within this block reaches it first (the standard per-block def/use
// rule), so a value entirely produced and consumed locally never
// pollutes live-in.
func computeDefUse(bb *BasicBlock) {
	for _, insn := range bb.Insns {
		for _, u := range insn.Uses {
			if u.Kind == OperandVreg && !bb.Def.test(u.Vreg) {
				bb.Use.set(u.Vreg)
			}
		}
		if insn.Def != nil && insn.Def.Kind == OperandVreg {
			bb.Def.set(insn.Def.Vreg)
		}
	}
}

// buildIntervals derives one LiveInterval per vreg, spanning from its
// first def/use to its last, across the whole method. The register
// allocator is responsible for splitting further when a fixed interval
// forces it (spec.md §4.5).
func buildIntervals(cu *CompilationUnit) {
	n := cu.vregs.count()
	ivs := make([]*LiveInterval, n)
	for v := 0; v < n; v++ {
		ivs[v] = newLiveInterval(cu.vregs.get(v))
	}

	touch := func(v int, pos int, insn *Insn) {
		iv := ivs[v]
		if pos < iv.Range.Start {
			iv.Range.Start = pos
		}
		if pos+1 > iv.Range.End {
			iv.Range.End = pos + 1
		}
		iv.Insns = append(iv.Insns, insn)
	}

	for _, bb := range cu.Blocks() {
		// A value live into this block from a predecessor (i.e. in
		// LiveIn) must have its interval extended to cover the block's
		// first position even if this block never mentions it directly
		// by Insn, so the allocator sees it occupying a register for the
		// block's full span.
		blockStart := 0
		if len(bb.Insns) > 0 {
			blockStart = bb.Insns[0].LIRPos
		}
		blockEnd := blockStart
		if len(bb.Insns) > 0 {
			blockEnd = bb.Insns[len(bb.Insns)-1].LIRPos + 2
		}
		bb.LiveIn.each(func(v int) {
			iv := ivs[v]
			if blockStart < iv.Range.Start {
				iv.Range.Start = blockStart
			}
		})
		bb.LiveOut.each(func(v int) {
			iv := ivs[v]
			if blockEnd > iv.Range.End {
				iv.Range.End = blockEnd
			}
		})
		for _, insn := range bb.Insns {
			for _, u := range insn.Uses {
				if u.Kind == OperandVreg {
					touch(u.Vreg, insn.LIRPos, insn)
				}
			}
			if insn.Def != nil && insn.Def.Kind == OperandVreg {
				touch(insn.Def.Vreg, insn.LIRPos, insn)
			}
		}
	}

	cu.intervals = ivs
}
