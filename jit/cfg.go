package jit

// CFG builder (spec.md §4.1). Two linear passes over the bytecode,
// grounded directly on original_source/jit/bytecode-cfg-builder.c's
// build_cfg: pass 1 (bb_end_after_branch) splits immediately after every
// branch instruction and records its target in a bitmap; pass 2
// (bb_start_at_branch_target) splits at every offset the bitmap marked
// that isn't already a block start.

// buildCFG populates cu.Entry, cu.Exit and cu.blocks from cu.Method's
// bytecode. It is the first pipeline stage and assumes no other stage has
// run yet.
func buildCFG(cu *CompilationUnit) error {
	code := cu.Method.Code
	size := cu.Method.CodeSize

	if size == 0 {
		return newCompileError(MalformedBytecode, "method has empty bytecode")
	}

	branchTargets := newBitset(int(size) + 1)

	entry := newBasicBlock(0, size)
	cu.blocks.alloc(entry)
	cu.Entry = entry

	exit := &BasicBlock{IsExit: true}
	cu.blocks.alloc(exit)
	cu.Exit = exit

	// Pass 1: walk the code once, splitting the block containing each
	// branch immediately after the branch instruction, and marking the
	// branch's target offset in the bitmap.
	offset := uint32(0)
	for offset < size {
		n, err := instructionSize(code, offset)
		if err != nil {
			return err
		}
		next := offset + n
		if next > size {
			return newCompileError(MalformedBytecode, "instruction at %d overruns code array", offset)
		}

		op := Opcode(code[offset])
		switch {
		case isBranch(op):
			target := branchTarget(code, offset)
			if target >= size {
				return newCompileError(MalformedBytecode, "branch at %d targets out-of-range offset %d", offset, target)
			}
			branchTargets.set(int(target))
			splitAfter(cu, next)
		case op == OpTableSwitch:
			def, cases := tableSwitchCases(code, offset)
			if def >= size {
				return newCompileError(MalformedBytecode, "tableswitch at %d has out-of-range default", offset)
			}
			branchTargets.set(int(def))
			for _, c := range cases {
				if c >= size {
					return newCompileError(MalformedBytecode, "tableswitch at %d has out-of-range case target", offset)
				}
				branchTargets.set(int(c))
			}
			splitAfter(cu, next)
		case op == OpLookupSwitch:
			def, cases := lookupSwitchCases(code, offset)
			if def >= size {
				return newCompileError(MalformedBytecode, "lookupswitch at %d has out-of-range default", offset)
			}
			branchTargets.set(int(def))
			for _, c := range cases {
				if c >= size {
					return newCompileError(MalformedBytecode, "lookupswitch at %d has out-of-range case target", offset)
				}
				branchTargets.set(int(c))
			}
			splitAfter(cu, next)
		case isReturnOrThrow(op):
			splitAfter(cu, next)
		}

		offset = next
	}

	// Pass 2: wherever the bitmap marks an offset that isn't already a
	// block start, split the block that contains it there.
	offset = 0
	for offset < size {
		if branchTargets.test(int(offset)) {
			bb := findBlockContaining(cu, offset)
			if bb != nil && bb.Start != offset {
				splitAt(cu, bb, offset)
			}
		}
		n, err := instructionSize(code, offset)
		if err != nil {
			return err
		}
		offset += n
	}

	// Now that block boundaries are final, walk every block's last
	// instruction to wire successor/predecessor edges.
	for _, bb := range cu.Blocks() {
		if err := wireEdges(cu, bb); err != nil {
			return err
		}
	}

	return nil
}

// findBlockContaining returns the (non-exit) block whose bytecode range
// contains offset.
func findBlockContaining(cu *CompilationUnit, offset uint32) *BasicBlock {
	for _, bb := range cu.Blocks() {
		if offset >= bb.Start && offset < bb.End {
			return bb
		}
	}
	return nil
}

// splitAfter splits the block containing offset `at` into [start,at) and
// [at,oldEnd) if `at` falls strictly inside a block's range (i.e. isn't
// already a boundary or past the end of the method).
func splitAfter(cu *CompilationUnit, at uint32) {
	if at >= cu.Method.CodeSize {
		return
	}
	bb := findBlockContaining(cu, at)
	if bb == nil || bb.Start == at {
		return
	}
	splitAt(cu, bb, at)
}

// splitAt splits bb into [bb.Start, at) (bb, mutated in place) and
// [at, oldEnd) (a freshly allocated block appended to the arena).
func splitAt(cu *CompilationUnit, bb *BasicBlock, at uint32) *BasicBlock {
	tail := newBasicBlock(at, bb.End)
	bb.End = at
	cu.blocks.alloc(tail)
	return tail
}

// wireEdges inspects bb's last bytecode instruction and records its
// successor edges, per the tie-breaks in spec.md §4.1.
func wireEdges(cu *CompilationUnit, bb *BasicBlock) error {
	code := cu.Method.Code
	lastOff, err := lastInstructionOffset(code, bb.Start, bb.End)
	if err != nil {
		return err
	}
	op := Opcode(code[lastOff])

	switch {
	case op == OpGoto:
		bb.HasBranch = true
		target := branchTarget(code, lastOff)
		cu.addEdge(bb, findBlockContaining(cu, target))
	case isBranch(op): // conditional
		bb.HasBranch = true
		target := branchTarget(code, lastOff)
		cu.addEdge(bb, findBlockContaining(cu, target)) // taken
		if bb.End < cu.Method.CodeSize {
			cu.addEdge(bb, findBlockContaining(cu, bb.End)) // fall-through
		} else {
			cu.addEdge(bb, cu.Exit)
		}
	case op == OpTableSwitch:
		bb.HasBranch = true
		def, cases := tableSwitchCases(code, lastOff)
		cu.addEdge(bb, findBlockContaining(cu, def))
		for _, c := range cases {
			cu.addEdge(bb, findBlockContaining(cu, c))
		}
	case op == OpLookupSwitch:
		bb.HasBranch = true
		def, cases := lookupSwitchCases(code, lastOff)
		cu.addEdge(bb, findBlockContaining(cu, def))
		for _, c := range cases {
			cu.addEdge(bb, findBlockContaining(cu, c))
		}
	case isReturnOrThrow(op):
		cu.addEdge(bb, cu.Exit)
	default:
		// Falls through to the next block (or, if this is the last
		// block in the method, that is itself malformed bytecode —
		// every method must end in a return or athrow).
		if bb.End < cu.Method.CodeSize {
			cu.addEdge(bb, findBlockContaining(cu, bb.End))
		} else {
			return newCompileError(MalformedBytecode, "method falls off the end of its code array")
		}
	}
	return nil
}

// lastInstructionOffset finds the bytecode offset of the last instruction
// that starts before `end`, by walking from `start`.
func lastInstructionOffset(code []byte, start, end uint32) (uint32, error) {
	offset := start
	last := start
	for offset < end {
		last = offset
		n, err := instructionSize(code, offset)
		if err != nil {
			return 0, err
		}
		offset += n
	}
	if offset != end {
		return 0, newCompileError(MalformedBytecode, "block [%d,%d) does not end on an instruction boundary", start, end)
	}
	return last, nil
}
