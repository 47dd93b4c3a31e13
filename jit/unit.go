package jit

import (
	"sort"
	"sync"

	"vmjit/classfile"
)

// CompilationUnit is the per-method work item (spec.md §3). Each stage of
// the pipeline is a pure transformation that reads and writes fields on
// this container so later stages are re-runnable in isolation, mirroring
// the teacher's habit of keeping all VM state reachable off one struct
// (KTStephano-GVM/vm/vm.go's VM struct) generalized from "one VM" to
// "one method's compilation state".
type CompilationUnit struct {
	Method *classfile.Method

	blocks blockArena
	Entry  *BasicBlock
	Exit   *BasicBlock

	Frame *StackFrame

	vregs    *vregPool
	intervals []*LiveInterval

	nextLIRPos int

	objcode *execBuffer

	// nativeExceptionTable is populated exactly once, by emitMachineCode.
	// spec.md §9's open question ("exactly one native table per unit") is
	// resolved by giving the field a single writer.
	nativeExceptionTable []nativeExceptionRow

	mu               sync.Mutex
	isCompiled       bool
	compileAttempted bool
	compileErr       error

	// fixupSites lists every call Insn, across every OTHER compiled unit,
	// that currently calls into this unit through the trampoline and
	// would benefit from being patched to call entryPoint directly once
	// it is known. Appended to under trampolineMu, not cu.mu, since a
	// caller registers a fix-up site before this unit has necessarily
	// compiled (spec.md §4.7).
	fixupSites   []*FixupSite
	trampolineMu sync.Mutex

	entryPoint uintptr
}

// NewCompilationUnit allocates a unit for a method. It does not run any
// pipeline stage yet.
func NewCompilationUnit(m *classfile.Method) *CompilationUnit {
	return &CompilationUnit{
		Method: m,
		vregs:  newVregPool(),
	}
}

// IsCompiled reports whether the unit's body has finished compiling. It
// uses the unit mutex as the synchronization point described in spec.md
// §5 ("readers must either acquire the mutex or use an acquire-load
// paired with the release-store that sets is_compiled").
func (cu *CompilationUnit) IsCompiled() bool {
	cu.mu.Lock()
	defer cu.mu.Unlock()
	return cu.isCompiled
}

// EntryPoint returns the body's entry address once compiled.
func (cu *CompilationUnit) EntryPoint() uintptr {
	cu.mu.Lock()
	defer cu.mu.Unlock()
	return cu.entryPoint
}

// BasicBlock is a maximal straight-line bytecode region with a single
// entry (spec.md §3). Successor/predecessor edges are block-arena indices,
// not pointers, matching spec.md §9's "blocks hold weak references"
// design — this is what lets the graph hold cycles without any block
// owning another.
type BasicBlock struct {
	id int

	// IsExit marks the synthesized exit block, which has no bytecode
	// range: every return/athrow targets it.
	IsExit bool

	Start, End uint32 // bytecode offsets, End exclusive

	Successors   []int
	Predecessors []int

	HasBranch bool

	Stmts []Statement
	Insns []*Insn

	// entryStack and entryMaterialized are not set by the translator:
	// translateBlock requires the symbolic stack to be empty at every
	// block boundary, so no stack is ever carried into a successor block.
	entryStack     *exprStack
	entryMaterialized bool

	// backpatch is not filled by any stage: backpatchBranches finds the
	// branch Insns to rewrite by scanning every block's Insns for a Target.
	backpatch []*Insn

	// def/use/live-in/live-out bitsets, indexed by vreg, filled by the
	// liveness analyzer.
	Def, Use, LiveIn, LiveOut *bitset

	MachOffset int
}

func newBasicBlock(start, end uint32) *BasicBlock {
	return &BasicBlock{Start: start, End: end}
}

// addEdge records a directed edge from -> to, plus the matching
// predecessor edge, keeping both sides of the (weak, index-based) graph in
// sync.
func (cu *CompilationUnit) addEdge(from, to *BasicBlock) {
	from.Successors = append(from.Successors, to.id)
	to.Predecessors = append(to.Predecessors, from.id)
}

func (cu *CompilationUnit) block(idx int) *BasicBlock {
	return cu.blocks.get(idx)
}

// Blocks returns the non-exit block list in emission order (ascending
// bytecode start offset). Splitting always appends the tail half of a
// split to the end of the arena, so a stable sort by Start is enough to
// recover bytecode order regardless of the order splits happened in.
func (cu *CompilationUnit) Blocks() []*BasicBlock {
	out := make([]*BasicBlock, 0, cu.blocks.len())
	for i := 0; i < cu.blocks.len(); i++ {
		b := cu.blocks.get(i)
		if !b.IsExit {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// AllBlocks returns every block in emission order, with the exit block
// last (it has no bytecode range to sort by).
func (cu *CompilationUnit) AllBlocks() []*BasicBlock {
	out := cu.Blocks()
	out = append(out, cu.Exit)
	return out
}

type nativeExceptionRow struct {
	StartMach, EndMach, HandlerMach uint32
	CatchType                       uint16
}
