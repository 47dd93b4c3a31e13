package jit

import "sync"

// textHeap is the process-wide registry of compiled method code ranges
// (spec.md §5): append-only, one entry per compiled CompilationUnit,
// looked up by the radix index (radix.go) from a faulting or returning
// native address. Each unit still gets its own mmap'd execBuffer (the
// "heap" here is the registry of those buffers' address ranges, not one
// shared arena) — splitting memory per-unit keeps OutOfCodeSpace
// handling local to a single compile instead of requiring global
// compaction.
type textHeap struct {
	mu     sync.RWMutex
	ranges []textRange
	index  *radixIndex
}

type textRange struct {
	Start, End uintptr
	Unit       *CompilationUnit
}

var globalTextHeap = newTextHeap()

func newTextHeap() *textHeap {
	return &textHeap{index: newRadixIndex()}
}

// register appends a newly compiled unit's code range. Called exactly
// once per successful compile, after emitMachineCode has flipped the
// buffer to executable.
func (h *textHeap) register(cu *CompilationUnit) {
	start := cu.objcode.baseAddr()
	end := start + uintptr(cu.objcode.len())

	h.mu.Lock()
	defer h.mu.Unlock()
	h.ranges = append(h.ranges, textRange{Start: start, End: end, Unit: cu})
	h.index.insert(start, end, cu)
}

// lookup finds which compiled unit, if any, owns a native address —
// generalizing original_source's is_jit_method/&etext boundary check
// (SUPPLEMENTED FEATURES) from "inside one contiguous static text
// segment" to "inside any of N separately mmap'd per-unit buffers".
func (h *textHeap) lookup(addr uintptr) *CompilationUnit {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.index.lookup(addr)
}

// isJITAddress reports whether addr falls inside any compiled unit's
// code range — the signal-handler/unwinder-facing query the original's
// is_jit_method answered.
func isJITAddress(addr uintptr) bool {
	return globalTextHeap.lookup(addr) != nil
}
