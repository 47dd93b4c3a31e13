package jit

// Stack frame layout (spec.md §4.5/§8 scenario 6), grounded on
// original_source/jit/stack-slot.c's alloc_stack_frame /
// get_spill_slot_32/64: arguments and locals are distinct slot arrays,
// spill slots are carved out of the same index space as locals on demand
// so the allocator never has to know the frame's final size up front.

// StackSlot is one local-variable or spill-slot home, addressed relative
// to the frame pointer once the emitter assigns byte offsets.
type StackSlot struct {
	Index  int
	Parent *StackFrame
	Width  int // 1 for a 32-bit slot, 2 for a 64-bit (long/double) slot
}

// StackFrame owns a method's argument slots, local-variable slots and
// spill slots. Argument and local slots are fixed in number (from the
// method descriptor and max_locals); spill slots grow on demand as the
// register allocator decides it needs them.
type StackFrame struct {
	ArgSlots   []StackSlot
	LocalSlots []StackSlot
	SpillSlots []StackSlot

	nrSpillSlots int
}

// NewStackFrame allocates a frame with nrArgs argument slots and
// nrLocals local-variable slots, mirroring alloc_stack_frame's nr_args /
// nr_local_slots split.
func NewStackFrame(nrArgs, nrLocals int) *StackFrame {
	f := &StackFrame{
		ArgSlots:   make([]StackSlot, nrArgs),
		LocalSlots: make([]StackSlot, nrLocals),
	}
	for i := range f.ArgSlots {
		f.ArgSlots[i] = StackSlot{Index: i, Parent: f, Width: 1}
	}
	for i := range f.LocalSlots {
		f.LocalSlots[i] = StackSlot{Index: i, Parent: f, Width: 1}
	}
	return f
}

func (f *StackFrame) LocalSlot(index int) *StackSlot {
	return &f.LocalSlots[index]
}

func (f *StackFrame) getSpillSlot(width int) *StackSlot {
	slot := StackSlot{
		Index:  len(f.LocalSlots) + f.nrSpillSlots,
		Parent: f,
		Width:  width,
	}
	f.nrSpillSlots += width
	f.SpillSlots = append(f.SpillSlots, slot)
	return &f.SpillSlots[len(f.SpillSlots)-1]
}

func (f *StackFrame) GetSpillSlot32() *StackSlot { return f.getSpillSlot(1) }
func (f *StackFrame) GetSpillSlot64() *StackSlot { return f.getSpillSlot(2) }

// frameLocalsSize is the byte width of the locals region below the frame
// pointer (spec.md §8 scenario 6: frame_locals_size=20 for 5 32-bit
// slots). Spill slots live in the same region, immediately following the
// declared locals.
func (f *StackFrame) frameLocalsSize() int {
	n := len(f.LocalSlots) + f.nrSpillSlots
	return n * 4
}

// wordSize is the pointer width this target's prolog pushes for the
// saved frame pointer and return address (spec.md §4.5's "2 * word_size"
// base for argument offsets).
const wordSize = 8

// ArgOffset returns the byte offset of argument slot i above the frame
// base, skipping the saved base pointer and return address.
func (f *StackFrame) ArgOffset(i int) int {
	return 2*wordSize + 4*i
}

// LocalOffset returns the byte offset of local slot i below the frame
// base (successive negative offsets, per spec.md §4.5).
func (f *StackFrame) LocalOffset(i int) int {
	return -4 * (i + 1)
}

// SpillOffset returns the byte offset of a spill slot, appended after
// the declared locals in the same negative-offset region. slot.Index is
// len(LocalSlots)+running-width, so it already accounts for earlier
// spills (including wider 64-bit ones consuming two indices).
func (f *StackFrame) SpillOffset(slot *StackSlot) int {
	return -4 * (slot.Index + 1)
}
