package jit

import "testing"

// Spill-slot layout (spec.md §8 scenario 6): arguments sit at successive
// positive offsets above the frame base, locals at successive negative
// offsets below it, and spill slots are appended after the declared
// locals in the same negative region; a 64-bit spill consumes two
// 32-bit-wide indices.
func TestStackFrameOffsets(t *testing.T) {
	f := NewStackFrame(2, 4)

	if got, want := f.ArgOffset(0), f.ArgOffset(1)-4; got != want {
		t.Errorf("argument slots should be 4 bytes apart, got %d and %d", got, f.ArgOffset(1))
	}
	if f.ArgOffset(1) <= f.ArgOffset(0) {
		t.Errorf("argument offsets should increase: arg0=%d arg1=%d", f.ArgOffset(0), f.ArgOffset(1))
	}

	if got, want := f.LocalOffset(0), -4; got != want {
		t.Errorf("local slot 0: got %d, want %d", got, want)
	}
	if got, want := f.LocalOffset(1), -8; got != want {
		t.Errorf("local slot 1: got %d, want %d", got, want)
	}

	before := f.frameLocalsSize()
	wide := f.GetSpillSlot64()
	narrow := f.GetSpillSlot32()

	if wide.Width != 2 {
		t.Errorf("64-bit spill should consume 2 slot-widths, got %d", wide.Width)
	}
	if narrow.Width != 1 {
		t.Errorf("32-bit spill should consume 1 slot-width, got %d", narrow.Width)
	}
	if f.SpillOffset(narrow) >= f.SpillOffset(wide) {
		t.Errorf("narrow spill (allocated after wide) should sit at a more negative offset: wide=%d narrow=%d", f.SpillOffset(wide), f.SpillOffset(narrow))
	}
	after := f.frameLocalsSize()
	if after <= before {
		t.Errorf("frameLocalsSize should grow once spill slots are carved out: before=%d after=%d", before, after)
	}
}

func TestStackFrameSlotsNeverReused(t *testing.T) {
	f := NewStackFrame(0, 0)
	a := f.GetSpillSlot32()
	b := f.GetSpillSlot32()
	if a.Index == b.Index {
		t.Fatalf("two spill slot requests returned the same index %d", a.Index)
	}
}
