package jit

import "testing"

func varInfo(vreg int, t Type) *VarInfo { return &VarInfo{Vreg: vreg, T: t} }

// Two overlapping vregs with intervals [0,2) and [1,2) on a two-register
// target yield distinct assigned registers.
func TestPickFreeRegisterOverlapping(t *testing.T) {
	bank := []Reg{RAX, RCX}

	a := &LiveInterval{Var: varInfo(0, TInt), Range: liveRange{0, 2}}
	a.Reg = pickFreeRegister(bank, nil)
	if a.Reg == RegUnassigned {
		t.Fatal("expected a to get a register")
	}
	active := []*LiveInterval{a}

	b := &LiveInterval{Var: varInfo(1, TInt), Range: liveRange{1, 2}}
	b.Reg = pickFreeRegister(bank, active)
	if b.Reg == RegUnassigned {
		t.Fatal("expected b to get a register")
	}
	if a.Reg == b.Reg {
		t.Fatalf("overlapping intervals got the same register: %v", a.Reg)
	}
}

// The same two vregs with non-overlapping intervals [0,2) and [2,4)
// should be free to reuse the first register once it expires.
func TestPickFreeRegisterSequentialReuse(t *testing.T) {
	bank := []Reg{RAX, RCX}

	a := &LiveInterval{Var: varInfo(0, TInt), Range: liveRange{0, 2}}
	a.Reg = pickFreeRegister(bank, nil)
	active := []*LiveInterval{a}

	// a's range ends at 2, so at b's start (2) it has expired and is no
	// longer in the active set (mirroring allocateRegisters' expire step).
	active = active[:0]

	b := &LiveInterval{Var: varInfo(1, TInt), Range: liveRange{2, 4}}
	b.Reg = pickFreeRegister(bank, active)
	if b.Reg != a.Reg {
		t.Fatalf("expected b to reuse a's register %v, got %v", a.Reg, b.Reg)
	}
}

// A vreg with interval [0,2) pre-assigned to a register plus another
// vreg with interval [0,2) but no preassignment must land on a different
// register even though the first slot in the bank would otherwise be
// picked.
func TestFixedIntervalRespected(t *testing.T) {
	bank := []Reg{RAX, RCX}

	fixed := &LiveInterval{Var: varInfo(0, TInt), Range: liveRange{0, 2}, Reg: RAX, Fixed: true}
	active := []*LiveInterval{fixed}

	other := &LiveInterval{Var: varInfo(1, TInt), Range: liveRange{0, 2}}
	other.Reg = pickFreeRegister(bank, active)
	if other.Reg == RegUnassigned {
		t.Fatal("expected other to get a free register")
	}
	if other.Reg == RAX {
		t.Fatalf("expected other to avoid the fixed register RAX, got %v", other.Reg)
	}
}

func TestAllocateRegistersSpillsFurthestEnding(t *testing.T) {
	cu := unitFor([]byte{byte(OpIReturn)})
	cu.vregs = newVregPool()
	v0 := cu.vregs.new(TInt)
	v1 := cu.vregs.new(TInt)

	iv0 := newLiveInterval(v0)
	iv0.Range = liveRange{0, 100}
	iv1 := newLiveInterval(v1)
	iv1.Range = liveRange{2, 10}
	cu.intervals = []*LiveInterval{iv0, iv1}

	saved := gpAllocatable
	gpAllocatable = []Reg{RAX}
	defer func() { gpAllocatable = saved }()

	if err := allocateRegisters(cu); err != nil {
		t.Fatalf("allocateRegisters: %v", err)
	}

	// Only one GP register exists, so one of the two intervals must be
	// spilled. iv0 lives longest (ends at 100), so when iv1 arrives (and
	// can't find a free register) the furthest-ending active interval —
	// iv0 — is the one evicted: split at iv1's start, with only the tail
	// spilled. The prefix keeps its original register.
	if iv0.Reg == RegUnassigned {
		t.Errorf("expected iv0's prefix to keep its register, got Reg=%v", iv0.Reg)
	}
	if iv0.Range.End != iv1.Range.Start {
		t.Errorf("expected iv0 to be split at iv1's start (%d), ended at %d", iv1.Range.Start, iv0.Range.End)
	}
	if iv0.Next == nil || iv0.Next.Reg != RegUnassigned || iv0.Next.SpillSlot == nil {
		t.Fatalf("expected iv0's split tail to be spilled, got %+v", iv0.Next)
	}
	if iv1.Reg == RegUnassigned {
		t.Errorf("expected iv1 to hold the register iv0 gave up")
	}
}

func TestAssignFixedDivisionEvictsConflict(t *testing.T) {
	cu := unitFor([]byte{byte(OpIReturn)})
	cu.vregs = newVregPool()
	occupant := cu.vregs.new(TInt)
	dividend := cu.vregs.new(TInt)

	occ := newLiveInterval(occupant)
	occ.Range = liveRange{0, 50}
	occ.Reg = RAX
	active := []*LiveInterval{occ}

	div := newLiveInterval(dividend)
	div.Range = liveRange{10, 20}
	div.Insns = []*Insn{{Op: OpDivI, Def: &Operand{Kind: OperandVreg, Vreg: dividend.Vreg}}}

	assignFixedDivision(cu, div, RAX, RDX, &active)

	if div.Reg != RAX {
		t.Errorf("expected the dividend interval to land in RAX, got %v", div.Reg)
	}
	// occ is split at div's start rather than spilled wholesale: the
	// prefix (uses before the conflict) keeps RAX, only the tail is
	// evicted to a spill slot.
	if occ.Reg != RAX {
		t.Errorf("expected occ's prefix to keep RAX, got %v", occ.Reg)
	}
	if occ.Range.End != div.Range.Start {
		t.Errorf("expected occ to be split at div's start (%d), ended at %d", div.Range.Start, occ.Range.End)
	}
	if occ.Next == nil || occ.Next.Reg != RegUnassigned || occ.Next.SpillSlot == nil {
		t.Fatalf("expected occ's split tail to be spilled, got %+v", occ.Next)
	}
}
