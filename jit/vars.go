package jit

// Virtual registers and live intervals (spec.md §4.4/§4.5), grounded on
// original_source/jit/interval.c's struct live_interval and
// split_interval_at. A vreg is just an integer handle into vregPool;
// ownership of "which Insns reference this vreg" lives on the interval,
// not on the vreg itself, so splitting an interval is a pure data
// operation over a slice instead of an intrusive list surgery.

type vregPool struct {
	infos []*VarInfo
}

func newVregPool() *vregPool {
	return &vregPool{}
}

// VarInfo describes one virtual register: its number and its value type
// (which register bank it needs). A fixed register requirement is
// recorded on the LiveInterval (Fixed), not here.
type VarInfo struct {
	Vreg int
	T    Type
}

func (p *vregPool) new(t Type) *VarInfo {
	v := &VarInfo{Vreg: len(p.infos), T: t}
	p.infos = append(p.infos, v)
	return v
}

func (p *vregPool) get(vreg int) *VarInfo { return p.infos[vreg] }
func (p *vregPool) count() int            { return len(p.infos) }

// liveRange is a half-open [Start, End) range of LIR positions, matching
// interval.c's struct live_range.
type liveRange struct {
	Start, End int
}

func (r liveRange) contains(pos int) bool { return pos >= r.Start && pos < r.End }
func (r liveRange) length() int           { return r.End - r.Start }

// unassignedReg marks an interval that the allocator has not yet given a
// physical register (interval.c's REG_UNASSIGNED).
const unassignedReg = -1

// LiveInterval is one maximal sub-range of a vreg's lifetime that the
// register allocator assigns (or spills) as a unit. A vreg whose lifetime
// is discontinuous (because the allocator split it to make room for a
// fixed interval or to free a register) owns more than one LiveInterval,
// chained via Next.
type LiveInterval struct {
	Var   *VarInfo
	Range liveRange
	Reg   Reg // unassignedReg until the allocator assigns one

	// Fixed marks a pre-allocated interval the allocator must never
	// reassign — e.g. the physical registers a calling convention or a
	// two-operand machine instruction pins a value to.
	Fixed bool

	// Insns lists, in position order, every Insn whose use/def touches
	// this interval's vreg within Range. Splitting divides this slice
	// instead of moving list nodes (interval.c does the list-node
	// version; slices make it a plain copy here).
	Insns []*Insn

	SpillSlot *StackSlot

	Next *LiveInterval
}

// maxLIRPos is larger than any position a method's LIR stream can reach;
// newLiveInterval uses it as "no use seen yet" so the first real def/use
// narrows Range.Start down to something real.
const maxLIRPos = int(^uint(0) >> 1)

func newLiveInterval(v *VarInfo) *LiveInterval {
	return &LiveInterval{
		Var:   v,
		Range: liveRange{Start: maxLIRPos, End: 0},
		Reg:   unassignedReg,
	}
}

// splitAt divides interval into [Start,pos) (mutated in place) and
// [pos,End) (a new interval returned to the caller), reassigning every
// Insn at or after pos to the new interval. Mirrors
// interval.c's split_interval_at, generalized from its intrusive
// list-splice to a slice partition.
func (iv *LiveInterval) splitAt(pos int) *LiveInterval {
	next := &LiveInterval{
		Var:   iv.Var,
		Range: liveRange{Start: pos, End: iv.Range.End},
		Reg:   iv.Reg,
	}
	iv.Range.End = pos

	var keep, move []*Insn
	for _, insn := range iv.Insns {
		if insn.LIRPos < pos {
			keep = append(keep, insn)
		} else {
			move = append(move, insn)
		}
	}
	iv.Insns = keep
	next.Insns = move
	iv.Next = next
	return next
}

func (iv *LiveInterval) coversFixed(other *LiveInterval) bool {
	return iv.Range.Start < other.Range.End && other.Range.Start < iv.Range.End
}
