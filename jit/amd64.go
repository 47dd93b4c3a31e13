package jit

// Target register file (spec.md §4.6); the schematic instruction
// encoding lives in emit.go. This is
// the one concrete target spec.md §4 resolves its open question to: a
// flat x86-64-shaped machine with a general-purpose bank and an XMM
// floating-point bank, System V-style calling convention.

// Reg is a physical register, GP or XMM depending on which bank it was
// drawn from.
type Reg int

const (
	RegUnassigned Reg = -1

	RAX Reg = iota
	RCX
	RDX
	RBX
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	RBP // frame pointer, not allocatable
	RSP // stack pointer, not allocatable

	XMM0
	XMM1
	XMM2
	XMM3
	XMM4
	XMM5
	XMM6
	XMM7
)

// gpAllocatable and xmmAllocatable are the candidate sets the register
// allocator picks from for integer/reference and floating-point values
// respectively. RBP/RSP are reserved for frame addressing; RAX/RDX are
// left allocatable but the allocator must respect idiv's fixed-register
// requirement on them (spec.md §4.5's "fixed interval" case) when it
// assigns a division.
var gpAllocatable = []Reg{RAX, RCX, RDX, RBX, RSI, RDI, R8, R9, R10, R11, R12, R13}

var xmmAllocatable = []Reg{XMM0, XMM1, XMM2, XMM3, XMM4, XMM5, XMM6, XMM7}

// calleeSaved lists the GP registers a prolog/epilog pair must preserve
// across a call, per the target's calling convention.
var calleeSaved = map[Reg]bool{RBX: true, R12: true, R13: true, R14: true, RBP: true}

// bankFor returns the candidate register set a value of type t draws
// from.
func bankFor(t Type) []Reg {
	if t.IsFloat() {
		return xmmAllocatable
	}
	return gpAllocatable
}

// fixedRegsFor reports the machine registers an instruction pins its
// operands/result to, regardless of what the allocator would otherwise
// pick — idiv's dividend in RAX/RDX being the canonical example
// (spec.md §4.5, §8 "fixed interval" scenario).
func fixedRegsFor(op MachOp) (dividend, remainder Reg, ok bool) {
	if op == OpDivI {
		return RAX, RDX, true
	}
	return RegUnassigned, RegUnassigned, false
}

func (r Reg) isXMM() bool { return r >= XMM0 && r <= XMM7 }

func (r Reg) String() string {
	names := map[Reg]string{
		RAX: "rax", RCX: "rcx", RDX: "rdx", RBX: "rbx", RSI: "rsi", RDI: "rdi",
		R8: "r8", R9: "r9", R10: "r10", R11: "r11", R12: "r12", R13: "r13", R14: "r14",
		RBP: "rbp", RSP: "rsp",
		XMM0: "xmm0", XMM1: "xmm1", XMM2: "xmm2", XMM3: "xmm3",
		XMM4: "xmm4", XMM5: "xmm5", XMM6: "xmm6", XMM7: "xmm7",
	}
	if n, ok := names[r]; ok {
		return n
	}
	return "reg(?)"
}
