package jit

// Opcode is a JVM-class bytecode instruction identifier. Values match the
// real JVM opcode encoding so that the scenarios in spec.md §8 (which give
// exact byte offsets) hold without translation.
type Opcode byte

const (
	OpNop        Opcode = 0x00
	OpAConstNull Opcode = 0x01

	OpIConstM1 Opcode = 0x02
	OpIConst0  Opcode = 0x03
	OpIConst1  Opcode = 0x04
	OpIConst2  Opcode = 0x05
	OpIConst3  Opcode = 0x06
	OpIConst4  Opcode = 0x07
	OpIConst5  Opcode = 0x08

	OpFConst0 Opcode = 0x0B
	OpFConst1 Opcode = 0x0C
	OpFConst2 Opcode = 0x0D

	OpBIPush Opcode = 0x10
	OpSIPush Opcode = 0x11
	OpLDC    Opcode = 0x12

	OpILoad Opcode = 0x15
	OpFLoad Opcode = 0x17
	OpALoad Opcode = 0x19

	OpILoad0 Opcode = 0x1A
	OpILoad1 Opcode = 0x1B
	OpILoad2 Opcode = 0x1C
	OpILoad3 Opcode = 0x1D

	OpFLoad0 Opcode = 0x22
	OpFLoad1 Opcode = 0x23
	OpFLoad2 Opcode = 0x24
	OpFLoad3 Opcode = 0x25

	OpALoad0 Opcode = 0x2A
	OpALoad1 Opcode = 0x2B
	OpALoad2 Opcode = 0x2C
	OpALoad3 Opcode = 0x2D

	OpIALoad Opcode = 0x2E
	OpFALoad Opcode = 0x30
	OpAALoad Opcode = 0x32

	OpIStore Opcode = 0x36
	OpFStore Opcode = 0x38
	OpAStore Opcode = 0x3A

	OpIStore0 Opcode = 0x3B
	OpIStore1 Opcode = 0x3C
	OpIStore2 Opcode = 0x3D
	OpIStore3 Opcode = 0x3E

	OpFStore0 Opcode = 0x43
	OpFStore1 Opcode = 0x44
	OpFStore2 Opcode = 0x45
	OpFStore3 Opcode = 0x46

	OpAStore0 Opcode = 0x4B
	OpAStore1 Opcode = 0x4C
	OpAStore2 Opcode = 0x4D
	OpAStore3 Opcode = 0x4E

	OpIAStore Opcode = 0x4F
	OpFAStore Opcode = 0x51
	OpAAStore Opcode = 0x53

	OpPop  Opcode = 0x57
	OpDup  Opcode = 0x59
	OpSwap Opcode = 0x5F

	OpIAdd Opcode = 0x60
	OpFAdd Opcode = 0x62
	OpISub Opcode = 0x64
	OpFSub Opcode = 0x66
	OpIMul Opcode = 0x68
	OpFMul Opcode = 0x6A
	OpIDiv Opcode = 0x6C
	OpFDiv Opcode = 0x6E
	OpIRem Opcode = 0x70
	OpFRem Opcode = 0x72
	OpINeg Opcode = 0x74
	OpFNeg Opcode = 0x76

	OpIShl  Opcode = 0x78
	OpIShr  Opcode = 0x7A
	OpIUshr Opcode = 0x7C
	OpIAnd  Opcode = 0x7E
	OpIOr   Opcode = 0x80
	OpIXor  Opcode = 0x82

	OpIInc Opcode = 0x84

	OpI2F Opcode = 0x86
	OpF2I Opcode = 0x8B
	OpI2B Opcode = 0x91
	OpI2C Opcode = 0x92
	OpI2S Opcode = 0x93

	OpFCmpL Opcode = 0x95
	OpFCmpG Opcode = 0x96

	OpIfEq Opcode = 0x99
	OpIfNe Opcode = 0x9A
	OpIfLt Opcode = 0x9B
	OpIfGe Opcode = 0x9C
	OpIfGt Opcode = 0x9D
	OpIfLe Opcode = 0x9E

	OpIfICmpEq Opcode = 0x9F
	OpIfICmpNe Opcode = 0xA0
	OpIfICmpLt Opcode = 0xA1
	OpIfICmpGe Opcode = 0xA2
	OpIfICmpGt Opcode = 0xA3
	OpIfICmpLe Opcode = 0xA4

	OpIfACmpEq Opcode = 0xA5
	OpIfACmpNe Opcode = 0xA6

	OpGoto Opcode = 0xA7

	OpTableSwitch  Opcode = 0xAA
	OpLookupSwitch Opcode = 0xAB

	OpIReturn Opcode = 0xAC
	OpFReturn Opcode = 0xAE
	OpAReturn Opcode = 0xB0
	OpReturn  Opcode = 0xB1

	OpGetStatic Opcode = 0xB2
	OpPutStatic Opcode = 0xB3
	OpGetField  Opcode = 0xB4
	OpPutField  Opcode = 0xB5

	OpInvokeVirtual   Opcode = 0xB6
	OpInvokeSpecial   Opcode = 0xB7
	OpInvokeStatic    Opcode = 0xB8
	OpInvokeInterface Opcode = 0xB9

	OpNew         Opcode = 0xBB
	OpANewArray   Opcode = 0xBD
	OpArrayLength Opcode = 0xBE
	OpAThrow      Opcode = 0xBF
	OpCheckCast   Opcode = 0xC0
	OpInstanceOf  Opcode = 0xC1

	OpMonitorEnter Opcode = 0xC2
	OpMonitorExit  Opcode = 0xC3

	OpIfNull    Opcode = 0xC6
	OpIfNonNull Opcode = 0xC7
)

// fixedSizes gives the instruction length (opcode byte + operands) for
// every opcode whose length does not depend on its position in the code
// array. tableswitch/lookupswitch are handled separately by
// instructionSize because their padding is alignment-dependent (spec.md
// §9 "Variable-length bytecodes").
var fixedSizes = map[Opcode]uint32{
	OpNop: 1, OpAConstNull: 1,
	OpIConstM1: 1, OpIConst0: 1, OpIConst1: 1, OpIConst2: 1, OpIConst3: 1, OpIConst4: 1, OpIConst5: 1,
	OpFConst0: 1, OpFConst1: 1, OpFConst2: 1,
	OpBIPush: 2, OpSIPush: 3, OpLDC: 2,
	OpILoad: 2, OpFLoad: 2, OpALoad: 2,
	OpILoad0: 1, OpILoad1: 1, OpILoad2: 1, OpILoad3: 1,
	OpFLoad0: 1, OpFLoad1: 1, OpFLoad2: 1, OpFLoad3: 1,
	OpALoad0: 1, OpALoad1: 1, OpALoad2: 1, OpALoad3: 1,
	OpIALoad: 1, OpFALoad: 1, OpAALoad: 1,
	OpIStore: 2, OpFStore: 2, OpAStore: 2,
	OpIStore0: 1, OpIStore1: 1, OpIStore2: 1, OpIStore3: 1,
	OpFStore0: 1, OpFStore1: 1, OpFStore2: 1, OpFStore3: 1,
	OpAStore0: 1, OpAStore1: 1, OpAStore2: 1, OpAStore3: 1,
	OpIAStore: 1, OpFAStore: 1, OpAAStore: 1,
	OpPop: 1, OpDup: 1, OpSwap: 1,
	OpIAdd: 1, OpFAdd: 1, OpISub: 1, OpFSub: 1, OpIMul: 1, OpFMul: 1,
	OpIDiv: 1, OpFDiv: 1, OpIRem: 1, OpFRem: 1, OpINeg: 1, OpFNeg: 1,
	OpIShl: 1, OpIShr: 1, OpIUshr: 1, OpIAnd: 1, OpIOr: 1, OpIXor: 1,
	OpIInc: 3,
	OpI2F:  1, OpF2I: 1, OpI2B: 1, OpI2C: 1, OpI2S: 1,
	OpFCmpL: 1, OpFCmpG: 1,
	OpIfEq: 3, OpIfNe: 3, OpIfLt: 3, OpIfGe: 3, OpIfGt: 3, OpIfLe: 3,
	OpIfICmpEq: 3, OpIfICmpNe: 3, OpIfICmpLt: 3, OpIfICmpGe: 3, OpIfICmpGt: 3, OpIfICmpLe: 3,
	OpIfACmpEq: 3, OpIfACmpNe: 3,
	OpGoto: 3,
	OpIReturn: 1, OpFReturn: 1, OpAReturn: 1, OpReturn: 1,
	OpGetStatic: 3, OpPutStatic: 3, OpGetField: 3, OpPutField: 3,
	OpInvokeVirtual: 3, OpInvokeSpecial: 3, OpInvokeStatic: 3, OpInvokeInterface: 5,
	OpNew: 3, OpANewArray: 3, OpArrayLength: 1, OpAThrow: 1, OpCheckCast: 3, OpInstanceOf: 3,
	OpMonitorEnter: 1, OpMonitorExit: 1,
	OpIfNull: 3, OpIfNonNull: 3,
}

// isBranch reports whether an opcode carries a branch target (a signed
// 16-bit offset from the opcode's own bytecode offset, per the class file
// format) that the CFG builder must record.
func isBranch(op Opcode) bool {
	switch op {
	case OpIfEq, OpIfNe, OpIfLt, OpIfGe, OpIfGt, OpIfLe,
		OpIfICmpEq, OpIfICmpNe, OpIfICmpLt, OpIfICmpGe, OpIfICmpGt, OpIfICmpLe,
		OpIfACmpEq, OpIfACmpNe, OpIfNull, OpIfNonNull, OpGoto:
		return true
	}
	return false
}

// isUnconditionalBranch reports whether control never falls through.
func isUnconditionalBranch(op Opcode) bool {
	return op == OpGoto
}

// isReturnOrThrow reports whether the opcode terminates a block by
// edging to the unit's exit block.
func isReturnOrThrow(op Opcode) bool {
	switch op {
	case OpIReturn, OpFReturn, OpAReturn, OpReturn, OpAThrow:
		return true
	}
	return false
}

// branchTarget computes the absolute bytecode offset a branch at `at`
// targets, reading its signed 16-bit operand.
func branchTarget(code []byte, at uint32) uint32 {
	rel := beInt16(code[at+1:])
	return uint32(int64(at) + int64(rel))
}

// instructionSize returns the length in bytes of the instruction starting
// at offset `at`, including the two variable-length forms tableswitch and
// lookupswitch, whose padding is alignment-dependent
// (original_source/vm/bytecode.c and spec.md §9).
func instructionSize(code []byte, at uint32) (uint32, error) {
	op := Opcode(code[at])

	switch op {
	case OpTableSwitch:
		return tableSwitchSize(code, at)
	case OpLookupSwitch:
		return lookupSwitchSize(code, at)
	}

	if size, ok := fixedSizes[op]; ok {
		return size, nil
	}
	return 0, newCompileError(MalformedBytecode, "unknown opcode %#x at offset %d", op, at)
}

// padTo4 returns the number of zero padding bytes needed so that `at+1`
// (the first byte after the opcode) is 4-byte aligned within the code
// array, exactly as tableswitch/lookupswitch require.
func padTo4(at uint32) uint32 {
	return (4 - (at+1)%4) % 4
}

func tableSwitchSize(code []byte, at uint32) (uint32, error) {
	pad := padTo4(at)
	base := at + 1 + pad
	if int(base)+12 > len(code) {
		return 0, newCompileError(MalformedBytecode, "truncated tableswitch at offset %d", at)
	}
	low := beInt32(code[base+4:])
	high := beInt32(code[base+8:])
	if high < low {
		return 0, newCompileError(MalformedBytecode, "tableswitch with high < low at offset %d", at)
	}
	nCases := uint32(high-low) + 1
	// default + low + high + one 4-byte jump offset per case
	return 1 + pad + 12 + nCases*4, nil
}

func lookupSwitchSize(code []byte, at uint32) (uint32, error) {
	pad := padTo4(at)
	base := at + 1 + pad
	if int(base)+8 > len(code) {
		return 0, newCompileError(MalformedBytecode, "truncated lookupswitch at offset %d", at)
	}
	nPairs := beUint32(code[base+4:])
	return 1 + pad + 8 + nPairs*8, nil
}

// tableSwitchCases decodes a tableswitch instruction's default target and
// per-case targets, all as absolute bytecode offsets.
func tableSwitchCases(code []byte, at uint32) (defaultTarget uint32, cases []uint32) {
	pad := padTo4(at)
	base := at + 1 + pad
	def := beInt32(code[base:])
	low := beInt32(code[base+4:])
	high := beInt32(code[base+8:])
	defaultTarget = uint32(int64(at) + int64(def))
	for i := low; i <= high; i++ {
		off := base + 12 + uint32(i-low)*4
		rel := beInt32(code[off:])
		cases = append(cases, uint32(int64(at)+int64(rel)))
	}
	return
}

// tableSwitchLowHigh returns a tableswitch instruction's low/high case
// bounds, letting callers reconstruct the case value for each entry
// tableSwitchCases returns (case i has value low+i).
func tableSwitchLowHigh(code []byte, at uint32) (low, high int32) {
	pad := padTo4(at)
	base := at + 1 + pad
	return beInt32(code[base+4:]), beInt32(code[base+8:])
}

// lookupSwitchKeys decodes a lookupswitch instruction's match keys, in the
// same order as lookupSwitchCases' targets.
func lookupSwitchKeys(code []byte, at uint32) []int32 {
	pad := padTo4(at)
	base := at + 1 + pad
	nPairs := beUint32(code[base+4:])
	keys := make([]int32, 0, nPairs)
	for i := uint32(0); i < nPairs; i++ {
		off := base + 8 + i*8
		keys = append(keys, beInt32(code[off:]))
	}
	return keys
}

func lookupSwitchCases(code []byte, at uint32) (defaultTarget uint32, cases []uint32) {
	pad := padTo4(at)
	base := at + 1 + pad
	def := beInt32(code[base:])
	nPairs := beUint32(code[base+4:])
	defaultTarget = uint32(int64(at) + int64(def))
	for i := uint32(0); i < nPairs; i++ {
		off := base + 8 + i*8
		rel := beInt32(code[off+4:])
		cases = append(cases, uint32(int64(at)+int64(rel)))
	}
	return
}
