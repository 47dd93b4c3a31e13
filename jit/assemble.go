package jit

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"vmjit/classfile"
)

// Textual bytecode assembler, grounded on KTStephano-GVM/vm/parse.go's
// preprocessLine/parseInputLine pipeline: strip comments, recognize
// "label:" lines, split the remaining mnemonic + argument text, and keep
// a label table so forward branch targets resolve in a second pass. The
// teacher's assembler builds its own custom stack-machine opcodes; this
// one emits real JVM-class opcodes instead, since that is what the rest
// of this package consumes.

var asmComment = regexp.MustCompile(`//.*$`)

// assembledMnemonic is one decoded source line: an opcode name plus its
// raw argument text (a local index, a branch label, a constant-pool
// literal, or empty).
type assembledMnemonic struct {
	op   string
	arg  string
	line int
}

// Assemble turns newline-separated JVM-class mnemonics into a
// classfile.Method body. Supported mnemonics are named after their real
// opcode (iload, istore, iadd, ifne, goto, ...); ldc, invoke*, field
// access and new are not supported. Operands are a decimal local index,
// a decimal immediate (bipush/sipush) or a label name for branches.
func Assemble(className, methodName, descriptor string, maxLocals uint16, source string) (*classfile.Method, error) {
	pool := classfile.NewConstantPool()
	lines, err := scanAssembly(source)
	if err != nil {
		return nil, err
	}

	labels := map[string]uint32{}
	sizes := make([]uint32, len(lines))
	offsets := make([]uint32, len(lines))

	offset := uint32(0)
	for i, ln := range lines {
		offsets[i] = offset
		if ln.op == "label" {
			labels[ln.arg] = offset
			sizes[i] = 0
			continue
		}
		n, err := mnemonicSize(ln)
		if err != nil {
			return nil, fmt.Errorf("assemble: line %d: %w", ln.line, err)
		}
		sizes[i] = n
		offset += n
	}
	codeSize := offset

	code := make([]byte, codeSize)
	for i, ln := range lines {
		if ln.op == "label" {
			continue
		}
		if err := encodeMnemonic(code, offsets[i], ln, labels, pool); err != nil {
			return nil, fmt.Errorf("assemble: line %d: %w", ln.line, err)
		}
	}

	return &classfile.Method{
		ClassName: className,
		Name:      methodName,
		Code:      code,
		CodeSize:  codeSize,
		MaxLocals: maxLocals,
		Pool:      pool,
	}, nil
}

func scanAssembly(source string) ([]assembledMnemonic, error) {
	var out []assembledMnemonic
	for i, raw := range strings.Split(source, "\n") {
		line := asmComment.ReplaceAllString(raw, "")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, ":") {
			out = append(out, assembledMnemonic{op: "label", arg: strings.TrimSuffix(line, ":"), line: i + 1})
			continue
		}
		fields := strings.Fields(line)
		m := assembledMnemonic{op: strings.ToLower(fields[0]), line: i + 1}
		if len(fields) > 1 {
			m.arg = strings.Join(fields[1:], " ")
		}
		out = append(out, m)
	}
	return out, nil
}

// mnemonicTable maps an assembler mnemonic to its real opcode and
// whether it takes a local-variable-index, a branch-label, or no operand.
type operandForm int

const (
	formNone operandForm = iota
	formLocal
	formBranch
	formImmByte
	formImmShort
)

type mnemonicDef struct {
	op   Opcode
	form operandForm
}

var mnemonicTable = map[string]mnemonicDef{
	"nop":            {OpNop, formNone},
	"aconst_null":    {OpAConstNull, formNone},
	"iconst_m1":      {OpIConstM1, formNone},
	"iconst_0":       {OpIConst0, formNone},
	"iconst_1":       {OpIConst1, formNone},
	"iconst_2":       {OpIConst2, formNone},
	"iconst_3":       {OpIConst3, formNone},
	"iconst_4":       {OpIConst4, formNone},
	"iconst_5":       {OpIConst5, formNone},
	"bipush":         {OpBIPush, formImmByte},
	"sipush":         {OpSIPush, formImmShort},
	"iload":          {OpILoad, formLocal},
	"iload_0":        {OpILoad0, formNone},
	"iload_1":        {OpILoad1, formNone},
	"iload_2":        {OpILoad2, formNone},
	"iload_3":        {OpILoad3, formNone},
	"aload":          {OpALoad, formLocal},
	"aload_0":        {OpALoad0, formNone},
	"aload_1":        {OpALoad1, formNone},
	"aload_2":        {OpALoad2, formNone},
	"aload_3":        {OpALoad3, formNone},
	"istore":         {OpIStore, formLocal},
	"istore_0":       {OpIStore0, formNone},
	"istore_1":       {OpIStore1, formNone},
	"istore_2":       {OpIStore2, formNone},
	"istore_3":       {OpIStore3, formNone},
	"astore":         {OpAStore, formLocal},
	"astore_0":       {OpAStore0, formNone},
	"astore_1":       {OpAStore1, formNone},
	"astore_2":       {OpAStore2, formNone},
	"astore_3":       {OpAStore3, formNone},
	"pop":            {OpPop, formNone},
	"dup":            {OpDup, formNone},
	"swap":           {OpSwap, formNone},
	"iadd":           {OpIAdd, formNone},
	"isub":           {OpISub, formNone},
	"imul":           {OpIMul, formNone},
	"idiv":           {OpIDiv, formNone},
	"irem":           {OpIRem, formNone},
	"ineg":           {OpINeg, formNone},
	"ishl":           {OpIShl, formNone},
	"ishr":           {OpIShr, formNone},
	"iushr":          {OpIUshr, formNone},
	"iand":           {OpIAnd, formNone},
	"ior":            {OpIOr, formNone},
	"ixor":           {OpIXor, formNone},
	"ifeq":           {OpIfEq, formBranch},
	"ifne":           {OpIfNe, formBranch},
	"iflt":           {OpIfLt, formBranch},
	"ifge":           {OpIfGe, formBranch},
	"ifgt":           {OpIfGt, formBranch},
	"ifle":           {OpIfLe, formBranch},
	"if_icmpeq":      {OpIfICmpEq, formBranch},
	"if_icmpne":      {OpIfICmpNe, formBranch},
	"if_icmplt":      {OpIfICmpLt, formBranch},
	"if_icmpge":      {OpIfICmpGe, formBranch},
	"if_icmpgt":      {OpIfICmpGt, formBranch},
	"if_icmple":      {OpIfICmpLe, formBranch},
	"ifnull":         {OpIfNull, formBranch},
	"ifnonnull":      {OpIfNonNull, formBranch},
	"goto":           {OpGoto, formBranch},
	"ireturn":        {OpIReturn, formNone},
	"areturn":        {OpAReturn, formNone},
	"return":         {OpReturn, formNone},
	"arraylength":    {OpArrayLength, formNone},
	"athrow":         {OpAThrow, formNone},
	"monitorenter":   {OpMonitorEnter, formNone},
	"monitorexit":    {OpMonitorExit, formNone},
}

func mnemonicSize(m assembledMnemonic) (uint32, error) {
	def, ok := mnemonicTable[m.op]
	if !ok {
		return 0, fmt.Errorf("unknown mnemonic %q", m.op)
	}
	switch def.form {
	case formNone:
		return 1, nil
	case formLocal, formImmByte:
		return 2, nil
	case formBranch, formImmShort:
		return 3, nil
	default:
		return 1, nil
	}
}

func encodeMnemonic(code []byte, at uint32, m assembledMnemonic, labels map[string]uint32, pool *classfile.ConstantPool) error {
	def, ok := mnemonicTable[m.op]
	if !ok {
		return fmt.Errorf("unknown mnemonic %q", m.op)
	}
	code[at] = byte(def.op)
	switch def.form {
	case formNone:
	case formLocal, formImmByte:
		v, err := strconv.Atoi(strings.TrimSpace(m.arg))
		if err != nil {
			return fmt.Errorf("%s expects a numeric operand: %w", m.op, err)
		}
		code[at+1] = byte(v)
	case formImmShort:
		v, err := strconv.Atoi(strings.TrimSpace(m.arg))
		if err != nil {
			return fmt.Errorf("%s expects a numeric operand: %w", m.op, err)
		}
		code[at+1] = byte(int16(v) >> 8)
		code[at+2] = byte(int16(v))
	case formBranch:
		target, ok := labels[strings.TrimSpace(m.arg)]
		if !ok {
			return fmt.Errorf("undefined label %q", m.arg)
		}
		rel := int16(int64(target) - int64(at))
		code[at+1] = byte(rel >> 8)
		code[at+2] = byte(rel)
	}
	return nil
}
