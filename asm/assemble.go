// Package asm is a tiny textual assembler/disassembler for the bytecode
// format described by SPEC_FULL.md §4.9/§6.2 and §11.1. It exists to build
// test fixtures and the debug console's listings without a real compiler
// front end, the same role the teacher's vm/compile.go + vm/parse.go play
// for gvm's one-word-per-arg encoding -- retargeted here to the 32-bit
// ABC/AD instruction shapes of vm.Instruction.
package asm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"vmcore/vm"
)

var comments = regexp.MustCompile(`//.*`)

// escapeSeqReplacements mirrors the teacher's parse.go table: the handful of
// two-character escapes a quoted string literal may contain.
var escapeSeqReplacements = map[string]string{
	`\n`: "\n",
	`\t`: "\t",
	`\r`: "\r",
	`\\`: "\\",
	`\"`: "\"",
}

func insertEscapeSeqReplacements(s string) string {
	for orig, repl := range escapeSeqReplacements {
		s = strings.ReplaceAll(s, orig, repl)
	}
	return s
}

type opShape int

const (
	shapeABC  opShape = iota // A, B, C register/count operands
	shapeAD                  // A plus a 16-bit D (literal index or jump offset)
	shapeLitX                // LoadLitX: A plus a following raw extra-arg word
	shapeD                   // D only, no meaningful A (Jump)
)

type opInfo struct {
	op    vm.Opcode
	shape opShape
}

var mnemonics = map[string]opInfo{
	"LoadReg":    {vm.OpLoadReg, shapeABC},
	"LoadRegs":   {vm.OpLoadRegs, shapeABC},
	"LoadLit":    {vm.OpLoadLit, shapeAD},
	"LoadLitX":   {vm.OpLoadLitX, shapeLitX},
	"LoadPrim":   {vm.OpLoadPrim, shapeABC},
	"LoadNulls":  {vm.OpLoadNulls, shapeABC},
	"LoadVararg": {vm.OpLoadVararg, shapeABC},
	"GetGlobal":  {vm.OpGetGlobal, shapeAD},
	"SetGlobal":  {vm.OpSetGlobal, shapeAD},
	"Jump":       {vm.OpJump, shapeD},
	"JNull":      {vm.OpJNull, shapeAD},
	"JNNull":     {vm.OpJNNull, shapeAD},
	"JTrue":      {vm.OpJTrue, shapeAD},
	"JFalse":     {vm.OpJFalse, shapeAD},
	"JSame":      {vm.OpJSame, shapeABC},
	"JDiff":      {vm.OpJDiff, shapeABC},
	"JEq":        {vm.OpJEq, shapeAD},
	"JNe":        {vm.OpJNe, shapeAD},
	"JLt":        {vm.OpJLt, shapeAD},
	"JLe":        {vm.OpJLe, shapeAD},
	"JGt":        {vm.OpJGt, shapeAD},
	"JGe":        {vm.OpJGe, shapeAD},
	"LoadStd":    {vm.OpLoadStd, shapeABC},
	"Call":       {vm.OpCall, shapeABC},
	"TailCall":   {vm.OpTailCall, shapeABC},
	"Return":     {vm.OpReturn, shapeABC},
	"ForPrep":    {vm.OpForPrep, shapeABC},
	"RptPrep":    {vm.OpRptPrep, shapeABC},
	"RptCall":    {vm.OpRptCall, shapeABC},
	"Yield":      {vm.OpYield, shapeABC},
}

// stdSymMnemonics names the standard-symbol indices (stdsym.go) so LoadStd's
// C operand and ForPrep/RptPrep's C operand can be written symbolically
// instead of as a bare index that would silently rot if the table is
// reordered.
var stdSymMnemonics = map[string]uint8{
	"Add": vm.StdAdd, "Sub": vm.StdSub, "Mul": vm.StdMul, "Div": vm.StdDiv,
	"Compare": vm.StdCompare, "New": vm.StdNew, "Call": vm.StdCall, "Iter": vm.StdIter,
}

// asmLine is one preprocessed, not-yet-resolved instruction: its mnemonic
// and raw operand tokens, plus the instruction-word index it will occupy
// (needed up front so label references resolve in a single second pass).
type asmLine struct {
	mnemonic string
	operands []string
	idx      int
}

// Assemble compiles src into a flat instruction stream and literal pool. It
// takes the target VM because string and symbol literals are heap values
// owned by one VM's arena (§3.1) -- there is no VM-less way to construct
// them, unlike the teacher's flat-word encoding which needed no such
// binding.
func Assemble(m *vm.VM, src string) ([]vm.Instruction, []vm.Value, error) {
	labels := map[string]int{}
	litIndex := map[string]int{}
	var lits []vm.Value
	var lines []asmLine

	idx := 0
	for lineNo, raw := range strings.Split(src, "\n") {
		line := comments.ReplaceAllString(raw, "")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ".lit") {
			name, v, err := parseLitDirective(m, line)
			if err != nil {
				return nil, nil, fmt.Errorf("line %d: %w", lineNo+1, err)
			}
			litIndex[name] = len(lits)
			lits = append(lits, v)
			continue
		}

		if strings.HasSuffix(line, ":") {
			label := strings.TrimSuffix(line, ":")
			if strings.ContainsAny(label, " \t") {
				return nil, nil, fmt.Errorf("line %d: invalid label %q", lineNo+1, line)
			}
			labels[label] = idx
			continue
		}

		fields := splitInstructionLine(line)
		info, ok := mnemonics[fields[0]]
		if !ok {
			return nil, nil, fmt.Errorf("line %d: unknown instruction %q", lineNo+1, fields[0])
		}
		lines = append(lines, asmLine{mnemonic: fields[0], operands: fields[1:], idx: idx})
		if info.shape == shapeLitX {
			idx += 2
		} else {
			idx++
		}
	}

	code := make([]vm.Instruction, idx)
	for _, l := range lines {
		info := mnemonics[l.mnemonic]
		if err := encodeLine(code, litIndex, labels, l, info); err != nil {
			return nil, nil, fmt.Errorf("instruction %s at %d: %w", l.mnemonic, l.idx, err)
		}
	}
	return code, lits, nil
}

func splitInstructionLine(line string) []string {
	return strings.Fields(line)
}

func parseLitDirective(m *vm.VM, line string) (string, vm.Value, error) {
	// .lit <name> <kind> <value...>
	fields := strings.SplitN(strings.TrimSpace(strings.TrimPrefix(line, ".lit")), " ", 3)
	if len(fields) < 2 {
		return "", vm.Null, fmt.Errorf("malformed .lit directive: %q", line)
	}
	name := fields[0]
	kind := fields[1]
	value := ""
	if len(fields) > 2 {
		value = strings.TrimSpace(fields[2])
	}

	switch kind {
	case "int":
		n, err := strconv.ParseInt(value, 0, 64)
		if err != nil {
			return "", vm.Null, err
		}
		return name, vm.Int(n), nil
	case "float":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return "", vm.Null, err
		}
		return name, vm.Float(f), nil
	case "str":
		unquoted, err := unquote(value)
		if err != nil {
			return "", vm.Null, err
		}
		return name, m.NewString([]byte(unquoted)), nil
	case "sym":
		unquoted := value
		if strings.HasPrefix(value, `"`) {
			var err error
			unquoted, err = unquote(value)
			if err != nil {
				return "", vm.Null, err
			}
		}
		return name, m.Symbol([]byte(unquoted)), nil
	default:
		return "", vm.Null, fmt.Errorf("unknown literal kind %q", kind)
	}
}

func unquote(s string) (string, error) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", fmt.Errorf("unterminated string literal: %q", s)
	}
	return insertEscapeSeqReplacements(s[1 : len(s)-1]), nil
}

func encodeLine(code []vm.Instruction, litIndex, labels map[string]int, l asmLine, info opInfo) error {
	switch info.shape {
	case shapeABC:
		a, err := operandByte(l.operands, 0, labels, l.idx)
		if err != nil {
			return err
		}
		b, err := operandByte(l.operands, 1, labels, l.idx)
		if err != nil {
			return err
		}
		c, err := operandByte(l.operands, 2, labels, l.idx)
		if err != nil {
			return err
		}
		code[l.idx] = vm.MakeABC(info.op, a, b, c)

	case shapeAD:
		a, err := operandByte(l.operands, 0, labels, l.idx)
		if err != nil {
			return err
		}
		d, err := operandD(l.operands, 1, litIndex, labels, l.idx)
		if err != nil {
			return err
		}
		code[l.idx] = vm.MakeAD(info.op, a, d)

	case shapeD:
		d, err := operandD(l.operands, 0, litIndex, labels, l.idx)
		if err != nil {
			return err
		}
		code[l.idx] = vm.MakeAD(info.op, 0, d)

	case shapeLitX:
		a, err := operandByte(l.operands, 0, labels, l.idx)
		if err != nil {
			return err
		}
		idx, err := literalOperandIndex(l.operands, 1, litIndex)
		if err != nil {
			return err
		}
		code[l.idx] = vm.MakeAD(info.op, a, 0)
		code[l.idx+1] = vm.Instruction(uint32(idx))
	}
	return nil
}

// operandByte resolves an ABC-shape operand: a bare integer, the "top"
// sentinel, or (for LoadStd/ForPrep/RptPrep's C slot) a standard-symbol
// mnemonic.
func operandByte(operands []string, i int, labels map[string]int, selfIdx int) (uint8, error) {
	if i >= len(operands) {
		return 0, nil
	}
	tok := operands[i]
	if tok == "top" {
		return vm.FullTop, nil
	}
	if std, ok := stdSymMnemonics[tok]; ok {
		return std, nil
	}
	n, err := strconv.ParseUint(tok, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("bad operand %q: %w", tok, err)
	}
	return uint8(n), nil
}

// operandD resolves an AD-shape D operand: either a literal reference
// (@name), a label (resolved to a biased jump offset relative to the
// instruction following this one, matching how runLoop increments ip before
// dispatch), or a bare integer.
func operandD(operands []string, i int, litIndex, labels map[string]int, selfIdx int) (uint16, error) {
	if i >= len(operands) {
		return 0, fmt.Errorf("missing operand")
	}
	tok := operands[i]
	if strings.HasPrefix(tok, "@") {
		idx, ok := litIndex[tok[1:]]
		if !ok {
			return 0, fmt.Errorf("undefined literal %q", tok)
		}
		return uint16(idx), nil
	}
	if target, ok := labels[tok]; ok {
		offset := target - (selfIdx + 1)
		return uint16(offset + jumpBiasConst), nil
	}
	n, err := strconv.ParseInt(tok, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("bad operand %q: %w", tok, err)
	}
	return uint16(n), nil
}

func literalOperandIndex(operands []string, i int, litIndex map[string]int) (int, error) {
	if i >= len(operands) {
		return 0, fmt.Errorf("missing literal operand")
	}
	tok := strings.TrimPrefix(operands[i], "@")
	idx, ok := litIndex[tok]
	if !ok {
		return 0, fmt.Errorf("undefined literal %q", operands[i])
	}
	return idx, nil
}

// jumpBiasConst mirrors vm's unexported jumpBias (0x8000); duplicated here
// since the assembler lives outside package vm and the bias is a fixed part
// of the wire format (§6.2), not an implementation detail subject to change
// independently of it.
const jumpBiasConst = 0x8000
