package asm

import (
	"fmt"
	"strings"

	"vmcore/vm"
)

var mnemonicByOp = func() map[vm.Opcode]string {
	m := make(map[vm.Opcode]string, len(mnemonics))
	for name, info := range mnemonics {
		m[info.op] = name
	}
	return m
}()

var stdSymByIdx = func() map[uint8]string {
	m := make(map[uint8]string, len(stdSymMnemonics))
	for name, idx := range stdSymMnemonics {
		m[idx] = name
	}
	return m
}()

// Disassemble renders code/lits as a human-readable listing, one line per
// instruction word, continuing the teacher's formatInstructionStr/
// PrintProgram naming and one-instruction-per-line layout. m is used to
// render string/symbol literal contents; pass nil to fall back to an opaque
// "<value>" placeholder (e.g. when disassembling a method whose owning VM
// isn't at hand).
func Disassemble(m *vm.VM, code []vm.Instruction, lits []vm.Value) string {
	var b strings.Builder
	for i := 0; i < len(code); i++ {
		instr := code[i]
		name := mnemonicByOp[instr.Op()]
		if name == "" {
			name = fmt.Sprintf("?op%d?", instr.Op())
		}
		fmt.Fprintf(&b, "%4d: %-11s", i, name)

		if instr.Op() == vm.OpLoadLitX {
			extra := vm.Instruction(0)
			if i+1 < len(code) {
				extra = code[i+1]
			}
			fmt.Fprintf(&b, " A=%d idx=%d", instr.A(), uint32(extra))
			i++
		} else if isADShape(instr.Op()) {
			fmt.Fprintf(&b, " A=%d D=%d(sD=%d)", instr.A(), instr.D(), instr.SD())
		} else {
			fmt.Fprintf(&b, " A=%d B=%s C=%s", instr.A(), formatByteOperand(instr.Op(), instr.B(), true), formatByteOperand(instr.Op(), instr.C(), false))
		}

		if instr.Op() == vm.OpLoadLit || instr.Op() == vm.OpGetGlobal || instr.Op() == vm.OpSetGlobal {
			idx := int(instr.D())
			if idx < len(lits) {
				fmt.Fprintf(&b, "  ; %s", formatLiteral(m, lits[idx]))
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func isADShape(op vm.Opcode) bool {
	switch op {
	case vm.OpLoadLit, vm.OpGetGlobal, vm.OpSetGlobal, vm.OpJump,
		vm.OpJNull, vm.OpJNNull, vm.OpJTrue, vm.OpJFalse,
		vm.OpJEq, vm.OpJNe, vm.OpJLt, vm.OpJLe, vm.OpJGt, vm.OpJGe:
		return true
	}
	return false
}

func formatByteOperand(op vm.Opcode, v uint8, isB bool) string {
	if v == vm.FullTop {
		return "top"
	}
	if op == vm.OpLoadStd && !isB {
		if name, ok := stdSymByIdx[v]; ok {
			return name
		}
	}
	if (op == vm.OpForPrep || op == vm.OpRptPrep) && !isB {
		if name, ok := stdSymByIdx[v]; ok {
			return name
		}
	}
	return fmt.Sprintf("%d", v)
}

func formatLiteral(m *vm.VM, v vm.Value) string {
	switch {
	case v.IsNull():
		return "null"
	case v.IsInt():
		return fmt.Sprintf("%d", v.AsInt())
	case v.IsFloat():
		return fmt.Sprintf("%g", v.AsFloat())
	case m == nil:
		return "<value>"
	case m.IsString(v):
		return fmt.Sprintf("%q", string(m.StringBytes(v)))
	case m.IsSymbol(v):
		return "'" + m.SymbolString(v)
	default:
		return "<value>"
	}
}
