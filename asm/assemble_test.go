package asm

import (
	"strings"
	"testing"

	"vmcore/vm"
)

func assert(t *testing.T, cond bool, format string, args ...interface{}) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

func TestAssembleLiteralsAndReturn(t *testing.T) {
	m := vm.New()
	defer m.Close()

	src := `
.lit one int 1
.lit two int 2
LoadLit 0 @one
LoadLit 1 @two
Return 0 2
`
	code, lits, err := Assemble(m, src)
	assert(t, err == nil, "unexpected assemble error: %v", err)
	assert(t, len(code) == 3, "expected 3 instructions, got %d", len(code))
	assert(t, len(lits) == 2, "expected 2 literals, got %d", len(lits))

	entry := m.NewBytecodeMethod("main", "", code, lits, nil, 0, false, 4)
	results, suspended := m.Resume(m.MainThread(), entry, nil, nil)
	assert(t, !suspended, "assembled program should not suspend")
	assert(t, len(results) == 2, "expected 2 results, got %d", len(results))
	assert(t, results[0] == vm.Int(1) && results[1] == vm.Int(2), "wrong results: %v", results)
}

func TestAssembleLabelsResolveJumps(t *testing.T) {
	m := vm.New()
	defer m.Close()

	src := `
LoadPrim 0 0
Jump done
LoadPrim 0 2
done:
Return 0 1
`
	code, lits, err := Assemble(m, src)
	assert(t, err == nil, "unexpected assemble error: %v", err)

	entry := m.NewBytecodeMethod("main", "", code, lits, nil, 0, false, 4)
	results, _ := m.Resume(m.MainThread(), entry, nil, nil)
	assert(t, len(results) == 1, "expected 1 result, got %d", len(results))
	assert(t, results[0].IsNull(), "Jump should have skipped the LoadPrim True, got %v", results[0])
}

func TestAssembleStringAndSymbolLiterals(t *testing.T) {
	m := vm.New()
	defer m.Close()

	src := `
.lit greeting str "hi\n"
.lit name sym "widget"
LoadLit 0 @greeting
LoadLit 1 @name
Return 0 2
`
	code, lits, err := Assemble(m, src)
	assert(t, err == nil, "unexpected assemble error: %v", err)

	entry := m.NewBytecodeMethod("main", "", code, lits, nil, 0, false, 4)
	results, _ := m.Resume(m.MainThread(), entry, nil, nil)
	assert(t, m.IsString(results[0]) && string(m.StringBytes(results[0])) == "hi\n", "string literal corrupted")
	assert(t, m.IsSymbol(results[1]) && m.SymbolString(results[1]) == "widget", "symbol literal corrupted")
}

func TestDisassembleRendersMnemonicsAndLiterals(t *testing.T) {
	m := vm.New()
	defer m.Close()

	src := `
.lit one int 1
LoadLit 0 @one
Return 0 1
`
	code, lits, err := Assemble(m, src)
	assert(t, err == nil, "unexpected assemble error: %v", err)

	out := Disassemble(m, code, lits)
	assert(t, strings.Contains(out, "LoadLit"), "disassembly missing LoadLit mnemonic:\n%s", out)
	assert(t, strings.Contains(out, "Return"), "disassembly missing Return mnemonic:\n%s", out)
	assert(t, strings.Contains(out, "; 1"), "disassembly missing literal annotation:\n%s", out)
}

func TestAssembleUnknownMnemonicErrors(t *testing.T) {
	m := vm.New()
	defer m.Close()

	_, _, err := Assemble(m, "Bogus 0 1 2")
	assert(t, err != nil, "expected an error for an unknown mnemonic")
}
