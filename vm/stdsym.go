package vm

// Standard symbol indices: a small, fixed set of symbols addressed by a
// small integer so opcodes (LoadStd, ForPrep, RptPrep) can reference them
// without a per-call literal-pool lookup. Index order is part of the
// bytecode ABI: do not reorder without bumping a bytecode format version.
const (
	StdAdd uint8 = iota
	StdSub
	StdMul
	StdDiv
	StdCompare // "<=>"
	StdNew
	StdCall // "()"
	StdIter // "iterate" -- backs ForPrep/RptPrep
	stdSymbolCount
)

var standardSymbolNames = [stdSymbolCount]string{
	StdAdd:     "+",
	StdSub:     "-",
	StdMul:     "*",
	StdDiv:     "/",
	StdCompare: "<=>",
	StdNew:     "New",
	StdCall:    "()",
	StdIter:    "iterate",
}

// initStdSymbols resolves every standard symbol name to its interned Value once
// at VM construction time; the table is then immutable for the VM's life.
func (vm *VM) initStdSymbols() {
	for i, name := range standardSymbolNames {
		vm.stdSyms[i] = vm.Symbol([]byte(name))
	}
}

// StdSymbol returns the interned symbol value for a standard-symbol index.
func (vm *VM) StdSymbol(idx uint8) Value {
	return vm.stdSyms[idx]
}
