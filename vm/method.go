package vm

// NativeFunc is a C-callable-equivalent method body: it receives the VM and
// an Args view over its call window (self/args already laid out per §4.8)
// and returns how many result values it pushed on top of that window.
type NativeFunc func(vm *VM, a *Args) int

// methodObj backs a KindMethod heap object in one of three flavors:
// native (fn set), bytecode (code/literals set), or closure (isClosure set,
// with its upvalues and getter/setter held in this struct's own fields
// rather than in an array object).
type methodObj struct {
	header *object

	name   string
	source string

	// native flavor
	native bool
	fn     NativeFunc

	// bytecode flavor
	code      []Instruction
	literals  []Value
	localNames []string
	numParams int
	varArgs   bool
	maxStack  int

	// closure flavor: a bytecode method captured together with its upvalues
	// and optional property getter/setter pair (§3.3).
	isClosure bool
	closureOf Value // the bytecode method this closure wraps
	upvalues  []Value
	getter    Value
	setter    Value
}

func (vm *VM) newMethodHeader() *object {
	hdr := vm.allocate(KindMethod, 0)
	return hdr
}

// NewNativeMethod wraps a Go function as a callable method value.
func (vm *VM) NewNativeMethod(name string, fn NativeFunc) Value {
	hdr := vm.newMethodHeader()
	m := &methodObj{header: hdr, name: name, native: true, fn: fn}
	vm.methodObjects[hdr] = m
	return handleOf(hdr)
}

// NewBytecodeMethod constructs a callable bytecode method per §4.9/§6.2's
// persistent layout: instructions, a literal vector, local-name vector,
// fixed-parameter count, var-args flag, and max stack height.
func (vm *VM) NewBytecodeMethod(name, source string, code []Instruction, literals []Value, localNames []string, numParams int, varArgs bool, maxStack int) Value {
	hdr := vm.newMethodHeader()
	m := &methodObj{
		header:     hdr,
		name:       name,
		source:     source,
		code:       code,
		literals:   literals,
		localNames: localNames,
		numParams:  numParams,
		varArgs:    varArgs,
		maxStack:   maxStack,
	}
	vm.methodObjects[hdr] = m
	hdr.size = uint32(len(code))*4 + uint32(len(literals))*8
	return handleOf(hdr)
}

// NewClosure wraps a bytecode method value with captured upvalues and an
// optional getter/setter pair, per §3.3's Closure object kind.
func (vm *VM) NewClosure(methodVal Value, upvalues []Value, getter, setter Value) Value {
	hdr := vm.newMethodHeader()
	m := &methodObj{
		header:    hdr,
		isClosure: true,
		closureOf: methodVal,
		upvalues:  append([]Value(nil), upvalues...),
		getter:    getter,
		setter:    setter,
	}
	vm.methodObjects[hdr] = m
	vm.markChk(hdr, methodVal)
	for _, uv := range upvalues {
		vm.markChk(hdr, uv)
	}
	vm.markChk(hdr, getter)
	vm.markChk(hdr, setter)
	return handleOf(hdr)
}

func (vm *VM) method(v Value) *methodObj {
	o := vm.objectAt(v)
	if o == nil || o.kind != KindMethod {
		return nil
	}
	return vm.methodObjects[o]
}

func (vm *VM) IsMethod(v Value) bool {
	o := vm.objectAt(v)
	return o != nil && o.kind == KindMethod
}

func (vm *VM) IsCallable(v Value) bool {
	return vm.IsMethod(v) || v.IsSymbol()
}

// ClosureUpvalueGet/Set expose a closure's captured-variable slots, the one
// place permitted to mutate them outside allocation (§9 "write barrier as an
// every-store discipline").
func (vm *VM) ClosureUpvalueGet(v Value, i int) Value {
	m := vm.method(v)
	if m == nil || !m.isClosure || i < 0 || i >= len(m.upvalues) {
		return Null
	}
	return m.upvalues[i]
}

func (vm *VM) ClosureUpvalueSet(v Value, i int, val Value) {
	m := vm.method(v)
	if m == nil || !m.isClosure || i < 0 || i >= len(m.upvalues) {
		return
	}
	m.upvalues[i] = val
	vm.markChk(m.header, val)
}
