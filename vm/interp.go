package vm

import (
	"github.com/PuerkitoBio/gocoro"
	"github.com/pkg/errors"
)

// runLoop drives th's active frame chain, decoding and executing
// instructions until th.frames returns to floor (nil for a thread's entry
// call, or a saved frame pointer for a nested synchronous call such as
// AddMixin's New() hook). Tail calls and ordinary calls both stay within
// this one Go call frame -- "non-JIT, stack-based interpreter" means no Go
// recursion per language-level call, matching §9's translation notes.
func (vm *VM) runLoop(th *threadObj, c gocoro.Caller, floor *frame) {
	for th.frames != floor {
		f := th.frames
		code := vm.codeMethod(vm.method(f.callee))
		if code == nil {
			vm.fatal(errors.WithStack(ErrCorruptCode))
			return
		}
		if f.ip < 0 || f.ip >= len(code.code) {
			vm.fatal(errors.Wrapf(ErrCorruptCode, "ip %d out of range [0,%d)", f.ip, len(code.code)))
			return
		}
		instr := code.code[f.ip]
		f.ip++

		vm.step(th, c, f, code, instr)
	}
}

// step executes one instruction against frame f. reg(i) addresses the
// frame-relative register i, i.e. stack index f.begin+i.
func (vm *VM) step(th *threadObj, c gocoro.Caller, f *frame, code *methodObj, instr Instruction) {
	reg := func(i uint8) int { return f.begin + int(i) }

	switch instr.Op() {
	case OpLoadReg:
		th.stack[reg(instr.A())] = th.stack[reg(instr.B())]

	case OpLoadRegs:
		a, b, n := reg(instr.A()), reg(instr.B()), int(instr.C())
		copy(th.stack[a:a+n], th.stack[b:b+n])

	case OpLoadLit:
		vm.loadLit(th, f, code, instr.A(), int(instr.D()))

	case OpLoadLitX:
		// The following instruction word is a raw 32-bit extra-arg operand
		// (Ax) rather than a decoded instruction, supplying a wider literal
		// index than LoadLit's 16-bit D field allows.
		idx := int(code.code[f.ip])
		f.ip++
		vm.loadLit(th, f, code, instr.A(), idx)

	case OpLoadPrim:
		var v Value
		switch instr.B() {
		case 0:
			v = Null
		case 1:
			v = False
		case 2:
			v = True
		}
		th.stack[reg(instr.A())] = v

	case OpLoadNulls:
		a, n := reg(instr.A()), int(instr.B())
		for i := 0; i < n; i++ {
			th.stack[a+i] = Null
		}

	case OpLoadVararg:
		vm.loadVararg(th, f, code, instr.A(), instr.B())

	case OpGetGlobal:
		sym := code.literals[instr.D()]
		th.stack[reg(instr.A())] = vm.TableGet(th.globals, sym)

	case OpSetGlobal:
		sym := code.literals[instr.D()]
		vm.TableSet(th.globals, sym, th.stack[reg(instr.A())])

	case OpJump:
		f.ip += int(instr.SD())

	case OpJNull:
		if th.stack[reg(instr.A())].IsNull() {
			f.ip += int(instr.SD())
		}
	case OpJNNull:
		if !th.stack[reg(instr.A())].IsNull() {
			f.ip += int(instr.SD())
		}
	case OpJTrue:
		if !th.stack[reg(instr.A())].IsFalsy() {
			f.ip += int(instr.SD())
		}
	case OpJFalse:
		if th.stack[reg(instr.A())].IsFalsy() {
			f.ip += int(instr.SD())
		}

	case OpJSame:
		if SameAs(th.stack[reg(instr.A())], th.stack[reg(instr.B())]) {
			f.ip++
		}
	case OpJDiff:
		if !SameAs(th.stack[reg(instr.A())], th.stack[reg(instr.B())]) {
			f.ip++
		}

	case OpJEq, OpJNe, OpJLt, OpJLe, OpJGt, OpJGe:
		vm.stepCompareJump(th, f, instr)

	case OpLoadStd:
		a, b, std := reg(instr.A()), reg(instr.B()), instr.C()
		th.stack[a+1] = th.stack[b]
		th.stack[a] = vm.StdSymbol(std)

	case OpCall:
		a := reg(instr.A())
		nargs := vm.resolveCount(th, a, instr.B())
		vm.call(th, c, a, nargs, vm.resolveResultCount(instr.C()))

	case OpTailCall:
		a := reg(instr.A())
		nargs := vm.resolveCount(th, a, instr.B())
		vm.tailCall(th, c, a, nargs)

	case OpReturn:
		vm.doReturn(th, f, instr)

	case OpForPrep:
		vm.doIterPrep(th, f, instr, true)
	case OpRptPrep:
		vm.doIterPrep(th, f, instr, false)

	case OpRptCall:
		a := reg(instr.A())
		nargs := vm.resolveCount(th, a, instr.B())
		vm.rptCall(th, c, a, nargs, vm.resolveResultCount(instr.C()))

	case OpYield:
		a, n := reg(instr.A()), int(instr.B())
		vals := append([]Value(nil), th.stack[a:a+n]...)
		resumed := vm.yield(c, vals)
		for i := 0; i < n && i < len(resumed); i++ {
			th.stack[a+i] = resumed[i]
		}

	default:
		vm.fatal(errors.Wrapf(ErrCorruptCode, "unrecognized opcode %d", instr.Op()))
	}
}

// loadLit loads literal idx into register a; string literals are cloned per
// load so a running method can mutate its own copy without polluting the
// shared pool (§4.9).
func (vm *VM) loadLit(th *threadObj, f *frame, code *methodObj, a uint8, idx int) {
	lit := code.literals[idx]
	if vm.IsString(lit) {
		lit = vm.NewString(vm.StringBytes(lit))
	}
	th.stack[f.begin+int(a)] = lit
}

func (vm *VM) loadVararg(th *threadObj, f *frame, code *methodObj, a, b uint8) {
	varBase := f.begin + 1 + code.numParams
	avail := f.nvarargs
	dst := f.begin + int(a)
	if b == FullTop {
		copy(th.stack[dst:dst+avail], th.stack[varBase:varBase+avail])
		th.top = dst + avail
		return
	}
	n := int(b)
	for i := 0; i < n; i++ {
		if i < avail {
			th.stack[dst+i] = th.stack[varBase+i]
		} else {
			th.stack[dst+i] = Null
		}
	}
}

// resolveCount turns a Call/TailCall B operand into a concrete argument
// count. a is the absolute stack index of the callee slot (self is at a+1,
// args start at a+2); FullTop means "from a+2 up to the current top".
func (vm *VM) resolveCount(th *threadObj, a int, b uint8) int {
	if b == FullTop {
		n := th.top - (a + 2)
		if n < 0 {
			n = 0
		}
		return n
	}
	n := int(b) - 2
	if n < 0 {
		n = 0
	}
	return n
}

func (vm *VM) resolveResultCount(c uint8) int {
	if c == FullTop {
		return VARRET
	}
	return int(c)
}

// stepCompareJump implements the integer-only comparison jumps: a
// non-integer operand is treated as "not less/not equal/..." by always
// taking the jump, per §4.9's documented fallthrough policy.
func (vm *VM) stepCompareJump(th *threadObj, f *frame, instr Instruction) {
	v := th.stack[f.begin+int(instr.A())]
	if !v.IsInt() {
		f.ip += int(instr.SD())
		return
	}
	n := v.AsInt()
	var take bool
	switch instr.Op() {
	case OpJEq:
		take = n == 0
	case OpJNe:
		take = n != 0
	case OpJLt:
		take = n < 0
	case OpJLe:
		take = n <= 0
	case OpJGt:
		take = n > 0
	case OpJGe:
		take = n >= 0
	}
	if take {
		f.ip += int(instr.SD())
	}
}

func (vm *VM) doReturn(th *threadObj, f *frame, instr Instruction) {
	a := f.begin + int(instr.A())
	n := int(instr.B())
	if instr.B() == FullTop {
		n = th.top - a
	}
	results := append([]Value(nil), th.stack[a:a+n]...)
	retTo, nresults := f.retTo, f.nresults
	th.popFrame()
	vm.finishCall(th, retTo, results, nresults)
}

// doIterPrep implements ForPrep/RptPrep (§4.9): R[A+1] := R[B];
// R[A] := lookupMethod(R[A+1], StdSym[C]); ForPrep also zeroes R[A+2] as the
// iteration cursor.
func (vm *VM) doIterPrep(th *threadObj, f *frame, instr Instruction, isFor bool) {
	a, b, std := f.begin+int(instr.A()), f.begin+int(instr.B()), instr.C()
	subject := th.stack[b]
	th.stack[a+1] = subject
	th.stack[a] = vm.GetProperty(subject, vm.StdSymbol(std))
	if isFor {
		th.stack[a+2] = Int(0)
	}
}
