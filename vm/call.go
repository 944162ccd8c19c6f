package vm

import "github.com/PuerkitoBio/gocoro"

// minNativeWindow is the smallest local window reserved below a native call
// so natives can freely push scratch values without growing into the
// caller's own locals (§4.8 "reserves a minimum local window").
const minNativeWindow = 4

// resolveCallee implements the "symbol-as-callee shortcut" (§4.8): if the
// callee slot holds a symbol, it is resolved against self's type via the
// method-lookup protocol before dispatch.
func (vm *VM) resolveCallee(calleeVal, selfVal Value) Value {
	if !calleeVal.IsSymbol() {
		return calleeVal
	}
	return vm.GetProperty(selfVal, calleeVal)
}

// call implements Call A B C (§4.9): invoke with callee/self/args at
// calleeSlot.., writing up to nresults back to retTo == calleeSlot.
func (vm *VM) call(th *threadObj, c gocoro.Caller, calleeSlot, nargs, nresults int) {
	calleeVal := th.stack[calleeSlot]
	selfVal := th.stack[calleeSlot+1]
	resolved := vm.resolveCallee(calleeVal, selfVal)

	m := vm.method(resolved)
	if m == nil {
		vm.finishCall(th, calleeSlot, nil, nresults)
		return
	}

	if m.native {
		vm.callNative(th, c, m, calleeSlot, calleeSlot, nargs, nresults)
		return
	}

	vm.enterBytecodeFrame(th, m, calleeSlot, nargs, nresults, false)
}

// rptCall implements RptCall A B C (§4.9): like call, but its callee and self
// are an iterator method and its subject left in place by ForPrep/RptPrep, so
// results land two slots above the callee (A+2) instead of overwriting them --
// the next RptCall needs A and A+1 untouched to drive another step.
func (vm *VM) rptCall(th *threadObj, c gocoro.Caller, calleeSlot, nargs, nresults int) {
	calleeVal := th.stack[calleeSlot]
	selfVal := th.stack[calleeSlot+1]
	resolved := vm.resolveCallee(calleeVal, selfVal)
	retTo := calleeSlot + 2

	m := vm.method(resolved)
	if m == nil {
		vm.finishCall(th, retTo, nil, nresults)
		return
	}

	if m.native {
		vm.callNative(th, c, m, calleeSlot, retTo, nargs, nresults)
		return
	}

	f := vm.enterBytecodeFrame(th, m, calleeSlot, nargs, nresults, false)
	f.retTo = retTo
}

// codeMethod resolves a callee method to the one actually holding
// instructions/literals: a closure's own methodObj carries no code, only
// upvalues, so its frame executes the wrapped method's bytecode.
func (vm *VM) codeMethod(m *methodObj) *methodObj {
	if m.isClosure {
		return vm.method(m.closureOf)
	}
	return m
}

// tailCall implements TailCall A B C (§4.9): the outgoing frame is discarded
// and the callee/args are moved down onto its callee slot; retTo and
// nresults are inherited.
func (vm *VM) tailCall(th *threadObj, c gocoro.Caller, calleeSlot, nargs int) {
	outgoing := th.frames
	if outgoing == nil {
		vm.call(th, c, calleeSlot, nargs, VARRET)
		return
	}
	retTo := outgoing.retTo
	nresults := outgoing.nresults

	dstBase := outgoing.begin - 1 // the outgoing frame's own callee slot
	n := nargs + 2                // callee, self, args
	copy(th.stack[dstBase:dstBase+n], th.stack[calleeSlot:calleeSlot+n])
	th.top = dstBase + n

	vm.popFrameKeepingRetTo(th)

	calleeVal := th.stack[dstBase]
	selfVal := th.stack[dstBase+1]
	resolved := vm.resolveCallee(calleeVal, selfVal)
	m := vm.method(resolved)
	if m == nil {
		vm.finishCall(th, dstBase, nil, nresults)
		return
	}
	if m.native {
		vm.callNative(th, c, m, dstBase, dstBase, nargs, nresults)
		return
	}
	f := vm.enterBytecodeFrame(th, m, dstBase, nargs, nresults, true)
	f.retTo = retTo
	f.nresults = nresults
}

// popFrameKeepingRetTo discards the active frame without touching the stack
// contents already moved down by the caller (tailCall's own copy).
func (vm *VM) popFrameKeepingRetTo(th *threadObj) {
	th.popFrame()
}

// enterBytecodeFrame establishes a new frame for a bytecode method per
// §4.8's parameter-adjustment rule: missing fixed parameters are padded with
// null; a var-args callee has its fixed parameters moved above the variadic
// tail so local 0 is self.
func (vm *VM) enterBytecodeFrame(th *threadObj, m *methodObj, calleeSlot, nargs, nresults int, tail bool) *frame {
	code := vm.codeMethod(m)
	self := calleeSlot + 1
	nvarargs := 0

	th.growStack(vm, code.maxStack+8)

	if code.varArgs {
		// Final layout: self, fixed params (padded to numParams with null),
		// then the variadic tail -- "the next fixed parameters follow" self,
		// with "..." addressable right after via LoadVararg (§4.8).
		nfixed := code.numParams
		if nfixed > nargs {
			nfixed = nargs
		}
		argsTail := append([]Value(nil), th.stack[self+1:self+1+nargs]...)
		fixed := argsTail[:nfixed]
		varargs := argsTail[nfixed:]

		base := self
		for i := 0; i < code.numParams; i++ {
			if i < len(fixed) {
				th.stack[base+1+i] = fixed[i]
			} else {
				th.stack[base+1+i] = Null
			}
		}
		copy(th.stack[base+1+code.numParams:], varargs)
		self = base
		nvarargs = len(varargs)
	} else {
		for i := nargs; i < code.numParams; i++ {
			th.stack[self+1+i] = Null
		}
	}

	begin := self
	end := begin + code.maxStack
	f := &frame{
		callee:   handleOf(m.header),
		begin:    begin,
		end:      end,
		retTo:    calleeSlot,
		ip:       0,
		nresults: nresults,
		tailCall: tail,
		nvarargs: nvarargs,
	}
	th.pushFrame(f)
	if end > th.top {
		th.top = end
	}
	return f
}

// callNative runs a native method synchronously and copies its results down
// to retTo (ordinarily calleeSlot itself; RptCall passes calleeSlot+2), per
// §4.8.
func (vm *VM) callNative(th *threadObj, c gocoro.Caller, m *methodObj, calleeSlot, retTo, nargs, nresults int) {
	window := nargs + 2 + minNativeWindow
	th.growStack(vm, window)
	savedTop := th.top
	base := calleeSlot + 1 // self's slot
	th.top = calleeSlot + nargs + 2

	args := &Args{vm: vm, th: th, c: c, base: base}
	n := m.fn(vm, args)

	results := append([]Value(nil), th.stack[th.top-n:th.top]...)
	th.top = savedTop
	vm.finishCall(th, retTo, results, nresults)
}

// finishCall copies results to retTo, padding with null or truncating to
// match nresults (VARRET keeps them all and sets top accordingly).
func (vm *VM) finishCall(th *threadObj, retTo int, results []Value, nresults int) {
	n := nresults
	if n == VARRET {
		n = len(results)
	}
	th.growStack(vm, retTo+n-th.top)
	for i := 0; i < n; i++ {
		if i < len(results) {
			th.stack[retTo+i] = results[i]
		} else {
			th.stack[retTo+i] = Null
		}
	}
	// retTo+n is exactly how many slots the caller should now see above
	// retTo, whether that's a fixed count or VARRET's "everything returned" --
	// a frame above this point belonged to the callee and is gone.
	th.top = retTo + n
}

// invoke is the entry point used by a thread's first Resume: it sets up the
// call at the bottom of an otherwise-empty stack and runs the interpreter
// loop to completion, returning the result values.
func (vm *VM) invoke(th *threadObj, c gocoro.Caller, callee Value, args []Value, nresults int) []Value {
	th.growStack(vm, len(args)+3)
	th.stack[0] = callee
	th.stack[1] = Null // no self at the VM entry point
	for i, a := range args {
		th.stack[2+i] = a
	}
	th.top = 2 + len(args)

	resolved := vm.resolveCallee(callee, th.stack[1])
	m := vm.method(resolved)
	if m == nil {
		vm.finishCall(th, 0, nil, nresults)
		return append([]Value(nil), th.stack[0:maxInt(0, nresults)]...)
	}
	if m.native {
		vm.callNative(th, c, m, 0, 0, len(args), nresults)
		return append([]Value(nil), th.stack[0:th.top]...)
	}

	vm.enterBytecodeFrame(th, m, 0, len(args), nresults, false)
	vm.runLoop(th, c, nil)

	n := nresults
	if n == VARRET {
		n = th.top
	}
	return append([]Value(nil), th.stack[0:n]...)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

