package vm

// debugCaller stubs gocoro.Caller for single-step debugging: a yield inside
// single-stepped code resolves immediately rather than blocking on a real
// coroutine switch, since the debug console (§11.2) drives one thread
// synchronously outside of Resume's normal coroutine setup. This is a
// dev-loop convenience, not a VM semantics path -- §7 already says there is
// no debugger wire protocol.
type debugCaller struct{}

func (debugCaller) Yield(v interface{}) (interface{}, error) { return nil, nil }

// DebugEnter sets up thv's stack for a call to entry (as invoke would) and
// pushes its first frame without running it, so the debug console can drive
// it one instruction at a time via DebugStep instead of Resume running the
// whole call synchronously.
func (vm *VM) DebugEnter(thv, entry Value, args []Value) {
	th := vm.thread(thv)
	if th == nil {
		return
	}
	th.growStack(vm, len(args)+3)
	th.stack[0] = entry
	th.stack[1] = Null
	for i, a := range args {
		th.stack[2+i] = a
	}
	th.top = 2 + len(args)

	resolved := vm.resolveCallee(entry, th.stack[1])
	m := vm.method(resolved)
	if m == nil {
		return
	}
	if m.native {
		vm.callNative(th, debugCaller{}, m, 0, 0, len(args), VARRET)
		return
	}
	vm.enterBytecodeFrame(th, m, 0, len(args), VARRET, false)
}

// DebugStep executes exactly one instruction on thv's active frame, for
// cmd/gvm's -debug console. It returns false once the thread has no frame
// left to run (its outermost call has returned).
func (vm *VM) DebugStep(thv Value) bool {
	th := vm.thread(thv)
	if th == nil || th.frames == nil {
		return false
	}
	f := th.frames
	code := vm.codeMethod(vm.method(f.callee))
	if code == nil || f.ip < 0 || f.ip >= len(code.code) {
		return false
	}
	instr := code.code[f.ip]
	f.ip++
	vm.step(th, debugCaller{}, f, code, instr)
	return true
}

// DebugRunning reports whether thv still has a frame to execute.
func (vm *VM) DebugRunning(thv Value) bool {
	th := vm.thread(thv)
	return th != nil && th.frames != nil
}

// DebugIP returns the active frame's next-instruction index, or -1 if the
// thread has returned.
func (vm *VM) DebugIP(thv Value) int {
	th := vm.thread(thv)
	if th == nil || th.frames == nil {
		return -1
	}
	return th.frames.ip
}

// DebugFrameDepth counts frames from the active one down to the thread's
// entry call.
func (vm *VM) DebugFrameDepth(thv Value) int {
	th := vm.thread(thv)
	n := 0
	for f := th.frames; f != nil; f = f.prev {
		n++
	}
	return n
}

// DebugRegisters returns a copy of the active frame's addressable register
// window, R[0..maxStack).
func (vm *VM) DebugRegisters(thv Value) []Value {
	th := vm.thread(thv)
	if th == nil || th.frames == nil {
		return nil
	}
	f := th.frames
	end := f.end
	if th.top > end {
		end = th.top
	}
	if end > len(th.stack) {
		end = len(th.stack)
	}
	return append([]Value(nil), th.stack[f.begin:end]...)
}

// DebugCode returns the active frame's instruction stream and literal pool,
// so a debug console can disassemble around the current ip.
func (vm *VM) DebugCode(thv Value) ([]Instruction, []Value) {
	th := vm.thread(thv)
	if th == nil || th.frames == nil {
		return nil, nil
	}
	code := vm.codeMethod(vm.method(th.frames.callee))
	if code == nil {
		return nil, nil
	}
	return code.code, code.literals
}
