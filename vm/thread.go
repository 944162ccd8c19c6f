package vm

import (
	"github.com/PuerkitoBio/gocoro"
)

// threadStatus mirrors §3.3's "status byte (ready / active / done)".
type threadStatus byte

const (
	threadReady threadStatus = iota
	threadActive
	threadSuspended
	threadDone
)

// threadObj backs a KindThread heap object: one cooperative execution
// context (§5). Suspension/resume is delegated to a gocoro.Coro so a yield
// deep inside the interpreter loop unwinds the Go call stack the same way a
// coroutine switch would in the original stackful runtime, without spawning
// an OS thread per language-level thread.
type threadObj struct {
	header *object

	stack  []Value
	top    int
	frames *frame

	globals Value
	status  threadStatus

	coro *gocoro.Coro

	// yieldOut ferries Values across the gocoro boundary, which
	// speaks interface{}; the interpreter only ever stuffs a []Value in.
	yieldOut []Value
}

// newThread allocates a fresh thread with its own stack and an empty global
// table, wiring it for later Resume calls. It is not itself started; the
// first Resume runs its entry method from instruction zero.
func (vm *VM) newThread(initialStack int) *threadObj {
	hdr := vm.allocate(KindThread, 0)
	globals := vm.NewTable(0)
	stack := make([]Value, initialStack)
	for i := range stack {
		stack[i] = Null
	}
	th := &threadObj{
		header:  hdr,
		stack:   stack,
		globals: globals,
	}
	vm.threadObjects[hdr] = th
	vm.markChk(hdr, globals)
	return th
}

// NewThread exposes newThread as a Value-returning embedding operation
// (§6.1's "VM lifecycle").
func (vm *VM) NewThread() Value {
	return handleOf(vm.newThread(vm.config.InitialStack).header)
}

func (vm *VM) thread(v Value) *threadObj {
	o := vm.objectAt(v)
	if o == nil || o.kind != KindThread {
		return nil
	}
	return vm.threadObjects[o]
}

func (vm *VM) IsThread(v Value) bool {
	o := vm.objectAt(v)
	return o != nil && o.kind == KindThread
}

// Resume invokes callee on th (as if via Call) and runs it until it returns
// or yields. On yield it returns the yielded values and suspended=true with
// the thread left suspended for a later Resume to continue (resumeArgs become
// the yield expression's result inside the callee); on natural return it
// returns the call's results and suspended=false with the thread now Done.
// Resuming a Done thread starts callee afresh on it.
func (vm *VM) Resume(thv Value, callee Value, args []Value, resumeArgs []Value) (results []Value, suspended bool) {
	th := vm.thread(thv)
	if th == nil {
		return nil, false
	}

	if th.coro == nil || th.status == threadDone {
		th.status = threadActive
		th.coro = gocoro.New(func(c gocoro.Caller, in interface{}) (interface{}, error) {
			return vm.runThreadEntry(th, c, callee, args)
		})
	}

	var in interface{} = resumeArgs
	out, err := th.coro.Resume(in)
	if err != nil {
		if err == gocoro.ErrEndOfCoro {
			th.status = threadDone
			return th.yieldOut, false
		}
		vm.fatal(err)
		return nil, false
	}

	if vals, ok := out.([]Value); ok {
		th.yieldOut = vals
	}
	if th.status != threadDone {
		th.status = threadSuspended
		return th.yieldOut, true
	}
	return th.yieldOut, false
}

// runThreadEntry is the gocoro body: it drives the interpreter loop for this
// thread's entry call, handing the Caller down so OpYield can reach back
// into gocoro without the interpreter importing it directly.
func (vm *VM) runThreadEntry(th *threadObj, c gocoro.Caller, callee Value, args []Value) (interface{}, error) {
	th.status = threadActive
	results := vm.invoke(th, c, callee, args, VARRET)
	th.status = threadDone
	th.yieldOut = results
	return results, nil
}

// yield is called from the interpreter's Yield opcode handler. It hands
// vals across the gocoro boundary and blocks until the next Resume, which
// returns whatever values that Resume call supplied.
func (vm *VM) yield(c gocoro.Caller, vals []Value) []Value {
	th := vm.threadForCaller(c)
	if th != nil {
		th.status = threadSuspended
	}
	in, err := c.Yield(vals)
	if th != nil {
		th.status = threadActive
	}
	if err != nil {
		vm.fatal(err)
		return nil
	}
	if resumed, ok := in.([]Value); ok {
		return resumed
	}
	return nil
}

// threadForCaller finds which owned thread a gocoro.Caller belongs to. The
// VM only ever runs one coroutine at a time per §5, so a linear scan over
// live threads is adequate and keeps gocoro.Caller out of threadObj's own
// fields (it is only valid for the duration of one Resume call).
func (vm *VM) threadForCaller(c gocoro.Caller) *threadObj {
	for _, th := range vm.threadObjects {
		if th.coro != nil && th.status == threadActive {
			return th
		}
	}
	return nil
}

// Reset implements §5's cancellation: status cleared, stack truncated to one
// slot, frame chain collapsed, optional new initial values pushed.
func (vm *VM) Reset(thv Value, initial []Value) {
	th := vm.thread(thv)
	if th == nil {
		return
	}
	th.status = threadReady
	th.frames = nil
	th.coro = nil
	th.top = 0
	th.growStack(vm, len(initial)+1)
	for _, v := range initial {
		th.stack[th.top] = v
		th.top++
	}
}
