package vm

import "github.com/PuerkitoBio/gocoro"

// Args is the embedding-facing view over a thread's data stack for the
// duration of one native-method call, implementing §6.1's Stack operations
// (push/pop/get/set/copy/insert/delete/getFromTop/top/setTop/ensureCapacity)
// scoped to that call's own window so a native method can't address into
// its caller's locals.
type Args struct {
	vm   *VM
	th   *threadObj
	c    gocoro.Caller
	base int // index of self; base+1.. are the fixed/variadic args
}

// Self returns the receiver the method was invoked on.
func (a *Args) Self() Value { return a.th.stack[a.base] }

// N returns how many argument slots (excluding self) are available.
func (a *Args) N() int { return a.th.top - a.base - 1 }

// Get returns argument i (0-based, not counting self), or Null if out of
// range -- natives never fault on arity mismatch (§7 type-mismatch is soft).
func (a *Args) Get(i int) Value {
	idx := a.base + 1 + i
	if i < 0 || idx >= a.th.top {
		return Null
	}
	return a.th.stack[idx]
}

func (a *Args) Set(i int, v Value) {
	idx := a.base + 1 + i
	if i < 0 {
		return
	}
	a.th.growStack(a.vm, idx-a.th.top+1)
	a.th.stack[idx] = v
	if idx >= a.th.top {
		a.th.top = idx + 1
	}
}

// Push appends v to the current top of this call's window, growing the
// stack as needed; used both to stage arguments for a nested Call and to
// leave results for the caller to collect.
func (a *Args) Push(v Value) {
	a.th.growStack(a.vm, 1)
	a.th.stack[a.th.top] = v
	a.th.top++
}

func (a *Args) Pop() Value {
	if a.th.top <= a.base+1 {
		return Null
	}
	a.th.top--
	v := a.th.stack[a.th.top]
	a.th.stack[a.th.top] = Null
	return v
}

// Top returns how many slots (including self) are in use above base.
func (a *Args) Top() int { return a.th.top - a.base }

func (a *Args) SetTop(n int) {
	a.th.growStack(a.vm, a.base+n-a.th.top)
	for i := a.th.top; i < a.base+n; i++ {
		a.th.stack[i] = Null
	}
	a.th.top = a.base + n
}

func (a *Args) GetFromTop(n int) Value {
	idx := a.th.top - 1 - n
	if idx < a.base {
		return Null
	}
	return a.th.stack[idx]
}

func (a *Args) EnsureCapacity(n int) {
	a.th.growStack(a.vm, n)
}

// Call stages callee, self and args at this window's top, runs the call and
// returns up to nresults results (all of them for VARRET); top is restored
// to where it was before the call.
func (a *Args) Call(callee Value, self Value, args []Value, nresults int) []Value {
	slot := a.th.top
	a.th.growStack(a.vm, len(args)+2)
	a.th.stack[slot] = callee
	a.th.stack[slot+1] = self
	for i, v := range args {
		a.th.stack[slot+2+i] = v
	}
	a.th.top = slot + 2 + len(args)
	floor := a.th.frames
	a.vm.call(a.th, a.c, slot, len(args), nresults)
	a.vm.runLoop(a.th, a.c, floor)
	n := nresults
	if n == VARRET {
		n = a.th.top - slot
	}
	out := append([]Value(nil), a.th.stack[slot:slot+n]...)
	a.th.top = slot
	return out
}
