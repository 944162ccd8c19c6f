package vm

import "github.com/pkg/errors"

// frame records one call's addressable window into its owning thread's
// stack, per §3.4. Pointers in the spec's C++ sense become stack indices
// here: the stack slice may be reallocated (grown) between observations, and
// rebasing an index is just re-reading it against the new slice, unlike a
// raw pointer which would dangle.
type frame struct {
	prev, next *frame

	callee Value // the method running here (a symbol callee is stored resolved)
	begin  int   // index of the frame's first local
	end    int   // one past the last addressable local
	retTo  int   // index the caller wants results written to
	ip     int   // bytecode-only; unused for native frames

	nresults int // VARRET below means "keep whatever Call left on the stack"
	tailCall bool
	reentrant bool

	// nvarargs is how many trailing arguments a var-args callee actually
	// received, used by LoadVararg's FullTop case. th.top can't serve this
	// purpose: frame entry bumps it to the full register window regardless
	// of how many varargs were supplied, so stale data above the real
	// vararg tail would otherwise be picked up as if it were more varargs.
	nvarargs int
}

// VARRET marks "all available results", the call convention's escape hatch
// for nresults (§6.1) and for Call/Return's C/B == 0xFF encoding (§4.9).
const VARRET = -1

// growStack doubles the thread's stack until it can address at least
// needed slots above top, matching the allocator's "vectors grow by
// doubling up to an implementation-defined maximum" policy (§4.2) applied to
// the per-thread stack instead of a heap vector.
func (th *threadObj) growStack(vm *VM, needed int) {
	want := th.top + needed
	if want <= len(th.stack) {
		return
	}
	newCap := len(th.stack)
	if newCap == 0 {
		newCap = 8
	}
	for newCap < want {
		newCap *= 2
	}
	if newCap > vm.config.MaxStack {
		if want > vm.config.MaxStack {
			vm.fatal(errors.Wrapf(ErrOutOfStack, "need %d slots, max is %d", want, vm.config.MaxStack))
		}
		newCap = vm.config.MaxStack
	}
	grown := make([]Value, newCap)
	copy(grown, th.stack[:th.top])
	for i := th.top; i < newCap; i++ {
		grown[i] = Null
	}
	th.stack = grown
}

func (th *threadObj) pushFrame(f *frame) {
	f.prev = th.frames
	if th.frames != nil {
		th.frames.next = f
	}
	th.frames = f
}

func (th *threadObj) popFrame() {
	f := th.frames
	if f == nil {
		return
	}
	th.frames = f.prev
	if th.frames != nil {
		th.frames.next = nil
	}
}
