package vm

// gcPhase is the collector's single shared state, advanced one step at a
// time by gcStep. SPEC_FULL.md §4.10 State machine:
//
//	Begin -> Mark -> Pause -> Atomic -> SweepSymbols -> Sweep -> Begin ...
type gcPhase int

const (
	gcBegin gcPhase = iota
	gcMark
	gcPause
	gcAtomic
	gcSweepSymbols
	gcSweep
)

// gcState holds everything the collector needs across steps. It lives
// embedded in the VM root so there is exactly one collector per VM
// (SPEC_FULL.md §5 resource policy: shared across all threads of one VM).
type gcState struct {
	phase gcPhase

	objects *object // universal object chain (object.next)

	gray     *object // objects reached, children not yet scanned
	grayAgain *object // threads re-queued instead of being blackened

	currentWhite mark // flips each cycle
	otherWhite   mark

	totalBytes uint64
	debt       int64
	nextThreshold uint64

	// sweep cursor: the object currently being walked during gcSweep, plus
	// its predecessor's next-pointer slot so freed nodes can be unlinked.
	sweepPrev **object
	sweepDone bool

	symSweepIdx int

	finalizeQueue []*object

	cyclesSinceMajor int
}

func newGCState() gcState {
	return gcState{
		phase:        gcPause,
		currentWhite: markWhite0,
		otherWhite:   markWhite1,
		nextThreshold: 1 << 16,
		debt:          -(1 << 16),
	}
}

// stepWorkUnits is how many gray objects / sweep slots one incremental step
// processes, scaled by the configured GCStepScale.
func (vm *VM) stepWorkUnits() int {
	n := int(float64(vm.config.GCStepScale) * 64)
	if n < 1 {
		n = 1
	}
	return n
}

// gcStep advances the collector by up to stepWorkUnits units of work. It is
// called from allocate whenever debt is positive; debt is recomputed only
// when a cycle finishes (gcFinishCycle).
func (vm *VM) gcStep() {
	work := vm.stepWorkUnits()
	for i := 0; i < work && vm.gc.debt > 0; i++ {
		switch vm.gc.phase {
		case gcPause:
			vm.gcBeginCycle()
		case gcBegin:
			vm.gcBeginCycle()
		case gcMark:
			if !vm.gcMarkStep() {
				vm.gc.phase = gcAtomic
			}
		case gcAtomic:
			vm.gcAtomicStep()
			vm.gc.phase = gcSweepSymbols
		case gcSweepSymbols:
			if !vm.gcSweepSymbolsStep() {
				vm.gc.phase = gcSweep
				vm.gcSweepInit()
			}
		case gcSweep:
			if !vm.gcSweepStep() {
				vm.gcFinishCycle()
			}
		}
	}
}

// CollectGarbage drives the collector to completion synchronously. It is
// the §6.1 embedding-facing "collect now" operation -- the same thing the
// allocator's emergency hook calls.
func (vm *VM) CollectGarbage() {
	vm.collectFull()
}

// collectFull drives the state machine to completion synchronously; used
// for the allocator's emergency hook and for embeddings that want a
// deterministic "collect now" (e.g. test scenario 6 in SPEC_FULL.md §8).
func (vm *VM) collectFull() {
	if vm.gc.phase == gcPause {
		vm.gcBeginCycle()
	}
	for vm.gc.phase != gcPause {
		switch vm.gc.phase {
		case gcBegin:
			vm.gcBeginCycle()
		case gcMark:
			for vm.gcMarkStep() {
			}
			vm.gc.phase = gcAtomic
		case gcAtomic:
			vm.gcAtomicStep()
			vm.gc.phase = gcSweepSymbols
		case gcSweepSymbols:
			for vm.gcSweepSymbolsStep() {
			}
			vm.gc.phase = gcSweep
			vm.gcSweepInit()
		case gcSweep:
			for vm.gcSweepStep() {
			}
			vm.gcFinishCycle()
		}
	}
}

func (vm *VM) gcBeginCycle() {
	// gc.gray is not reset here: a generational Old+Black parent mutated
	// during gcPause gets its new child write-barriered onto this list
	// (markChk/markGray) with no active cycle to drain it. Dropping those
	// entries on the next gcBeginCycle would un-protect exactly the
	// children the barrier just promoted, since their Old parent is never
	// re-traversed from root this cycle. Under non-generational GC (or a
	// generational cycle with no pending barrier work) this list is
	// already empty by the time a cycle ends, so leaving it alone is a
	// no-op there.
	vm.gc.grayAgain = nil
	vm.log.Debugw("gc begin", "totalBytes", vm.gc.totalBytes)

	vm.markGray(handleOf(vm.root))
	vm.gc.phase = gcMark
}

// markGray pushes a white, markable value onto the appropriate gray list,
// or blackens it immediately if it's a symbol (keeping its fixed bit).
// Strings and every other kind go gray so traverse still marks their type.
func (vm *VM) markGray(v Value) {
	o := vm.heapObject(v)
	if o == nil {
		return
	}
	if !o.mark.isWhite() {
		return
	}
	switch o.kind {
	case KindSymbol:
		o.mark = markBlack | o.mark&markFixed
		return
	}
	o.mark = markGray
	if o.kind == KindThread {
		o.grayNext = vm.gc.grayAgain
		vm.gc.grayAgain = o
		return
	}
	o.grayNext = vm.gc.gray
	vm.gc.gray = o
}

// markChk is the write barrier: called on every store of one heap value into
// another non-thread heap value. If parent is black and val is the current
// white and not dead, val is promoted (blackened immediately if it has no
// further references, grayed otherwise).
func (vm *VM) markChk(parent *object, val Value) {
	if parent == nil || !parent.mark.isBlack() {
		return
	}
	o := vm.heapObject(val)
	if o == nil || o.mark != vm.gc.currentWhite {
		return
	}
	vm.markGray(val)
}

// gcMarkStep pops one gray object, blackens it, and traverses its
// references. Returns false once the gray list is empty; threads waiting on
// grayAgain are left for gcAtomicStep.
func (vm *VM) gcMarkStep() bool {
	o := vm.gc.gray
	if o == nil {
		return false
	}
	vm.gc.gray = o.grayNext
	o.mark = markBlack
	vm.traverse(o)
	return true
}

// traverse discovers an object's outgoing value references and grays any
// that are still white. Dispatch is by kind, matching the marker's "never
// rely on inheritance" design note.
func (vm *VM) traverse(o *object) {
	vm.markGray(o.typ)
	switch o.kind {
	case KindArray:
		a := vm.arrayObjects[o]
		for _, v := range a.elems {
			vm.markGray(v)
		}
	case KindTable:
		t := vm.tableObjects[o]
		for _, n := range t.nodes {
			if n.key.IsNull() {
				continue
			}
			vm.markGray(n.key)
			vm.markGray(n.val)
		}
		vm.markGray(t.inherit)
	case KindMethod:
		m := vm.methodObjects[o]
		if m.isClosure {
			for _, v := range m.upvalues {
				vm.markGray(v)
			}
			vm.markGray(m.getter)
			vm.markGray(m.setter)
		} else if !m.native {
			for _, v := range m.literals {
				vm.markGray(v)
			}
		}
	case KindThread:
		th := vm.threadObjects[o]
		vm.markGray(th.globals)
		for i := 0; i < th.top; i++ {
			vm.markGray(th.stack[i])
		}
		for f := th.frames; f != nil; f = f.prev {
			vm.markGray(f.callee)
		}
	case KindVM:
		// The VM root keeps the universal fallback type and every thread it
		// owns reachable; the symbol intern table is not traversed here --
		// symbols are reachable (or fixed) independently, and sweeping relies
		// on being able to collect a genuinely unreferenced one.
		vm.markGray(vm.allType)
		for _, th := range vm.threadObjects {
			vm.markGray(handleOf(th.header))
		}
	}
}

// gcAtomicStep is the stop-the-world step for correctness: it re-marks
// everything remaining gray (including threads re-queued in grayAgain),
// flips current/other white, and (in non-generational mode) clears the
// write barrier's relevance by simply letting the next cycle's allocate
// calls tag new objects with the new current white.
func (vm *VM) gcAtomicStep() {
	for vm.gcMarkStep() {
	}
	// Re-mark threads: their stacks mutate without barrier coverage, so they
	// must be re-traversed here rather than trusted to still be consistent.
	again := vm.gc.grayAgain
	vm.gc.grayAgain = nil
	for o := again; o != nil; {
		next := o.grayNext
		o.mark = markGray
		o.grayNext = vm.gc.gray
		vm.gc.gray = o
		o = next
	}
	for vm.gcMarkStep() {
	}

	vm.gc.currentWhite, vm.gc.otherWhite = vm.gc.otherWhite, vm.gc.currentWhite
	vm.log.Debugw("gc atomic", "totalBytes", vm.gc.totalBytes)
}

func (vm *VM) gcSweepSymbolsStep() bool {
	it := vm.symbols
	if vm.gc.symSweepIdx >= len(it.entries) {
		vm.gc.symSweepIdx = 0
		return false
	}
	e := it.entries[vm.gc.symSweepIdx]
	if e != nil && e.header.mark == vm.gc.otherWhite && e.header.mark&markFixed == 0 {
		it.entries[vm.gc.symSweepIdx] = nil
		it.count--
		vm.unlinkObject(e.header)
		vm.freeObject(e.header)
	}
	vm.gc.symSweepIdx++
	return true
}

func (vm *VM) gcSweepInit() {
	vm.gc.sweepPrev = &vm.gc.objects
	vm.gc.sweepDone = false
}

// gcSweepStep frees dead objects and resets survivors' mark to the current
// white (or adds the "old" bit on top of black, in generational mode).
// Returns false once the chain has been fully walked.
func (vm *VM) gcSweepStep() bool {
	o := *vm.gc.sweepPrev
	if o == nil {
		return false
	}

	if o.mark.isWhite() && o.mark == vm.gc.otherWhite && o.mark&markFixed == 0 {
		*vm.gc.sweepPrev = o.next
		vm.finalizeOrFree(o)
		return true
	}

	if vm.config.Generational {
		// Old survivors stay Black, not just Old: markGray's isWhite check
		// means they will never be re-traversed from roots next cycle, so
		// the write barrier (markChk) is the only thing that keeps their
		// future children reachable -- it only promotes through parents it
		// sees as black.
		o.mark |= markOld
	} else {
		o.mark = vm.gc.currentWhite | o.mark&markFixed
	}
	vm.gc.sweepPrev = &o.next
	return true
}

// SetFinalizer registers fn to run once, just before v's heap object is
// swept, per §4.10 Finalizers. Emergency (non-incremental) collections still
// run it synchronously; there is no deferred finalizer queue to re-enter
// user code from a different call stack.
func (vm *VM) SetFinalizer(v Value, fn func(*VM, Value)) {
	o := vm.heapObject(v)
	if o == nil {
		return
	}
	vm.finalizers[o] = fn
}

func (vm *VM) unlinkObject(o *object) {
	prev := &vm.gc.objects
	for cur := *prev; cur != nil; cur = *prev {
		if cur == o {
			*prev = cur.next
			return
		}
		prev = &cur.next
	}
}

// finalizeOrFree runs a finalizer-bearing object's finalizer (at most once)
// and then frees it; an object without one is freed directly. Every
// collection, emergency ones (driven from allocate) included, runs
// finalizers synchronously here.
func (vm *VM) finalizeOrFree(o *object) {
	if fin, ok := vm.finalizers[o]; ok && o.mark&markFinalized == 0 {
		o.mark |= markFinalized
		fin(vm, handleOf(o))
		delete(vm.finalizers, o)
	}
	vm.freeObject(o)
}

func (vm *VM) freeObject(o *object) {
	vm.gc.totalBytes -= uint64(o.size)
	vm.arena.release(o.handle)
	switch o.kind {
	case KindArray:
		delete(vm.arrayObjects, o)
	case KindTable:
		delete(vm.tableObjects, o)
	case KindMethod:
		delete(vm.methodObjects, o)
	case KindThread:
		delete(vm.threadObjects, o)
	case KindSymbol:
		delete(vm.symbolObjects, o)
	case KindString:
		delete(vm.stringObjects, o)
	}
}

// gcFinishCycle computes the next cycle's debt threshold from the traced
// live size and returns the collector to Pause.
func (vm *VM) gcFinishCycle() {
	estimate := vm.gc.totalBytes
	vm.gc.nextThreshold = vm.gc.totalBytes + uint64(float64(estimate)*vm.config.GCPauseScale)
	vm.gc.debt = int64(vm.gc.totalBytes) - int64(vm.gc.nextThreshold)
	vm.gc.phase = gcPause

	if vm.config.Generational {
		vm.gc.cyclesSinceMajor++
		if vm.gc.cyclesSinceMajor >= vm.config.GCMajorInc {
			vm.gc.cyclesSinceMajor = 0
			// A major cycle resets every survivor back to white so a full
			// trace can reclaim dead "old" objects the minor sweeps skip.
			for o := vm.gc.objects; o != nil; o = o.next {
				if o.mark&markFixed == 0 {
					o.mark = vm.gc.currentWhite
				}
			}
		}
	}
	vm.log.Debugw("gc cycle complete", "totalBytes", vm.gc.totalBytes, "nextThreshold", vm.gc.nextThreshold)
}
