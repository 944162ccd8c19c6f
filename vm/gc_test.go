package vm

import "testing"

// TestWriteBarrierPromotesWhiteChild exercises the tri-color invariant
// directly: once a container has been blackened mid-cycle, storing a white
// child into it must immediately promote that child off the current white
// set so the incremental sweep can never reclaim a live reference.
func TestWriteBarrierPromotesWhiteChild(t *testing.T) {
	m := New()
	defer m.Close()

	parent := m.NewTable(0)
	parentHdr := m.heapObject(parent)
	parentHdr.mark = markBlack // simulate "already traversed this cycle"

	child := m.NewTable(0)
	childHdr := m.heapObject(child)
	assert(t, childHdr.mark == m.gc.currentWhite, "freshly allocated child should start on the current white")

	m.TableSet(parent, m.Symbol([]byte("k")), child)
	assert(t, childHdr.mark != m.gc.currentWhite, "write barrier must promote a white child stored into a black parent")
}

// TestSweepReclaimsOnlyUnreachable runs a full cycle over a mixed graph and
// checks that exactly the unreachable half is freed.
func TestSweepReclaimsOnlyUnreachable(t *testing.T) {
	m := New()
	defer m.Close()

	rootTbl := m.NewTable(0)
	m.TableSet(m.main.globals, m.Symbol([]byte("root")), rootTbl)

	kept := m.NewTable(0)
	m.TableSet(rootTbl, m.Symbol([]byte("kept")), kept)
	keptHdr := m.heapObject(kept)

	garbage := m.NewTable(0)
	garbageHdr := m.heapObject(garbage)

	m.collectFull()

	assert(t, m.arena.get(keptHdr.handle) == keptHdr, "reachable table must survive collection")
	assert(t, m.arena.get(garbageHdr.handle) != garbageHdr, "unreachable table must be swept")
}

// TestFinalizerRunsOnceOnCollection covers §4.10's finalizer queue: a
// finalizer must run exactly once, when its object is actually swept, not
// before and not twice.
func TestFinalizerRunsOnceOnCollection(t *testing.T) {
	m := New()
	defer m.Close()

	v := m.NewTable(0)
	calls := 0
	m.SetFinalizer(v, func(vm *VM, val Value) { calls++ })

	m.collectFull() // v is unreachable immediately; first cycle should finalize it
	assert(t, calls == 1, "finalizer should run exactly once, ran %d times", calls)

	m.collectFull()
	assert(t, calls == 1, "finalizer must not re-run on a later cycle")
}

// TestGenerationalWriteBarrierProtectsChildOfOldParent is the cross-cycle
// companion to TestWriteBarrierPromotesWhiteChild: in generational mode, an
// Old survivor must stay tagged black (not just old) so the write barrier
// still recognizes it as a valid promotion source after the cycle that aged
// it has long finished. Without that, a value stored into an old table
// between cycles is never promoted off the current white set, and the next
// minor collection frees it while the table still references it.
func TestGenerationalWriteBarrierProtectsChildOfOldParent(t *testing.T) {
	m := New(WithGenerationalGC(true), WithGCMajorInc(100))
	defer m.Close()

	sym := m.Symbol([]byte("root"))
	tbl := m.NewTable(0)
	m.TableSet(m.main.globals, sym, tbl)
	tblHdr := m.heapObject(tbl)

	m.collectFull() // tbl survives as reachable; generational sweep tags it old
	assert(t, tblHdr.mark&markOld != 0, "surviving table must be tagged old")
	assert(t, tblHdr.mark.isBlack(), "an old survivor must still read as black for the write barrier to fire")

	child := m.NewTable(0)
	childHdr := m.heapObject(child)
	assert(t, childHdr.mark == m.gc.currentWhite, "freshly allocated child should start on the current white")

	m.TableSet(tbl, m.Symbol([]byte("k")), child)
	assert(t, childHdr.mark != m.gc.currentWhite, "write barrier must promote a white child stored into an old table")

	m.collectFull() // a later minor-style cycle must not reclaim the promoted child
	assert(t, m.arena.get(childHdr.handle) == childHdr, "child stored into an old table must survive the next cycle")
}

// TestGenerationalMajorCycleReclaimsOldGarbage exercises the generational
// mode's periodic full re-mark: an object that survives one cycle as
// reachable (and is thus tagged "old" instead of swept-and-reallocated
// white) must still be reclaimed once it becomes unreachable and a later
// major cycle comes around, not permanently pinned by having been marked
// old.
func TestGenerationalMajorCycleReclaimsOldGarbage(t *testing.T) {
	m := New(WithGenerationalGC(true), WithGCMajorInc(2))
	defer m.Close()

	sym := m.Symbol([]byte("victim"))
	victim := m.NewTable(0)
	m.TableSet(m.main.globals, sym, victim)
	victimHdr := m.heapObject(victim)

	m.collectFull() // victim survives as reachable, tagged "old"
	assert(t, m.arena.get(victimHdr.handle) == victimHdr, "reachable object must survive its first cycle")

	m.TableSet(m.main.globals, sym, Null) // now unreachable, but still marked "old"

	reclaimed := false
	for i := 0; i < 8 && !reclaimed; i++ {
		m.collectFull()
		if m.arena.get(victimHdr.handle) != victimHdr {
			reclaimed = true
		}
	}
	assert(t, reclaimed, "generational mode must eventually reclaim an old object once it goes unreachable")
}
