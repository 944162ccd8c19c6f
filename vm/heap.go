package vm

import (
	"github.com/pkg/errors"
)

type arenaHandle = uint64

// maxArenaObjects bounds how large the handle table may grow before
// allocation is treated as a fatal out-of-memory condition, mirroring the
// teacher's own "vectors grow by doubling up to an implementation-defined
// maximum" allocator policy (vm.go's stack/program growth).
const maxArenaObjects = 1 << 28

// arena maps handles to live heap objects. Freed slots are recycled off a
// freelist so handles stay dense and the universal object chain (object.next)
// remains the single source of truth for "is this object still live".
type arena struct {
	slots    []*object
	freelist []arenaHandle
}

func (a *arena) reserve(o *object) arenaHandle {
	if n := len(a.freelist); n > 0 {
		h := a.freelist[n-1]
		a.freelist = a.freelist[:n-1]
		a.slots[h] = o
		return h
	}
	h := arenaHandle(len(a.slots))
	a.slots = append(a.slots, o)
	return h
}

func (a *arena) release(h arenaHandle) {
	a.slots[h] = nil
	a.freelist = append(a.freelist, h)
}

func (a *arena) get(h arenaHandle) *object {
	if int(h) >= len(a.slots) {
		return nil
	}
	return a.slots[h]
}

// allocate links a freshly initialized object onto the universal chain and
// the arena, after running the allocator's two pre-allocation hooks: an
// incremental GC step if debt is positive, then an emergency full collection
// if the arena has grown past its budget.
func (vm *VM) allocate(kind Kind, size uint32) *object {
	if vm.gc.debt > 0 {
		vm.gcStep()
	}
	if len(vm.arena.slots) >= maxArenaObjects {
		vm.collectFull()
		if len(vm.arena.slots) >= maxArenaObjects {
			vm.fatal(errors.Wrapf(ErrOutOfMemory, "arena exhausted at %d objects", len(vm.arena.slots)))
		}
	}

	o := &object{kind: kind, mark: vm.gc.currentWhite, size: size, typ: Null}
	o.next = vm.gc.objects
	vm.gc.objects = o
	o.handle = vm.arena.reserve(o)

	vm.gc.totalBytes += uint64(size)
	vm.gc.debt += int64(size)

	return o
}

func handleOf(o *object) Value {
	return valueFromHandle(o.handle)
}

func (vm *VM) objectAt(v Value) *object {
	if !v.IsPointer() {
		return nil
	}
	return vm.arena.get(v.handle())
}

// heapObject resolves any value that denotes a heap object -- an ordinary
// pointer or a symbol -- to its header. Integers, floats, and the three
// singletons have none and resolve to nil.
func (vm *VM) heapObject(v Value) *object {
	switch {
	case v.IsPointer():
		return vm.arena.get(v.handle())
	case v.IsSymbol():
		return vm.arena.get(v.symbolHandle())
	default:
		return nil
	}
}
