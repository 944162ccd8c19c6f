package vm

import (
	"github.com/PuerkitoBio/gocoro"
	"github.com/samber/lo"
)

// NewType constructs a type table: a table with isType set, usable as the
// `type` field of other values and as a lookup target in its own right
// (§4.7).
func (vm *VM) NewType(capacity int) Value {
	v := vm.NewTable(capacity)
	t := vm.table(v)
	t.isType = true
	return v
}

// NewPrototype constructs a prototype: a type whose inherit-type chain
// starts pointing at parent (Null for a root prototype). A prototype's
// `type` field is kept equal to its own inherit-type per §4.7.
func (vm *VM) NewPrototype(parent Value, capacity int) Value {
	v := vm.NewTable(capacity)
	t := vm.table(v)
	t.isType = true
	t.isPrototype = true
	t.inherit = parent
	t.header.typ = parent
	vm.markChk(t.header, parent)
	return v
}

// SetTypeOf assigns v's runtime type. Per §3.2's invariant, typ must
// reference a table whose isType flag is set; callers violating this are a
// programming error in the embedding, not a recoverable soft failure.
func (vm *VM) SetTypeOf(v Value, typ Value) {
	o := vm.heapObject(v)
	if o == nil {
		return
	}
	o.typ = typ
	vm.markChk(o, typ)
}

func (vm *VM) TypeOf(v Value) Value {
	o := vm.heapObject(v)
	if o == nil {
		return Null
	}
	return o.typ
}

// GetProperty implements the three-step method-lookup algorithm of §4.7,
// falling back to the universal `All` type. It returns Null on a total miss
// rather than signalling an error, per §7's "lookup-miss is soft".
func (vm *VM) GetProperty(v Value, sym Value) Value {
	if t := vm.table(v); t != nil && t.isType {
		if r := vm.lookupInType(v, sym); !r.IsNull() {
			return r
		}
	}

	typ := vm.TypeOf(v)
	if r := vm.lookupChain(typ, sym); !r.IsNull() {
		return r
	}

	if !vm.allType.IsNull() && !SameAs(vm.allType, typ) {
		if r := vm.lookupInType(vm.allType, sym); !r.IsNull() {
			return r
		}
	}
	return Null
}

// lookupChain walks a type-or-array-of-types node, then its inherit-type
// chain, per §4.7 step 2.
func (vm *VM) lookupChain(node Value, sym Value) Value {
	for !node.IsNull() {
		switch {
		case vm.IsArray(node):
			n := vm.ArrayLen(node)
			for i := 0; i < n; i++ {
				if r := vm.lookupInType(vm.ArrayGet(node, i), sym); !r.IsNull() {
					return r
				}
			}
			return Null
		case vm.table(node) != nil && vm.table(node).isType:
			if r := vm.lookupInType(node, sym); !r.IsNull() {
				return r
			}
			node = vm.table(node).inherit
		default:
			return Null
		}
	}
	return Null
}

func (vm *VM) lookupInType(typ Value, sym Value) Value {
	return vm.TableGet(typ, sym)
}

// AddMixin links mixin onto typ's inherit-type chain per §4.7's promotion
// rule, then invokes the mixin's New method (if any) with typ as the
// argument so it may initialize or mutate the joining type.
func (vm *VM) AddMixin(th *threadObj, c gocoro.Caller, typ Value, mixin Value) {
	t := vm.table(typ)
	if t == nil || !t.isType {
		return
	}

	switch {
	case t.inherit.IsNull():
		t.inherit = mixin
	case vm.IsArray(t.inherit):
		grown := vm.NewArray(vm.ArrayLen(t.inherit) + 1)
		vm.ArrayAppend(grown, mixin)
		for i := 0; i < vm.ArrayLen(t.inherit); i++ {
			vm.ArrayAppend(grown, vm.ArrayGet(t.inherit, i))
		}
		t.inherit = grown
	default:
		pair := vm.NewArray(2)
		vm.ArrayAppend(pair, mixin)
		vm.ArrayAppend(pair, t.inherit)
		t.inherit = pair
	}
	vm.markChk(t.header, t.inherit)

	if t.isPrototype {
		t.header.typ = t.inherit
	}

	newMethod := vm.TableGet(mixin, vm.StdSymbol(StdNew))
	if vm.IsMethod(newMethod) {
		vm.callDetached(th, c, newMethod, typ, []Value{typ})
	}
}

// callDetached runs a method to completion against th's stack without
// disturbing frames already in flight, used for the mixin-linking New()
// hook (§4.7) which must complete synchronously before AddMixin returns.
func (vm *VM) callDetached(th *threadObj, c gocoro.Caller, methodVal, selfVal Value, args []Value) {
	base := th.top
	th.growStack(vm, len(args)+2)
	th.stack[base] = methodVal
	th.stack[base+1] = selfVal
	for i, a := range args {
		th.stack[base+2+i] = a
	}
	th.top = base + 2 + len(args)
	floor := th.frames
	vm.call(th, c, base, len(args), 0)
	vm.runLoop(th, c, floor)
	th.top = base
}

// MixinChain flattens typ's inherit-type chain into a diagnostic list,
// deduplicated so a diamond of repeated mixins (the same mixin added onto
// two sibling types that both get pulled into a third) is reported once.
// Not on the dispatch hot path -- lookupChain walks the live tree directly.
func (vm *VM) MixinChain(typ Value) []Value {
	var chain []Value
	node := typ
	for !node.IsNull() {
		t := vm.table(node)
		if t == nil || !t.isType {
			break
		}
		chain = append(chain, node)
		switch {
		case vm.IsArray(t.inherit):
			for i := 0; i < vm.ArrayLen(t.inherit); i++ {
				chain = append(chain, vm.ArrayGet(t.inherit, i))
			}
			node = Null
		default:
			node = t.inherit
		}
	}
	return lo.Uniq(chain)
}
