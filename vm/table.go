package vm

// tableNode is one slot of a table's open-addressed node array. next is the
// collision-chain link to another node within the same array, -1 when
// absent. A node with key == Null is the "no index yet" empty singleton
// (SPEC_FULL.md §4.5).
type tableNode struct {
	key, val Value
	next     int
}

const noNext = -1

// tableObj backs a KindTable heap object: Brent-variation open addressing
// over a power-of-two node array, plus the prototype-dispatch fields (isType,
// isPrototype, inherit) described in §4.7.
type tableObj struct {
	header *object
	nodes  []tableNode
	count  int
	// lastfree descends from the end of nodes as free slots are claimed by
	// Brent's eviction rule.
	lastfree int

	isType      bool
	isPrototype bool
	inherit     Value // Null, a type table, or an array of type tables
}

func newTableNodes(capacity int) []tableNode {
	capacity = nextPow2(capacity)
	if capacity < 1 {
		capacity = 1
	}
	nodes := make([]tableNode, capacity)
	for i := range nodes {
		nodes[i].next = noNext
	}
	return nodes
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (vm *VM) NewTable(capacity int) Value {
	hdr := vm.allocate(KindTable, 0)
	t := &tableObj{header: hdr, nodes: newTableNodes(capacity), inherit: Null}
	t.lastfree = len(t.nodes)
	vm.tableObjects[hdr] = t
	hdr.size = uint32(len(t.nodes)) * 24
	return handleOf(hdr)
}

func (vm *VM) table(v Value) *tableObj {
	o := vm.objectAt(v)
	if o == nil || o.kind != KindTable {
		return nil
	}
	return vm.tableObjects[o]
}

func (vm *VM) IsTable(v Value) bool {
	o := vm.objectAt(v)
	return o != nil && o.kind == KindTable
}

// hashKey mixes a key's bit pattern down to a node-array index, per
// SPEC_FULL.md §4.5: symbols use their precomputed hash mod capacity;
// integers/booleans use their tag-shifted bit pattern; floats and object
// pointers mod (capacity-1 | 1) to mix poor low bits.
func (vm *VM) hashKey(t *tableObj, k Value) int {
	n := len(t.nodes)
	switch {
	case k.IsSymbol():
		sym := vm.symbolObjects[vm.arena.get(k.symbolHandle())]
		return int(sym.hash) & (n - 1)
	case k.IsInt():
		return int(uint64(k.AsInt())) & (n - 1)
	case k == True || k == False:
		return int(uint64(k)>>2) & (n - 1)
	default:
		mixer := (n - 1) | 1
		return int(uint64(k)) % mixer & (n - 1)
	}
}

func (t *tableObj) mainSlot(vm *VM, k Value) int { return vm.hashKey(t, k) }

// findFreeSlot walks t.lastfree down looking for an empty node, matching
// the reference's descending-pointer free-slot search.
func (t *tableObj) findFreeSlot() (int, bool) {
	for t.lastfree > 0 {
		t.lastfree--
		if t.nodes[t.lastfree].key.IsNull() {
			return t.lastfree, true
		}
	}
	return 0, false
}

// TableGet returns the value for k, or Null if absent. Per §4.5, null is
// never a valid key, so a Null k always misses.
func (vm *VM) TableGet(v Value, k Value) Value {
	if k.IsNull() {
		return Null
	}
	t := vm.table(v)
	if t == nil {
		return Null
	}
	idx := t.mainSlot(vm, k)
	for idx != noNext {
		n := &t.nodes[idx]
		if !n.key.IsNull() && SameAs(n.key, k) {
			return n.val
		}
		idx = n.next
	}
	return Null
}

func (vm *VM) TableHas(v Value, k Value) bool {
	if k.IsNull() {
		return false
	}
	t := vm.table(v)
	if t == nil {
		return false
	}
	idx := t.mainSlot(vm, k)
	for idx != noNext {
		n := &t.nodes[idx]
		if !n.key.IsNull() && SameAs(n.key, k) {
			return true
		}
		idx = n.next
	}
	return false
}

// TableSet implements Brent's variation (§4.5). Storing Null is a delete.
func (vm *VM) TableSet(v Value, k Value, val Value) {
	if k.IsNull() {
		return
	}
	t := vm.table(v)
	if t == nil {
		return
	}
	if val.IsNull() {
		vm.tableDelete(t, k)
		return
	}
	vm.tableInsert(t, k, val)
}

func (vm *VM) tableInsert(t *tableObj, k, val Value) {
	main := t.mainSlot(vm, k)

	// Key already present: overwrite in place.
	for idx := main; idx != noNext; {
		n := &t.nodes[idx]
		if !n.key.IsNull() && SameAs(n.key, k) {
			n.val = val
			vm.markChk(t.header, k)
			vm.markChk(t.header, val)
			return
		}
		idx = n.next
	}

	mainNode := &t.nodes[main]
	if mainNode.key.IsNull() {
		mainNode.key, mainNode.val, mainNode.next = k, val, noNext
		t.count++
		vm.markChk(t.header, k)
		vm.markChk(t.header, val)
		return
	}

	occupantMain := t.mainSlot(vm, mainNode.key)
	free, ok := t.findFreeSlot()
	if !ok {
		vm.tableGrow(t)
		vm.tableInsert(t, k, val)
		return
	}

	if occupantMain != main {
		// The occupant is a displaced collider: evict it into the free
		// slot and fix up whichever chain pointed at it.
		prevIdx := occupantMain
		for t.nodes[prevIdx].next != main {
			prevIdx = t.nodes[prevIdx].next
		}
		t.nodes[free] = t.nodes[main]
		t.nodes[prevIdx].next = free

		t.nodes[main] = tableNode{key: k, val: val, next: noNext}
		t.count++
	} else {
		// The occupant is at its own main slot: chain the new node off it.
		t.nodes[free] = tableNode{key: k, val: val, next: mainNode.next}
		mainNode.next = free
		t.count++
	}
	vm.markChk(t.header, k)
	vm.markChk(t.header, val)
}

func (vm *VM) tableGrow(t *tableObj) {
	old := t.nodes
	t.nodes = newTableNodes(len(old) * 2)
	if len(old) == 0 {
		t.nodes = newTableNodes(1)
	}
	t.lastfree = len(t.nodes)
	t.count = 0
	for _, n := range old {
		if n.key.IsNull() {
			continue
		}
		vm.tableInsert(t, n.key, n.val)
	}
}

// tableDelete locates k's node; if it's mid-chain it remembers the tail,
// zeroes the node, raises lastfree above it, then re-inserts the tail nodes
// so they can migrate back to their own main positions (§4.5 Deletion).
func (vm *VM) tableDelete(t *tableObj, k Value) {
	main := t.mainSlot(vm, k)
	var prevIdx = -1
	idx := main
	for idx != noNext {
		n := &t.nodes[idx]
		if !n.key.IsNull() && SameAs(n.key, k) {
			break
		}
		prevIdx = idx
		idx = n.next
	}
	if idx == noNext {
		return
	}

	tailStart := t.nodes[idx].next
	if prevIdx != -1 {
		t.nodes[prevIdx].next = noNext
	}

	t.nodes[idx] = tableNode{key: Null, val: Null, next: noNext}
	t.count--
	if idx >= t.lastfree {
		t.lastfree = idx + 1
	}

	// Collect and clear the tail chain before re-inserting, since reinsert
	// may claim any free slot including ones currently in that chain.
	var tail []tableNode
	for i := tailStart; i != noNext; {
		n := t.nodes[i]
		tail = append(tail, n)
		next := n.next
		t.nodes[i] = tableNode{key: Null, val: Null, next: noNext}
		t.count--
		if i >= t.lastfree {
			t.lastfree = i + 1
		}
		i = next
	}
	for _, n := range tail {
		vm.tableInsert(t, n.key, n.val)
	}
}

// TableNext implements table iteration: starting at key (Null means "start
// at position zero"), walk forward to the first node with a non-null key.
// Iteration is only accurate if the table isn't mutated mid-walk.
func (vm *VM) TableNext(v Value, key Value) (nextKey Value, ok bool) {
	t := vm.table(v)
	if t == nil {
		return Null, false
	}
	start := 0
	if !key.IsNull() {
		main := t.mainSlot(vm, key)
		idx := main
		found := false
		for idx != noNext {
			if SameAs(t.nodes[idx].key, key) {
				start = idx + 1
				found = true
				break
			}
			idx = t.nodes[idx].next
		}
		if !found {
			// key not found; nothing to continue from.
			return Null, false
		}
	}
	for i := start; i < len(t.nodes); i++ {
		if !t.nodes[i].key.IsNull() {
			return t.nodes[i].key, true
		}
	}
	return Null, false
}

func (vm *VM) TableLen(v Value) int {
	t := vm.table(v)
	if t == nil {
		return 0
	}
	return t.count
}
