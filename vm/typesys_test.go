package vm

import "testing"

func TestGetPropertyThreeStepLookup(t *testing.T) {
	m := New()
	defer m.Close()

	base := m.NewPrototype(Null, 0)
	derived := m.NewPrototype(base, 0)
	instance := m.NewTable(0)
	m.SetTypeOf(instance, derived)

	symOwn := m.Symbol([]byte("own"))
	symInherited := m.Symbol([]byte("inherited"))
	symAll := m.Symbol([]byte("universal"))

	m.TableSet(derived, symOwn, Int(1))
	m.TableSet(base, symInherited, Int(2))
	m.TableSet(m.allType, symAll, Int(3))

	assert(t, m.GetProperty(instance, symOwn) == Int(1), "step 1 (own type) failed")
	assert(t, m.GetProperty(instance, symInherited) == Int(2), "step 2 (inherit chain) failed")
	assert(t, m.GetProperty(instance, symAll) == Int(3), "step 3 (universal fallback) failed")
	assert(t, m.GetProperty(instance, m.Symbol([]byte("missing"))).IsNull(), "total miss must read Null, not fault")
}

func TestGetPropertyOwnTypeShadowsAll(t *testing.T) {
	m := New()
	defer m.Close()

	typ := m.NewType(0)
	sym := m.Symbol([]byte("shared"))
	m.TableSet(m.allType, sym, Int(100))
	m.TableSet(typ, sym, Int(200))

	instance := m.NewTable(0)
	m.SetTypeOf(instance, typ)
	assert(t, m.GetProperty(instance, sym) == Int(200), "own type's binding should shadow the universal fallback")
}

func TestAddMixinPromotionAndChain(t *testing.T) {
	m := New()
	defer m.Close()

	root := m.NewPrototype(Null, 0)
	mixinB := m.NewType(0)
	mixinC := m.NewType(0)

	assert(t, m.table(root).inherit.IsNull(), "fresh prototype should start with no inherit")

	m.AddMixin(m.main, debugCaller{}, root, mixinB)
	assert(t, SameAs(m.table(root).inherit, mixinB), "single mixin should become inherit directly")

	m.AddMixin(m.main, debugCaller{}, root, mixinC)
	assert(t, m.IsArray(m.table(root).inherit), "second mixin should promote inherit to an array")
	assert(t, m.ArrayLen(m.table(root).inherit) == 2, "promoted inherit should hold exactly 2 entries")
	assert(t, SameAs(m.ArrayGet(m.table(root).inherit, 0), mixinC), "newest mixin should lead the chain")

	chain := m.MixinChain(root)
	assert(t, len(chain) == 3, "expected root + 2 mixins, got %d", len(chain))
	assert(t, SameAs(chain[0], root), "chain must start with the type itself")

	// Re-adding mixinB (a diamond) must not duplicate it in the flattened,
	// deduplicated diagnostic view.
	m.AddMixin(m.main, debugCaller{}, root, mixinB)
	chain2 := m.MixinChain(root)
	seen := map[Value]bool{}
	for _, v := range chain2 {
		assert(t, !seen[v], "MixinChain must deduplicate repeated mixins")
		seen[v] = true
	}
	assert(t, seen[mixinB] && seen[mixinC] && seen[root], "MixinChain dropped an expected member")
}

func TestAddMixinInvokesNewHook(t *testing.T) {
	m := New()
	defer m.Close()

	typ := m.NewType(0)
	mixin := m.NewType(0)
	called := false
	var sawTyp Value
	m.TableSet(mixin, m.StdSymbol(StdNew), m.NewNativeMethod("New", func(vm *VM, a *Args) int {
		called = true
		sawTyp = a.Get(0)
		return 0
	}))

	m.AddMixin(m.main, debugCaller{}, typ, mixin)
	assert(t, called, "AddMixin must invoke the mixin's New hook")
	assert(t, SameAs(sawTyp, typ), "New hook should receive the joining type as its argument")
}
