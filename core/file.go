// Package core ships the built-in types the runtime core needs at least one
// real example of to exercise otherwise-untested machinery -- here, a
// finalizer-bearing type for the GC's finalizer list (SPEC_FULL.md §4.10,
// §11.4). It is grounded on the original implementation's typ_file.cpp
// (original_source/src/core/typ_file.cpp): a File type registered as the
// resource subsystem's "file" scheme, trimmed to open/close/finalize only --
// no read/write builtins, which stay out of scope (§1, §11.4).
package core

import (
	"context"
	"os"

	"vmcore/vm"
)

// handles tracks the *os.File each live File value owns. Keyed by the
// value's own word so it survives arena reuse (handles are only ever
// inserted for objects the VM has not yet swept).
var handles = map[vm.Value]*os.File{}

// RegisterFileType builds the File type and registers it as the Resource
// subsystem's "file" scheme loader (§11.3); it does not store the type in
// any global table. It returns the type value for callers that want to
// construct File instances directly. Per
// §11.4 this is open/close/finalize only -- no read/write builtins, which
// stay out of scope with the rest of the resource subsystem.
func RegisterFileType(m *vm.VM) vm.Value {
	typ := m.NewType(4)
	m.TableSet(typ, m.Symbol([]byte("_name")), m.NewString([]byte("File")))
	m.TableSet(typ, m.Symbol([]byte("New")), m.NewNativeMethod("New", fileNew))
	m.TableSet(typ, m.Symbol([]byte("Close")), m.NewNativeMethod("Close", fileClose))

	m.RegisterLoader("file", fileLoader{typ: typ})
	return typ
}

// fileNew opens the path named by its first argument, returning self with
// the handle attached, or null on failure -- mirroring file_get's
// "open fails -> push null" policy rather than raising a VM fault, since a
// missing file is a §7 soft (type/lookup-style) condition, not fatal.
func fileNew(m *vm.VM, a *vm.Args) int {
	pathVal := a.Get(0)
	if !m.IsString(pathVal) && !m.IsSymbol(pathVal) {
		a.Push(vm.Null)
		return 1
	}
	path := pathString(m, pathVal)

	f, err := os.Open(path)
	if err != nil {
		a.Push(vm.Null)
		return 1
	}

	self := a.Self()
	handles[self] = f
	m.SetFinalizer(self, func(m *vm.VM, v vm.Value) {
		closeHandle(v)
	})

	a.Push(self)
	return 1
}

// fileClose closes the handle backing self (a value this package opened via
// fileNew or fileLoader), idempotently.
func fileClose(m *vm.VM, a *vm.Args) int {
	closeHandle(a.Self())
	return 0
}

func pathString(m *vm.VM, v vm.Value) string {
	if m.IsSymbol(v) {
		return m.SymbolString(v)
	}
	return string(m.StringBytes(v))
}

func closeHandle(v vm.Value) {
	if f, ok := handles[v]; ok {
		f.Close()
		delete(handles, v)
	}
}

// fileLoader implements vm.ResourceLoader for the "file" scheme: it opens
// url, wraps the open *os.File behind a File-typed table, and registers a
// finalizer that closes the handle on collection if the caller never
// explicitly Closes it.
type fileLoader struct {
	typ vm.Value
}

func (l fileLoader) Load(ctx context.Context, m *vm.VM, url string) (vm.Value, error) {
	path := url
	const scheme = "file://"
	if len(path) >= len(scheme) && path[:len(scheme)] == scheme {
		path = path[len(scheme):]
	}

	f, err := os.Open(path)
	if err != nil {
		return vm.Null, err
	}

	inst := m.NewTable(2)
	m.SetTypeOf(inst, l.typ)
	handles[inst] = f

	m.SetFinalizer(inst, func(m *vm.VM, v vm.Value) {
		closeHandle(v)
	})

	return inst, nil
}
