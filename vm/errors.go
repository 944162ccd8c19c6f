package vm

import (
	"github.com/pkg/errors"
)

// Fatal error kinds the core raises. These always terminate the embedding
// process via the VM's failure hook; there is no structured unwind below
// this layer (see SPEC_FULL.md §7).
var (
	ErrOutOfMemory  = errors.New("out of memory")
	ErrOutOfStack   = errors.New("stack overflow")
	ErrCorruptCode  = errors.New("corrupt bytecode")
)

// FailureHook is called once with a fatal, stack-wrapped error. The default
// hook logs through the VM's logger and panics so an embedding cmd/ can
// recover at its own boundary; embeddings that need a harder stop may
// install a hook that calls os.Exit directly.
type FailureHook func(vm *VM, err error)

func defaultFailureHook(vm *VM, err error) {
	vm.log.Errorw("fatal vm error", "error", err)
	panic(err)
}

// fatal routes a fatal condition through the configured hook. Soft errors
// (type-mismatch, lookup-miss) never call this; they resolve to Null per
// the embedding contract instead.
func (vm *VM) fatal(err error) {
	hook := vm.failureHook
	if hook == nil {
		hook = defaultFailureHook
	}
	hook(vm, err)
}
