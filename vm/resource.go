package vm

import "context"

// ResourceLoader is the single-method collaborator seam §4.11/§11.3
// describe: given a normalized URL, it returns a decoded Value to be
// installed under that URL's identity. URL parsing, scheme tables, and
// archive unpacking are a resource subsystem's concern, not the core's; the
// core only dispatches by scheme string to a registered loader.
type ResourceLoader interface {
	Load(ctx context.Context, vm *VM, url string) (Value, error)
}

// RegisterLoader installs loader for the given scheme (e.g. "file", "zip"),
// replacing any previously registered loader for that scheme.
func (vm *VM) RegisterLoader(scheme string, loader ResourceLoader) {
	vm.loaders[scheme] = loader
}

// LoadResource is the native method slot §4.11 describes: it looks up the
// loader registered for url's scheme and delegates to it. scheme is passed
// in pre-parsed since URL parsing itself is out of core scope.
func (vm *VM) LoadResource(ctx context.Context, scheme, url string) (Value, error) {
	loader, ok := vm.loaders[scheme]
	if !ok {
		return Null, nil
	}
	return loader.Load(ctx, vm, url)
}
