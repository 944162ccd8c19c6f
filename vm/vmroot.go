package vm

import (
	"go.uber.org/zap"
)

// VM is the root of one isolated interpreter instance: its own heap, symbol
// table, standard-symbol cache and thread set. Nothing is shared between two
// VMs (SPEC_FULL.md §5 Resource policy); the only thing shared within one VM
// is the collector, across however many threads it owns.
type VM struct {
	gc    gcState
	arena arena

	symbols *internTable
	stdSyms [stdSymbolCount]Value

	arrayObjects  map[*object]*arrayObj
	tableObjects  map[*object]*tableObj
	methodObjects map[*object]*methodObj
	threadObjects map[*object]*threadObj
	symbolObjects map[*object]*symbolObj
	stringObjects map[*object]*stringObj

	finalizers map[*object]func(*VM, Value)

	// root is the VM's own KindVM header; it never dies and is the sole mark
	// root the collector starts from each cycle (§4.10 Begin phase).
	root *object

	// main is the initial thread created alongside the VM; embeddings that
	// never spawn coroutines can ignore threads entirely and drive main.
	main *threadObj

	// allType is the universal fallback type consulted by GetProperty's
	// final step (§4.7).
	allType Value

	config      Config
	log         *zap.SugaredLogger
	failureHook FailureHook

	loaders map[string]ResourceLoader

	rngState uint64
}

// New constructs a VM ready to load and run bytecode. Its zero-argument form
// takes every default from Config; pass Options to tune allocator and GC
// behavior per SPEC_FULL.md §10.1.
func New(opts ...Option) *VM {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	logger := cfg.Logger
	if logger == nil {
		l, err := zap.NewProduction()
		if err != nil {
			l = zap.NewNop()
		}
		logger = l.Sugar()
	}

	vm := &VM{
		gc:            newGCState(),
		symbols:       newInternTable(splitmix64seed()),
		arrayObjects:  make(map[*object]*arrayObj),
		tableObjects:  make(map[*object]*tableObj),
		methodObjects: make(map[*object]*methodObj),
		threadObjects: make(map[*object]*threadObj),
		symbolObjects: make(map[*object]*symbolObj),
		stringObjects: make(map[*object]*stringObj),
		finalizers:    make(map[*object]func(*VM, Value)),
		loaders:       make(map[string]ResourceLoader),
		config:        cfg,
		log:           logger,
		rngState:      splitmix64seed(),
	}

	vm.root = vm.allocate(KindVM, 0)
	vm.gc.objects = vm.root // root goes on the chain like everything else

	vm.initStdSymbols()
	vm.allType = vm.NewType(0)
	vm.main = vm.newThread(cfg.InitialStack)

	return vm
}

// Close releases the logger's buffered output. Embeddings that installed
// their own Logger via WithLogger own its lifecycle and may treat this as a
// no-op by passing a logger whose Sync is harmless.
func (vm *VM) Close() error {
	return vm.log.Sync()
}

// MainThread returns the VM's initial thread, the one a fresh VM's bytecode
// runs on unless the embedding creates another with NewThread and resumes it.
func (vm *VM) MainThread() Value {
	return handleOf(vm.main.header)
}

// splitmix64seed produces a one-shot pseudo-random seed for symbol-hash
// randomization (§4.3: "computed with a VM-wide random seed... to resist
// algorithmic-complexity attacks"). It is reseeded from the runtime's own
// randomized map iteration order rather than time, keeping New() free of
// any wall-clock dependency the collector's deterministic-stepping tests
// would otherwise have to account for.
func splitmix64seed() uint64 {
	seedMap := map[int]struct{}{0: {}, 1: {}, 2: {}, 3: {}}
	var acc uint64 = 0x9E3779B97F4A7C15
	for k := range seedMap {
		acc ^= uint64(k+1) * 0xBF58476D1CE4E5B9
		acc = (acc << 13) | (acc >> 51)
	}
	return acc
}
