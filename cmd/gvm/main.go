// Command gvm loads a textual bytecode program (§6.2, assembled via the asm
// package) and runs it on a fresh VM. It continues the teacher's
// flag-driven, recover-at-the-boundary main.go idiom, retargeted from the
// teacher's flat register machine to this VM's register-window/frame-chain
// model (§3.4, §11.2).
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"vmcore/asm"
	"vmcore/core"
	"vmcore/vm"
)

var (
	debugMode  = flag.Bool("debug", false, "enter single-step debug console before running")
	disasmOnly = flag.Bool("disasm", false, "print the assembled listing and exit without running it")
	gcLog      = flag.Bool("gc-log", false, "log GC phase transitions at debug level")
	numParams  = flag.Int("params", 0, "number of fixed parameters the entry method takes")
	varArgs    = flag.Bool("vararg", true, "entry method collects remaining args as a variadic tail")
	maxStack   = flag.Int("maxstack", 256, "register window reserved for the entry method")
)

func main() {
	flag.Parse()

	// GOGC mirrors the teacher's run.go idiom of letting one environment
	// variable retune the collector without a recompile; here it scales the
	// pacer's pause target instead of handing off to Go's own GC.
	gcPauseScale := 2.0
	if v := os.Getenv("GOGC"); v != "" {
		if pct, err := strconv.ParseFloat(v, 64); err == nil && pct > 0 {
			gcPauseScale = pct / 100.0
		}
	}

	args := flag.Args()
	if len(args) == 0 {
		fmt.Println("usage: gvm [flags] <program.gvma>")
		os.Exit(1)
	}

	src, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	var logger *zap.Logger
	if *gcLog {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	opts := []vm.Option{
		vm.WithLogger(logger.Sugar()),
		vm.WithGCPause(gcPauseScale),
	}

	m := vm.New(opts...)
	defer m.Close()
	core.RegisterFileType(m)

	code, lits, err := asm.Assemble(m, string(src))
	if err != nil {
		fmt.Println("assemble error:", err)
		os.Exit(1)
	}

	if *disasmOnly {
		fmt.Print(asm.Disassemble(m, code, lits))
		return
	}

	entry := m.NewBytecodeMethod(args[0], string(src), code, lits, nil, *numParams, *varArgs, *maxStack)

	// Remaining command-line args become the program's call arguments,
	// pushed in as integers when parseable and as strings otherwise.
	callArgs := make([]vm.Value, 0, len(args)-1)
	for _, a := range args[1:] {
		if n, err := strconv.ParseInt(a, 0, 64); err == nil {
			callArgs = append(callArgs, vm.Int(n))
		} else {
			callArgs = append(callArgs, m.NewString([]byte(a)))
		}
	}

	mainThread := m.MainThread()

	defer func() {
		if r := recover(); r != nil {
			fmt.Println("fatal:", r)
			os.Exit(1)
		}
	}()

	if *debugMode {
		runDebugConsole(m, mainThread, entry, callArgs, code, lits)
		return
	}

	results, _ := m.Resume(mainThread, entry, callArgs, nil)
	for _, r := range results {
		fmt.Println(formatResult(m, r))
	}
}

// runDebugConsole continues the teacher's RunProgramDebugMode/
// ExecProgramDebugMode command set (n/next, r/run, b/break <n>, state dump)
// against this VM's frame-chain model instead of its flat register file.
func runDebugConsole(m *vm.VM, th, entry vm.Value, callArgs []vm.Value, code []vm.Instruction, lits []vm.Value) {
	fmt.Println("gvm debug console -- n/next, r/run, b/break <ip>, list, state, q/quit")

	m.Reset(th, nil)
	started := false

	reader := bufio.NewReader(os.Stdin)
	breakpoints := map[int]struct{}{}
	running := false

	step := func() bool {
		if !started {
			started = true
			m.DebugEnter(th, entry, callArgs)
		}
		return m.DebugStep(th)
	}

	printState := func() {
		fmt.Printf("ip=%d depth=%d\n", m.DebugIP(th), m.DebugFrameDepth(th))
		regs := m.DebugRegisters(th)
		fmt.Print("registers> [")
		for i, r := range regs {
			if i > 0 {
				fmt.Print(", ")
			}
			fmt.Print(formatResult(m, r))
		}
		fmt.Println("]")
	}

	printState()
	for {
		if running {
			ip := m.DebugIP(th)
			if _, ok := breakpoints[ip]; ok {
				fmt.Println("breakpoint at", ip)
				running = false
				printState()
				continue
			}
			if !step() {
				fmt.Println("program finished")
				return
			}
			continue
		}

		fmt.Print("-> ")
		line, _ := reader.ReadString('\n')
		line = strings.TrimSpace(line)

		switch {
		case line == "n" || line == "next":
			if !step() {
				fmt.Println("program finished")
				return
			}
			printState()
		case line == "r" || line == "run":
			running = true
		case line == "list":
			fmt.Print(asm.Disassemble(m, code, lits))
		case line == "state":
			printState()
		case line == "q" || line == "quit":
			return
		case strings.HasPrefix(line, "b "):
			n, err := strconv.Atoi(strings.TrimSpace(line[2:]))
			if err != nil {
				fmt.Println("bad breakpoint:", err)
				continue
			}
			if _, ok := breakpoints[n]; ok {
				delete(breakpoints, n)
			} else {
				breakpoints[n] = struct{}{}
			}
		default:
			fmt.Println("unknown command:", line)
		}
	}
}

func formatResult(m *vm.VM, v vm.Value) string {
	switch {
	case v.IsNull():
		return "null"
	case v.IsTrue():
		return "true"
	case v.IsFalse():
		return "false"
	case v.IsInt():
		return fmt.Sprintf("%d", v.AsInt())
	case v.IsFloat():
		return fmt.Sprintf("%g", v.AsFloat())
	case m.IsString(v):
		return string(m.StringBytes(v))
	case m.IsSymbol(v):
		return "'" + m.SymbolString(v)
	default:
		return "<object>"
	}
}

func init() {
	// Keep the default Go GC out of the way of pacer experiments run via
	// -gc-log; this module's own collector is what SPEC_FULL.md governs.
	debug.SetGCPercent(400)
}
