// Package main provides the rvsim command: a RISC-V system simulator that
// runs a guest binary on two cores under differential test, with an
// interactive debugger on top.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/rvsim/cache"
	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/riscv"
	"github.com/sarchlab/rvsim/sdb"
	"github.com/sarchlab/rvsim/vio"
)

var (
	xlen      = flag.Int("xlen", 32, "Word width of the simulated cores (32 or 64)")
	memBase   = flag.Uint64("mem-base", 0x80000000, "Base address of the RAM region")
	memSize   = flag.Uint64("mem-size", 128*1024*1024, "Size of the RAM region in bytes")
	eventCap  = flag.Int("events", 4096, "Capacity of each commit-event buffer")
	rawTerm   = flag.Bool("raw", false, "Use the raw host terminal as the console device")
	useDcache = flag.Bool("dcache", false, "Route the DUT data bus through a write-through cache")
	batch     = flag.Bool("batch", false, "Run to completion without the debugger prompt")
	verbose   = flag.Bool("v", false, "Verbose output")
)

func main() {
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: rvsim [options] <program.elf>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	var exitCode int
	switch *xlen {
	case 32:
		exitCode = run[uint32](flag.Arg(0))
	case 64:
		exitCode = run[uint64](flag.Arg(0))
	default:
		fmt.Fprintf(os.Stderr, "rvsim: unsupported -xlen %d\n", *xlen)
		os.Exit(1)
	}
	os.Exit(exitCode)
}

func run[W emu.Word](programPath string) int {
	memoryDut := emu.NewMemory(*memBase, *memSize)
	entry, err := memoryDut.LoadELFFile(programPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rvsim: error loading program: %v\n", err)
		os.Exit(1)
	}
	if entry == 0 {
		fmt.Fprintf(os.Stderr, "rvsim: %s is not a loadable ELF binary\n", programPath)
		os.Exit(1)
	}

	memoryRef := emu.NewMemory(*memBase, *memSize)
	if _, err := memoryRef.LoadELFFile(programPath); err != nil {
		fmt.Fprintf(os.Stderr, "rvsim: error loading program: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		fmt.Printf("Loaded: %s\n", programPath)
		fmt.Printf("Entry point: 0x%X\n", entry)
	}

	var consoleBackend vio.Backend
	if *rawTerm {
		termBackend, err := vio.NewConsoleBackendTerm()
		if err != nil {
			fmt.Fprintf(os.Stderr, "rvsim: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = termBackend.Close() }()
		consoleBackend = termBackend
	} else {
		consoleBackend = vio.NewConsoleBackend(os.Stdin, os.Stdout)
	}

	bus := vio.NewDispatcher([]vio.Device{
		{Frontend: vio.ConsoleFrontend{}, Backend: consoleBackend, AddrBegin: 0xa00003f8, ByteSpan: 8},
		{Frontend: vio.MtimeFrontend{}, Backend: vio.NewMtimeBackend(), AddrBegin: 0xa0000048, ByteSpan: 16},
	})

	var dutDataBus emu.MemoryBus = memoryDut
	if *useDcache {
		dutDataBus = cache.NewCachedMemory(memoryDut, cache.DefaultConfig())
	}

	eventsDut := vio.NewRingBuffer[emu.Event[W]](*eventCap)
	dut := emu.NewSystemCPU[W](memoryDut, dutDataBus,
		emu.WithMMIO[W](bus.NewAgent()),
		emu.WithEventBuffer[W](eventsDut),
	)

	eventsRef := vio.NewRingBuffer[emu.Event[W]](*eventCap)
	ref := emu.NewSystemCPU[W](memoryRef, memoryRef,
		emu.WithMMIO[W](bus.NewAgent()),
		emu.WithEventBuffer[W](eventsRef),
		emu.WithDecodeCache[W](0, 2), // single line, effectively uncached
	)

	eventsDifftest := vio.NewRingBuffer[emu.Event[W]](*eventCap)
	difftest := emu.NewSimpleDifftest(emu.CPU[W](dut), emu.CPU[W](ref),
		emu.WithDifftestEventBuffer[W](eventsDifftest),
	)
	difftest.Reset(W(entry))

	shell := sdb.NewSdbDifftest(difftest)

	if *batch {
		for !difftest.Stopped() {
			difftest.NextCycle()
		}
	} else {
		scanner := bufio.NewScanner(os.Stdin)
		for !shell.Stopped() {
			fmt.Print(shell.Prompt())
			if !scanner.Scan() {
				break
			}
			shell.ExecuteCommand(scanner.Text())
		}
	}

	shell.ExecuteCommand("status")
	return int(uint64(difftest.Gpr(riscv.A0)))
}
