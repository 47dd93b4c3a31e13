package main

import (
	"flag"
	"fmt"
	"os"

	"vmjit/jit"
)

var (
	className  = flag.String("class", "Demo", "class name attributed to the compiled method")
	methodName = flag.String("method", "main", "method name attributed to the compiled method")
	descriptor = flag.String("descriptor", "()V", "method descriptor (argument/return shape)")
	maxLocals  = flag.Uint("locals", 4, "max_locals for the assembled method")
	debug      = flag.Bool("debug", false, "print the compiled unit's basic blocks and instruction counts")
)

// main assembles a JVM-class bytecode method from a mnemonic source file
// and runs it through the JIT pipeline, reporting the result. It does
// not invoke the compiled code: the encoder in jit/emit.go produces a
// schematic machine-code shape rather than a literally runnable x86-64
// encoding (see DESIGN.md), so the interesting output here is whether
// compilation succeeded and what the pipeline decided, not a return
// value from calling into the generated buffer.
func main() {
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		fmt.Println("Usage: vmjit [flags] <source.jasm>")
		flag.PrintDefaults()
		os.Exit(1)
	}

	src, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	method, err := jit.Assemble(*className, *methodName, *descriptor, uint16(*maxLocals), string(src))
	if err != nil {
		fmt.Println("assemble:", err)
		os.Exit(1)
	}

	cu := jit.NewCompilationUnit(method)
	entry, err := jit.EnsureCompiled(cu)
	if err != nil {
		fmt.Println("compile:", err)
		os.Exit(1)
	}

	fmt.Printf("compiled %s.%s%s -> entry %#x\n", *className, *methodName, *descriptor, entry)

	if *debug {
		for _, bb := range cu.Blocks() {
			fmt.Printf("  block [%d,%d) -> mach_offset=%d insns=%d\n", bb.Start, bb.End, bb.MachOffset, len(bb.Insns))
		}
	}
}
