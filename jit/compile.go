package jit

// Compile drives the whole pipeline for one method, in the same order
// original_source/jit/jit-compiler.c's jit_compile does: CFG, IR,
// instruction selection, liveness + register allocation, then machine
// code emission. Each stage's error aborts the compile and is returned
// (EnsureCompiled records it on the unit) rather than retried — per
// spec.md §7, only
// UnresolvedReference leaves the unit usable (as a stub-filled method);
// every other CompileErrorKind here means the unit never becomes
// runnable.
func Compile(cu *CompilationUnit) error {
	nrLocals := int(cu.Method.MaxLocals)
	nrArgs := int(cu.Method.ArgsCount)
	if nrLocals < nrArgs {
		nrLocals = nrArgs
	}
	cu.Frame = NewStackFrame(nrArgs, nrLocals)

	if err := buildCFG(cu); err != nil {
		return err
	}
	if err := translateUnit(cu); err != nil {
		return err
	}
	wrapSynchronized(cu)
	if err := selectUnit(cu); err != nil {
		return err
	}
	if err := analyzeLiveness(cu); err != nil {
		return err
	}
	if err := allocateRegisters(cu); err != nil {
		return err
	}
	rewriteOperands(cu)
	if err := emitMachineCode(cu); err != nil {
		return err
	}

	globalTextHeap.register(cu)
	return nil
}
