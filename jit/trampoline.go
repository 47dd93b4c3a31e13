package jit

// Lazy-compilation trampoline (spec.md §4.7), grounded on
// original_source/jit/jit-compiler.c's jit_magic_trampoline/
// build_jit_trampoline and jit/fixup-site.c's fixup-site bookkeeping.
// A callee's first invocation always goes through EnsureCompiled; once
// compiled, every FixupSite registered against it gets its call
// instruction patched to the real entry point so later calls skip the
// trampoline entirely.

// FixupSite is one call instruction, somewhere in an already-emitted
// unit's code, that currently targets the trampoline for callee and
// should be rewritten to call callee.entryPoint directly once callee
// finishes compiling.
type FixupSite struct {
	Caller     *CompilationUnit
	Callee     *CompilationUnit
	MachOffset int // offset of the call instruction's record; its displacement field sits 4 bytes in
}

// addr returns the absolute address of the fix-up site's call record,
// matching fixup_site_addr's buffer_ptr(cu->objcode) + mach_offset.
func (s *FixupSite) addr() uintptr {
	return s.Caller.objcode.baseAddr() + uintptr(s.MachOffset)
}

// RegisterFixupSite records that caller's call instruction at machOffset
// invokes callee through the trampoline. Safe to call before callee has
// compiled (the common case: the caller is being compiled right now and
// is recording every callee it references).
func RegisterFixupSite(caller, callee *CompilationUnit, machOffset int) {
	site := &FixupSite{Caller: caller, Callee: callee, MachOffset: machOffset}
	callee.trampolineMu.Lock()
	defer callee.trampolineMu.Unlock()
	callee.fixupSites = append(callee.fixupSites, site)
}

// EnsureCompiled is the trampoline's dispatch path: jit_magic_trampoline
// generalized to Go's mutex/defer idiom. Concurrent callers serialize on
// cu.mu exactly as spec.md §5 requires; the first one through runs
// Compile, the rest observe isCompiled/compileAttempted already set and
// skip straight to returning the (possibly failed) result.
func EnsureCompiled(cu *CompilationUnit) (uintptr, error) {
	cu.mu.Lock()
	if !cu.compileAttempted {
		cu.compileAttempted = true
		cu.mu.Unlock()

		err := Compile(cu)

		cu.mu.Lock()
		cu.compileErr = err
		entry := cu.entryPoint
		if err == nil {
			// Fix-up sites must be rewritten before isCompiled becomes
			// visible and cu.mu is released (spec.md §5: "a caller that
			// observes is_compiled sees its own call site rewritten"),
			// so patch while still holding the lock.
			patchFixupSites(cu, entry)
		}
		cu.isCompiled = err == nil
		cu.mu.Unlock()

		if err != nil {
			return 0, err
		}
		return entry, nil
	}
	entry, err := cu.entryPoint, cu.compileErr
	cu.mu.Unlock()
	return entry, err
}

// patchFixupSites rewrites every registered caller's call instruction to
// target entry directly, draining the list under the callee's
// trampoline mutex so a fix-up site registered mid-patch is never lost
// (spec.md §4.7 "the fix-up list and is_compiled must not race").
func patchFixupSites(cu *CompilationUnit, entry uintptr) {
	cu.trampolineMu.Lock()
	sites := cu.fixupSites
	cu.fixupSites = nil
	cu.trampolineMu.Unlock()

	for _, site := range sites {
		disp := int32(int64(entry) - int64(site.addr()) - insnRecordSize)
		buf := new(byteBuffer)
		buf.appendUint32LE(uint32(disp))
		_ = site.Caller.objcode.patch(site.MachOffset+4, buf.bytes())
	}
}
