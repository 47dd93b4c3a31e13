package jit

import (
	"syscall"
	"unsafe"
)

// execBuffer is a page-aligned, writable-then-executable memory region
// holding one compiled method's machine code. mmap/mprotect are reached
// through the standard library's syscall package rather than
// golang.org/x/sys/unix: nothing in the retrieved corpus imports x/sys,
// and syscall.Mmap/syscall.Mprotect cover exactly what W^X text
// allocation needs on the one platform this target supports (see
// DESIGN.md).
type execBuffer struct {
	mem   []byte
	used  int
	ready bool
}

// pageSize matches the common x86-64 Linux page size. A production
// allocator would query the runtime, but the unexported constant keeps
// every caller's rounding arithmetic simple and this target never runs
// on a platform with a different page size.
const pageSize = 4096

func roundUpPage(n int) int {
	return (n + pageSize - 1) &^ (pageSize - 1)
}

// allocExecBuffer reserves n bytes of RW memory; the caller writes
// machine code into it and then calls makeExecutable to flip it to RX,
// matching the W^X discipline spec.md §5 requires (never W and X at
// once).
func allocExecBuffer(n int) (*execBuffer, error) {
	size := roundUpPage(n)
	mem, err := syscall.Mmap(-1, 0, size,
		syscall.PROT_READ|syscall.PROT_WRITE,
		syscall.MAP_PRIVATE|syscall.MAP_ANON)
	if err != nil {
		return nil, newCompileError(OutOfCodeSpace, "mmap executable buffer: %v", err)
	}
	return &execBuffer{mem: mem}, nil
}

func (b *execBuffer) write(code []byte) {
	copy(b.mem[b.used:], code)
	b.used += len(code)
}

func (b *execBuffer) len() int { return b.used }

// makeExecutable flips the buffer from RW to RX.
func (b *execBuffer) makeExecutable() error {
	if err := syscall.Mprotect(b.mem, syscall.PROT_READ|syscall.PROT_EXEC); err != nil {
		return newCompileError(OutOfCodeSpace, "mprotect executable buffer: %v", err)
	}
	b.ready = true
	return nil
}

// patch rewrites bytes at offset after briefly remapping the buffer back
// to RW. The window where the page is writable-but-not-yet-executable-
// again is exactly how a call-site fix-up (spec.md §4.7) is allowed to
// mutate code that earlier calls may already be executing concurrently:
// the buffer is never W and X at the same time, but it does toggle
// between them, once per fix-up, under the trampoline's mutex.
func (b *execBuffer) patch(offset int, bytes []byte) error {
	if err := syscall.Mprotect(b.mem, syscall.PROT_READ|syscall.PROT_WRITE); err != nil {
		return newCompileError(OutOfCodeSpace, "mprotect buffer writable for patch: %v", err)
	}
	copy(b.mem[offset:], bytes)
	if err := syscall.Mprotect(b.mem, syscall.PROT_READ|syscall.PROT_EXEC); err != nil {
		return newCompileError(OutOfCodeSpace, "mprotect buffer executable after patch: %v", err)
	}
	return nil
}

func (b *execBuffer) baseAddr() uintptr {
	if len(b.mem) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b.mem[0]))
}
