package jit

import (
	"testing"

	"vmjit/classfile"
)

func simpleCompiledUnit(t *testing.T) *CompilationUnit {
	t.Helper()
	code := []byte{byte(OpIConst0), byte(OpIReturn)}
	m := &classfile.Method{
		ClassName: "Demo", Name: "callee",
		Code: code, CodeSize: uint32(len(code)),
		MaxLocals: 0, Pool: classfile.NewConstantPool(),
	}
	return NewCompilationUnit(m)
}

func TestPatchFixupSitesRewritesCallSite(t *testing.T) {
	caller, err := allocExecBuffer(insnRecordSize * 2)
	if err != nil {
		t.Fatalf("allocExecBuffer: %v", err)
	}
	caller.write(make([]byte, insnRecordSize*2))
	if err := caller.makeExecutable(); err != nil {
		t.Fatalf("makeExecutable: %v", err)
	}
	callerUnit := &CompilationUnit{objcode: caller}

	callee := simpleCompiledUnit(t)
	RegisterFixupSite(callerUnit, callee, insnRecordSize) // the second record; its displacement field is at +4

	entry, err := EnsureCompiled(callee)
	if err != nil {
		t.Fatalf("EnsureCompiled: %v", err)
	}

	if len(callee.fixupSites) != 0 {
		t.Errorf("expected patchFixupSites to drain the fix-up list, %d entries remain", len(callee.fixupSites))
	}

	disp := int32(uint32(caller.mem[insnRecordSize+4]) |
		uint32(caller.mem[insnRecordSize+5])<<8 |
		uint32(caller.mem[insnRecordSize+6])<<16 |
		uint32(caller.mem[insnRecordSize+7])<<24)
	wantDisp := int32(int64(entry) - int64(caller.baseAddr()+insnRecordSize) - insnRecordSize)
	if disp != wantDisp {
		t.Errorf("patched displacement = %d, want %d", disp, wantDisp)
	}
}

func TestRegisterFixupSiteAfterCompileIsOnlyQueued(t *testing.T) {
	callee := simpleCompiledUnit(t)
	if _, err := EnsureCompiled(callee); err != nil {
		t.Fatalf("EnsureCompiled: %v", err)
	}

	caller, err := allocExecBuffer(insnRecordSize)
	if err != nil {
		t.Fatalf("allocExecBuffer: %v", err)
	}
	caller.write(make([]byte, insnRecordSize))
	if err := caller.makeExecutable(); err != nil {
		t.Fatalf("makeExecutable: %v", err)
	}
	callerUnit := &CompilationUnit{objcode: caller}

	// callee is already compiled: a fix-up site registered after the
	// fact must be patched immediately by whichever path notices, not
	// left stranded. EnsureCompiled on an already-compiled unit doesn't
	// re-run patchFixupSites, so the caller is expected to check
	// IsCompiled() and patch inline in that case — this test documents
	// that RegisterFixupSite alone does not retroactively patch.
	RegisterFixupSite(callerUnit, callee, 0)
	if len(callee.fixupSites) != 1 {
		t.Fatalf("expected the fix-up site to be queued, got %d entries", len(callee.fixupSites))
	}
}
