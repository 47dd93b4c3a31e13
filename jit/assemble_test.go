package jit

import "testing"

func TestAssembleIntAdd(t *testing.T) {
	src := `
		iload_0
		iload_1
		iadd
		ireturn
	`
	method, err := Assemble("Demo", "add", "(II)I", 2, src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	want := []byte{byte(OpILoad0), byte(OpILoad1), byte(OpIAdd), byte(OpIReturn)}
	if len(method.Code) != len(want) {
		t.Fatalf("got %d bytes, want %d: %x", len(method.Code), len(want), method.Code)
	}
	for i := range want {
		if method.Code[i] != want[i] {
			t.Errorf("byte %d: got %#x, want %#x", i, method.Code[i], want[i])
		}
	}
}

func TestAssembleResolvesForwardLabel(t *testing.T) {
	src := `
		iload_1
		ifle    negative
		iconst_1
		goto    done
	negative:
		iconst_0
	done:
		ireturn
	`
	method, err := Assemble("Demo", "greaterThanZero", "(I)I", 2, src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	cu := NewCompilationUnit(method)
	if err := buildCFG(cu); err != nil {
		t.Fatalf("buildCFG on assembled method: %v", err)
	}
	if len(cu.Blocks()) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(cu.Blocks()))
	}
}

func TestAssembleRejectsUnknownMnemonic(t *testing.T) {
	_, err := Assemble("Demo", "bad", "()V", 1, "invokestatic foo\n")
	if err == nil {
		t.Fatal("expected an error for an unsupported mnemonic")
	}
}

func TestAssembleRejectsUndefinedLabel(t *testing.T) {
	_, err := Assemble("Demo", "bad", "()V", 1, "goto nowhere\n")
	if err == nil {
		t.Fatal("expected an error for an undefined label")
	}
}
