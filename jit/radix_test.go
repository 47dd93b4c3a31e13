package jit

import "testing"

func TestRadixIndexLookup(t *testing.T) {
	r := newRadixIndex()
	unitA := &CompilationUnit{}
	unitB := &CompilationUnit{}
	unitC := &CompilationUnit{}

	// Insert out of order to exercise the sorted-insert path.
	r.insert(200, 220, unitB)
	r.insert(0, 20, unitA)
	r.insert(1000, 1050, unitC)

	cases := []struct {
		addr uintptr
		want *CompilationUnit
	}{
		{10, unitA},
		{0, unitA},
		{19, unitA},
		{20, nil}, // End is exclusive
		{150, nil},
		{205, unitB},
		{1049, unitC},
		{1050, nil},
	}
	for _, c := range cases {
		if got := r.lookup(c.addr); got != c.want {
			t.Errorf("lookup(%d): got %p, want %p", c.addr, got, c.want)
		}
	}
}

func TestRadixIndexEmpty(t *testing.T) {
	r := newRadixIndex()
	if r.lookup(42) != nil {
		t.Error("empty index should never resolve an address")
	}
}
