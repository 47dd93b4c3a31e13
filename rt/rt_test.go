package rt

import "testing"

func TestHeapLoadStoreRoundTrip(t *testing.T) {
	h := NewHeap(64)
	if err := h.Store32(8, 0xdeadbeef); err != nil {
		t.Fatalf("Store32: %v", err)
	}
	got, err := h.Load32(8)
	if err != nil {
		t.Fatalf("Load32: %v", err)
	}
	if got != 0xdeadbeef {
		t.Errorf("got %#x, want %#x", got, 0xdeadbeef)
	}
}

func TestHeapOutOfRange(t *testing.T) {
	h := NewHeap(4)
	if err := h.Store32(4, 1); err == nil {
		t.Error("expected an out-of-range error")
	}
	if _, err := h.Load32(4); err == nil {
		t.Error("expected an out-of-range error")
	}
}

func TestMonitorExcludesConcurrentEntry(t *testing.T) {
	m := &Monitor{}
	m.Enter()
	entered := make(chan struct{})
	go func() {
		m.Enter()
		close(entered)
		m.Exit()
	}()
	select {
	case <-entered:
		t.Fatal("second Enter should have blocked while the monitor is held")
	default:
	}
	m.Exit()
	<-entered
}

func TestNativeTableRegisterLookup(t *testing.T) {
	tbl := NewNativeTable()
	tbl.Register("java/lang/Math", "abs", func(args []uint32) uint32 {
		if int32(args[0]) < 0 {
			return uint32(-int32(args[0]))
		}
		return args[0]
	})

	fn, ok := tbl.Lookup("java/lang/Math", "abs")
	if !ok {
		t.Fatal("expected abs to be registered")
	}
	minusFive := int32(-5)
	if got := fn([]uint32{uint32(minusFive)}); got != 5 {
		t.Errorf("abs(-5) = %d, want 5", got)
	}

	if _, ok := tbl.Lookup("java/lang/Math", "sqrt"); ok {
		t.Error("sqrt was never registered")
	}
}

func TestResolveClass(t *testing.T) {
	if err := ResolveClass("java/lang/Object"); err != nil {
		t.Errorf("expected a named class to resolve, got %v", err)
	}
	if err := ResolveClass(""); err == nil {
		t.Error("expected an empty class name to fail resolution")
	}
}

func TestNewException(t *testing.T) {
	err := NewException("java/lang/NullPointerException", "x was null")
	if err == nil {
		t.Fatal("expected a non-nil error")
	}
	const want = "java/lang/NullPointerException: x was null"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}
