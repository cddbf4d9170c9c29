package parallel

import (
	"errors"
	"sync/atomic"
	"testing"
)

func TestForEachRunsAll(t *testing.T) {
	var n int64
	ForEach(100, 4, func(i int) {
		atomic.AddInt64(&n, 1)
	})
	if n != 100 {
		t.Fatalf("ran %d bodies, want 100", n)
	}
}

func TestForEachLimit(t *testing.T) {
	var inFlight, peak int64
	ForEach(50, 3, func(i int) {
		cur := atomic.AddInt64(&inFlight, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if cur <= p || atomic.CompareAndSwapInt64(&peak, p, cur) {
				break
			}
		}
		atomic.AddInt64(&inFlight, -1)
	})
	if peak > 3 {
		t.Fatalf("observed %d concurrent bodies, limit was 3", peak)
	}
}

func TestForEachZeroLength(t *testing.T) {
	called := false
	ForEach(0, 4, func(i int) { called = true })
	if called {
		t.Fatal("body called for zero length")
	}
}

func TestForEachErr(t *testing.T) {
	sentinel := errors.New("boom")
	var n int64
	err := ForEachErr(10, 2, func(i int) error {
		atomic.AddInt64(&n, 1)
		if i == 5 {
			return sentinel
		}
		return nil
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("got %v, want sentinel", err)
	}
	if n != 10 {
		t.Fatalf("ran %d bodies, want all 10 despite error", n)
	}
}
