package otel

import (
	"sync"
	"testing"
)

func TestLastWrapsAround(t *testing.T) {
	r := NewRingBuffer(4)
	for i := 0; i < 7; i++ {
		r.Push(Event{Kind: KindLoadStart, Count: i})
	}

	if r.Len() != 4 || r.Cap() != 4 {
		t.Fatalf("Len/Cap = %d/%d, want 4/4", r.Len(), r.Cap())
	}

	got := r.Last(10)
	if len(got) != 4 {
		t.Fatalf("Last(10) returned %d events, want 4", len(got))
	}
	for i, e := range got {
		if want := i + 3; e.Count != want {
			t.Errorf("got[%d].Count = %d, want %d", i, e.Count, want)
		}
	}

	last2 := r.Last(2)
	if last2[0].Count != 5 || last2[1].Count != 6 {
		t.Errorf("Last(2) = %+v, want counts 5,6", last2)
	}
}

func TestLastEmptyAndNonPositive(t *testing.T) {
	r := NewRingBuffer(4)
	if r.Last(3) != nil {
		t.Error("Last on empty buffer should be nil")
	}
	r.Push(Event{Kind: KindLoadStart})
	if r.Last(0) != nil || r.Last(-1) != nil {
		t.Error("Last(n<=0) should be nil")
	}
}

func TestStats(t *testing.T) {
	r := NewRingBuffer(3)
	r.Push(Event{Kind: KindLoadStart})
	r.Push(Event{Kind: KindLoadComplete})
	r.Push(Event{Kind: KindLoadStart})
	r.Push(Event{Kind: KindPatchError}) // evicts the first load_start

	stats := r.Stats()
	if stats[KindLoadStart] != 1 || stats[KindLoadComplete] != 1 || stats[KindPatchError] != 1 {
		t.Errorf("Stats() = %v", stats)
	}
}

func TestPushCopiesExtra(t *testing.T) {
	r := NewRingBuffer(2)
	extra := map[string]any{"k": 1}
	r.Push(Event{Kind: KindLoadStart, Extra: extra})
	extra["k"] = 2

	if got := r.Last(1)[0].Extra["k"]; got != 1 {
		t.Errorf("Extra aliased: got %v, want 1", got)
	}
}

func TestNilRingBuffer(t *testing.T) {
	var r *RingBuffer
	if r.Len() != 0 || r.Cap() != 0 || r.Last(5) != nil || len(r.Stats()) != 0 {
		t.Error("nil ring buffer should read as empty")
	}
}

func TestConcurrentPush(t *testing.T) {
	r := NewRingBuffer(64)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Push(Event{Kind: KindPatchStart})
				_ = r.Last(4)
			}
		}()
	}
	wg.Wait()

	if r.Len() != 64 {
		t.Errorf("Len() = %d, want 64", r.Len())
	}
}
