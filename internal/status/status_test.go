package status

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/JackEngelmann/nlpanno/internal/sample"
)

func TestCombine(t *testing.T) {
	tests := []struct {
		name    string
		sources []Source
		want    Readiness
	}{
		{"none", nil, Ready},
		{"all ready", []Source{Flags{}, Flags{}}, Ready},
		{"one loading", []Source{Flags{}, Flags{IsLoading: true}}, Loading},
		{"error dominates loading", []Source{Flags{ErrorOccurred: true}, Flags{IsLoading: true}}, Failed},
		{"error after loading source", []Source{Flags{IsLoading: true}, Flags{ErrorOccurred: true}}, Failed},
		{"loading and failed same source", []Source{Flags{IsLoading: true, ErrorOccurred: true}}, Failed},
		{"nil skipped", []Source{nil, Flags{IsLoading: true}}, Loading},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Combine(tt.sources...); got != tt.want {
				t.Errorf("Combine() = %v, want %v", got, tt.want)
			}
		})
	}
}

type fakeFetcher struct {
	mu     sync.Mutex
	values []sample.Status
	errs   []error
	calls  int
}

func (f *fakeFetcher) Status(ctx context.Context) (sample.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return sample.Status{}, f.errs[i]
	}
	if i >= len(f.values) {
		return f.values[len(f.values)-1], nil
	}
	return f.values[i], nil
}

func busy(b bool) sample.Status {
	return sample.Status{Worker: sample.WorkerStatus{IsWorking: b}}
}

func TestPollerPublishesOnlyChanges(t *testing.T) {
	f := &fakeFetcher{values: []sample.Status{busy(false), busy(false), busy(true), busy(true), busy(false)}}
	var published []sample.Status
	p := NewPoller(f, time.Hour, func(s sample.Status) { published = append(published, s) }, nil)

	if !p.Loading() {
		t.Error("poller should be loading before the first reply")
	}
	for i := 0; i < 5; i++ {
		p.Poll(context.Background())
	}

	want := []sample.Status{busy(false), busy(true), busy(false)}
	if len(published) != len(want) {
		t.Fatalf("published %v, want %v", published, want)
	}
	for i := range want {
		if published[i] != want[i] {
			t.Errorf("published[%d] = %v, want %v", i, published[i], want[i])
		}
	}
	if p.Loading() {
		t.Error("poller should not be loading after a reply")
	}
	if got, ok := p.Latest(); !ok || got != busy(false) {
		t.Errorf("Latest() = %v, %v", got, ok)
	}
}

func TestPollerErrorIsSticky(t *testing.T) {
	f := &fakeFetcher{
		values: []sample.Status{busy(false), busy(false)},
		errs:   []error{errors.New("HTTP 502"), nil},
	}
	p := NewPoller(f, time.Hour, nil, nil)

	p.Poll(context.Background())
	if Combine(p) != Failed {
		t.Fatalf("Combine() = %v after failed first poll, want failed", Combine(p))
	}

	p.Poll(context.Background())
	if !p.Failed() {
		t.Error("a later success must not clear the error flag")
	}

	p.Retry()
	if p.Failed() || Combine(p) != Ready {
		t.Errorf("after Retry: failed=%v readiness=%v", p.Failed(), Combine(p))
	}
}

func TestPollerStartStops(t *testing.T) {
	f := &fakeFetcher{values: []sample.Status{busy(true)}}
	got := make(chan sample.Status, 1)
	p := NewPoller(f, 5*time.Millisecond, func(s sample.Status) { got <- s }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	select {
	case s := <-got:
		if s != busy(true) {
			t.Errorf("first published = %v", s)
		}
	case <-time.After(time.Second):
		t.Fatal("no status published")
	}

	cancel()
	p.Wait()

	f.mu.Lock()
	calls := f.calls
	f.mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls != calls {
		t.Errorf("poller kept polling after Wait: %d -> %d", calls, f.calls)
	}
}

func TestPollSkipsCancelledContext(t *testing.T) {
	f := &fakeFetcher{values: []sample.Status{busy(true)}}
	p := NewPoller(f, time.Hour, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Poll(ctx)

	if f.calls != 0 {
		t.Errorf("calls = %d, want 0", f.calls)
	}
	if p.Failed() {
		t.Error("cancellation is not a failure")
	}
}
