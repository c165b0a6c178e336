package status

import (
	"context"
	"sync"
	"time"

	"github.com/JackEngelmann/nlpanno/internal/otel"
	"github.com/JackEngelmann/nlpanno/internal/sample"
)

// DefaultInterval is the time between status polls.
const DefaultInterval = time.Second

// pollTimeout bounds each individual poll.
const pollTimeout = 5 * time.Second

// Fetcher reads the server status. *fetch.Client satisfies it.
type Fetcher interface {
	Status(ctx context.Context) (sample.Status, error)
}

// Poller polls the server status on a fixed interval and publishes changed
// values. It is a Source: loading until the first reply, failed after any
// poll error until Retry.
// Uses context cancellation as the ONLY stop mechanism.
type Poller struct {
	fetcher  Fetcher
	interval time.Duration
	onChange func(sample.Status) // optional
	events   *otel.Logger        // optional
	wg       sync.WaitGroup

	mu      sync.Mutex
	latest  sample.Status
	replied bool
	failed  bool
}

// NewPoller creates a Poller. onChange is called from the polling goroutine
// with each value that differs from the previous one; it may be nil.
// A non-positive interval selects DefaultInterval.
func NewPoller(f Fetcher, interval time.Duration, onChange func(sample.Status), events *otel.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		fetcher:  f,
		interval: interval,
		onChange: onChange,
		events:   events,
	}
}

// Start begins polling. Polls once immediately unless a poll already
// succeeded, then every interval until ctx is cancelled.
func (p *Poller) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		if p.Loading() {
			p.Poll(ctx)
		}

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Poll(ctx)
			}
		}
	}()
}

// Wait blocks until the polling goroutine exits.
// Call after canceling the context passed to Start.
func (p *Poller) Wait() {
	p.wg.Wait()
}

// Poll fetches the status once. Unchanged values are not published.
func (p *Poller) Poll(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	pollCtx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	st, err := p.fetcher.Status(pollCtx)
	if ctx.Err() != nil {
		return // torn down mid-poll
	}

	p.mu.Lock()
	if err != nil {
		p.failed = true
		p.mu.Unlock()
		p.events.Error(otel.KindStatusError, "status", err)
		return
	}
	changed := !p.replied || st != p.latest
	p.latest = st
	p.replied = true
	p.mu.Unlock()

	if !changed {
		return
	}
	p.events.Emit(otel.Event{
		Level: otel.LevelDebug,
		Kind:  otel.KindStatusChanged,
		Comp:  "status",
		Extra: map[string]any{"worker_busy": st.Worker.IsWorking},
	})
	if p.onChange != nil {
		p.onChange(st)
	}
}

// Latest returns the last status received and whether any poll succeeded.
func (p *Poller) Latest() (sample.Status, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest, p.replied
}

// Retry clears the error flag. The next poll sets it again if the server
// still fails.
func (p *Poller) Retry() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = false
}

// Loading reports whether no poll has succeeded yet.
func (p *Poller) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.replied
}

// Failed reports the sticky error flag.
func (p *Poller) Failed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failed
}
