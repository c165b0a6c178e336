// Package stream owns the append-only sequence of samples under review.
//
// A Stream fetches samples one at a time from the remote service, applies
// label patches optimistically, and tracks the loading and sticky error
// flags the screen renders from. All mutation goes through Stream methods
// under one lock; readers get copies.
//
// Teardown is discard-only: Close bumps a generation counter and every
// in-flight completion checks it before touching state. Network calls are
// not aborted.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/JackEngelmann/nlpanno/internal/fetch"
	"github.com/JackEngelmann/nlpanno/internal/otel"
	"github.com/JackEngelmann/nlpanno/internal/sample"
)

var (
	// ErrClosed is returned by operations on a closed stream and by
	// completions that resolved after Close.
	ErrClosed = errors.New("stream: closed")
	// ErrUnknownSample is returned by Patch for an id not in the stream.
	ErrUnknownSample = errors.New("stream: unknown sample")
	// ErrDuplicate is returned by LoadNext when the service hands out a
	// sample the stream already holds. Nothing is appended.
	ErrDuplicate = errors.New("stream: sample already in stream")
)

// loadKey is the singleflight key for tail fetches. One key per stream:
// every LoadNext shares the in-flight fetch.
const loadKey = "next"

// Service is the part of the remote sample service a stream consumes.
// *fetch.Client satisfies it.
type Service interface {
	NextSample(ctx context.Context, taskID string) (sample.Sample, error)
	PatchSample(ctx context.Context, id string, delta sample.LabelDelta) (sample.Sample, error)
}

// State is a snapshot of the stream. Samples is a copy.
type State struct {
	Samples       []sample.Sample
	IsLoading     bool // empty and the seed fetch has not resolved
	ErrorOccurred bool // sticky until Retry
	Exhausted     bool // the service has no sample left
}

// Option configures a Stream.
type Option func(*Stream)

// WithEvents routes stream events to l.
func WithEvents(l *otel.Logger) Option {
	return func(s *Stream) { s.events = l }
}

// Stream is the sample sequence for one task. Safe for concurrent use.
type Stream struct {
	svc    Service
	taskID string
	events *otel.Logger // optional
	loads  singleflight.Group

	mu            sync.Mutex
	samples       []sample.Sample
	seeded        bool // a load has resolved since the stream was last empty
	errorOccurred bool
	exhausted     bool
	closed        bool
	gen           uint64
}

// New creates an empty stream reading from svc. An empty taskID uses the
// service's single-task endpoints.
func New(svc Service, taskID string, opts ...Option) *Stream {
	s := &Stream{svc: svc, taskID: taskID}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadNext fetches one sample and appends it to the tail.
//
// Calls that overlap an in-flight fetch share it: N overlapping calls cause
// one request and one append, and all of them return the same sample. A
// caller whose ctx ends stops waiting, but the shared fetch still resolves
// and appends.
//
// Returns fetch.ErrExhausted when the service has nothing left; that sets
// Exhausted, not the error flag.
func (s *Stream) LoadNext(ctx context.Context) (sample.Sample, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return sample.Sample{}, ErrClosed
	}
	gen := s.gen
	s.mu.Unlock()

	fetchCtx := context.WithoutCancel(ctx)
	ch := s.loads.DoChan(loadKey, func() (any, error) {
		return s.fetchNext(fetchCtx, gen)
	})

	select {
	case res := <-ch:
		if res.Shared {
			s.events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindLoadCoalesced, Comp: "stream", TaskID: s.taskID})
		}
		if res.Err != nil {
			return sample.Sample{}, res.Err
		}
		return res.Val.(sample.Sample), nil
	case <-ctx.Done():
		return sample.Sample{}, ctx.Err()
	}
}

// fetchNext performs one tail fetch and applies its outcome if the stream is
// still on generation gen.
func (s *Stream) fetchNext(ctx context.Context, gen uint64) (sample.Sample, error) {
	start := time.Now()
	s.events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindLoadStart, Comp: "stream", TaskID: s.taskID})

	next, err := s.svc.NextSample(ctx, s.taskID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.gen != gen {
		s.events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindLoadDiscarded, Comp: "stream", TaskID: s.taskID, Dur: time.Since(start)})
		return sample.Sample{}, ErrClosed
	}
	s.seeded = true

	switch {
	case errors.Is(err, fetch.ErrExhausted):
		s.exhausted = true
		s.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindExhausted, Comp: "stream", TaskID: s.taskID, Count: len(s.samples)})
		return sample.Sample{}, err
	case err != nil:
		s.errorOccurred = true
		s.events.Emit(otel.Event{Level: otel.LevelError, Kind: otel.KindLoadError, Comp: "stream", TaskID: s.taskID, Err: err.Error(), Dur: time.Since(start)})
		return sample.Sample{}, fmt.Errorf("stream: load next: %w", err)
	}

	if s.indexOf(next.ID) >= 0 {
		s.events.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindLoadDiscarded, Comp: "stream", TaskID: s.taskID, SampleID: next.ID, Msg: "duplicate"})
		return sample.Sample{}, fmt.Errorf("%w: %s", ErrDuplicate, next.ID)
	}

	s.samples = append(s.samples, next)
	s.events.Emit(otel.Event{
		Level:    otel.LevelInfo,
		Kind:     otel.KindLoadComplete,
		Comp:     "stream",
		TaskID:   s.taskID,
		SampleID: next.ID,
		Count:    len(s.samples),
		Dur:      time.Since(start),
	})
	return next, nil
}

// Patch persists a label change for the sample with the given id.
//
// The delta is applied to the local entry before the request is sent. When
// the service answers, its sample replaces the entry, so the response that
// arrives last wins. A failed patch sets the error flag and leaves the
// optimistic label in place.
func (s *Stream) Patch(ctx context.Context, id string, delta sample.LabelDelta) (sample.Sample, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return sample.Sample{}, ErrClosed
	}
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return sample.Sample{}, fmt.Errorf("%w: %s", ErrUnknownSample, id)
	}
	s.samples[idx] = delta.Apply(s.samples[idx])
	gen := s.gen
	s.mu.Unlock()

	start := time.Now()
	s.events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindPatchStart, Comp: "stream", TaskID: s.taskID, SampleID: id})

	confirmed, err := s.svc.PatchSample(ctx, id, delta)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.gen != gen {
		s.events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindPatchDiscarded, Comp: "stream", TaskID: s.taskID, SampleID: id})
		return sample.Sample{}, ErrClosed
	}
	if err == nil && confirmed.ID != id {
		err = fmt.Errorf("service answered with sample %q", confirmed.ID)
	}
	if err != nil {
		s.errorOccurred = true
		s.events.Emit(otel.Event{Level: otel.LevelError, Kind: otel.KindPatchError, Comp: "stream", TaskID: s.taskID, SampleID: id, Err: err.Error()})
		return sample.Sample{}, fmt.Errorf("stream: patch %s: %w", id, err)
	}

	// Entries are never removed, so idx is still the entry for id.
	s.samples[idx] = confirmed
	s.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindPatchComplete, Comp: "stream", TaskID: s.taskID, SampleID: id, Dur: time.Since(start)})
	return confirmed, nil
}

// Retry clears the error and exhausted flags and loads the next sample.
// It is the only way the error flag is cleared.
func (s *Stream) Retry(ctx context.Context) (sample.Sample, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return sample.Sample{}, ErrClosed
	}
	s.errorOccurred = false
	s.exhausted = false
	if len(s.samples) == 0 {
		s.seeded = false
	}
	s.mu.Unlock()

	return s.LoadNext(ctx)
}

// State returns a snapshot of the stream.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	samples := make([]sample.Sample, len(s.samples))
	copy(samples, s.samples)
	return State{
		Samples:       samples,
		IsLoading:     len(s.samples) == 0 && !s.seeded,
		ErrorOccurred: s.errorOccurred,
		Exhausted:     s.exhausted,
	}
}

// Len returns the number of fetched samples.
func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

// At returns the sample at index i.
func (s *Stream) At(i int) (sample.Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.samples) {
		return sample.Sample{}, false
	}
	return s.samples[i], true
}

// Loading reports whether the seed fetch is still pending.
func (s *Stream) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples) == 0 && !s.seeded
}

// Failed reports the sticky error flag.
func (s *Stream) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorOccurred
}

// Close tears the stream down. Completions still in flight are discarded.
// Idempotent.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.gen++
}

func (s *Stream) indexOf(id string) int {
	for i := range s.samples {
		if s.samples[i].ID == id {
			return i
		}
	}
	return -1
}
