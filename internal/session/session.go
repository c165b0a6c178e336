// Package session ties one task's review state together: the task config,
// the sample stream, the cursor and the server status poller.
//
// A Session is the single owner of that state. The UI reads it through
// accessors and changes it only through Session methods.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JackEngelmann/nlpanno/internal/fetch"
	"github.com/JackEngelmann/nlpanno/internal/logging"
	"github.com/JackEngelmann/nlpanno/internal/otel"
	"github.com/JackEngelmann/nlpanno/internal/ranking"
	"github.com/JackEngelmann/nlpanno/internal/sample"
	"github.com/JackEngelmann/nlpanno/internal/selection"
	"github.com/JackEngelmann/nlpanno/internal/status"
	"github.com/JackEngelmann/nlpanno/internal/stream"
)

// ErrNoTask is returned by Ranked before the task config has loaded.
var ErrNoTask = errors.New("session: task config not loaded")

// Service is everything a session needs from the remote sample service.
// *fetch.Client satisfies it.
type Service interface {
	stream.Service
	status.Fetcher
	TaskConfig(ctx context.Context, taskID string) (sample.AnnotationTask, error)
}

// Options configure a Session.
type Options struct {
	TaskID       string
	PollInterval time.Duration
	// OnChange is called from background goroutines whenever session state
	// may have changed (patch or fetch resolved, status changed). Optional.
	OnChange func()
	// OnStatus receives each changed server status. Optional.
	OnStatus func(sample.Status)
	Events   *otel.Logger
}

// Session is one task's review session. Safe for concurrent use.
type Session struct {
	svc    Service
	opts   Options
	stream *stream.Stream
	poller *status.Poller

	ctx    context.Context // session lifetime; cancelled by Close
	cancel context.CancelFunc
	wg     sync.WaitGroup // background patches and fetches

	mu         sync.Mutex
	task       sample.AnnotationTask
	taskLoaded bool
	taskFailed bool
	cursor     selection.Cursor
	closed     bool
}

// New creates a session. Call Open to load it.
func New(svc Service, opts Options) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		svc:    svc,
		opts:   opts,
		stream: stream.New(svc, opts.TaskID, stream.WithEvents(opts.Events)),
		ctx:    ctx,
		cancel: cancel,
	}
	s.poller = status.NewPoller(svc, opts.PollInterval, func(st sample.Status) {
		if opts.OnStatus != nil {
			opts.OnStatus(st)
		}
		s.notify()
	}, opts.Events)
	return s
}

// Open loads the task config, seeds the stream and polls the server status
// concurrently, then starts periodic status polling. It returns the first failure; the session stays usable
// and the failure is also reflected in Readiness.
func (s *Session) Open(ctx context.Context) error {
	var g errgroup.Group

	g.Go(func() error {
		return s.loadTask(ctx)
	})
	g.Go(func() error {
		_, err := s.stream.LoadNext(ctx)
		if errors.Is(err, fetch.ErrExhausted) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		s.poller.Poll(ctx)
		return nil // status failures show through Readiness only
	})

	err := g.Wait()
	s.poller.Start(s.ctx)
	s.notify()
	return err
}

func (s *Session) loadTask(ctx context.Context) error {
	task, err := s.svc.TaskConfig(ctx, s.opts.TaskID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stream.ErrClosed
	}
	if err != nil {
		s.taskFailed = true
		s.opts.Events.Emit(otel.Event{Level: otel.LevelError, Kind: otel.KindTaskError, Comp: "session", TaskID: s.opts.TaskID, Err: err.Error()})
		logging.Error("Task config failed", "task", s.opts.TaskID, "error", err)
		return fmt.Errorf("session: load task: %w", err)
	}
	s.task = task
	s.taskLoaded = true
	s.taskFailed = false
	s.opts.Events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindTaskLoaded, Comp: "session", TaskID: task.ID, Count: len(task.TextClasses)})
	logging.Info("Task loaded", "task", task.ID, "classes", len(task.TextClasses))
	return nil
}

// Task returns the task config and whether it has loaded.
func (s *Session) Task() (sample.AnnotationTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task, s.taskLoaded
}

// State returns a snapshot of the stream.
func (s *Session) State() stream.State {
	return s.stream.State()
}

// Current returns the sample under the cursor.
func (s *Session) Current() (sample.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked()
}

func (s *Session) currentLocked() (sample.Sample, error) {
	if s.stream.Len() == 0 {
		return sample.Sample{}, selection.ErrEmpty
	}
	cur, ok := s.stream.At(s.cursor.Index())
	if !ok {
		return sample.Sample{}, selection.ErrOutOfRange
	}
	return cur, nil
}

// Ranked returns the task's classes for the current sample, most confident
// first.
func (s *Session) Ranked() ([]ranking.ClassPrediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.taskLoaded {
		return nil, ErrNoTask
	}
	cur, err := s.currentLocked()
	if err != nil {
		return nil, err
	}
	return ranking.Rank(cur, s.task), nil
}

// Position returns the cursor index and the number of fetched samples.
func (s *Session) Position() (index, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor.Index(), s.stream.Len()
}

// IsFirst reports whether the cursor is at the first sample.
func (s *Session) IsFirst() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor.IsFirst()
}

// IsLast reports whether the cursor is at the last fetched sample.
func (s *Session) IsLast() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor.IsLast(s.stream.Len())
}

// Advancing reports whether an advance is waiting for a tail fetch.
func (s *Session) Advancing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor.Armed()
}

// Next moves to the next fetched sample.
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cursor.Next(s.stream.Len()); err != nil {
		return err
	}
	s.opts.Events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindNavNext, Comp: "session", Count: s.cursor.Index()})
	return nil
}

// Previous moves to the previous sample.
func (s *Session) Previous() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cursor.Previous(); err != nil {
		return err
	}
	s.opts.Events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindNavPrevious, Comp: "session", Count: s.cursor.Index()})
	return nil
}

// Select labels the current sample with class and moves on. It returns as
// soon as the cursor has moved (or, at the tail, the advance is armed); the
// patch and the tail fetch run in the background and report through
// OnChange.
func (s *Session) Select(class sample.TextClass) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return stream.ErrClosed
	}
	cur, err := s.currentLocked()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	advanced := s.cursor.ArmAdvance(s.stream.Len())
	s.goLocked(func() {
		if _, err := s.stream.Patch(s.ctx, cur.ID, sample.Label(class)); err != nil && !errors.Is(err, stream.ErrClosed) {
			logging.Warn("Label update failed", "sample", cur.ID, "class", class.Name, "error", err)
		}
	})
	if !advanced {
		s.goLocked(s.extend)
	}
	s.mu.Unlock()

	kind := otel.KindNavNext
	if !advanced {
		kind = otel.KindNavArmed
	}
	s.opts.Events.Emit(otel.Event{Level: otel.LevelDebug, Kind: kind, Comp: "session", SampleID: cur.ID})
	return nil
}

// ClearLabel removes the label of the current sample. The cursor stays.
func (s *Session) ClearLabel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stream.ErrClosed
	}
	cur, err := s.currentLocked()
	if err != nil {
		return err
	}
	s.goLocked(func() {
		if _, err := s.stream.Patch(s.ctx, cur.ID, sample.ClearLabel()); err != nil && !errors.Is(err, stream.ErrClosed) {
			logging.Warn("Label removal failed", "sample", cur.ID, "error", err)
		}
	})
	return nil
}

// extend fetches the next sample and settles an armed advance.
func (s *Session) extend() {
	_, err := s.stream.LoadNext(s.ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.cursor.Disarm()
		switch {
		case errors.Is(err, fetch.ErrExhausted):
			logging.Info("No samples left", "task", s.opts.TaskID)
		case errors.Is(err, stream.ErrClosed), errors.Is(err, context.Canceled):
		default:
			logging.Warn("Fetching next sample failed", "task", s.opts.TaskID, "error", err)
		}
		return
	}
	s.cursor.Settle(s.stream.Len())
}

// Retry reloads whatever failed: the task config, the stream's tail and
// the status poller's error flag.
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	taskFailed := s.taskFailed || !s.taskLoaded
	s.mu.Unlock()

	var g errgroup.Group
	if taskFailed {
		g.Go(func() error { return s.loadTask(ctx) })
	}
	st := s.stream.State()
	if st.ErrorOccurred || st.Exhausted || len(st.Samples) == 0 {
		g.Go(func() error {
			_, err := s.stream.Retry(ctx)
			if errors.Is(err, fetch.ErrExhausted) {
				return nil
			}
			return err
		})
	}
	s.poller.Retry()

	err := g.Wait()
	s.mu.Lock()
	s.cursor.Settle(s.stream.Len())
	s.mu.Unlock()
	s.notify()
	return err
}

// Readiness combines the task config, stream and status poller flags.
func (s *Session) Readiness() status.Readiness {
	s.mu.Lock()
	task := status.Flags{
		IsLoading:     !s.taskLoaded && !s.taskFailed,
		ErrorOccurred: s.taskFailed,
	}
	s.mu.Unlock()
	return status.Combine(task, s.stream, s.poller)
}

// ServerStatus returns the latest polled server status.
func (s *Session) ServerStatus() (sample.Status, bool) {
	return s.poller.Latest()
}

// Wait blocks until background patches and fetches have finished.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close tears down the stream and the poller together. Results still in
// flight are discarded. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.stream.Close()
	s.cancel()
	s.poller.Wait()
	s.wg.Wait()
}

// goLocked runs fn in the background. The caller holds s.mu and has checked
// that the session is open, so Close cannot start waiting mid-Add.
func (s *Session) goLocked(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
		s.notify()
	}()
}

func (s *Session) notify() {
	if s.opts.OnChange != nil {
		s.opts.OnChange()
	}
}
