// Package scheduler runs background work on a bounded pool of workers, now,
// after a delay or periodically.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned when scheduling on a closed Scheduler.
var ErrClosed = errors.New("scheduler closed")

type Opt func(*Scheduler)

func WithLogger(logger *zap.Logger) Opt {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func WithClock(clock clockwork.Clock) Opt {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

// WithWorkers limits how many tasks run at the same time.
func WithWorkers(n int) Opt {
	return func(s *Scheduler) {
		s.workers = n
	}
}

// Scheduler runs tasks until it is closed. Tasks receive a context that is
// canceled by Close.
type Scheduler struct {
	logger  *zap.Logger
	clock   clockwork.Clock
	workers int

	ctx    context.Context
	cancel context.CancelFunc
	eg     errgroup.Group

	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
	tasks   map[*Task]struct{}
}

func New(opts ...Opt) *Scheduler {
	s := &Scheduler{
		logger:  zap.NewNop(),
		clock:   clockwork.NewRealClock(),
		workers: 16,
		tasks:   map[*Task]struct{}{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.eg.SetLimit(max(s.workers, 1))
	return s
}

// Clock used for delays.
func (s *Scheduler) Clock() clockwork.Clock { return s.clock }

// Go runs fn on the next free worker. It never blocks the caller.
func (s *Scheduler) Go(fn func(context.Context)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.pending.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.pending.Done()
		s.eg.Go(func() error {
			if s.ctx.Err() == nil {
				fn(s.ctx)
			}
			return nil
		})
	}()
	return nil
}

// Task is a delayed or periodic task.
type Task struct {
	s      *Scheduler
	stop   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	timer  clockwork.Timer
	period time.Duration
}

// Cancel prevents future runs. A run that already started is not interrupted.
func (t *Task) Cancel() {
	t.finish()
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.mu.Unlock()
}

func (t *Task) finish() {
	t.once.Do(func() {
		close(t.stop)
		t.s.mu.Lock()
		delete(t.s.tasks, t)
		t.s.mu.Unlock()
	})
}

func (s *Scheduler) register(t *Task, loop bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.tasks[t] = struct{}{}
	if loop {
		s.pending.Add(1)
	}
	return nil
}

// AfterFunc runs fn once after d.
func (s *Scheduler) AfterFunc(d time.Duration, fn func(context.Context)) (*Task, error) {
	t := &Task{s: s, stop: make(chan struct{})}
	if err := s.register(t, false); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timer = s.clock.AfterFunc(d, func() {
		select {
		case <-t.stop:
			return
		default:
		}
		t.finish()
		if err := s.Go(fn); err != nil {
			s.logger.Debug("delayed task dropped", zap.Error(err))
		}
	})
	return t, nil
}

// Every runs fn every period until the task is canceled or the scheduler
// closed. Runs of the same task never overlap.
func (s *Scheduler) Every(period time.Duration, fn func(context.Context)) (*Task, error) {
	t := &Task{s: s, stop: make(chan struct{}), period: period}
	if err := s.register(t, true); err != nil {
		return nil, err
	}
	go func() {
		defer s.pending.Done()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-t.stop:
				return
			case <-s.clock.After(t.period):
			}
			done := make(chan struct{})
			if err := s.Go(func(ctx context.Context) {
				defer close(done)
				fn(ctx)
			}); err != nil {
				return
			}
			select {
			case <-done:
			case <-s.ctx.Done():
				return
			}
		}
	}()
	return t, nil
}

// Close cancels all tasks and waits for running ones to return.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	tasks := make([]*Task, 0, len(s.tasks))
	for t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	s.cancel()
	for _, t := range tasks {
		t.Cancel()
	}
	s.pending.Wait()
	_ = s.eg.Wait()
}
