package gossip

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Cancelable is a handle to a scheduled task.
type Cancelable interface {
	// Cancel cancels the task. Cancelling is best effort, so a task that is
	// already running will complete.
	Cancel()
}

// Scheduler schedules tasks to run on the protocol event loop.
//
// Tasks never run concurrently with one another, so protocol state owned by
// the event loop doesn't need locking.
type Scheduler interface {
	// Submit runs f on the event loop as soon as possible.
	Submit(f func())

	// Schedule runs f on the event loop after the given delay.
	Schedule(delay time.Duration, f func()) Cancelable

	// ScheduleWithFixedDelay runs f after initialDelay, then repeatedly with
	// delay between the end of one run and the start of the next.
	ScheduleWithFixedDelay(initialDelay, delay time.Duration, f func()) Cancelable

	// Shutdown stops the event loop. Pending tasks are discarded.
	Shutdown()
}

// loopScheduler runs tasks on a single goroutine.
type loopScheduler struct {
	tasks chan func()

	closed     *atomic.Bool
	shutdownCh chan struct{}
	doneCh     chan struct{}
}

func newLoopScheduler() *loopScheduler {
	s := &loopScheduler{
		tasks:      make(chan func(), 1024),
		closed:     atomic.NewBool(false),
		shutdownCh: make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *loopScheduler) Submit(f func()) {
	select {
	case s.tasks <- f:
	case <-s.shutdownCh:
	}
}

func (s *loopScheduler) Schedule(delay time.Duration, f func()) Cancelable {
	task := &scheduledTask{
		canceled: atomic.NewBool(false),
	}
	task.timer = time.AfterFunc(delay, func() {
		s.Submit(func() {
			if task.canceled.Load() {
				return
			}
			f()
		})
	})
	return task
}

func (s *loopScheduler) ScheduleWithFixedDelay(
	initialDelay, delay time.Duration, f func(),
) Cancelable {
	task := &repeatingTask{
		canceled: atomic.NewBool(false),
	}
	var next func(d time.Duration)
	next = func(d time.Duration) {
		task.mu.Lock()
		defer task.mu.Unlock()

		if task.canceled.Load() {
			return
		}
		task.timer = time.AfterFunc(d, func() {
			s.Submit(func() {
				if task.canceled.Load() {
					return
				}
				f()
				next(delay + jitter(delay))
			})
		})
	}
	next(initialDelay)
	return task
}

// Shutdown stops the event loop and waits for any running task to return.
func (s *loopScheduler) Shutdown() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	close(s.shutdownCh)
	<-s.doneCh
}

func (s *loopScheduler) run() {
	defer close(s.doneCh)

	for {
		select {
		case f := <-s.tasks:
			f()
		case <-s.shutdownCh:
			return
		}
	}
}

type scheduledTask struct {
	timer    *time.Timer
	canceled *atomic.Bool
}

func (t *scheduledTask) Cancel() {
	t.canceled.Store(true)
	t.timer.Stop()
}

type repeatingTask struct {
	timer    *time.Timer
	canceled *atomic.Bool

	// mu protects timer.
	mu sync.Mutex
}

func (t *repeatingTask) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.canceled.Store(true)
	if t.timer != nil {
		t.timer.Stop()
	}
}

// jitter returns a random duration up to 10% of the interval.
func jitter(interval time.Duration) time.Duration {
	if interval.Milliseconds() <= 0 {
		return 0
	}
	jitterMs := (rand.Int63() % interval.Milliseconds()) / 10
	return time.Duration(jitterMs) * time.Millisecond
}

var _ Scheduler = &loopScheduler{}
