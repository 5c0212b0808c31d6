package hostlib

import (
	"context"
	"sort"
	"time"

	"github.com/davidmdm/x/xerr"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/value"
)

type task struct {
	fn value.Callable
	id int32
}

type timer struct {
	task
	due time.Duration
}

// Scheduler queues guest callbacks for animation frames and timers. Time is
// virtual: it only moves when the host calls Advance.
type Scheduler struct {
	frames []task
	timers []timer
	clock  time.Duration
	nextID int32
}

// NewScheduler creates a scheduler at time zero
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

func (s *Scheduler) id() int32 {
	s.nextID++
	return s.nextID
}

// Now returns the virtual time elapsed since creation
func (s *Scheduler) Now() time.Duration {
	return s.clock
}

// RequestFrame queues fn for the next RunFrame and returns its id.
func (s *Scheduler) RequestFrame(fn value.Callable) int32 {
	id := s.id()
	s.frames = append(s.frames, task{fn: fn, id: id})
	return id
}

// CancelFrame removes a queued frame callback. Unknown ids are ignored.
func (s *Scheduler) CancelFrame(id int32) {
	for i, t := range s.frames {
		if t.id == id {
			s.frames = append(s.frames[:i], s.frames[i+1:]...)
			return
		}
	}
}

// SetTimeout queues fn to run once the clock reaches now+delay.
func (s *Scheduler) SetTimeout(fn value.Callable, delay time.Duration) int32 {
	if delay < 0 {
		delay = 0
	}
	id := s.id()
	s.timers = append(s.timers, timer{task: task{fn: fn, id: id}, due: s.clock + delay})
	return id
}

// ClearTimeout cancels a pending timer. Unknown ids are ignored.
func (s *Scheduler) ClearTimeout(id int32) {
	for i, t := range s.timers {
		if t.id == id {
			s.timers = append(s.timers[:i], s.timers[i+1:]...)
			return
		}
	}
}

// Pending returns the number of queued frame callbacks and timers
func (s *Scheduler) Pending() (frames, timers int) {
	return len(s.frames), len(s.timers)
}

// RunFrame runs the frame callbacks queued before the call, passing the
// current time in milliseconds. Callbacks requested while the frame runs
// wait for the next frame. Every callback runs even if an earlier one
// fails.
func (s *Scheduler) RunFrame(ctx context.Context) error {
	batch := s.frames
	s.frames = nil
	if len(batch) == 0 {
		return nil
	}

	stamp := value.Number(millis(s.clock))
	errs := make([]error, 0, len(batch))
	for _, t := range batch {
		if _, err := t.fn.Call(ctx, stamp); err != nil {
			Logger().Debug("frame callback failed", zap.Int32("id", t.id), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return xerr.MultiErrOrderedFrom("frame callbacks", errs...)
}

// Advance moves the clock forward by d and runs every timer that became
// due, earliest first. Timers scheduled by callbacks run in the same call
// when they fall due before the new time.
func (s *Scheduler) Advance(ctx context.Context, d time.Duration) error {
	if d > 0 {
		s.clock += d
	}

	var errs []error
	for {
		t, ok := s.popDue()
		if !ok {
			break
		}
		if _, err := t.fn.Call(ctx); err != nil {
			Logger().Debug("timer callback failed", zap.Int32("id", t.id), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return xerr.MultiErrOrderedFrom("timer callbacks", errs...)
}

func (s *Scheduler) popDue() (timer, bool) {
	if len(s.timers) == 0 {
		return timer{}, false
	}
	sort.SliceStable(s.timers, func(i, j int) bool {
		return s.timers[i].due < s.timers[j].due
	})
	t := s.timers[0]
	if t.due > s.clock {
		return timer{}, false
	}
	s.timers = s.timers[1:]
	return t, true
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
