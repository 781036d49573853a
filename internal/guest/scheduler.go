// Package guest implements a cooperative task runtime that runs inside a
// host event loop it does not control. The scheduler never pumps
// callbacks itself: it hands them to the host and relies on the host to
// run them on its loop goroutine. Tasks execute on their own goroutines
// but marshal every shared mutation back onto the host loop through
// OnHost, which keeps the single-writer discipline of the application
// state without ever blocking the loop.
package guest

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Host is the event loop the scheduler is embedded into.
type Host interface {
	// Schedule enqueues fn to run on the host loop goroutine. It must be
	// safe to call from any goroutine.
	Schedule(fn func())
	// ScheduleNow enqueues fn from the host loop goroutine itself. Hosts
	// with a cheaper same-goroutine path can exploit it; others may alias
	// Schedule.
	ScheduleNow(fn func())
	// Finished reports the end of the guest run. It is called exactly
	// once, from an arbitrary goroutine; the host must marshal it onto
	// its loop and then stop itself.
	Finished(err error)
}

// Task is a unit of cooperative work. The context is cancelled when the
// guest run shuts down.
type Task func(ctx context.Context) error

// ErrNotRunning rejects operations outside the running phase: spawning
// before the attach handshake completed, or after shutdown.
var ErrNotRunning = errors.New("scheduler is not running")

// TaskError wraps a failure contained by task isolation. It is logged and
// never propagates: sibling tasks and the scheduler keep running.
type TaskError struct {
	Task  string
	Cause error
}

func (e *TaskError) Error() string { return fmt.Sprintf("task %s: %v", e.Task, e.Cause) }
func (e *TaskError) Unwrap() error { return e.Cause }

type phase int

const (
	phaseIdle phase = iota
	phaseAttaching
	phaseRunning
	phaseCancelling
	phaseFinished
)

func (p phase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseAttaching:
		return "attaching"
	case phaseRunning:
		return "running"
	case phaseCancelling:
		return "cancelling"
	case phaseFinished:
		return "finished"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Scheduler runs tasks as a guest of a Host. The zero value is not
// usable; construct with New.
type Scheduler struct {
	log zerolog.Logger

	mu     sync.Mutex
	phase  phase
	host   Host
	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup
	done   sync.Once
}

func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{log: log}
}

// Attach begins the guest run inside host. It performs a startup
// handshake through ScheduleNow: only once the host has pumped that
// callback is the scheduler running and Spawn legal. Attaching a
// scheduler that already ran, or is running, is an error.
func (s *Scheduler) Attach(host Host) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != phaseIdle {
		return fmt.Errorf("attach: scheduler already %s", s.phase)
	}
	s.phase = phaseAttaching
	s.host = host
	s.ctx, s.cancel = context.WithCancel(context.Background())
	host.ScheduleNow(s.handshake)
	return nil
}

func (s *Scheduler) handshake() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != phaseAttaching {
		// shutdown raced the handshake; the run is already ending
		return
	}
	s.phase = phaseRunning
	s.log.Debug().Msg("guest run started")
}

// Spawn starts task concurrently with all other spawned tasks. Each task
// is isolated: an error or panic is logged and ends only that task,
// never its siblings or the run itself.
func (s *Scheduler) Spawn(name string, task Task) error {
	s.mu.Lock()
	if s.phase != phaseRunning {
		s.mu.Unlock()
		return fmt.Errorf("spawn %q: %w", name, ErrNotRunning)
	}
	ctx := s.ctx
	s.tasks.Add(1)
	s.mu.Unlock()

	log := s.log.With().Str("task", name).Str("task_id", uuid.New().String()).Logger()
	go func() {
		defer s.tasks.Done()
		defer func() {
			if r := recover(); r != nil {
				err := &TaskError{Task: name, Cause: fmt.Errorf("panic: %v", r)}
				log.Error().Err(err).Bytes("stack", debug.Stack()).Msg("task panicked")
			}
		}()
		log.Debug().Msg("task started")
		err := task(ctx)
		switch {
		case err == nil:
			log.Debug().Msg("task finished")
		case errors.Is(err, context.Canceled):
			log.Debug().Msg("task cancelled")
		default:
			log.Error().Err(&TaskError{Task: name, Cause: err}).Msg("task failed")
		}
	}()
	return nil
}

// OnHost runs fn on the host loop goroutine and waits for it to finish.
// A cancelled ctx abandons the wait, not the call: once scheduled, fn
// still runs whenever the host pumps it.
func (s *Scheduler) OnHost(ctx context.Context, fn func()) error {
	s.mu.Lock()
	host := s.host
	live := s.phase == phaseRunning || s.phase == phaseCancelling
	s.mu.Unlock()
	if !live {
		return ErrNotRunning
	}
	done := make(chan struct{})
	host.Schedule(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels the top-level scope. Every outstanding task receives
// context cancellation; once all have drained, the host's Finished
// callback fires exactly once. Further Shutdown calls are no-ops.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if s.phase != phaseAttaching && s.phase != phaseRunning {
		s.mu.Unlock()
		return
	}
	s.phase = phaseCancelling
	cancel := s.cancel
	s.mu.Unlock()

	s.log.Debug().Msg("guest run cancelling")
	cancel()
	go s.finish(nil)
}

// finish drains outstanding tasks, then reports the end of the run.
func (s *Scheduler) finish(cause error) {
	s.tasks.Wait()
	s.done.Do(func() {
		s.mu.Lock()
		s.phase = phaseFinished
		host := s.host
		s.mu.Unlock()
		if cause != nil {
			s.log.Error().Err(cause).Msg("guest run failed")
		} else {
			s.log.Debug().Msg("guest run finished")
		}
		host.Finished(cause)
	})
}
