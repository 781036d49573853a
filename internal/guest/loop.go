package guest

import "sync"

// Loop is a minimal host: a single-goroutine run loop pumping scheduled
// callbacks. It drives the scheduler headless, in tests and anywhere no
// UI loop exists.
type Loop struct {
	mu    sync.Mutex
	queue []func()

	wake chan struct{}
	stop chan struct{}
	once sync.Once
	err  error
}

func NewLoop() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
}

// Schedule enqueues fn for the next pump. Safe from any goroutine and
// never blocks the caller.
func (l *Loop) Schedule(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// ScheduleNow shares the Schedule implementation; the queue is cheap
// enough that the same-goroutine variant needs no separate path.
func (l *Loop) ScheduleNow(fn func()) { l.Schedule(fn) }

// Finished records the guest run outcome and stops the loop.
func (l *Loop) Finished(err error) {
	l.once.Do(func() {
		l.err = err
		close(l.stop)
	})
}

// Run pumps callbacks on the calling goroutine until the guest run ends,
// then returns its outcome.
func (l *Loop) Run() error {
	for {
		for _, fn := range l.take() {
			fn()
		}
		select {
		case <-l.wake:
		case <-l.stop:
			// run anything scheduled before the guest ended
			for _, fn := range l.take() {
				fn()
			}
			return l.err
		}
	}
}

func (l *Loop) take() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	queue := l.queue
	l.queue = nil
	return queue
}
