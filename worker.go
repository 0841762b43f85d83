package nrf70

import "sync"

// worker runs a function on its own goroutine each time it is scheduled,
// standing in for the deferred-work units of an in-kernel driver.
// Scheduling while a run is pending or in progress coalesces into at most
// one further run.
type worker struct {
	fn   func()
	kick chan struct{}
	done chan struct{}

	mu     sync.Mutex
	killed bool
}

func newWorker(fn func()) *worker {
	w := &worker{
		fn:   fn,
		kick: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *worker) run() {
	defer close(w.done)
	for range w.kick {
		w.fn()
	}
}

// schedule requests one run of the worker. Never blocks; a no-op after
// kill.
func (w *worker) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.killed {
		return
	}
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// kill stops the worker and waits for it to finish. A run scheduled
// before kill still executes before kill returns. Safe to call more than
// once.
func (w *worker) kill() {
	w.mu.Lock()
	if !w.killed {
		w.killed = true
		close(w.kick)
	}
	w.mu.Unlock()
	<-w.done
}
