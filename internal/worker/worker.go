// Package worker runs long lived goroutines that share a single stop signal.
package worker

import "sync"

// Worker is a long running job.
type Worker interface {
	// Run is a blocking method that usually contains a for/select loop.
	// It must return soon after stopC is closed.
	Run(stopC chan struct{})
}

// Func adapts a function to the Worker interface.
type Func func(stopC chan struct{})

// Run calls f.
func (f Func) Run(stopC chan struct{}) { f(stopC) }

// Workers is a group of running Workers. The zero value is ready to use.
type Workers struct {
	mu      sync.Mutex
	stopC   chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

// StartWithOnFinishHandler starts r in a new goroutine and calls onFinish after Run returns.
// Returns false if the group is already stopped.
func (w *Workers) StartWithOnFinishHandler(r Worker, onFinish func()) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}
	if w.stopC == nil {
		w.stopC = make(chan struct{})
	}
	stopC := w.stopC
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		r.Run(stopC)
		if onFinish != nil {
			onFinish()
		}
	}()
	return true
}

// Start r in a new goroutine.
func (w *Workers) Start(r Worker) bool {
	return w.StartWithOnFinishHandler(r, nil)
}

// Stop signals all workers and waits until they return.
func (w *Workers) Stop() {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		if w.stopC != nil {
			close(w.stopC)
		}
	}
	w.mu.Unlock()
	w.wg.Wait()
}
