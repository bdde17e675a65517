// Package eventloop runs callbacks one at a time on a single goroutine.
//
// Every callback of peers, their connections and timers is posted to the loop of
// the owning torrent, so torrent state is only touched from that goroutine.
package eventloop

import (
	"sync"
	"time"
)

// Scheduler creates timers whose callbacks run on the loop.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable delayed callback.
// Stop and Reset must be called from the loop goroutine.
type Timer interface {
	// Stop prevents the callback from running. A callback that is already
	// waiting in the loop queue is discarded as well.
	Stop()
	// Reset schedules the callback to run after d, cancelling any pending run.
	Reset(d time.Duration)
}

// Loop executes posted functions sequentially.
type Loop struct {
	funcC     chan func()
	closeC    chan struct{}
	doneC     chan struct{}
	closeOnce sync.Once
}

var _ Scheduler = (*Loop)(nil)

// New returns a new Loop. Run must be called to start processing.
func New() *Loop {
	return &Loop{
		funcC:  make(chan func()),
		closeC: make(chan struct{}),
		doneC:  make(chan struct{}),
	}
}

// Run processes posted functions until Close is called.
func (l *Loop) Run() {
	defer close(l.doneC)
	for {
		select {
		case f := <-l.funcC:
			f()
		case <-l.closeC:
			return
		}
	}
}

// Post queues f to run on the loop goroutine. It blocks until the loop receives f.
// Returns false if the loop is closed, in which case f is never run.
// Must not be called from the loop goroutine.
func (l *Loop) Post(f func()) bool {
	select {
	case l.funcC <- f:
		return true
	case <-l.closeC:
		return false
	}
}

// Call runs f on the loop and waits for it to return.
// Returns false if the loop is closed.
func (l *Loop) Call(f func()) bool {
	done := make(chan struct{})
	if !l.Post(func() { f(); close(done) }) {
		return false
	}
	select {
	case <-done:
		return true
	case <-l.doneC:
		return false
	}
}

// Close stops the loop and waits for the running function to return.
// Functions not yet received by the loop are dropped.
func (l *Loop) Close() {
	l.closeOnce.Do(func() { close(l.closeC) })
	<-l.doneC
}

// Done is closed after the loop exits.
func (l *Loop) Done() <-chan struct{} {
	return l.doneC
}

// AfterFunc runs f on the loop after duration d.
func (l *Loop) AfterFunc(d time.Duration, f func()) Timer {
	t := &timer{loop: l, f: f}
	t.Reset(d)
	return t
}

type timer struct {
	loop *Loop
	f    func()

	t *time.Timer
	// incremented on every Stop and Reset so stale expirations are ignored
	gen uint64
}

func (t *timer) Stop() {
	t.gen++
	if t.t != nil {
		t.t.Stop()
	}
}

func (t *timer) Reset(d time.Duration) {
	t.Stop()
	gen := t.gen
	t.t = time.AfterFunc(d, func() {
		t.loop.Post(func() {
			if t.gen == gen {
				t.f()
			}
		})
	})
}
