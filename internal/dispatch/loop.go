// Package dispatch runs functions on a single owning goroutine.
//
// State that belongs to the loop (the download lists and whatever is derived
// from them) is only touched from functions posted here, so it needs no locks.
package dispatch

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Loop is a single goroutine draining an unbounded mailbox in FIFO order.
type Loop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	stopped bool
	done    chan struct{}
}

// New starts a loop.
func New() *Loop {
	l := &Loop{done: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

// Post enqueues fn and returns immediately. It never blocks on the loop.
// Functions posted after Stop are dropped.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		log.Debug("Dispatch loop stopped, dropping posted function")
		return
	}
	l.queue = append(l.queue, fn)
	l.cond.Signal()
}

// Do runs fn on the loop and waits for it to finish. It must not be called
// from the loop itself. It returns false if the loop was already stopped.
func (l *Loop) Do(fn func()) bool {
	ran := make(chan struct{})
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, func() {
		defer close(ran)
		fn()
	})
	l.cond.Signal()
	l.mu.Unlock()

	select {
	case <-ran:
		return true
	case <-l.done:
		// Stop drains the queue before exiting.
		<-ran
		return true
	}
}

// Stop runs everything already queued, then ends the loop.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.stopped {
		l.stopped = true
		l.cond.Signal()
	}
	l.mu.Unlock()
	<-l.done
}

// Done is closed once the loop has exited.
func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.stopped {
			l.cond.Wait()
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range batch {
			l.invoke(fn)
		}
	}
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Recovered panic on dispatch loop: %v", r)
		}
	}()
	fn()
}
