package persistence

import (
	"sync"

	"github.com/JaymoCodes/xdm/internal/models"

	log "github.com/sirupsen/logrus"
)

// Writer hands snapshots to a Gateway without blocking the caller. Each list
// has one drain goroutine; a snapshot that arrives while a write is in flight
// replaces any snapshot still waiting, so only the newest state is written.
type Writer struct {
	gw         *Gateway
	inProgress *slot
	finished   *slot
}

// NewWriter starts the drain goroutines. Call Close to stop them.
func NewWriter(gw *Gateway) *Writer {
	return &Writer{
		gw:         gw,
		inProgress: newSlot(InProgressRecord),
		finished:   newSlot(FinishedRecord),
	}
}

// SaveInProgress queues a write of snapshot. The caller must not reuse it.
func (w *Writer) SaveInProgress(snapshot []models.InProgressEntry) {
	w.inProgress.post(func() error { return w.gw.SaveInProgress(snapshot) })
}

// SaveFinished queues a write of snapshot. The caller must not reuse it.
func (w *Writer) SaveFinished(snapshot []models.FinishedEntry) {
	w.finished.post(func() error { return w.gw.SaveFinished(snapshot) })
}

// Flush blocks until every queued write has completed.
func (w *Writer) Flush() {
	w.inProgress.flush()
	w.finished.flush()
}

// Close flushes pending writes and stops the drain goroutines.
func (w *Writer) Close() {
	w.inProgress.close()
	w.finished.close()
}

type slot struct {
	name     string
	mu       sync.Mutex
	cond     *sync.Cond
	pending  func() error
	inFlight bool
	closed   bool
	done     chan struct{}
}

func newSlot(name string) *slot {
	s := &slot{name: name, done: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

func (s *slot) post(job func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		log.WithField("record", s.name).Warn("Save requested after writer closed, dropping")
		return
	}
	if s.pending != nil {
		log.WithField("record", s.name).Trace("Coalescing pending save")
	}
	s.pending = job
	s.cond.Broadcast()
}

func (s *slot) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for s.pending == nil && !s.closed {
			s.cond.Wait()
		}
		if s.pending == nil && s.closed {
			s.mu.Unlock()
			return
		}
		job := s.pending
		s.pending = nil
		s.inFlight = true
		s.mu.Unlock()

		if err := job(); err != nil {
			log.WithError(err).WithField("record", s.name).Error("Background save failed, previous snapshot kept")
		}

		s.mu.Lock()
		s.inFlight = false
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

func (s *slot) flush() {
	s.mu.Lock()
	for s.pending != nil || s.inFlight {
		s.cond.Wait()
	}
	s.mu.Unlock()
}

func (s *slot) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
	<-s.done
}
