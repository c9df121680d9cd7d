// Package progress applies download-engine callbacks to the download lists.
//
// Callbacks may arrive on any goroutine. Each one is posted to the loop that
// owns the store and returns immediately; the mutation, the save request and
// the affordance refresh all happen on that loop.
package progress

import (
	"time"

	"github.com/JaymoCodes/xdm/internal/helpers"
	"github.com/JaymoCodes/xdm/internal/metrics"
	"github.com/JaymoCodes/xdm/internal/models"
	"github.com/JaymoCodes/xdm/internal/store"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultThrottle is the minimum gap between progress-driven saves.
const DefaultThrottle = 2 * time.Second

// Dispatcher runs functions on the goroutine that owns the store.
type Dispatcher interface {
	Post(fn func())
}

// Hooks is how the synchronizer reaches the rest of the controller.
// Every method is called on the owning loop.
type Hooks interface {
	SaveInProgress()
	SaveFinished()
	// Refresh recomputes toolbar state.
	Refresh()
	EntryChanged(e *models.InProgressEntry)
	DownloadFailed(e *models.InProgressEntry)
	DownloadFinished(e *models.FinishedEntry)
}

// Synchronizer turns engine callbacks into store mutations.
type Synchronizer struct {
	loop    Dispatcher
	store   *store.Store
	hooks   Hooks
	metrics *metrics.Metrics

	// limiter and now are only touched on the loop.
	limiter *rate.Limiter
	now     func() time.Time
}

// Option customizes a Synchronizer.
type Option func(*Synchronizer)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// WithMetrics records throttled saves and callback counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Synchronizer) { s.metrics = m }
}

// New returns a synchronizer that saves progress at most once per throttle.
// A throttle of zero or less saves on every update.
func New(loop Dispatcher, st *store.Store, hooks Hooks, throttle time.Duration, opts ...Option) *Synchronizer {
	limit := rate.Inf
	if throttle > 0 {
		limit = rate.Every(throttle)
	}
	s := &Synchronizer{
		loop:    loop,
		store:   st,
		hooks:   hooks,
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnProgress updates the transient display fields of id.
func (s *Synchronizer) OnProgress(id string, percent int, speedBytesPerSec float64, etaSeconds int64) {
	s.loop.Post(func() {
		s.metrics.IncEvent("progress")
		e := s.store.FindInProgress(id)
		if e == nil {
			return
		}
		e.Progress = clampPercent(percent)
		e.DownloadSpeed = helpers.FormatSpeed(speedBytesPerSec)
		e.ETA = helpers.ToHMS(etaSeconds)
		s.hooks.EntryChanged(e)

		if s.limiter.AllowN(s.now(), 1) {
			s.hooks.SaveInProgress()
		} else {
			s.metrics.IncThrottled()
		}
	})
}

// OnStarted marks id as owned by the engine.
func (s *Synchronizer) OnStarted(id string) {
	s.setStatus("started", id, models.StatusActive)
}

// OnStopped marks id as stopped after the engine acknowledged a pause.
func (s *Synchronizer) OnStopped(id string) {
	s.setStatus("stopped", id, models.StatusStopped)
}

// OnWaiting puts id back into the stopped state while it waits for a queue slot.
func (s *Synchronizer) OnWaiting(id string) {
	s.setStatus("waiting", id, models.StatusStopped)
}

// OnFailed marks id as failed and tells the adapter about it.
func (s *Synchronizer) OnFailed(id string) {
	s.fail("failed", id)
}

// OnCancelled is handled exactly like a failure.
func (s *Synchronizer) OnCancelled(id string) {
	s.fail("cancelled", id)
}

// OnFinished moves id to the finished list.
func (s *Synchronizer) OnFinished(id string, finalSize int64, path string) {
	s.loop.Post(func() {
		s.metrics.IncEvent("finished")
		fin := s.store.MoveToFinished(id, finalSize, path, s.now())
		if fin == nil {
			log.WithField("id", id).Debug("Finished callback for unknown download ignored")
			return
		}
		s.hooks.DownloadFinished(fin)
		s.hooks.SaveFinished()
		s.hooks.SaveInProgress()
		s.hooks.Refresh()
	})
}

func (s *Synchronizer) setStatus(event, id string, status models.Status) {
	s.loop.Post(func() {
		s.metrics.IncEvent(event)
		e := s.store.FindInProgress(id)
		if e == nil {
			return
		}
		e.Status = status
		if !status.IsActive() {
			e.DownloadSpeed = ""
			e.ETA = ""
		}
		s.hooks.EntryChanged(e)
		s.hooks.SaveInProgress()
		s.hooks.Refresh()
	})
}

func (s *Synchronizer) fail(event, id string) {
	s.loop.Post(func() {
		s.metrics.IncEvent(event)
		e := s.store.FindInProgress(id)
		if e == nil {
			return
		}
		e.Status = models.StatusFailed
		e.DownloadSpeed = ""
		e.ETA = ""
		s.hooks.EntryChanged(e)
		s.hooks.DownloadFailed(e)
		s.hooks.SaveInProgress()
		s.hooks.Refresh()
	})
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
