// Package engine runs HTTP transfers on behalf of the controller and reports
// their progress back to it.
package engine

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/JaymoCodes/xdm/internal/models"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultMaxConcurrent    = 3
	DefaultProgressInterval = 500 * time.Millisecond
	defaultHeaderTimeout    = 30 * time.Second
)

// Reporter receives transfer events. Every method must return without
// waiting on the caller's own goroutine.
type Reporter interface {
	DownloadStarted(id string)
	UpdateProgress(id string, percent int, speedBytesPerSec float64, etaSeconds int64)
	DownloadStopped(id string)
	DownloadFinished(id string, finalSize int64, filePath string)
	DownloadFailed(id string)
	SetDownloadStatusWaiting(id string)
	RenameFile(id, folder, file string)
	UpdateItem(id, name string, size int64)
}

// Host is the side of the controller the engine talks to.
type Host interface {
	Reporter
	Entry(id string) (models.InProgressEntry, bool)
}

// Option configures an Engine.
type Option func(*Engine)

// WithHTTPClient replaces the client used for transfers.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) {
		if c != nil {
			e.client = c
		}
	}
}

// WithProgressInterval sets how often running transfers report progress.
func WithProgressInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// Engine transfers downloads with at most a fixed number running at once.
// Resume and Stop never block, so they are safe to call from the dispatch loop.
type Engine struct {
	client   *http.Client
	slots    *semaphore.Weighted
	interval time.Duration

	mu      sync.Mutex
	host    Host
	running map[string]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

// New creates an engine. maxConcurrent below 1 uses DefaultMaxConcurrent.
func New(maxConcurrent int, opts ...Option) *Engine {
	if maxConcurrent < 1 {
		maxConcurrent = DefaultMaxConcurrent
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = defaultHeaderTimeout
	e := &Engine{
		client:   &http.Client{Transport: transport},
		slots:    semaphore.NewWeighted(int64(maxConcurrent)),
		interval: DefaultProgressInterval,
		running:  make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Attach connects the engine to the host it reports to. Resume does nothing
// until a host is attached.
func (e *Engine) Attach(h Host) {
	e.mu.Lock()
	e.host = h
	e.mu.Unlock()
}

// Resume starts a transfer for every id that is not already running. Data
// already received for an id is kept and the transfer continues from there.
func (e *Engine) Resume(ids []string) { e.start(ids, false) }

// Restart is Resume without the partial data: each id starts from byte zero.
func (e *Engine) Restart(ids []string) { e.start(ids, true) }

func (e *Engine) start(ids []string, fresh bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		log.Warn("Engine closed, ignoring resume")
		return
	}
	if e.host == nil {
		log.Warn("Engine has no host attached, ignoring resume")
		return
	}
	for _, id := range ids {
		if _, ok := e.running[id]; ok {
			continue
		}
		ctx, cancel := context.WithCancel(context.Background())
		e.running[id] = cancel
		e.wg.Add(1)
		go e.run(ctx, e.host, id, fresh)
	}
}

// Stop cancels the transfers for ids. Each one reports DownloadStopped once
// it has let go of its file.
func (e *Engine) Stop(ids []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range ids {
		if cancel, ok := e.running[id]; ok {
			cancel()
		}
	}
}

// Running reports whether a transfer for id is in flight or waiting for a slot.
func (e *Engine) Running(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.running[id]
	return ok
}

// Wait blocks until every started transfer has ended.
func (e *Engine) Wait() { e.wg.Wait() }

// Close stops every transfer and waits for them.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	for _, cancel := range e.running {
		cancel()
	}
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Engine) forget(id string) {
	e.mu.Lock()
	if cancel, ok := e.running[id]; ok {
		cancel()
		delete(e.running, id)
	}
	e.mu.Unlock()
}

func (e *Engine) run(ctx context.Context, h Host, id string, fresh bool) {
	defer e.wg.Done()
	logger := log.WithField("id", id)

	if !e.slots.TryAcquire(1) {
		h.SetDownloadStatusWaiting(id)
		if err := e.slots.Acquire(ctx, 1); err != nil {
			e.forget(id)
			logger.Debug("Stopped while waiting for a transfer slot")
			return
		}
	}

	entry, ok := h.Entry(id)
	if !ok {
		e.slots.Release(1)
		e.forget(id)
		logger.Warn("Download vanished before it could start")
		return
	}

	if fresh {
		if err := discardPart(entry); err != nil {
			e.slots.Release(1)
			e.forget(id)
			logger.WithError(err).Error("Could not discard partial data")
			h.DownloadFailed(id)
			return
		}
	}

	h.DownloadStarted(id)
	path, size, err := e.transfer(ctx, h, entry)
	e.slots.Release(1)
	e.forget(id)

	switch {
	case err == nil:
		logger.WithField("path", path).Info("Transfer complete")
		h.DownloadFinished(id, size, path)
	case errors.Is(err, context.Canceled):
		logger.Info("Transfer stopped")
		h.DownloadStopped(id)
	default:
		logger.WithError(err).Error("Transfer failed")
		h.DownloadFailed(id)
	}
}
