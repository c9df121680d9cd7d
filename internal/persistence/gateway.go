package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JaymoCodes/xdm/internal/metrics"
	"github.com/JaymoCodes/xdm/internal/models"

	log "github.com/sirupsen/logrus"
)

// Gateway saves and loads the two download lists through a Backend.
// Saves of the same list are serialized; saves of different lists may overlap.
type Gateway struct {
	backend Backend
	metrics *metrics.Metrics

	inProgressMu sync.Mutex
	finishedMu   sync.Mutex
}

// NewGateway wraps backend. m may be nil.
func NewGateway(backend Backend, m *metrics.Metrics) *Gateway {
	return &Gateway{backend: backend, metrics: m}
}

// SaveInProgress replaces the stored in-progress list with entries.
func (g *Gateway) SaveInProgress(entries []models.InProgressEntry) error {
	g.inProgressMu.Lock()
	defer g.inProgressMu.Unlock()
	if entries == nil {
		entries = []models.InProgressEntry{}
	}
	return g.save(InProgressRecord, entries, len(entries))
}

// SaveFinished replaces the stored finished list with entries.
func (g *Gateway) SaveFinished(entries []models.FinishedEntry) error {
	g.finishedMu.Lock()
	defer g.finishedMu.Unlock()
	if entries == nil {
		entries = []models.FinishedEntry{}
	}
	return g.save(FinishedRecord, entries, len(entries))
}

// LoadInProgress returns the stored in-progress list, or an empty list when
// it is missing or unreadable.
func (g *Gateway) LoadInProgress() []*models.InProgressEntry {
	g.inProgressMu.Lock()
	defer g.inProgressMu.Unlock()

	var entries []*models.InProgressEntry
	if err := g.load(InProgressRecord, &entries); err != nil {
		return []*models.InProgressEntry{}
	}
	return entries
}

// LoadFinished returns the stored finished list, or an empty list when it is
// missing or unreadable.
func (g *Gateway) LoadFinished() []*models.FinishedEntry {
	g.finishedMu.Lock()
	defer g.finishedMu.Unlock()

	var entries []*models.FinishedEntry
	if err := g.load(FinishedRecord, &entries); err != nil {
		return []*models.FinishedEntry{}
	}
	return entries
}

// Close releases the backend.
func (g *Gateway) Close() error {
	return g.backend.Close()
}

func (g *Gateway) save(name string, v any, n int) error {
	start := time.Now()
	payload, err := json.Marshal(v)
	if err == nil {
		err = g.backend.Write(name, payload)
	}
	g.metrics.ObserveSave(name, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("saving %s: %w", name, err)
	}
	g.metrics.SetListSize(name, n)
	log.WithField("record", name).Tracef("Saved %d entries", n)
	return nil
}

func (g *Gateway) load(name string, v any) error {
	payload, err := g.backend.Read(name)
	if err == nil {
		if jsonErr := json.Unmarshal(payload, v); jsonErr != nil {
			err = fmt.Errorf("%w: %s: %v", ErrCorrupt, name, jsonErr)
		}
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotExist):
		log.WithField("record", name).Info("No saved download list found, starting empty")
	default:
		log.WithError(err).WithField("record", name).Warn("Could not load download list, starting empty")
	}
	return err
}
