// Package store holds the authoritative in-memory download lists.
//
// A Store is not safe for concurrent use. It is owned by the controller's
// dispatch loop and every mutation must happen on that goroutine.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/JaymoCodes/xdm/internal/models"
)

// ErrDuplicateID is returned when an identifier already lives in one of the lists.
var ErrDuplicateID = errors.New("download id already exists")

// Store keeps the in-progress and finished collections, newest first.
type Store struct {
	inProgress []*models.InProgressEntry
	finished   []*models.FinishedEntry
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// Add prepends e to the in-progress list.
func (s *Store) Add(e *models.InProgressEntry) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("cannot add entry without id")
	}
	if s.Contains(e.ID) {
		return fmt.Errorf("%w: %s", ErrDuplicateID, e.ID)
	}
	s.inProgress = append([]*models.InProgressEntry{e}, s.inProgress...)
	return nil
}

// Contains reports whether id lives in either collection.
func (s *Store) Contains(id string) bool {
	return s.inProgressIndex(id) >= 0 || s.finishedIndex(id) >= 0
}

// Find returns the entry for id from whichever collection holds it.
// Exactly one of the two results is non-nil when ok is true.
func (s *Store) Find(id string) (ip *models.InProgressEntry, fin *models.FinishedEntry, ok bool) {
	if i := s.inProgressIndex(id); i >= 0 {
		return s.inProgress[i], nil, true
	}
	if i := s.finishedIndex(id); i >= 0 {
		return nil, s.finished[i], true
	}
	return nil, nil, false
}

// FindInProgress returns the in-progress entry for id, or nil.
func (s *Store) FindInProgress(id string) *models.InProgressEntry {
	if i := s.inProgressIndex(id); i >= 0 {
		return s.inProgress[i]
	}
	return nil
}

// FindFinished returns the finished entry for id, or nil.
func (s *Store) FindFinished(id string) *models.FinishedEntry {
	if i := s.finishedIndex(id); i >= 0 {
		return s.finished[i]
	}
	return nil
}

// Remove deletes id from whichever collection holds it and reports which one.
func (s *Store) Remove(id string) (removed bool, view models.View) {
	if i := s.inProgressIndex(id); i >= 0 {
		s.inProgress = append(s.inProgress[:i], s.inProgress[i+1:]...)
		return true, models.ViewInProgress
	}
	if i := s.finishedIndex(id); i >= 0 {
		s.finished = append(s.finished[:i], s.finished[i+1:]...)
		return true, models.ViewFinished
	}
	return false, models.ViewInProgress
}

// MoveToFinished turns the in-progress entry id into a finished entry at the
// head of the finished list. It returns nil when id is not in progress.
func (s *Store) MoveToFinished(id string, finalSize int64, finalPath string, at time.Time) *models.FinishedEntry {
	i := s.inProgressIndex(id)
	if i < 0 {
		return nil
	}
	ip := s.inProgress[i]
	s.inProgress = append(s.inProgress[:i], s.inProgress[i+1:]...)

	fin := &models.FinishedEntry{
		DownloadEntry: ip.DownloadEntry,
		FileSize:      finalSize,
		FilePath:      finalPath,
		DateFinished:  at,
	}
	fin.Size = finalSize
	// A stale copy may already sit in finished after an import.
	if j := s.finishedIndex(id); j >= 0 {
		s.finished = append(s.finished[:j], s.finished[j+1:]...)
	}
	s.finished = append([]*models.FinishedEntry{fin}, s.finished...)
	return fin
}

// ClearFinished drops every finished entry and returns the removed identifiers.
func (s *Store) ClearFinished() []string {
	ids := make([]string, len(s.finished))
	for i, f := range s.finished {
		ids[i] = f.ID
	}
	s.finished = nil
	return ids
}

// ReplaceInProgress swaps in a loaded collection. Entries without an id and
// duplicates are dropped; the first occurrence wins.
func (s *Store) ReplaceInProgress(entries []*models.InProgressEntry) {
	seen := make(map[string]struct{}, len(entries))
	for _, f := range s.finished {
		seen[f.ID] = struct{}{}
	}
	out := make([]*models.InProgressEntry, 0, len(entries))
	for _, e := range entries {
		if e == nil || e.ID == "" {
			continue
		}
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		// Nothing is running right after a load.
		if e.Status == models.StatusActive || !e.Status.Valid() {
			e.Status = models.StatusStopped
		}
		out = append(out, e)
	}
	s.inProgress = out
}

// ReplaceFinished swaps in a loaded collection. Identifiers that are still in
// progress are skipped.
func (s *Store) ReplaceFinished(entries []*models.FinishedEntry) {
	seen := make(map[string]struct{}, len(entries))
	for _, e := range s.inProgress {
		seen[e.ID] = struct{}{}
	}
	out := make([]*models.FinishedEntry, 0, len(entries))
	for _, e := range entries {
		if e == nil || e.ID == "" {
			continue
		}
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	s.finished = out
}

// InProgress returns the live in-progress list. Callers must not modify it.
func (s *Store) InProgress() []*models.InProgressEntry { return s.inProgress }

// Finished returns the live finished list. Callers must not modify it.
func (s *Store) Finished() []*models.FinishedEntry { return s.finished }

// SnapshotInProgress returns a deep copy suitable for handing to another goroutine.
func (s *Store) SnapshotInProgress() []models.InProgressEntry {
	out := make([]models.InProgressEntry, len(s.inProgress))
	for i, e := range s.inProgress {
		out[i] = *e
		out[i].DownloadEntry = cloneBase(e.DownloadEntry)
	}
	return out
}

// SnapshotFinished returns a deep copy suitable for handing to another goroutine.
func (s *Store) SnapshotFinished() []models.FinishedEntry {
	out := make([]models.FinishedEntry, len(s.finished))
	for i, e := range s.finished {
		out[i] = *e
		out[i].DownloadEntry = cloneBase(e.DownloadEntry)
	}
	return out
}

// FilterIDs keeps only the ids present in the collection shown by view,
// preserving their order.
func (s *Store) FilterIDs(view models.View, ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		var present bool
		if view == models.ViewFinished {
			present = s.finishedIndex(id) >= 0
		} else {
			present = s.inProgressIndex(id) >= 0
		}
		if present {
			out = append(out, id)
		}
	}
	return out
}

func (s *Store) inProgressIndex(id string) int {
	for i, e := range s.inProgress {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) finishedIndex(id string) int {
	for i, e := range s.finished {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func cloneBase(b models.DownloadEntry) models.DownloadEntry {
	if b.Authentication != nil {
		a := *b.Authentication
		b.Authentication = &a
	}
	if b.Proxy != nil {
		p := *b.Proxy
		b.Proxy = &p
	}
	return b
}
