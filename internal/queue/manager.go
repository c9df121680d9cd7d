package queue

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/JaymoCodes/xdm/internal/models"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// DefaultQueueID identifies the queue that always exists.
const (
	DefaultQueueID   = "default"
	DefaultQueueName = "Default queue"
)

var (
	// ErrUnknownQueue is returned for operations on a queue id that does not exist.
	ErrUnknownQueue = errors.New("unknown queue")
	// ErrDefaultQueue is returned when trying to remove the default queue.
	ErrDefaultQueue = errors.New("the default queue cannot be removed")
)

type queueFile struct {
	Queues []models.Queue `toml:"Queue"`
}

// Manager is the queue registry. Queues are kept in a TOML file and every
// change is written through. A download belongs to at most one queue.
type Manager struct {
	mu     sync.RWMutex
	path   string
	queues []models.Queue
}

// Load reads the registry at path. A missing file yields a registry holding
// only the default queue. An empty path keeps the registry in memory.
func Load(path string) (*Manager, error) {
	m := &Manager{path: path}
	if path != "" {
		var qf queueFile
		if _, err := toml.DecodeFile(path, &qf); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("reading queue file %s: %w", path, err)
			}
			log.WithField("path", path).Debug("No queue file yet, starting with the default queue")
		}
		m.queues = qf.Queues
	}
	if m.index(DefaultQueueID) < 0 {
		m.queues = append([]models.Queue{{ID: DefaultQueueID, Name: DefaultQueueName}}, m.queues...)
	}
	return m, nil
}

// Queues returns a copy of every queue in display order.
func (m *Manager) Queues() []models.Queue {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clone(m.queues)
}

// Get returns a copy of the queue with id.
func (m *Manager) Get(id string) (models.Queue, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := m.index(id)
	if i < 0 {
		return models.Queue{}, false
	}
	q := m.queues[i]
	q.DownloadIDs = append([]string(nil), q.DownloadIDs...)
	return q, true
}

// QueueOf returns the queue that holds downloadID.
func (m *Manager) QueueOf(downloadID string) (models.Queue, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, q := range m.queues {
		if q.Contains(downloadID) {
			q.DownloadIDs = append([]string(nil), q.DownloadIDs...)
			return q, true
		}
	}
	return models.Queue{}, false
}

// AddQueue creates an empty queue called name.
func (m *Manager) AddQueue(name string) (models.Queue, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Queue{}, fmt.Errorf("queue name cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	q := models.Queue{ID: uuid.NewString(), Name: name}
	m.queues = append(m.queues, q)
	if err := m.save(); err != nil {
		m.queues = m.queues[:len(m.queues)-1]
		return models.Queue{}, err
	}
	return q, nil
}

// RenameQueue changes the display name of id.
func (m *Manager) RenameQueue(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("queue name cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownQueue, id)
	}
	prev := clone(m.queues)
	m.queues[i].Name = name
	return m.commit(prev)
}

// RemoveQueue deletes id. Its downloads simply stop belonging to any queue.
func (m *Manager) RemoveQueue(id string) error {
	if id == DefaultQueueID {
		return ErrDefaultQueue
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownQueue, id)
	}
	prev := clone(m.queues)
	m.queues = append(m.queues[:i], m.queues[i+1:]...)
	return m.commit(prev)
}

// AssignDownloads makes ids members of queueID, removing them from any other
// queue. Ids already in queueID keep their position.
func (m *Manager) AssignDownloads(queueID string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	target := m.index(queueID)
	if target < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownQueue, queueID)
	}

	prev := clone(m.queues)
	moving := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		moving[id] = struct{}{}
	}
	for i := range m.queues {
		if i == target {
			continue
		}
		m.queues[i].DownloadIDs = without(m.queues[i].DownloadIDs, moving)
	}
	for _, id := range ids {
		if !m.queues[target].Contains(id) {
			m.queues[target].DownloadIDs = append(m.queues[target].DownloadIDs, id)
		}
	}
	return m.commit(prev)
}

// RemoveDownloads drops ids from every queue, e.g. after they were deleted.
func (m *Manager) RemoveDownloads(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	prev := clone(m.queues)
	changed := false
	for i := range m.queues {
		before := len(m.queues[i].DownloadIDs)
		m.queues[i].DownloadIDs = without(m.queues[i].DownloadIDs, drop)
		changed = changed || len(m.queues[i].DownloadIDs) != before
	}
	if !changed {
		return nil
	}
	return m.commit(prev)
}

func (m *Manager) index(id string) int {
	for i, q := range m.queues {
		if q.ID == id {
			return i
		}
	}
	return -1
}

// commit saves the registry, putting prev back if the write fails so memory
// never runs ahead of the file. Callers hold the write lock.
func (m *Manager) commit(prev []models.Queue) error {
	if err := m.save(); err != nil {
		m.queues = prev
		return err
	}
	return nil
}

// save writes the registry; callers hold the write lock.
func (m *Manager) save() error {
	if m.path == "" {
		return nil
	}
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating queue directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".queues.*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp queue file: %w", err)
	}
	tmpPath := tmp.Name()

	encErr := toml.NewEncoder(tmp).Encode(queueFile{Queues: m.queues})
	if encErr == nil {
		encErr = tmp.Sync()
	}
	closeErr := tmp.Close()
	if encErr == nil {
		encErr = closeErr
	}
	if encErr == nil {
		encErr = os.Rename(tmpPath, m.path)
	}
	if encErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing queue file %s: %w", m.path, encErr)
	}
	return nil
}

func without(ids []string, drop map[string]struct{}) []string {
	out := ids[:0]
	for _, id := range ids {
		if _, ok := drop[id]; !ok {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func clone(qs []models.Queue) []models.Queue {
	out := make([]models.Queue, len(qs))
	for i, q := range qs {
		out[i] = q
		out[i].DownloadIDs = append([]string(nil), q.DownloadIDs...)
	}
	return out
}
