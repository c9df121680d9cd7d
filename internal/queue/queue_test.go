package queue

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/JaymoCodes/xdm/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestManagerStartsWithDefaultQueue(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), "queues.toml"))
	require.NoError(t, err)

	qs := m.Queues()
	require.Len(t, qs, 1)
	assert.Equal(t, DefaultQueueID, qs[0].ID)
	assert.Equal(t, DefaultQueueName, qs[0].Name)
}

func TestAssignMovesMembership(t *testing.T) {
	m, err := Load("")
	require.NoError(t, err)
	q1, err := m.AddQueue("Night")
	require.NoError(t, err)
	q2, err := m.AddQueue("Weekend")
	require.NoError(t, err)

	require.NoError(t, m.AssignDownloads(q1.ID, []string{"A", "B"}))
	got, _ := m.Get(q1.ID)
	assert.Equal(t, []string{"A", "B"}, got.DownloadIDs)

	// Re-assigning to the same queue does not duplicate.
	require.NoError(t, m.AssignDownloads(q1.ID, []string{"B", "A"}))
	got, _ = m.Get(q1.ID)
	assert.Equal(t, []string{"A", "B"}, got.DownloadIDs)

	require.NoError(t, m.AssignDownloads(q2.ID, []string{"A", "B"}))
	got, _ = m.Get(q1.ID)
	assert.Empty(t, got.DownloadIDs, "no stale membership in the old queue")
	got, _ = m.Get(q2.ID)
	assert.Equal(t, []string{"A", "B"}, got.DownloadIDs)

	owner, ok := m.QueueOf("A")
	require.True(t, ok)
	assert.Equal(t, q2.ID, owner.ID)
}

func TestAssignUnknownQueue(t *testing.T) {
	m, _ := Load("")
	assert.ErrorIs(t, m.AssignDownloads("nope", []string{"A"}), ErrUnknownQueue)
}

func TestRemoveQueueAndDownloads(t *testing.T) {
	m, _ := Load("")
	q, err := m.AddQueue("Temp")
	require.NoError(t, err)
	require.NoError(t, m.AssignDownloads(q.ID, []string{"A"}))
	require.NoError(t, m.AssignDownloads(DefaultQueueID, []string{"B", "C"}))

	require.NoError(t, m.RemoveDownloads([]string{"C", "zzz"}))
	def, _ := m.Get(DefaultQueueID)
	assert.Equal(t, []string{"B"}, def.DownloadIDs)

	require.NoError(t, m.RemoveQueue(q.ID))
	_, ok := m.QueueOf("A")
	assert.False(t, ok)

	assert.ErrorIs(t, m.RemoveQueue(q.ID), ErrUnknownQueue)
	assert.ErrorIs(t, m.RemoveQueue(DefaultQueueID), ErrDefaultQueue)
}

func TestAddAndRenameValidateName(t *testing.T) {
	m, _ := Load("")
	_, err := m.AddQueue("   ")
	assert.Error(t, err)
	assert.Error(t, m.RenameQueue(DefaultQueueID, ""))
	require.NoError(t, m.RenameQueue(DefaultQueueID, "Main"))
	q, _ := m.Get(DefaultQueueID)
	assert.Equal(t, "Main", q.Name)
}

func TestManagerPersistsToTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "queues.toml")
	m, err := Load(path)
	require.NoError(t, err)
	q, err := m.AddQueue("Night")
	require.NoError(t, err)
	require.NoError(t, m.AssignDownloads(q.ID, []string{"A", "B"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[[Queue]]")
	assert.Contains(t, string(data), `Name = "Night"`)

	reloaded, err := Load(path)
	require.NoError(t, err)
	got, ok := reloaded.Get(q.ID)
	require.True(t, ok)
	assert.Equal(t, "Night", got.Name)
	assert.Equal(t, []string{"A", "B"}, got.DownloadIDs)
	assert.Len(t, reloaded.Queues(), 2)
}

func TestFailedSaveLeavesRegistryUnchanged(t *testing.T) {
	tests := []struct {
		name   string
		change func(m *Manager, night string) error
	}{
		{name: "rename", change: func(m *Manager, night string) error { return m.RenameQueue(night, "Day") }},
		{name: "remove", change: func(m *Manager, night string) error { return m.RemoveQueue(night) }},
		{name: "assign", change: func(m *Manager, night string) error { return m.AssignDownloads(DefaultQueueID, []string{"A", "C"}) }},
		{name: "remove downloads", change: func(m *Manager, night string) error { return m.RemoveDownloads([]string{"B"}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := filepath.Join(t.TempDir(), "conf")
			m, err := Load(filepath.Join(conf, "queues.toml"))
			require.NoError(t, err)
			night, err := m.AddQueue("Night")
			require.NoError(t, err)
			require.NoError(t, m.AssignDownloads(night.ID, []string{"A", "B"}))
			before := m.Queues()

			// A regular file where the directory was makes every write fail.
			require.NoError(t, os.RemoveAll(conf))
			require.NoError(t, os.WriteFile(conf, nil, 0o600))

			assert.Error(t, tt.change(m, night.ID))
			assert.Equal(t, before, m.Queues())
		})
	}
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queues.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[Queue]\nName = "), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestQueuesReturnsCopies(t *testing.T) {
	m, _ := Load("")
	require.NoError(t, m.AssignDownloads(DefaultQueueID, []string{"A"}))
	qs := m.Queues()
	qs[0].DownloadIDs[0] = "changed"
	q, _ := m.Get(DefaultQueueID)
	assert.Equal(t, []string{"A"}, q.DownloadIDs)
}

// mockPeer records the dialogs the coordinator opens.
type mockPeer struct {
	mock.Mock
	onSelected func(string)
	onManage   func()
	onClosed   func()
}

func (p *mockPeer) Confirm(message string) bool {
	return p.Called(message).Bool(0)
}

func (p *mockPeer) ShowQueueSelection(queues []models.Queue, ids []string, onSelected func(string), onManage func()) {
	p.Called(len(queues), ids)
	p.onSelected = onSelected
	p.onManage = onManage
}

func (p *mockPeer) ShowQueueManager(onClosed func()) {
	p.Called()
	p.onClosed = onClosed
}

func TestMoveToQueueDeclined(t *testing.T) {
	peer := &mockPeer{}
	peer.On("Confirm", ConfirmMoveMessage).Return(false)
	reg, _ := Load("")

	NewCoordinator(peer, reg, nil).MoveToQueue([]string{"A"}, true)

	peer.AssertExpectations(t)
	peer.AssertNotCalled(t, "ShowQueueSelection", mock.Anything, mock.Anything)
	_, ok := reg.QueueOf("A")
	assert.False(t, ok)
}

func TestMoveToQueueAssigns(t *testing.T) {
	peer := &mockPeer{}
	peer.On("Confirm", ConfirmMoveMessage).Return(true)
	peer.On("ShowQueueSelection", 2, []string{"A", "B"}).Return()
	reg, _ := Load("")
	q, _ := reg.AddQueue("Night")

	var assigned []string
	c := NewCoordinator(peer, reg, func(queueID string, ids []string) { assigned = ids })
	c.MoveToQueue([]string{"A", "B"}, true)
	peer.onSelected(q.ID)

	got, _ := reg.Get(q.ID)
	assert.Equal(t, []string{"A", "B"}, got.DownloadIDs)
	assert.Equal(t, []string{"A", "B"}, assigned)
	peer.AssertExpectations(t)
}

func TestMoveToQueueWithoutConfirmation(t *testing.T) {
	peer := &mockPeer{}
	peer.On("ShowQueueSelection", 1, []string{"A"}).Return()
	reg, _ := Load("")

	NewCoordinator(peer, reg, nil).MoveToQueue([]string{"A"}, false)

	peer.AssertNotCalled(t, "Confirm", mock.Anything)
	peer.AssertExpectations(t)
}

func TestManageQueuesKeepsPendingIDs(t *testing.T) {
	peer := &mockPeer{}
	peer.On("ShowQueueSelection", mock.Anything, []string{"A", "B"}).Return()
	peer.On("ShowQueueManager").Return()
	reg, _ := Load("")

	ids := []string{"A", "B"}
	NewCoordinator(peer, reg, nil).MoveToQueue(ids, false)
	ids[0] = "mutated by caller"

	peer.onManage()
	q, _ := reg.AddQueue("Created while managing")
	peer.onClosed()

	// The dialog comes back with the same ids and the new queue.
	peer.AssertNumberOfCalls(t, "ShowQueueSelection", 2)
	peer.AssertCalled(t, "ShowQueueSelection", 2, []string{"A", "B"})

	peer.onSelected(q.ID)
	got, _ := reg.Get(q.ID)
	assert.Equal(t, []string{"A", "B"}, got.DownloadIDs)
}

func TestMoveToQueueFailedAssignmentSkipsCallback(t *testing.T) {
	peer := &mockPeer{}
	peer.On("ShowQueueSelection", mock.Anything, mock.Anything).Return()
	reg, _ := Load("")

	called := false
	NewCoordinator(peer, reg, func(string, []string) { called = true }).MoveToQueue([]string{"A"}, false)
	peer.onSelected("missing-queue")
	assert.False(t, called)
}

func TestMoveToQueueNothingSelected(t *testing.T) {
	peer := &mockPeer{}
	reg, _ := Load("")
	NewCoordinator(peer, reg, nil).MoveToQueue(nil, true)
	peer.AssertNotCalled(t, "Confirm", mock.Anything)
}
