package controller

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/JaymoCodes/xdm/internal/affordance"
	"github.com/JaymoCodes/xdm/internal/dispatch"
	"github.com/JaymoCodes/xdm/internal/index"
	"github.com/JaymoCodes/xdm/internal/models"
	"github.com/JaymoCodes/xdm/internal/persistence"
	"github.com/JaymoCodes/xdm/internal/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePeer records what the controller asks of the UI. It is only touched on
// the loop, and tests read it after Flush.
type fakePeer struct {
	view     models.View
	selected []string

	toolbar     affordance.Toolbar
	toolbarSets int
	menus      map[models.View]affordance.Menu
	inProgress []models.InProgressEntry
	finished   []models.FinishedEntry
	changed    []models.InProgressEntry

	confirmAnswer bool
	confirms      []string
	messages      []string
	promptValue   string
	promptOK      bool
	prompts       []string
	chosenFile    string
	clipboard     string
	opened        []string
	openErr       error
	properties    []models.DownloadEntry
	progressWins  []string
	failed        []models.InProgressEntry
	completed     []models.FinishedEntry
	newDialogs    []string
	dialogClosers []func()

	queueDialogs  int
	onQueuePicked func(string)
	onManage      func()
	onManagerDone func()
}

func newFakePeer() *fakePeer {
	return &fakePeer{menus: make(map[models.View]affordance.Menu)}
}

func (p *fakePeer) Confirm(message string) bool {
	p.confirms = append(p.confirms, message)
	return p.confirmAnswer
}

func (p *fakePeer) ShowQueueSelection(_ []models.Queue, _ []string, onSelected func(string), onManage func()) {
	p.queueDialogs++
	p.onQueuePicked = onSelected
	p.onManage = onManage
}

func (p *fakePeer) ShowQueueManager(onClosed func()) { p.onManagerDone = onClosed }

func (p *fakePeer) CurrentView() models.View { return p.view }
func (p *fakePeer) SwitchView(v models.View) { p.view = v }
func (p *fakePeer) SelectedIDs() []string { return p.selected }
func (p *fakePeer) ClearSelection() { p.selected = nil }
func (p *fakePeer) SetToolbar(t affordance.Toolbar) {
	p.toolbar = t
	p.toolbarSets++
}

func (p *fakePeer) SetMenu(view models.View, m affordance.Menu) { p.menus[view] = m }

func (p *fakePeer) ShowInProgress(entries []models.InProgressEntry) { p.inProgress = entries }
func (p *fakePeer) ShowFinished(entries []models.FinishedEntry) { p.finished = entries }
func (p *fakePeer) EntryChanged(e models.InProgressEntry) { p.changed = append(p.changed, e) }

func (p *fakePeer) ShowMessage(message string) { p.messages = append(p.messages, message) }

func (p *fakePeer) Prompt(message, _ string) (string, bool) {
	p.prompts = append(p.prompts, message)
	return p.promptValue, p.promptOK
}

func (p *fakePeer) ChooseFile(_ string, _ bool) (string, bool) {
	return p.chosenFile, p.chosenFile != ""
}

func (p *fakePeer) ShowProperties(e models.DownloadEntry) { p.properties = append(p.properties, e) }
func (p *fakePeer) ShowProgressWindow(id string) { p.progressWins = append(p.progressWins, id) }

func (p *fakePeer) ShowDownloadFailed(e models.InProgressEntry) { p.failed = append(p.failed, e) }
func (p *fakePeer) ShowDownloadComplete(e models.FinishedEntry) { p.completed = append(p.completed, e) }

func (p *fakePeer) ShowNewDownloadDialog(url string, onClosed func()) {
	p.newDialogs = append(p.newDialogs, url)
	p.dialogClosers = append(p.dialogClosers, onClosed)
}

func (p *fakePeer) SetClipboard(text string) { p.clipboard = text }

func (p *fakePeer) OpenFile(path string) error {
	p.opened = append(p.opened, "file:"+path)
	return p.openErr
}

func (p *fakePeer) OpenFolder(dir, file string) error {
	p.opened = append(p.opened, "folder:"+dir+"|"+file)
	return p.openErr
}

func (p *fakePeer) OpenBrowser(url string) error {
	p.opened = append(p.opened, "browser:"+url)
	return nil
}

type fakeEngine struct {
	mu      sync.Mutex
	resumed   []string
	restarted []string
	stopped   []string
}

func (e *fakeEngine) Resume(ids []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resumed = append(e.resumed, ids...)
}

func (e *fakeEngine) Restart(ids []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.restarted = append(e.restarted, ids...)
}

func (e *fakeEngine) Stop(ids []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = append(e.stopped, ids...)
}

type env struct {
	c       *Controller
	peer    *fakePeer
	engine  *fakeEngine
	gw      *persistence.Gateway
	backend *persistence.FileBackend
	queues  *queue.Manager
	dir     string
}

func defaultSettings() Settings {
	return Settings{
		Throttle:      time.Hour,
		ConfirmDelete: true,
		HelpURL:       "https://example.org/help",
		SupportURL:    "https://example.org/support",
		BugReportURL:  "https://example.org/issues",
	}
}

// newEnv seeds storage with the given lists and starts a controller over it.
func newEnv(t *testing.T, ip []models.InProgressEntry, fin []models.FinishedEntry, settings ...func(*Settings)) *env {
	t.Helper()
	dir := t.TempDir()
	backend, err := persistence.NewFileBackend(dir)
	require.NoError(t, err)
	gw := persistence.NewGateway(backend, nil)
	if ip != nil {
		require.NoError(t, gw.SaveInProgress(ip))
	}
	if fin != nil {
		require.NoError(t, gw.SaveFinished(fin))
	}

	s := defaultSettings()
	for _, fn := range settings {
		fn(&s)
	}
	queues, err := queue.Load("")
	require.NoError(t, err)
	idx, err := index.NewMemOnly()
	require.NoError(t, err)

	loop := dispatch.New()
	writer := persistence.NewWriter(gw)
	t.Cleanup(func() {
		loop.Stop()
		writer.Close()
		idx.Close()
	})

	e := &env{
		peer:    newFakePeer(),
		engine:  &fakeEngine{},
		gw:      gw,
		backend: backend,
		queues:  queues,
		dir:     dir,
	}
	e.c = New(Deps{
		Peer:     e.peer,
		Engine:   e.engine,
		Loop:     loop,
		Queues:   queues,
		Gateway:  gw,
		Writer:   writer,
		Index:    idx,
		Settings: s,
	})
	return e
}

// do runs fn on the loop, where the peer callbacks belong.
func (e *env) do(fn func()) { e.c.loop.Do(fn) }

func ipEntry(id, name string, status models.Status) models.InProgressEntry {
	return models.InProgressEntry{
		DownloadEntry: models.DownloadEntry{
			ID: id, Name: name, TargetDir: "/dl", PrimaryURL: "https://example.org/" + id,
			DateAdded: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		Status: status,
	}
}

func finEntry(id, name string) models.FinishedEntry {
	return models.FinishedEntry{
		DownloadEntry: models.DownloadEntry{ID: id, Name: name, TargetDir: "/dl", PrimaryURL: "https://example.org/" + id},
		FileSize:      10,
		FilePath:      filepath.Join("/dl", name),
	}
}

func ids(entries []models.InProgressEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func finishedIDs(entries []models.FinishedEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestStartupLoadsAndPublishesLists(t *testing.T) {
	e := newEnv(t,
		[]models.InProgressEntry{ipEntry("a", "one", models.StatusActive), ipEntry("b", "two", models.StatusPaused)},
		[]models.FinishedEntry{finEntry("f", "done.bin")},
	)
	e.c.Flush()

	assert.Equal(t, []string{"a", "b"}, ids(e.peer.inProgress))
	assert.Equal(t, []string{"f"}, finishedIDs(e.peer.finished))
	// Nothing is running right after start.
	assert.Equal(t, models.StatusStopped, e.peer.inProgress[0].Status)
	assert.Equal(t, models.StatusPaused, e.peer.inProgress[1].Status)

	require.NotNil(t, e.peer.toolbar)
	assert.False(t, e.peer.toolbar[affordance.ButtonDelete].Enabled)
	assert.False(t, e.peer.toolbar[affordance.ButtonOpenFile].Visible)

	hits, err := e.c.Search("done.bin", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "f", hits[0].ID)
}

func TestStartupSurvivesCorruptList(t *testing.T) {
	dir := t.TempDir()
	backend, err := persistence.NewFileBackend(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(backend.Path(persistence.InProgressRecord), []byte("garbage"), 0o600))
	gw := persistence.NewGateway(backend, nil)
	require.NoError(t, gw.SaveFinished([]models.FinishedEntry{finEntry("f", "ok.bin")}))

	loop := dispatch.New()
	writer := persistence.NewWriter(gw)
	defer func() { loop.Stop(); writer.Close() }()
	queues, _ := queue.Load("")
	peer := newFakePeer()

	c := New(Deps{Peer: peer, Engine: &fakeEngine{}, Loop: loop, Queues: queues, Gateway: gw, Writer: writer, Settings: defaultSettings()})
	ip, fin := c.Lists()
	assert.Empty(t, ip)
	assert.Equal(t, []string{"f"}, finishedIDs(fin))

	// Searching without an index is not an error.
	hits, err := c.Search("ok", 0)
	assert.NoError(t, err)
	assert.Empty(t, hits)
}

func TestAddDownloadGoesToTop(t *testing.T) {
	e := newEnv(t, []models.InProgressEntry{ipEntry("a", "old", models.StatusStopped)}, nil,
		func(s *Settings) { s.DefaultSpeedLimitKiB = 512 })
	e.peer.view = models.ViewFinished
	e.peer.selected = []string{"f"}

	e.c.AddDownload(models.DownloadEntry{ID: "new", Name: "fresh.iso", PrimaryURL: "https://example.org/fresh.iso"})
	e.c.Flush()

	assert.Equal(t, models.ViewInProgress, e.peer.view)
	assert.Empty(t, e.peer.selected)
	assert.Equal(t, []string{"new", "a"}, ids(e.peer.inProgress))

	head := e.peer.inProgress[0]
	assert.Equal(t, models.StatusStopped, head.Status)
	assert.Zero(t, head.Progress)
	assert.Equal(t, int64(512), head.MaxSpeedLimitKiB)
	assert.False(t, head.DateAdded.IsZero())

	saved := e.gw.LoadInProgress()
	require.Len(t, saved, 2)
	assert.Equal(t, "new", saved[0].ID)
}

func TestAddDownloadAssignsIDAndRejectsDuplicates(t *testing.T) {
	e := newEnv(t, nil, []models.FinishedEntry{finEntry("f", "x")})

	e.c.AddDownload(models.DownloadEntry{Name: "no id"})
	e.c.AddDownload(models.DownloadEntry{ID: "f", Name: "clash"})
	e.c.Flush()

	ip, fin := e.c.Lists()
	require.Len(t, ip, 1)
	assert.NotEmpty(t, ip[0].ID)
	assert.Equal(t, "no id", ip[0].Name)
	assert.Len(t, fin, 1)
}

func TestToolbarFollowsSelection(t *testing.T) {
	e := newEnv(t, []models.InProgressEntry{ipEntry("a", "one", models.StatusStopped), ipEntry("b", "two", models.StatusStopped)}, nil)

	tests := []struct {
		name     string
		started  []string
		selected []string
		pause    bool
		resume   bool
		delete   bool
	}{
		{name: "nothing selected"},
		{name: "unknown ids are ignored", selected: []string{"ghost"}},
		{name: "single stopped", selected: []string{"a"}, resume: true, delete: true},
		{name: "single active", started: []string{"a"}, selected: []string{"a"}, pause: true, delete: true},
		{name: "two selected", selected: []string{"a", "b"}, pause: true, resume: true, delete: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, id := range tt.started {
				e.c.DownloadStarted(id)
			}
			e.peer.selected = tt.selected
			e.c.HandleGesture(GestureSelectionChanged)
			e.c.Flush()

			tb := e.peer.toolbar
			assert.Equal(t, tt.pause, tb[affordance.ButtonPause].Enabled, "pause")
			assert.Equal(t, tt.resume, tb[affordance.ButtonResume].Enabled, "resume")
			assert.Equal(t, tt.delete, tb[affordance.ButtonDelete].Enabled, "delete")
			assert.Equal(t, tb, e.c.Toolbar())
		})
	}
}

func TestFinishedViewToolbar(t *testing.T) {
	e := newEnv(t, nil, []models.FinishedEntry{finEntry("f", "a.bin"), finEntry("g", "b.bin")})
	e.peer.view = models.ViewFinished

	e.peer.selected = []string{"f"}
	e.c.HandleGesture(GestureViewChanged)
	e.c.Flush()
	assert.True(t, e.peer.toolbar[affordance.ButtonOpenFile].Enabled)
	assert.True(t, e.peer.toolbar[affordance.ButtonOpenFolder].Enabled)
	assert.False(t, e.peer.toolbar[affordance.ButtonPause].Visible)

	e.peer.selected = []string{"f", "g"}
	e.c.HandleGesture(GestureSelectionChanged)
	e.c.Flush()
	assert.True(t, e.peer.toolbar[affordance.ButtonDelete].Enabled)
	assert.False(t, e.peer.toolbar[affordance.ButtonOpenFile].Enabled)
	assert.False(t, e.peer.toolbar[affordance.ButtonOpenFolder].Enabled)
}

func TestDeleteAsksFirst(t *testing.T) {
	e := newEnv(t, []models.InProgressEntry{ipEntry("a", "one", models.StatusStopped), ipEntry("b", "two", models.StatusStopped)}, nil)
	require.NoError(t, e.queues.AssignDownloads(queue.DefaultQueueID, []string{"a", "b"}))
	e.c.DownloadStarted("a")
	e.peer.selected = []string{"a"}

	e.peer.confirmAnswer = false
	e.c.HandleGesture(GestureDelete)
	e.c.Flush()
	assert.Equal(t, []string{ConfirmDeleteMessage}, e.peer.confirms)
	assert.Equal(t, []string{"a", "b"}, ids(e.peer.inProgress))
	assert.Empty(t, e.engine.stopped)

	e.peer.confirmAnswer = true
	e.c.HandleGesture(GestureDelete)
	e.c.Flush()
	assert.Equal(t, []string{"b"}, ids(e.peer.inProgress))
	assert.Equal(t, []string{"a"}, e.engine.stopped, "running downloads are stopped first")
	assert.Empty(t, e.peer.selected)
	assert.False(t, e.peer.toolbar[affordance.ButtonDelete].Enabled)

	_, queued := e.queues.QueueOf("a")
	assert.False(t, queued)
	saved := e.gw.LoadInProgress()
	require.Len(t, saved, 1)
	assert.Equal(t, "b", saved[0].ID)
}

func TestDeleteFinishedWithoutConfirmation(t *testing.T) {
	e := newEnv(t, nil, []models.FinishedEntry{finEntry("f", "a.bin"), finEntry("g", "b.bin")},
		func(s *Settings) { s.ConfirmDelete = false })
	e.peer.view = models.ViewFinished
	e.peer.selected = []string{"g"}

	e.c.HandleMenu(affordance.MenuDeleteFinished)
	e.c.Flush()

	assert.Empty(t, e.peer.confirms)
	assert.Equal(t, []string{"f"}, finishedIDs(e.peer.finished))
	assert.Len(t, e.gw.LoadFinished(), 1)
}

func TestProgressIsThrottledButVisible(t *testing.T) {
	e := newEnv(t, []models.InProgressEntry{ipEntry("a", "one", models.StatusStopped)}, nil)

	e.c.DownloadStarted("a")
	for p := 1; p <= 10; p++ {
		e.c.UpdateProgress("a", p*10, 2048, 30)
	}
	e.c.Flush()

	last := e.peer.changed[len(e.peer.changed)-1]
	assert.Equal(t, 100, last.Progress)
	assert.Equal(t, "2.0 KiB/s", last.DownloadSpeed)
	assert.Equal(t, "00:00:30", last.ETA)

	// Only the first update of the window reached storage.
	saved := e.gw.LoadInProgress()
	require.Len(t, saved, 1)
	assert.Equal(t, 10, saved[0].Progress)
	assert.Equal(t, models.StatusActive, saved[0].Status)

	// A status change saves right away.
	e.c.DownloadStopped("a")
	e.c.Flush()
	saved = e.gw.LoadInProgress()
	assert.Equal(t, 100, saved[0].Progress)
	assert.Equal(t, models.StatusStopped, saved[0].Status)
}

func TestDownloadFinishedMovesEntry(t *testing.T) {
	e := newEnv(t, []models.InProgressEntry{ipEntry("a", "alpha", models.StatusStopped)}, nil)
	require.NoError(t, e.queues.AssignDownloads(queue.DefaultQueueID, []string{"a"}))

	e.c.DownloadStarted("a")
	e.c.DownloadFinished("a", 4096, "/dl/alpha")
	e.c.Flush()

	assert.Empty(t, e.peer.inProgress)
	require.Len(t, e.peer.finished, 1)
	assert.Equal(t, int64(4096), e.peer.finished[0].FileSize)
	assert.Equal(t, "/dl/alpha", e.peer.finished[0].FilePath)
	require.Len(t, e.peer.completed, 1)
	assert.Equal(t, "a", e.peer.completed[0].ID)

	assert.Empty(t, e.gw.LoadInProgress())
	require.Len(t, e.gw.LoadFinished(), 1)

	_, queued := e.queues.QueueOf("a")
	assert.False(t, queued)

	hits, err := e.c.Search("alpha", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "finished", hits[0].Collection)
}

func TestFailureAndCancellation(t *testing.T) {
	e := newEnv(t, []models.InProgressEntry{ipEntry("a", "one", models.StatusStopped), ipEntry("b", "two", models.StatusStopped)}, nil)
	e.c.DownloadStarted("a")
	e.c.DownloadStarted("b")
	e.c.DownloadFailed("a")
	e.c.DownloadCancelled("b")
	e.c.DownloadFailed("ghost")
	e.c.Flush()

	require.Len(t, e.peer.failed, 2)
	assert.Equal(t, "a", e.peer.failed[0].ID)
	assert.Equal(t, "b", e.peer.failed[1].ID)
	for _, s := range e.gw.LoadInProgress() {
		assert.Equal(t, models.StatusFailed, s.Status)
	}

	e.peer.selected = []string{"a"}
	e.c.HandleGesture(GestureSelectionChanged)
	e.c.Flush()
	assert.True(t, e.peer.toolbar[affordance.ButtonResume].Enabled, "failed downloads can be resumed")
}

func TestWaitingRenameAndUpdateItem(t *testing.T) {
	e := newEnv(t, []models.InProgressEntry{ipEntry("a", "one", models.StatusStopped)}, nil)
	e.c.DownloadStarted("a")
	e.c.SetDownloadStatusWaiting("a")
	e.c.UpdateItem("a", "real-name.zip", 777)
	e.c.RenameFile("a", "/other", "")
	e.c.RenameFile("ghost", "/x", "y")
	e.c.Flush()

	saved := e.gw.LoadInProgress()
	require.Len(t, saved, 1)
	assert.Equal(t, models.StatusStopped, saved[0].Status)
	assert.Equal(t, "real-name.zip", saved[0].Name)
	assert.Equal(t, int64(777), saved[0].Size)
	assert.Equal(t, "/other", saved[0].TargetDir)

	hits, err := e.c.Search("real", 0)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestContextMenus(t *testing.T) {
	e := newEnv(t,
		[]models.InProgressEntry{ipEntry("a", "one", models.StatusStopped)},
		[]models.FinishedEntry{finEntry("f", "a.bin"), finEntry("g", "b.bin")},
	)

	e.peer.selected = []string{"a"}
	e.c.HandleGesture(GestureInProgressMenuOpening)
	e.c.Flush()
	m := e.peer.menus[models.ViewInProgress]
	assert.True(t, m[affordance.MenuResume])
	assert.True(t, m[affordance.MenuRestart])
	assert.False(t, m[affordance.MenuPause])

	e.peer.view = models.ViewFinished
	e.peer.selected = []string{"f", "g"}
	e.c.HandleGesture(GestureFinishedMenuOpening)
	e.c.Flush()
	assert.Equal(t, []affordance.MenuItem{affordance.MenuDeleteFinished},
		e.peer.menus[models.ViewFinished].Enabled(affordance.FinishedMenu))
}

func TestMoveToQueueFlow(t *testing.T) {
	e := newEnv(t, []models.InProgressEntry{ipEntry("a", "one", models.StatusStopped), ipEntry("b", "two", models.StatusStopped)}, nil)
	night, err := e.queues.AddQueue("Night")
	require.NoError(t, err)

	e.peer.selected = []string{"a", "b", "ghost"}
	e.c.HandleGesture(GestureMoveToQueue)
	e.c.Flush()
	require.NotNil(t, e.peer.onQueuePicked)
	assert.Empty(t, e.peer.confirms)

	e.do(func() { e.peer.onQueuePicked(night.ID) })
	q, _ := e.queues.Get(night.ID)
	assert.Equal(t, []string{"a", "b"}, q.DownloadIDs)

	// Asking the controller directly with confirmation, declined.
	e.peer.confirmAnswer = false
	e.c.MoveToQueue([]string{"a"}, true)
	e.c.Flush()
	assert.Equal(t, []string{queue.ConfirmMoveMessage}, e.peer.confirms)
	assert.Equal(t, 1, e.peer.queueDialogs)
}

func TestPauseAndResumeSelected(t *testing.T) {
	e := newEnv(t, []models.InProgressEntry{ipEntry("a", "one", models.StatusStopped), ipEntry("b", "two", models.StatusStopped)}, nil)
	e.c.DownloadStarted("a")
	e.peer.selected = []string{"a", "b"}

	e.c.HandleGesture(GestureResume)
	e.c.HandleGesture(GesturePause)
	e.c.ResumeDownload("b")
	e.c.ResumeDownload("ghost")
	e.c.Flush()

	assert.Equal(t, []string{"b", "b"}, e.engine.resumed, "active downloads are not resumed again")
	assert.Equal(t, []string{"a", "b"}, e.engine.stopped)

	// Pause and resume do nothing in the finished view.
	e.peer.view = models.ViewFinished
	e.c.HandleGesture(GesturePause)
	e.c.Flush()
	assert.Len(t, e.engine.stopped, 2)
}

func TestRestartAndDownloadAgain(t *testing.T) {
	ip := ipEntry("a", "one", models.StatusStopped)
	ip.Progress = 60
	e := newEnv(t, []models.InProgressEntry{ip}, []models.FinishedEntry{finEntry("f", "again.bin")})

	e.peer.selected = []string{"a"}
	e.c.HandleMenu(affordance.MenuRestart)
	e.c.Flush()
	ipList, _ := e.c.Lists()
	assert.Zero(t, ipList[0].Progress)
	assert.Equal(t, []string{"a"}, e.engine.restarted, "restart discards partial data")
	assert.Empty(t, e.engine.resumed)

	e.peer.view = models.ViewFinished
	e.peer.selected = []string{"f"}
	e.c.HandleMenu(affordance.MenuDownloadAgain)
	e.c.Flush()

	ipList, finList := e.c.Lists()
	assert.Equal(t, []string{"f", "a"}, ids(ipList))
	assert.Empty(t, finList)
	assert.Equal(t, models.StatusStopped, ipList[0].Status)
	assert.Equal(t, models.ViewInProgress, e.peer.view)
	assert.Equal(t, []string{"f"}, e.engine.resumed)
	assert.Empty(t, e.gw.LoadFinished())
}

func TestFinishedItemActions(t *testing.T) {
	e := newEnv(t, nil, []models.FinishedEntry{finEntry("f", "a.bin")})
	e.peer.view = models.ViewFinished
	e.peer.selected = []string{"f"}

	e.c.HandleGesture(GestureOpenFile)
	e.c.HandleGesture(GestureOpenFolder)
	e.c.HandleMenu(affordance.MenuCopyFile)
	e.c.Flush()
	assert.Equal(t, []string{
		"file:" + filepath.Join("/dl", "a.bin"),
		"folder:/dl|a.bin",
	}, e.peer.opened)
	assert.Equal(t, filepath.Join("/dl", "a.bin"), e.peer.clipboard)

	e.c.HandleMenu(affordance.MenuCopyFinishedURL)
	e.c.HandleMenu(affordance.MenuFinishedProperties)
	e.c.Flush()
	assert.Equal(t, "https://example.org/f", e.peer.clipboard)
	require.Len(t, e.peer.properties, 1)
	assert.Equal(t, "f", e.peer.properties[0].ID)

	e.peer.openErr = errors.New("no handler")
	e.c.HandleGesture(GestureOpenFile)
	e.c.Flush()
	assert.Len(t, e.peer.messages, 1)
}

func TestSaveAsAndRefreshLink(t *testing.T) {
	e := newEnv(t, []models.InProgressEntry{ipEntry("a", "one", models.StatusStopped)}, nil)
	e.peer.selected = []string{"a"}
	target := filepath.Join(e.dir, "elsewhere", "renamed.iso")

	e.peer.promptValue, e.peer.promptOK = target, true
	e.c.HandleMenu(affordance.MenuSaveAs)
	e.c.Flush()
	saved := e.gw.LoadInProgress()
	assert.Equal(t, "renamed.iso", saved[0].Name)
	assert.Equal(t, filepath.Join(e.dir, "elsewhere"), saved[0].TargetDir)

	e.peer.promptValue = "https://mirror.example.org/one"
	e.c.HandleMenu(affordance.MenuRefresh)
	e.c.Flush()
	assert.Equal(t, "https://mirror.example.org/one", e.gw.LoadInProgress()[0].PrimaryURL)

	e.peer.promptValue = "not an address"
	e.c.HandleMenu(affordance.MenuRefresh)
	e.c.Flush()
	assert.Len(t, e.peer.messages, 1)
	assert.Equal(t, "https://mirror.example.org/one", e.gw.LoadInProgress()[0].PrimaryURL)

	e.peer.promptOK = false
	e.peer.promptValue = "https://cancelled.example.org"
	e.c.HandleMenu(affordance.MenuRefresh)
	e.c.Flush()
	assert.Equal(t, "https://mirror.example.org/one", e.gw.LoadInProgress()[0].PrimaryURL)
}

func TestEditsRecomputeToolbar(t *testing.T) {
	tests := []struct {
		name string
		edit func(e *env)
	}{
		{name: "save as", edit: func(e *env) {
			e.peer.promptValue, e.peer.promptOK = filepath.Join(e.dir, "moved", "one.iso"), true
			e.c.HandleMenu(affordance.MenuSaveAs)
		}},
		{name: "refresh link", edit: func(e *env) {
			e.peer.promptValue, e.peer.promptOK = "https://mirror.example.org/one", true
			e.c.HandleMenu(affordance.MenuRefresh)
		}},
		{name: "engine renames file", edit: func(e *env) {
			e.c.RenameFile("a", "", "server-name.iso")
		}},
		{name: "engine updates item", edit: func(e *env) {
			e.c.UpdateItem("a", "real-name.iso", 1024)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, []models.InProgressEntry{ipEntry("a", "one", models.StatusStopped)}, nil)
			e.peer.selected = []string{"a"}
			e.c.Flush()
			before := e.peer.toolbarSets

			tt.edit(e)
			e.c.Flush()

			assert.Greater(t, e.peer.toolbarSets, before)
			assert.True(t, e.peer.toolbar[affordance.ButtonResume].Enabled)
		})
	}
}

func TestInProgressItemActions(t *testing.T) {
	e := newEnv(t, []models.InProgressEntry{ipEntry("a", "one", models.StatusStopped), ipEntry("b", "two", models.StatusStopped)}, nil)

	e.peer.selected = []string{"a"}
	e.c.HandleMenu(affordance.MenuCopyURL)
	e.c.HandleMenu(affordance.MenuProperties)
	e.peer.selected = []string{"a", "b"}
	e.c.HandleMenu(affordance.MenuShowProgress)
	e.c.HandleMenu(affordance.MenuSchedule)
	e.c.Flush()

	assert.Equal(t, "https://example.org/a", e.peer.clipboard)
	require.Len(t, e.peer.properties, 1)
	assert.Equal(t, []string{"a", "b"}, e.peer.progressWins)
	assert.NotNil(t, e.peer.onManagerDone)
}

func TestClearFinished(t *testing.T) {
	e := newEnv(t, []models.InProgressEntry{ipEntry("a", "one", models.StatusStopped)},
		[]models.FinishedEntry{finEntry("f", "a.bin"), finEntry("g", "b.bin")})

	e.c.HandleGesture(GestureClearFinished)
	e.c.Flush()

	assert.Empty(t, e.peer.finished)
	assert.Empty(t, e.gw.LoadFinished())
	assert.Len(t, e.gw.LoadInProgress(), 1)
	hits, err := e.c.Search("a.bin", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestExportThenImport(t *testing.T) {
	src := newEnv(t,
		[]models.InProgressEntry{ipEntry("a", "one", models.StatusStopped), ipEntry("b", "two", models.StatusStopped)},
		[]models.FinishedEntry{finEntry("f", "a.bin")},
	)
	path := filepath.Join(t.TempDir(), "lists.toml")
	src.peer.chosenFile = path
	src.c.HandleGesture(GestureExport)
	src.c.Flush()
	_, err := os.Stat(path)
	require.NoError(t, err)

	dst := newEnv(t, []models.InProgressEntry{ipEntry("z", "mine", models.StatusStopped), ipEntry("a", "dup", models.StatusStopped)}, nil)
	dst.peer.chosenFile = path
	dst.c.HandleGesture(GestureImport)
	dst.c.Flush()

	ip, fin := dst.c.Lists()
	assert.Equal(t, []string{"b", "z", "a"}, ids(ip))
	assert.Equal(t, "dup", ip[2].Name, "existing entries win over imported ones")
	assert.Equal(t, []string{"f"}, finishedIDs(fin))
	assert.Len(t, dst.gw.LoadInProgress(), 3)
	assert.Len(t, dst.gw.LoadFinished(), 1)

	dst.peer.chosenFile = filepath.Join(t.TempDir(), "missing.toml")
	dst.c.HandleGesture(GestureImport)
	dst.c.Flush()
	assert.Len(t, dst.peer.messages, 1)
}

func TestNewDownloadDialogIsNotDuplicated(t *testing.T) {
	e := newEnv(t, nil, nil)

	e.c.ShowNewDownloadDialog("https://example.org/file")
	e.c.ShowNewDownloadDialog("https://example.org/file")
	e.c.HandleGesture(GestureNewDownload)
	e.c.HandleGesture(GestureNewDownload)
	e.c.Flush()
	assert.Equal(t, []string{"https://example.org/file", "", ""}, e.peer.newDialogs)

	e.do(e.peer.dialogClosers[0])
	e.c.ShowNewDownloadDialog("https://example.org/file")
	e.c.Flush()
	assert.Len(t, e.peer.newDialogs, 4)
}

func TestHelpLinks(t *testing.T) {
	e := newEnv(t, nil, nil, func(s *Settings) { s.BugReportURL = "" })
	e.c.HandleGesture(GestureHelp)
	e.c.HandleGesture(GestureSupport)
	e.c.HandleGesture(GestureBugReport)
	e.c.Flush()
	assert.Equal(t, []string{"browser:https://example.org/help", "browser:https://example.org/support"}, e.peer.opened)
}

func TestEveryGestureAndMenuItemHasAHandler(t *testing.T) {
	e := newEnv(t, nil, nil)
	for g := GestureNewDownload; g <= GestureFinishedMenuOpening; g++ {
		assert.Contains(t, e.c.gestures, g, g.String())
	}
	for _, items := range [][]affordance.MenuItem{affordance.InProgressMenu, affordance.FinishedMenu} {
		for _, it := range items {
			assert.Contains(t, e.c.menu, it, it.String())
		}
	}
}

func TestPromptTracker(t *testing.T) {
	p := NewPromptTracker()
	assert.True(t, p.Open("u"))
	assert.True(t, p.IsOpen("u"))
	assert.False(t, p.Open("u"))
	p.Close("u")
	assert.False(t, p.IsOpen("u"))
	assert.True(t, p.Open(""))
	assert.True(t, p.Open(""))
}
