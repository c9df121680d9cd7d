// Package controller connects the download lists to a UI adapter and a
// download engine.
//
// Everything that reads or mutates the lists runs on the dispatch loop. The
// exported methods of Controller may be called from any goroutine: mutators
// post their work to the loop and return, queries wait for the loop.
package controller

import (
	"time"

	"github.com/JaymoCodes/xdm/internal/affordance"
	"github.com/JaymoCodes/xdm/internal/dispatch"
	"github.com/JaymoCodes/xdm/internal/index"
	"github.com/JaymoCodes/xdm/internal/metrics"
	"github.com/JaymoCodes/xdm/internal/models"
	"github.com/JaymoCodes/xdm/internal/persistence"
	"github.com/JaymoCodes/xdm/internal/progress"
	"github.com/JaymoCodes/xdm/internal/queue"
	"github.com/JaymoCodes/xdm/internal/store"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Peer is the UI adapter. Every method is called on the dispatch loop, and
// callbacks handed to the adapter must be run there too.
type Peer interface {
	queue.Peer

	CurrentView() models.View
	SwitchView(v models.View)
	// SelectedIDs returns the rows selected in the current view.
	SelectedIDs() []string
	ClearSelection()

	SetToolbar(t affordance.Toolbar)
	SetMenu(view models.View, m affordance.Menu)

	// ShowInProgress and ShowFinished replace the rows of a list view.
	ShowInProgress(entries []models.InProgressEntry)
	ShowFinished(entries []models.FinishedEntry)
	// EntryChanged updates one in-progress row in place.
	EntryChanged(e models.InProgressEntry)

	ShowMessage(message string)
	// Prompt asks for a line of text. ok is false when the user cancels.
	Prompt(message, initial string) (value string, ok bool)
	// ChooseFile asks for a path to read from, or to write to when save is set.
	ChooseFile(title string, save bool) (path string, ok bool)
	ShowProperties(e models.DownloadEntry)
	ShowProgressWindow(id string)
	ShowDownloadFailed(e models.InProgressEntry)
	ShowDownloadComplete(e models.FinishedEntry)
	// ShowNewDownloadDialog opens the new-download dialog for url, which may be
	// empty, and calls onClosed when it goes away.
	ShowNewDownloadDialog(url string, onClosed func())

	SetClipboard(text string)
	OpenFile(path string) error
	OpenFolder(dir, file string) error
	OpenBrowser(url string) error
}

// Engine runs the actual transfers.
type Engine interface {
	Resume(ids []string)
	// Restart is Resume with any partial data discarded first.
	Restart(ids []string)
	Stop(ids []string)
}

// QueueRegistry is the queue store the controller assigns and prunes.
type QueueRegistry interface {
	queue.Registry
	RemoveDownloads(ids []string) error
}

// Settings are the user-facing knobs the controller reads.
type Settings struct {
	Throttle           time.Duration
	ConfirmDelete      bool
	ConfirmMoveToQueue bool
	// DefaultSpeedLimitKiB is applied to new downloads that carry no limit.
	DefaultSpeedLimitKiB int64
	HelpURL              string
	SupportURL           string
	BugReportURL         string
}

// Deps is everything New needs. Index and Metrics are optional.
type Deps struct {
	Peer     Peer
	Engine   Engine
	Loop     *dispatch.Loop
	Queues   QueueRegistry
	Gateway  *persistence.Gateway
	Writer   *persistence.Writer
	Index    *index.Index
	Metrics  *metrics.Metrics
	Settings Settings
	// Now replaces time.Now, mainly for tests.
	Now func() time.Time
}

// Controller is the facade the UI adapter and the engine talk to.
type Controller struct {
	peer     Peer
	engine   Engine
	loop     *dispatch.Loop
	queues   QueueRegistry
	gateway  *persistence.Gateway
	writer   *persistence.Writer
	index    *index.Index
	metrics  *metrics.Metrics
	settings Settings
	now      func() time.Time

	store     *store.Store
	sync      *progress.Synchronizer
	queueFlow *queue.Coordinator
	prompts   *PromptTracker

	gestures map[Gesture]func()
	menu     map[affordance.MenuItem]func()
}

// New builds the controller, loads both lists and publishes them to the
// adapter. It waits for the loop, so it must not be called from it.
func New(d Deps) *Controller {
	c := &Controller{
		peer:     d.Peer,
		engine:   d.Engine,
		loop:     d.Loop,
		queues:   d.Queues,
		gateway:  d.Gateway,
		writer:   d.Writer,
		index:    d.Index,
		metrics:  d.Metrics,
		settings: d.Settings,
		now:      d.Now,
		store:    store.New(),
		prompts:  NewPromptTracker(),
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.sync = progress.New(c.loop, c.store, hooks{c}, c.settings.Throttle,
		progress.WithClock(c.now), progress.WithMetrics(c.metrics))
	c.queueFlow = queue.NewCoordinator(c.peer, c.queues, nil)
	c.gestures = c.gestureTable()
	c.menu = c.menuTable()

	inProgress, finished := c.loadLists()
	c.loop.Do(func() {
		c.store.ReplaceInProgress(inProgress)
		c.store.ReplaceFinished(finished)
		c.reindex()
		c.publishInProgress()
		c.publishFinished()
		c.refresh()
		log.WithFields(log.Fields{
			"inProgress": len(c.store.InProgress()),
			"finished":   len(c.store.Finished()),
		}).Info("Download lists loaded")
	})
	return c
}

// loadLists reads both records concurrently. Load failures already degrade
// to empty lists inside the gateway.
func (c *Controller) loadLists() ([]*models.InProgressEntry, []*models.FinishedEntry) {
	var (
		g          errgroup.Group
		inProgress []*models.InProgressEntry
		finished   []*models.FinishedEntry
	)
	g.Go(func() error {
		inProgress = c.gateway.LoadInProgress()
		return nil
	})
	g.Go(func() error {
		finished = c.gateway.LoadFinished()
		return nil
	})
	_ = g.Wait()
	return inProgress, finished
}

// Lists returns copies of both lists.
func (c *Controller) Lists() (inProgress []models.InProgressEntry, finished []models.FinishedEntry) {
	c.loop.Do(func() {
		inProgress = c.store.SnapshotInProgress()
		finished = c.store.SnapshotFinished()
	})
	return inProgress, finished
}

// Entry returns a copy of the in-progress entry with id.
func (c *Controller) Entry(id string) (e models.InProgressEntry, ok bool) {
	c.loop.Do(func() {
		if p := c.store.FindInProgress(id); p != nil {
			e, ok = *p, true
		}
	})
	return e, ok
}

// Toolbar returns the toolbar state for the adapter's current view and selection.
func (c *Controller) Toolbar() (t affordance.Toolbar) {
	c.loop.Do(func() { t = affordance.DeriveToolbar(c.affordanceInput()) })
	return t
}

// Search queries the index. It returns nothing when indexing is disabled.
func (c *Controller) Search(query string, limit int) ([]index.Hit, error) {
	if c.index == nil {
		return nil, nil
	}
	return c.index.Search(query, limit)
}

// Flush waits for everything already posted to the loop and for the
// resulting writes to reach storage.
func (c *Controller) Flush() {
	c.loop.Do(func() {})
	c.writer.Flush()
}

// refresh recomputes the toolbar from the current view and selection.
func (c *Controller) refresh() {
	c.peer.SetToolbar(affordance.DeriveToolbar(c.affordanceInput()))
}

func (c *Controller) affordanceInput() affordance.Input {
	view := c.peer.CurrentView()
	ids := c.selection(view)
	in := affordance.Input{View: view, Selected: len(ids)}
	if view == models.ViewInProgress && len(ids) == 1 {
		if e := c.store.FindInProgress(ids[0]); e != nil {
			in.SingleActive = e.Status.IsActive()
		}
	}
	return in
}

// selection is the adapter's selection restricted to ids that still exist in view.
func (c *Controller) selection(view models.View) []string {
	return c.store.FilterIDs(view, c.peer.SelectedIDs())
}

func (c *Controller) saveInProgress() {
	c.writer.SaveInProgress(c.store.SnapshotInProgress())
}

func (c *Controller) saveFinished() {
	c.writer.SaveFinished(c.store.SnapshotFinished())
}

func (c *Controller) publishInProgress() {
	c.peer.ShowInProgress(c.store.SnapshotInProgress())
}

func (c *Controller) publishFinished() {
	c.peer.ShowFinished(c.store.SnapshotFinished())
}

func (c *Controller) reindex() {
	if c.index == nil {
		return
	}
	if err := c.index.Rebuild(c.store.InProgress(), c.store.Finished()); err != nil {
		log.WithError(err).Warn("Could not rebuild search index")
	}
}

func (c *Controller) indexInProgress(e *models.InProgressEntry) {
	if c.index == nil {
		return
	}
	if err := c.index.PutInProgress(e); err != nil {
		log.WithError(err).WithField("id", e.ID).Warn("Could not index download")
	}
}

func (c *Controller) indexFinished(e *models.FinishedEntry) {
	if c.index == nil {
		return
	}
	if err := c.index.PutFinished(e); err != nil {
		log.WithError(err).WithField("id", e.ID).Warn("Could not index download")
	}
}

func (c *Controller) unindex(ids []string) {
	if c.index == nil || len(ids) == 0 {
		return
	}
	if err := c.index.Delete(ids...); err != nil {
		log.WithError(err).Warn("Could not remove downloads from search index")
	}
}

func (c *Controller) dropFromQueues(ids []string) {
	if len(ids) == 0 {
		return
	}
	if err := c.queues.RemoveDownloads(ids); err != nil {
		log.WithError(err).Warn("Could not remove downloads from their queues")
	}
}

// hooks is how the synchronizer reaches back into the controller.
type hooks struct{ c *Controller }

func (h hooks) SaveInProgress() { h.c.saveInProgress() }
func (h hooks) SaveFinished()   { h.c.saveFinished() }
func (h hooks) Refresh()        { h.c.refresh() }

func (h hooks) EntryChanged(e *models.InProgressEntry) {
	h.c.peer.EntryChanged(*e)
}

func (h hooks) DownloadFailed(e *models.InProgressEntry) {
	log.WithField("id", e.ID).Warnf("Download failed: %s", e.Name)
	h.c.peer.ShowDownloadFailed(*e)
}

func (h hooks) DownloadFinished(e *models.FinishedEntry) {
	c := h.c
	log.WithFields(log.Fields{"id": e.ID, "path": e.FilePath}).Infof("Download finished: %s", e.Name)
	c.indexFinished(e)
	c.dropFromQueues([]string{e.ID})
	c.publishInProgress()
	c.publishFinished()
	c.peer.ShowDownloadComplete(*e)
}
