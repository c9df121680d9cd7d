package controller

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/JaymoCodes/xdm/internal/affordance"
	"github.com/JaymoCodes/xdm/internal/exchange"
	"github.com/JaymoCodes/xdm/internal/helpers"
	"github.com/JaymoCodes/xdm/internal/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Gesture is a toolbar click or view notification coming from the adapter.
type Gesture int

const (
	GestureNewDownload Gesture = iota
	GestureSelectionChanged
	GestureViewChanged
	GestureDelete
	GestureOpenFile
	GestureOpenFolder
	GesturePause
	GestureResume
	GestureClearFinished
	GestureImport
	GestureExport
	GestureHelp
	GestureSupport
	GestureBugReport
	GestureScheduler
	GestureMoveToQueue
	GestureInProgressMenuOpening
	GestureFinishedMenuOpening
)

var gestureNames = map[Gesture]string{
	GestureNewDownload:           "new-download",
	GestureSelectionChanged:      "selection-changed",
	GestureViewChanged:           "view-changed",
	GestureDelete:                "delete",
	GestureOpenFile:              "open-file",
	GestureOpenFolder:            "open-folder",
	GesturePause:                 "pause",
	GestureResume:                "resume",
	GestureClearFinished:         "clear-finished",
	GestureImport:                "import",
	GestureExport:                "export",
	GestureHelp:                  "help",
	GestureSupport:               "support",
	GestureBugReport:             "bug-report",
	GestureScheduler:             "scheduler",
	GestureMoveToQueue:           "move-to-queue",
	GestureInProgressMenuOpening: "inprogress-menu-opening",
	GestureFinishedMenuOpening:   "finished-menu-opening",
}

func (g Gesture) String() string {
	if s, ok := gestureNames[g]; ok {
		return s
	}
	return fmt.Sprintf("gesture(%d)", int(g))
}

// Messages shown through the adapter.
const (
	ConfirmDeleteMessage = "Are you sure you want to delete the selected downloads?"
	SaveAsPrompt         = "Save as"
	RefreshLinkPrompt    = "New address for this download"
)

func (c *Controller) gestureTable() map[Gesture]func() {
	return map[Gesture]func(){
		GestureNewDownload:           func() { c.showNewDownloadDialog("") },
		GestureSelectionChanged:      c.refresh,
		GestureViewChanged:           c.refresh,
		GestureDelete:                c.deleteSelected,
		GestureOpenFile:              c.openSelectedFile,
		GestureOpenFolder:            c.openSelectedFolder,
		GesturePause:                 c.pauseSelected,
		GestureResume:                c.resumeSelected,
		GestureClearFinished:         c.clearFinished,
		GestureImport:                c.importLists,
		GestureExport:                c.exportLists,
		GestureHelp:                  func() { c.openLink(c.settings.HelpURL) },
		GestureSupport:               func() { c.openLink(c.settings.SupportURL) },
		GestureBugReport:             func() { c.openLink(c.settings.BugReportURL) },
		GestureScheduler:             c.showScheduler,
		GestureMoveToQueue:           func() { c.moveSelectedToQueue(false) },
		GestureInProgressMenuOpening: c.inProgressMenuOpening,
		GestureFinishedMenuOpening:   c.finishedMenuOpening,
	}
}

func (c *Controller) menuTable() map[affordance.MenuItem]func() {
	return map[affordance.MenuItem]func(){
		affordance.MenuPause:        c.pauseSelected,
		affordance.MenuResume:       c.resumeSelected,
		affordance.MenuDelete:       c.deleteSelected,
		affordance.MenuSaveAs:       c.saveAs,
		affordance.MenuRefresh:      c.refreshLink,
		affordance.MenuShowProgress: c.showProgress,
		affordance.MenuCopyURL:      c.copyURL,
		affordance.MenuProperties:   c.showProperties,
		affordance.MenuRestart:      c.restartSelected,
		affordance.MenuSchedule:     c.showScheduler,
		affordance.MenuMoveToQueue:  func() { c.moveSelectedToQueue(false) },

		affordance.MenuOpenFile:           c.openSelectedFile,
		affordance.MenuOpenFolder:         c.openSelectedFolder,
		affordance.MenuDeleteFinished:     c.deleteSelected,
		affordance.MenuCopyFinishedURL:    c.copyURL,
		affordance.MenuCopyFile:           c.copyFilePath,
		affordance.MenuFinishedProperties: c.showProperties,
		affordance.MenuDownloadAgain:      c.downloadAgain,
	}
}

// HandleGesture runs the handler bound to g on the loop.
func (c *Controller) HandleGesture(g Gesture) {
	h, ok := c.gestures[g]
	if !ok {
		log.WithField("gesture", g.String()).Warn("No handler for gesture")
		return
	}
	c.loop.Post(h)
}

// HandleMenu runs the handler bound to the context-menu item on the loop.
func (c *Controller) HandleMenu(item affordance.MenuItem) {
	h, ok := c.menu[item]
	if !ok {
		log.WithField("item", item.String()).Warn("No handler for menu item")
		return
	}
	c.loop.Post(h)
}

// AddDownload puts a new stopped download at the top of the in-progress list
// and switches the adapter to it. An empty id gets a fresh one.
func (c *Controller) AddDownload(e models.DownloadEntry) {
	c.loop.Post(func() { c.addDownload(e) })
}

func (c *Controller) addDownload(base models.DownloadEntry) {
	if base.ID == "" {
		base.ID = uuid.NewString()
	}
	if base.MaxSpeedLimitKiB == 0 {
		base.MaxSpeedLimitKiB = c.settings.DefaultSpeedLimitKiB
	}
	if base.DateAdded.IsZero() {
		base.DateAdded = c.now()
	}
	e := models.NewInProgressEntry(base)
	if err := c.store.Add(e); err != nil {
		log.WithError(err).WithField("id", base.ID).Warn("Download not added")
		return
	}
	log.WithFields(log.Fields{"id": e.ID, "url": e.PrimaryURL}).Infof("Added download %s", e.Name)

	c.peer.SwitchView(models.ViewInProgress)
	c.peer.ClearSelection()
	c.publishInProgress()
	c.indexInProgress(e)
	c.saveInProgress()
	c.refresh()
}

// MoveToQueue runs the move-to-queue flow for ids, asking first when confirm is set.
func (c *Controller) MoveToQueue(ids []string, confirm bool) {
	ids = append([]string(nil), ids...)
	c.loop.Post(func() {
		c.queueFlow.MoveToQueue(c.store.FilterIDs(models.ViewInProgress, ids), confirm)
	})
}

// ResumeDownload asks the engine to resume one download.
func (c *Controller) ResumeDownload(id string) {
	c.loop.Post(func() {
		if c.store.FindInProgress(id) == nil {
			return
		}
		c.engine.Resume([]string{id})
	})
}

// ShowNewDownloadDialog opens the new-download dialog for url unless one is
// already open for it.
func (c *Controller) ShowNewDownloadDialog(url string) {
	c.loop.Post(func() { c.showNewDownloadDialog(url) })
}

func (c *Controller) showNewDownloadDialog(url string) {
	if !c.prompts.Open(url) {
		log.WithField("url", url).Debug("New download prompt already open")
		return
	}
	c.peer.ShowNewDownloadDialog(url, func() { c.prompts.Close(url) })
}

func (c *Controller) deleteSelected() {
	view := c.peer.CurrentView()
	ids := c.selection(view)
	if len(ids) == 0 {
		return
	}
	if c.settings.ConfirmDelete && !c.peer.Confirm(ConfirmDeleteMessage) {
		return
	}

	if view == models.ViewInProgress {
		var running []string
		for _, id := range ids {
			if e := c.store.FindInProgress(id); e != nil && e.Status.IsActive() {
				running = append(running, id)
			}
		}
		if len(running) > 0 {
			c.engine.Stop(running)
		}
	}
	for _, id := range ids {
		c.store.Remove(id)
	}
	log.WithField("view", view.String()).Infof("Deleted %d download(s)", len(ids))

	c.unindex(ids)
	c.dropFromQueues(ids)
	c.peer.ClearSelection()
	if view == models.ViewInProgress {
		c.publishInProgress()
		c.saveInProgress()
	} else {
		c.publishFinished()
		c.saveFinished()
	}
	c.refresh()
}

func (c *Controller) pauseSelected() {
	if c.peer.CurrentView() != models.ViewInProgress {
		return
	}
	if ids := c.selection(models.ViewInProgress); len(ids) > 0 {
		c.engine.Stop(ids)
	}
}

func (c *Controller) resumeSelected() {
	if c.peer.CurrentView() != models.ViewInProgress {
		return
	}
	var ids []string
	for _, id := range c.selection(models.ViewInProgress) {
		if e := c.store.FindInProgress(id); e != nil && !e.Status.IsActive() {
			ids = append(ids, id)
		}
	}
	if len(ids) > 0 {
		c.engine.Resume(ids)
	}
}

// restartSelected throws away the progress of one stopped download and starts it again.
func (c *Controller) restartSelected() {
	e := c.singleInProgress()
	if e == nil || e.Status.IsActive() {
		return
	}
	e.Progress = 0
	e.DownloadSpeed = ""
	e.ETA = ""
	e.Status = models.StatusStopped
	c.peer.EntryChanged(*e)
	c.saveInProgress()
	c.engine.Restart([]string{e.ID})
	c.refresh()
}

// downloadAgain moves one finished download back to the top of the
// in-progress list and starts it.
func (c *Controller) downloadAgain() {
	fin := c.singleFinished()
	if fin == nil {
		return
	}
	base := fin.DownloadEntry
	c.store.Remove(fin.ID)
	e := models.NewInProgressEntry(base)
	if err := c.store.Add(e); err != nil {
		log.WithError(err).WithField("id", base.ID).Warn("Could not download again")
		return
	}
	c.indexInProgress(e)
	c.peer.SwitchView(models.ViewInProgress)
	c.peer.ClearSelection()
	c.publishInProgress()
	c.publishFinished()
	c.saveInProgress()
	c.saveFinished()
	c.engine.Resume([]string{e.ID})
	c.refresh()
}

func (c *Controller) openSelectedFile() {
	fin := c.singleFinished()
	if fin == nil {
		return
	}
	if err := c.peer.OpenFile(fin.FilePath); err != nil {
		log.WithError(err).WithField("path", fin.FilePath).Warn("Could not open file")
		c.peer.ShowMessage(fmt.Sprintf("Could not open %s", fin.FilePath))
	}
}

func (c *Controller) openSelectedFolder() {
	fin := c.singleFinished()
	if fin == nil {
		return
	}
	dir, file := filepath.Dir(fin.FilePath), filepath.Base(fin.FilePath)
	if fin.FilePath == "" {
		dir, file = fin.TargetDir, fin.Name
	}
	if err := c.peer.OpenFolder(dir, file); err != nil {
		log.WithError(err).WithField("dir", dir).Warn("Could not open folder")
		c.peer.ShowMessage(fmt.Sprintf("Could not open %s", dir))
	}
}

func (c *Controller) copyURL() {
	switch c.peer.CurrentView() {
	case models.ViewInProgress:
		if e := c.singleInProgress(); e != nil {
			c.peer.SetClipboard(e.PrimaryURL)
		}
	case models.ViewFinished:
		if fin := c.singleFinished(); fin != nil {
			c.peer.SetClipboard(fin.PrimaryURL)
		}
	}
}

func (c *Controller) copyFilePath() {
	if fin := c.singleFinished(); fin != nil {
		c.peer.SetClipboard(fin.FilePath)
	}
}

func (c *Controller) showProperties() {
	switch c.peer.CurrentView() {
	case models.ViewInProgress:
		if e := c.singleInProgress(); e != nil {
			c.peer.ShowProperties(e.DownloadEntry)
		}
	case models.ViewFinished:
		if fin := c.singleFinished(); fin != nil {
			c.peer.ShowProperties(fin.DownloadEntry)
		}
	}
}

func (c *Controller) showProgress() {
	if c.peer.CurrentView() != models.ViewInProgress {
		return
	}
	for _, id := range c.selection(models.ViewInProgress) {
		c.peer.ShowProgressWindow(id)
	}
}

// saveAs lets the user pick a new target path for one in-progress download.
func (c *Controller) saveAs() {
	e := c.singleInProgress()
	if e == nil {
		return
	}
	value, ok := c.peer.Prompt(SaveAsPrompt, filepath.Join(e.TargetDir, e.Name))
	if !ok || strings.TrimSpace(value) == "" {
		return
	}
	dir, file := filepath.Split(strings.TrimSpace(value))
	c.renameEntry(e, strings.TrimSuffix(dir, string(filepath.Separator)), file)
}

// refreshLink replaces the source address of one in-progress download, e.g.
// after the old link expired.
func (c *Controller) refreshLink() {
	e := c.singleInProgress()
	if e == nil {
		return
	}
	value, ok := c.peer.Prompt(RefreshLinkPrompt, e.PrimaryURL)
	value = strings.TrimSpace(value)
	if !ok || value == "" || value == e.PrimaryURL {
		return
	}
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || (u.Host == "" && u.Opaque == "") {
		c.peer.ShowMessage(fmt.Sprintf("%q is not a valid address", value))
		return
	}
	e.PrimaryURL = value
	log.WithField("id", e.ID).Info("Download address refreshed")
	c.indexInProgress(e)
	c.peer.EntryChanged(*e)
	c.saveInProgress()
	c.refresh()
}

func (c *Controller) showScheduler() {
	c.peer.ShowQueueManager(func() {})
}

func (c *Controller) moveSelectedToQueue(confirm bool) {
	if c.peer.CurrentView() != models.ViewInProgress {
		return
	}
	c.queueFlow.MoveToQueue(c.selection(models.ViewInProgress), confirm || c.settings.ConfirmMoveToQueue)
}

func (c *Controller) clearFinished() {
	ids := c.store.ClearFinished()
	if len(ids) == 0 {
		return
	}
	log.Infof("Cleared %d finished download(s)", len(ids))
	c.unindex(ids)
	c.dropFromQueues(ids)
	if c.peer.CurrentView() == models.ViewFinished {
		c.peer.ClearSelection()
	}
	c.publishFinished()
	c.saveFinished()
	c.refresh()
}

// importLists merges a list file into both lists. Known ids are skipped.
func (c *Controller) importLists() {
	path, ok := c.peer.ChooseFile("Import downloads", false)
	if !ok || path == "" {
		return
	}
	lf, err := exchange.ImportFile(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Warn("Import failed")
		c.peer.ShowMessage(fmt.Sprintf("Could not import %s", path))
		return
	}

	added := 0
	// Add prepends, so walk backwards to keep the file order at the top.
	for i := len(lf.InProgress) - 1; i >= 0; i-- {
		e := lf.InProgress[i]
		if err := c.store.Add(&e); err != nil {
			log.WithField("id", e.ID).Debug("Skipping imported download that already exists")
			continue
		}
		added++
	}
	finished := append([]*models.FinishedEntry(nil), c.store.Finished()...)
	before := len(finished)
	for i := range lf.Finished {
		finished = append(finished, &lf.Finished[i])
	}
	c.store.ReplaceFinished(finished)
	added += len(c.store.Finished()) - before

	log.WithField("path", path).Infof("Imported %d download(s)", added)
	c.reindex()
	c.publishInProgress()
	c.publishFinished()
	c.saveInProgress()
	c.saveFinished()
	c.refresh()
}

func (c *Controller) exportLists() {
	path, ok := c.peer.ChooseFile("Export downloads", true)
	if !ok || path == "" {
		return
	}
	if err := exchange.ExportFile(path, c.store.SnapshotInProgress(), c.store.SnapshotFinished()); err != nil {
		log.WithError(err).WithField("path", path).Warn("Export failed")
		c.peer.ShowMessage(fmt.Sprintf("Could not export to %s", path))
	}
}

func (c *Controller) openLink(link string) {
	if link == "" {
		return
	}
	if err := c.peer.OpenBrowser(link); err != nil {
		log.WithError(err).WithField("url", link).Warn("Could not open browser")
	}
}

func (c *Controller) inProgressMenuOpening() {
	ids := c.selection(models.ViewInProgress)
	singleActive := false
	if len(ids) == 1 {
		if e := c.store.FindInProgress(ids[0]); e != nil {
			singleActive = e.Status.IsActive()
		}
	}
	c.peer.SetMenu(models.ViewInProgress, affordance.DeriveInProgressMenu(len(ids), singleActive))
}

func (c *Controller) finishedMenuOpening() {
	ids := c.selection(models.ViewFinished)
	c.peer.SetMenu(models.ViewFinished, affordance.DeriveFinishedMenu(len(ids)))
}

// renameEntry applies a new folder and file name. Empty parts are left alone.
func (c *Controller) renameEntry(e *models.InProgressEntry, folder, file string) {
	changed := false
	if file != "" {
		if name := helpers.SanitizeFileName(file); name != "" && name != e.Name {
			e.Name = name
			changed = true
		}
	}
	if folder != "" && folder != e.TargetDir {
		e.TargetDir = folder
		changed = true
	}
	if !changed {
		return
	}
	c.indexInProgress(e)
	c.peer.EntryChanged(*e)
	c.saveInProgress()
	c.refresh()
}

func (c *Controller) singleInProgress() *models.InProgressEntry {
	if c.peer.CurrentView() != models.ViewInProgress {
		return nil
	}
	ids := c.selection(models.ViewInProgress)
	if len(ids) != 1 {
		return nil
	}
	return c.store.FindInProgress(ids[0])
}

func (c *Controller) singleFinished() *models.FinishedEntry {
	if c.peer.CurrentView() != models.ViewFinished {
		return nil
	}
	ids := c.selection(models.ViewFinished)
	if len(ids) != 1 {
		return nil
	}
	return c.store.FindFinished(ids[0])
}
