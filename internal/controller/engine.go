package controller

// Callbacks from the download engine. All of them may be called from any
// goroutine and return without waiting for the loop.

// DownloadStarted marks id as running.
func (c *Controller) DownloadStarted(id string) { c.sync.OnStarted(id) }

// UpdateProgress reports transfer progress for id.
func (c *Controller) UpdateProgress(id string, percent int, speedBytesPerSec float64, etaSeconds int64) {
	c.sync.OnProgress(id, percent, speedBytesPerSec, etaSeconds)
}

// DownloadStopped reports that the engine let go of id after a pause.
func (c *Controller) DownloadStopped(id string) { c.sync.OnStopped(id) }

// DownloadFinished moves id to the finished list.
func (c *Controller) DownloadFinished(id string, finalSize int64, filePath string) {
	c.sync.OnFinished(id, finalSize, filePath)
}

// DownloadFailed marks id as failed and notifies the adapter.
func (c *Controller) DownloadFailed(id string) { c.sync.OnFailed(id) }

// DownloadCancelled is reported to the user the same way as a failure.
func (c *Controller) DownloadCancelled(id string) { c.sync.OnCancelled(id) }

// SetDownloadStatusWaiting puts id back to stopped while it waits for a slot.
func (c *Controller) SetDownloadStatusWaiting(id string) { c.sync.OnWaiting(id) }

// RenameFile records the folder and file name the engine settled on. Empty
// values leave the current ones in place.
func (c *Controller) RenameFile(id, folder, file string) {
	c.loop.Post(func() {
		if e := c.store.FindInProgress(id); e != nil {
			c.renameEntry(e, folder, file)
		}
	})
}

// UpdateItem records the name and size learned once the transfer began.
func (c *Controller) UpdateItem(id, name string, size int64) {
	c.loop.Post(func() {
		e := c.store.FindInProgress(id)
		if e == nil {
			return
		}
		if name != "" {
			e.Name = name
		}
		e.Size = size
		c.indexInProgress(e)
		c.peer.EntryChanged(*e)
		c.saveInProgress()
		c.refresh()
	})
}
