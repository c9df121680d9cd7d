package console

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/JaymoCodes/xdm/internal/helpers"
	"github.com/JaymoCodes/xdm/internal/models"
)

// RenderInProgress writes a numbered table of in-progress downloads.
func RenderInProgress(w io.Writer, entries []models.InProgressEntry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tName\tStatus\tProgress\tSize\tSpeed\tETA\tID")
	fmt.Fprintln(tw, "-\t----\t------\t--------\t----\t-----\t---\t--")
	for i, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d%%\t%s\t%s\t%s\t%s\n",
			i+1,
			helpers.TruncateString(e.Name, 40),
			e.Status,
			e.Progress,
			helpers.FormatSize(float64(e.Size)),
			e.DownloadSpeed,
			e.ETA,
			e.ID,
		)
	}
	tw.Flush()
}

// RenderFinished writes a numbered table of finished downloads.
func RenderFinished(w io.Writer, entries []models.FinishedEntry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tName\tSize\tFinished\tPath\tID")
	fmt.Fprintln(tw, "-\t----\t----\t--------\t----\t--")
	for i, e := range entries {
		finished := ""
		if !e.DateFinished.IsZero() {
			finished = e.DateFinished.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			i+1,
			helpers.TruncateString(e.Name, 40),
			helpers.FormatSize(float64(e.FileSize)),
			finished,
			helpers.TruncateString(e.FilePath, 50),
			e.ID,
		)
	}
	tw.Flush()
}

// Render writes the list for the current view.
func (p *Peer) Render(w io.Writer) {
	inProgress, finished := p.Rows()
	if p.CurrentView() == models.ViewFinished {
		RenderFinished(w, finished)
		return
	}
	RenderInProgress(w, inProgress)
}
