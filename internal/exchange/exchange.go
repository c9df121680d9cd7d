// Package exchange moves download lists in and out of the application: TOML
// list files for export/import and .torrent files for new downloads.
package exchange

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/JaymoCodes/xdm/internal/models"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

// FormatVersion is written to every exported list file.
const FormatVersion = 1

// ErrUnsupportedVersion is returned for list files written by a newer release.
var ErrUnsupportedVersion = errors.New("unsupported list file version")

// ListFile is the on-disk layout of an exported list.
type ListFile struct {
	Version    int                      `toml:"Version"`
	ExportedAt time.Time                `toml:"ExportedAt"`
	InProgress []models.InProgressEntry `toml:"InProgress"`
	Finished   []models.FinishedEntry   `toml:"Finished"`
}

// Export writes both lists to w.
func Export(w io.Writer, inProgress []models.InProgressEntry, finished []models.FinishedEntry) error {
	lf := ListFile{
		Version:    FormatVersion,
		ExportedAt: time.Now().UTC().Truncate(time.Second),
		InProgress: inProgress,
		Finished:   finished,
	}
	if err := toml.NewEncoder(w).Encode(lf); err != nil {
		return fmt.Errorf("encoding list file: %w", err)
	}
	return nil
}

// ExportFile writes both lists to path, replacing any existing file.
func ExportFile(path string, inProgress []models.InProgressEntry, finished []models.FinishedEntry) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating export directory %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export file %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing export file %s: %w", path, closeErr)
		}
	}()
	if err := Export(f, inProgress, finished); err != nil {
		return err
	}
	log.WithField("path", path).Infof("Exported %d in-progress and %d finished download(s)", len(inProgress), len(finished))
	return nil
}

// Import reads a list file. Entries without an identifier are dropped and
// in-progress entries come back stopped, since nothing runs after an import.
func Import(r io.Reader) (*ListFile, error) {
	var lf ListFile
	if _, err := toml.NewDecoder(r).Decode(&lf); err != nil {
		return nil, fmt.Errorf("decoding list file: %w", err)
	}
	if lf.Version > FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, lf.Version)
	}

	ip := lf.InProgress[:0]
	for _, e := range lf.InProgress {
		if e.ID == "" {
			log.WithField("name", e.Name).Warn("Skipping imported download without id")
			continue
		}
		if e.Status.IsActive() || !e.Status.Valid() {
			e.Status = models.StatusStopped
		}
		e.DownloadSpeed = ""
		e.ETA = ""
		ip = append(ip, e)
	}
	lf.InProgress = ip

	fin := lf.Finished[:0]
	for _, e := range lf.Finished {
		if e.ID == "" {
			log.WithField("name", e.Name).Warn("Skipping imported download without id")
			continue
		}
		fin = append(fin, e)
	}
	lf.Finished = fin
	return &lf, nil
}

// ImportFile reads the list file at path.
func ImportFile(path string) (*ListFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening list file %s: %w", path, err)
	}
	defer f.Close()
	return Import(f)
}
