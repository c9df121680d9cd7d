package persistence

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/JaymoCodes/xdm/internal/helpers"

	log "github.com/sirupsen/logrus"
)

// fileMagic starts every record written by FileBackend; the BLAKE3-256 digest
// of the payload follows it.
var fileMagic = []byte("XDMLIST1")

const digestSize = 32

// FileBackend keeps one file per record in a directory. Writes go to a temp
// file in the same directory and are renamed over the target once synced.
type FileBackend struct {
	dir string
}

// NewFileBackend returns a backend rooted at dir, creating it if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if !helpers.CheckAndMakeDir(dir) {
		return nil, fmt.Errorf("cannot use data directory %s", dir)
	}
	return &FileBackend{dir: dir}, nil
}

// Path returns the file that holds name.
func (f *FileBackend) Path(name string) string {
	return filepath.Join(f.dir, name)
}

// Read loads and verifies the record.
func (f *FileBackend) Read(name string) ([]byte, error) {
	data, err := os.ReadFile(f.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	header := len(fileMagic) + digestSize
	if len(data) < header || !bytes.Equal(data[:len(fileMagic)], fileMagic) {
		return nil, fmt.Errorf("%w: %s has no valid header", ErrCorrupt, name)
	}
	payload := data[header:]
	sum := digest(payload)
	if !bytes.Equal(sum[:], data[len(fileMagic):header]) {
		return nil, fmt.Errorf("%w: %s checksum mismatch", ErrCorrupt, name)
	}
	return payload, nil
}

// Write atomically replaces the record.
func (f *FileBackend) Write(name string, payload []byte) (err error) {
	tmp, err := os.CreateTemp(f.dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", name, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			if removeErr := os.Remove(tmpPath); removeErr != nil && !os.IsNotExist(removeErr) {
				log.WithError(removeErr).Warnf("Failed to remove temp file %s", tmpPath)
			}
		}
	}()

	sum := digest(payload)
	for _, chunk := range [][]byte{fileMagic, sum[:], payload} {
		if _, err = tmp.Write(chunk); err != nil {
			tmp.Close()
			return fmt.Errorf("writing %s: %w", tmpPath, err)
		}
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", tmpPath, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}
	if err = os.Rename(tmpPath, f.Path(name)); err != nil {
		return fmt.Errorf("replacing %s: %w", name, err)
	}
	// The rename is only durable once the directory entry is on disk.
	if err := syncDir(f.dir); err != nil {
		log.WithError(err).Warnf("Failed to sync directory %s", f.dir)
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) && !errors.Is(err, syscall.ENOTSUP) {
		return fmt.Errorf("syncing %s: %w", dir, err)
	}
	return nil
}

// Records lists the files in the directory that carry a record header, in
// alphabetical order. Other files sharing the directory are skipped.
func (f *FileBackend) Records() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", f.dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if hasMagic(f.Path(e.Name())) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func hasMagic(path string) bool {
	fh, err := os.Open(path)
	if err != nil {
		return false
	}
	defer fh.Close()
	head := make([]byte, len(fileMagic))
	if _, err := io.ReadFull(fh, head); err != nil {
		return false
	}
	return bytes.Equal(head, fileMagic)
}

func (f *FileBackend) Remove(name string) error {
	if err := os.Remove(f.Path(name)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotExist
		}
		return fmt.Errorf("removing %s: %w", name, err)
	}
	return syncDir(f.dir)
}

// Close is a no-op; files are closed after every operation.
func (f *FileBackend) Close() error { return nil }
