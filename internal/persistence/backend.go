// Package persistence stores the in-progress and finished download lists.
//
// A Backend stores opaque named records and guarantees that a Write either
// fully replaces the previous record or leaves it untouched. The Gateway
// encodes the lists on top of it and the Writer moves that work off the
// controller's loop.
package persistence

import (
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

// Record names of the two persisted lists.
const (
	InProgressRecord = "inprogress-downloads.db"
	FinishedRecord   = "finished-downloads.db"
)

// Backend kinds accepted by Open.
const (
	BackendFile    = "file"
	BackendBitcask = "bitcask"
	BackendSQLite  = "sqlite"
)

var (
	// ErrNotExist is returned when a record has never been written.
	ErrNotExist = errors.New("record does not exist")
	// ErrCorrupt is returned when a record fails its integrity check.
	ErrCorrupt = errors.New("record is corrupt")
)

// Backend is durable storage for named records.
type Backend interface {
	Read(name string) ([]byte, error)
	Write(name string, payload []byte) error
	Close() error
}

// Maintainer is implemented by backends that can enumerate and drop whole
// records. Remove returns ErrNotExist for a name that was never written.
type Maintainer interface {
	Records() ([]string, error)
	Remove(name string) error
}

// Open creates the backend of the given kind rooted at dataDir.
func Open(kind, dataDir string) (Backend, error) {
	switch strings.ToLower(kind) {
	case "", BackendFile:
		return NewFileBackend(dataDir)
	case BackendBitcask:
		return OpenBitcask(filepath.Join(dataDir, "lists.bitcask"))
	case BackendSQLite:
		return OpenSQLite(filepath.Join(dataDir, "lists.sqlite"))
	}
	return nil, fmt.Errorf("unknown storage backend %q", kind)
}

func digest(payload []byte) [32]byte {
	return blake3.Sum256(payload)
}

func digestHex(payload []byte) string {
	sum := digest(payload)
	return hex.EncodeToString(sum[:])
}
