package persistence

import (
	"errors"
	"fmt"

	"github.com/JaymoCodes/xdm/internal/database"
)

// SQLiteBackend stores records as rows of the snapshots table. Each write
// replaces its row inside a transaction and carries a BLAKE3 digest that is
// checked on read.
type SQLiteBackend struct {
	db *database.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	db, err := database.Open(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteBackend{db: db}, nil
}

func (s *SQLiteBackend) Read(name string) ([]byte, error) {
	payload, sum, err := s.db.Get(name)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrNotExist
		}
		return nil, err
	}
	if digestHex(payload) != sum {
		return nil, fmt.Errorf("%w: %s checksum mismatch", ErrCorrupt, name)
	}
	return payload, nil
}

func (s *SQLiteBackend) Write(name string, payload []byte) error {
	if payload == nil {
		payload = []byte{}
	}
	return s.db.Put(name, payload, digestHex(payload))
}

// Records lists the stored record names in alphabetical order.
func (s *SQLiteBackend) Records() ([]string, error) {
	return s.db.Names()
}

func (s *SQLiteBackend) Remove(name string) error {
	if !s.db.Has(name) {
		return ErrNotExist
	}
	return s.db.Delete(name)
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}
