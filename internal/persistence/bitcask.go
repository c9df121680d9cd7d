package persistence

import (
	"errors"
	"fmt"
	"sort"

	"git.mills.io/prologic/bitcask"
)

// maxRecordSize bounds a single list snapshot stored in bitcask.
const maxRecordSize = 64 << 20

// BitcaskBackend keeps each record under its own key in a bitcask store.
// Bitcask appends and checksums every value, so an interrupted put leaves the
// previous value readable.
type BitcaskBackend struct {
	db *bitcask.Bitcask
}

// OpenBitcask opens (or creates) the store at path.
func OpenBitcask(path string) (*BitcaskBackend, error) {
	db, err := bitcask.Open(path, bitcask.WithMaxValueSize(maxRecordSize))
	if err != nil {
		return nil, fmt.Errorf("opening bitcask store %s: %w", path, err)
	}
	return &BitcaskBackend{db: db}, nil
}

func (b *BitcaskBackend) Read(name string) ([]byte, error) {
	val, err := b.db.Get([]byte(name))
	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("%w: reading %s: %v", ErrCorrupt, name, err)
	}
	return val, nil
}

func (b *BitcaskBackend) Write(name string, payload []byte) error {
	if err := b.db.Put([]byte(name), payload); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := b.db.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", name, err)
	}
	return nil
}

// Records lists the stored record names in alphabetical order.
func (b *BitcaskBackend) Records() ([]string, error) {
	var names []string
	for key := range b.db.Keys() {
		names = append(names, string(key))
	}
	sort.Strings(names)
	return names, nil
}

func (b *BitcaskBackend) Remove(name string) error {
	if !b.db.Has([]byte(name)) {
		return ErrNotExist
	}
	if err := b.db.Delete([]byte(name)); err != nil {
		return fmt.Errorf("removing %s: %w", name, err)
	}
	return b.db.Sync()
}

func (b *BitcaskBackend) Close() error {
	return b.db.Close()
}
