// Package index keeps a full-text search index over both download lists.
package index

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/JaymoCodes/xdm/internal/models"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
)

// DefaultLimit caps the number of hits returned by Search.
const DefaultLimit = 50

// Document is what gets indexed for one download.
type Document struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	TargetDir  string `json:"dir"`
	Kind       string `json:"kind"`
	Collection string `json:"collection"`
}

// Hit is a single search result.
type Hit struct {
	ID         string
	Score      float64
	Collection string
}

// Index wraps a bleve index keyed by download id.
type Index struct {
	idx bleve.Index
}

// OpenOrCreate opens the index at path, creating it when it does not exist.
func OpenOrCreate(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if err == nil {
		log.WithField("path", path).Debug("Opened search index")
		return &Index{idx: idx}, nil
	}
	if !errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		return nil, fmt.Errorf("opening search index %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	idx, err = bleve.New(path, bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("creating search index %s: %w", path, err)
	}
	log.WithField("path", path).Info("Created search index")
	return &Index{idx: idx}, nil
}

// NewMemOnly returns an index that lives only in memory.
func NewMemOnly() (*Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("creating in-memory index: %w", err)
	}
	return &Index{idx: idx}, nil
}

// PutInProgress indexes or reindexes an in-progress entry.
func (i *Index) PutInProgress(e *models.InProgressEntry) error {
	return i.idx.Index(e.ID, document(e.DownloadEntry, models.ViewInProgress))
}

// PutFinished indexes or reindexes a finished entry.
func (i *Index) PutFinished(e *models.FinishedEntry) error {
	return i.idx.Index(e.ID, document(e.DownloadEntry, models.ViewFinished))
}

// Delete removes ids from the index. Unknown ids are ignored.
func (i *Index) Delete(ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	b := i.idx.NewBatch()
	for _, id := range ids {
		b.Delete(id)
	}
	return i.idx.Batch(b)
}

// Rebuild replaces the whole index content with the given lists.
func (i *Index) Rebuild(inProgress []*models.InProgressEntry, finished []*models.FinishedEntry) error {
	count, err := i.idx.DocCount()
	if err != nil {
		return fmt.Errorf("counting indexed documents: %w", err)
	}
	if count > 0 {
		if err := i.clear(int(count)); err != nil {
			return err
		}
	}

	b := i.idx.NewBatch()
	for _, e := range inProgress {
		if err := b.Index(e.ID, document(e.DownloadEntry, models.ViewInProgress)); err != nil {
			return fmt.Errorf("indexing %s: %w", e.ID, err)
		}
	}
	for _, e := range finished {
		if err := b.Index(e.ID, document(e.DownloadEntry, models.ViewFinished)); err != nil {
			return fmt.Errorf("indexing %s: %w", e.ID, err)
		}
	}
	if err := i.idx.Batch(b); err != nil {
		return fmt.Errorf("writing index batch: %w", err)
	}
	log.WithField("documents", len(inProgress)+len(finished)).Debug("Search index rebuilt")
	return nil
}

// Search runs a query-string query and returns at most limit hits, best first.
// A limit of zero or less uses DefaultLimit.
func (i *Index) Search(query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(query), limit, 0, false)
	req.Fields = []string{"collection"}
	res, err := i.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("searching for %q: %w", query, err)
	}
	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{ID: h.ID, Score: h.Score}
		if c, ok := h.Fields["collection"].(string); ok {
			hit.Collection = c
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Count returns the number of indexed downloads.
func (i *Index) Count() (uint64, error) {
	return i.idx.DocCount()
}

// Close releases the index.
func (i *Index) Close() error {
	return i.idx.Close()
}

func (i *Index) clear(count int) error {
	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), count, 0, false)
	res, err := i.idx.Search(req)
	if err != nil {
		return fmt.Errorf("listing indexed documents: %w", err)
	}
	b := i.idx.NewBatch()
	for _, h := range res.Hits {
		b.Delete(h.ID)
	}
	return i.idx.Batch(b)
}

func document(e models.DownloadEntry, view models.View) Document {
	return Document{
		Name:       e.Name,
		URL:        e.PrimaryURL,
		TargetDir:  e.TargetDir,
		Kind:       e.DownloadType,
		Collection: view.String(),
	}
}
