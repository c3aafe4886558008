package search

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/mapflag/mapflag-client/internal/domain"
)

// TagIndex wraps a Bleve index with tag-specific operations.
//
// All public methods are safe for concurrent use.
type TagIndex struct {
	index  bleve.Index
	path   string
	logger *slog.Logger
	mu     sync.RWMutex // held exclusively by Replace and Close
}

// Options configures the search index.
type Options struct {
	DataPath string       // Directory for index storage; empty keeps the index in memory
	Logger   *slog.Logger // Uses discard if nil
}

// mappingVersion is incremented whenever the index mapping changes.
// A mismatch triggers a rebuild on startup.
const mappingVersion = "1"

const batchSize = 500

// NewTagIndex creates or opens a tag index.
// An on-disk index whose mapping version differs, or that fails to open, is
// removed and recreated empty. The next refetch repopulates it.
func NewTagIndex(opts Options) (*TagIndex, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if opts.DataPath == "" {
		index, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create memory index: %w", err)
		}
		return &TagIndex{index: index, logger: logger}, nil
	}

	dir := filepath.Join(opts.DataPath, "tags.bleve")
	stamp := filepath.Join(opts.DataPath, "tags.version")

	if index, ok := reopen(dir, stamp, logger); ok {
		return &TagIndex{index: index, path: dir, logger: logger}, nil
	}

	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("remove old index: %w", err)
	}
	index, err := bleve.New(dir, buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	if err := os.WriteFile(stamp, []byte(mappingVersion), 0o644); err != nil {
		logger.Warn("write mapping version", "error", err)
	}
	logger.Info("created search index", "path", dir, "mapping_version", mappingVersion)

	return &TagIndex{index: index, path: dir, logger: logger}, nil
}

// reopen opens the index at dir when it exists and was built with the
// current mapping version.
func reopen(dir, stamp string, logger *slog.Logger) (bleve.Index, bool) {
	if _, err := os.Stat(dir); err != nil {
		return nil, false
	}

	version, err := os.ReadFile(stamp)
	if err != nil || string(version) != mappingVersion {
		logger.Info("search mapping changed, rebuilding",
			"old_version", string(version), "new_version", mappingVersion)
		return nil, false
	}

	index, err := bleve.Open(dir)
	if err != nil {
		logger.Warn("open search index, rebuilding", "path", dir, "error", err)
		return nil, false
	}
	logger.Info("opened search index", "path", dir)
	return index, true
}

// Close closes the index and releases resources.
func (s *TagIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// IndexTag indexes or re-indexes a single tag.
func (s *TagIndex) IndexTag(t domain.Tag) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc := FromTag(t)
	return s.index.Index(doc.ID, doc.ToMap())
}

// IndexTags indexes tags in batches.
func (s *TagIndex) IndexTags(tags []domain.Tag) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexTags(tags)
}

func (s *TagIndex) indexTags(tags []domain.Tag) error {
	for i := 0; i < len(tags); i += batchSize {
		end := min(i+batchSize, len(tags))

		batch := s.index.NewBatch()
		for _, t := range tags[i:end] {
			doc := FromTag(t)
			if err := batch.Index(doc.ID, doc.ToMap()); err != nil {
				return fmt.Errorf("batch index %s: %w", doc.ID, err)
			}
		}
		if err := s.index.Batch(batch); err != nil {
			return fmt.Errorf("commit batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

// DeleteTag removes a tag from the index.
func (s *TagIndex) DeleteTag(id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Delete(id)
}

// ApplyChange mirrors one live change into the index.
func (s *TagIndex) ApplyChange(change domain.TagChange) error {
	if change.ChangeType == domain.ChangeDeleted {
		return s.DeleteTag(change.Tag.ID)
	}
	return s.IndexTag(change.Tag)
}

// Replace makes the index hold exactly tags, dropping documents for tags no longer present.
func (s *TagIndex) Replace(tags []domain.Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		keep[t.ID] = struct{}{}
	}

	existing, err := s.allIDs()
	if err != nil {
		return err
	}

	batch := s.index.NewBatch()
	for _, id := range existing {
		if _, ok := keep[id]; !ok {
			batch.Delete(id)
		}
	}
	if batch.Size() > 0 {
		if err := s.index.Batch(batch); err != nil {
			return fmt.Errorf("delete stale documents: %w", err)
		}
	}

	return s.indexTags(tags)
}

func (s *TagIndex) allIDs() ([]string, error) {
	count, err := s.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(count), 0, false)
	res, err := s.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// DocumentCount returns the total number of indexed tags.
func (s *TagIndex) DocumentCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}
