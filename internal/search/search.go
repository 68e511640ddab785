// Package search provides fuzzy lookup over locally cached records and
// module names.
package search

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/hum-tech/tsoam/internal/domain"
	"github.com/sahilm/fuzzy"
)

// Result is a cached record matching a query, with match metadata for
// highlighting.
type Result struct {
	Record         domain.CachedRecord
	Text           string // searchable text the indexes refer to
	MatchedIndexes []int
	Score          int // higher is better
}

// RecordIndex implements fuzzy.Source over cached records.
type RecordIndex struct {
	records []domain.CachedRecord
	texts   []string // pre-computed lowercase searchable text
}

// String returns the searchable text at index i (implements fuzzy.Source)
func (idx *RecordIndex) String(i int) string { return idx.texts[i] }

// Len returns the number of records (implements fuzzy.Source)
func (idx *RecordIndex) Len() int { return len(idx.records) }

// Service keeps an in-memory index of cached records.
type Service struct {
	logger *slog.Logger

	mu      sync.RWMutex
	index   *RecordIndex
	indexed map[string]int // record key -> position in index
}

// NewService creates an empty search service
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logger:  logger,
		index:   &RecordIndex{},
		indexed: make(map[string]int),
	}
}

// Index adds records to the index. A record already present is replaced.
func (s *Service) Index(records []domain.CachedRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, rec := range records {
		text := SearchText(rec)
		if pos, ok := s.indexed[rec.Key]; ok {
			s.index.records[pos] = rec
			s.index.texts[pos] = text
			continue
		}
		s.indexed[rec.Key] = len(s.index.records)
		s.index.records = append(s.index.records, rec)
		s.index.texts = append(s.index.texts, text)
		added++
	}

	s.logger.Debug("indexed cached records", "added", added, "replaced", len(records)-added, "total", s.index.Len())
}

// Find returns records matching query, best match first. Ties keep index order.
func (s *Service) Find(query string) []Result {
	query = strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	defer s.mu.RUnlock()

	if query == "" || s.index.Len() == 0 {
		return nil
	}

	matches := fuzzy.FindFrom(query, s.index)
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	results := make([]Result, len(matches))
	for i, m := range matches {
		results[i] = Result{
			Record:         s.index.records[m.Index],
			Text:           m.Str,
			MatchedIndexes: m.MatchedIndexes,
			Score:          m.Score,
		}
	}
	return results
}

// Clear empties the index
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.index = &RecordIndex{}
	s.indexed = make(map[string]int)
	s.logger.Debug("cleared search index")
}

// Count returns the number of indexed records
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Len()
}

// SearchText renders a record as "key field=value ..." in lowercase.
// Only top-level scalar fields of an object payload are included, sorted by name.
func SearchText(rec domain.CachedRecord) string {
	parts := []string{rec.Key}

	var obj map[string]any
	if err := json.Unmarshal(rec.Data, &obj); err == nil {
		names := make([]string, 0, len(obj))
		for name := range obj {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			switch v := obj[name].(type) {
			case string:
				parts = append(parts, name+"="+v)
			case float64, bool:
				parts = append(parts, fmt.Sprintf("%s=%v", name, v))
			}
		}
	}

	return strings.ToLower(strings.Join(parts, " "))
}
