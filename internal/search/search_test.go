package search

import (
	"encoding/json"
	"testing"

	"github.com/hum-tech/tsoam/internal/adapter"
	"github.com/hum-tech/tsoam/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(module, key, data string) domain.CachedRecord {
	return domain.CachedRecord{
		Key:     domain.CacheKey(module, key),
		Module:  module,
		Data:    json.RawMessage(data),
		Version: domain.CurrentSchemaVersion,
	}
}

func newIndexed() *Service {
	s := NewService(adapter.NullLogger())
	s.Index([]domain.CachedRecord{
		record("members", "1", `{"id":1,"name":"Grace Wanjiru","phone":"0712"}`),
		record("members", "2", `{"id":2,"name":"Peter Otieno"}`),
		record("events", "3", `{"id":3,"title":"Harvest Sunday"}`),
	})
	return s
}

func TestSearchText(t *testing.T) {
	rec := record("members", "1", `{"name":"Grace","id":1,"active":true,"tags":["a"]}`)
	assert.Equal(t, "members_1 active=true id=1 name=grace", SearchText(rec))

	raw := record("events", "x", `[1,2]`)
	assert.Equal(t, "events_x", SearchText(raw))
}

func TestFind(t *testing.T) {
	s := newIndexed()
	require.Equal(t, 3, s.Count())

	results := s.Find("Grace")
	require.Len(t, results, 1)
	assert.Equal(t, "members_1", results[0].Record.Key)
	assert.NotEmpty(t, results[0].MatchedIndexes)

	results = s.Find("harvest")
	require.NotEmpty(t, results)
	assert.Equal(t, "events_3", results[0].Record.Key)

	assert.Nil(t, s.Find("   "))
	assert.Empty(t, s.Find("zzzz"))
}

func TestIndexReplacesByKey(t *testing.T) {
	s := newIndexed()
	s.Index([]domain.CachedRecord{
		record("members", "2", `{"id":2,"name":"Peter Kamau"}`),
	})
	assert.Equal(t, 3, s.Count())

	results := s.Find("kamau")
	require.Len(t, results, 1)
	assert.Equal(t, "members_2", results[0].Record.Key)

	s.Clear()
	assert.Zero(t, s.Count())
	assert.Nil(t, s.Find("peter"))
}

func TestSuggestModules(t *testing.T) {
	modules := domain.NewModuleRegistry(nil).Modules()

	tests := []struct {
		input string
		first string
	}{
		{"member", "members"},
		{"MEMBER", "members"},
		{"memebrs", "members"},
		{"evnts", "events"},
		{"welfar", "welfare"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := SuggestModules(tt.input, modules)
			require.NotEmpty(t, got)
			assert.Equal(t, tt.first, got[0])
		})
	}

	assert.Empty(t, SuggestModules("xyzzy", modules))
	assert.Nil(t, SuggestModules("", modules))
}
