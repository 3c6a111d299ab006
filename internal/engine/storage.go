package engine

import "github.com/roach88/genmerge/internal/model"

// TranslationTargetKey is the storage key of the run's target component.
const TranslationTargetKey = "translationTarget"

// Storage is a key/value scratch space shared by the rules of one run.
type Storage interface {
	// Reset clears every entry and stores target under TranslationTargetKey.
	Reset(target *model.Element)
	Stash(key string, v any)
	Fetch(key string) (any, bool)
}

// RunStorage is the map-backed Storage owned by a Run.
// Not safe for concurrent use; rules run on the Drain goroutine.
type RunStorage struct {
	entries map[string]any
}

// NewRunStorage returns empty storage.
func NewRunStorage() *RunStorage {
	return &RunStorage{entries: make(map[string]any)}
}

func (s *RunStorage) Reset(target *model.Element) {
	s.entries = make(map[string]any)
	s.entries[TranslationTargetKey] = target
}

func (s *RunStorage) Stash(key string, v any) {
	s.entries[key] = v
}

func (s *RunStorage) Fetch(key string) (any, bool) {
	v, ok := s.entries[key]
	return v, ok
}
