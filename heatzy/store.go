package heatzy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"sync"

	"github.com/brutella/hc/util"
)

const bindingsKey = "bindings"

// Store keeps the known bindings across restarts so they are reused, not duplicated
type Store struct {
	mu      sync.Mutex
	storage util.Storage
}

func NewStore(storage util.Storage) *Store {
	return &Store{storage: storage}
}

// Load returns the bindings saved by the last run, none on first start
func (s *Store) Load() ([]Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.storage.Get(bindingsKey)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading bindings: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var bindings []Binding
	if err := json.Unmarshal(raw, &bindings); err != nil {
		return nil, fmt.Errorf("parsing bindings: %w", err)
	}
	return bindings, nil
}

// Save replaces the saved bindings
func (s *Store) Save(bindings []Binding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := make([]Binding, len(bindings))
	copy(sorted, bindings)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	raw, err := json.Marshal(sorted)
	if err != nil {
		return err
	}
	// the file storage does not truncate, a shorter table would leave a tail behind
	if err := s.storage.Delete(bindingsKey); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clearing bindings: %w", err)
	}
	if err := s.storage.Set(bindingsKey, raw); err != nil {
		return fmt.Errorf("writing bindings: %w", err)
	}
	return nil
}
