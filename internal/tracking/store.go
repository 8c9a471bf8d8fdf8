// Package tracking holds the set of tracked player identifiers.
package tracking

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Persister writes the full tracked list. It is invoked after every
// successful mutation.
type Persister func(ids []string) error

// Store is the tracked-player set. It is not safe for concurrent use; callers
// run it on the host main loop.
type Store struct {
	order []uuid.UUID
	index map[uuid.UUID]int
	save  Persister
}

// NewStore returns an empty store. save may be nil (in-memory only).
func NewStore(save Persister) *Store {
	return &Store{index: map[uuid.UUID]int{}, save: save}
}

// Load replaces the contents with raw identifiers read from the config
// document. Malformed and duplicate entries are skipped; the number skipped
// is returned for diagnostics only.
func (s *Store) Load(raw []string) (skipped int) {
	s.order = s.order[:0]
	s.index = make(map[uuid.UUID]int, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(strings.TrimSpace(r))
		if err != nil {
			skipped++
			continue
		}
		if _, dup := s.index[id]; dup {
			skipped++
			continue
		}
		s.index[id] = len(s.order)
		s.order = append(s.order, id)
	}
	return skipped
}

// Add inserts id. It reports whether id was newly added. When the insertion
// succeeds but persisting fails, added is true and err describes the failure;
// the member stays in memory and is written by the next successful save.
func (s *Store) Add(id uuid.UUID) (added bool, err error) {
	if _, ok := s.index[id]; ok {
		return false, nil
	}
	s.index[id] = len(s.order)
	s.order = append(s.order, id)
	return true, s.Save()
}

// Remove deletes id when present.
func (s *Store) Remove(id uuid.UUID) (removed bool, err error) {
	i, ok := s.index[id]
	if !ok {
		return false, nil
	}
	s.order = append(s.order[:i], s.order[i+1:]...)
	delete(s.index, id)
	for j := i; j < len(s.order); j++ {
		s.index[s.order[j]] = j
	}
	return true, s.Save()
}

func (s *Store) Contains(id uuid.UUID) bool {
	_, ok := s.index[id]
	return ok
}

func (s *Store) Len() int { return len(s.order) }

// List returns a snapshot in insertion order.
func (s *Store) List() []uuid.UUID {
	return append([]uuid.UUID(nil), s.order...)
}

// Strings returns the canonical textual form used in the config document.
func (s *Store) Strings() []string {
	out := make([]string, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, id.String())
	}
	return out
}

// Save persists the current snapshot.
func (s *Store) Save() error {
	if s.save == nil {
		return nil
	}
	if err := s.save(s.Strings()); err != nil {
		return fmt.Errorf("save tracked players: %w", err)
	}
	return nil
}
