// Package history keeps the in-memory version log of a moodboard: every
// generated or edited image plus the single Active entry that further edits target.
package history

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/manash/moodboard/pkg/models"
)

var (
	ErrEntryNotFound = errors.New("history entry not found")
	ErrNoImage       = errors.New("entry has no image reference")
	ErrActiveKind    = errors.New("active entries are created by PromoteActive")
)

const (
	LabelActive = "Active"
	LabelLatest = "Latest"
)

// Entry is an immutable snapshot. Accessors hand out copies.
type Entry struct {
	ID        string          `json:"id"`
	Image     models.ImageRef `json:"image"`
	Kind      models.Kind     `json:"kind"`
	Prompt    string          `json:"prompt"`
	Reasoning string          `json:"reasoning,omitempty"`
	Region    *models.Region  `json:"region"`
	IsActive  bool            `json:"is_active"`
	Timestamp time.Time       `json:"timestamp"`
}

func (e Entry) clone() Entry {
	e.Region = e.Region.Clone()
	return e
}

// Item is an entry with the display fields derived from its position in the log.
type Item struct {
	Entry
	Label    string `json:"label"`
	Latest   bool   `json:"latest"`
	Selected bool   `json:"selected"`
}

// Store is newest-first and holds at most one active entry.
type Store struct {
	mu       sync.RWMutex
	entries  []Entry
	selected string

	now   func() time.Time
	newID func() string
}

func NewStore() *Store {
	return &Store{
		now: time.Now,
		newID: func() string {
			return uuid.Must(uuid.NewV7()).String()
		},
	}
}

// Append records a completed generate or edit.
func (s *Store) Append(image models.ImageRef, kind models.Kind, prompt, reasoning string, region *models.Region) (Entry, error) {
	if image.IsZero() {
		return Entry{}, ErrNoImage
	}
	if kind == models.KindActive {
		return Entry{}, ErrActiveKind
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := Entry{
		ID:        s.newID(),
		Image:     image,
		Kind:      kind,
		Prompt:    prompt,
		Reasoning: reasoning,
		Region:    region.Clone(),
		Timestamp: s.now(),
	}
	s.entries = append([]Entry{e}, s.entries...)
	return e.clone(), nil
}

// PromoteActive replaces any existing active entry with a fresh one at the front.
func (s *Store) PromoteActive(image models.ImageRef, reasoning string) (Entry, error) {
	if image.IsZero() {
		return Entry{}, ErrNoImage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]Entry, 0, len(s.entries)+1)
	e := Entry{
		ID:        s.newID(),
		Image:     image,
		Kind:      models.KindActive,
		Reasoning: reasoning,
		IsActive:  true,
		Timestamp: s.now(),
	}
	kept = append(kept, e)
	for _, old := range s.entries {
		if old.IsActive {
			if s.selected == old.ID {
				s.selected = ""
			}
			continue
		}
		kept = append(kept, old)
	}
	s.entries = kept
	return e.clone(), nil
}

func (s *Store) Select(id string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return Entry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	s.selected = id
	return s.entries[i].clone(), nil
}

func (s *Store) Get(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return Entry{}, false
	}
	return s.entries[i].clone(), true
}

func (s *Store) Selected() (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(s.selected)
	if i < 0 {
		return Entry{}, false
	}
	return s.entries[i].clone(), true
}

func (s *Store) Active() (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.IsActive {
			return e.clone(), true
		}
	}
	return Entry{}, false
}

// Entries returns the log newest-first.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.clone()
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Versions returns the non-active entries oldest-first, the auto-play order.
func (s *Store) Versions() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions()
}

func (s *Store) versions() []Entry {
	var out []Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if !s.entries[i].IsActive {
			out = append(out, s.entries[i].clone())
		}
	}
	return out
}

// Latest is the first non-active entry in storage order.
func (s *Store) Latest() (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if !e.IsActive {
			return e.clone(), true
		}
	}
	return Entry{}, false
}

// Label is "Active", "Latest", or "v<n>" where n is the entry's 1-based
// position among non-active entries counted from the oldest.
func (s *Store) Label(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, it := range s.items() {
		if it.ID == id {
			return it.Label
		}
	}
	return ""
}

// Items returns the log newest-first with derived display fields.
func (s *Store) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items()
}

func (s *Store) items() []Item {
	total := 0
	for _, e := range s.entries {
		if !e.IsActive {
			total++
		}
	}

	items := make([]Item, 0, len(s.entries))
	before := 0
	for _, e := range s.entries {
		it := Item{Entry: e.clone(), Selected: e.ID == s.selected}
		switch {
		case e.IsActive:
			it.Label = LabelActive
		case before == 0:
			it.Label = LabelLatest
			it.Latest = true
			before++
		default:
			it.Label = fmt.Sprintf("v%d", total-before)
			before++
		}
		items = append(items, it)
	}
	return items
}

func (s *Store) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, e := range s.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}
