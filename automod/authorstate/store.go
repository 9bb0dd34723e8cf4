// Per-author moderation state, and the concurrent store which owns it.
//
// Each author has an entry with its own mutex: events for different authors never contend, while two events from the same author are serialized. Entries removed by an escalation or an eviction are marked dead before they leave the map, so a goroutine which raced the removal notices and starts over with fresh state.
package authorstate

import (
	"errors"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Returned when a lease is used after its state was detached.
var ErrStateDetached = errors.New("author state already detached from store")

type entry struct {
	mu    sync.Mutex
	state *AuthorState
	dead  bool
}

// Concurrent mapping from author ID to AuthorState.
type Store struct {
	entries *xsync.MapOf[string, *entry]
}

func NewStore() *Store {
	return &Store{
		entries: xsync.NewMapOf[string, *entry](),
	}
}

// Exclusive access to one author's state. Must be released exactly once.
type Lease struct {
	ID    string
	State *AuthorState
	// True when this call created the state
	Created bool

	store    *Store
	e        *entry
	released bool
}

// Returns the author's state with the entry lock held, creating the state (with LastSeenAt = now) if the author is not tracked.
func (s *Store) GetOrCreate(id string, now time.Time) *Lease {
	for {
		e, loaded := s.entries.LoadOrCompute(id, func() *entry {
			return &entry{state: NewAuthorState(now)}
		})
		e.mu.Lock()
		if e.dead {
			// lost a race with Remove or eviction; the map no longer points at this entry
			e.mu.Unlock()
			continue
		}
		return &Lease{ID: id, State: e.state, Created: !loaded, store: s, e: e}
	}
}

func (l *Lease) Release() {
	if l.released {
		return
	}
	l.released = true
	l.e.mu.Unlock()
}

// Takes the state out of the store while still holding the lock, then releases. The caller owns the returned state; later events from the same author start fresh.
func (l *Lease) Detach() (*AuthorState, error) {
	if l.released {
		return nil, ErrStateDetached
	}
	st := l.State
	l.store.kill(l.ID, l.e)
	l.State = nil
	l.Release()
	return st, nil
}

// must be called with e.mu held
func (s *Store) kill(id string, e *entry) {
	e.dead = true
	s.entries.Compute(id, func(old *entry, loaded bool) (*entry, bool) {
		// only delete if the map still points at this exact entry
		return old, !loaded || old == e
	})
}

// Removes and returns the author's state, if tracked.
func (s *Store) Remove(id string) (*AuthorState, bool) {
	e, ok := s.entries.Load(id)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return nil, false
	}
	s.kill(id, e)
	return e.state, true
}

// Copy of the author's state, if tracked.
func (s *Store) Get(id string) (AuthorState, bool) {
	e, ok := s.entries.Load(id)
	if !ok {
		return AuthorState{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return AuthorState{}, false
	}
	return e.state.Clone(), true
}

// Number of tracked authors
func (s *Store) Len() int {
	return s.entries.Size()
}

type Entry struct {
	ID         string
	LastSeenAt time.Time
}

// Point-in-time list of tracked authors and their last activity.
func (s *Store) Snapshot() []Entry {
	out := make([]Entry, 0, s.entries.Size())
	s.entries.Range(func(id string, e *entry) bool {
		e.mu.Lock()
		if !e.dead {
			out = append(out, Entry{ID: id, LastSeenAt: e.state.LastSeenAt})
		}
		e.mu.Unlock()
		return true
	})
	return out
}

// Removes the author's state only if it has been idle for longer than ttl as of now. The check is repeated under the entry lock, so an event which arrived after the snapshot keeps the author alive.
func (s *Store) EvictIfIdle(id string, now time.Time, ttl time.Duration) bool {
	e, ok := s.entries.Load(id)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead || now.Sub(e.state.LastSeenAt) <= ttl {
		return false
	}
	s.kill(id, e)
	return true
}
