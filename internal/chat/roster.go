package chat

import "sync"

// Roster maps display names to live sessions. Names are unique. Listing
// order is insertion order; a rename keeps the entry's position.
type Roster struct {
	mu     sync.RWMutex
	byName map[string]*Session
	order  []*Session
}

func NewRoster() *Roster {
	return &Roster{byName: make(map[string]*Session)}
}

// Add registers s under name. It fails with ErrNameTaken if name is in use.
func (r *Roster) Add(name string, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return ErrNameTaken
	}
	s.rename(name)
	r.byName[name] = s
	r.order = append(r.order, s)
	ConnectedClients.Set(float64(len(r.order)))
	return nil
}

// Remove deregisters s. It reports whether s was present.
func (r *Roster) Remove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(s)
	if i < 0 {
		return false
	}
	delete(r.byName, s.Name())
	r.order = append(r.order[:i], r.order[i+1:]...)
	ConnectedClients.Set(float64(len(r.order)))
	return true
}

// Rename moves s to newName. Renaming to the current name is a no-op.
func (r *Roster) Rename(s *Session, newName string) error {
	if err := ValidateName(newName); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(s) < 0 {
		return ErrNotRegistered
	}
	old := s.Name()
	if old == newName {
		return nil
	}
	if _, exists := r.byName[newName]; exists {
		return ErrNameTaken
	}
	delete(r.byName, old)
	r.byName[newName] = s
	s.rename(newName)
	return nil
}

// Get looks up a session by display name.
func (r *Roster) Get(name string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[name]
	return s, ok
}

// Snapshot returns the current names in insertion order.
func (r *Roster) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.order))
	for _, s := range r.order {
		names = append(names, s.Name())
	}
	return names
}

// ForEach calls fn for every session present when it was called. fn runs
// without the roster lock held, so it may block or mutate the roster.
func (r *Roster) ForEach(fn func(*Session)) {
	r.mu.RLock()
	sessions := make([]*Session, len(r.order))
	copy(sessions, r.order)
	r.mu.RUnlock()

	for _, s := range sessions {
		fn(s)
	}
}

// Len returns the number of registered sessions.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// indexOf must be called with r.mu held.
func (r *Roster) indexOf(s *Session) int {
	for i, cur := range r.order {
		if cur == s {
			return i
		}
	}
	return -1
}
