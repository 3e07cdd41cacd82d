package dataset

import "sync"

// Store holds the currently selected dataset, the upload history and the
// active view for one authenticated session. The original page mutated this
// state on a single UI thread; here it is reached from HTTP handlers, so a
// mutex guards every transition.
type Store struct {
	mu          sync.RWMutex
	current     *Dataset
	history     []Dataset
	view        View
	pendingFile string
	stale       bool
}

// NewStore returns an empty store showing the default view.
func NewStore() *Store {
	return &Store{view: DefaultView}
}

// Current returns the selected dataset, if any.
func (s *Store) Current() (Dataset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Dataset{}, false
	}
	return *s.current, true
}

// History returns a copy of the known upload history, newest first.
func (s *Store) History() []Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Dataset, len(s.history))
	copy(out, s.history)
	return out
}

// View returns the active view identifier.
func (s *Store) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// SetView records an explicit tab switch.
func (s *Store) SetView(v View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = v
}

// Select replaces the current dataset by reference. It never refetches.
func (s *Store) Select(d Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &d
}

// SelectAndFocus performs the compound history-click action: select the
// history entry with the given id and navigate to the dashboard, atomically.
// It reports whether the id was found; an unknown id changes nothing.
func (s *Store) SelectAndFocus(id int64) (Dataset, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.history {
		if s.history[i].ID == id {
			d := s.history[i]
			s.current = &d
			s.view = ViewDashboard
			return d, true
		}
	}
	return Dataset{}, false
}

// ReplaceHistory swaps in a freshly fetched history wholesale. When nothing
// is selected yet and the new history is non-empty, the most recent entry
// becomes current.
func (s *Store) ReplaceHistory(items []Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = make([]Dataset, len(items))
	copy(s.history, items)
	s.stale = false
	if s.current == nil && len(s.history) > 0 {
		d := s.history[0]
		s.current = &d
	}
}

// MarkStale flags the history as possibly out of date after a failed
// refresh. The stored entries are kept as-is.
func (s *Store) MarkStale() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stale = true
}

// Stale reports whether the last history refresh failed.
func (s *Store) Stale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}

// SetPendingFile records the filename staged in the upload form.
func (s *Store) SetPendingFile(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingFile = name
}

// PendingFile returns the staged upload filename, or "".
func (s *Store) PendingFile() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingFile
}

// ApplyUpload installs a freshly uploaded dataset as current, clears the
// pending file selection and forces the dashboard view. The caller refreshes
// the history afterwards; ReplaceHistory never displaces a set current, so
// the combined effect matches a single atomic step.
func (s *Store) ApplyUpload(d Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &d
	s.pendingFile = ""
	s.view = ViewDashboard
}

// Snapshot is the store state handed to the page in one response.
type Snapshot struct {
	View        View      `json:"active_view"`
	Current     *Dataset  `json:"current,omitempty"`
	History     []Dataset `json:"history"`
	PendingFile string    `json:"pending_file,omitempty"`
	Stale       bool      `json:"stale"`
}

// Snapshot returns a consistent copy of the whole store.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := Snapshot{
		View:        s.view,
		History:     make([]Dataset, len(s.history)),
		PendingFile: s.pendingFile,
		Stale:       s.stale,
	}
	copy(out.History, s.history)
	if s.current != nil {
		d := *s.current
		out.Current = &d
	}
	return out
}
