package stoplist

import (
	"sort"
	"strings"
	"sync"
)

// Manager holds a stop-word set. All methods are safe for concurrent use.
type Manager struct {
	mu    sync.RWMutex
	stops map[string]struct{}
}

// NewManager creates a manager from the given terms (lowercased).
func NewManager(initialStops []string) *Manager {
	stops := make(map[string]struct{}, len(initialStops))
	for _, s := range initialStops {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		stops[s] = struct{}{}
	}
	return &Manager{stops: stops}
}

// ForConcepts returns the analyzer default list with keep words removed.
// A nil base falls back to the built-in English list and a nil keep to
// ConceptKeepWords.
func ForConcepts(base, keep []string) *Manager {
	if base == nil {
		base = English
	}
	if keep == nil {
		keep = ConceptKeepWords
	}
	m := NewManager(base)
	for _, k := range keep {
		m.Remove(k)
	}
	return m
}

// IsStop checks if a token is a stopword
func (m *Manager) IsStop(token string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.stops[token]
	return ok
}

// Add adds a token to the stoplist
func (m *Manager) Add(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops[strings.ToLower(token)] = struct{}{}
}

// Remove removes a token from the stoplist
func (m *Manager) Remove(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stops, strings.ToLower(token))
}

// Len returns the number of stop words.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.stops)
}

// All returns all stopwords, sorted
func (m *Manager) All() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]string, 0, len(m.stops))
	for s := range m.stops {
		result = append(result, s)
	}
	sort.Strings(result)
	return result
}
