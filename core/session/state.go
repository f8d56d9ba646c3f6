// Package session holds the per-conversation shared state: which personas
// exist, which one is speaking and which one spoke before it.
package session

import (
	"fmt"
	"sort"
	"sync"

	coreerrors "github.com/adalundhe/duet/core/errors"
	"github.com/adalundhe/duet/core/persona"
)

// DefaultSummary describes the shared user data carried between personas.
const DefaultSummary = "Emotional support system"

// =============================================================================
// Shared State
// =============================================================================

// SharedState is the per-conversation record of the persona registry and
// the active/previous pointers. The registry is fixed at construction; the
// pointers move only through SetActive and SetPrevious.
type SharedState struct {
	summary  string
	personas map[string]persona.Persona
	names    []string

	mu       sync.RWMutex
	active   persona.Persona
	previous persona.Persona
}

// NewSharedState builds the registry from personas, keyed by Name. A
// duplicate name is a configuration error.
func NewSharedState(summary string, personas ...persona.Persona) (*SharedState, error) {
	if summary == "" {
		summary = DefaultSummary
	}

	s := &SharedState{
		summary:  summary,
		personas: make(map[string]persona.Persona, len(personas)),
		names:    make([]string, 0, len(personas)),
	}

	for _, p := range personas {
		if p == nil {
			return nil, fmt.Errorf("nil persona in registry")
		}
		name := p.Name()
		if _, exists := s.personas[name]; exists {
			return nil, &coreerrors.ConfigurationError{
				Subject: name,
				Reason:  "persona is registered twice",
			}
		}
		s.personas[name] = p
		s.names = append(s.names, name)
	}

	return s, nil
}

// Summarize returns the short synopsis of cross-persona shared facts.
func (s *SharedState) Summarize() string {
	return "User data: " + s.summary
}

// Names returns the registered persona names, sorted.
func (s *SharedState) Names() []string {
	names := append([]string(nil), s.names...)
	sort.Strings(names)
	return names
}

// Lookup returns the persona registered under name, or a configuration
// error naming the known personas.
func (s *SharedState) Lookup(name string) (persona.Persona, error) {
	p, ok := s.personas[name]
	if !ok {
		return nil, coreerrors.NewUnknownPersonaError(name, s.Names())
	}
	return p, nil
}

// Active returns the persona currently speaking, or nil before the first
// activation.
func (s *SharedState) Active() persona.Persona {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Previous returns the persona that spoke before the active one, or nil.
func (s *SharedState) Previous() persona.Persona {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.previous
}

// SetActive records p as the active persona. p must be registered.
func (s *SharedState) SetActive(p persona.Persona) error {
	if err := s.checkRegistered(p); err != nil {
		return err
	}
	s.mu.Lock()
	s.active = p
	s.mu.Unlock()
	return nil
}

// SetPrevious records p as the previous persona. nil clears it.
func (s *SharedState) SetPrevious(p persona.Persona) error {
	if p != nil {
		if err := s.checkRegistered(p); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.previous = p
	s.mu.Unlock()
	return nil
}

// MarkPrevious moves the active persona into previous and returns the new
// previous value. It does not change active.
func (s *SharedState) MarkPrevious() persona.Persona {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previous = s.active
	return s.previous
}

// Snapshot is a point-in-time view of the pointers.
type Snapshot struct {
	Active   string   `json:"active"`
	Previous string   `json:"previous,omitempty"`
	Personas []string `json:"personas"`
}

// Snapshot returns the current pointer names.
func (s *SharedState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{Personas: s.Names()}
	if s.active != nil {
		snap.Active = s.active.Name()
	}
	if s.previous != nil {
		snap.Previous = s.previous.Name()
	}
	return snap
}

func (s *SharedState) checkRegistered(p persona.Persona) error {
	if p == nil {
		return fmt.Errorf("nil persona")
	}
	registered, ok := s.personas[p.Name()]
	if !ok || registered != p {
		return coreerrors.NewUnknownPersonaError(p.Name(), s.Names())
	}
	return nil
}
