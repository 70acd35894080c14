// Package mock provides a recording [indicator.Sink] for unit tests.
package mock

import (
	"sync"

	"github.com/MrWong99/voxclient/internal/indicator"
)

// Sink records every status passed to Show.
type Sink struct {
	mu    sync.Mutex
	Shown []indicator.Status
}

// Show implements [indicator.Sink].
func (s *Sink) Show(st indicator.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Shown = append(s.Shown, st)
}

// Names returns the names of all shown statuses in order.
func (s *Sink) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Shown))
	for i, st := range s.Shown {
		out[i] = st.Name
	}
	return out
}

// Last returns the most recent status, or the zero Status.
func (s *Sink) Last() indicator.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Shown) == 0 {
		return indicator.Status{}
	}
	return s.Shown[len(s.Shown)-1]
}
