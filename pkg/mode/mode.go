// Package mode holds the application gating state shared between the
// capture pipeline and the realtime session.
package mode

import "sync"

// AppMode is the gating state of the capture pipeline.
type AppMode int32

const (
	// ListeningForWakeWord forwards nothing; frames only feed the wake-word gate.
	ListeningForWakeWord AppMode = iota
	// Streaming forwards every frame to the remote model.
	Streaming
)

// String returns a human-readable mode.
func (m AppMode) String() string {
	switch m {
	case ListeningForWakeWord:
		return "listening_for_wakeword"
	case Streaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// State is the thread-safe owner of the current AppMode.
//
// Every transition into Streaming arms a one-shot edge flag that the
// session consumes with TakeStreamingEdge to trigger exactly one response
// per transition.
type State struct {
	mu       sync.RWMutex
	mode     AppMode
	edge     bool
	onChange []func(from, to AppMode)
}

// NewState creates a State starting in the given mode. Starting in
// Streaming arms the edge, as if the transition had just happened.
func NewState(initial AppMode) *State {
	return &State{mode: initial, edge: initial == Streaming}
}

// Get returns the current mode.
func (s *State) Get() AppMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Set transitions to m and reports whether the mode changed.
func (s *State) Set(m AppMode) bool {
	s.mu.Lock()
	from := s.mode
	if from == m {
		s.mu.Unlock()
		return false
	}
	s.mode = m
	s.edge = m == Streaming
	hooks := s.onChange
	s.mu.Unlock()

	for _, fn := range hooks {
		fn(from, m)
	}
	return true
}

// TakeStreamingEdge reports whether a transition into Streaming has happened
// since the last call, clearing the flag. It only returns true while the
// mode is still Streaming.
func (s *State) TakeStreamingEdge() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.edge || s.mode != Streaming {
		return false
	}
	s.edge = false
	return true
}

// OnChange registers fn to run after every transition.
func (s *State) OnChange(fn func(from, to AppMode)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}
