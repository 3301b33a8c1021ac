package render

import (
	"sync/atomic"

	"github.com/hyperengineering/simtracker/internal/position"
	"github.com/hyperengineering/simtracker/internal/sidebar"
)

// SessionState is the mutable UI state of one chat session: sidebar mounts,
// the position currently in effect, the message that owns the positioned
// display and whether a generation is writing into the transcript.
type SessionState struct {
	Sidebars *sidebar.Mounts

	position    position.Position
	lastMounted int
	generating  atomic.Bool
}

// NewSessionState returns state for a fresh session.
func NewSessionState() *SessionState {
	return &SessionState{Sidebars: sidebar.NewMounts(), lastMounted: -1}
}

// Position returns the position of the last render pass, empty before the first.
func (s *SessionState) Position() position.Position {
	return s.position
}

// LastMounted returns the id of the message whose data is mounted in an
// exclusive position, or -1.
func (s *SessionState) LastMounted() int {
	return s.lastMounted
}

// BeginGeneration claims the generation slot. It returns false when a
// generation is already running.
func (s *SessionState) BeginGeneration() bool {
	return s.generating.CompareAndSwap(false, true)
}

// EndGeneration releases the generation slot.
func (s *SessionState) EndGeneration() {
	s.generating.Store(false)
}

// Generating reports whether a generation holds the slot.
func (s *SessionState) Generating() bool {
	return s.generating.Load()
}

// Reset forgets everything but the generation slot.
func (s *SessionState) Reset() {
	s.Sidebars = sidebar.NewMounts()
	s.position = ""
	s.lastMounted = -1
}
