package dispatch

import (
	"sort"
	"time"
)

// Manual is a Scheduler driven by Advance, for tests and one-shot rendering.
type Manual struct {
	now     time.Duration
	seq     int
	pending []manualTimer
}

type manualTimer struct {
	at  time.Duration
	seq int
	fn  func()
}

// Compile-time interface check
var _ Scheduler = (*Manual)(nil)

// AfterFunc records fn to run once the clock passes delay from now.
func (m *Manual) AfterFunc(delay time.Duration, fn func()) {
	m.seq++
	m.pending = append(m.pending, manualTimer{at: m.now + delay, seq: m.seq, fn: fn})
}

// Advance moves the clock forward, running due timers in time order.
// Timers scheduled by callbacks run too if they fall inside the window.
func (m *Manual) Advance(d time.Duration) {
	end := m.now + d
	for {
		sort.Slice(m.pending, func(i, j int) bool {
			if m.pending[i].at == m.pending[j].at {
				return m.pending[i].seq < m.pending[j].seq
			}
			return m.pending[i].at < m.pending[j].at
		})
		if len(m.pending) == 0 || m.pending[0].at > end {
			break
		}
		t := m.pending[0]
		m.pending = m.pending[1:]
		m.now = t.at
		t.fn()
	}
	m.now = end
}

// Flush runs every pending timer regardless of delay.
func (m *Manual) Flush() {
	for len(m.pending) > 0 {
		latest := time.Duration(0)
		for _, t := range m.pending {
			if t.at > latest {
				latest = t.at
			}
		}
		m.Advance(latest - m.now)
	}
}

// Pending returns the number of timers not yet run.
func (m *Manual) Pending() int {
	return len(m.pending)
}
