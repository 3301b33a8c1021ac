package config

import "sync"

// Live holds tracker settings that can change while the server runs.
type Live struct {
	mu      sync.RWMutex
	tracker TrackerConfig
	version int
}

// NewLive starts from t.
func NewLive(t TrackerConfig) *Live {
	return &Live{tracker: t}
}

// Tracker returns the current settings.
func (l *Live) Tracker() TrackerConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t := l.tracker
	t.TemplatePacks = append([]string(nil), l.tracker.TemplatePacks...)
	t.CustomFields = append([]CustomField(nil), l.tracker.CustomFields...)
	return t
}

// Version increases on every successful Set.
func (l *Live) Version() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// Set validates and swaps in new settings.
func (l *Live) Set(t TrackerConfig) error {
	if err := t.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tracker = t
	l.version++
	return nil
}
