// Package chat holds the transcript model the render core reads from and the
// stores that persist it.
package chat

import (
	"context"
	"errors"
)

// ErrMessageNotFound indicates a message id outside the transcript.
var ErrMessageNotFound = errors.New("message not found")

// Message is one chat message as the host provides it.
type Message struct {
	ID        int    `json:"id"`
	Author    string `json:"author"`
	IsUser    bool   `json:"is_user"`
	IsSystem  bool   `json:"is_system"`
	Text      string `json:"text"`
	Reasoning string `json:"reasoning,omitempty"`
}

// Store is a chat transcript backend.
type Store interface {
	// Load returns every message in transcript order; IDs are positions.
	Load(ctx context.Context) ([]Message, error)

	// SaveText replaces the text of one message.
	SaveText(ctx context.Context, id int, text string) error

	// Close releases backend resources.
	Close() error
}

// Find returns the message with id, or false.
func Find(msgs []Message, id int) (Message, bool) {
	if id < 0 || id >= len(msgs) || msgs[id].ID != id {
		for _, m := range msgs {
			if m.ID == id {
				return m, true
			}
		}
		return Message{}, false
	}
	return msgs[id], true
}
