package store

import (
	"context"
	"time"

	"github.com/hyperengineering/simtracker/internal/chat"
)

// ChatInfo describes one stored chat.
type ChatInfo struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	UserName      string    `json:"user_name,omitempty"`
	CharacterName string    `json:"character_name,omitempty"`
	Messages      int       `json:"messages"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Revision is a previous text of a message, kept when the text is replaced.
type Revision struct {
	Seq       int64     `json:"seq"`
	ChatID    string    `json:"chat_id"`
	Position  int       `json:"position"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Store defines the contract of the chat database.
type Store interface {
	ImportChat(ctx context.Context, meta ChatInfo, msgs []chat.Message) (*ChatInfo, error)
	ListChats(ctx context.Context) ([]ChatInfo, error)
	GetChat(ctx context.Context, id string) (*ChatInfo, error)
	LoadMessages(ctx context.Context, chatID string) ([]chat.Message, error)
	SaveText(ctx context.Context, chatID string, position int, text string) error
	Revisions(ctx context.Context, chatID string, position int) ([]Revision, error)
	PruneRevisions(ctx context.Context, keep int) (int64, error)
	ForChat(chatID string) chat.Store
	Close() error
}
