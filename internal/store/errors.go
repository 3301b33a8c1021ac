package store

import "errors"

var (
	ErrChatNotFound  = errors.New("chat not found")
	ErrEmptyChatName = errors.New("chat name is required")
)
