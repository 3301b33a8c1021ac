package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hyperengineering/simtracker/internal/store"
	"github.com/hyperengineering/simtracker/internal/validation"
)

// chatContextKey is the context key for the resolved chat.
type chatContextKey struct{}

// ErrNoChatInContext indicates no chat was found in the context.
var ErrNoChatInContext = errors.New("no chat in context")

// WithChat returns a new context with the chat attached.
func WithChat(ctx context.Context, c *store.ChatInfo) context.Context {
	return context.WithValue(ctx, chatContextKey{}, c)
}

// ChatFromContext extracts the chat from the context.
// Returns ErrNoChatInContext if not present or nil.
func ChatFromContext(ctx context.Context) (*store.ChatInfo, error) {
	c, ok := ctx.Value(chatContextKey{}).(*store.ChatInfo)
	if !ok || c == nil {
		return nil, ErrNoChatInContext
	}
	return c, nil
}

// ChatMiddleware resolves the {chatID} path parameter against the chat
// database and rejects unknown chats with 404.
func ChatMiddleware(db store.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if db == nil {
				WriteProblem(w, r, http.StatusServiceUnavailable, "No chat database configured")
				return
			}
			id := chi.URLParam(r, "chatID")
			if verr := validation.ValidateULID("chatID", id); verr != nil {
				WriteProblem(w, r, http.StatusBadRequest, verr.Error())
				return
			}
			c, err := db.GetChat(r.Context(), id)
			if err != nil {
				MapError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithChat(r.Context(), c)))
		})
	}
}
