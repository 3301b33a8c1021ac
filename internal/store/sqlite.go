package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperengineering/simtracker/internal/chat"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// Compile-time interface check
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore keeps imported chat transcripts in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore instance.
// It initializes the database with WAL mode, applies pragmas, and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// enablePragmas sets SQLite pragmas for performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ImportChat stores a transcript as a new chat and returns its record.
func (s *SQLiteStore) ImportChat(ctx context.Context, meta ChatInfo, msgs []chat.Message) (*ChatInfo, error) {
	if strings.TrimSpace(meta.Name) == "" {
		return nil, ErrEmptyChatName
	}

	now := time.Now().UTC()
	info := meta
	info.ID = ulid.Make().String()
	info.CreatedAt = now
	info.UpdatedAt = now
	info.Messages = len(msgs)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	stamp := now.Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chats (id, name, user_name, character_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, info.ID, info.Name, info.UserName, info.CharacterName, stamp, stamp); err != nil {
		return nil, fmt.Errorf("insert chat: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (chat_id, position, author, is_user, is_system, text, reasoning, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("prepare message insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range msgs {
		if _, err := stmt.ExecContext(ctx, info.ID, i, m.Author, m.IsUser, m.IsSystem, m.Text, m.Reasoning, stamp); err != nil {
			return nil, fmt.Errorf("insert message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit import: %w", err)
	}
	return &info, nil
}

const chatInfoQuery = `
	SELECT c.id, c.name, c.user_name, c.character_name, c.created_at, c.updated_at,
	       (SELECT COUNT(*) FROM messages m WHERE m.chat_id = c.id)
	FROM chats c`

// ListChats returns every chat, most recently updated first.
func (s *SQLiteStore) ListChats(ctx context.Context) ([]ChatInfo, error) {
	rows, err := s.db.QueryContext(ctx, chatInfoQuery+` ORDER BY c.updated_at DESC, c.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var out []ChatInfo
	for rows.Next() {
		info, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *info)
	}
	return out, rows.Err()
}

// GetChat returns one chat or ErrChatNotFound.
func (s *SQLiteStore) GetChat(ctx context.Context, id string) (*ChatInfo, error) {
	row := s.db.QueryRowContext(ctx, chatInfoQuery+` WHERE c.id = ?`, id)
	info, err := scanChat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrChatNotFound, id)
	}
	return info, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChat(row scanner) (*ChatInfo, error) {
	var info ChatInfo
	var created, updated string
	if err := row.Scan(&info.ID, &info.Name, &info.UserName, &info.CharacterName, &created, &updated, &info.Messages); err != nil {
		return nil, err
	}
	info.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	info.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &info, nil
}

// LoadMessages returns the transcript of a chat in order.
func (s *SQLiteStore) LoadMessages(ctx context.Context, chatID string) ([]chat.Message, error) {
	if _, err := s.GetChat(ctx, chatID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT position, author, is_user, is_system, text, reasoning
		FROM messages WHERE chat_id = ? ORDER BY position
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	var out []chat.Message
	for rows.Next() {
		var m chat.Message
		if err := rows.Scan(&m.ID, &m.Author, &m.IsUser, &m.IsSystem, &m.Text, &m.Reasoning); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SaveText replaces a message text, keeping the old text as a revision.
func (s *SQLiteStore) SaveText(ctx context.Context, chatID string, position int, text string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	var old string
	err = tx.QueryRowContext(ctx, `SELECT text FROM messages WHERE chat_id = ? AND position = ?`, chatID, position).Scan(&old)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: chat %s message %d", chat.ErrMessageNotFound, chatID, position)
	}
	if err != nil {
		return fmt.Errorf("read message: %w", err)
	}
	if old == text {
		return nil
	}

	stamp := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO message_revisions (chat_id, position, text, created_at) VALUES (?, ?, ?, ?)
	`, chatID, position, old, stamp); err != nil {
		return fmt.Errorf("record revision: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE messages SET text = ?, updated_at = ? WHERE chat_id = ? AND position = ?
	`, text, stamp, chatID, position); err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE chats SET updated_at = ? WHERE id = ?`, stamp, chatID); err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}
	return tx.Commit()
}

// Revisions returns the earlier texts of a message, oldest first.
func (s *SQLiteStore) Revisions(ctx context.Context, chatID string, position int) ([]Revision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, chat_id, position, text, created_at
		FROM message_revisions WHERE chat_id = ? AND position = ? ORDER BY seq
	`, chatID, position)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	defer rows.Close()

	var out []Revision
	for rows.Next() {
		var r Revision
		var created string
		if err := rows.Scan(&r.Seq, &r.ChatID, &r.Position, &r.Text, &created); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// PruneRevisions deletes all but the newest keep revisions of every message
// and returns how many rows went.
func (s *SQLiteStore) PruneRevisions(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM message_revisions WHERE seq IN (
			SELECT seq FROM (
				SELECT seq, ROW_NUMBER() OVER (
					PARTITION BY chat_id, position ORDER BY seq DESC
				) AS rn
				FROM message_revisions
			) WHERE rn > ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune revisions: %w", err)
	}
	return res.RowsAffected()
}

// ForChat returns a chat.Store bound to one chat. Closing it leaves the
// database open.
func (s *SQLiteStore) ForChat(chatID string) chat.Store {
	return &chatView{store: s, chatID: chatID}
}

type chatView struct {
	store  *SQLiteStore
	chatID string
}

// Compile-time interface check
var _ chat.Store = (*chatView)(nil)

func (v *chatView) Load(ctx context.Context) ([]chat.Message, error) {
	return v.store.LoadMessages(ctx, v.chatID)
}

func (v *chatView) SaveText(ctx context.Context, id int, text string) error {
	return v.store.SaveText(ctx, v.chatID, id, text)
}

func (v *chatView) Close() error {
	return nil
}
