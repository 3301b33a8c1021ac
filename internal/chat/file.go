package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Compile-time interface check
var _ Store = (*FileStore)(nil)

// FileStore reads and writes a JSONL chat file: an optional header line
// followed by one message object per line. Fields it does not know about are
// kept as they were.
type FileStore struct {
	path string

	mu     sync.Mutex
	header json.RawMessage
	lines  []map[string]json.RawMessage
}

// OpenFile returns a store over path. The file is read on Load.
func OpenFile(path string) (*FileStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open chat file: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Path returns the chat file location.
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the file again and returns its messages.
func (f *FileStore) Load(ctx context.Context) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

// load reads the file into memory. Caller holds mu.
func (f *FileStore) load() ([]Message, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read chat file: %w", err)
	}

	var header json.RawMessage
	var lines []map[string]json.RawMessage
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("chat file %s line %d: %w", f.path, lineNo, err)
		}
		if len(lines) == 0 && header == nil && isHeader(obj) {
			header = append(json.RawMessage(nil), raw...)
			continue
		}
		lines = append(lines, obj)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read chat file: %w", err)
	}

	f.header = header
	f.lines = lines

	msgs := make([]Message, len(lines))
	for i, obj := range lines {
		msgs[i] = decodeMessage(i, obj)
	}
	return msgs, nil
}

// SaveText rewrites the "mes" field of one message and writes the file back.
func (f *FileStore) SaveText(ctx context.Context, id int, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.lines == nil {
		if _, err := f.load(); err != nil {
			return err
		}
	}
	if id < 0 || id >= len(f.lines) {
		return fmt.Errorf("%w: %d", ErrMessageNotFound, id)
	}

	encoded, err := json.Marshal(text)
	if err != nil {
		return fmt.Errorf("encode message %d: %w", id, err)
	}
	f.lines[id]["mes"] = encoded
	return f.write()
}

// Close is a no-op; the file is not held open.
func (f *FileStore) Close() error {
	return nil
}

// write replaces the file atomically. Caller holds mu.
func (f *FileStore) write() error {
	var buf bytes.Buffer
	if f.header != nil {
		buf.Write(f.header)
		buf.WriteByte('\n')
	}
	for i, obj := range f.lines {
		line, err := json.Marshal(obj)
		if err != nil {
			return fmt.Errorf("encode message %d: %w", i, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".chat-*.jsonl")
	if err != nil {
		return fmt.Errorf("write chat file: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write chat file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write chat file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write chat file: %w", err)
	}
	return nil
}

func isHeader(obj map[string]json.RawMessage) bool {
	if _, ok := obj["mes"]; ok {
		return false
	}
	_, user := obj["user_name"]
	_, meta := obj["chat_metadata"]
	return user || meta
}

func decodeMessage(id int, obj map[string]json.RawMessage) Message {
	m := Message{ID: id}
	decodeField(obj, "name", &m.Author)
	decodeField(obj, "is_user", &m.IsUser)
	decodeField(obj, "is_system", &m.IsSystem)
	decodeField(obj, "mes", &m.Text)

	if raw, ok := obj["extra"]; ok {
		var extra struct {
			Reasoning string `json:"reasoning"`
		}
		if json.Unmarshal(raw, &extra) == nil {
			m.Reasoning = extra.Reasoning
		}
	}
	return m
}

func decodeField(obj map[string]json.RawMessage, key string, dst any) {
	if raw, ok := obj[key]; ok {
		_ = json.Unmarshal(raw, dst)
	}
}

// WriteFile writes msgs as a new JSONL chat file with a minimal header.
func WriteFile(path, userName, characterName string, msgs []Message) error {
	var buf bytes.Buffer
	header, err := json.Marshal(map[string]any{
		"user_name":      userName,
		"character_name": characterName,
		"chat_metadata":  map[string]any{},
	})
	if err != nil {
		return err
	}
	buf.Write(header)
	buf.WriteByte('\n')
	for _, m := range msgs {
		line := map[string]any{
			"name":      m.Author,
			"is_user":   m.IsUser,
			"is_system": m.IsSystem,
			"mes":       m.Text,
		}
		if m.Reasoning != "" {
			line["extra"] = map[string]any{"reasoning": m.Reasoning}
		}
		b, err := json.Marshal(line)
		if err != nil {
			return err
		}
		buf.Write(b)
		buf.WriteByte('\n')
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write chat file: %w", err)
	}
	return nil
}
