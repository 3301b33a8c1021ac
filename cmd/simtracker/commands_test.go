package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperengineering/simtracker/internal/chat"
)

const (
	trackerBlock = "```sim\n" + `{"worldData":{"current_date":"2025-08-10"},"characters":[{"name":"Alice","ap":40}]}` + "\n```"
	legacyBlock  = "```sim\n" + `{"current_date":"2025-08-10","Alice":{"ap":75}}` + "\n```"
)

// executeCmd executes a command with captured output.
func executeCmd(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	// Reset package-level flag variables to their defaults.
	// Cobra parses into these variables, so stale values from previous tests
	// would leak if not reset.
	configPath = ""
	chatPath = ""
	dbPath = ""
	chatID = ""
	renderOut = ""
	renderPosition = ""
	renderTemplate = ""
	migrateDryRun = false
	migrateJSON = false
	generateJSON = false
	chatsJSONOutput = false
	importName = ""
	importUser = ""
	importCharacter = ""

	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	rootCmd.SetOut(outBuf)
	rootCmd.SetErr(errBuf)
	rootCmd.SetArgs(args)

	err = rootCmd.Execute()

	rootCmd.SetOut(nil)
	rootCmd.SetErr(nil)
	rootCmd.SetArgs(nil)

	return outBuf.String(), errBuf.String(), err
}

// writeChat writes a JSONL chat with one message per text.
func writeChat(t *testing.T, texts ...string) string {
	t.Helper()
	var msgs []chat.Message
	for i, text := range texts {
		msgs = append(msgs, chat.Message{ID: i, Author: "Narrator", IsUser: i%2 == 1, Text: text})
	}
	path := filepath.Join(t.TempDir(), "chat.jsonl")
	if err := chat.WriteFile(path, "User", "Narrator", msgs); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func loadTexts(t *testing.T, path string) []string {
	t.Helper()
	fs, err := chat.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	msgs, err := fs.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	var out []string
	for _, m := range msgs {
		out = append(out, m.Text)
	}
	return out
}

func TestVersion(t *testing.T) {
	stdout, _, err := executeCmd(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(stdout, "simtracker "+Version) {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestRender_Stdout(t *testing.T) {
	// Given: a chat whose last message carries a tracker
	path := writeChat(t, "Hello", "Hi there\n\n"+trackerBlock)

	// When: rendering to stdout
	stdout, _, err := executeCmd(t, "render", "--chat", path)
	if err != nil {
		t.Fatalf("render error = %v", err)
	}

	// Then: a full page with the character card is written
	if !strings.HasPrefix(stdout, "<!DOCTYPE html>") {
		t.Errorf("missing doctype: %.60q", stdout)
	}
	if !strings.Contains(stdout, "Alice") {
		t.Error("rendered page does not mention Alice")
	}
}

func TestRender_OutFile(t *testing.T) {
	path := writeChat(t, trackerBlock)
	out := filepath.Join(t.TempDir(), "page.html")

	stdout, _, err := executeCmd(t, "render", "--chat", path, "--out", out, "--position", "RIGHT")
	if err != nil {
		t.Fatalf("render error = %v", err)
	}
	if !strings.Contains(stdout, "Wrote "+out) {
		t.Errorf("stdout = %q", stdout)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "Alice") {
		t.Error("page file does not mention Alice")
	}
}

func TestRender_InvalidPosition(t *testing.T) {
	path := writeChat(t, trackerBlock)

	_, _, err := executeCmd(t, "render", "--chat", path, "--position", "DIAGONAL")
	if err == nil {
		t.Fatal("expected error for unknown position")
	}
}

func TestRender_MissingChat(t *testing.T) {
	_, _, err := executeCmd(t, "render", "--chat", filepath.Join(t.TempDir(), "nope.jsonl"))
	if err == nil {
		t.Fatal("expected error for missing chat file")
	}
}

func TestMigrate_DryRunThenApply(t *testing.T) {
	// Given: a chat with one legacy block
	path := writeChat(t, "Hello", legacyBlock)

	// When: dry-running
	stdout, _, err := executeCmd(t, "migrate", "--chat", path, "--dry-run")
	if err != nil {
		t.Fatalf("migrate --dry-run error = %v", err)
	}

	// Then: the change is reported but not written
	if !strings.Contains(stdout, "Would migrate 1 messages") {
		t.Errorf("stdout = %q", stdout)
	}
	if got := loadTexts(t, path)[1]; got != legacyBlock {
		t.Errorf("dry run wrote the file: %q", got)
	}

	// When: applying
	stdout, _, err = executeCmd(t, "migrate", "--chat", path, "--json")
	if err != nil {
		t.Fatalf("migrate error = %v", err)
	}

	// Then: the block is rewritten in the current shape
	var res struct {
		MigratedCount int `json:"migrated_count"`
	}
	if err := json.Unmarshal([]byte(stdout), &res); err != nil {
		t.Fatalf("unmarshal %q: %v", stdout, err)
	}
	if res.MigratedCount != 1 {
		t.Errorf("migrated_count = %d, want 1", res.MigratedCount)
	}
	if got := loadTexts(t, path)[1]; !strings.Contains(got, `"characters"`) {
		t.Errorf("message not migrated: %q", got)
	}
}

func TestGenerate(t *testing.T) {
	// Given: a completion endpoint that answers with a fenced tracker
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reply, _ := json.Marshal("```sim\n{\"worldData\":{},\"characters\":[{\"name\":\"Bob\",\"ap\":5}]}\n```")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":%s}}]}`, reply)
	}))
	defer srv.Close()

	cfgFile := filepath.Join(t.TempDir(), "simtracker.yaml")
	cfgYAML := "generation:\n  base_url: " + srv.URL + "\n  stream: false\n"
	if err := os.WriteFile(cfgFile, []byte(cfgYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	path := writeChat(t, "Hello", "Scene text\n\n"+trackerBlock)

	// When: regenerating message 1
	stdout, _, err := executeCmd(t, "generate", "1", "--config", cfgFile, "--chat", path)
	if err != nil {
		t.Fatalf("generate error = %v", err)
	}

	// Then: the old block is replaced and the prose kept
	if !strings.Contains(stdout, "Regenerated message 1 (1 characters)") {
		t.Errorf("stdout = %q", stdout)
	}
	got := loadTexts(t, path)[1]
	if !strings.Contains(got, "Scene text") || !strings.Contains(got, "Bob") || strings.Contains(got, "Alice") {
		t.Errorf("message = %q", got)
	}
}

func TestGenerate_BadMessageID(t *testing.T) {
	_, _, err := executeCmd(t, "generate", "abc")
	if err == nil {
		t.Fatal("expected error for non-numeric message id")
	}
}

func TestChats_ImportListInfo(t *testing.T) {
	path := writeChat(t, "Hello", trackerBlock)
	db := filepath.Join(t.TempDir(), "chats.db")

	// When: importing a chat file
	stdout, _, err := executeCmd(t, "chats", "import", path, "--db", db, "--name", "tavern", "--json")
	if err != nil {
		t.Fatalf("chats import error = %v", err)
	}
	var info struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Messages int    `json:"messages"`
	}
	if err := json.Unmarshal([]byte(stdout), &info); err != nil {
		t.Fatalf("unmarshal %q: %v", stdout, err)
	}
	if info.Name != "tavern" || info.Messages != 2 || info.ID == "" {
		t.Errorf("imported = %+v", info)
	}

	// Then: it is listed
	stdout, _, err = executeCmd(t, "chats", "list", "--db", db)
	if err != nil {
		t.Fatalf("chats list error = %v", err)
	}
	if !strings.Contains(stdout, info.ID) || !strings.Contains(stdout, "tavern") {
		t.Errorf("list = %q", stdout)
	}

	// And: described
	stdout, _, err = executeCmd(t, "chats", "info", info.ID, "--db", db)
	if err != nil {
		t.Fatalf("chats info error = %v", err)
	}
	if !strings.Contains(stdout, "Messages:  2") {
		t.Errorf("info = %q", stdout)
	}

	// And: rendered from the database
	stdout, _, err = executeCmd(t, "render", "--db", db, "--chat-id", info.ID)
	if err != nil {
		t.Fatalf("render from db error = %v", err)
	}
	if !strings.Contains(stdout, "Alice") {
		t.Error("page rendered from db does not mention Alice")
	}
}

func TestChats_ListEmpty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "chats.db")

	stdout, _, err := executeCmd(t, "chats", "list", "--db", db)
	if err != nil {
		t.Fatalf("chats list error = %v", err)
	}
	if !strings.Contains(stdout, "No chats found.") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestChats_InfoUnknown(t *testing.T) {
	db := filepath.Join(t.TempDir(), "chats.db")

	_, _, err := executeCmd(t, "chats", "info", "01ARZ3NDEKTSV4RRFFQ69G5FAV", "--db", db)
	if err == nil {
		t.Fatal("expected error for unknown chat")
	}
}

func TestRender_SQLiteRequiresKnownChat(t *testing.T) {
	db := filepath.Join(t.TempDir(), "chats.db")

	_, _, err := executeCmd(t, "render", "--db", db, "--chat-id", "missing")
	if err == nil {
		t.Fatal("expected error for unknown chat id")
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1073741824, "1.0 GB"},
	}
	for _, tt := range tests {
		if got := formatSize(tt.bytes); got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}
