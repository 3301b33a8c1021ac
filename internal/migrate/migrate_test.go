package migrate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hyperengineering/simtracker/internal/chat"
	"github.com/hyperengineering/simtracker/internal/tracker"
)

const legacyFence = "```sim\n{\"current_date\":\"2025-08-10\",\"current_time\":\"14:30\",\"Alice\":{\"ap\":75}}\n```"

const modernFence = "```sim\n{\"worldData\":{\"current_date\":\"2025-08-11\"},\"characters\":[{\"name\":\"Bob\",\"ap\":5}]}\n```"

// memStore is an in-memory chat.Store.
type memStore struct {
	msgs    []chat.Message
	saves   int
	saveErr error
}

func (s *memStore) Load(ctx context.Context) ([]chat.Message, error) {
	out := make([]chat.Message, len(s.msgs))
	copy(out, s.msgs)
	return out, nil
}

func (s *memStore) SaveText(ctx context.Context, id int, text string) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.msgs[id].Text = text
	return nil
}

func (s *memStore) Close() error { return nil }

// Compile-time interface check
var _ chat.Store = (*memStore)(nil)

func TestMigrateOne_LegacyPartition(t *testing.T) {
	src, err := tracker.Parse(`{"current_date":"2025-08-10","current_time":"14:30","Alice":{"ap":75}}`)
	if err != nil {
		t.Fatal(err)
	}

	rec := MigrateOne(src)

	if rec.WorldData["current_date"] != "2025-08-10" || rec.WorldData["current_time"] != "14:30" {
		t.Errorf("WorldData = %v", rec.WorldData)
	}
	if len(rec.Characters) != 1 || rec.Characters[0].Name != "Alice" || rec.Characters[0].Stats["ap"] != float64(75) {
		t.Errorf("Characters = %+v", rec.Characters)
	}
}

func TestMigrateText(t *testing.T) {
	// Given: one legacy and one modern fence in a single message
	text := "Intro\n" + legacyFence + "\nmiddle\n" + modernFence + "\nend"

	// When
	res := MigrateText(text, "sim", tracker.FormatJSON)

	// Then: only the legacy fence is rewritten
	if res.Migrated != 1 {
		t.Fatalf("Migrated = %d, want 1", res.Migrated)
	}
	if !strings.Contains(res.Text, modernFence) {
		t.Error("modern fence changed")
	}
	if !strings.HasPrefix(res.Text, "Intro\n```sim\n{") || !strings.HasSuffix(res.Text, "\nend") {
		t.Errorf("surrounding text changed:\n%s", res.Text)
	}
	blocks := tracker.ExtractAll(res.Text, "sim")
	if len(blocks) != 2 {
		t.Fatalf("blocks = %d, want 2", len(blocks))
	}
	src, err := tracker.Parse(blocks[0].Payload)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := src.(tracker.ModernSource); !ok {
		t.Errorf("first block still legacy: %s", blocks[0].Payload)
	}
}

func TestMigrateText_YAML(t *testing.T) {
	res := MigrateText(legacyFence, "sim", tracker.FormatYAML)
	if !res.Changed() {
		t.Fatal("not migrated")
	}
	if !strings.Contains(res.Text, "worldData:") || !strings.Contains(res.Text, "- name: Alice") {
		t.Errorf("not YAML:\n%s", res.Text)
	}
	rec, err := tracker.ParseRecord(tracker.ExtractAll(res.Text, "sim")[0].Payload)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Characters[0].Stats["ap"] != float64(75) {
		t.Errorf("ap = %v", rec.Characters[0].Stats["ap"])
	}
}

func TestMigrateText_SkipsMalformed(t *testing.T) {
	text := "```sim\n{broken: [\n```\n" + legacyFence

	res := MigrateText(text, "sim", tracker.FormatJSON)

	if res.Skipped != 1 || res.Migrated != 1 {
		t.Errorf("Skipped = %d, Migrated = %d, want 1, 1", res.Skipped, res.Migrated)
	}
	if !strings.HasPrefix(res.Text, "```sim\n{broken: [\n```\n") {
		t.Errorf("malformed fence altered:\n%s", res.Text)
	}
}

func TestMigrateAll_CountsMessagesAndIsIdempotent(t *testing.T) {
	// Given: two fences in one message, one in another, one modern message
	msgs := []chat.Message{
		{ID: 0, Text: "hi"},
		{ID: 1, Text: legacyFence + "\n" + legacyFence},
		{ID: 2, Text: modernFence},
		{ID: 3, Text: legacyFence},
	}

	// When: migrating twice
	first := MigrateAll(msgs, "sim", tracker.FormatJSON)
	for _, c := range first.Changes {
		msgs[c.ID].Text = c.Text
	}
	second := MigrateAll(msgs, "sim", tracker.FormatJSON)

	// Then
	if first.MigratedCount != 2 || first.Fences != 3 {
		t.Errorf("first run = %d messages, %d fences, want 2, 3", first.MigratedCount, first.Fences)
	}
	if second.MigratedCount != 0 || len(second.Changes) != 0 {
		t.Errorf("second run MigratedCount = %d, want 0", second.MigratedCount)
	}
	if got := len(tracker.ExtractAll(msgs[1].Text, "sim")); got != 2 {
		t.Errorf("message 1 has %d fences, want 2", got)
	}
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	st := &memStore{msgs: []chat.Message{{ID: 0, Text: "hi"}, {ID: 1, Text: legacyFence}}}

	dry, err := Apply(ctx, st, "sim", tracker.FormatJSON, true)
	if err != nil {
		t.Fatalf("Apply(dry) error = %v", err)
	}
	if dry.MigratedCount != 1 || st.saves != 0 {
		t.Errorf("dry run: count %d, saves %d", dry.MigratedCount, st.saves)
	}

	res, err := Apply(ctx, st, "sim", tracker.FormatJSON, false)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.MigratedCount != 1 || st.saves != 1 {
		t.Errorf("count %d, saves %d", res.MigratedCount, st.saves)
	}

	again, err := Apply(ctx, st, "sim", tracker.FormatJSON, false)
	if err != nil {
		t.Fatal(err)
	}
	if again.MigratedCount != 0 {
		t.Errorf("second Apply() count = %d, want 0", again.MigratedCount)
	}
}

func TestApply_SaveError(t *testing.T) {
	boom := errors.New("disk full")
	st := &memStore{msgs: []chat.Message{{ID: 0, Text: legacyFence}}, saveErr: boom}
	if _, err := Apply(context.Background(), st, "sim", tracker.FormatJSON, false); !errors.Is(err, boom) {
		t.Errorf("Apply() error = %v, want %v", err, boom)
	}
}
