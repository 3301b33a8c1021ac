package generate

import (
	"fmt"
	"strings"

	"github.com/hyperengineering/simtracker/internal/chat"
	"github.com/hyperengineering/simtracker/internal/config"
	"github.com/hyperengineering/simtracker/internal/tracker"
)

// DefaultPrompt is the system prompt used when none is configured.
const DefaultPrompt = `You maintain a tracker of the characters in a roleplay chat.
Read the recent messages and the current tracker, then reply with the updated tracker only.
Keep characters that are still present, add new ones, and mark characters who left as inactive.`

// builtinFields describes the stats every tracker carries.
var builtinFields = []config.CustomField{
	{Key: "ap", Description: "affection points, 0 to 200"},
	{Key: "dp", Description: "desire points, 0 to 150"},
	{Key: "tp", Description: "trust points, 0 to 150"},
	{Key: "cp", Description: "contempt points, 0 to 150"},
	{Key: "relationshipStatus", Description: "short label of the relationship"},
	{Key: "desireStatus", Description: "short label of the current desire"},
	{Key: "internal_thought", Description: "the character's private thought, one sentence"},
	{Key: "last_react", Description: "0 neutral, 1 positive, 2 negative reaction to the last message"},
	{Key: "health", Description: "0 healthy, 1 injured, 2 dead"},
	{Key: "inactive", Description: "true when the character is not in the scene"},
	{Key: "inactiveReason", Description: "1 asleep, 2 hospitalized, 3 angry, 4 missing, 5 dead"},
}

// buildSystem assembles the instructions: prompt, field list and output format.
func buildSystem(prompt string, custom []config.CustomField, identifier string, format tracker.Format) string {
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultPrompt
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(prompt))
	b.WriteString("\n\nEach character has a name and these fields:\n")
	for _, f := range append(append([]config.CustomField(nil), builtinFields...), custom...) {
		fmt.Fprintf(&b, "- %s: %s\n", f.Key, f.Description)
	}

	example := tracker.Record{
		WorldData: map[string]any{tracker.KeyCurrentDate: "YYYY-MM-DD", tracker.KeyCurrentTime: "HH:MM"},
		Characters: []tracker.Character{{
			Name:  "Name",
			Stats: map[string]any{"ap": 0, "dp": 0, "tp": 0, "cp": 0},
		}},
	}
	fence, err := tracker.SerializeFence(example, identifier, format)
	if err == nil {
		fmt.Fprintf(&b, "\nReply with exactly one %s block in this shape:\n%s\n", strings.ToUpper(string(format)), fence)
	}
	return b.String()
}

// buildUser lists up to history messages ending at the target and the most
// recent tracker found among them.
func buildUser(msgs []chat.Message, target, history int, identifier string) string {
	end := target + 1
	if end > len(msgs) {
		end = len(msgs)
	}
	start := end - history
	if start < 0 || history <= 0 {
		start = 0
	}
	window := msgs[start:end]

	var b strings.Builder
	b.WriteString("Recent messages:\n\n")
	for _, m := range window {
		text := m.Text
		for _, blk := range tracker.ExtractAll(text, identifier) {
			text = strings.Replace(text, blk.Raw, "", 1)
		}
		fmt.Fprintf(&b, "%s: %s\n\n", m.Author, strings.TrimSpace(text))
	}

	for i := end - 1; i >= 0; i-- {
		if blk, err := tracker.Extract(msgs[i].Text, identifier); err == nil {
			b.WriteString("Current tracker:\n")
			b.WriteString(blk.Raw)
			b.WriteString("\n")
			break
		}
	}
	return b.String()
}
