// Package migrate rewrites legacy flat tracker blocks into the nested
// worldData/characters shape.
package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hyperengineering/simtracker/internal/chat"
	"github.com/hyperengineering/simtracker/internal/tracker"
)

// MigrateOne converts a record in either shape to the canonical one, using the
// same partition rule as rendering.
func MigrateOne(src tracker.Source) tracker.Record {
	return tracker.Normalize(src)
}

// TextResult is the outcome of migrating one message text.
type TextResult struct {
	Text     string
	Migrated int
	Skipped  int
}

// Changed reports whether any fence was rewritten.
func (r TextResult) Changed() bool {
	return r.Migrated > 0
}

// MigrateText rewrites every legacy fence in text. Fences already in the
// modern shape are left byte for byte; fences that do not parse are logged
// and skipped.
func MigrateText(text, identifier string, format tracker.Format) TextResult {
	blocks := tracker.ExtractAll(text, identifier)
	res := TextResult{Text: text}
	if len(blocks) == 0 {
		return res
	}

	var b strings.Builder
	last := 0
	for i, blk := range blocks {
		replacement, ok := migrateBlock(blk, identifier, format, &res, i)
		b.WriteString(text[last:blk.Start])
		if ok {
			b.WriteString(replacement)
		} else {
			b.WriteString(blk.Raw)
		}
		last = blk.End
	}
	b.WriteString(text[last:])

	if res.Migrated > 0 {
		res.Text = b.String()
	}
	return res
}

func migrateBlock(blk tracker.Block, identifier string, format tracker.Format, res *TextResult, index int) (string, bool) {
	src, err := tracker.Parse(blk.Payload)
	if err != nil {
		res.Skipped++
		slog.Warn("skipping malformed tracker block",
			"component", "migrate",
			"block", index,
			"error", err,
		)
		return "", false
	}
	if _, modern := src.(tracker.ModernSource); modern {
		return "", false
	}

	fence, err := tracker.SerializeFence(MigrateOne(src), identifier, format)
	if err != nil {
		res.Skipped++
		slog.Warn("skipping unserializable tracker block",
			"component", "migrate",
			"block", index,
			"error", err,
		)
		return "", false
	}
	res.Migrated++
	return fence, true
}

// Change is one rewritten message.
type Change struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// Result summarizes a transcript migration. MigratedCount counts messages,
// not fences.
type Result struct {
	MigratedCount int      `json:"migrated_count"`
	Fences        int      `json:"fences"`
	Skipped       int      `json:"skipped"`
	Changes       []Change `json:"changes,omitempty"`
}

// MigrateAll migrates every message of a transcript. It never fails; bad
// fences are counted in Skipped.
func MigrateAll(msgs []chat.Message, identifier string, format tracker.Format) Result {
	var res Result
	for _, m := range msgs {
		tr := MigrateText(m.Text, identifier, format)
		res.Skipped += tr.Skipped
		if !tr.Changed() {
			continue
		}
		res.MigratedCount++
		res.Fences += tr.Migrated
		res.Changes = append(res.Changes, Change{ID: m.ID, Text: tr.Text})
	}
	return res
}

// Apply migrates a stored transcript and writes changed messages back.
// With dryRun nothing is written.
func Apply(ctx context.Context, store chat.Store, identifier string, format tracker.Format, dryRun bool) (Result, error) {
	msgs, err := store.Load(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load transcript: %w", err)
	}

	res := MigrateAll(msgs, identifier, format)
	if dryRun {
		return res, nil
	}
	for _, c := range res.Changes {
		if err := store.SaveText(ctx, c.ID, c.Text); err != nil {
			return res, fmt.Errorf("save message %d: %w", c.ID, err)
		}
	}

	slog.Info("transcript migrated",
		"component", "migrate",
		"messages", res.MigratedCount,
		"fences", res.Fences,
		"skipped", res.Skipped,
	)
	return res, nil
}
