// Package generate rewrites the tracker block of a message with the reply
// of a secondary language model.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/hyperengineering/simtracker/internal/chat"
	"github.com/hyperengineering/simtracker/internal/config"
	"github.com/hyperengineering/simtracker/internal/dispatch"
	"github.com/hyperengineering/simtracker/internal/tracker"
)

// Slot guards against concurrent generations in one session.
type Slot interface {
	BeginGeneration() bool
	EndGeneration()
}

// Publisher receives the event announcing the rewritten message.
type Publisher interface {
	Publish(ctx context.Context, ev dispatch.Event) error
}

// Options configure a Generator.
type Options struct {
	Identifier      string
	Format          tracker.Format
	HistoryMessages int
	Stream          bool
	Temperature     float64
	Prompt          string
	CustomFields    []config.CustomField
	Timeout         time.Duration
}

// OptionsFrom combines generation and tracker configuration.
func OptionsFrom(g config.GenerationConfig, t config.TrackerConfig) (Options, error) {
	format, err := tracker.ParseFormat(t.Format)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Identifier:      t.Identifier,
		Format:          format,
		HistoryMessages: g.HistoryMessages,
		Stream:          g.Stream,
		Temperature:     g.Temperature,
		Prompt:          g.Prompt,
		CustomFields:    t.CustomFields,
		Timeout:         time.Duration(g.Timeout),
	}, nil
}

// Generator regenerates tracker blocks.
type Generator struct {
	completer Completer
	store     chat.Store
	slot      Slot
	pub       Publisher
	opts      Options
}

// New creates a generator. pub may be nil when nothing renders the result.
func New(c Completer, store chat.Store, slot Slot, pub Publisher, opts Options) *Generator {
	if opts.Identifier == "" {
		opts.Identifier = tracker.DefaultIdentifier
	}
	if opts.Format == "" {
		opts.Format = tracker.FormatJSON
	}
	return &Generator{completer: c, store: store, slot: slot, pub: pub, opts: opts}
}

// Result is what one regeneration produced.
type Result struct {
	MessageID int            `json:"message_id"`
	Record    tracker.Record `json:"record"`
	Text      string         `json:"text"`
}

// Regenerate asks the model for a new tracker for message id and writes it
// into the message, replacing its first tracker block or appending one.
func (g *Generator) Regenerate(ctx context.Context, id int) (*Result, error) {
	if !g.slot.BeginGeneration() {
		return nil, ErrGenerationInProgress
	}
	defer g.slot.EndGeneration()

	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	msgs, err := g.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	msg, ok := chat.Find(msgs, id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", chat.ErrMessageNotFound, id)
	}

	req := Request{
		System:      buildSystem(g.opts.Prompt, g.opts.CustomFields, g.opts.Identifier, g.opts.Format),
		User:        buildUser(msgs, id, g.opts.HistoryMessages, g.opts.Identifier),
		Temperature: g.opts.Temperature,
	}

	start := time.Now()
	var reply string
	if g.opts.Stream {
		chunks := 0
		reply, err = g.completer.Stream(ctx, req, func(string) { chunks++ })
		slog.Debug("tracker stream finished", "component", "generate", "message_id", id, "chunks", chunks)
	} else {
		reply, err = g.completer.Complete(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	rec, err := g.parseReply(reply)
	if err != nil {
		slog.Warn("model reply rejected",
			"component", "generate",
			"message_id", id,
			"error", err,
		)
		return nil, err
	}

	fence, err := tracker.SerializeFence(rec, g.opts.Identifier, g.opts.Format)
	if err != nil {
		return nil, err
	}
	text := replaceBlock(msg.Text, fence, g.opts.Identifier)
	if err := g.store.SaveText(ctx, id, text); err != nil {
		return nil, fmt.Errorf("save message %d: %w", id, err)
	}

	slog.Info("tracker regenerated",
		"component", "generate",
		"message_id", id,
		"characters", len(rec.Characters),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if g.pub != nil {
		if err := g.pub.Publish(ctx, dispatch.Event{Kind: dispatch.MessageFinished, MessageID: id}); err != nil {
			slog.Warn("regenerated message not announced", "component", "generate", "message_id", id, "error", err)
		}
	}
	return &Result{MessageID: id, Record: rec, Text: text}, nil
}

var anyFence = regexp.MustCompile("(?s)```[A-Za-z]*\\s*\\n(.*?)```")

// parseReply finds the tracker payload in a model reply: a fence with the
// tracker identifier, then any fence, then the bare reply.
func (g *Generator) parseReply(reply string) (tracker.Record, error) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return tracker.Record{}, ErrEmptyResponse
	}

	payload := reply
	if blk, err := tracker.Extract(reply, g.opts.Identifier); err == nil {
		payload = blk.Payload
	} else if m := anyFence.FindStringSubmatch(reply); m != nil {
		payload = m[1]
	}

	rec, err := tracker.ParseRecord(payload)
	if err != nil {
		return tracker.Record{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(rec.Characters) == 0 {
		return tracker.Record{}, fmt.Errorf("%w: no characters", ErrInvalidResponse)
	}
	return rec, nil
}

// replaceBlock swaps the first tracker fence in text for fence, or appends it.
func replaceBlock(text, fence, identifier string) string {
	blk, err := tracker.Extract(text, identifier)
	if errors.Is(err, tracker.ErrNotFound) {
		if strings.TrimSpace(text) == "" {
			return fence
		}
		return strings.TrimRight(text, "\n") + "\n\n" + fence
	}
	return text[:blk.Start] + fence + text[blk.End:]
}
