// Package watch turns writes to a chat file into "message changed" events.
//
// Each burst of writes is debounced, the transcript is reloaded and compared
// with the previous snapshot. Changed messages are published as updated
// right away and as finished once the file has been quiet for Settle.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hyperengineering/simtracker/internal/chat"
	"github.com/hyperengineering/simtracker/internal/dispatch"
)

// Publisher receives events; the dispatcher implements it.
type Publisher interface {
	Publish(ctx context.Context, ev dispatch.Event) error
}

// Options tune the watcher.
type Options struct {
	// Debounce is the quiet time after a write before the file is read.
	Debounce time.Duration
	// Settle is the quiet time after which changed messages count as finished.
	Settle time.Duration
}

// DefaultOptions are used for zero fields.
var DefaultOptions = Options{Debounce: 150 * time.Millisecond, Settle: time.Second}

// Watcher follows one chat file.
type Watcher struct {
	path  string
	store chat.Store
	pub   Publisher
	opts  Options

	snapshot []string
	open     map[int]bool
}

// New creates a watcher for the file at path, read through store.
func New(path string, store chat.Store, pub Publisher, opts Options) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultOptions.Debounce
	}
	if opts.Settle <= 0 {
		opts.Settle = DefaultOptions.Settle
	}
	return &Watcher{
		path:  filepath.Clean(path),
		store: store,
		pub:   pub,
		opts:  opts,
		open:  make(map[int]bool),
	}
}

// Prime records the current transcript without publishing anything.
func (w *Watcher) Prime(ctx context.Context) error {
	msgs, err := w.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("prime watcher: %w", err)
	}
	w.snapshot = texts(msgs)
	return nil
}

// Run watches until ctx is cancelled. The directory is watched instead of
// the file so atomic replace-by-rename writes are seen.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	slog.Info("watching chat file", "component", "watch", "path", w.path)

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	settle := time.NewTimer(time.Hour)
	settle.Stop()
	defer debounce.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("watcher stopped", "component", "watch", "reason", "context_cancelled")
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce.Reset(w.opts.Debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "component", "watch", "error", err)

		case <-debounce.C:
			if w.Check(ctx) {
				settle.Reset(w.opts.Settle)
			}

		case <-settle.C:
			w.Settle(ctx)
		}
	}
}

// Check reloads the transcript and publishes what changed since the last
// snapshot. It reports whether any message was published as updated.
func (w *Watcher) Check(ctx context.Context) bool {
	msgs, err := w.store.Load(ctx)
	if err != nil {
		// Half-written files are common; the next write retries.
		slog.Debug("chat file not readable", "component", "watch", "error", err)
		return false
	}
	next := texts(msgs)
	prev := w.snapshot
	w.snapshot = next

	if len(next) < len(prev) {
		w.open = make(map[int]bool)
		w.publish(ctx, dispatch.Event{Kind: dispatch.Refresh, MessageID: -1})
		return false
	}

	changed := false
	for i, text := range next {
		if i < len(prev) && prev[i] == text {
			continue
		}
		w.open[i] = true
		changed = true
		w.publish(ctx, dispatch.Event{Kind: dispatch.MessageUpdated, MessageID: i})
	}
	return changed
}

// Settle publishes a finished event for every message changed since the last settle.
func (w *Watcher) Settle(ctx context.Context) {
	ids := make([]int, 0, len(w.open))
	for id := range w.open {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	w.open = make(map[int]bool)
	for _, id := range ids {
		w.publish(ctx, dispatch.Event{Kind: dispatch.MessageFinished, MessageID: id})
	}
}

func (w *Watcher) publish(ctx context.Context, ev dispatch.Event) {
	if err := w.pub.Publish(ctx, ev); err != nil {
		slog.Warn("event dropped",
			"component", "watch",
			"kind", ev.Kind.String(),
			"message_id", ev.MessageID,
			"error", err,
		)
	}
}

func texts(msgs []chat.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}
