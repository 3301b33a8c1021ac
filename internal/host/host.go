// Package host plays the chat application around the render core. It owns
// the transcript, the page and the message formatter, and turns "message
// changed" notifications into pipeline and macro calls.
//
// Every method except the constructor must run on the dispatcher goroutine.
package host

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyperengineering/simtracker/internal/chat"
	"github.com/hyperengineering/simtracker/internal/config"
	"github.com/hyperengineering/simtracker/internal/dispatch"
	"github.com/hyperengineering/simtracker/internal/macro"
	"github.com/hyperengineering/simtracker/internal/page"
	"github.com/hyperengineering/simtracker/internal/render"
	"github.com/hyperengineering/simtracker/internal/sidebar"
	"github.com/hyperengineering/simtracker/internal/templates"
	"github.com/yuin/goldmark"
)

// loadTimeout bounds a transcript reload triggered by an event.
const loadTimeout = 10 * time.Second

// Host renders a chat transcript into a page.
type Host struct {
	store    chat.Store
	page     *page.Page
	md       goldmark.Markdown
	pipeline *render.Pipeline

	messages []chat.Message
	tracker  config.TrackerConfig
	settings render.Settings
	registry *templates.Registry
}

// Compile-time interface checks
var (
	_ render.Host      = (*Host)(nil)
	_ dispatch.Handler = (*Host)(nil)
)

// New builds a host over store. Nothing is loaded until the first event or Refresh.
func New(store chat.Store, sched dispatch.Scheduler, t config.TrackerConfig) (*Host, error) {
	s, reg, err := SettingsFrom(t)
	if err != nil {
		return nil, err
	}
	h := &Host{
		store:    store,
		page:     page.New(),
		md:       newMarkdown(),
		tracker:  t,
		settings: s,
		registry: reg,
	}
	h.pipeline = render.NewPipeline(h, h.page, sched, render.NewSessionState(), func() render.Settings { return h.settings })
	return h, nil
}

// Messages returns the transcript as last loaded.
func (h *Host) Messages() []chat.Message {
	return h.messages
}

// FormatMessage renders message markdown to HTML.
func (h *Host) FormatMessage(text, author string, isSystem, isUser bool, id int) string {
	return formatMarkdown(h.md, text, id)
}

// Page is the rendered chat page.
func (h *Host) Page() *page.Page {
	return h.page
}

// HTML serializes the page.
func (h *Host) HTML() (string, error) {
	return h.page.HTML()
}

// Session exposes the render session, shared with the generator.
func (h *Host) Session() *render.SessionState {
	return h.pipeline.Session()
}

// Store is the transcript backend.
func (h *Host) Store() chat.Store {
	return h.store
}

// Tracker returns the settings the host renders with.
func (h *Host) Tracker() config.TrackerConfig {
	return h.tracker
}

// Registry is the inline template registry of the current settings.
func (h *Host) Registry() *templates.Registry {
	return h.registry
}

// Reload reads the transcript and drops nodes of messages that no longer exist.
func (h *Host) Reload(ctx context.Context) error {
	msgs, err := h.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load transcript: %w", err)
	}
	h.messages = msgs
	h.page.Truncate(len(msgs))
	return nil
}

// HandleEvent reacts to a host notification.
func (h *Host) HandleEvent(ev dispatch.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	if ev.Kind == dispatch.Refresh {
		if err := h.Refresh(ctx); err != nil {
			slog.Error("refresh failed", "component", "render", "error", err)
		}
		return
	}

	if err := h.Reload(ctx); err != nil {
		slog.Error("reload failed",
			"component", "render",
			"message_id", ev.MessageID,
			"error", err,
		)
		return
	}
	if err := h.render(ev.MessageID, ev.Kind == dispatch.MessageFinished); err != nil {
		slog.Debug("event for unknown message",
			"component", "render",
			"message_id", ev.MessageID,
			"kind", ev.Kind.String(),
		)
	}
}

// RenderMessage reloads and renders one finished message.
func (h *Host) RenderMessage(ctx context.Context, id int) error {
	if err := h.Reload(ctx); err != nil {
		return err
	}
	return h.render(id, true)
}

func (h *Host) render(id int, finished bool) error {
	m, ok := chat.Find(h.messages, id)
	if !ok {
		return fmt.Errorf("%w: %d", chat.ErrMessageNotFound, id)
	}
	if err := h.syncNode(m); err != nil {
		return err
	}
	h.pipeline.RenderForMessage(id)
	h.processMacros(id, finished)
	return nil
}

// Refresh reloads the transcript, re-renders every message node and runs a
// full render pass.
func (h *Host) Refresh(ctx context.Context) error {
	if err := h.Reload(ctx); err != nil {
		return err
	}
	for _, m := range h.messages {
		if err := h.syncNode(m); err != nil {
			return err
		}
	}
	h.pipeline.RenderAllVisible()
	for _, m := range h.messages {
		h.processMacros(m.ID, true)
	}
	return nil
}

// UpdateSettings swaps in new tracker settings and refreshes everything.
// The old settings stay in place when the new ones cannot be loaded.
func (h *Host) UpdateSettings(ctx context.Context, t config.TrackerConfig) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s, reg, err := SettingsFrom(t)
	if err != nil {
		return err
	}
	h.tracker = t
	h.settings = s
	h.registry = reg
	slog.Info("tracker settings updated",
		"component", "render",
		"position", t.Position,
		"enabled", t.Enabled,
	)
	return h.Refresh(ctx)
}

// ClickTab activates a sidebar tab as a user click would.
func (h *Host) ClickTab(side string, index int) error {
	sd, err := sidebar.ParseSide(side)
	if err != nil {
		return err
	}
	return h.pipeline.Sidebars().Click(sd, index)
}

// Sidebars exposes the sidebar manager for inspection.
func (h *Host) Sidebars() *sidebar.Manager {
	return h.pipeline.Sidebars()
}

func (h *Host) syncNode(m chat.Message) error {
	return h.page.SyncMessage(page.Node{
		ID:        m.ID,
		Author:    m.Author,
		IsUser:    m.IsUser,
		IsSystem:  m.IsSystem,
		Content:   h.FormatMessage(render.PrepareText(h.settings, m.Text), m.Author, m.IsSystem, m.IsUser, m.ID),
		Reasoning: m.Reasoning,
	})
}

// processMacros hides markers still streaming in, or resolves all of them
// once the message is finished.
func (h *Host) processMacros(id int, finished bool) {
	content := h.page.Content(id)
	if content.Length() == 0 {
		return
	}
	if finished {
		macro.UnhideAndProcess(content, h.registry)
		return
	}
	macro.HidePartialMarkers(content)
	macro.ProcessComplete(content, h.registry)
}
