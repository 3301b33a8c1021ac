// Package render turns tracker blocks in chat messages into mounted cards.
//
// A Pipeline is driven by the single dispatcher goroutine. Every entry point
// resolves one settings snapshot and one position for the whole pass, and
// recovers from failures so other messages keep rendering.
package render

import (
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/hyperengineering/simtracker/internal/chat"
	"github.com/hyperengineering/simtracker/internal/dispatch"
	"github.com/hyperengineering/simtracker/internal/page"
	"github.com/hyperengineering/simtracker/internal/position"
	"github.com/hyperengineering/simtracker/internal/sidebar"
	"github.com/hyperengineering/simtracker/internal/tracker"
)

// Host is what the pipeline needs from the chat application.
type Host interface {
	Messages() []chat.Message
	FormatMessage(text, author string, isSystem, isUser bool, id int) string
}

// Pipeline renders tracker data into a page.
type Pipeline struct {
	host     Host
	page     *page.Page
	sched    dispatch.Scheduler
	session  *SessionState
	settings func() Settings
}

// NewPipeline wires a pipeline. settings is called once per entry point call.
func NewPipeline(h Host, p *page.Page, sched dispatch.Scheduler, session *SessionState, settings func() Settings) *Pipeline {
	if session == nil {
		session = NewSessionState()
	}
	if settings == nil {
		settings = DefaultSettings
	}
	return &Pipeline{host: h, page: p, sched: sched, session: session, settings: settings}
}

// Session exposes the pipeline's session state.
func (p *Pipeline) Session() *SessionState {
	return p.session
}

// Sidebars returns a manager over the session's sidebar state.
func (p *Pipeline) Sidebars() *sidebar.Manager {
	return p.sidebars(p.settings())
}

func (p *Pipeline) sidebars(s Settings) *sidebar.Manager {
	return sidebar.NewManager(p.page, p.sched, p.session.Sidebars, s.Sidebar)
}

// pass is the state fixed for one entry point call.
type pass struct {
	settings Settings
	position position.Position
	messages []chat.Message
	sidebars *sidebar.Manager
}

func (p *Pipeline) begin() *pass {
	s := p.settings().withDefaults()
	ps := &pass{
		settings: s,
		position: s.ResolvePosition(),
		messages: p.host.Messages(),
		sidebars: p.sidebars(s),
	}
	p.switchPosition(ps)
	return ps
}

// switchPosition tears down sidebars that the new position no longer uses.
func (p *Pipeline) switchPosition(ps *pass) {
	prev := p.session.position
	if prev == ps.position {
		return
	}
	for _, side := range sidebar.Sides {
		if sideOf(ps.position) != side {
			ps.sidebars.Teardown(side)
		}
	}
	if prev != "" {
		slog.Info("tracker position changed",
			"component", "render",
			"from", string(prev),
			"to", string(ps.position),
		)
	}
	p.session.position = ps.position
	p.session.lastMounted = -1
}

// RenderForMessage renders the tracker of one message. It never panics and
// never returns an error; failures are logged.
func (p *Pipeline) RenderForMessage(id int) {
	defer p.recover("render message", id)
	ps := p.begin()
	if err := p.renderMessage(ps, id); err != nil {
		slog.Error("render failed",
			"component", "render",
			"message_id", id,
			"error", err,
		)
	}
}

// RenderAllVisible re-renders after a settings change or chat switch.
// Exclusive positions render only the most recent tracker message; MACRO
// renders every message.
func (p *Pipeline) RenderAllVisible() {
	defer p.recover("render all", -1)
	ps := p.begin()
	if !ps.settings.Enabled {
		p.removeContainers(-1)
		for _, side := range sidebar.Sides {
			ps.sidebars.Teardown(side)
		}
		p.session.lastMounted = -1
		return
	}

	if !ps.position.IsExclusive() {
		for _, side := range sidebar.Sides {
			ps.sidebars.Teardown(side)
		}
		for _, m := range ps.messages {
			if err := p.renderMessage(ps, m.ID); err != nil {
				slog.Error("render failed", "component", "render", "message_id", m.ID, "error", err)
			}
		}
		return
	}

	latest := LatestTrackerMessage(ps.messages, ps.settings.Identifier)
	p.removeContainers(latest)
	if latest < 0 {
		if side := sideOf(ps.position); side != "" {
			ps.sidebars.Teardown(side)
		}
		p.session.lastMounted = -1
		return
	}
	if err := p.renderMessage(ps, latest); err != nil {
		slog.Error("render failed", "component", "render", "message_id", latest, "error", err)
	}
}

func (p *Pipeline) recover(op string, id int) {
	if r := recover(); r != nil {
		slog.Error("render panic recovered",
			"component", "render",
			"op", op,
			"message_id", id,
			"panic", fmt.Sprint(r),
		)
	}
}

// LatestTrackerMessage scans backward for the highest message id carrying a
// complete tracker block, or -1.
func LatestTrackerMessage(msgs []chat.Message, identifier string) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if tracker.HasBlock(msgs[i].Text, identifier) {
			return msgs[i].ID
		}
	}
	return -1
}

func (p *Pipeline) renderMessage(ps *pass, id int) error {
	s := ps.settings

	// Eligibility
	if !s.Enabled {
		return nil
	}
	msg, ok := chat.Find(ps.messages, id)
	if !ok {
		return nil
	}

	// Most-recent gate
	if ps.position.IsExclusive() {
		if latest := LatestTrackerMessage(ps.messages, s.Identifier); latest != id {
			if id == p.session.lastMounted {
				// The owner of the display lost its tracker; the next most
				// recent one takes over.
				return p.handOver(ps, id, latest)
			}
			slog.Debug("not the most recent tracker message",
				"component", "render",
				"message_id", id,
				"latest", latest,
			)
			return nil
		}
	}

	// Stale-mount cleanup
	if ps.position.IsExclusive() {
		p.removeContainers(id)
	}

	// Content formatting
	mes := p.page.Message(id)
	mes.Find("." + ContainerClass).Remove()
	mes.Find("." + ErrorClass).Remove()
	formatted := p.host.FormatMessage(PrepareText(s, msg.Text), msg.Author, msg.IsSystem, msg.IsUser, msg.ID)
	if err := p.page.SyncMessage(page.Node{
		ID:        msg.ID,
		Author:    msg.Author,
		IsUser:    msg.IsUser,
		IsSystem:  msg.IsSystem,
		Content:   formatted,
		Reasoning: msg.Reasoning,
	}); err != nil {
		return fmt.Errorf("sync message %d: %w", id, err)
	}

	// Extraction
	block, err := tracker.Extract(msg.Text, s.Identifier)
	if errors.Is(err, tracker.ErrNotFound) {
		return nil
	}
	rec, err := tracker.ParseRecord(block.Payload)
	if err != nil {
		slog.Warn("tracker block did not parse",
			"component", "render",
			"message_id", id,
			"error", err,
		)
		p.showParseError(id, err)
		p.clearExclusive(ps, id)
		return nil
	}
	if len(rec.Characters) == 0 {
		p.clearExclusive(ps, id)
		return nil
	}

	// Template invocation
	out, err := p.invoke(s, rec)
	if err != nil {
		return err
	}

	// Mount
	if err := p.mount(ps, id, out); err != nil {
		return err
	}
	if ps.position.IsExclusive() {
		p.session.lastMounted = id
	}
	return nil
}

// handOver moves the exclusive display from id, which no longer carries the
// most recent tracker, to latest. With no tracker left it is torn down.
func (p *Pipeline) handOver(ps *pass, id, latest int) error {
	slog.Debug("tracker display handed over",
		"component", "render",
		"from", id,
		"to", latest,
	)
	p.session.lastMounted = -1
	if latest < 0 {
		p.removeContainers(-1)
		if side := sideOf(ps.position); side != "" {
			ps.sidebars.Teardown(side)
		}
		return nil
	}
	return p.renderMessage(ps, latest)
}

// clearExclusive drops mounted data of older messages when the most recent
// tracker message has nothing to show. id keeps ownership of the display.
func (p *Pipeline) clearExclusive(ps *pass, id int) {
	if !ps.position.IsExclusive() {
		return
	}
	if side := sideOf(ps.position); side != "" {
		ps.sidebars.Teardown(side)
	}
	p.session.lastMounted = id
}

func (p *Pipeline) invoke(s Settings, rec tracker.Record) (string, error) {
	tpl := s.Template
	if tpl.Tabbed {
		return tpl.Main.Render(TabbedContext(s, rec))
	}
	var b strings.Builder
	for _, c := range rec.Characters {
		frag, err := tpl.Main.Render(ViewModel(s, rec, c))
		if err != nil {
			return "", fmt.Errorf("character %s: %w", c.Name, err)
		}
		b.WriteString(frag)
	}
	return b.String(), nil
}

func (p *Pipeline) mount(ps *pass, id int, out string) error {
	pos := ps.position
	if side := sideOf(pos); side != "" {
		return ps.sidebars.Mount(side, out)
	}

	container := fmt.Sprintf(`<div class="%s" data-mesid="%d" data-position="%s">%s</div>`, ContainerClass, id, pos, out)
	content := p.page.Content(id)
	switch pos {
	case position.Top:
		if r := p.page.Reasoning(id); r.Length() > 0 {
			r.BeforeHtml(container)
		} else {
			content.PrependHtml(container)
		}
	case position.Bottom:
		content.AppendHtml(container)
	case position.Macro:
		ph := content.Find("." + MacroPlaceholderClass).First()
		if ph.Length() == 0 {
			slog.Debug("no macro placeholder", "component", "render", "message_id", id)
			return nil
		}
		ph.ReplaceWithHtml(container)
	}
	return nil
}

// removeContainers removes inline containers of every message except keep.
func (p *Pipeline) removeContainers(keep int) {
	p.page.Find("." + ContainerClass).Each(func(_ int, s *goquery.Selection) {
		if keep >= 0 {
			if v, _ := s.Attr("data-mesid"); v == strconv.Itoa(keep) {
				return
			}
		}
		s.Remove()
	})
}

// showParseError appends a visible error next to the message content.
func (p *Pipeline) showParseError(id int, err error) {
	detail := err.Error()
	var pe *tracker.ParseError
	if errors.As(err, &pe) {
		detail = pe.Payload
	}
	p.page.Content(id).AfterHtml(fmt.Sprintf(
		`<div class="%s" data-mesid="%d"><strong>Tracker data could not be parsed.</strong><pre>%s</pre></div>`,
		ErrorClass, id, html.EscapeString(detail)))
}

func sideOf(pos position.Position) sidebar.Side {
	switch pos {
	case position.Left:
		return sidebar.Left
	case position.Right:
		return sidebar.Right
	default:
		return ""
	}
}
