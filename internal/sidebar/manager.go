// Package sidebar owns the two page-level tracker containers.
package sidebar

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hyperengineering/simtracker/internal/dispatch"
	"github.com/hyperengineering/simtracker/internal/page"
	"golang.org/x/net/html"
)

// Side is one of the two sidebar anchors.
type Side string

const (
	Left  Side = "left"
	Right Side = "right"
)

// Sides lists both sidebars.
var Sides = []Side{Left, Right}

// ParseSide accepts "left" or "right" in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case Left:
		return Left, nil
	case Right:
		return Right, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSide, s)
	}
}

// Selectors and timings of the sidebar markup.
const (
	TabSelector     = ".sim-tracker-tab"
	CardSelector    = ".sim-tracker-card"
	contentSelector = ".sim-tracker-sidebar-content"

	SlideOutDuration = 300 * time.Millisecond
	SlideInDelay     = 10 * time.Millisecond
)

// ContainerID returns the DOM id of a side's container.
func ContainerID(side Side) string {
	return "sim-tracker-sidebar-" + string(side)
}

// Options tune anchor retries.
type Options struct {
	RetryDelay    time.Duration
	RetryAttempts int
}

// DefaultOptions are used when a zero Options is passed.
var DefaultOptions = Options{RetryDelay: 100 * time.Millisecond, RetryAttempts: 10}

type mount struct {
	wired          bool
	epoch          int
	pending        string
	hasPending     bool
	retries        int
	retryScheduled bool
}

// Mounts is the per-session sidebar bookkeeping. It is owned by the render
// session and handed to the Manager by reference.
type Mounts struct {
	mounts map[Side]*mount
	epoch  int
}

// NewMounts returns empty sidebar bookkeeping.
func NewMounts() *Mounts {
	return &Mounts{mounts: make(map[Side]*mount)}
}

func (st *Mounts) get(side Side) *mount {
	m, ok := st.mounts[side]
	if !ok {
		m = &mount{}
		st.mounts[side] = m
	}
	return m
}

// Manager mounts rendered tracker HTML into the sidebars. Calls for one side
// must be sequential; the dispatcher guarantees that.
type Manager struct {
	page  *page.Page
	sched dispatch.Scheduler
	state *Mounts
	opts  Options
}

// NewManager binds a manager to a page, a scheduler and session-owned state.
func NewManager(p *page.Page, sched dispatch.Scheduler, st *Mounts, opts Options) *Manager {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultOptions.RetryDelay
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = DefaultOptions.RetryAttempts
	}
	return &Manager{page: p, sched: sched, state: st, opts: opts}
}

func (m *Manager) container(side Side) *goquery.Selection {
	return m.page.Find("#" + ContainerID(side)).First()
}

// Exists reports whether a side's container is in the page.
func (m *Manager) Exists(side Side) bool {
	return m.container(side).Length() > 0
}

// Content returns the inner content node of a side, possibly empty.
func (m *Manager) Content(side Side) *goquery.Selection {
	return m.container(side).Find(contentSelector).First()
}

// Mount shows html in a side's container, creating it on first use and
// patching it in place afterwards.
func (m *Manager) Mount(side Side, markup string) error {
	x, y := m.page.Scroll()
	defer m.page.ScrollTo(x, y)

	st := m.state.get(side)
	c := m.container(side)
	if c.Length() == 0 {
		return m.create(side, st, markup)
	}
	return m.update(side, st, c.Find(contentSelector).First(), markup)
}

func (m *Manager) create(side Side, st *mount, markup string) error {
	anchor := m.page.Chat()
	if anchor.Length() == 0 {
		return m.retryLater(side, st, markup)
	}

	edge := "left: 0;"
	if side == Right {
		edge = "right: 0;"
	}
	anchor.BeforeHtml(fmt.Sprintf(
		`<div id="%s" class="sim-tracker-sidebar sim-tracker-sidebar-%s" data-side="%s" style="position: fixed; top: 0; %s height: 100vh; overflow-y: auto;"><div class="sim-tracker-sidebar-content"></div></div>`,
		ContainerID(side), side, side, edge))
	m.Content(side).SetHtml(markup)

	st.retries = 0
	st.hasPending = false
	m.state.epoch++
	st.epoch = m.state.epoch
	m.wire(side, st)

	slog.Debug("sidebar created", "component", "sidebar", "side", side)
	return nil
}

// retryLater keeps the latest markup and tries again after a delay, a bounded
// number of times.
func (m *Manager) retryLater(side Side, st *mount, markup string) error {
	st.pending = markup
	st.hasPending = true
	if st.retryScheduled {
		return nil
	}
	if st.retries >= m.opts.RetryAttempts {
		st.hasPending = false
		slog.Error("sidebar anchor never appeared",
			"component", "sidebar",
			"side", side,
			"attempts", st.retries,
		)
		return fmt.Errorf("%w: gave up after %d attempts", ErrHostUnavailable, st.retries)
	}

	st.retryScheduled = true
	slog.Warn("sidebar anchor missing, retrying",
		"component", "sidebar",
		"side", side,
		"attempt", st.retries+1,
		"delay", m.opts.RetryDelay.String(),
	)
	m.sched.AfterFunc(m.opts.RetryDelay, func() {
		st.retryScheduled = false
		st.retries++
		if !st.hasPending {
			return
		}
		if err := m.Mount(side, st.pending); err != nil {
			slog.Error("sidebar mount retry failed", "component", "sidebar", "side", side, "error", err)
		}
	})
	return nil
}

// wire sets the initial tab state: the first non-inactive pair is active,
// all others hidden.
func (m *Manager) wire(side Side, st *mount) {
	content := m.Content(side)
	tabs := content.Find(TabSelector)
	cards := content.Find(CardSelector)
	if tabs.Length() == 0 {
		st.wired = false
		return
	}

	first := -1
	n := pairCount(tabs, cards)
	for i := 0; i < n; i++ {
		if first < 0 && !isInactive(cards.Eq(i), tabs.Eq(i)) {
			first = i
		}
	}
	for i := 0; i < n; i++ {
		s := Hidden
		if i == first {
			s = Active
		}
		setState(cards.Eq(i), s)
		setState(tabs.Eq(i), s)
	}
	st.wired = true
}

// update patches the existing mount rather than replacing it, so in-flight
// transitions and the selected tab survive re-renders. A different number of
// tabs or cards falls back to a full rebuild.
func (m *Manager) update(side Side, st *mount, content *goquery.Selection, markup string) error {
	frag, err := page.Fragment(markup)
	if err != nil {
		return err
	}

	oldTabs, oldCards := content.Find(TabSelector), content.Find(CardSelector)
	newTabs, newCards := frag.Find(TabSelector), frag.Find(CardSelector)

	if oldTabs.Length() != newTabs.Length() || oldCards.Length() != newCards.Length() {
		slog.Debug("sidebar structure changed, rebuilding",
			"component", "sidebar",
			"side", side,
			"old_cards", oldCards.Length(),
			"new_cards", newCards.Length(),
		)
		content.SetHtml(markup)
		m.state.epoch++
		st.epoch = m.state.epoch
		m.wire(side, st)
		return nil
	}

	if newTabs.Length() == 0 && newCards.Length() == 0 {
		content.SetHtml(markup)
		return nil
	}

	n := pairCount(newTabs, newCards)
	for i := 0; i < n; i++ {
		s := Hidden
		if st.wired {
			s = Reconcile(Sync(StateOf(oldCards.Eq(i)), StateOf(oldTabs.Eq(i))), true)
		}
		patch(oldCards.Eq(i), newCards.Eq(i), s, st.wired)
		patch(oldTabs.Eq(i), newTabs.Eq(i), s, st.wired)
	}
	if st.wired {
		m.ensureOneCurrent(side)
	}
	return nil
}

// ensureOneCurrent keeps exactly one pair active or activating whenever a
// non-inactive pair exists.
func (m *Manager) ensureOneCurrent(side Side) {
	content := m.Content(side)
	tabs, cards := content.Find(TabSelector), content.Find(CardSelector)
	n := pairCount(tabs, cards)

	current := -1
	for i := 0; i < n; i++ {
		if !pairState(cards.Eq(i), tabs.Eq(i)).Current() {
			continue
		}
		if current < 0 {
			current = i
			continue
		}
		setState(cards.Eq(i), Hidden)
		setState(tabs.Eq(i), Hidden)
	}
	if current >= 0 {
		return
	}
	for i := 0; i < n; i++ {
		if !isInactive(cards.Eq(i), tabs.Eq(i)) {
			if pairState(cards.Eq(i), tabs.Eq(i)) == SlidingOut {
				continue
			}
			setState(cards.Eq(i), Active)
			setState(tabs.Eq(i), Active)
			return
		}
	}
}

// Click handles a tab click: the current pair slides out and the clicked pair
// slides in. Clicking the current tab changes nothing.
func (m *Manager) Click(side Side, index int) error {
	st := m.state.get(side)
	if !st.wired || !m.Exists(side) {
		return nil
	}

	x, y := m.page.Scroll()
	defer m.page.ScrollTo(x, y)

	content := m.Content(side)
	tabs, cards := content.Find(TabSelector), content.Find(CardSelector)
	n := pairCount(tabs, cards)
	if index < 0 || index >= n {
		return fmt.Errorf("%w: %d of %d", ErrTabOutOfRange, index, n)
	}

	current := -1
	for i := 0; i < n; i++ {
		if pairState(cards.Eq(i), tabs.Eq(i)).Current() {
			current = i
			break
		}
	}
	if current == index {
		return nil
	}

	epoch := st.epoch
	if current >= 0 {
		out := Deactivate(pairState(cards.Eq(current), tabs.Eq(current)))
		setState(cards.Eq(current), out)
		setState(tabs.Eq(current), out)
		m.settleLater(side, st, epoch, current, SlidingOut, SlideOutDuration)
	}

	in := Activate(pairState(cards.Eq(index), tabs.Eq(index)))
	setState(cards.Eq(index), in)
	setState(tabs.Eq(index), in)
	m.settleLater(side, st, epoch, index, SlidingIn, SlideInDelay)
	return nil
}

// settleLater finishes a transition if the pair is still in it and the mount
// was not rebuilt in the meantime.
func (m *Manager) settleLater(side Side, st *mount, epoch, index int, from State, delay time.Duration) {
	m.sched.AfterFunc(delay, func() {
		if st.epoch != epoch || !m.Exists(side) {
			return
		}
		x, y := m.page.Scroll()
		defer m.page.ScrollTo(x, y)

		content := m.Content(side)
		tabs, cards := content.Find(TabSelector), content.Find(CardSelector)
		if index >= pairCount(tabs, cards) {
			return
		}
		if pairState(cards.Eq(index), tabs.Eq(index)) != from {
			return
		}
		to := Settle(from)
		setState(cards.Eq(index), to)
		setState(tabs.Eq(index), to)
	})
}

// Teardown removes a side's container and forgets its listeners. It is a
// no-op for a side that was never created.
func (m *Manager) Teardown(side Side) {
	st := m.state.get(side)
	st.wired = false
	st.hasPending = false
	m.state.epoch++
	st.epoch = m.state.epoch

	c := m.container(side)
	if c.Length() == 0 {
		return
	}
	x, y := m.page.Scroll()
	c.Remove()
	m.page.ScrollTo(x, y)
	slog.Debug("sidebar removed", "component", "sidebar", "side", side)
}

// PairStates returns the synchronized state of every pair of a side.
func (m *Manager) PairStates(side Side) []State {
	content := m.Content(side)
	tabs, cards := content.Find(TabSelector), content.Find(CardSelector)
	n := pairCount(tabs, cards)
	out := make([]State, n)
	for i := range out {
		out[i] = pairState(cards.Eq(i), tabs.Eq(i))
	}
	return out
}

// ActiveIndex returns the index of the active pair, or -1.
func (m *Manager) ActiveIndex(side Side) int {
	for i, s := range m.PairStates(side) {
		if s == Active {
			return i
		}
	}
	return -1
}

func pairCount(tabs, cards *goquery.Selection) int {
	if tabs.Length() > cards.Length() {
		return tabs.Length()
	}
	return cards.Length()
}

func pairState(card, tab *goquery.Selection) State {
	return Sync(StateOf(card), StateOf(tab))
}

func isInactive(card, tab *goquery.Selection) bool {
	return card.HasClass(ClassInactive) || tab.HasClass(ClassInactive)
}

func setState(s *goquery.Selection, st State) {
	if s.Length() == 0 {
		return
	}
	for _, c := range stateClasses {
		s.RemoveClass(c)
	}
	if c := st.Class(); c != "" {
		s.AddClass(c)
	}
}

// patch copies children and non-class attributes from next into cur and sets
// cur's classes to next's classes plus the state class.
func patch(cur, next *goquery.Selection, st State, stateful bool) {
	if cur.Length() == 0 || next.Length() == 0 {
		return
	}
	inner, err := next.Html()
	if err != nil {
		return
	}
	cur.SetHtml(inner)

	curNode, nextNode := cur.Get(0), next.Get(0)
	attrs := make([]html.Attribute, 0, len(nextNode.Attr)+1)
	var classes []string
	for _, a := range nextNode.Attr {
		if a.Key == "class" {
			classes = strings.Fields(a.Val)
			continue
		}
		attrs = append(attrs, a)
	}
	if stateful {
		kept := classes[:0]
		for _, c := range classes {
			if c != ClassActive && c != ClassSlidingIn && c != ClassSlidingOut {
				kept = append(kept, c)
			}
		}
		classes = kept
		if c := st.Class(); c != "" {
			classes = append(classes, c)
		}
	}
	if len(classes) > 0 {
		attrs = append(attrs, html.Attribute{Key: "class", Val: strings.Join(classes, " ")})
	}
	curNode.Attr = attrs
}
