package sidebar

import "github.com/PuerkitoBio/goquery"

// State is the lifecycle of one tab/card pair:
// Hidden -> SlidingIn -> Active -> SlidingOut -> Hidden.
type State int

const (
	Hidden State = iota
	SlidingIn
	Active
	SlidingOut
)

// CSS classes carrying each state. Hidden is the absence of all three.
const (
	ClassActive     = "active"
	ClassSlidingIn  = "sliding-in"
	ClassSlidingOut = "sliding-out"
	ClassInactive   = "inactive"
)

var stateClasses = []string{ClassActive, ClassSlidingIn, ClassSlidingOut}

func (s State) String() string {
	switch s {
	case SlidingIn:
		return "sliding-in"
	case Active:
		return "active"
	case SlidingOut:
		return "sliding-out"
	default:
		return "hidden"
	}
}

// Class returns the class implied by s, empty for Hidden.
func (s State) Class() string {
	switch s {
	case SlidingIn:
		return ClassSlidingIn
	case Active:
		return ClassActive
	case SlidingOut:
		return ClassSlidingOut
	default:
		return ""
	}
}

// Animating reports whether s is mid-transition.
func (s State) Animating() bool {
	return s == SlidingIn || s == SlidingOut
}

// Current reports whether s is the pair being shown or about to be shown.
func (s State) Current() bool {
	return s == Active || s == SlidingIn
}

// StateOf reads the state of an element from its classes. Animation classes
// win over active; an empty selection is Hidden.
func StateOf(s *goquery.Selection) State {
	switch {
	case s.Length() == 0:
		return Hidden
	case s.HasClass(ClassSlidingOut):
		return SlidingOut
	case s.HasClass(ClassSlidingIn):
		return SlidingIn
	case s.HasClass(ClassActive):
		return Active
	default:
		return Hidden
	}
}

// Sync computes the one state a card and its tab share: an in-flight
// animation on either side is preserved, otherwise either being active makes
// both active, otherwise both are hidden.
func Sync(card, tab State) State {
	switch {
	case card.Animating():
		return card
	case tab.Animating():
		return tab
	case card == Active || tab == Active:
		return Active
	default:
		return Hidden
	}
}

// Reconcile returns the state a pair keeps across a re-render: its old state
// when the new content still has the pair, Hidden otherwise.
func Reconcile(old State, present bool) State {
	if !present {
		return Hidden
	}
	return old
}

// Activate starts showing a pair.
func Activate(s State) State {
	if s == Hidden || s == SlidingOut {
		return SlidingIn
	}
	return s
}

// Deactivate starts hiding a pair.
func Deactivate(s State) State {
	if s == Active || s == SlidingIn {
		return SlidingOut
	}
	return s
}

// Settle finishes an in-flight transition.
func Settle(s State) State {
	switch s {
	case SlidingIn:
		return Active
	case SlidingOut:
		return Hidden
	default:
		return s
	}
}
