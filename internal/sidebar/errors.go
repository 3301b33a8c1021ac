package sidebar

import "errors"

var (
	// ErrHostUnavailable indicates the chat scroll container never appeared.
	ErrHostUnavailable = errors.New("sidebar anchor not present")

	// ErrUnknownSide indicates a side other than left or right.
	ErrUnknownSide = errors.New("unknown sidebar side")

	// ErrTabOutOfRange indicates a click on a tab index the sidebar does not have.
	ErrTabOutOfRange = errors.New("tab index out of range")
)
