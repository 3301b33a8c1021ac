package templates

import "errors"

var (
	// ErrTemplate indicates a template failed to compile or execute.
	ErrTemplate = errors.New("template error")

	// ErrUnknownBuiltin indicates a built-in template name that is not embedded.
	ErrUnknownBuiltin = errors.New("unknown built-in template")

	// ErrUnsupportedFile indicates a template file extension that cannot be loaded.
	ErrUnsupportedFile = errors.New("unsupported template file")
)
