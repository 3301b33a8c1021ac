package generate

import "errors"

var (
	// ErrGenerationInProgress indicates another regeneration holds the session slot.
	ErrGenerationInProgress = errors.New("tracker generation already in progress")

	// ErrInvalidResponse indicates the model reply carried no usable tracker data.
	ErrInvalidResponse = errors.New("model response is not valid tracker data")

	// ErrEmptyResponse indicates the model returned no content.
	ErrEmptyResponse = errors.New("model returned an empty response")
)
