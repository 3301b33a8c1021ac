package api

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/simtracker/internal/chat"
	"github.com/hyperengineering/simtracker/internal/config"
	"github.com/hyperengineering/simtracker/internal/dispatch"
	"github.com/hyperengineering/simtracker/internal/generate"
	"github.com/hyperengineering/simtracker/internal/sidebar"
	"github.com/hyperengineering/simtracker/internal/store"
	"github.com/hyperengineering/simtracker/internal/templates"
	"github.com/hyperengineering/simtracker/internal/tracker"
	"github.com/hyperengineering/simtracker/internal/validation"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

type problemType struct {
	typeURI string
	title   string
}

// problemTypes maps HTTP status codes to RFC 7807 type URIs and titles.
var problemTypes = map[int]problemType{
	http.StatusBadRequest: {
		typeURI: "https://simtracker.dev/errors/bad-request",
		title:   "Bad Request",
	},
	http.StatusNotFound: {
		typeURI: "https://simtracker.dev/errors/not-found",
		title:   "Not Found",
	},
	http.StatusConflict: {
		typeURI: "https://simtracker.dev/errors/conflict",
		title:   "Conflict",
	},
	http.StatusUnprocessableEntity: {
		typeURI: "https://simtracker.dev/errors/validation-error",
		title:   "Validation Error",
	},
	http.StatusInternalServerError: {
		typeURI: "https://simtracker.dev/errors/internal-error",
		title:   "Internal Server Error",
	},
	http.StatusBadGateway: {
		typeURI: "https://simtracker.dev/errors/bad-gateway",
		title:   "Bad Gateway",
	},
	http.StatusServiceUnavailable: {
		typeURI: "https://simtracker.dev/errors/service-unavailable",
		title:   "Service Unavailable",
	},
}

// WriteProblem writes an RFC 7807 Problem Details response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	pt, ok := problemTypes[status]
	if !ok {
		pt = problemType{
			typeURI: "https://simtracker.dev/errors/unknown",
			title:   http.StatusText(status),
		}
	}

	p := Problem{
		Type:     pt.typeURI,
		Title:    pt.title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Error("failed to encode problem response", "component", "api", "error", err)
	}
}

// ProblemWithErrors extends Problem with validation error details.
type ProblemWithErrors struct {
	Problem
	Errors []validation.ValidationError `json:"errors,omitempty"`
}

// WriteProblemWithErrors writes a 422 Problem Details response with field errors.
func WriteProblemWithErrors(w http.ResponseWriter, r *http.Request, detail string, errs []validation.ValidationError) {
	pt := problemTypes[http.StatusUnprocessableEntity]

	p := ProblemWithErrors{
		Problem: Problem{
			Type:     pt.typeURI,
			Title:    pt.title,
			Status:   http.StatusUnprocessableEntity,
			Detail:   detail,
			Instance: r.URL.Path,
		},
		Errors: errs,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Error("failed to encode problem response", "component", "api", "error", err)
	}
}

// MapError converts domain errors to Problem Details responses.
func MapError(w http.ResponseWriter, r *http.Request, err error) {
	var fieldErrs validation.Errors
	switch {
	case errors.As(err, &fieldErrs):
		WriteProblemWithErrors(w, r, "Settings contain invalid fields", fieldErrs)
	case errors.Is(err, chat.ErrMessageNotFound), errors.Is(err, store.ErrChatNotFound):
		WriteProblem(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, sidebar.ErrUnknownSide), errors.Is(err, tracker.ErrUnknownFormat):
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, sidebar.ErrTabOutOfRange):
		WriteProblem(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, config.ErrInvalidTracker),
		errors.Is(err, templates.ErrUnsupportedFile),
		errors.Is(err, templates.ErrUnknownBuiltin),
		errors.Is(err, fs.ErrNotExist):
		WriteProblem(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, generate.ErrGenerationInProgress):
		WriteProblem(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, generate.ErrInvalidResponse), errors.Is(err, generate.ErrEmptyResponse):
		WriteProblem(w, r, http.StatusBadGateway, err.Error())
	case errors.Is(err, dispatch.ErrStopped):
		WriteProblem(w, r, http.StatusServiceUnavailable, "Renderer is shutting down")
	default:
		// Never expose internal error details to client
		slog.Error("request failed", "component", "api", "path", r.URL.Path, "error", err)
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}
