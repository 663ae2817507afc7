package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/studypal/studypal/internal/backup"
	"github.com/studypal/studypal/internal/remote"
	"github.com/studypal/studypal/internal/store"
	syncengine "github.com/studypal/studypal/internal/sync"
	"github.com/studypal/studypal/internal/validation"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// problemTypes maps HTTP status codes to RFC 7807 type URIs and titles.
var problemTypes = map[int]struct {
	typeURI string
	title   string
}{
	http.StatusUnauthorized: {
		typeURI: "https://studypal.app/errors/unauthorized",
		title:   "Unauthorized",
	},
	http.StatusBadRequest: {
		typeURI: "https://studypal.app/errors/bad-request",
		title:   "Bad Request",
	},
	http.StatusNotFound: {
		typeURI: "https://studypal.app/errors/not-found",
		title:   "Not Found",
	},
	http.StatusInternalServerError: {
		typeURI: "https://studypal.app/errors/internal-error",
		title:   "Internal Server Error",
	},
	http.StatusUnprocessableEntity: {
		typeURI: "https://studypal.app/errors/validation-error",
		title:   "Validation Error",
	},
	http.StatusServiceUnavailable: {
		typeURI: "https://studypal.app/errors/service-unavailable",
		title:   "Service Unavailable",
	},
	http.StatusConflict: {
		typeURI: "https://studypal.app/errors/conflict",
		title:   "Conflict",
	},
	http.StatusBadGateway: {
		typeURI: "https://studypal.app/errors/remote-error",
		title:   "Remote Store Error",
	},
}

// WriteProblem writes an RFC 7807 Problem Details response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	pt, ok := problemTypes[status]
	if !ok {
		pt = struct {
			typeURI string
			title   string
		}{
			typeURI: "https://studypal.app/errors/unknown",
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
		slog.Error("failed to encode problem response", "error", err)
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
		slog.Error("failed to encode problem response", "error", err)
	}
}

// MapDomainError converts domain errors to Problem Details responses.
func MapDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteProblem(w, r, http.StatusNotFound, "Resource not found")
	case errors.Is(err, remote.ErrNotConfigured):
		WriteProblem(w, r, http.StatusServiceUnavailable, "Remote backup storage is not configured")
	case errors.Is(err, remote.ErrAuthExpired):
		WriteProblem(w, r, http.StatusUnauthorized, "Remote session expired; sign in again")
	case errors.Is(err, remote.ErrNotSignedIn), errors.Is(err, syncengine.ErrNotSignedIn):
		WriteProblem(w, r, http.StatusServiceUnavailable, "Not signed in to the remote store")
	case errors.Is(err, syncengine.ErrSyncInFlight):
		WriteProblem(w, r, http.StatusConflict, "A sync operation is already in flight")
	case errors.Is(err, syncengine.ErrConflictPending):
		WriteProblem(w, r, http.StatusConflict, "A sync conflict is pending resolution")
	case errors.Is(err, syncengine.ErrNoConflict):
		WriteProblem(w, r, http.StatusConflict, "No conflict to resolve")
	case errors.Is(err, backup.ErrCorruptDocument):
		WriteProblem(w, r, http.StatusBadGateway, "Backup document could not be parsed; local data left untouched")
	default:
		// Never expose internal error details to client
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}
