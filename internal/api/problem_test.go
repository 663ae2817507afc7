package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/studypal/studypal/internal/backup"
	"github.com/studypal/studypal/internal/remote"
	"github.com/studypal/studypal/internal/store"
	syncengine "github.com/studypal/studypal/internal/sync"
	"github.com/studypal/studypal/internal/validation"
)

func TestWriteProblem_SetsContentTypeAndBody(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/subjects/123", nil)

	WriteProblem(w, r, http.StatusNotFound, "Resource not found")

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var p Problem
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("unmarshal problem: %v", err)
	}
	if p.Status != http.StatusNotFound {
		t.Errorf("problem status = %d", p.Status)
	}
	if p.Instance != "/api/v1/subjects/123" {
		t.Errorf("instance = %q", p.Instance)
	}
	if p.Type == "" || p.Title == "" {
		t.Errorf("type/title missing: %+v", p)
	}
}

func TestWriteProblem_UnknownStatusFallsBack(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)

	WriteProblem(w, r, http.StatusTeapot, "teapot")

	var p Problem
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("unmarshal problem: %v", err)
	}
	if p.Title != http.StatusText(http.StatusTeapot) {
		t.Errorf("title = %q", p.Title)
	}
}

func TestWriteProblemWithErrors(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/subjects", nil)

	errs := []validation.ValidationError{{Field: "name", Message: "is required"}}
	WriteProblemWithErrors(w, r, "Invalid subject", errs)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}

	var p ProblemWithErrors
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("unmarshal problem: %v", err)
	}
	if len(p.Errors) != 1 || p.Errors[0].Field != "name" {
		t.Errorf("errors = %+v", p.Errors)
	}
}

func TestMapDomainError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", store.ErrNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("get subject: %w", store.ErrNotFound), http.StatusNotFound},
		{"remote not configured", remote.ErrNotConfigured, http.StatusServiceUnavailable},
		{"auth expired", remote.ErrAuthExpired, http.StatusUnauthorized},
		{"adapter not signed in", remote.ErrNotSignedIn, http.StatusServiceUnavailable},
		{"engine not signed in", syncengine.ErrNotSignedIn, http.StatusServiceUnavailable},
		{"sync in flight", syncengine.ErrSyncInFlight, http.StatusConflict},
		{"conflict pending", syncengine.ErrConflictPending, http.StatusConflict},
		{"no conflict", syncengine.ErrNoConflict, http.StatusConflict},
		{"corrupt remote document", backup.ErrCorruptDocument, http.StatusBadGateway},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/x", nil)

			MapDomainError(w, r, tt.err)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestMapDomainError_NeverLeaksInternalDetail(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)

	MapDomainError(w, r, errors.New("password=hunter2 connection failed"))

	var p Problem
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("unmarshal problem: %v", err)
	}
	if p.Detail != "Internal Server Error" {
		t.Errorf("detail = %q, internal errors must not leak", p.Detail)
	}
}
