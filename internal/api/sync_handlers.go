package api

import (
	"net/http"
	"time"

	syncengine "github.com/studypal/studypal/internal/sync"
)

// syncStatusResponse is the read-only observer view of the engine.
type syncStatusResponse struct {
	Status    syncengine.Status              `json:"status"`
	Dirty     bool                           `json:"dirty"`
	LastError string                         `json:"lastError,omitempty"`
	LastSync  *time.Time                     `json:"lastSync,omitempty"`
	Conflict  *syncengine.ConflictDescriptor `json:"conflict,omitempty"`
}

// SyncStatus handles GET /sync/status.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	resp := syncStatusResponse{
		Status:   h.engine.Status(),
		Dirty:    h.engine.Dirty(),
		Conflict: h.engine.Conflict(),
	}
	if err := h.engine.LastError(); err != nil {
		resp.LastError = err.Error()
	}
	if t, ok := h.engine.LastSyncTime(); ok {
		resp.LastSync = &t
	}
	writeJSON(w, http.StatusOK, resp)
}

// SignIn handles POST /auth/signin: establish the remote session and run
// reconciliation.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.SignIn(r.Context()); err != nil {
		MapDomainError(w, r, err)
		return
	}
	h.SyncStatus(w, r)
}

// SignOut handles POST /auth/signout.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	h.engine.SignOut()
	h.SyncStatus(w, r)
}

// BackupNow handles POST /sync/backup: immediate push.
func (h *Handler) BackupNow(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.BackupNow(r.Context()); err != nil {
		MapDomainError(w, r, err)
		return
	}
	h.SyncStatus(w, r)
}

// RestoreNow handles POST /sync/restore: immediate pull with full
// collection replacement.
func (h *Handler) RestoreNow(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RestoreNow(r.Context()); err != nil {
		MapDomainError(w, r, err)
		return
	}
	h.SyncStatus(w, r)
}

type resolveRequest struct {
	Choice string `json:"choice"`
}

// ResolveConflict handles POST /sync/resolve with {"choice": "local"|"drive"|null}.
func (h *Handler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var choice syncengine.Choice
	switch req.Choice {
	case "local":
		choice = syncengine.ChoiceLocal
	case "drive":
		choice = syncengine.ChoiceDrive
	case "":
		choice = syncengine.ChoiceNone
	default:
		WriteProblem(w, r, http.StatusBadRequest, "choice must be \"local\", \"drive\", or null")
		return
	}

	if err := h.engine.ResolveConflict(r.Context(), choice); err != nil {
		MapDomainError(w, r, err)
		return
	}
	h.SyncStatus(w, r)
}
