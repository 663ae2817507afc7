package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/studypal/studypal/internal/backup"
	"github.com/studypal/studypal/internal/store"
	syncengine "github.com/studypal/studypal/internal/sync"
	"github.com/studypal/studypal/internal/types"
	"github.com/studypal/studypal/internal/validation"
)

// maxImportBytes caps the size of an uploaded backup document.
const maxImportBytes = 256 << 20

// Handler carries the collaborators for all HTTP endpoints.
type Handler struct {
	store      store.Store
	serializer *backup.Serializer
	engine     *syncengine.Engine
	apiKey     string
	version    string
}

// NewHandler creates a Handler.
func NewHandler(st store.Store, ser *backup.Serializer, engine *syncengine.Engine, apiKey, version string) *Handler {
	return &Handler{
		store:      st,
		serializer: ser,
		engine:     engine,
		apiKey:     apiKey,
		version:    version,
	}
}

// Health reports service liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Request body is not valid JSON")
		return false
	}
	return true
}

// --- Subjects ---

type subjectRequest struct {
	Name       string   `json:"name"`
	Color      string   `json:"color"`
	Categories []string `json:"categories"`
}

func (req *subjectRequest) validate() []validation.ValidationError {
	var c validation.Collector
	c.Add(validation.ValidateRequired("name", req.Name))
	c.Add(validation.ValidateUTF8("name", req.Name))
	c.Add(validation.ValidateMaxLength("name", req.Name, 200))
	c.Add(validation.ValidateMaxLength("color", req.Color, 32))
	return c.Errors()
}

// CreateSubject handles POST /subjects.
func (h *Handler) CreateSubject(w http.ResponseWriter, r *http.Request) {
	var req subjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Invalid subject", errs)
		return
	}

	sub := &types.Subject{Name: req.Name, Color: req.Color, Categories: req.Categories}
	if err := h.store.PutSubject(r.Context(), sub); err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// UpdateSubject handles PUT /subjects/{id}.
func (h *Handler) UpdateSubject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := h.store.GetSubject(r.Context(), id)
	if err != nil {
		MapDomainError(w, r, err)
		return
	}

	var req subjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Invalid subject", errs)
		return
	}

	existing.Name = req.Name
	existing.Color = req.Color
	existing.Categories = req.Categories
	if err := h.store.PutSubject(r.Context(), existing); err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, existing)
}

// GetSubject handles GET /subjects/{id}.
func (h *Handler) GetSubject(w http.ResponseWriter, r *http.Request) {
	sub, err := h.store.GetSubject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// ListSubjects handles GET /subjects.
func (h *Handler) ListSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.store.ListSubjects(r.Context())
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	if subjects == nil {
		subjects = []types.Subject{}
	}
	writeJSON(w, http.StatusOK, subjects)
}

// DeleteSubject handles DELETE /subjects/{id}.
func (h *Handler) DeleteSubject(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteSubject(r.Context(), chi.URLParam(r, "id")); err != nil {
		MapDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Chapters ---

type chapterRequest struct {
	Name      string `json:"name"`
	SubjectID string `json:"subjectId"`
	Number    int    `json:"number"`
}

func (req *chapterRequest) validate() []validation.ValidationError {
	var c validation.Collector
	c.Add(validation.ValidateRequired("name", req.Name))
	c.Add(validation.ValidateMaxLength("name", req.Name, 200))
	c.Add(validation.ValidateRequired("subjectId", req.SubjectID))
	return c.Errors()
}

// CreateChapter handles POST /chapters.
func (h *Handler) CreateChapter(w http.ResponseWriter, r *http.Request) {
	var req chapterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Invalid chapter", errs)
		return
	}

	ch := &types.Chapter{Name: req.Name, SubjectID: req.SubjectID, Number: req.Number}
	if err := h.store.PutChapter(r.Context(), ch); err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

// UpdateChapter handles PUT /chapters/{id}.
func (h *Handler) UpdateChapter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := h.store.GetChapter(r.Context(), id)
	if err != nil {
		MapDomainError(w, r, err)
		return
	}

	var req chapterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Invalid chapter", errs)
		return
	}

	existing.Name = req.Name
	existing.SubjectID = req.SubjectID
	existing.Number = req.Number
	if err := h.store.PutChapter(r.Context(), existing); err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, existing)
}

// GetChapter handles GET /chapters/{id}.
func (h *Handler) GetChapter(w http.ResponseWriter, r *http.Request) {
	ch, err := h.store.GetChapter(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

// ListChapters handles GET /chapters.
func (h *Handler) ListChapters(w http.ResponseWriter, r *http.Request) {
	chapters, err := h.store.ListChapters(r.Context())
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	if chapters == nil {
		chapters = []types.Chapter{}
	}
	writeJSON(w, http.StatusOK, chapters)
}

// DeleteChapter handles DELETE /chapters/{id}.
func (h *Handler) DeleteChapter(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteChapter(r.Context(), chi.URLParam(r, "id")); err != nil {
		MapDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Materials ---

type materialRequest struct {
	Name       string  `json:"name"`
	ChapterID  string  `json:"chapterId"`
	Type       string  `json:"type"`
	Content    []byte  `json:"content,omitempty"`
	ContentURL string  `json:"contentUrl"`
	Progress   float64 `json:"progress"`
}

func (req *materialRequest) validate() []validation.ValidationError {
	var c validation.Collector
	c.Add(validation.ValidateRequired("name", req.Name))
	c.Add(validation.ValidateMaxLength("name", req.Name, 200))
	c.Add(validation.ValidateRequired("chapterId", req.ChapterID))
	c.Add(validation.ValidateProgress("progress", req.Progress))
	return c.Errors()
}

// CreateMaterial handles POST /materials.
func (h *Handler) CreateMaterial(w http.ResponseWriter, r *http.Request) {
	var req materialRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Invalid material", errs)
		return
	}

	m := &types.Material{
		Name:       req.Name,
		ChapterID:  req.ChapterID,
		Type:       req.Type,
		Content:    req.Content,
		ContentURL: req.ContentURL,
		Progress:   req.Progress,
	}
	if err := h.store.PutMaterial(r.Context(), m); err != nil {
		MapDomainError(w, r, err)
		return
	}
	// Echo the record without the payload; clients fetch content explicitly.
	m.Content = nil
	writeJSON(w, http.StatusCreated, m)
}

// UpdateMaterial handles PUT /materials/{id}.
func (h *Handler) UpdateMaterial(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := h.store.GetMaterial(r.Context(), id)
	if err != nil {
		MapDomainError(w, r, err)
		return
	}

	var req materialRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Invalid material", errs)
		return
	}

	existing.Name = req.Name
	existing.ChapterID = req.ChapterID
	existing.Type = req.Type
	if req.Content != nil {
		existing.Content = req.Content
		existing.Size = int64(len(req.Content))
	}
	existing.ContentURL = req.ContentURL
	existing.Progress = req.Progress
	if err := h.store.PutMaterial(r.Context(), existing); err != nil {
		MapDomainError(w, r, err)
		return
	}
	existing.Content = nil
	writeJSON(w, http.StatusOK, existing)
}

// GetMaterial handles GET /materials/{id}.
func (h *Handler) GetMaterial(w http.ResponseWriter, r *http.Request) {
	m, err := h.store.GetMaterial(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ListMaterials handles GET /materials.
func (h *Handler) ListMaterials(w http.ResponseWriter, r *http.Request) {
	materials, err := h.store.ListMaterials(r.Context())
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	if materials == nil {
		materials = []types.Material{}
	}
	writeJSON(w, http.StatusOK, materials)
}

// DeleteMaterial handles DELETE /materials/{id}.
func (h *Handler) DeleteMaterial(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteMaterial(r.Context(), chi.URLParam(r, "id")); err != nil {
		MapDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Local file export/import escape hatch ---

// Export handles GET /export. The document is produced by the same
// serializer the remote backup uses but bypasses the remote adapter
// entirely. ?content=true retains material payloads.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	includeContent := r.URL.Query().Get("content") == "true"

	data, err := h.serializer.Export(r.Context(), backup.ExportOptions{IncludeContent: includeContent})
	if err != nil {
		MapDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="studypal.db.json"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Error("failed to write export", "error", err)
	}
}

// Import handles POST /import: replace local collections with an uploaded
// document. A document that fails to parse leaves local data untouched.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Failed to read request body")
		return
	}

	if err := h.serializer.Import(r.Context(), data); err != nil {
		if errors.Is(err, backup.ErrCorruptDocument) {
			WriteProblem(w, r, http.StatusBadRequest, "Backup document could not be parsed; local data left untouched")
			return
		}
		MapDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
