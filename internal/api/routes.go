package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes (no auth required)
		r.Get("/health", h.Health)

		// Protected routes (auth required)
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.apiKey))

			r.Route("/subjects", func(r chi.Router) {
				r.Post("/", h.CreateSubject)
				r.Get("/", h.ListSubjects)
				r.Get("/{id}", h.GetSubject)
				r.Put("/{id}", h.UpdateSubject)
				r.Delete("/{id}", h.DeleteSubject)
			})

			r.Route("/chapters", func(r chi.Router) {
				r.Post("/", h.CreateChapter)
				r.Get("/", h.ListChapters)
				r.Get("/{id}", h.GetChapter)
				r.Put("/{id}", h.UpdateChapter)
				r.Delete("/{id}", h.DeleteChapter)
			})

			r.Route("/materials", func(r chi.Router) {
				r.Post("/", h.CreateMaterial)
				r.Get("/", h.ListMaterials)
				r.Get("/{id}", h.GetMaterial)
				r.Put("/{id}", h.UpdateMaterial)
				r.Delete("/{id}", h.DeleteMaterial)
			})

			r.Route("/sync", func(r chi.Router) {
				r.Get("/status", h.SyncStatus)
				r.Post("/backup", h.BackupNow)
				r.Post("/restore", h.RestoreNow)
				r.Post("/resolve", h.ResolveConflict)
			})

			r.Post("/auth/signin", h.SignIn)
			r.Post("/auth/signout", h.SignOut)

			r.Get("/export", h.Export)
			r.Post("/import", h.Import)
		})
	})

	return r
}
