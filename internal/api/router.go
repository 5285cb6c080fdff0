package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/raido/internal/noteservice"
)

// NewRouter assembles the API routes. Every route sits behind the bearer
// auth middleware, which is a no-op when authEnabled is false. sseHandler
// is optional; when non-nil it is mounted at GET /events so stdio-only
// deployments can pass nil. vaultRoot locates the attachments directory.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler, vaultRoot string) chi.Router {
	h := NewHandler(svc)
	ah := NewAttachmentHandler(vaultRoot)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/*", h.GetNote)
	r.Put("/notes/*", h.UpdateNote)
	r.Patch("/notes/*", h.PatchNote)
	r.Delete("/notes/*", h.DeleteNote)

	r.Get("/search", h.Search)

	// Link graph and reference reports.
	r.Get("/graph", h.Graph)
	r.Get("/backlinks", h.Backlinks)
	r.Get("/dangling", h.Dangling)

	r.Get("/tags", h.Tags)
	r.Post("/reindex", h.Reindex)
	r.Get("/parse-errors", h.ParseErrors)

	// Upload only. Serving attachments back is mounted unauthenticated at
	// the application level so image URLs work in plain <img> tags.
	r.Post("/attachments", ah.Upload)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
