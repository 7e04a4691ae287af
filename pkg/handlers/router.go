package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"invitely/pkg/editor"
	"invitely/pkg/middleware"
	"invitely/pkg/responsive"
)

// Health checks a dependency, e.g. the remote project service
type Health func(ctx context.Context) error

// RouterDeps holds everything the router serves
type RouterDeps struct {
	Editor    *editor.Editor
	Surface   *responsive.ReportedSurface
	Account   Account
	Hub       *Hub
	BackupDir string
	Health    Health
}

// NewRouter builds the HTTP routes for the editor
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	web := NewWebHandlers(deps.Editor)
	r.Get("/", web.IndexHandler)

	if deps.Hub != nil {
		r.Handle("/ws", deps.Hub)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok", "remote": "disabled"}
		if deps.Health != nil {
			if err := deps.Health(r.Context()); err != nil {
				status["remote"] = err.Error()
			} else {
				status["remote"] = "ok"
			}
		}
		writeJSON(w, http.StatusOK, status)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.ReadOnly(deps.Editor, "/api/import", "/api/viewer", "/api/surface", "/api/share", "/api/auth"))

		apiHandlers := NewAPIHandlers(deps.Editor, deps.Surface, deps.BackupDir)
		apiHandlers.Routes(r)

		if deps.Account != nil {
			requireAuth := middleware.RequireAuth(deps.Account)
			r.With(requireAuth).Post("/remote/load/{id}", apiHandlers.LoadRemoteHandler)

			auth := NewAuthHandlers(deps.Account)
			r.Post("/auth/login", auth.LoginHandler)
			r.Post("/auth/register", auth.RegisterHandler)
			r.With(requireAuth).Get("/auth/me", auth.MeHandler)
			r.Post("/auth/logout", auth.LogoutHandler)
		}
	})

	return r
}
