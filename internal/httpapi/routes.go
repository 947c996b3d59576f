package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/duetlabs/duet/internal/ws"
)

func SetupRoutes(a *API) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(a.Hub, a.Auth, a.Log))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/signup", a.Signup)
		r.Post("/auth/login", a.Login)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)
			r.Get("/auth/verify", a.Verify)
			r.Post("/sessions", a.CreateSession)
			r.Post("/sessions/join", a.JoinSession)
			r.Get("/sessions/{id}", a.GetSession)
			r.Get("/search", a.SearchMedia)
			r.Post("/history", a.LogActivity)
			r.Get("/history", a.History)
		})
	})

	return r
}
